package affinity_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scslab/mutated/internal/affinity"
)

func TestPinToCPUZeroSucceeds(t *testing.T) {
	if runtime.NumCPU() < 1 {
		t.Skip("no CPUs reported")
	}
	err := affinity.Pin(0)
	assert.NoError(t, err, "pinning the calling thread to CPU 0 should always succeed on a Linux host with at least one core")
}
