package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scslab/mutated/internal/config"
	"github.com/scslab/mutated/internal/gen"
)

func TestParseClientDefaults(t *testing.T) {
	c, err := config.ParseClient([]string{"127.0.0.1:11211", "synthetic", "100", "1000"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", c.Addr)
	assert.Equal(t, 11211, c.Port)
	assert.Equal(t, config.Synthetic, c.Generator)
	assert.Equal(t, 5, c.WarmupSeconds)
	assert.Equal(t, 5, c.CooldownSeconds)
	assert.Equal(t, gen.RoundRobin, c.ConnMode)
	assert.Equal(t, gen.DistExponential, c.ServiceDist)
	assert.Equal(t, 10, c.ConnCount)
	assert.Equal(t, -1, c.PinCPU)
	assert.Equal(t, 10000, c.Samples, "unset -s defaults to 10x req/s")
}

func TestParseClientExplicitZeroSamplesRejected(t *testing.T) {
	_, err := config.ParseClient([]string{"-s", "0", "127.0.0.1:11211", "synthetic", "100", "1000"})
	assert.Error(t, err, "an explicit -s 0 must be rejected, not silently replaced by the default")
}

func TestParseClientExplicitSamplesHonored(t *testing.T) {
	c, err := config.ParseClient([]string{"-s", "42", "127.0.0.1:11211", "synthetic", "100", "1000"})
	require.NoError(t, err)
	assert.Equal(t, 42, c.Samples)
}

func TestParseClientRejectsUnknownGenerator(t *testing.T) {
	_, err := config.ParseClient([]string{"127.0.0.1:11211", "bogus", "100", "1000"})
	assert.Error(t, err)
}

func TestParseClientRejectsNonPositiveRate(t *testing.T) {
	_, err := config.ParseClient([]string{"127.0.0.1:11211", "synthetic", "100", "0"})
	assert.Error(t, err)
}

func TestParseClientRejectsWrongArgCount(t *testing.T) {
	_, err := config.ParseClient([]string{"127.0.0.1:11211", "synthetic"})
	assert.Error(t, err)
}

func TestParseClientConnModeAndDist(t *testing.T) {
	c, err := config.ParseClient([]string{"-m", "per_request", "-d", "lognorm", "127.0.0.1:11211", "memcache", "0.9", "500"})
	require.NoError(t, err)
	assert.Equal(t, gen.PerRequest, c.ConnMode)
	assert.Equal(t, gen.DistLognorm, c.ServiceDist)
}

func TestParseClientRejectsUnknownConnMode(t *testing.T) {
	_, err := config.ParseClient([]string{"-m", "bogus", "127.0.0.1:11211", "synthetic", "100", "1000"})
	assert.Error(t, err)
}

func TestParseLoadDefaultsAndValidation(t *testing.T) {
	l, err := config.ParseLoad([]string{"127.0.0.1:11211"})
	require.NoError(t, err)
	assert.Equal(t, 10000, l.Keys)
	assert.Equal(t, 4096, l.ValueSize)
	assert.Equal(t, 1, l.StartSeq)
	assert.Equal(t, 100, l.Batch)
	assert.Equal(t, 25, l.Notify)

	_, err = config.ParseLoad([]string{"-e", "0", "127.0.0.1:11211"})
	assert.Error(t, err, "notify window must be positive")
}

func TestParseLoadRejectsMalformedAddress(t *testing.T) {
	_, err := config.ParseLoad([]string{"not-an-addr"})
	assert.Error(t, err)
}
