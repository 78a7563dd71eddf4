package ringbuf_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scslab/mutated/internal/ringbuf"
)

func TestIOOpAdvanceHeaderOnlyCompletes(t *testing.T) {
	called := false
	op := ringbuf.IOOp{
		HdrLen: 4,
		HdrCB: func(seg1, seg2 []byte, status error) (int, error) {
			called = true
			return 0, nil
		},
	}
	done, err := op.Advance([]byte{1, 2, 3, 4}, nil, nil)
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, called)
}

func TestIOOpAdvanceHeaderThenBody(t *testing.T) {
	var bodySeen []byte
	op := ringbuf.IOOp{
		HdrLen: 4,
		HdrCB: func(seg1, seg2 []byte, status error) (int, error) {
			return 6, nil
		},
		BodyCB: func(seg1, seg2 []byte, status error) (int, error) {
			bodySeen = append(append([]byte{}, seg1...), seg2...)
			return 0, nil
		},
	}
	done, err := op.Advance([]byte{0, 0, 0, 0}, nil, nil)
	require.NoError(t, err)
	assert.False(t, done, "header phase reporting a body length should keep the op queued")
	assert.Equal(t, 6, op.Pending())

	done, err = op.Advance([]byte("abc"), []byte("def"), nil)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "abcdef", string(bodySeen))
}

func TestIOOpAdvanceZeroBodyLenStillInvokesBodyCB(t *testing.T) {
	bodyCalled := false
	var gotSeg1, gotSeg2 []byte
	op := ringbuf.IOOp{
		HdrLen: 4,
		HdrCB: func(seg1, seg2 []byte, status error) (int, error) {
			return 0, nil
		},
		BodyCB: func(seg1, seg2 []byte, status error) (int, error) {
			bodyCalled = true
			gotSeg1, gotSeg2 = seg1, seg2
			return 0, nil
		},
	}
	done, err := op.Advance([]byte{0, 0, 0, 0}, nil, nil)
	require.NoError(t, err)
	assert.True(t, done, "a zero body length has nothing left to wait on")
	assert.True(t, bodyCalled, "a registered BodyCB must still run exactly once for a zero-length body")
	assert.Nil(t, gotSeg1)
	assert.Nil(t, gotSeg2)
}

func TestIOOpAdvancePropagatesStatus(t *testing.T) {
	var gotStatus error
	op := ringbuf.IOOp{
		HdrLen: 2,
		HdrCB: func(seg1, seg2 []byte, status error) (int, error) {
			gotStatus = status
			return 0, nil
		},
	}
	teardownErr := errors.New("connection reset")
	done, err := op.Advance(nil, nil, teardownErr)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, teardownErr, gotStatus)
}

func TestIOQueueFIFOOrderAndCapacity(t *testing.T) {
	q := ringbuf.NewIOQueue(2)
	assert.True(t, q.Push(ringbuf.IOOp{HdrLen: 1}))
	assert.True(t, q.Push(ringbuf.IOOp{HdrLen: 2}))
	assert.False(t, q.Push(ringbuf.IOOp{HdrLen: 3}), "queue at capacity should reject further pushes")

	require.Equal(t, 1, q.Front().HdrLen)
	q.Drop()
	require.Equal(t, 2, q.Front().HdrLen)
	q.Drop()
	assert.Nil(t, q.Front())
}

func TestIOQueueEachVisitsFIFOOrder(t *testing.T) {
	q := ringbuf.NewIOQueue(3)
	q.Push(ringbuf.IOOp{HdrLen: 1})
	q.Push(ringbuf.IOOp{HdrLen: 2})
	q.Drop()
	q.Push(ringbuf.IOOp{HdrLen: 3})

	var seen []int
	q.Each(func(op *ringbuf.IOOp) { seen = append(seen, op.HdrLen) })
	assert.Equal(t, []int{2, 3}, seen)
}
