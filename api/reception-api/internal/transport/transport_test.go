package internal_transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
	"github.com/rapidaai/reception/pkg/commons"
)

func newTestTransport(t *testing.T, opts ...Option) *Transport {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	require.NoError(t, err)
	return NewTransport(logger, opts...)
}

func inboundFrame(seq uint64) internal_type.MediaFrame {
	return internal_type.MediaFrame{
		SequenceNumber: seq,
		Payload:        []byte{0xff},
		Timestamp:      time.Now(),
		Direction:      internal_type.DirectionInbound,
	}
}

func drain(ch <-chan internal_type.MediaFrame) []uint64 {
	var seqs []uint64
	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				return seqs
			}
			seqs = append(seqs, frame.SequenceNumber)
		default:
			return seqs
		}
	}
}

// ============================================================================
// Open / Close
// ============================================================================

func TestOpen_RejectsDuplicate(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.Open("call-1", nil))
	assert.Error(t, tr.Open("call-1", nil))
}

func TestClose_Idempotent(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.Open("call-1", nil))
	tr.Close("call-1")
	tr.Close("call-1")
	tr.Close("never-opened")
}

func TestClose_ClosesInboundStream(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.Open("call-1", nil))
	ch, ok := tr.InboundFrames("call-1")
	require.True(t, ok)

	tr.Close("call-1")

	_, open := <-ch
	assert.False(t, open, "inbound channel should be closed")
}

func TestIngest_AfterCloseFails(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.Open("call-1", nil))
	tr.Close("call-1")
	assert.Error(t, tr.Ingest("call-1", inboundFrame(1)))
}

// ============================================================================
// Inbound ordering
// ============================================================================

func TestIngest_NonDecreasingSequenceDelivered(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.Open("call-1", nil))
	ch, _ := tr.InboundFrames("call-1")

	for _, seq := range []uint64{1, 2, 3, 4} {
		require.NoError(t, tr.Ingest("call-1", inboundFrame(seq)))
	}

	assert.Equal(t, []uint64{1, 2, 3, 4}, drain(ch))
}

func TestIngest_DropsDuplicateAndRegressedSequences(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.Open("call-1", nil))
	ch, _ := tr.InboundFrames("call-1")

	for _, seq := range []uint64{1, 2, 2, 1, 3} {
		require.NoError(t, tr.Ingest("call-1", inboundFrame(seq)))
	}

	assert.Equal(t, []uint64{1, 2, 3}, drain(ch))
}

func TestIngest_SequencesIndependentPerSession(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.Open("call-1", nil))
	require.NoError(t, tr.Open("call-2", nil))
	ch1, _ := tr.InboundFrames("call-1")
	ch2, _ := tr.InboundFrames("call-2")

	require.NoError(t, tr.Ingest("call-1", inboundFrame(5)))
	require.NoError(t, tr.Ingest("call-2", inboundFrame(1)))

	assert.Equal(t, []uint64{5}, drain(ch1))
	assert.Equal(t, []uint64{1}, drain(ch2))
}

func TestIngest_UnknownSessionFails(t *testing.T) {
	tr := newTestTransport(t)
	assert.Error(t, tr.Ingest("missing", inboundFrame(1)))
}

// ============================================================================
// Lossy backpressure
// ============================================================================

func TestIngest_DropsOldestWhenQueueFull(t *testing.T) {
	tr := newTestTransport(t, WithQueueDepth(3))
	require.NoError(t, tr.Open("call-1", nil))
	ch, _ := tr.InboundFrames("call-1")

	// No consumer: fill the queue past its depth.
	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, tr.Ingest("call-1", inboundFrame(seq)))
	}

	// Oldest frames 1 and 2 were evicted; the newest survive in order.
	assert.Equal(t, []uint64{3, 4, 5}, drain(ch))
}

func TestIngest_NeverBlocksProducer(t *testing.T) {
	tr := newTestTransport(t, WithQueueDepth(2))
	require.NoError(t, tr.Open("call-1", nil))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for seq := uint64(1); seq <= 1000; seq++ {
			_ = tr.Ingest("call-1", inboundFrame(seq))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Ingest blocked with a full queue and no consumer")
	}
}

// ============================================================================
// Outbound emit
// ============================================================================

func TestEmit_DeliversInOrder(t *testing.T) {
	tr := newTestTransport(t)

	var mu sync.Mutex
	var delivered []uint64
	writer := func(frame internal_type.MediaFrame) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, frame.SequenceNumber)
		return nil
	}
	require.NoError(t, tr.Open("call-1", writer))

	for _, seq := range []uint64{1, 2, 3} {
		require.NoError(t, tr.Emit("call-1", internal_type.MediaFrame{
			SequenceNumber: seq,
			Direction:      internal_type.DirectionOutbound,
		}))
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3}, delivered)
}

func TestEmit_DropsRegressedSequence(t *testing.T) {
	tr := newTestTransport(t)

	var delivered []uint64
	writer := func(frame internal_type.MediaFrame) error {
		delivered = append(delivered, frame.SequenceNumber)
		return nil
	}
	require.NoError(t, tr.Open("call-1", writer))

	for _, seq := range []uint64{1, 2, 1, 3} {
		require.NoError(t, tr.Emit("call-1", internal_type.MediaFrame{SequenceNumber: seq}))
	}

	assert.Equal(t, []uint64{1, 2, 3}, delivered)
}
