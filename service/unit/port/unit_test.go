package port

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wavepool/wavepool/model/protocol"
)

type sink struct {
	mu       sync.Mutex
	messages []*protocol.Message
}

func (s *sink) collect(raw interface{}) {
	msg, ok := raw.(*protocol.Message)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *sink) waitFor(t *testing.T, count int) []*protocol.Message {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.messages) >= count {
			messages := append([]*protocol.Message(nil), s.messages...)
			s.mu.Unlock()
			return messages
		}
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages", count)
	return nil
}

// The codec round-trip must isolate the worker from the submitter: mutating
// the posted payload after send cannot leak into the handler.
func TestUnit_CodecIsolatesPayload(t *testing.T) {
	var observed sync.Map
	unit := New(func(ctx context.Context, job *protocol.Message) (interface{}, error) {
		payload, _ := job.Payload.(map[string]interface{})
		observed.Store(job.Seq, payload["value"])
		return job.Payload, nil
	})
	defer func() { _ = unit.Terminate() }()

	out := &sink{}
	unit.SetOnMessage(out.collect)

	payload := map[string]interface{}{"value": "before"}
	assert.Nil(t, unit.Send(context.Background(), protocol.NewJob(0, payload)))
	payload["value"] = "after"

	out.waitFor(t, 1)
	value, ok := observed.Load(int64(0))
	assert.True(t, ok)
	assert.Equal(t, "before", value)
}

// The message slot is single and assignable; replacing it is idempotent and
// routes everything to the latest assignee.
func TestUnit_SlotReplacementIsIdempotent(t *testing.T) {
	unit := New(func(ctx context.Context, job *protocol.Message) (interface{}, error) {
		return job.Payload, nil
	})
	defer func() { _ = unit.Terminate() }()

	first := &sink{}
	second := &sink{}
	unit.SetOnMessage(first.collect)
	unit.SetOnMessage(second.collect)
	unit.SetOnMessage(second.collect)

	ctx := context.Background()
	for seq := int64(0); seq < 10; seq++ {
		assert.Nil(t, unit.Send(ctx, protocol.NewJob(seq, seq)))
	}
	messages := second.waitFor(t, 10)
	assert.Equal(t, 10, len(messages))
	first.mu.Lock()
	assert.Equal(t, 0, len(first.messages))
	first.mu.Unlock()
}

func TestUnit_TerminateRejectsFurtherSends(t *testing.T) {
	unit := New(func(ctx context.Context, job *protocol.Message) (interface{}, error) {
		return nil, nil
	})
	assert.Nil(t, unit.Terminate())
	assert.Nil(t, unit.Terminate())
	assert.Equal(t, ErrTerminated, unit.Send(context.Background(), protocol.NewJob(0, nil)))
}

func TestUnit_UnencodablePayloadFailsSend(t *testing.T) {
	unit := New(func(ctx context.Context, job *protocol.Message) (interface{}, error) {
		return nil, nil
	})
	defer func() { _ = unit.Terminate() }()
	err := unit.Send(context.Background(), protocol.NewJob(0, make(chan int)))
	assert.NotNil(t, err)
}
