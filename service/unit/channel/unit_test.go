package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wavepool/wavepool/model/protocol"
)

func echoHandler(ctx context.Context, job *protocol.Message) (interface{}, error) {
	return job.Payload, nil
}

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

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
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

func TestUnit_SendAndReceive(t *testing.T) {
	unit := New(echoHandler)
	defer func() { _ = unit.Terminate() }()

	out := &sink{}
	unit.SetOnMessage(out.collect)

	ctx := context.Background()
	for seq := int64(0); seq < 10; seq++ {
		assert.Nil(t, unit.Send(ctx, protocol.NewJob(seq, seq)))
	}
	messages := out.waitFor(t, 10)
	seen := map[int64]int{}
	for _, msg := range messages {
		seen[msg.Seq]++
	}
	for seq := int64(0); seq < 10; seq++ {
		assert.Equal(t, 1, seen[seq], "seq %d delivered exactly once", seq)
	}
}

// Replacing the message callback must detach the previous listener;
// additive native listeners would otherwise deliver every message twice.
func TestUnit_ListenerReplacementAvoidsDoubleDelivery(t *testing.T) {
	unit := New(echoHandler)
	defer func() { _ = unit.Terminate() }()

	first := &sink{}
	second := &sink{}
	unit.SetOnMessage(first.collect)
	unit.SetOnMessage(second.collect)

	ctx := context.Background()
	for seq := int64(0); seq < 20; seq++ {
		assert.Nil(t, unit.Send(ctx, protocol.NewJob(seq, nil)))
	}
	second.waitFor(t, 20)
	assert.Equal(t, 0, first.count(), "detached listener receives nothing")
	assert.Equal(t, 20, second.count(), "every message delivered exactly once")
}

// Concurrent senders race the asynchronous dedicated-inbox handoff on a
// freshly created unit. A sender may resolve the eager slot just before the
// target flips and land its envelope there after the commit drain; every
// job must still surface exactly once.
func TestUnit_ConcurrentSendsDuringHandoff(t *testing.T) {
	const senders = 8
	ctx := context.Background()
	for iteration := 0; iteration < 300; iteration++ {
		unit := New(echoHandler)
		out := &sink{}
		unit.SetOnMessage(out.collect)

		var wg sync.WaitGroup
		for seq := int64(0); seq < senders; seq++ {
			wg.Add(1)
			go func(seq int64) {
				defer wg.Done()
				assert.Nil(t, unit.Send(ctx, protocol.NewJob(seq, nil)))
			}(seq)
		}
		wg.Wait()

		messages := out.waitFor(t, senders)
		seen := map[int64]int{}
		for _, msg := range messages {
			seen[msg.Seq]++
		}
		for seq := int64(0); seq < senders; seq++ {
			if !assert.Equal(t, 1, seen[seq], "iteration %d seq %d delivered exactly once", iteration, seq) {
				t.FailNow()
			}
		}
		_ = unit.Terminate()
	}
}

func TestUnit_TerminateRejectsFurtherSends(t *testing.T) {
	unit := New(echoHandler)
	assert.Nil(t, unit.Terminate())
	assert.Nil(t, unit.Terminate(), "repeated terminate is a no-op")

	err := unit.Send(context.Background(), protocol.NewJob(0, nil))
	assert.Equal(t, ErrTerminated, err)
}

func TestUnit_CloseNoticeStopsWorker(t *testing.T) {
	unit := New(echoHandler)
	out := &sink{}
	unit.SetOnMessage(out.collect)

	ctx := context.Background()
	assert.Nil(t, unit.Send(ctx, protocol.NewJob(1, "work")))
	out.waitFor(t, 1)
	assert.Nil(t, unit.Send(ctx, protocol.NewClose()))

	assert.Eventually(t, func() bool {
		select {
		case <-unit.done:
			return true
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond, "worker loop stops after shutdown notice")
	_ = unit.Terminate()
}
