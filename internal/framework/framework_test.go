package framework

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hize/membership/pkg/logger"
)

type fakeSource struct {
	mu       sync.Mutex
	pending  []*Message
	acked    []string
	released []string
	failNext bool
}

func (f *fakeSource) Consume(ctx context.Context, _ string, timeout, _ time.Duration) (*Message, error) {
	f.mu.Lock()
	if f.failNext {
		f.failNext = false
		f.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	if len(f.pending) > 0 {
		msg := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func (f *fakeSource) Ack(_ context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, msg.ID)
	return nil
}

func (f *fakeSource) Release(_ context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, msg.ID)
	return nil
}

func (f *fakeSource) snapshot() (acked, released []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...), append([]string(nil), f.released...)
}

func testConfigs() (*SubscriberConfig, *ProcessorConfig) {
	return &SubscriberConfig{
			QueueName:    "q",
			Concurrency:  1,
			Timeout:      20 * time.Millisecond,
			ErrorBackoff: 10 * time.Millisecond,
		}, &ProcessorConfig{
			Concurrency: 2,
			BufferSize:  4,
			Timeout:     time.Second,
		}
}

func runPipeline(t *testing.T, source *fakeSource, handler Handler, wait func() bool) {
	t.Helper()
	subCfg, procCfg := testConfigs()
	log := logger.NewNop()

	inputChan := make(chan *Message, procCfg.BufferSize)
	sub := NewSubscriber(subCfg, source, log)
	proc := NewProcessor(procCfg, handler, source, log)

	ctx := context.Background()
	proc.Start(ctx, inputChan)
	sub.Start(ctx, inputChan)

	require.Eventually(t, wait, 2*time.Second, 5*time.Millisecond)

	sub.Stop()
	sub.Wait()
	proc.SignalShutdown()
	proc.Wait()
}

func TestOutcomesSettleMessages(t *testing.T) {
	source := &fakeSource{
		failNext: true,
		pending: []*Message{
			{ID: "ok", Data: []byte("a")},
			{ID: "retry", Data: []byte("b")},
			{ID: "bad", Data: []byte("c")},
			{ID: "boom", Data: []byte("d")},
		},
	}

	handler := func(_ context.Context, msg *Message) Outcome {
		switch msg.ID {
		case "retry":
			return OutcomeRelease
		case "bad":
			return OutcomeBury
		case "boom":
			panic("unexpected")
		default:
			return OutcomeAck
		}
	}

	runPipeline(t, source, handler, func() bool {
		acked, released := source.snapshot()
		return len(acked) == 3 && len(released) == 1
	})

	acked, released := source.snapshot()
	assert.ElementsMatch(t, []string{"ok", "bad", "boom"}, acked)
	assert.Equal(t, []string{"retry"}, released)
}

func TestProcessorDrainsOnShutdown(t *testing.T) {
	_, procCfg := testConfigs()
	procCfg.Concurrency = 1
	source := &fakeSource{}

	var mu sync.Mutex
	handled := 0
	proc := NewProcessor(procCfg, func(context.Context, *Message) Outcome {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		handled++
		mu.Unlock()
		return OutcomeAck
	}, source, logger.NewNop())

	inputChan := make(chan *Message, 4)
	for i := 0; i < 4; i++ {
		inputChan <- &Message{ID: "m"}
	}

	proc.SignalShutdown()
	proc.Start(context.Background(), inputChan)
	proc.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, handled)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ack", OutcomeAck.String())
	assert.Equal(t, "release", OutcomeRelease.String())
	assert.Equal(t, "bury", OutcomeBury.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}

func TestSubscriberStopBeforeStart(t *testing.T) {
	subCfg, _ := testConfigs()
	source := &fakeSource{pending: []*Message{{ID: "1", Queue: "q"}}}
	sub := NewSubscriber(subCfg, source, logger.NewNop())

	sub.Stop()
	inputChan := make(chan *Message, 1)
	sub.Start(context.Background(), inputChan)
	sub.Wait()

	assert.Empty(t, inputChan)
	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Len(t, source.pending, 1)
}
