package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber only receives the events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("round.completed"),
						eventWithName("game.finished"),
					},
					subscribers: []subscriber{
						{name: "leaderboard", subscribeTo: []string{"round.completed"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("round.completed")}, out.received["leaderboard"])
			},
		},

		"an event is dispatched to every subscriber": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("game.finished"),
					},
					subscribers: []subscriber{
						{name: "leaderboard", subscribeTo: []string{"game.finished"}},
						{name: "notifier", subscribeTo: []string{"game.finished"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["leaderboard"], 1)
				assert.Len(t, out.received["notifier"], 1)
			},
		},

		"multiple events are dispatched to multiple subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("round.completed"),
						eventWithName("round.completed"),
						eventWithName("game.finished"),
					},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"round.completed"}},
						{name: "s2", subscribeTo: []string{"round.completed", "game.finished"}},
						{name: "s3", subscribeTo: []string{"leaderboard.updated"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 2)
				assert.ElementsMatch(t, []event.Event{
					eventWithName("round.completed"),
					eventWithName("round.completed"),
					eventWithName("game.finished"),
				}, out.received["s2"])
				assert.Empty(t, out.received["s3"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus(event.WithPoolSize(4))
			for _, s := range in.subscribers {
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	var calls atomic.Int32

	b := event.NewBus()
	b.Subscribe("game.finished", func(context.Context, event.Event) error {
		panic("boom")
	})
	b.Subscribe("game.finished", func(context.Context, event.Event) error {
		return errors.New("failed")
	})
	b.Subscribe("game.finished", func(context.Context, event.Event) error {
		calls.Add(1)
		return nil
	})

	b.Publish(context.Background(), eventWithName("game.finished"))
	b.Stop()

	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_PublishAfterStop(t *testing.T) {
	var calls atomic.Int32

	b := event.NewBus()
	b.Subscribe("round.completed", func(context.Context, event.Event) error {
		calls.Add(1)
		return nil
	})
	b.Stop()

	b.Publish(context.Background(), eventWithName("round.completed"))

	assert.Zero(t, calls.Load())
}

func TestBus_PublishDoesNotWaitForPool(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	b := event.NewBus(event.WithPoolSize(1))
	b.Subscribe("round.completed", func(context.Context, event.Event) error {
		<-release
		calls.Add(1)
		return nil
	})

	published := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			b.Publish(context.Background(), eventWithName("round.completed"))
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		require.Fail(t, "publish blocked on a saturated pool")
	}

	close(release)
	b.Stop()

	assert.Equal(t, int32(3), calls.Load())
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
