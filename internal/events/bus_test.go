package events_test

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"mkvshrink/internal/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type msg struct {
	n     int
	lossy bool
}

func newBus(history int) *events.Bus[msg] {
	return events.New[msg](history, func(m msg) bool { return m.lossy })
}

func drain(ch <-chan events.Envelope[msg]) []events.Envelope[msg] {
	var out []events.Envelope[msg]
	for env := range ch {
		out = append(out, env)
	}
	return out
}

func TestSubscribersReceiveInOrder(t *testing.T) {
	bus := newBus(0)
	a, cancelA := bus.Subscribe(16)
	defer cancelA()
	b, cancelB := bus.Subscribe(16)
	defer cancelB()

	for i := 1; i <= 5; i++ {
		if seq := bus.Publish(msg{n: i}); seq != uint64(i) {
			t.Fatalf("seq = %d, want %d", seq, i)
		}
	}
	bus.Close()

	for _, got := range [][]events.Envelope[msg]{drain(a), drain(b)} {
		if len(got) != 5 {
			t.Fatalf("expected 5 envelopes, got %d", len(got))
		}
		for i, env := range got {
			if env.Value.n != i+1 || env.Seq != uint64(i+1) || env.Time.IsZero() {
				t.Fatalf("unexpected envelope %+v at %d", env, i)
			}
		}
	}
}

func TestLateSubscriberReplaysHistory(t *testing.T) {
	bus := newBus(3)
	for i := 1; i <= 5; i++ {
		bus.Publish(msg{n: i})
	}
	ch, cancel := bus.Subscribe(1)
	defer cancel()
	bus.Publish(msg{n: 6})
	bus.Close()

	got := drain(ch)
	want := []int{3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %d envelopes", want, len(got))
	}
	for i, env := range got {
		if env.Value.n != want[i] {
			t.Fatalf("envelope %d = %d, want %d", i, env.Value.n, want[i])
		}
	}
	if len(bus.History()) != 3 {
		t.Fatalf("history length = %d", len(bus.History()))
	}
}

func TestLossyValuesDropForSlowSubscriber(t *testing.T) {
	bus := newBus(0)
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(msg{n: 1, lossy: true})
	bus.Publish(msg{n: 2, lossy: true})

	first := <-ch
	if first.Value.n != 1 {
		t.Fatalf("expected first lossy value, got %+v", first)
	}
	select {
	case env := <-ch:
		t.Fatalf("expected dropped value, got %+v", env)
	default:
	}
}

func TestCancelReleasesBlockedPublish(t *testing.T) {
	bus := newBus(0)
	_, cancel := bus.Subscribe(1)
	bus.Publish(msg{n: 1})

	published := make(chan struct{})
	go func() {
		bus.Publish(msg{n: 2})
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publish should block while the subscriber buffer is full")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish stayed blocked after cancel")
	}
	cancel()
	bus.Close()
}

func TestSubscribeAfterClose(t *testing.T) {
	bus := newBus(0)
	bus.Publish(msg{n: 1})
	bus.Close()
	if seq := bus.Publish(msg{n: 2}); seq != 0 {
		t.Fatalf("expected publish after close to be ignored, got seq %d", seq)
	}
	ch, cancel := bus.Subscribe(4)
	defer cancel()
	got := drain(ch)
	if len(got) != 1 || got[0].Value.n != 1 {
		t.Fatalf("unexpected replay %+v", got)
	}
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	bus := newBus(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := bus.Subscribe(4)
			defer cancel()
			for env := range ch {
				if env.Value.n == 99 {
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		bus.Publish(msg{n: i})
	}
	bus.Publish(msg{n: 99})
	wg.Wait()
	bus.Close()
}
