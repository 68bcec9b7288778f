package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestHub(t *testing.T) {
	t.Parallel()

	t.Run("delivers to every subscriber", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		defer hub.Close()

		first, cancelFirst := hub.Subscribe(1)
		defer cancelFirst()
		second, cancelSecond := hub.Subscribe(1)
		defer cancelSecond()

		n := Notification{EventID: "event-1", Kind: KindProposed}
		if err := hub.Dispatch(context.Background(), n); err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}

		for _, ch := range []<-chan Notification{first, second} {
			got := <-ch
			if got.EventID != "event-1" || got.Kind != KindProposed {
				t.Fatalf("unexpected notification %#v", got)
			}
		}
	})

	t.Run("drops instead of blocking on full buffers", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		defer hub.Close()

		ch, cancel := hub.Subscribe(1)
		defer cancel()

		for i := 0; i < 3; i++ {
			if err := hub.Dispatch(context.Background(), Notification{EventID: "event-1"}); err != nil {
				t.Fatalf("Dispatch failed: %v", err)
			}
		}
		if hub.Dropped() != 2 {
			t.Fatalf("expected 2 dropped deliveries, got %d", hub.Dropped())
		}
		<-ch
	})

	t.Run("unsubscribe closes the channel once", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		defer hub.Close()

		ch, cancel := hub.Subscribe(1)
		cancel()
		cancel()

		if _, ok := <-ch; ok {
			t.Fatalf("expected closed channel")
		}
		if hub.Len() != 0 {
			t.Fatalf("expected no subscribers, got %d", hub.Len())
		}
	})

	t.Run("close tears down subscribers and rejects dispatch", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		ch, cancel := hub.Subscribe(1)
		hub.Close()
		cancel()

		if _, ok := <-ch; ok {
			t.Fatalf("expected closed channel")
		}
		if err := hub.Dispatch(context.Background(), Notification{}); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}

		late, _ := hub.Subscribe(1)
		if _, ok := <-late; ok {
			t.Fatalf("subscribing to a closed hub must yield a closed channel")
		}
	})
}

type failingDispatcher struct{ err error }

func (f failingDispatcher) Dispatch(context.Context, Notification) error { return f.err }

func TestMulti(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	boom := errors.New("boom")

	err := Multi{LogDispatcher{Logger: logger}, nil, failingDispatcher{err: boom}}.Dispatch(context.Background(), Notification{EventID: "event-9", Kind: KindStateChanged})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !strings.Contains(buf.String(), "event-9") {
		t.Fatalf("expected log output to mention event, got %q", buf.String())
	}
}
