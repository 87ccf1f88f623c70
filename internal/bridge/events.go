package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/wpaif/internal/wpa"
)

const eventBuffer = 32

// EventObserver receives every forwarded daemon event.
type EventObserver interface {
	ObserveEvent(msg EventMessage)
}

// EventForwarder publishes unsolicited daemon events to the event topic.
type EventForwarder struct {
	logHolder

	publisher Publisher
	topic     string
	qos       byte

	events chan wpa.Notification

	observers   []EventObserver
	observersMu sync.RWMutex

	started   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	forwarded atomic.Uint64
}

// NewEventForwarder creates a forwarder publishing to topic.
func NewEventForwarder(publisher Publisher, topic string, qos byte) (*EventForwarder, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &EventForwarder{
		publisher: publisher,
		topic:     topic,
		qos:       qos,
		events:    make(chan wpa.Notification, eventBuffer),
	}, nil
}

// Events returns the channel to install with wpa.Client.SetNotificationSink.
func (f *EventForwarder) Events() chan<- wpa.Notification {
	return f.events
}

// AddObserver registers o to receive every event.
func (f *EventForwarder) AddObserver(o EventObserver) {
	f.observersMu.Lock()
	f.observers = append(f.observers, o)
	f.observersMu.Unlock()
}

// Start begins forwarding.
func (f *EventForwarder) Start(ctx context.Context) error {
	if !f.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	fwdCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go f.loop(fwdCtx)
	return nil
}

// Stop halts forwarding. Safe to call multiple times.
func (f *EventForwarder) Stop() {
	f.stopOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}
		f.wg.Wait()
	})
}

// Forwarded returns the number of events published.
func (f *EventForwarder) Forwarded() uint64 {
	return f.forwarded.Load()
}

func (f *EventForwarder) loop(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-f.events:
			f.forward(n)
		}
	}
}

func (f *EventForwarder) forward(n wpa.Notification) {
	msg := NewEventMessage(n)
	f.logDebug("daemon event", "event", msg.Event, "level", msg.Level)

	if err := publishJSON(f.publisher, f.topic, f.qos, false, msg); err != nil {
		f.logError("publishing event", err, "event", msg.Event)
	} else {
		f.forwarded.Add(1)
	}

	f.observersMu.RLock()
	defer f.observersMu.RUnlock()
	for _, o := range f.observers {
		o.ObserveEvent(msg)
	}
}
