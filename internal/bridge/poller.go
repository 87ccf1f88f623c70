package bridge

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/wpaif/internal/wpa"
)

const (
	defaultStatusInterval = time.Second
	pollerBuffer          = 8

	// StateCompleted is the wpa_state value of an associated interface.
	StateCompleted = "COMPLETED"

	// FieldWPAState is the STATUS field holding the association state.
	FieldWPAState = "wpa_state"
)

// StatusQuerier is the subset of wpa.Client the poller drives.
type StatusQuerier interface {
	Status(opts ...wpa.SendOption) error
	SignalPoll(opts ...wpa.SendOption) error
}

// Sample is one STATUS or SIGNAL_POLL reading.
type Sample struct {
	Device string
	Verb   wpa.Verb
	Values map[string]string
	Time   time.Time
}

// SampleObserver receives every successful status or signal reading.
type SampleObserver interface {
	ObserveSample(s Sample)
}

// Snapshot is the latest known interface state.
type Snapshot struct {
	Status    map[string]string `json:"status"`
	Signal    map[string]string `json:"signal"`
	StatusAt  time.Time         `json:"status_at,omitzero"`
	SignalAt  time.Time         `json:"signal_at,omitzero"`
	Connected bool              `json:"connected"`
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	// Client answers STATUS and SIGNAL_POLL. Required.
	Client StatusQuerier

	// Publisher receives every successful reading. Required.
	Publisher Publisher

	// Topic is where readings are published. Required.
	Topic string

	// QoS for published readings.
	QoS byte

	// Interval between STATUS queries.
	// Default: 1 second.
	Interval time.Duration

	// Device labels samples handed to observers.
	Device string
}

// Poller queries interface status on a fixed cadence.
//
// Replies come back on the poller's own channel, never through the
// engine, so telemetry keeps flowing while a workflow is waiting.
type Poller struct {
	logHolder

	client    StatusQuerier
	publisher Publisher
	topic     string
	qos       byte
	interval  time.Duration
	device    string

	replies chan wpa.Reply

	snapshot   Snapshot
	snapshotMu sync.RWMutex

	observers   []SampleObserver
	observersMu sync.RWMutex

	started  atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	polls     atomic.Uint64
	published atomic.Uint64
}

// NewPoller creates a poller from options.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if opts.Topic == "" {
		return nil, errors.New("topic is required")
	}

	return &Poller{
		client:    opts.Client,
		publisher: opts.Publisher,
		topic:     opts.Topic,
		qos:       opts.QoS,
		interval:  orDefault(opts.Interval, defaultStatusInterval),
		device:    opts.Device,
		replies:   make(chan wpa.Reply, pollerBuffer),
	}, nil
}

// AddObserver registers o to receive every reading.
func (p *Poller) AddObserver(o SampleObserver) {
	p.observersMu.Lock()
	p.observers = append(p.observers, o)
	p.observersMu.Unlock()
}

// Start begins polling. The first STATUS is issued immediately.
func (p *Poller) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(pollCtx)

	p.logInfo("status poller started", "interval", p.interval)
	return nil
}

// Stop halts polling and waits for the loop to exit. Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		p.logInfo("status poller stopped")
	})
}

// Snapshot returns a copy of the latest readings.
func (p *Poller) Snapshot() Snapshot {
	p.snapshotMu.RLock()
	defer p.snapshotMu.RUnlock()

	s := p.snapshot
	s.Status = maps.Clone(p.snapshot.Status)
	s.Signal = maps.Clone(p.snapshot.Signal)
	return s
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.query(wpa.VerbStatus, p.client.Status)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.query(wpa.VerbStatus, p.client.Status)
		case reply := <-p.replies:
			p.handle(reply)
		}
	}
}

func (p *Poller) query(verb wpa.Verb, send func(opts ...wpa.SendOption) error) {
	p.polls.Add(1)
	if err := send(wpa.WithReplyTo(p.replies)); err != nil {
		p.logDebug("status query not sent", "command", verb, "error", err)
	}
}

func (p *Poller) handle(reply wpa.Reply) {
	if reply.Failed() {
		p.logDebug("status query failed", "command", reply.Verb)
		return
	}

	if err := publishJSON(p.publisher, p.topic, p.qos, false, NewMessage(reply)); err != nil {
		p.logError("publishing status", err, "command", reply.Verb)
	} else {
		p.published.Add(1)
	}

	if reply.Result.Kind != wpa.KindFields {
		return
	}
	values := reply.Result.Fields
	now := time.Now()
	p.record(reply.Verb, values, now)

	p.observersMu.RLock()
	for _, o := range p.observers {
		o.ObserveSample(Sample{Device: p.device, Verb: reply.Verb, Values: maps.Clone(values), Time: now})
	}
	p.observersMu.RUnlock()

	if reply.Verb == wpa.VerbStatus && values[FieldWPAState] == StateCompleted {
		p.query(wpa.VerbSignalPoll, p.client.SignalPoll)
	}
}

func (p *Poller) record(verb wpa.Verb, values map[string]string, at time.Time) {
	p.snapshotMu.Lock()
	defer p.snapshotMu.Unlock()

	switch verb {
	case wpa.VerbStatus:
		p.snapshot.Status = maps.Clone(values)
		p.snapshot.StatusAt = at
		p.snapshot.Connected = values[FieldWPAState] == StateCompleted
		if !p.snapshot.Connected {
			p.snapshot.Signal = nil
		}
	case wpa.VerbSignalPoll:
		p.snapshot.Signal = maps.Clone(values)
		p.snapshot.SignalAt = at
	}
}
