package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/wpaif/internal/wpa"
)

const (
	defaultResponseTimeout  = 10 * time.Second
	defaultScanTimeout      = 10 * time.Second
	defaultScanPollInterval = 500 * time.Millisecond
	defaultQueueSize        = 32
	responseBuffer          = 16
)

// Commander is the subset of wpa.Client the engine drives.
type Commander interface {
	Scan(opts ...wpa.SendOption) error
	ScanResults(opts ...wpa.SendOption) error
	ListNetworks(opts ...wpa.SendOption) error
	AddNetwork(opts ...wpa.SendOption) error
	RemoveNetwork(id string, opts ...wpa.SendOption) error
	SelectNetwork(id string, opts ...wpa.SendOption) error
	EnableNetwork(id string, opts ...wpa.SendOption) error
	DisableNetwork(id string, opts ...wpa.SendOption) error
	SetNetwork(id, param, value string, opts ...wpa.SendOption) error
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Client sends commands to wpa_supplicant. Required.
	Client Commander

	// Publisher receives workflow results. Required.
	Publisher Publisher

	// Topic is where results are published. Required.
	Topic string

	// QoS for result messages.
	QoS byte

	// ResponseTimeout bounds the wait for each command's reply.
	// Default: 10 seconds.
	ResponseTimeout time.Duration

	// ScanTimeout bounds the whole scan workflow.
	// Default: 10 seconds.
	ScanTimeout time.Duration

	// ScanPollInterval is the pause between scan-results polls.
	// Default: 500ms.
	ScanPollInterval time.Duration

	// QueueSize is the number of requests that may wait for the worker.
	// Default: 32.
	QueueSize int
}

// EngineStats counts engine activity.
type EngineStats struct {
	RequestsAccepted uint64 `json:"requests_accepted"`
	RequestsRejected uint64 `json:"requests_rejected"`
	ResultsPublished uint64 `json:"results_published"`
	Failures         uint64 `json:"failures"`
	Timeouts         uint64 `json:"timeouts"`
	PublishErrors    uint64 `json:"publish_errors"`
}

// Engine runs one workflow at a time on behalf of gateway requests.
//
// Every command a workflow issues carries the engine's response channel,
// so replies come back to the worker that is waiting for them. The same
// channel can be installed as the client's default sink; anything that
// arrives there unasked is discarded before the next step.
//
// Thread Safety:
//   - Submit and HandleMessage are safe for concurrent use.
//   - Workflows run sequentially on a single worker goroutine.
type Engine struct {
	logHolder

	client    Commander
	publisher Publisher
	topic     string
	qos       byte

	responseTimeout  time.Duration
	scanTimeout      time.Duration
	scanPollInterval time.Duration

	requests  chan Request
	responses chan wpa.Reply

	observers   []ResultObserver
	observersMu sync.RWMutex

	started  atomic.Bool
	running  atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	accepted      atomic.Uint64
	rejected      atomic.Uint64
	published     atomic.Uint64
	failures      atomic.Uint64
	timeouts      atomic.Uint64
	publishErrors atomic.Uint64
}

// NewEngine creates an engine from options.
//
// Parameters:
//   - opts: Engine configuration
//
// Returns:
//   - *Engine: Ready to start
//   - error: If a required option is missing
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if opts.Topic == "" {
		return nil, errors.New("topic is required")
	}

	e := &Engine{
		client:           opts.Client,
		publisher:        opts.Publisher,
		topic:            opts.Topic,
		qos:              opts.QoS,
		responseTimeout:  orDefault(opts.ResponseTimeout, defaultResponseTimeout),
		scanTimeout:      orDefault(opts.ScanTimeout, defaultScanTimeout),
		scanPollInterval: orDefault(opts.ScanPollInterval, defaultScanPollInterval),
		responses:        make(chan wpa.Reply, responseBuffer),
	}

	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	e.requests = make(chan Request, size)

	return e, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start launches the worker goroutine.
//
// Parameters:
//   - ctx: Cancelling it stops the worker, aborting any workflow in progress
//
// Returns:
//   - error: ErrAlreadyRunning if called twice
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	workerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running.Store(true)

	e.wg.Add(1)
	go e.worker(workerCtx)

	e.logInfo("engine started", "topic", e.topic)
	return nil
}

// Stop cancels the worker and waits for it to exit. Requests still queued
// are dropped. Safe to call multiple times.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.running.Store(false)
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()

		if n := len(e.requests); n > 0 {
			e.logWarn("dropping queued requests", "count", n)
		}
		e.logInfo("engine stopped")
	})
}

// Responses returns the channel workflow replies are delivered to. It is
// meant to be installed with wpa.Client.SetReplySink.
func (e *Engine) Responses() chan<- wpa.Reply {
	return e.responses
}

// AddObserver registers o to receive every published result.
func (e *Engine) AddObserver(o ResultObserver) {
	e.observersMu.Lock()
	e.observers = append(e.observers, o)
	e.observersMu.Unlock()
}

// HandleMessage is an MQTT message handler for the action topic.
func (e *Engine) HandleMessage(_ string, payload []byte) error {
	return e.Submit(payload)
}

// Submit validates an action payload and queues it for the worker.
//
// Returns:
//   - error: ErrInvalidPayload, ErrUnknownCommand, ErrNotRunning or
//     ErrQueueFull. Rejected requests produce no result message.
func (e *Engine) Submit(payload []byte) error {
	req, err := ParseRequest(payload)
	if err != nil {
		e.rejected.Add(1)
		return err
	}
	return e.Enqueue(req)
}

// Enqueue queues an already decoded request.
func (e *Engine) Enqueue(req Request) error {
	if !e.running.Load() {
		e.rejected.Add(1)
		return ErrNotRunning
	}

	select {
	case e.requests <- req:
		e.accepted.Add(1)
		e.logDebug("request queued", "command", req.Command)
		return nil
	default:
		e.rejected.Add(1)
		return ErrQueueFull
	}
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		RequestsAccepted: e.accepted.Load(),
		RequestsRejected: e.rejected.Load(),
		ResultsPublished: e.published.Load(),
		Failures:         e.failures.Load(),
		Timeouts:         e.timeouts.Load(),
		PublishErrors:    e.publishErrors.Load(),
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.requests:
			msg := e.dispatch(ctx, req)
			e.publish(msg)
		}
	}
}

func (e *Engine) publish(msg Message) {
	if msg.Failed() {
		e.failures.Add(1)
	}

	if err := publishJSON(e.publisher, e.topic, e.qos, false, msg); err != nil {
		e.publishErrors.Add(1)
		e.logError("publishing result", err, "command", msg.Command)
	} else {
		e.published.Add(1)
	}

	e.observersMu.RLock()
	defer e.observersMu.RUnlock()
	for _, o := range e.observers {
		o.ObserveResult(msg)
	}
}
