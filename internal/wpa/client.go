package wpa

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Defaults for the control-socket poll loop.
const (
	// defaultPollInterval is the readiness wait per loop iteration.
	defaultPollInterval = 10 * time.Millisecond

	// defaultStaleTimeout is how long an in-flight command may go unanswered.
	// With the default poll interval this is 500 empty polls.
	defaultStaleTimeout = 5 * time.Second

	// maxDatagram is the largest reply read from the daemon.
	maxDatagram = 4096

	// socketPrefix names the client's bound socket.
	socketPrefix = "wpaif"
)

// Options configures a Client.
type Options struct {
	// Device is the daemon's control socket, e.g. /var/run/wpa_supplicant/wlan0.
	Device string

	// SocketDir is where the client's own socket is bound. Default: os.TempDir().
	SocketDir string

	// PollInterval is the readiness wait per loop iteration. Default: 10ms.
	PollInterval time.Duration

	// StaleTimeout bounds the wait for a reply before the in-flight command is
	// evicted. Default: 5s.
	StaleTimeout time.Duration

	// ReportStale delivers the failure marker for evicted commands.
	// When false, eviction is silent.
	ReportStale bool
}

// Stats holds operational statistics.
type Stats struct {
	CommandsSent     uint64    `json:"commands_sent"`
	RepliesReceived  uint64    `json:"replies_received"`
	TransmitFailures uint64    `json:"transmit_failures"`
	Evictions        uint64    `json:"evictions"`
	Notifications    uint64    `json:"notifications"`
	Dropped          uint64    `json:"dropped"`
	Queued           int       `json:"queued"`
	Attached         bool      `json:"attached"`
	Running          bool      `json:"running"`
	LastActivity     time.Time `json:"last_activity"`
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Client talks to wpa_supplicant over its control socket.
//
// Commands are queued by any goroutine and transmitted one at a time by a
// single poll loop, which is the only owner of the socket. A command stays
// in flight until its reply arrives, its transmission fails, or it goes
// stale; only then is the next command sent.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Replies and notifications are delivered to channels without blocking
//     the poll loop; a full channel drops the message and counts it.
type Client struct {
	opts      Options
	localPath string
	conn      *net.UnixConn

	queue *Queue

	// State guarded by mu.
	mu         sync.Mutex
	started    bool
	closed     bool
	replySink  chan<- Reply
	notifySink chan<- Notification

	// attached is written only by the poll loop.
	attached atomic.Bool

	// resubscribe is set when a subscription was lost with the socket and
	// ATTACH has not yet been re-queued. Poll loop only.
	resubscribe bool

	done     *closeOnce
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex

	commandsSent     atomic.Uint64
	repliesReceived  atomic.Uint64
	transmitFailures atomic.Uint64
	evictions        atomic.Uint64
	notifications    atomic.Uint64
	dropped          atomic.Uint64
	lastActivity     atomic.Int64
}

// NewClient creates a client for the daemon at opts.Device.
// The socket is not opened until Start.
//
// Parameters:
//   - opts: Client options; zero durations take their defaults
//
// Returns:
//   - *Client: Client ready to Start
//   - error: If no device path is given
func NewClient(opts Options) (*Client, error) {
	if opts.Device == "" {
		return nil, ErrDeviceRequired
	}
	if opts.SocketDir == "" {
		opts.SocketDir = os.TempDir()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.StaleTimeout <= 0 {
		opts.StaleTimeout = defaultStaleTimeout
	}

	name := fmt.Sprintf("%s-%d-%s", socketPrefix, os.Getpid(), uuid.NewString()[:8])

	return &Client{
		opts:      opts,
		localPath: filepath.Join(opts.SocketDir, name),
		queue:     NewQueue(),
		done:      newCloseOnce(),
	}, nil
}

// Start binds the client's socket, connects it to the daemon and starts the
// poll loop.
//
// Returns:
//   - error: ErrAlreadyRunning if started before, ErrClosed after Stop,
//     or ErrDial if the socket cannot be opened
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyRunning
	}

	if err := c.dial(); err != nil {
		return err
	}

	c.started = true
	c.wg.Add(1)
	go c.run()

	c.logInfo("wpa control socket connected", "device", c.opts.Device, "local", c.localPath)
	return nil
}

// Stop ends the poll loop, closes the socket and removes the bound path.
// Pending and in-flight commands are discarded without replies.
//
// Returns:
//   - error: ErrNotRunning if the client was never started
func (c *Client) Stop() error {
	c.mu.Lock()
	started := c.started
	c.closed = true
	c.mu.Unlock()

	if !started {
		// No poll loop will ever finish commands queued before Start.
		c.queue.Clear()
		return ErrNotRunning
	}

	c.stopOnce.Do(func() {
		c.done.Close()
		c.wg.Wait()

		if c.conn != nil {
			c.conn.Close()
		}
		if err := os.Remove(c.localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logError("removing control socket", err, "path", c.localPath)
		}
		c.attached.Store(false)

		c.logInfo("wpa control socket closed", "device", c.opts.Device)
	})
	return nil
}

// Flush blocks until every queued command has been answered, failed or
// evicted, or ctx ends.
func (c *Client) Flush(ctx context.Context) error {
	return c.queue.Drain(ctx)
}

// SetReplySink sets the default destination for replies.
// Commands sent WithReplyTo bypass it.
func (c *Client) SetReplySink(ch chan<- Reply) {
	c.mu.Lock()
	c.replySink = ch
	c.mu.Unlock()
}

// SetNotificationSink sets the destination for unsolicited events received
// while attached.
func (c *Client) SetNotificationSink(ch chan<- Notification) {
	c.mu.Lock()
	c.notifySink = ch
	c.mu.Unlock()
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// LocalPath returns the path of the client's bound socket.
func (c *Client) LocalPath() string {
	return c.localPath
}

// Device returns the daemon's control socket path.
func (c *Client) Device() string {
	return c.opts.Device
}

// IsAttached reports whether the event subscription is active.
func (c *Client) IsAttached() bool {
	return c.attached.Load()
}

// IsRunning reports whether the poll loop is active.
func (c *Client) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.closed
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	var last time.Time
	if ts := c.lastActivity.Load(); ts > 0 {
		last = time.Unix(0, ts)
	}
	return Stats{
		CommandsSent:     c.commandsSent.Load(),
		RepliesReceived:  c.repliesReceived.Load(),
		TransmitFailures: c.transmitFailures.Load(),
		Evictions:        c.evictions.Load(),
		Notifications:    c.notifications.Load(),
		Dropped:          c.dropped.Load(),
		Queued:           c.queue.Len(),
		Attached:         c.attached.Load(),
		Running:          c.IsRunning(),
		LastActivity:     last,
	}
}

// Send queues cmd. It never blocks.
func (c *Client) Send(cmd Command) error {
	// Pushing under mu orders every accepted command before Stop marks the
	// client closed, so the poll loop's shutdown discard always sees it.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.queue.Push(cmd)
	return nil
}

// Do sends cmd and waits for its reply.
//
// A silently evicted command never replies, so callers should bound ctx.
func (c *Client) Do(ctx context.Context, cmd Command) (Reply, error) {
	ch := make(chan Reply, 1)
	cmd.ReplyTo = ch
	if err := c.Send(cmd); err != nil {
		return Reply{}, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("waiting for %s reply: %w", cmd.Verb, ctx.Err())
	}
}

// Ping checks the daemon answers PONG.
func (c *Client) Ping(ctx context.Context) error {
	reply, err := c.Do(ctx, NewCommand(VerbPing, nil))
	if err != nil {
		return err
	}
	if reply.Failed() {
		return ErrCommandFailed
	}
	if reply.Result.Text != TokenPong {
		return fmt.Errorf("%w: %q", ErrUnexpectedReply, reply.Result.Text)
	}
	return nil
}

func (c *Client) send(verb Verb, args []string, opts []SendOption) error {
	return c.Send(NewCommand(verb, args, opts...))
}

// Status queues STATUS.
func (c *Client) Status(opts ...SendOption) error {
	return c.send(VerbStatus, nil, opts)
}

// SignalPoll queues SIGNAL_POLL.
func (c *Client) SignalPoll(opts ...SendOption) error {
	return c.send(VerbSignalPoll, nil, opts)
}

// Scan queues SCAN.
func (c *Client) Scan(opts ...SendOption) error {
	return c.send(VerbScan, nil, opts)
}

// ScanResults queues SCAN_RESULTS.
func (c *Client) ScanResults(opts ...SendOption) error {
	return c.send(VerbScanResults, nil, opts)
}

// ListNetworks queues LIST_NETWORKS.
func (c *Client) ListNetworks(opts ...SendOption) error {
	return c.send(VerbListNetworks, nil, opts)
}

// AddNetwork queues ADD_NETWORK. The reply text is the new network id.
func (c *Client) AddNetwork(opts ...SendOption) error {
	return c.send(VerbAddNetwork, nil, opts)
}

// RemoveNetwork queues REMOVE_NETWORK for id.
func (c *Client) RemoveNetwork(id string, opts ...SendOption) error {
	return c.send(VerbRemoveNetwork, []string{id}, opts)
}

// SelectNetwork queues SELECT_NETWORK for id.
func (c *Client) SelectNetwork(id string, opts ...SendOption) error {
	return c.send(VerbSelectNetwork, []string{id}, opts)
}

// EnableNetwork queues ENABLE_NETWORK for id.
func (c *Client) EnableNetwork(id string, opts ...SendOption) error {
	return c.send(VerbEnableNetwork, []string{id}, opts)
}

// DisableNetwork queues DISABLE_NETWORK for id.
func (c *Client) DisableNetwork(id string, opts ...SendOption) error {
	return c.send(VerbDisableNetwork, []string{id}, opts)
}

// SetNetwork queues SET_NETWORK id param "value".
func (c *Client) SetNetwork(id, param, value string, opts ...SendOption) error {
	return c.send(VerbSetNetwork, []string{id, param, quote(value)}, opts)
}

// Attach queues ATTACH. Notifications are delivered once the daemon replies OK.
func (c *Client) Attach(opts ...SendOption) error {
	return c.send(VerbAttach, nil, opts)
}

// Detach queues DETACH.
func (c *Client) Detach(opts ...SendOption) error {
	return c.send(VerbDetach, nil, opts)
}

// dial binds the local path and connects to the daemon.
func (c *Client) dial() error {
	// A leftover socket from a previous run with the same name blocks bind.
	_ = os.Remove(c.localPath)

	laddr := &net.UnixAddr{Name: c.localPath, Net: "unixgram"}
	raddr := &net.UnixAddr{Name: c.opts.Device, Net: "unixgram"}

	conn, err := net.DialUnix("unixgram", laddr, raddr)
	if err != nil {
		_ = os.Remove(c.localPath)
		return fmt.Errorf("%w: %w", ErrDial, err)
	}
	c.conn = conn
	return nil
}

// redial replaces the socket after a transmit failure. Runs on the poll loop.
//
// A new socket has no event subscription. If the client was attached, an
// ATTACH is queued ahead of everything else once the socket is back.
func (c *Client) redial() {
	if c.attached.Swap(false) {
		c.resubscribe = true
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if err := c.dial(); err != nil {
		c.logError("re-opening control socket", err, "device", c.opts.Device)
		return
	}
	c.logInfo("wpa control socket re-opened", "device", c.opts.Device)

	if c.resubscribe {
		c.resubscribe = false
		// The reply lands in a private buffer so sinks never see a
		// command nobody sent.
		c.queue.PushFront(NewCommand(VerbAttach, nil, WithReplyTo(make(chan Reply, 1))))
		c.logInfo("restoring event subscription", "device", c.opts.Device)
	}
}

// run is the poll loop. It owns the socket and the in-flight slot.
func (c *Client) run() {
	defer c.wg.Done()

	staleLimit := int(c.opts.StaleTimeout / c.opts.PollInterval)
	if staleLimit < 1 {
		staleLimit = 1
	}

	buf := make([]byte, maxDatagram)
	var inflight *Command
	polls := 0

	for {
		select {
		case <-c.done.Done():
			c.discard(inflight)
			return
		default:
		}

		if inflight == nil {
			if cmd, ok := c.queue.TryPop(); ok {
				polls = 0
				if err := c.transmit(cmd); err != nil {
					c.transmitFailures.Add(1)
					c.logError("sending command", err, "command", cmd.Verb)
					if cmd.Verb == VerbAttach {
						c.resubscribe = true
					}
					// Redial first so a caller reacting to the FAIL sees
					// the new socket's state.
					c.redial()
					c.deliver(cmd, Reply{Verb: cmd.Verb, Args: cmd.Args, Result: Fail()})
					c.queue.Done()
				} else {
					inflight = &cmd
				}
			}
		}

		n, err := c.read(buf)
		if err != nil {
			if inflight != nil {
				polls++
				if polls >= staleLimit {
					c.evict(*inflight)
					inflight = nil
				}
			}
			continue
		}

		c.lastActivity.Store(time.Now().UnixNano())
		text := string(buf[:n])

		if len(text) > 0 && text[0] == '<' {
			c.notify(text)
			continue
		}

		if inflight == nil {
			c.logDebug("discarding reply with no command in flight", "reply", text)
			continue
		}

		c.complete(*inflight, text)
		inflight = nil
	}
}

// transmit writes cmd to the daemon.
func (c *Client) transmit(cmd Command) error {
	if c.conn == nil {
		return errors.New("control socket not open")
	}
	if _, err := c.conn.Write([]byte(cmd.Payload())); err != nil {
		return err
	}
	c.commandsSent.Add(1)
	c.logDebug("command sent", "command", cmd.Verb)
	return nil
}

// read waits up to one poll interval for a datagram.
func (c *Client) read(buf []byte) (int, error) {
	if c.conn == nil {
		select {
		case <-c.done.Done():
		case <-time.After(c.opts.PollInterval):
		}
		return 0, errors.New("control socket not open")
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PollInterval)); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			// Errors other than the deadline (e.g. the daemon went away)
			// must not spin the loop.
			c.logDebug("control socket read failed", "error", err)
			select {
			case <-c.done.Done():
			case <-time.After(c.opts.PollInterval):
			}
		}
		return 0, err
	}
	return n, nil
}

// complete parses the in-flight command's reply and delivers it.
func (c *Client) complete(cmd Command, text string) {
	c.repliesReceived.Add(1)
	reply := Reply{Verb: cmd.Verb, Args: cmd.Args, Result: ParseReply(cmd.Verb, text)}

	if !reply.Failed() && reply.Result.Text == TokenOK {
		switch cmd.Verb {
		case VerbAttach:
			c.attached.Store(true)
		case VerbDetach:
			c.attached.Store(false)
		}
	}

	c.deliver(cmd, reply)
	c.queue.Done()
}

// evict abandons a command that never got a reply.
func (c *Client) evict(cmd Command) {
	c.evictions.Add(1)
	c.logWarn("evicting stale command", "command", cmd.Verb, "timeout", c.opts.StaleTimeout)
	if c.opts.ReportStale {
		c.deliver(cmd, Reply{Verb: cmd.Verb, Args: cmd.Args, Result: Fail()})
	}
	c.queue.Done()
}

// discard finishes every outstanding command on shutdown.
func (c *Client) discard(inflight *Command) {
	if inflight != nil {
		c.queue.Done()
	}
	if n := c.queue.Clear(); n > 0 {
		c.logDebug("discarded queued commands", "count", n)
	}
}

// notify forwards an event line if attached.
func (c *Client) notify(text string) {
	if !c.attached.Load() {
		return
	}
	c.notifications.Add(1)

	c.mu.Lock()
	sink := c.notifySink
	c.mu.Unlock()
	if sink == nil {
		return
	}

	select {
	case sink <- ParseNotification(text):
	default:
		c.dropped.Add(1)
		c.logWarn("notification dropped, sink full")
	}
}

// deliver hands a reply to the command's sink without blocking.
func (c *Client) deliver(cmd Command, reply Reply) {
	sink := cmd.ReplyTo
	if sink == nil {
		c.mu.Lock()
		sink = c.replySink
		c.mu.Unlock()
	}
	if sink == nil {
		return
	}

	select {
	case sink <- reply:
	default:
		c.dropped.Add(1)
		c.logWarn("reply dropped, sink full", "command", cmd.Verb)
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
