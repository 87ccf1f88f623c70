package supplicant

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the lifecycle state of a supervised process.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateFailed   State = "failed"
)

const (
	defaultRestartDelay        = 5 * time.Second
	defaultMaxRestartDelay     = 5 * time.Minute
	defaultGracefulTimeout     = 10 * time.Second
	defaultHealthCheckInterval = 30 * time.Second
	healthCheckTimeout         = 5 * time.Second
	maxHealthFailures          = 3
	killWait                   = 5 * time.Second
)

// ProcessConfig describes a supervised child process.
type ProcessConfig struct {
	// Name identifies the process in logs.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are passed to the binary.
	Args []string

	// RestartOnFailure restarts the process when it exits on its own.
	RestartOnFailure bool

	// RestartDelay is the wait before the first restart; it doubles on
	// each further attempt up to MaxRestartDelay.
	RestartDelay time.Duration

	// MaxRestartDelay caps the backoff.
	MaxRestartDelay time.Duration

	// MaxRestartAttempts limits restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is the wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheck is run every HealthCheckInterval while the process runs.
	// Three consecutive failures kill the process.
	HealthCheck func(ctx context.Context) error

	// HealthCheckInterval is how often HealthCheck runs.
	HealthCheckInterval time.Duration

	// OnStart is called after each successful start.
	OnStart func(pid int)

	// OnExit is called whenever the process exits. err is nil for a
	// requested stop.
	OnExit func(err error)
}

// Logger defines the logging interface for supervision.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ProcessStats describes a supervised process.
type ProcessStats struct {
	Name         string `json:"name"`
	State        State  `json:"state"`
	PID          int    `json:"pid,omitempty"`
	UptimeSec    int64  `json:"uptime_seconds,omitempty"`
	RestartCount int    `json:"restart_count"`
	LastError    string `json:"last_error,omitempty"`
}

// Process runs one child process and keeps it alive.
type Process struct {
	cfg    ProcessConfig
	logger Logger

	mu           sync.RWMutex
	cmd          *exec.Cmd
	exited       chan error
	state        State
	restartCount int
	lastError    error
	startTime    time.Time

	stopping chan struct{}
	done     chan struct{}
}

// NewProcess creates a process supervisor. Zero durations take defaults.
func NewProcess(cfg ProcessConfig) *Process {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = defaultMaxRestartDelay
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = defaultHealthCheckInterval
	}

	return &Process{
		cfg:    cfg,
		logger: noopLogger{},
		state:  StateStopped,
	}
}

// SetLogger sets the logger. Passing nil disables logging.
func (p *Process) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// Start launches the process and a goroutine that restarts it on failure.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateRunning || p.state == StateStarting {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, p.cfg.Name)
	}
	p.state = StateStarting
	p.stopping = make(chan struct{})
	p.done = make(chan struct{})
	p.mu.Unlock()

	if err := p.spawn(ctx); err != nil {
		p.mu.Lock()
		p.state = StateFailed
		p.lastError = err
		close(p.done)
		p.mu.Unlock()
		return err
	}

	go p.monitor(ctx)
	return nil
}

func (p *Process) spawn(ctx context.Context) error {
	p.logger.Info("starting process", "name", p.cfg.Name, "binary", p.cfg.Binary, "args", p.cfg.Args)

	cmd := exec.CommandContext(ctx, p.cfg.Binary, p.cfg.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", p.cfg.Name, err)
	}

	var output sync.WaitGroup
	output.Add(2)
	go p.captureOutput(&output, "stdout", stdout)
	go p.captureOutput(&output, "stderr", stderr)

	// Wait must not run until the pipes are drained.
	exited := make(chan error, 1)
	go func() {
		output.Wait()
		exited <- cmd.Wait()
	}()

	p.mu.Lock()
	p.cmd = cmd
	p.exited = exited
	p.state = StateRunning
	p.startTime = time.Now()
	p.mu.Unlock()

	pid := cmd.Process.Pid
	p.logger.Info("process started", "name", p.cfg.Name, "pid", pid)
	if p.cfg.OnStart != nil {
		p.cfg.OnStart(pid)
	}
	return nil
}

func (p *Process) captureOutput(wg *sync.WaitGroup, stream string, r io.Reader) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Debug("process output", "name", p.cfg.Name, "stream", stream, "line", scanner.Text())
	}
}

// wait blocks until the process exits, ctx ends, or health checks fail
// repeatedly (in which case the process is killed).
func (p *Process) wait(ctx context.Context, cmd *exec.Cmd, exited <-chan error) error {
	if p.cfg.HealthCheck == nil {
		select {
		case err := <-exited:
			return err
		case <-ctx.Done():
			return <-exited
		}
	}

	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case err := <-exited:
			return err

		case <-ctx.Done():
			return <-exited

		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := p.cfg.HealthCheck(checkCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					p.logger.Info("health check recovered", "name", p.cfg.Name, "previous_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			p.logger.Warn("health check failed", "name", p.cfg.Name, "error", err, "consecutive_failures", failures)
			if failures < maxHealthFailures {
				continue
			}

			p.logger.Error("health check failed repeatedly, killing process", "name", p.cfg.Name, "failures", failures)
			if cmd.Process != nil {
				cmd.Process.Kill() //nolint:errcheck // exit is observed below
			}
			select {
			case <-exited:
				return fmt.Errorf("killed after %d failed health checks", failures)
			case <-time.After(killWait):
				return errors.New("process did not exit after kill")
			}
		}
	}
}

func (p *Process) monitor(ctx context.Context) {
	p.mu.RLock()
	done, stopping := p.done, p.stopping
	p.mu.RUnlock()
	defer close(done)

	for {
		p.mu.RLock()
		cmd, exited := p.cmd, p.exited
		p.mu.RUnlock()

		err := p.wait(ctx, cmd, exited)

		if p.stopRequested(stopping) {
			p.setState(StateStopped, nil)
			p.logger.Info("process stopped as requested", "name", p.cfg.Name)
			if p.cfg.OnExit != nil {
				p.cfg.OnExit(nil)
			}
			return
		}

		if err == nil {
			err = errors.New("exited with status 0")
		}
		p.logger.Warn("process exited unexpectedly", "name", p.cfg.Name, "error", err)
		p.setState(StateFailed, err)
		if p.cfg.OnExit != nil {
			p.cfg.OnExit(err)
		}

		if !p.cfg.RestartOnFailure || ctx.Err() != nil {
			return
		}

		attempt, ok := p.nextAttempt()
		if !ok {
			return
		}

		delay := p.backoff(attempt)
		p.logger.Info("restarting process", "name", p.cfg.Name, "attempt", attempt, "delay", delay)

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopping:
				p.setState(StateStopped, nil)
				return
			case <-time.After(delay):
			}

			spawnErr := p.spawn(ctx)
			if spawnErr == nil {
				break
			}
			p.logger.Error("failed to restart process", "name", p.cfg.Name, "error", spawnErr)
			p.setState(StateFailed, spawnErr)

			if attempt, ok = p.nextAttempt(); !ok {
				return
			}
			delay = p.backoff(attempt)
		}
	}
}

// nextAttempt counts a restart, or reports false once the limit is reached.
func (p *Process) nextAttempt() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.MaxRestartAttempts > 0 && p.restartCount >= p.cfg.MaxRestartAttempts {
		p.logger.Error("max restart attempts reached", "name", p.cfg.Name, "attempts", p.restartCount)
		return 0, false
	}
	p.restartCount++
	return p.restartCount, true
}

// backoff returns RestartDelay doubled for each attempt after the first,
// capped at MaxRestartDelay.
func (p *Process) backoff(attempt int) time.Duration {
	delay := p.cfg.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.cfg.MaxRestartDelay {
			return p.cfg.MaxRestartDelay
		}
	}
	return min(delay, p.cfg.MaxRestartDelay)
}

func (p *Process) stopRequested(stopping <-chan struct{}) bool {
	select {
	case <-stopping:
		return true
	default:
		return false
	}
}

func (p *Process) setState(state State, err error) {
	p.mu.Lock()
	p.state = state
	if err != nil {
		p.lastError = err
	}
	p.mu.Unlock()
}

// Stop sends SIGTERM to the process group, waits GracefulTimeout, then
// sends SIGKILL. It also cancels any pending restart.
func (p *Process) Stop() error {
	p.mu.Lock()
	if p.stopping == nil || p.stopRequested(p.stopping) {
		p.mu.Unlock()
		return nil
	}
	close(p.stopping)
	cmd, done, state := p.cmd, p.done, p.state
	p.mu.Unlock()

	if state != StateRunning || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	p.logger.Info("stopping process", "name", p.cfg.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("failed to send SIGTERM", "name", p.cfg.Name, "error", err)
	}

	select {
	case <-done:
		p.logger.Info("process stopped gracefully", "name", p.cfg.Name)
		return nil
	case <-time.After(p.cfg.GracefulTimeout):
		p.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", p.cfg.Name, "timeout", p.cfg.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s: %w", p.cfg.Name, err)
	}
	<-done
	p.logger.Info("process killed", "name", p.cfg.Name)
	return nil
}

// Done is closed when supervision ends for good.
func (p *Process) Done() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.done
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// IsRunning reports whether the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// LastError returns the error from the most recent unexpected exit.
func (p *Process) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastError
}

// PID returns the process id, or 0 if never started.
func (p *Process) PID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// Stats returns a snapshot of the process state.
func (p *Process) Stats() ProcessStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := ProcessStats{
		Name:         p.cfg.Name,
		State:        p.state,
		RestartCount: p.restartCount,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		stats.PID = p.cmd.Process.Pid
	}
	if p.state == StateRunning {
		stats.UptimeSec = int64(time.Since(p.startTime).Seconds())
	}
	if p.lastError != nil {
		stats.LastError = p.lastError.Error()
	}
	return stats
}
