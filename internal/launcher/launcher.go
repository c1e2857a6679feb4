// Package launcher starts the single HTTP-serving process of a container:
// it resolves PORT, checks the address can be bound, runs the ASGI server in
// the foreground and exits with it.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHost          = "0.0.0.0"
	defaultProbeInterval = 100 * time.Millisecond
	defaultStopTimeout   = 10 * time.Second
)

var ErrAlreadyStarted = errors.New("launcher already started")

// ExitError carries the exit code the launcher process should terminate with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Options configures a Launcher. Zero values fall back to the defaults of a
// uvicorn-served main:app on 0.0.0.0:8000.
type Options struct {
	App         string
	Host        string
	Server      []string
	DefaultPort int
	Getenv      func(string) string
	// Environ is the base environment of the server process.
	Environ       []string
	Stdout        io.Writer
	Stderr        io.Writer
	Logger        logrus.FieldLogger
	ProbeInterval time.Duration
	StopTimeout   time.Duration
}

// ParseServerCommand splits a configured server command line into argv.
func ParseServerCommand(s string) ([]string, error) {
	argv, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid server command %q: %w", s, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("invalid server command: empty")
	}
	return argv, nil
}

// Launcher runs one server process and tracks its lifecycle.
type Launcher struct {
	opts Options

	mu      sync.Mutex
	started bool
	state   domain.LaunchState
	port    int
	running chan struct{}
}

func New(opts Options) *Launcher {
	if opts.App == "" {
		opts.App = domain.DefaultAppReference
	}
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if len(opts.Server) == 0 {
		opts.Server = []string{domain.DefaultServer}
	}
	if opts.DefaultPort == 0 {
		opts.DefaultPort = domain.DefaultPort
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	return &Launcher{opts: opts, running: make(chan struct{})}
}

// State returns the current lifecycle state.
func (l *Launcher) State() domain.LaunchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Port returns the resolved port, or 0 before resolution.
func (l *Launcher) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// Running is closed once the server accepts connections.
func (l *Launcher) Running() <-chan struct{} {
	return l.running
}

// Run blocks until the server process exits. Cancelling ctx asks the server
// to stop with SIGTERM and kills it after the stop timeout. A clean exit, or
// an exit requested through ctx, returns nil; everything else is an *ExitError.
func (l *Launcher) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.mu.Unlock()

	port, err := ResolvePort(l.opts.Getenv, l.opts.DefaultPort)
	if err != nil {
		return l.fail(2, err)
	}
	ref, err := domain.ParseAppRef(l.opts.App)
	if err != nil {
		return l.fail(2, err)
	}
	l.mu.Lock()
	l.port = port
	l.mu.Unlock()

	addr := net.JoinHostPort(l.opts.Host, strconv.Itoa(port))
	if err := checkBindable(addr); err != nil {
		return l.fail(1, fmt.Errorf("cannot bind %s: %w", addr, err))
	}

	argv := append(append([]string{}, l.opts.Server...), ref.String(), "--host", l.opts.Host, "--port", strconv.Itoa(port))
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(append([]string{}, l.opts.Environ...),
		PortEnv+"="+strconv.Itoa(port),
		"PYTHONUNBUFFERED=1",
		"PYTHONDONTWRITEBYTECODE=1",
	)
	cmd.Stdout = l.opts.Stdout
	cmd.Stderr = l.opts.Stderr

	log := l.opts.Logger.WithFields(logrus.Fields{"app": ref.String(), "addr": addr})
	log.WithField("argv", argv).Info("starting server")
	if err := cmd.Start(); err != nil {
		return l.fail(127, fmt.Errorf("failed to start server: %w", err))
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	probeCtx, cancelProbe := context.WithCancel(ctx)
	defer cancelProbe()
	go l.probe(probeCtx, dialAddr(l.opts.Host, port), log)

	stopping := false
	select {
	case err = <-done:
	case <-ctx.Done():
		stopping = true
		log.Info("stopping server")
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case err = <-done:
		case <-time.After(l.opts.StopTimeout):
			log.Warn("server did not stop in time, killing")
			_ = cmd.Process.Kill()
			err = <-done
		}
	}
	cancelProbe()

	prev := l.setState(domain.StateTerminated)
	log = log.WithField("previous_state", prev.String())
	if err == nil {
		log.Info("server exited")
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if stopping && ee.ExitCode() == -1 {
			log.Info("server stopped")
			return nil
		}
		code := ee.ExitCode()
		if code <= 0 {
			code = 1
		}
		log.WithField("code", code).Error("server exited with error")
		return &ExitError{Code: code, Err: err}
	}
	return &ExitError{Code: 1, Err: err}
}

func (l *Launcher) fail(code int, err error) error {
	l.setState(domain.StateTerminated)
	l.opts.Logger.WithError(err).Error("launch failed")
	return &ExitError{Code: code, Err: err}
}

func (l *Launcher) setState(s domain.LaunchState) domain.LaunchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.state
	l.state = s
	return prev
}

// probe marks the launcher RUNNING on the first accepted connection.
func (l *Launcher) probe(ctx context.Context, addr string, log logrus.FieldLogger) {
	t := time.NewTicker(l.opts.ProbeInterval)
	defer t.Stop()
	var d net.Dialer
	for {
		dctx, cancel := context.WithTimeout(ctx, l.opts.ProbeInterval)
		conn, err := d.DialContext(dctx, "tcp", addr)
		cancel()
		if err == nil {
			conn.Close()
			l.mu.Lock()
			if l.state == domain.StateNotStarted {
				l.state = domain.StateRunning
				close(l.running)
				log.Info("server is accepting connections")
			}
			l.mu.Unlock()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func checkBindable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

// Wildcard addresses are not dialable everywhere; probe through loopback.
func dialAddr(host string, port int) string {
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
