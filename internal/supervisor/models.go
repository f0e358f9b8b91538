package supervisor

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/environ"
)

var (
	ErrStartFailed   = errors.New("process failed to start")
	ErrTimeout       = errors.New("timed out waiting for readiness")
	ErrExitedEarly   = errors.New("process exited before becoming ready")
	ErrInvalidConfig = errors.New("invalid supervisor config")
)

// Command is the invocation to supervise.
type Command interface {
	Binary() string
	Args() []string
	Env() environ.Environment
}

type Config struct {
	// LogPath receives the combined stdout and stderr of the process
	LogPath string `conf:"log_file"`

	// ReadyToken is the pattern that marks the process as ready
	// once it appears in the log
	ReadyToken string `conf:"ready_token"`

	// ReadyText is matched literally when ReadyToken is empty
	ReadyText string `conf:"-"`

	// Timeout is the maximum duration to wait for the ready token
	Timeout time.Duration `conf:"ready_timeout"`

	// PollInterval is the interval at which the log is re-read
	PollInterval time.Duration `conf:"poll_interval"`

	// StopTimeout is the grace period between SIGTERM and SIGKILL
	StopTimeout time.Duration `conf:"stop_timeout"`

	// TailLines is the number of log lines reported on failure
	TailLines int `conf:"tail_lines"`

	// Output, if set, also receives the combined output
	Output io.Writer `conf:"-"`
}

const (
	DefaultLogPath      = "/tmp/concourse.log"
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultStopTimeout  = 10 * time.Second
	DefaultTailLines    = 50
)

func (c Config) withDefaults() Config {
	if c.LogPath == "" {
		c.LogPath = DefaultLogPath
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.TailLines <= 0 {
		c.TailLines = DefaultTailLines
	}
	return c
}

// readiness compiles the ready matcher and returns it together with the
// token as configured, for diagnostics.
func (c Config) readiness() (*regexp.Regexp, string, error) {
	if c.ReadyToken == "" {
		if c.ReadyText == "" {
			return nil, "", fmt.Errorf("%w: no ready token", ErrInvalidConfig)
		}
		return regexp.MustCompile(regexp.QuoteMeta(c.ReadyText)), c.ReadyText, nil
	}

	token, err := regexp.Compile(c.ReadyToken)
	if err != nil {
		return nil, "", fmt.Errorf("%w: ready token: %w", ErrInvalidConfig, err)
	}

	return token, c.ReadyToken, nil
}

// State is the lifecycle state of a supervised process.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateReady
	StateFailed
	StateTimedOut
	StateExitedEarly
	StateExited
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed-out"
	case StateExitedEarly:
		return "exited-early"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type ExitEvent struct {
	// Code is the exit code of the process
	Code *int

	// Signal is the signal that caused the process to exit
	Signal *int
}

// ExitCode maps the event to a shell-style exit code.
func (e ExitEvent) ExitCode() int {
	if e.Code != nil {
		return *e.Code
	}
	if e.Signal != nil {
		return 128 + *e.Signal
	}
	return 1
}

func (e ExitEvent) String() string {
	if e.Code != nil {
		return fmt.Sprintf("exit code %d", *e.Code)
	}
	if e.Signal != nil {
		return fmt.Sprintf("signal %d", *e.Signal)
	}
	return "unknown exit"
}

// TimeoutError is returned when the ready token does not appear in
// time. The process is left running.
type TimeoutError struct {
	Timeout time.Duration
	Token   string
	LogTail string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v: %q not seen after %s; log tail:\n%s", ErrTimeout, e.Token, e.Timeout, e.LogTail)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ExitedEarlyError is returned when the process terminates before the
// ready token appears.
type ExitedEarlyError struct {
	Exit    ExitEvent
	LogTail string
}

func (e *ExitedEarlyError) Error() string {
	return fmt.Sprintf("%v: %s; log tail:\n%s", ErrExitedEarly, e.Exit, e.LogTail)
}

func (e *ExitedEarlyError) Is(target error) bool {
	return target == ErrExitedEarly
}
