package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var ErrKillTimeout = errors.New("timed out waiting for process to exit")

// outputWaitDelay bounds how long output is copied after the process
// exited. Descendants that inherited the output keep it open forever.
const outputWaitDelay = time.Second

// Process is a started child process whose combined output is written
// to a log file.
type Process struct {
	pid     int
	logPath string
	state   atomic.Int32

	// termination is closed once the process has exited and its
	// output has been flushed to the log file
	termination chan struct{}
	exit        ExitEvent

	log *zap.Logger
}

func startProc(command Command, config Config, log *zap.Logger) (*Process, error) {
	p := &Process{
		logPath:     config.LogPath,
		termination: make(chan struct{}),
	}
	p.setState(StateStarting)

	if err := os.MkdirAll(filepath.Dir(config.LogPath), 0o755); err != nil {
		p.setState(StateFailed)
		return nil, fmt.Errorf("%w: create log dir: %w", ErrStartFailed, err)
	}

	logFile, err := os.OpenFile(config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		p.setState(StateFailed)
		return nil, fmt.Errorf("%w: open log file: %w", ErrStartFailed, err)
	}

	var output io.Writer = logFile
	if config.Output != nil {
		output = io.MultiWriter(logFile, config.Output)
	}

	cmd := exec.Command(command.Binary(), command.Args()...)
	cmd.Env = command.Env().List()
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = outputWaitDelay

	if err := cmd.Start(); err != nil {
		logFile.Close()
		p.setState(StateFailed)
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	p.pid = cmd.Process.Pid
	p.log = log.Named("proc").With(zap.Int("pid", p.pid))
	p.setState(StateRunning)

	go func() {
		// block until the process exits and its output is copied, or
		// until outputWaitDelay passed after the exit
		err := cmd.Wait()
		if errors.Is(err, exec.ErrWaitDelay) {
			p.log.Debug("output still held open after exit", zap.Error(err))
		}

		if closeErr := logFile.Close(); closeErr != nil {
			p.log.Warn("close log file failed", zap.Error(closeErr))
		}

		p.exit = getExitEvent(cmd.ProcessState)

		close(p.termination)
	}()

	return p, nil
}

// Pid returns the process id of the child.
func (p *Process) Pid() int {
	return p.pid
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// LogPath returns the path of the combined output log.
func (p *Process) LogPath() string {
	return p.logPath
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.termination
}

// Wait blocks until the process exits.
func (p *Process) Wait() ExitEvent {
	<-p.termination
	return p.exit
}

// Terminate sends SIGTERM to the process group and waits up to
// timeout for it to exit.
func (p *Process) Terminate(timeout time.Duration) error {
	select {
	case <-p.termination:
		p.log.Debug("process already terminated")
		return nil
	default:
	}

	p.kill(syscall.SIGTERM)

	return p.waitForTermination(timeout)
}

// Kill sends SIGKILL to the process group and waits up to timeout for
// it to exit.
func (p *Process) Kill(timeout time.Duration) error {
	select {
	case <-p.termination:
		p.log.Debug("process already terminated")
		return nil
	default:
	}

	p.kill(syscall.SIGKILL)

	return p.waitForTermination(timeout)
}

// Stop terminates the process, escalating to SIGKILL when it does not
// exit within timeout.
func (p *Process) Stop(timeout time.Duration) ExitEvent {
	if err := p.Terminate(timeout); errors.Is(err, ErrKillTimeout) {
		p.log.Warn("process did not exit in time, killing", zap.Duration("timeout", timeout))
		_ = p.Kill(0)
	}

	return p.Wait()
}

func (p *Process) setState(state State) {
	p.state.Store(int32(state))
}

func (p *Process) waitForTermination(timeout time.Duration) error {
	// if timeout is < 0, don't wait for the process to exit
	if timeout < 0 {
		return nil
	}

	// if timeout is 0, wait indefinitely
	if timeout == 0 {
		<-p.termination
		return nil
	}

	select {
	case <-p.termination:
		return nil
	case <-time.After(timeout):
		return ErrKillTimeout
	}
}

func (p *Process) kill(signal syscall.Signal) {
	log := p.log.With(zap.Stringer("signal", signal))

	log.Info("sending signal")

	// best effort, ignore errors
	if err := p.sendSignal(signal); err != nil {
		log.Error("signal failed", zap.Error(err))
	}
}

// sendSignal signals the whole process group. The child leads its own
// group, so the group id is its pid, which also holds after the child
// itself was reaped while descendants remain.
func (p *Process) sendSignal(signal syscall.Signal) error {
	return syscall.Kill(-p.pid, signal)
}

func getExitEvent(state *os.ProcessState) ExitEvent {
	var cell int

	if state == nil {
		return ExitEvent{}
	}

	if status, ok := state.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			cell = int(status.Signal())
			return ExitEvent{Signal: &cell}
		}
		cell = status.ExitStatus()
		return ExitEvent{Code: &cell}
	}

	cell = state.ExitCode()
	return ExitEvent{Code: &cell}
}
