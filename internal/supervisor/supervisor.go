// Package supervisor starts the target binary detached from the
// entrypoint, sends its output to a log file and waits for a readiness
// token to appear in that log.
package supervisor

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Launch starts command without waiting for readiness.
func Launch(command Command, config Config, log *zap.Logger) (*Process, error) {
	config = config.withDefaults()

	log.Info("starting process",
		zap.String("binary", command.Binary()),
		zap.Strings("args", command.Args()),
		zap.String("log_file", config.LogPath),
	)

	return startProc(command, config, log)
}

// LaunchAndWait starts command and polls its log until the ready token
// appears. On timeout the process keeps running and is returned
// together with a *TimeoutError. If it exits first, the error is an
// *ExitedEarlyError.
func LaunchAndWait(ctx context.Context, command Command, config Config, log *zap.Logger) (*Process, error) {
	config = config.withDefaults()

	token, text, err := config.readiness()
	if err != nil {
		return nil, err
	}

	p, err := Launch(command, config, log)
	if err != nil {
		return nil, err
	}

	return p, p.waitReady(ctx, token, text, config)
}

func (p *Process) waitReady(ctx context.Context, token *regexp.Regexp, text string, config Config) error {
	log := p.log.With(zap.String("token", text))
	log.Debug("waiting for readiness", zap.Duration("timeout", config.Timeout))

	started := time.Now()

	deadline := time.NewTimer(config.Timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(config.PollInterval)
	defer ticker.Stop()

	for {
		if p.logMatches(token) {
			p.setState(StateReady)
			log.Info("process ready", zap.Duration("elapsed", time.Since(started)))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.termination:
			// output written right before exit is flushed by now
			if p.logMatches(token) {
				p.setState(StateReady)
				return nil
			}
			p.setState(StateExitedEarly)
			log.Error("process exited before becoming ready", zap.Stringer("exit", p.exit))
			return &ExitedEarlyError{
				Exit:    p.exit,
				LogTail: p.logTail(config.TailLines),
			}
		case <-deadline.C:
			if p.logMatches(token) {
				p.setState(StateReady)
				return nil
			}
			p.setState(StateTimedOut)
			log.Error("readiness timeout elapsed", zap.Duration("timeout", config.Timeout))
			return &TimeoutError{
				Timeout: config.Timeout,
				Token:   text,
				LogTail: p.logTail(config.TailLines),
			}
		case <-ticker.C:
		}
	}
}

// Supervise waits for the process to exit, or stops it once ctx is
// cancelled.
func (p *Process) Supervise(ctx context.Context, stopTimeout time.Duration) ExitEvent {
	select {
	case <-p.termination:
	case <-ctx.Done():
		p.log.Info("stopping process", zap.Duration("timeout", stopTimeout))
		p.Stop(stopTimeout)
	}

	if p.State() == StateReady {
		p.setState(StateExited)
	}

	p.log.Info("process exited", zap.Stringer("exit", p.exit))

	return p.exit
}

func (p *Process) logMatches(token *regexp.Regexp) bool {
	content, err := os.ReadFile(p.logPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.log.Warn("read log failed", zap.Error(err))
		}
		return false
	}
	return token.Match(content)
}

func (p *Process) logTail(lines int) string {
	content, err := os.ReadFile(p.logPath)
	if err != nil {
		return ""
	}
	return tail(string(content), lines)
}

func tail(content string, lines int) string {
	content = strings.TrimRight(content, "\n")
	if content == "" {
		return ""
	}

	all := strings.Split(content, "\n")
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return strings.Join(all, "\n")
}
