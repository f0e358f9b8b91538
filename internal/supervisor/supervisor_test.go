package supervisor_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/environ"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/supervisor"
	"github.com/infrablocks/concourse-aws-entrypoint/util"
)

type command struct {
	binary string
	args   []string
	env    environ.Environment
}

func (c command) Binary() string           { return c.binary }
func (c command) Args() []string           { return c.args }
func (c command) Env() environ.Environment { return c.env }

func script(body string) command {
	return command{binary: "sh", args: []string{"-c", body}, env: environ.FromOS()}
}

func config(t *testing.T, token string, timeout time.Duration) supervisor.Config {
	return supervisor.Config{
		LogPath:      filepath.Join(t.TempDir(), "logs", "concourse.log"),
		ReadyToken:   token,
		Timeout:      timeout,
		PollInterval: 20 * time.Millisecond,
		StopTimeout:  time.Second,
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLaunchAndWait_Ready(t *testing.T) {
	cfg := config(t, "atc.listening", 5*time.Second)

	p, err := supervisor.LaunchAndWait(context.Background(), script("echo starting; sleep 0.2; echo '{\"message\":\"atc.listening\"}'; sleep 30"), cfg, zap.NewNop())
	require.NoError(t, err)
	defer p.Kill(time.Second)

	assert.Equal(t, supervisor.StateReady, p.State())
	assert.True(t, util.IsProcessAlive(p.Pid()))

	content, err := os.ReadFile(cfg.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "starting")
}

func TestLaunchAndWait_TokenIsRegexp(t *testing.T) {
	cfg := config(t, `baggageclaim\.listening`, 5*time.Second)

	p, err := supervisor.LaunchAndWait(context.Background(), script("echo baggageclaim.listening; sleep 30"), cfg, zap.NewNop())
	require.NoError(t, err)
	defer p.Kill(time.Second)

	assert.Equal(t, supervisor.StateReady, p.State())
}

func TestLaunchAndWait_StderrIsCaptured(t *testing.T) {
	cfg := config(t, "atc.listening", 5*time.Second)

	p, err := supervisor.LaunchAndWait(context.Background(), script("echo atc.listening >&2; sleep 30"), cfg, zap.NewNop())
	require.NoError(t, err)
	defer p.Kill(time.Second)

	assert.Equal(t, supervisor.StateReady, p.State())
}

func TestLaunchAndWait_TimeoutLeavesProcessRunning(t *testing.T) {
	cfg := config(t, "atc.listening", 200*time.Millisecond)

	started := time.Now()
	p, err := supervisor.LaunchAndWait(context.Background(), script("echo booting; sleep 30"), cfg, zap.NewNop())
	require.Error(t, err)
	require.NotNil(t, p)
	defer p.Kill(time.Second)

	assert.GreaterOrEqual(t, time.Since(started), 200*time.Millisecond)
	assert.ErrorIs(t, err, supervisor.ErrTimeout)

	var timeout *supervisor.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "booting", timeout.LogTail)

	assert.Equal(t, supervisor.StateTimedOut, p.State())
	assert.True(t, util.IsProcessAlive(p.Pid()))
}

func TestLaunchAndWait_ExitedEarly(t *testing.T) {
	cfg := config(t, "atc.listening", 5*time.Second)

	p, err := supervisor.LaunchAndWait(context.Background(), script("echo 'error: postgres unreachable'; exit 3"), cfg, zap.NewNop())
	require.NotNil(t, p)
	assert.ErrorIs(t, err, supervisor.ErrExitedEarly)

	var exited *supervisor.ExitedEarlyError
	require.ErrorAs(t, err, &exited)
	require.NotNil(t, exited.Exit.Code)
	assert.Equal(t, 3, *exited.Exit.Code)
	assert.Contains(t, exited.LogTail, "postgres unreachable")

	assert.Equal(t, supervisor.StateExitedEarly, p.State())
	assert.False(t, util.IsProcessAlive(p.Pid()))
}

func TestLaunchAndWait_StartFailure(t *testing.T) {
	cfg := config(t, "atc.listening", time.Second)

	p, err := supervisor.LaunchAndWait(context.Background(), command{binary: "/nonexistent/concourse"}, cfg, zap.NewNop())

	assert.Nil(t, p)
	assert.ErrorIs(t, err, supervisor.ErrStartFailed)
}

func TestLaunchAndWait_ReadyTextIsLiteral(t *testing.T) {
	cfg := config(t, "", 200*time.Millisecond)
	cfg.ReadyText = "atc.listening"

	p, err := supervisor.LaunchAndWait(context.Background(), script("echo atcXlistening; sleep 30"), cfg, zap.NewNop())
	require.NotNil(t, p)
	defer p.Kill(time.Second)

	var timeout *supervisor.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "atc.listening", timeout.Token)
	assert.Contains(t, err.Error(), `"atc.listening" not seen`)
}

func TestLaunchAndWait_MissingToken(t *testing.T) {
	cfg := config(t, "", time.Second)

	_, err := supervisor.LaunchAndWait(context.Background(), script("true"), cfg, zap.NewNop())

	assert.ErrorIs(t, err, supervisor.ErrInvalidConfig)
}

func TestLaunchAndWait_InvalidToken(t *testing.T) {
	cfg := config(t, "atc.(listening", time.Second)

	_, err := supervisor.LaunchAndWait(context.Background(), script("true"), cfg, zap.NewNop())

	assert.ErrorIs(t, err, supervisor.ErrInvalidConfig)
}

func TestLaunchAndWait_PassesEnvironment(t *testing.T) {
	cfg := config(t, "ready", 5*time.Second)

	cmd := script(`echo "dns=$CONCOURSE_GARDEN_DNS_SERVER"; echo ready; sleep 30`)
	cmd.env = cmd.env.Merge(map[string]string{"CONCOURSE_GARDEN_DNS_SERVER": "169.254.169.253"})

	p, err := supervisor.LaunchAndWait(context.Background(), cmd, cfg, zap.NewNop())
	require.NoError(t, err)
	defer p.Kill(time.Second)

	content, err := os.ReadFile(cfg.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "dns=169.254.169.253")
}

func TestLaunchAndWait_MirrorsOutput(t *testing.T) {
	var out syncBuffer

	cfg := config(t, "ready", 5*time.Second)
	cfg.Output = &out

	p, err := supervisor.LaunchAndWait(context.Background(), script("echo ready"), cfg, zap.NewNop())
	require.NoError(t, err)

	p.Wait()
	assert.Equal(t, "ready\n", out.String())
}

func TestLaunchAndWait_MirroredExitedEarlyWithLingeringDescendant(t *testing.T) {
	var out syncBuffer

	cfg := config(t, "atc.listening", 5*time.Second)
	cfg.Output = &out

	started := time.Now()
	p, err := supervisor.LaunchAndWait(context.Background(), script("sleep 20 & echo started; exit 3"), cfg, zap.NewNop())
	require.NotNil(t, p)
	t.Cleanup(func() {
		_ = syscall.Kill(-p.Pid(), syscall.SIGKILL)
	})

	assert.ErrorIs(t, err, supervisor.ErrExitedEarly)
	assert.Less(t, time.Since(started), 4*time.Second)

	var exited *supervisor.ExitedEarlyError
	require.ErrorAs(t, err, &exited)
	require.NotNil(t, exited.Exit.Code)
	assert.Equal(t, 3, *exited.Exit.Code)
	assert.Contains(t, exited.LogTail, "started")
	assert.Contains(t, out.String(), "started")

	stopped := make(chan supervisor.ExitEvent, 1)
	go func() {
		stopped <- p.Stop(time.Second)
	}()

	select {
	case exit := <-stopped:
		assert.Equal(t, 3, exit.ExitCode())
	case <-time.After(3 * time.Second):
		t.Fatal("stop blocked on the lingering descendant")
	}
}

func TestProcess_StopSignalsProcessGroup(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "descendant.pid")
	cfg := config(t, "ready", 5*time.Second)

	p, err := supervisor.LaunchAndWait(context.Background(), script("sleep 30 & echo $! > "+pidFile+"; echo ready; wait"), cfg, zap.NewNop())
	require.NoError(t, err)

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	descendant, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)

	exit := p.Stop(time.Second)
	require.NotNil(t, exit.Signal)

	assert.Eventually(t, func() bool {
		return exited(descendant)
	}, 3*time.Second, 20*time.Millisecond)
}

// exited reports whether pid is gone or a zombie. Orphans are reaped by
// init, which may not happen in every container.
func exited(pid int) bool {
	if !util.IsProcessAlive(pid) {
		return true
	}

	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}

	// the state follows the parenthesised command name
	fields := strings.Fields(string(stat[bytes.LastIndexByte(stat, ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestLaunchAndWait_TruncatesPreviousLog(t *testing.T) {
	cfg := config(t, "atc.listening", 200*time.Millisecond)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755))
	require.NoError(t, os.WriteFile(cfg.LogPath, []byte("atc.listening\n"), 0o644))

	p, err := supervisor.LaunchAndWait(context.Background(), script("sleep 30"), cfg, zap.NewNop())
	require.NotNil(t, p)
	defer p.Kill(time.Second)

	assert.ErrorIs(t, err, supervisor.ErrTimeout)
}

func TestLaunchAndWait_ContextCancelled(t *testing.T) {
	cfg := config(t, "atc.listening", 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p, err := supervisor.LaunchAndWait(ctx, script("sleep 30"), cfg, zap.NewNop())
	require.NotNil(t, p)
	defer p.Kill(time.Second)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcess_SuperviseStopsOnCancel(t *testing.T) {
	cfg := config(t, "ready", 5*time.Second)

	p, err := supervisor.LaunchAndWait(context.Background(), script("echo ready; sleep 30"), cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exit := p.Supervise(ctx, time.Second)

	require.NotNil(t, exit.Signal)
	assert.Equal(t, 143, exit.ExitCode())
	assert.Equal(t, supervisor.StateExited, p.State())
	assert.False(t, util.IsProcessAlive(p.Pid()))
}

func TestProcess_SuperviseReportsExitCode(t *testing.T) {
	cfg := config(t, "ready", 5*time.Second)

	p, err := supervisor.LaunchAndWait(context.Background(), script("echo ready; sleep 0.2; exit 7"), cfg, zap.NewNop())
	require.NoError(t, err)

	exit := p.Supervise(context.Background(), time.Second)

	assert.Equal(t, 7, exit.ExitCode())
}

func TestProcess_StopEscalatesToKill(t *testing.T) {
	cfg := config(t, "ready", 5*time.Second)

	p, err := supervisor.LaunchAndWait(context.Background(), script("trap '' TERM; echo ready; while true; do sleep 0.1; done"), cfg, zap.NewNop())
	require.NoError(t, err)

	exit := p.Stop(200 * time.Millisecond)

	require.NotNil(t, exit.Signal)
	assert.Equal(t, 137, exit.ExitCode())
}

func TestProcess_TerminateAfterExitIsNoop(t *testing.T) {
	cfg := config(t, "ready", 5*time.Second)

	p, err := supervisor.LaunchAndWait(context.Background(), script("echo ready"), cfg, zap.NewNop())
	require.NoError(t, err)

	p.Wait()
	assert.NoError(t, p.Terminate(time.Second))
}
