package entrypoint_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/entrypoint"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/launch"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/objectstore/objectstoretest"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/server"
)

func newApp(ctx context.Context, module fx.Option) *fx.App {
	return fx.New(
		fx.Supply(fx.Annotate(ctx, fx.As(new(context.Context)))),
		fx.Supply(zap.NewNop()),
		fx.NopLogger,
		module,
	)
}

func freePort(t *testing.T) int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func TestModule_ShutsDownWithChildExitCode(t *testing.T) {
	h := newHarness(objectstoretest.New())
	cfg := testConfig(t, fakeBinary(t, "echo baggageclaim.listening; sleep 0.2; exit 4"))

	app := newApp(context.Background(), entrypoint.Module(launch.RoleWorker, cfg, h.options(baseEnv(nil))...))

	require.NoError(t, app.Start(context.Background()))

	select {
	case sig := <-app.Wait():
		assert.Equal(t, 4, sig.ExitCode)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}

	require.NoError(t, app.Stop(context.Background()))
}

func TestModule_ResolutionFailureExitsOne(t *testing.T) {
	h := newHarness(objectstoretest.New())
	cfg := testConfig(t, fakeBinary(t, "echo atc.listening; sleep 30"))

	app := newApp(context.Background(), entrypoint.Module(launch.RoleWeb, cfg, h.options(baseEnv(nil))...))

	require.NoError(t, app.Start(context.Background()))

	select {
	case sig := <-app.Wait():
		assert.Equal(t, 1, sig.ExitCode)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}

	require.NoError(t, app.Stop(context.Background()))
}

func TestModule_StopTerminatesChild(t *testing.T) {
	h := newHarness(objectstoretest.New())
	cfg := testConfig(t, fakeBinary(t, "echo baggageclaim.listening; sleep 30"))

	var e *entrypoint.Entrypoint
	app := newApp(context.Background(), fx.Options(
		entrypoint.Module(launch.RoleWorker, cfg, h.options(baseEnv(nil))...),
		fx.Populate(&e),
	))

	require.NoError(t, app.Start(context.Background()))

	require.Eventually(t, func() bool {
		return e.Status().State == "ready"
	}, 5*time.Second, 20*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, app.Stop(stopCtx))

	assert.Equal(t, "exited", e.Status().State)
}

func TestModule_ServesHealth(t *testing.T) {
	h := newHarness(objectstoretest.New())
	cfg := testConfig(t, fakeBinary(t, "echo atc.listening; sleep 30"))
	cfg.Health = server.HttpConfig{Host: "127.0.0.1", Port: freePort(t)}

	app := newApp(context.Background(), entrypoint.Module(launch.RoleWeb, cfg, h.options(baseEnv(map[string]string{
		"CONCOURSE_POSTGRES_HOST": "db",
	}))...))

	require.NoError(t, app.Start(context.Background()))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, app.Stop(stopCtx))
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Health.Port)

	var body string
	require.Eventually(t, func() bool {
		res, err := http.Get(url)
		if err != nil {
			return false
		}
		defer res.Body.Close()

		data, _ := io.ReadAll(res.Body)
		body = string(data)

		return res.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	assert.Contains(t, body, `"role":"web"`)
	assert.Contains(t, body, `"state":"ready"`)
}
