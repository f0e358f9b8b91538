package objectstore_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/objectstore"
)

func newMinIOStore(t *testing.T, handler http.HandlerFunc) objectstore.Store {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := objectstore.New(context.Background(), objectstore.Config{
		Driver:          objectstore.DriverMinIO,
		EndpointURL:     server.URL,
		Region:          "us-east-1",
		AccessKeyID:     "access",
		SecretAccessKey: "secret",
		ForcePathStyle:  true,
		MaxAttempts:     1,
	}, zap.NewNop())
	require.NoError(t, err)

	return store
}

func TestMinIOStore_Get_ReturnsExactBytes(t *testing.T) {
	content := "ABC123"

	store := newMinIOStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bucket/session-signing-key", r.URL.Path)

		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(content))
	})

	data, err := store.Get(context.Background(), objectstore.Location{Bucket: "bucket", Key: "session-signing-key"})
	require.NoError(t, err)

	assert.Equal(t, content, string(data))
}

func TestMinIOStore_Get_ObjectNotFound(t *testing.T) {
	store := newMinIOStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(noSuchKeyBody))
	})

	_, err := store.Get(context.Background(), objectstore.Location{Bucket: "bucket", Key: "missing"})

	assert.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}

func TestNew_MinIOInvalidEndpoint(t *testing.T) {
	_, err := objectstore.New(context.Background(), objectstore.Config{
		Driver:      objectstore.DriverMinIO,
		EndpointURL: "not a url",
	}, zap.NewNop())

	assert.Error(t, err)
}
