package metadata_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/metadata"
)

type fakeMetadataService struct {
	values  map[string]string
	queries atomic.Int32
}

func (f *fakeMetadataService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut && r.URL.Path == "/latest/api/token" {
		w.Header().Set("X-Aws-Ec2-Metadata-Token-Ttl-Seconds", "21600")
		w.Write([]byte("token"))
		return
	}

	value, ok := f.values[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f.queries.Add(1)
	w.Write([]byte(value))
}

func newResolver(t *testing.T, values map[string]string) (*metadata.Resolver, *fakeMetadataService) {
	fake := &fakeMetadataService{values: values}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	return metadata.New(metadata.Config{Endpoint: server.URL, MaxAttempts: 1}, zap.NewNop()), fake
}

func TestResolver_InstanceID(t *testing.T) {
	resolver, _ := newResolver(t, map[string]string{
		"/latest/meta-data/instance-id": "i-1234567890abcdef0",
	})

	id, err := resolver.InstanceID(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "i-1234567890abcdef0", id)
}

func TestResolver_LocalIPv4(t *testing.T) {
	resolver, _ := newResolver(t, map[string]string{
		"/latest/meta-data/local-ipv4": "172.16.34.43\n",
	})

	ip, err := resolver.LocalIPv4(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "172.16.34.43", ip)
}

func TestResolver_MemoisesAnswers(t *testing.T) {
	resolver, fake := newResolver(t, map[string]string{
		"/latest/meta-data/instance-id": "i-1234567890abcdef0",
	})

	for i := 0; i < 3; i++ {
		_, err := resolver.InstanceID(context.Background())
		require.NoError(t, err)
	}

	assert.EqualValues(t, 1, fake.queries.Load())
}

func TestResolver_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	resolver := metadata.New(metadata.Config{Endpoint: endpoint, MaxAttempts: 1}, zap.NewNop())

	_, err := resolver.InstanceID(context.Background())

	assert.ErrorIs(t, err, metadata.ErrUnavailable)
}

func TestResolver_UnknownPath(t *testing.T) {
	resolver, _ := newResolver(t, map[string]string{})

	_, err := resolver.LocalIPv4(context.Background())

	assert.ErrorIs(t, err, metadata.ErrUnavailable)
}
