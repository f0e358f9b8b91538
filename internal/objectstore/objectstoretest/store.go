// Package objectstoretest provides an in-memory object store for tests.
package objectstoretest

import (
	"context"
	"fmt"
	"sync"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/objectstore"
)

// Store is an in-memory objectstore.Store.
type Store struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	gets    int

	// Err, when set, is returned by every operation as a
	// transport failure.
	Err error
}

var _ objectstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{buckets: map[string]map[string][]byte{}}
}

// Seed stores content at the given s3:// path, panicking on an
// invalid path.
func (s *Store) Seed(path string, content string) *Store {
	loc, err := objectstore.ParseLocation(path)
	if err != nil {
		panic(fmt.Sprintf("objectstoretest: %v", err))
	}
	if err := s.Put(context.Background(), loc, []byte(content)); err != nil {
		panic(fmt.Sprintf("objectstoretest: %v", err))
	}
	return s
}

// Gets returns the number of Get calls made so far.
func (s *Store) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.gets
}

func (s *Store) Get(_ context.Context, loc objectstore.Location) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets++

	if s.Err != nil {
		return nil, &objectstore.Error{Op: "get", Location: loc, Kind: objectstore.ErrTransport, Err: s.Err}
	}

	data, ok := s.buckets[loc.Bucket][loc.Key]
	if !ok {
		return nil, &objectstore.Error{Op: "get", Location: loc, Kind: objectstore.ErrObjectNotFound, Err: fmt.Errorf("no such key")}
	}

	return append([]byte(nil), data...), nil
}

func (s *Store) Put(ctx context.Context, loc objectstore.Location, data []byte) error {
	if err := s.EnsureBucket(ctx, loc.Bucket); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buckets[loc.Bucket][loc.Key] = append([]byte(nil), data...)

	return nil
}

func (s *Store) EnsureBucket(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return &objectstore.Error{Op: "create bucket", Location: objectstore.Location{Bucket: bucket}, Kind: objectstore.ErrTransport, Err: s.Err}
	}

	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = map[string][]byte{}
	}

	return nil
}
