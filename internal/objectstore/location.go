package objectstore

import (
	"fmt"
	"path"
	"strings"
)

const scheme = "s3://"

// Location addresses an object as a bucket and key.
type Location struct {
	Bucket string
	Key    string
}

// ParseLocation parses an object path of the form s3://bucket/key.
func ParseLocation(s string) (Location, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), scheme)
	if !ok {
		return Location{}, fmt.Errorf("invalid object path %q: expected %sbucket/key", s, scheme)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("invalid object path %q: missing bucket", s)
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return Location{}, fmt.Errorf("invalid object path %q: missing object key", s)
	}

	return Location{Bucket: bucket, Key: key}, nil
}

// Name returns the last segment of the object key.
func (l Location) Name() string {
	return path.Base(l.Key)
}

func (l Location) String() string {
	return scheme + l.Bucket + "/" + l.Key
}
