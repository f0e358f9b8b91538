package util

import "fmt"

// Must returns v, panicking if err is set. It is meant for package
// level initialization of values that cannot fail at runtime, such as
// embedded schemas.
func Must[V any](v V, err error) V {
	if err != nil {
		panic(fmt.Sprintf("util.Must: %v", err))
	}

	return v
}
