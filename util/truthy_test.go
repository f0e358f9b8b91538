package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/infrablocks/concourse-aws-entrypoint/util"
)

func TestTruthy(t *testing.T) {
	tests := []string{"true", "True", "TRUE", "1", "yes", "Yes", "YES", " yes", "true\n"}

	for _, tt := range tests {
		t.Run(tt, func(t *testing.T) {
			assert.True(t, util.Truthy(tt))
		})
	}
}

func TestTruthy_False(t *testing.T) {
	tests := []string{"false", "0", "no", "off", "on", "y", "foo", " ", ""}

	for _, tt := range tests {
		t.Run(tt, func(t *testing.T) {
			assert.False(t, util.Truthy(tt))
		})
	}
}
