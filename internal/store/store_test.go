package store

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(&UpstreamError{Op: "put", StatusCode: 409}))
	assert.True(t, IsConflict(errors.Wrap(&UpstreamError{Op: "put", StatusCode: 409}, "put file")))

	assert.False(t, IsConflict(&UpstreamError{Op: "get", StatusCode: 409}))
	assert.False(t, IsConflict(&UpstreamError{Op: "put", StatusCode: 422}))
	assert.False(t, IsConflict(ErrNotFound))
	assert.False(t, IsConflict(nil))
}

func TestUpstreamError_Message(t *testing.T) {
	err := &UpstreamError{Op: "get", StatusCode: 502, Detail: "bad gateway"}
	assert.Equal(t, "store get: upstream status 502: bad gateway", err.Error())
}
