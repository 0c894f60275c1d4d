package app

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/redkey-web/DewaterQuote-sub003/internal/docstore"
)

var _ io.Closer = (*docstore.GCSBackend)(nil)

type countingCloser struct {
	calls int
	err   error
}

func (c *countingCloser) Close() error {
	c.calls++
	return c.err
}

func TestContainerCloseReleasesBackends(t *testing.T) {
	ok := &countingCloser{}
	failing := &countingCloser{err: errors.New("bucket gone")}
	c := &Container{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), closers: []io.Closer{failing, ok}}

	c.Close()

	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls, "a failing closer does not stop the rest")
}
