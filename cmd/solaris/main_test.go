package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRunner struct {
	err error
}

func (f fakeRunner) Run(ctx context.Context) error {
	return f.err
}

type fakeCloser struct {
	name   string
	closed *[]string
	err    error
}

func (f fakeCloser) Close() error {
	*f.closed = append(*f.closed, f.name)
	return f.err
}

func TestRun(t *testing.T) {
	t.Run("Server Failure Still Closes", func(t *testing.T) {
		var closed []string
		err := run(fakeRunner{err: errors.New("listen failed")},
			fakeCloser{name: "device", closed: &closed},
			fakeCloser{name: "storage", closed: &closed})
		assert.ErrorContains(t, err, "listen failed")
		assert.Equal(t, []string{"device", "storage"}, closed)
	})

	t.Run("Clean Exit", func(t *testing.T) {
		var closed []string
		err := run(fakeRunner{},
			fakeCloser{name: "device", closed: &closed, err: errors.New("already closed")},
			fakeCloser{name: "storage", closed: &closed})
		assert.NoError(t, err)
		assert.Equal(t, []string{"device", "storage"}, closed)
	})
}
