package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeWaitsForDrain(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	drained := make(chan struct{})

	returned := make(chan error, 1)
	go func() {
		returned <- serve(server, drained)
	}()

	// Shutdown before or after ListenAndServe starts makes it return ErrServerClosed.
	require.Eventually(t, func() bool {
		return server.Shutdown(context.Background()) == nil
	}, time.Second, 10*time.Millisecond)

	select {
	case <-returned:
		t.Fatal("serve returned before shutdown finished draining")
	case <-time.After(50 * time.Millisecond):
	}

	close(drained)
	select {
	case err := <-returned:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("serve did not return after drain")
	}
}

func TestServeReportsListenError(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:-1"}
	drained := make(chan struct{})
	assert.Error(t, serve(server, drained))
}
