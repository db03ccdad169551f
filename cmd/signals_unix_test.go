//go:build unix

package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestShutdownContextCanceledBySignal(t *testing.T) {
	ctx, stop := shutdownContext(context.Background())
	defer stop()

	err := unix.Kill(unix.Getpid(), unix.SIGTERM)
	require.NoError(t, err)

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not canceled by SIGTERM")
	}
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestShutdownContextStop(t *testing.T) {
	ctx, stop := shutdownContext(context.Background())
	stop()

	<-ctx.Done()
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}
