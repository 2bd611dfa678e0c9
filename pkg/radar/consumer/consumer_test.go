package consumer_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/radarsync/pkg/radar/archive"
	"github.com/jamesainslie/radarsync/pkg/radar/consumer"
)

func newArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a := archive.New(filepath.Join(t.TempDir(), "img"), []string{"IDR042", "IDR043", "IDR044"})
	require.NoError(t, a.Reset())
	return a
}

type recorder struct {
	snaps chan consumer.Snapshot
	err   error
}

func (r *recorder) Handle(_ context.Context, snap consumer.Snapshot) error {
	r.snaps <- snap
	return r.err
}

func TestRefresh_AutoConfirm(t *testing.T) {
	a := newArchive(t)
	_, err := a.WriteNew("IDR043", "IDR043.T.201801011200.png", []byte("a"))
	require.NoError(t, err)
	_, err = a.WriteNew("IDR044", "IDR044.T.201801011200.png", []byte("b"))
	require.NoError(t, err)

	rec := &recorder{snaps: make(chan consumer.Snapshot, 1)}
	c := consumer.New(a, rec, consumer.WithAutoConfirm(true))
	require.NoError(t, c.Refresh(context.Background()))

	snap := <-rec.snaps
	assert.Len(t, snap.Fresh(), 2)
	assert.Len(t, snap.Frames["IDR043"], 1)
	assert.Empty(t, snap.Frames["IDR042"])

	state, found, err := a.Lookup("IDR043", "IDR043.T.201801011200.png")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, archive.StateConfirmed, state)
}

func TestRefresh_WithoutAutoConfirmLeavesFramesNew(t *testing.T) {
	a := newArchive(t)
	_, err := a.WriteNew("IDR043", "IDR043.T.201801011200.png", []byte("a"))
	require.NoError(t, err)

	c := consumer.New(a, consumer.LogHandler())
	require.NoError(t, c.Refresh(context.Background()))

	state, _, err := a.Lookup("IDR043", "IDR043.T.201801011200.png")
	require.NoError(t, err)
	assert.Equal(t, archive.StateNew, state)
}

func TestRun_RefreshesOnUpdate(t *testing.T) {
	a := newArchive(t)
	rec := &recorder{snaps: make(chan consumer.Snapshot, 4)}
	updates := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.New(a, rec).Run(ctx, updates) }()

	first := <-rec.snaps
	assert.Empty(t, first.Fresh())

	_, err := a.WriteNew("IDR042", "IDR042.T.201801011200.png", []byte("a"))
	require.NoError(t, err)
	updates <- struct{}{}

	select {
	case snap := <-rec.snaps:
		assert.Len(t, snap.Fresh(), 1)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after update")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestRun_HandlerErrorStops(t *testing.T) {
	a := newArchive(t)
	boom := errors.New("display closed")
	rec := &recorder{snaps: make(chan consumer.Snapshot, 1), err: boom}

	err := consumer.New(a, rec).Run(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}
