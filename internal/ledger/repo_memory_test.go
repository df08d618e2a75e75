package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestMemoryRepoListNewestFirstPerOwner(t *testing.T) {
	repo := NewMemoryRepo()
	repo.now = fixedClock(time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, Submission{RequestID: "a", OwnerKey: "owner-1", Status: "PENDING"}))
	require.NoError(t, repo.Record(ctx, Submission{RequestID: "b", OwnerKey: "owner-1", Status: "PENDING"}))
	require.NoError(t, repo.Record(ctx, Submission{RequestID: "c", OwnerKey: "owner-2", Status: "PENDING"}))

	got, err := repo.List(ctx, "owner-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].RequestID)
	assert.Equal(t, "a", got[1].RequestID)

	limited, err := repo.List(ctx, "owner-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].RequestID)
}

func TestMemoryRepoUpdateStatusKeepsExistingPaths(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, repo.Record(ctx, Submission{RequestID: "a", OwnerKey: "o", Status: "PENDING"}))

	require.NoError(t, repo.UpdateStatus(ctx, "a", Update{Status: "COMPLETED", ReportPath: "/tmp/r.pdf"}))
	require.NoError(t, repo.UpdateStatus(ctx, "a", Update{Status: "COMPLETED"}))

	got, err := repo.List(ctx, "o", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "COMPLETED", got[0].Status)
	assert.Equal(t, "/tmp/r.pdf", got[0].ReportPath)
}

func TestMemoryRepoUpdateUnknown(t *testing.T) {
	repo := NewMemoryRepo()
	err := repo.UpdateStatus(context.Background(), "missing", Update{Status: "FAILED"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepoHonorsCanceledContext(t *testing.T) {
	repo := NewMemoryRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, repo.Record(ctx, Submission{RequestID: "a"}), context.Canceled)
}

func TestOpenWithoutURLUsesMemory(t *testing.T) {
	repo, closeFn := Open(context.Background(), "")
	_, ok := repo.(*MemoryRepo)
	assert.True(t, ok)
	assert.NoError(t, closeFn())
}
