package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/store"
	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

func TestMemoryStore_SecondActiveRejected(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	orgID := defaultOrgID(t, s)

	first := newTestJob(orgID, []uuid.UUID{uuid.New()})
	require.NoError(t, s.CreateJob(ctx, first))

	second := newTestJob(orgID, []uuid.UUID{uuid.New()})
	err := s.CreateJob(ctx, second)
	assert.ErrorIs(t, err, store.ErrActiveJobExists)

	require.NoError(t, s.UpdateJobStatus(ctx, first.ID, models.JobStatusProcessing))
	require.NoError(t, s.UpdateJobStatus(ctx, first.ID, models.JobStatusCompleted))
	require.NoError(t, s.CreateJob(ctx, second))
}

func TestMemoryStore_ProgressGuards(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	orgID := defaultOrgID(t, s)

	job := newTestJob(orgID, []uuid.UUID{uuid.New(), uuid.New()})
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing))

	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, 2, 2))
	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, 1, 2))
	got, err := s.GetJob(ctx, job.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ProcessedCount)

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted))
	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, 50, 50))
	got, err = s.GetJob(ctx, job.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ProcessedCount)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestMemoryStore_InvalidTransition(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	orgID := defaultOrgID(t, s)

	job := newTestJob(orgID, []uuid.UUID{uuid.New()})
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, store.WithErrorMessage("stuck")))

	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing)
	assert.Error(t, err)
}

func TestMemoryStore_CopiesOnRead(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	orgID := defaultOrgID(t, s)

	job := newTestJob(orgID, []uuid.UUID{uuid.New()})
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID, orgID)
	require.NoError(t, err)
	got.Snapshot[0].PreviousPrice = -1
	got.Status = models.JobStatusFailed

	again, err := s.GetJob(ctx, job.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, again.Snapshot[0].PreviousPrice)
	assert.Equal(t, models.JobStatusPending, again.Status)
}

func TestMemoryStore_WriteConflictHook(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	orgID := defaultOrgID(t, s)

	item := &models.LineItem{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           "Outlet install",
		Category:       "labor",
		Price:          100,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	s.AddLineItem(item)
	s.WriteConflicts[item.ID] = true

	err := s.SetLineItemPrice(ctx, item.ID, orgID, 120, nil)
	assert.ErrorIs(t, err, store.ErrWriteConflict)
}
