package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

type fakeBookingSource struct {
	ops  []models.ScheduledOperation
	err  error
	seen [][2]time.Time
}

func (s *fakeBookingSource) QueryOperations(ctx context.Context, from, to time.Time) ([]models.ScheduledOperation, error) {
	s.seen = append(s.seen, [2]time.Time{from, to})
	return s.ops, s.err
}

func TestPollOnce_UpsertsAndRetires(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()

	// A stale operation that the poll cycle should retire.
	r.UpsertFromPoll(models.ScheduledOperation{
		CaseID:        "STALE",
		ScheduledTime: now.Add(-30 * time.Hour),
	})

	source := &fakeBookingSource{
		ops: []models.ScheduledOperation{
			{CaseID: "CASE-001", PatientID: "MRN1", ScheduledTime: now.Add(4 * time.Hour)},
			{CaseID: "CASE-002", PatientID: "MRN2", ScheduledTime: now.Add(26 * time.Hour)},
		},
	}
	p := NewPoller(r, source, zap.NewNop())
	p.pollOnce(context.Background())

	assert.Equal(t, 2, r.Size())
	_, ok := r.GetByCase("STALE")
	assert.False(t, ok)
	_, ok = r.GetByCase("CASE-001")
	assert.True(t, ok)

	// The query horizon spans now..now+horizon.
	if assert.Len(t, source.seen, 1) {
		window := source.seen[0]
		assert.WithinDuration(t, now, window[0], time.Minute)
		assert.WithinDuration(t, now.Add(48*time.Hour), window[1], time.Minute)
	}
}

func TestPollOnce_QueryFailureKeepsExistingState(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()

	r.UpsertFromPoll(models.ScheduledOperation{
		CaseID:        "CASE-001",
		ScheduledTime: now.Add(2 * time.Hour),
	})

	source := &fakeBookingSource{err: errors.New("booking system down")}
	p := NewPoller(r, source, zap.NewNop())
	p.pollOnce(context.Background())

	// Failure is absorbed; the registry is untouched.
	assert.Equal(t, 1, r.Size())
}
