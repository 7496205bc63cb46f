package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/repo"
)

var TestSequence = Sequence{Prefix: "TEST", Width: 3}

var ErrSeedPrerequisite = errors.New("seed prerequisite missing")

// SeedTestIssues fills the store with n demo issues created within the last
// 30 days, reported by the first production user against the first machine.
// Ids continue the TEST sequence.
func (e Engine) SeedTestIssues(ctx context.Context, n int, rng *rand.Rand) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(e.now().UnixNano()))
	}
	reporters, err := e.Repo.ListUsers(ctx, repo.UserFilter{ActiveOnly: true, Service: domain.ServiceProduction})
	if err != nil {
		return 0, err
	}
	if len(reporters) == 0 {
		return 0, fmt.Errorf("%w: no production user found, create one first", ErrSeedPrerequisite)
	}
	machines, err := e.Repo.ListMachines(ctx)
	if err != nil {
		return 0, err
	}
	if len(machines) == 0 {
		return 0, fmt.Errorf("%w: no machine found, create one first", ErrSeedPrerequisite)
	}
	techs, err := e.Repo.ListUsers(ctx, repo.UserFilter{ActiveOnly: true, Service: domain.ServiceMaintenance})
	if err != nil {
		return 0, err
	}

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := e.Repo.IssueIDsWithPrefix(ctx, tx, TestSequence.Prefix)
		if err != nil {
			return err
		}
		next := TestSequence.highest(existing)
		for i := 0; i < n; i++ {
			next++
			created := e.now().Add(-time.Duration(rng.Intn(31*24)) * time.Hour)
			is := domain.Issue{
				ID:          TestSequence.Format(next),
				MachineID:   machines[0].ID,
				Description: fmt.Sprintf("Test issue %d for pagination testing", next),
				Urgency:     domain.Urgencies[rng.Intn(len(domain.Urgencies))],
				Status:      domain.Statuses[rng.Intn(len(domain.Statuses))],
				ReporterID:  reporters[0].ID,
				CreatedAt:   created,
			}
			if is.Status != domain.StatusReported && len(techs) > 0 {
				accepted := created.Add(time.Duration(5+rng.Intn(120)) * time.Minute)
				is.AssignedTechID = techs[rng.Intn(len(techs))].ID
				is.AcceptedAt = &accepted
			}
			if is.Status == domain.StatusClosed {
				start := created
				if is.AcceptedAt != nil {
					start = *is.AcceptedAt
				}
				closed := start.Add(time.Duration(1+rng.Intn(48)) * time.Hour)
				is.ClosedAt = &closed
				is.Resolution = "Resolved during seeding"
			}
			if err := e.Repo.InsertIssue(ctx, tx, is); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
