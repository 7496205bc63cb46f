package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/repo"
)

var now = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

func at(h float64) *time.Time {
	t := now.Add(time.Duration(h * float64(time.Hour)))
	return &t
}

func fixture() []domain.Issue {
	return []domain.Issue{
		{ID: "ISS001", MachineID: "MACH001", Urgency: domain.UrgencyHigh, Status: domain.StatusReported, CreatedAt: now.Add(-time.Hour)},
		{ID: "ISS002", MachineID: "MACH001", Urgency: domain.UrgencyHigh, Status: domain.StatusClosed,
			AssignedTechID: "tess", CreatedAt: *at(-48), AcceptedAt: at(-47), ClosedAt: at(-46)},
		{ID: "ISS003", MachineID: "MACH002", Urgency: domain.UrgencyLow, Status: domain.StatusClosed,
			AssignedTechID: "tess", CreatedAt: *at(-30), AcceptedAt: at(-28), ClosedAt: at(-26)},
		{ID: "ISS004", MachineID: "MACH002", Urgency: domain.UrgencyMedium, Status: domain.StatusInProgress,
			AssignedTechID: "tess", CreatedAt: *at(-20), AcceptedAt: at(-19)},
		// Forced closed through a direct status set: no close timestamp.
		{ID: "ISS005", MachineID: "MACH404", Urgency: domain.UrgencyHigh, Status: domain.StatusClosed, CreatedAt: *at(-10)},
	}
}

func TestDashboard(t *testing.T) {
	d := Dashboard(fixture(), now)
	assert.Equal(t, 5, d.Summary.TotalIssues)
	assert.Equal(t, 2, d.Summary.OpenIssues)
	assert.Equal(t, 1, d.Summary.HighPriority, "only reported high urgency issues count")
	// (2h + 4h) / 2 from creation to close.
	assert.Equal(t, 3.0, d.Summary.AvgResolutionTimeHours)
	assert.Equal(t, 2, d.Summary.IssuesToday)
	assert.Equal(t, map[string]int{"reported": 1, "closed": 3, "in_progress": 1}, d.ByStatus)
	assert.Equal(t, map[string]int{"high": 3, "low": 1, "medium": 1}, d.ByUrgency)
}

func TestDashboardEmpty(t *testing.T) {
	d := Dashboard(nil, now)
	assert.Zero(t, d.Summary.TotalIssues)
	assert.Zero(t, d.Summary.AvgResolutionTimeHours)
	assert.NotNil(t, d.ByStatus)
	assert.NotNil(t, d.ByUrgency)
}

func TestByMachineSkipsUnknownAndIdle(t *testing.T) {
	machines := []domain.Machine{
		{ID: "MACH001", Name: "Press"},
		{ID: "MACH002", Name: "Lathe"},
		{ID: "MACH003", Name: "Idle"},
	}
	stats := ByMachine(fixture(), machines)
	require.Len(t, stats, 2)
	assert.Equal(t, domain.MachineStats{MachineID: "MACH001", MachineName: "Press", TotalIssues: 2, ClosedIssues: 1, HighUrgencyIssues: 2}, stats[0])
	assert.Equal(t, domain.MachineStats{MachineID: "MACH002", MachineName: "Lathe", TotalIssues: 2, ClosedIssues: 1}, stats[1])
}

func TestByTechnicianAveragesFromAcceptance(t *testing.T) {
	techs := []domain.User{
		{ID: "tess", Name: "Tess", Email: "tess@example.com"},
		{ID: "idle", Name: "Idle"},
	}
	stats := ByTechnician(fixture(), techs)
	require.Len(t, stats, 2)
	assert.Equal(t, 3, stats[0].AssignedIssues)
	assert.Equal(t, 2, stats[0].ClosedIssues)
	// (1h + 2h) / 2 from acceptance to close.
	assert.Equal(t, 1.5, stats[0].AvgResolutionTimeHours)
	assert.Empty(t, stats[0].Technician.Email)
	assert.Zero(t, stats[1].AssignedIssues)
	assert.Zero(t, stats[1].AvgResolutionTimeHours)
}

func TestByTechnicianSkipsClosedWithoutAcceptance(t *testing.T) {
	issues := []domain.Issue{
		{ID: "ISS001", Status: domain.StatusClosed, AssignedTechID: "tess", CreatedAt: *at(-10), AcceptedAt: at(-9), ClosedAt: at(-5)},
		// Forced closed through a direct status set, never accepted.
		{ID: "ISS002", Status: domain.StatusClosed, AssignedTechID: "tess", CreatedAt: *at(-10), ClosedAt: at(-1)},
	}
	stats := ByTechnician(issues, []domain.User{{ID: "tess", Name: "Tess"}})
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].ClosedIssues)
	assert.Equal(t, 4.0, stats[0].AvgResolutionTimeHours)
}

func TestAverageHoursRoundsToTwoDecimals(t *testing.T) {
	assert.Equal(t, 0.33, averageHours([]float64{1.0 / 3.0}))
	assert.Equal(t, 0.0, averageHours(nil))
}

type memStore struct {
	issues   []domain.Issue
	machines []domain.Machine
	users    []domain.User
}

func (m memStore) ListIssues(context.Context, repo.IssueFilter) ([]domain.Issue, int, error) {
	return m.issues, len(m.issues), nil
}

func (m memStore) ListMachines(context.Context) ([]domain.Machine, error) { return m.machines, nil }

func (m memStore) ListUsers(context.Context, repo.UserFilter) ([]domain.User, error) {
	return m.users, nil
}

func TestAggregatorGatesRollups(t *testing.T) {
	a := Aggregator{
		Store: memStore{issues: fixture(), machines: []domain.Machine{{ID: "MACH001", Name: "Press"}}},
		Now:   func() time.Time { return now },
	}
	ctx := context.Background()
	operator := domain.Principal{ID: "p", Service: domain.ServiceProduction, Role: domain.RoleTechnician}

	d, err := a.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Summary.TotalIssues)

	var fe auth.ForbiddenError
	_, err = a.ByMachine(ctx, operator)
	assert.True(t, errors.As(err, &fe))
	_, err = a.ByTechnician(ctx, operator)
	assert.True(t, errors.As(err, &fe))

	leader := domain.Principal{ID: "l", Service: domain.ServiceProduction, Role: domain.RoleTeamLeader}
	stats, err := a.ByMachine(ctx, leader)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].TotalIssues)
}
