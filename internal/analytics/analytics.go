// Package analytics derives read-only metrics from the issue history.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/repo"
)

// Store is the read side the aggregator needs.
type Store interface {
	ListIssues(ctx context.Context, f repo.IssueFilter) ([]domain.Issue, int, error)
	ListMachines(ctx context.Context) ([]domain.Machine, error)
	ListUsers(ctx context.Context, f repo.UserFilter) ([]domain.User, error)
}

type Aggregator struct {
	Store Store
	Now   func() time.Time
}

func (a Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

// Dashboard is open to any authenticated principal.
func (a Aggregator) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	issues, _, err := a.Store.ListIssues(ctx, repo.IssueFilter{})
	if err != nil {
		return domain.Dashboard{}, err
	}
	return Dashboard(issues, a.now()), nil
}

func (a Aggregator) ByMachine(ctx context.Context, p domain.Principal) ([]domain.MachineStats, error) {
	if err := auth.ReadRollups.Check(p); err != nil {
		return nil, err
	}
	issues, _, err := a.Store.ListIssues(ctx, repo.IssueFilter{})
	if err != nil {
		return nil, err
	}
	machines, err := a.Store.ListMachines(ctx)
	if err != nil {
		return nil, err
	}
	return ByMachine(issues, machines), nil
}

func (a Aggregator) ByTechnician(ctx context.Context, p domain.Principal) ([]domain.TechnicianStats, error) {
	if err := auth.ReadRollups.Check(p); err != nil {
		return nil, err
	}
	issues, _, err := a.Store.ListIssues(ctx, repo.IssueFilter{})
	if err != nil {
		return nil, err
	}
	techs, err := a.Store.ListUsers(ctx, repo.UserFilter{ActiveOnly: true, Service: domain.ServiceMaintenance})
	if err != nil {
		return nil, err
	}
	return ByTechnician(issues, techs), nil
}

// Dashboard summarizes all issues. The average resolution time runs from
// creation to close and covers closed issues that carry a close timestamp.
func Dashboard(issues []domain.Issue, now time.Time) domain.Dashboard {
	d := domain.Dashboard{
		ByStatus:  map[string]int{},
		ByUrgency: map[string]int{},
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var hours []float64
	for _, is := range issues {
		d.Summary.TotalIssues++
		d.ByStatus[string(is.Status)]++
		d.ByUrgency[string(is.Urgency)]++
		if is.Status != domain.StatusClosed {
			d.Summary.OpenIssues++
		}
		if is.Urgency == domain.UrgencyHigh && is.Status == domain.StatusReported {
			d.Summary.HighPriority++
		}
		if is.Status == domain.StatusClosed && is.ClosedAt != nil {
			hours = append(hours, is.ClosedAt.Sub(is.CreatedAt).Hours())
		}
		if !is.CreatedAt.Before(midnight) {
			d.Summary.IssuesToday++
		}
	}
	d.Summary.AvgResolutionTimeHours = averageHours(hours)
	return d
}

// ByMachine counts issues per known machine, busiest first.
func ByMachine(issues []domain.Issue, machines []domain.Machine) []domain.MachineStats {
	idx := make(map[string]*domain.MachineStats, len(machines))
	for _, m := range machines {
		idx[m.ID] = &domain.MachineStats{MachineID: m.ID, MachineName: m.Name}
	}
	for _, is := range issues {
		s, ok := idx[is.MachineID]
		if !ok {
			continue
		}
		s.TotalIssues++
		if is.Status == domain.StatusClosed {
			s.ClosedIssues++
		}
		if is.Urgency == domain.UrgencyHigh {
			s.HighUrgencyIssues++
		}
	}
	res := make([]domain.MachineStats, 0, len(idx))
	for _, s := range idx {
		if s.TotalIssues > 0 {
			res = append(res, *s)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].TotalIssues != res[j].TotalIssues {
			return res[i].TotalIssues > res[j].TotalIssues
		}
		return res[i].MachineID < res[j].MachineID
	})
	return res
}

// ByTechnician reports workload per technician. The average resolution time
// runs from acceptance to close, unlike the dashboard figure, and only counts
// closed issues that were accepted; closed issues without acceptance are
// left out of the divisor on purpose.
func ByTechnician(issues []domain.Issue, techs []domain.User) []domain.TechnicianStats {
	res := make([]domain.TechnicianStats, 0, len(techs))
	for _, t := range techs {
		s := domain.TechnicianStats{Technician: t.Public()}
		var hours []float64
		for _, is := range issues {
			if is.AssignedTechID != t.ID {
				continue
			}
			s.AssignedIssues++
			if is.Status != domain.StatusClosed {
				continue
			}
			s.ClosedIssues++
			if is.ClosedAt != nil && is.AcceptedAt != nil {
				hours = append(hours, is.ClosedAt.Sub(*is.AcceptedAt).Hours())
			}
		}
		s.AvgResolutionTimeHours = averageHours(hours)
		res = append(res, s)
	}
	return res
}

func averageHours(hours []float64) float64 {
	if len(hours) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hours {
		sum += h
	}
	return math.Round(sum/float64(len(hours))*100) / 100
}
