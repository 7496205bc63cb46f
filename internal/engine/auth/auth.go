package auth

import (
	"fmt"
	"strings"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

// ForbiddenError indicates the principal may not perform an action.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("insufficient permissions for %s", e.Action)
}

// Policy is the set of roles and services allowed to perform an action.
// A principal passes when its role OR its service is a member.
type Policy struct {
	Action  string
	Allowed []string
}

func NewPolicy(action string, allowed ...string) Policy {
	return Policy{Action: action, Allowed: allowed}
}

// Allows applies the two-axis check.
func (p Policy) Allows(pr domain.Principal) bool {
	return Authorize(pr, p.Allowed...)
}

// Check returns a ForbiddenError when the principal is outside the policy.
func (p Policy) Check(pr domain.Principal) error {
	if p.Allows(pr) {
		return nil
	}
	return ForbiddenError{Action: p.Action}
}

func (p Policy) String() string {
	return p.Action + "[" + strings.Join(p.Allowed, ",") + "]"
}

// Authorize reports whether the principal's role or service is in allowed.
func Authorize(pr domain.Principal, allowed ...string) bool {
	for _, a := range allowed {
		if a == string(pr.Role) || a == string(pr.Service) {
			return true
		}
	}
	return false
}

var (
	CreateIssue    = NewPolicy("issue.create", "production", "supervisor", "team_leader")
	AssignIssue    = NewPolicy("issue.assign", "maintenance", "supervisor", "team_leader")
	CloseIssue     = NewPolicy("issue.close", "maintenance", "supervisor", "team_leader")
	ManageMachines = NewPolicy("machine.manage", "manager", "supervisor", "team_leader")
	DeleteMachine  = NewPolicy("machine.delete", "manager")
	ManageUsers    = NewPolicy("user.manage", "manager")
	ReadRollups    = NewPolicy("analytics.rollup", "supervisor", "team_leader", "manager", "maintenance")
)

// Privileged reports whether the principal's role lifts per-assignment restrictions.
func Privileged(pr domain.Principal) bool {
	switch pr.Role {
	case domain.RoleSupervisor, domain.RoleTeamLeader, domain.RoleManager:
		return true
	}
	return false
}
