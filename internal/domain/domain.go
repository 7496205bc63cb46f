package domain

import "time"

// Service is the organizational department axis of a principal.
type Service string

const (
	ServiceMaintenance Service = "maintenance"
	ServiceProduction  Service = "production"
)

// Role is the functional rank axis of a principal.
type Role string

const (
	RoleTechnician Role = "technician"
	RoleTeamLeader Role = "team_leader"
	RoleSupervisor Role = "supervisor"
	RoleManager    Role = "manager"
)

var (
	Services = []Service{ServiceMaintenance, ServiceProduction}
	Roles    = []Role{RoleTechnician, RoleTeamLeader, RoleSupervisor, RoleManager}
)

func (s Service) Valid() bool {
	for _, v := range Services {
		if v == s {
			return true
		}
	}
	return false
}

func (r Role) Valid() bool {
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of an issue.
type Status string

const (
	StatusReported   Status = "reported"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
)

var Statuses = []Status{StatusReported, StatusAssigned, StatusInProgress, StatusClosed}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

var Urgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh}

func (u Urgency) Valid() bool {
	return u == UrgencyLow || u == UrgencyMedium || u == UrgencyHigh
}

// Rank orders urgencies for listings: high first, unknown last.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 3
	default:
		return 4
	}
}

type MachineStatus string

const (
	MachineActive      MachineStatus = "active"
	MachineInactive    MachineStatus = "inactive"
	MachineMaintenance MachineStatus = "maintenance"
)

func (s MachineStatus) Valid() bool {
	return s == MachineActive || s == MachineInactive || s == MachineMaintenance
}

// Principal is the authenticated actor a request runs as.
type Principal struct {
	ID      string  `json:"user_id"`
	Name    string  `json:"name"`
	Service Service `json:"service"`
	Role    Role    `json:"role"`
	Active  bool    `json:"is_active"`
}

// User is the stored account behind a principal.
type User struct {
	ID           string    `json:"user_id"`
	Matricule    string    `json:"matricule_number"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Service      Service   `json:"service"`
	Role         Role      `json:"role"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	PasswordHash string    `json:"-"`
}

func (u User) Principal() Principal {
	return Principal{ID: u.ID, Name: u.Name, Service: u.Service, Role: u.Role, Active: u.Active}
}

// Public strips fields only the account owner may see.
func (u User) Public() User {
	u.Email = ""
	return u
}

// UserSummary is the embedded form of a user on issues and notes.
type UserSummary struct {
	ID        string  `json:"user_id"`
	Matricule string  `json:"matricule_number,omitempty"`
	Name      string  `json:"name"`
	Service   Service `json:"service"`
	Role      Role    `json:"role"`
}

type Machine struct {
	ID        string        `json:"machine_id"`
	Name      string        `json:"name"`
	Location  string        `json:"location,omitempty"`
	Status    MachineStatus `json:"status" enum:"active,inactive,maintenance"`
	CreatedAt time.Time     `json:"created_at"`
}

type Issue struct {
	ID                 string       `json:"issue_id"`
	MachineID          string       `json:"machine_id"`
	MachineName        string       `json:"machine_name,omitempty"`
	Description        string       `json:"description"`
	Urgency            Urgency      `json:"urgency" enum:"low,medium,high"`
	Status             Status       `json:"status" enum:"reported,assigned,in_progress,closed"`
	ReporterID         string       `json:"-"`
	Reporter           *UserSummary `json:"reporter"`
	AssignedTechID     string       `json:"-"`
	AssignedTech       *UserSummary `json:"assigned_tech"`
	CreatedAt          time.Time    `json:"created_at"`
	AcceptedAt         *time.Time   `json:"accepted_at"`
	ClosedAt           *time.Time   `json:"closed_at"`
	Resolution         string       `json:"resolution,omitempty"`
	ProblemDescription string       `json:"problem_description,omitempty"`
	NotesCount         *int         `json:"notes_count,omitempty"`
	Notes              []Note       `json:"notes,omitempty"`
}

type Note struct {
	ID        int64        `json:"id"`
	IssueID   string       `json:"issue_id"`
	Text      string       `json:"text"`
	AuthorID  string       `json:"-"`
	Author    *UserSummary `json:"author"`
	CreatedAt time.Time    `json:"created_at"`
}

// IssuePage is one page of a filtered issue listing.
type IssuePage struct {
	Issues      []Issue `json:"issues"`
	Total       int     `json:"total"`
	Pages       int     `json:"pages"`
	CurrentPage int     `json:"current_page"`
	PerPage     int     `json:"per_page"`
	HasNext     bool    `json:"has_next"`
	HasPrev     bool    `json:"has_prev"`
}

type DashboardSummary struct {
	TotalIssues            int     `json:"total_issues"`
	OpenIssues             int     `json:"open_issues"`
	HighPriority           int     `json:"high_priority"`
	AvgResolutionTimeHours float64 `json:"avg_resolution_time_hours"`
	IssuesToday            int     `json:"issues_today"`
}

type Dashboard struct {
	Summary   DashboardSummary `json:"summary"`
	ByStatus  map[string]int   `json:"by_status"`
	ByUrgency map[string]int   `json:"by_urgency"`
}

type MachineStats struct {
	MachineID         string `json:"machine_id"`
	MachineName       string `json:"machine_name"`
	TotalIssues       int    `json:"total_issues"`
	ClosedIssues      int    `json:"closed_issues"`
	HighUrgencyIssues int    `json:"high_urgency_issues"`
}

type TechnicianStats struct {
	Technician             User    `json:"technician"`
	AssignedIssues         int     `json:"assigned_issues"`
	ClosedIssues           int     `json:"closed_issues"`
	AvgResolutionTimeHours float64 `json:"avg_resolution_time_hours"`
}
