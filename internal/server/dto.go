package server

import (
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

// Request payloads. Fields are optional at the schema level; the engine
// reports missing values with a field-specific message.

type LoginRequest struct {
	MatriculeNumber string `json:"matricule_number,omitempty"`
	Password        string `json:"password,omitempty"`
}

type RegisterRequest struct {
	UserID          string `json:"user_id,omitempty"`
	MatriculeNumber string `json:"matricule_number,omitempty"`
	Name            string `json:"name,omitempty"`
	Email           string `json:"email,omitempty"`
	Password        string `json:"password,omitempty"`
	Service         string `json:"service,omitempty" example:"maintenance"`
	Role            string `json:"role,omitempty" example:"technician"`
}

type UpdateUserRequest struct {
	Name            *string `json:"name,omitempty"`
	Service         *string `json:"service,omitempty"`
	Role            *string `json:"role,omitempty"`
	Email           *string `json:"email,omitempty"`
	MatriculeNumber *string `json:"matricule_number,omitempty"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

type CreateMachineRequest struct {
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status,omitempty" example:"active"`
}

type UpdateMachineRequest struct {
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
	Status   *string `json:"status,omitempty"`
}

type CreateIssueRequest struct {
	MachineID   string `json:"machine_id,omitempty"`
	Description string `json:"description,omitempty"`
	Urgency     string `json:"urgency,omitempty" example:"high"`
}

type UpdateStatusRequest struct {
	Status string `json:"status,omitempty" example:"in_progress"`
}

type CloseIssueRequest struct {
	Resolution         string `json:"resolution,omitempty"`
	ProblemDescription string `json:"problem_description,omitempty"`
}

type AddNoteRequest struct {
	Text string `json:"text,omitempty"`
}

// Response payloads

type LoginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UserResponse struct {
	Message string      `json:"message"`
	User    domain.User `json:"user"`
}

type UsersResponse struct {
	Users []domain.User `json:"users"`
}

type MachineResponse struct {
	Message string         `json:"message"`
	Machine domain.Machine `json:"machine"`
}

type MachineCreatedResponse struct {
	Message     string         `json:"message"`
	Machine     domain.Machine `json:"machine"`
	QRCodeSaved bool           `json:"qr_code_saved"`
}

type MachinesResponse struct {
	Machines []domain.Machine `json:"machines"`
}

type IssueResponse struct {
	Message string       `json:"message"`
	Issue   domain.Issue `json:"issue"`
}

type NoteResponse struct {
	Message string      `json:"message"`
	Note    domain.Note `json:"note"`
}

type MachineStatsResponse struct {
	Machines []domain.MachineStats `json:"machines"`
}

type TechnicianStatsResponse struct {
	Technicians []domain.TechnicianStats `json:"technicians"`
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
