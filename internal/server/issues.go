package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/analytics"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/export"
)

func registerIssues(api huma.API, e engine.Engine) {
	type issuePath struct {
		IssueID string `path:"issue_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/issues",
		Summary:     "List issues",
		Description: "Production users only see issues they reported. status accepts a comma separated set.",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status"`
		Urgency   string `query:"urgency"`
		MachineID string `query:"machine_id"`
		Date      string `query:"date" doc:"YYYY-MM-DD; ignored when malformed"`
		Page      int    `query:"page"`
		PerPage   int    `query:"per_page"`
	}) (*jsonOutput[domain.IssuePage], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListIssues(ctx, p, engine.ListQuery{
			Status:    input.Status,
			Urgency:   input.Urgency,
			MachineID: input.MachineID,
			Date:      input.Date,
			Page:      input.Page,
			PerPage:   input.PerPage,
		})
		if err != nil {
			return nil, handleError(err)
		}
		page.Issues = nonNil(page.Issues)
		return respond(page), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/issues/{issue_id}",
		Summary:     "Get issue with notes",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *issuePath) (*jsonOutput[domain.Issue], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.GetIssue(ctx, p, input.IssueID)
		if err != nil {
			return nil, handleError(err)
		}
		is.Notes = nonNil(is.Notes)
		return respond(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/issues",
		Summary:       "Report an issue",
		Tags:          []string{"issues"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   huma.Middlewares{requireAccess(api, auth.CreateIssue)},
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateIssueRequest
	}) (*jsonOutput[IssueResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.CreateIssue(ctx, p, engine.CreateIssueInput{
			MachineID:   input.Body.MachineID,
			Description: input.Body.Description,
			Urgency:     domain.Urgency(input.Body.Urgency),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(IssueResponse{Message: "Issue created successfully", Issue: is}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/assign",
		Summary:     "Accept an issue and assign it to the caller",
		Tags:        []string{"issues"},
		Middlewares: huma.Middlewares{requireAccess(api, auth.AssignIssue)},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *issuePath) (*jsonOutput[IssueResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.AssignIssue(ctx, p, input.IssueID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(IssueResponse{Message: "Issue assigned successfully", Issue: is}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue-status",
		Method:      http.MethodPatch,
		Path:        "/issues/{issue_id}/status",
		Summary:     "Set issue status",
		Description: "Sets any valid status directly. Timestamps and assignment are left untouched.",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IssueID string `path:"issue_id"`
		Body    UpdateStatusRequest
	}) (*jsonOutput[IssueResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.UpdateStatus(ctx, p, input.IssueID, domain.Status(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(IssueResponse{Message: "Status updated successfully", Issue: is}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/close",
		Summary:     "Close an issue with a resolution",
		Tags:        []string{"issues"},
		Middlewares: huma.Middlewares{requireAccess(api, auth.CloseIssue)},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IssueID string `path:"issue_id"`
		Body    CloseIssueRequest
	}) (*jsonOutput[IssueResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.CloseIssue(ctx, p, input.IssueID, engine.CloseIssueInput{
			Resolution:         input.Body.Resolution,
			ProblemDescription: input.Body.ProblemDescription,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(IssueResponse{Message: "Issue closed successfully", Issue: is}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-note",
		Method:        http.MethodPost,
		Path:          "/issues/{issue_id}/notes",
		Summary:       "Add a note",
		Tags:          []string{"issues"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IssueID string `path:"issue_id"`
		Body    AddNoteRequest
	}) (*jsonOutput[NoteResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.AddNote(ctx, p, input.IssueID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(NoteResponse{Message: "Note added successfully", Note: n}), nil
	})
}

func registerExport(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-issues",
		Method:      http.MethodGet,
		Path:        "/issues/export",
		Summary:     "Export issues as a spreadsheet or PDF report",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Format    string `query:"format" default:"excel" doc:"excel or pdf"`
		Date      string `query:"date"`
		MachineID string `query:"machine_id"`
	}) (*binaryOutput, error) {
		renderer, err := export.For(input.Format)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid format", map[string]any{"format": input.Format})
		}
		issues, err := e.ExportIssues(ctx, input.Date, input.MachineID)
		if err != nil {
			return nil, handleError(err)
		}
		var buf bytes.Buffer
		if err := renderer.Render(&buf, export.BuildRows(issues)); err != nil {
			return nil, handleError(fmt.Errorf("render export: %w", err))
		}
		return &binaryOutput{
			ContentType:        renderer.ContentType(),
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", renderer.Filename(time.Now())),
			Body:               buf.Bytes(),
		}, nil
	})
}

func registerAnalytics(api huma.API, a analytics.Aggregator) {
	huma.Register(api, huma.Operation{
		OperationID: "analytics-dashboard",
		Method:      http.MethodGet,
		Path:        "/analytics/dashboard",
		Summary:     "Dashboard summary",
		Tags:        []string{"analytics"},
	}, func(ctx context.Context, _ *struct{}) (*jsonOutput[domain.Dashboard], error) {
		d, err := a.Dashboard(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-by-machine",
		Method:      http.MethodGet,
		Path:        "/analytics/by-machine",
		Summary:     "Issue counts per machine",
		Tags:        []string{"analytics"},
		Middlewares: huma.Middlewares{requireAccess(api, auth.ReadRollups)},
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*jsonOutput[MachineStatsResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := a.ByMachine(ctx, p)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(MachineStatsResponse{Machines: nonNil(stats)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-by-technician",
		Method:      http.MethodGet,
		Path:        "/analytics/by-technician",
		Summary:     "Workload per technician",
		Tags:        []string{"analytics"},
		Middlewares: huma.Middlewares{requireAccess(api, auth.ReadRollups)},
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*jsonOutput[TechnicianStatsResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := a.ByTechnician(ctx, p)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(TechnicianStatsResponse{Technicians: nonNil(stats)}), nil
	})
}
