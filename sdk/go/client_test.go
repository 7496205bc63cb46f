package issuetrackersdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/app"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/config"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/server"
)

func newAPI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "issues.db")
	cfg.Labels.Dir = filepath.Join(dir, "labels")
	ctx := context.Background()
	a, err := app.Build(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.SeedAdmin(ctx))
	handler, err := server.New(server.Config{
		Engine:    a.Engine,
		Auth:      a.Auth,
		Analytics: a.Analytics,
		Hub:       a.Hub,
		Labels:    a.Labels.Encoder,
		BasePath:  cfg.Server.BasePath,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(func() {
		ts.Close()
		a.Close()
	})
	return ts.URL
}

func TestClientIssueFlow(t *testing.T) {
	ctx := context.Background()
	baseURL := newAPI(t)
	c := New(baseURL)

	me, err := c.Login(ctx, "ADMIN001", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "manager", me.Role)
	assert.NotEmpty(t, c.BearerToken)

	m, saved, err := c.CreateMachine(ctx, "Press", "Line 1", "")
	require.NoError(t, err)
	assert.Equal(t, "MACH001", m.ID)
	assert.True(t, saved)

	reporter := New(baseURL)
	_, err = reporter.Register(ctx, RegisterInput{
		MatriculeNumber: "P100",
		Name:            "Line operator",
		Password:        "pw-P100",
		Service:         "production",
		Role:            "technician",
	})
	require.NoError(t, err)
	_, err = reporter.Login(ctx, "P100", "pw-P100")
	require.NoError(t, err)

	is, err := reporter.CreateIssue(ctx, m.ID, "hydraulic leak", "high")
	require.NoError(t, err)
	assert.Equal(t, "ISS001", is.ID)
	assert.Equal(t, "reported", is.Status)

	is, err = c.AssignIssue(ctx, is.ID)
	require.NoError(t, err)
	assert.Equal(t, "assigned", is.Status)
	require.NotNil(t, is.AssignedTech)
	assert.Equal(t, me.ID, is.AssignedTech.ID)

	is, err = c.UpdateStatus(ctx, is.ID, "in_progress")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", is.Status)

	note, err := c.AddNote(ctx, is.ID, "seal ordered")
	require.NoError(t, err)
	assert.Equal(t, "seal ordered", note.Text)

	is, err = c.CloseIssue(ctx, is.ID, "replaced seal", "")
	require.NoError(t, err)
	assert.Equal(t, "closed", is.Status)
	assert.NotNil(t, is.ClosedAt)

	detail, err := c.GetIssue(ctx, is.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, detail.Notes)

	page, err := c.ListIssues(ctx, IssueQuery{Status: "closed"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	d, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Summary.TotalIssues)
	assert.Equal(t, 0, d.Summary.OpenIssues)

	data, contentType, err := c.Export(ctx, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	ctx := context.Background()
	c := New(newAPI(t))

	_, err := c.Me(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)

	_, err = c.Login(ctx, "ADMIN001", "wrong")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
