package engine_test

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/db"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/events"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/migrate"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/repo"
)

// recorder keeps published events in memory.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

func (r *recorder) OfType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []events.Event
	for _, e := range r.events {
		if e.Type == t {
			res = append(res, e)
		}
	}
	return res
}

type testEnv struct {
	Engine engine.Engine
	Events *recorder
	Ctx    context.Context
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "issues.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	env := &testEnv{
		Events: &recorder{},
		Ctx:    ctx,
		now:    time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	env.Engine = engine.New(conn, env.Events, nil)
	env.Engine.Now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) advance(d time.Duration) { env.now = env.now.Add(d) }

func (env *testEnv) user(t *testing.T, matricule string, service domain.Service, role domain.Role) domain.Principal {
	t.Helper()
	u, err := env.Engine.Register(env.Ctx, engine.RegisterInput{
		Matricule: matricule,
		Name:      "User " + matricule,
		Password:  "pw-" + matricule,
		Service:   service,
		Role:      role,
	})
	require.NoError(t, err)
	return u.Principal()
}

func (env *testEnv) machine(t *testing.T, name string) string {
	t.Helper()
	mgr := domain.Principal{ID: "root", Service: domain.ServiceMaintenance, Role: domain.RoleManager, Active: true}
	res, err := env.Engine.CreateMachine(env.Ctx, mgr, engine.MachineInput{Name: name, Location: "Hall A"})
	require.NoError(t, err)
	return res.Machine.ID
}

// actors returns a production reporter, a maintenance technician and a machine id.
func (env *testEnv) actors(t *testing.T) (domain.Principal, domain.Principal, string) {
	t.Helper()
	reporter := env.user(t, "P100", domain.ServiceProduction, domain.RoleTechnician)
	tech := env.user(t, "M200", domain.ServiceMaintenance, domain.RoleTechnician)
	return reporter, tech, env.machine(t, "Press")
}

func (env *testEnv) report(t *testing.T, p domain.Principal, machineID string, urgency domain.Urgency) domain.Issue {
	t.Helper()
	is, err := env.Engine.CreateIssue(env.Ctx, p, engine.CreateIssueInput{
		MachineID:   machineID,
		Description: "oil leak under the press",
		Urgency:     urgency,
	})
	require.NoError(t, err)
	return is
}

func TestIssueLifecycle(t *testing.T) {
	env := newTestEnv(t)
	reporter, tech, machineID := env.actors(t)

	is := env.report(t, reporter, machineID, domain.UrgencyHigh)
	assert.Equal(t, "ISS001", is.ID)
	assert.Equal(t, domain.StatusReported, is.Status)
	assert.Equal(t, "Press", is.MachineName)
	require.NotNil(t, is.Reporter)
	assert.Equal(t, reporter.ID, is.Reporter.ID)
	assert.Nil(t, is.AssignedTech)
	require.Len(t, env.Events.OfType(events.NewIssue), 1)

	env.advance(30 * time.Minute)
	is, err := env.Engine.AssignIssue(env.Ctx, tech, is.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, is.Status)
	require.NotNil(t, is.AssignedTech)
	assert.Equal(t, tech.ID, is.AssignedTech.ID)
	require.NotNil(t, is.AcceptedAt)
	assert.True(t, is.AcceptedAt.Equal(env.now))

	env.advance(10 * time.Minute)
	is, err = env.Engine.UpdateStatus(env.Ctx, tech, is.ID, domain.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, is.Status)

	env.advance(time.Hour)
	is, err = env.Engine.CloseIssue(env.Ctx, tech, is.ID, engine.CloseIssueInput{
		Resolution:         "replaced the seal",
		ProblemDescription: "worn seal",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, is.Status)
	require.NotNil(t, is.ClosedAt)
	assert.True(t, is.ClosedAt.Equal(env.now))
	assert.Equal(t, "replaced the seal", is.Resolution)
	assert.Equal(t, "worn seal", is.ProblemDescription)

	texts := make([]string, 0, len(is.Notes))
	for _, n := range is.Notes {
		texts = append(texts, n.Text)
	}
	assert.Equal(t, []string{
		"Issue accepted and assigned",
		"Status changed to in_progress",
		"Issue closed. Resolution: replaced the seal",
	}, texts)

	assert.Len(t, env.Events.OfType(events.IssueUpdated), 2)
	closed := env.Events.OfType(events.IssueClosed)
	require.Len(t, closed, 1)
	payload, ok := closed[0].Data.(domain.Issue)
	require.True(t, ok)
	assert.Nil(t, payload.Notes)
	require.NotNil(t, payload.NotesCount)
	assert.Equal(t, 3, *payload.NotesCount)
}

func TestCloseTwiceIsInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	reporter, tech, machineID := env.actors(t)
	is := env.report(t, reporter, machineID, domain.UrgencyLow)
	_, err := env.Engine.AssignIssue(env.Ctx, tech, is.ID)
	require.NoError(t, err)
	_, err = env.Engine.CloseIssue(env.Ctx, tech, is.ID, engine.CloseIssueInput{Resolution: "done"})
	require.NoError(t, err)

	_, err = env.Engine.CloseIssue(env.Ctx, tech, is.ID, engine.CloseIssueInput{Resolution: "again"})
	assert.ErrorIs(t, err, engine.ErrAlreadyClosed)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
	assert.Len(t, env.Events.OfType(events.IssueClosed), 1)
}

func TestCloseRequiresResolution(t *testing.T) {
	env := newTestEnv(t)
	reporter, tech, machineID := env.actors(t)
	is := env.report(t, reporter, machineID, domain.UrgencyMedium)
	_, err := env.Engine.AssignIssue(env.Ctx, tech, is.ID)
	require.NoError(t, err)

	_, err = env.Engine.CloseIssue(env.Ctx, tech, is.ID, engine.CloseIssueInput{Resolution: "   "})
	var ve engine.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "resolution", ve.Field)

	got, err := env.Engine.GetIssue(env.Ctx, tech, is.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, got.Status)
	assert.Nil(t, got.ClosedAt)
}

func TestAssignRejectsLaterStates(t *testing.T) {
	env := newTestEnv(t)
	reporter, tech, machineID := env.actors(t)
	is := env.report(t, reporter, machineID, domain.UrgencyLow)
	_, err := env.Engine.AssignIssue(env.Ctx, tech, is.ID)
	require.NoError(t, err)

	// Reassigning while still assigned is allowed and moves the assignment.
	other := env.user(t, "M201", domain.ServiceMaintenance, domain.RoleTechnician)
	is, err = env.Engine.AssignIssue(env.Ctx, other, is.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, is.AssignedTech.ID)

	_, err = env.Engine.UpdateStatus(env.Ctx, other, is.ID, domain.StatusInProgress)
	require.NoError(t, err)
	_, err = env.Engine.AssignIssue(env.Ctx, tech, is.ID)
	var te engine.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, domain.StatusInProgress, te.From)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestUpdateStatusSetsWithoutTimestamps(t *testing.T) {
	env := newTestEnv(t)
	reporter, tech, machineID := env.actors(t)
	supervisor := env.user(t, "S300", domain.ServiceMaintenance, domain.RoleSupervisor)
	is := env.report(t, reporter, machineID, domain.UrgencyHigh)

	is, err := env.Engine.UpdateStatus(env.Ctx, supervisor, is.ID, domain.StatusClosed)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, is.Status)
	assert.Nil(t, is.ClosedAt)
	assert.Nil(t, is.AssignedTech)

	is, err = env.Engine.UpdateStatus(env.Ctx, supervisor, is.ID, domain.StatusReported)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReported, is.Status)

	// Moving an assigned issue back to reported keeps the assignee and acceptance time.
	is, err = env.Engine.AssignIssue(env.Ctx, supervisor, is.ID)
	require.NoError(t, err)
	accepted := is.AcceptedAt
	require.NotNil(t, accepted)
	is, err = env.Engine.UpdateStatus(env.Ctx, supervisor, is.ID, domain.StatusReported)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReported, is.Status)
	require.NotNil(t, is.AssignedTech)
	assert.Equal(t, supervisor.ID, is.AssignedTech.ID)
	require.NotNil(t, is.AcceptedAt)
	assert.True(t, is.AcceptedAt.Equal(*accepted))

	_, err = env.Engine.UpdateStatus(env.Ctx, supervisor, is.ID, domain.Status("parked"))
	var ve engine.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "status", ve.Field)

	var fe auth.ForbiddenError
	_, err = env.Engine.UpdateStatus(env.Ctx, reporter, is.ID, domain.StatusInProgress)
	assert.True(t, errors.As(err, &fe), "production service may not set status")
	_, err = env.Engine.UpdateStatus(env.Ctx, tech, is.ID, domain.StatusInProgress)
	assert.True(t, errors.As(err, &fe), "unassigned technician may not set status")
}

func TestConcurrentCreateAllocatesDistinctIDs(t *testing.T) {
	env := newTestEnv(t)
	reporter, _, machineID := env.actors(t)
	mgr := domain.Principal{ID: "root", Service: domain.ServiceMaintenance, Role: domain.RoleManager, Active: true}

	const n = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		issueIDs []string
		machIDs  []string
		errs     []error
	)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			is, err := env.Engine.CreateIssue(env.Ctx, reporter, engine.CreateIssueInput{
				MachineID: machineID, Description: "vibration", Urgency: domain.UrgencyLow,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			issueIDs = append(issueIDs, is.ID)
		}()
		go func() {
			defer wg.Done()
			res, err := env.Engine.CreateMachine(env.Ctx, mgr, engine.MachineInput{Name: "Lathe"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			machIDs = append(machIDs, res.Machine.ID)
		}()
	}
	wg.Wait()
	require.Empty(t, errs)

	wantIssues := make([]string, n)
	wantMachines := make([]string, n)
	for i := range wantIssues {
		wantIssues[i] = engine.IssueSequence.Format(i + 1)
		// MACH001 is the machine created by actors.
		wantMachines[i] = engine.MachineSequence.Format(i + 2)
	}
	sort.Strings(issueIDs)
	sort.Strings(machIDs)
	assert.Equal(t, wantIssues, issueIDs)
	assert.Equal(t, wantMachines, machIDs)
	assert.Len(t, env.Events.OfType(events.NewIssue), n)
}

func TestRoleGating(t *testing.T) {
	env := newTestEnv(t)
	reporter, tech, machineID := env.actors(t)
	var fe auth.ForbiddenError

	_, err := env.Engine.CreateIssue(env.Ctx, tech, engine.CreateIssueInput{MachineID: machineID, Description: "x", Urgency: domain.UrgencyLow})
	assert.True(t, errors.As(err, &fe), "maintenance technician may not report")

	leader := env.user(t, "L400", domain.ServiceMaintenance, domain.RoleTeamLeader)
	is := env.report(t, leader, machineID, domain.UrgencyLow)

	_, err = env.Engine.AssignIssue(env.Ctx, reporter, is.ID)
	assert.True(t, errors.As(err, &fe), "production technician may not accept")

	_, err = env.Engine.CloseIssue(env.Ctx, reporter, is.ID, engine.CloseIssueInput{Resolution: "x"})
	assert.True(t, errors.As(err, &fe))

	// A team leader may close an issue assigned to someone else.
	_, err = env.Engine.AssignIssue(env.Ctx, tech, is.ID)
	require.NoError(t, err)
	is, err = env.Engine.CloseIssue(env.Ctx, leader, is.ID, engine.CloseIssueInput{Resolution: "covered"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, is.Status)
}

func TestCreateIssueValidation(t *testing.T) {
	env := newTestEnv(t)
	reporter, _, machineID := env.actors(t)
	var ve engine.ValidationError

	_, err := env.Engine.CreateIssue(env.Ctx, reporter, engine.CreateIssueInput{MachineID: "MACH404", Description: "x", Urgency: domain.UrgencyLow})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "machine_id", ve.Field)

	_, err = env.Engine.CreateIssue(env.Ctx, reporter, engine.CreateIssueInput{MachineID: machineID, Description: " ", Urgency: domain.UrgencyLow})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "description", ve.Field)

	_, err = env.Engine.CreateIssue(env.Ctx, reporter, engine.CreateIssueInput{MachineID: machineID, Description: "x", Urgency: "urgent"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "urgency", ve.Field)

	assert.Empty(t, env.Events.OfType(events.NewIssue))
}

func TestIssueIDsContinueFromHighest(t *testing.T) {
	env := newTestEnv(t)
	reporter, _, machineID := env.actors(t)
	first := env.report(t, reporter, machineID, domain.UrgencyLow)
	second := env.report(t, reporter, machineID, domain.UrgencyLow)
	assert.Equal(t, "ISS001", first.ID)
	assert.Equal(t, "ISS002", second.ID)
}

func TestSequence(t *testing.T) {
	s := engine.IssueSequence
	assert.Equal(t, "ISS001", s.Next(nil))
	assert.Equal(t, "ISS008", s.Next([]string{"ISS002", "ISS007", "MACH999", "ISSabc", "ISS-9"}))
	assert.Equal(t, "ISS1000", s.Next([]string{"ISS999"}))

	id, err := s.Allocate(context.Background(), []string{"ISS007"}, func(_ context.Context, candidate string) (bool, error) {
		return candidate == "ISS008", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ISS009", id)

	assert.Equal(t, "MACH004", engine.MachineSequence.Next([]string{"MACH003", "MACH1x"}))
}

func TestIssueVisibility(t *testing.T) {
	env := newTestEnv(t)
	reporter, tech, machineID := env.actors(t)
	other := env.user(t, "P101", domain.ServiceProduction, domain.RoleTechnician)
	env.report(t, reporter, machineID, domain.UrgencyLow)
	env.advance(time.Minute)
	theirs := env.report(t, other, machineID, domain.UrgencyHigh)

	page, err := env.Engine.ListIssues(env.Ctx, reporter, engine.ListQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "ISS001", page.Issues[0].ID)

	page, err = env.Engine.ListIssues(env.Ctx, tech, engine.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	// Single fetch keys on role, which is never "production"; any caller can read it.
	got, err := env.Engine.GetIssue(env.Ctx, reporter, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, theirs.ID, got.ID)
}

func TestListIssuesPaginationAndFilters(t *testing.T) {
	env := newTestEnv(t)
	reporter, tech, machineID := env.actors(t)
	for i := 0; i < 12; i++ {
		urgency := domain.UrgencyLow
		if i%3 == 0 {
			urgency = domain.UrgencyHigh
		}
		env.report(t, reporter, machineID, urgency)
		env.advance(time.Minute)
	}
	_, err := env.Engine.AssignIssue(env.Ctx, tech, "ISS001")
	require.NoError(t, err)

	page, err := env.Engine.ListIssues(env.Ctx, tech, engine.ListQuery{Page: 2, PerPage: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 2, page.CurrentPage)
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrev)
	require.Len(t, page.Issues, 5)
	assert.Equal(t, "ISS007", page.Issues[0].ID, "newest first")

	page, err = env.Engine.ListIssues(env.Ctx, tech, engine.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultPerPage, page.PerPage)
	assert.Equal(t, "ISS012", page.Issues[0].ID)
	require.NotNil(t, page.Issues[0].NotesCount)

	page, err = env.Engine.ListIssues(env.Ctx, tech, engine.ListQuery{PerPage: 1000})
	require.NoError(t, err)
	assert.Equal(t, engine.MaxPerPage, page.PerPage)

	page, err = env.Engine.ListIssues(env.Ctx, tech, engine.ListQuery{Urgency: "high"})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)

	page, err = env.Engine.ListIssues(env.Ctx, tech, engine.ListQuery{Status: "assigned, in_progress"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "ISS001", page.Issues[0].ID)

	page, err = env.Engine.ListIssues(env.Ctx, tech, engine.ListQuery{Date: "2024-03-01"})
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	page, err = env.Engine.ListIssues(env.Ctx, tech, engine.ListQuery{Date: "2024-03-02"})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Issues)
	page, err = env.Engine.ListIssues(env.Ctx, tech, engine.ListQuery{Date: "yesterday"})
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total, "malformed date is ignored")

	_, err = env.Engine.ListIssues(env.Ctx, tech, engine.ListQuery{Status: "reported,lost"})
	var ve engine.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "status", ve.Field)
}

func TestAddNotePublishesOnce(t *testing.T) {
	env := newTestEnv(t)
	reporter, tech, machineID := env.actors(t)
	is := env.report(t, reporter, machineID, domain.UrgencyLow)

	note, err := env.Engine.AddNote(env.Ctx, tech, is.ID, "  checked the hoses ")
	require.NoError(t, err)
	assert.Equal(t, "checked the hoses", note.Text)
	require.NotNil(t, note.Author)
	assert.Equal(t, tech.ID, note.Author.ID)

	added := env.Events.OfType(events.NoteAdded)
	require.Len(t, added, 1)
	payload, ok := added[0].Data.(events.NotePayload)
	require.True(t, ok)
	assert.Equal(t, is.ID, payload.IssueID)
	assert.Equal(t, note.ID, payload.Note.ID)

	_, err = env.Engine.AddNote(env.Ctx, tech, is.ID, "")
	var ve engine.ValidationError
	require.True(t, errors.As(err, &ve))
	_, err = env.Engine.AddNote(env.Ctx, tech, "ISS999", "hello")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

type labelFunc func(ctx context.Context, machineID string) (string, error)

func (f labelFunc) WriteLabel(ctx context.Context, machineID string) (string, error) {
	return f(ctx, machineID)
}

func TestCreateMachineLabelFailureDoesNotFail(t *testing.T) {
	env := newTestEnv(t)
	mgr := env.user(t, "ADMIN001", domain.ServiceMaintenance, domain.RoleManager)

	var written []string
	env.Engine.Labels = labelFunc(func(_ context.Context, id string) (string, error) {
		written = append(written, id)
		return "/labels/" + id + ".png", nil
	})
	res, err := env.Engine.CreateMachine(env.Ctx, mgr, engine.MachineInput{Name: "Lathe"})
	require.NoError(t, err)
	assert.Equal(t, "MACH001", res.Machine.ID)
	assert.Equal(t, domain.MachineActive, res.Machine.Status)
	assert.True(t, res.LabelSaved)
	assert.Equal(t, []string{"MACH001"}, written)

	env.Engine.Labels = labelFunc(func(context.Context, string) (string, error) {
		return "", errors.New("disk full")
	})
	res, err = env.Engine.CreateMachine(env.Ctx, mgr, engine.MachineInput{Name: "Mill"})
	require.NoError(t, err)
	assert.Equal(t, "MACH002", res.Machine.ID)
	assert.False(t, res.LabelSaved)

	_, err = env.Engine.CreateMachine(env.Ctx, mgr, engine.MachineInput{Name: "Drill", Status: "broken"})
	var ve engine.ValidationError
	require.True(t, errors.As(err, &ve))

	tech := env.user(t, "M200", domain.ServiceMaintenance, domain.RoleTechnician)
	_, err = env.Engine.CreateMachine(env.Ctx, tech, engine.MachineInput{Name: "Saw"})
	var fe auth.ForbiddenError
	assert.True(t, errors.As(err, &fe))
}

func TestMachineUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	reporter, _, machineID := env.actors(t)
	mgr := env.user(t, "ADMIN001", domain.ServiceMaintenance, domain.RoleManager)
	supervisor := env.user(t, "S300", domain.ServiceMaintenance, domain.RoleSupervisor)

	status := domain.MachineMaintenance
	loc := "Hall B"
	m, err := env.Engine.UpdateMachine(env.Ctx, supervisor, machineID, engine.MachinePatch{Status: &status, Location: &loc})
	require.NoError(t, err)
	assert.Equal(t, domain.MachineMaintenance, m.Status)
	assert.Equal(t, "Hall B", m.Location)
	assert.Equal(t, "Press", m.Name)

	var fe auth.ForbiddenError
	assert.True(t, errors.As(env.Engine.DeleteMachine(env.Ctx, supervisor, machineID), &fe))

	is := env.report(t, reporter, machineID, domain.UrgencyLow)
	require.NoError(t, env.Engine.DeleteMachine(env.Ctx, mgr, machineID))
	_, err = env.Engine.Repo.GetMachine(env.Ctx, machineID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, env.Engine.DeleteMachine(env.Ctx, mgr, machineID), repo.ErrNotFound)

	// Issues outlive their machine.
	got, err := env.Engine.GetIssue(env.Ctx, reporter, is.ID)
	require.NoError(t, err)
	assert.Equal(t, machineID, got.MachineID)
	assert.Empty(t, got.MachineName)
}

func TestRegisterRejectsDuplicatesAndUnknownValues(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.Register(env.Ctx, engine.RegisterInput{
		Matricule: "T1", Name: "Tess", Email: "tess@example.com", Password: "pw",
		Service: domain.ServiceMaintenance, Role: domain.RoleTechnician,
	})
	require.NoError(t, err)
	assert.Equal(t, "T1", u.ID, "user id defaults to the matricule")
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "pw", u.PasswordHash)

	_, err = env.Engine.Register(env.Ctx, engine.RegisterInput{
		UserID: "other", Matricule: "T1", Name: "Dup", Password: "pw",
		Service: domain.ServiceMaintenance, Role: domain.RoleTechnician,
	})
	var ce repo.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "matricule_number", ce.Field)

	_, err = env.Engine.Register(env.Ctx, engine.RegisterInput{
		Matricule: "T2", Name: "Dup", Email: "tess@example.com", Password: "pw",
		Service: domain.ServiceMaintenance, Role: domain.RoleTechnician,
	})
	assert.ErrorIs(t, err, repo.ErrConflict)

	_, err = env.Engine.Register(env.Ctx, engine.RegisterInput{
		Matricule: "T3", Name: "X", Password: "pw", Service: "logistics", Role: domain.RoleTechnician,
	})
	var ve engine.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "service", ve.Field)

	_, err = env.Engine.Register(env.Ctx, engine.RegisterInput{Matricule: "T4", Name: "X", Service: domain.ServiceProduction, Role: domain.RoleTechnician})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "password", ve.Field)
}

func TestUserVisibilityAndUpdates(t *testing.T) {
	env := newTestEnv(t)
	mgr := env.user(t, "ADMIN001", domain.ServiceMaintenance, domain.RoleManager)
	_, err := env.Engine.Register(env.Ctx, engine.RegisterInput{
		Matricule: "T1", Name: "Tess", Email: "tess@example.com", Password: "pw",
		Service: domain.ServiceMaintenance, Role: domain.RoleTechnician,
	})
	require.NoError(t, err)
	tess := domain.Principal{ID: "T1", Service: domain.ServiceMaintenance, Role: domain.RoleTechnician, Active: true}

	u, err := env.Engine.GetUser(env.Ctx, tess, "T1")
	require.NoError(t, err)
	assert.Equal(t, "tess@example.com", u.Email)
	u, err = env.Engine.GetUser(env.Ctx, mgr, "T1")
	require.NoError(t, err)
	assert.Empty(t, u.Email)

	role := domain.RoleTeamLeader
	inactive := false
	u, err = env.Engine.UpdateUser(env.Ctx, mgr, "T1", engine.UserPatch{Role: &role, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeamLeader, u.Role)
	assert.False(t, u.Active)

	users, err := env.Engine.ListUsers(env.Ctx)
	require.NoError(t, err)
	require.Len(t, users, 1, "inactive users are not listed")
	assert.Equal(t, "ADMIN001", users[0].ID)

	_, err = env.Engine.UpdateUser(env.Ctx, tess, "ADMIN001", engine.UserPatch{Role: &role})
	var fe auth.ForbiddenError
	assert.True(t, errors.As(err, &fe))

	taken := "ADMIN001"
	_, err = env.Engine.UpdateUser(env.Ctx, mgr, "T1", engine.UserPatch{Matricule: &taken})
	assert.ErrorIs(t, err, repo.ErrConflict)
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	reporter, _, machineID := env.actors(t)
	mgr := env.user(t, "ADMIN001", domain.ServiceMaintenance, domain.RoleManager)
	idle := env.user(t, "M999", domain.ServiceMaintenance, domain.RoleTechnician)
	env.report(t, reporter, machineID, domain.UrgencyLow)

	var ve engine.ValidationError
	assert.True(t, errors.As(env.Engine.DeleteUser(env.Ctx, mgr, mgr.ID), &ve))
	assert.ErrorIs(t, env.Engine.DeleteUser(env.Ctx, mgr, reporter.ID), repo.ErrConflict)
	assert.ErrorIs(t, env.Engine.DeleteUser(env.Ctx, mgr, "ghost"), repo.ErrNotFound)

	require.NoError(t, env.Engine.DeleteUser(env.Ctx, mgr, idle.ID))
	_, err := env.Engine.Repo.GetUser(env.Ctx, idle.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestEnsureDefaultAdmin(t *testing.T) {
	env := newTestEnv(t)
	seed := engine.AdminSeed{UserID: "admin", Matricule: "ADMIN001", Name: "System Administrator", Password: "admin123"}
	created, err := env.Engine.EnsureDefaultAdmin(env.Ctx, seed)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = env.Engine.EnsureDefaultAdmin(env.Ctx, seed)
	require.NoError(t, err)
	assert.False(t, created)

	u, err := env.Engine.Repo.GetUser(env.Ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, u.Role)
	assert.Equal(t, domain.ServiceMaintenance, u.Service)
}

func TestSeedTestIssues(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SeedTestIssues(env.Ctx, 5, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, engine.ErrSeedPrerequisite)

	reporter, _, machineID := env.actors(t)
	n, err := env.Engine.SeedTestIssues(env.Ctx, 25, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	page, err := env.Engine.ListIssues(env.Ctx, reporter, engine.ListQuery{PerPage: 100})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	for _, is := range page.Issues {
		assert.Regexp(t, `^TEST\d{3}$`, is.ID)
		assert.False(t, is.CreatedAt.After(env.now))
		if is.ClosedAt != nil {
			assert.True(t, is.ClosedAt.After(is.CreatedAt))
		}
	}

	is := env.report(t, reporter, machineID, domain.UrgencyLow)
	assert.Equal(t, "ISS001", is.ID, "seeded ids do not advance the issue sequence")
}
