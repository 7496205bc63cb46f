package issuetrackersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal issue tracker HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/api",
		Timeout:  10 * time.Second,
	}
}

// User is the account representation returned by the API.
type User struct {
	ID        string `json:"user_id"`
	Matricule string `json:"matricule_number"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Service   string `json:"service"`
	Role      string `json:"role"`
	Active    bool   `json:"is_active"`
}

type Machine struct {
	ID       string `json:"machine_id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Status   string `json:"status"`
}

type Note struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	Text      string    `json:"text"`
	Author    *User     `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Issue represents the API issue model (partial).
type Issue struct {
	ID                 string     `json:"issue_id"`
	MachineID          string     `json:"machine_id"`
	MachineName        string     `json:"machine_name"`
	Description        string     `json:"description"`
	Urgency            string     `json:"urgency"`
	Status             string     `json:"status"`
	Reporter           *User      `json:"reporter"`
	AssignedTech       *User      `json:"assigned_tech"`
	CreatedAt          time.Time  `json:"created_at"`
	AcceptedAt         *time.Time `json:"accepted_at"`
	ClosedAt           *time.Time `json:"closed_at"`
	Resolution         string     `json:"resolution,omitempty"`
	ProblemDescription string     `json:"problem_description,omitempty"`
	Notes              []Note     `json:"notes,omitempty"`
}

// IssuePage wraps paginated issue listings.
type IssuePage struct {
	Issues      []Issue `json:"issues"`
	Total       int     `json:"total"`
	Pages       int     `json:"pages"`
	CurrentPage int     `json:"current_page"`
	PerPage     int     `json:"per_page"`
	HasNext     bool    `json:"has_next"`
	HasPrev     bool    `json:"has_prev"`
}

type IssueQuery struct {
	Status    string
	Urgency   string
	MachineID string
	Date      string
	Page      int
	PerPage   int
}

type Dashboard struct {
	Summary struct {
		TotalIssues            int     `json:"total_issues"`
		OpenIssues             int     `json:"open_issues"`
		HighPriority           int     `json:"high_priority"`
		AvgResolutionTimeHours float64 `json:"avg_resolution_time_hours"`
		IssuesToday            int     `json:"issues_today"`
	} `json:"summary"`
	ByStatus  map[string]int `json:"by_status"`
	ByUrgency map[string]int `json:"by_urgency"`
}

// APIError wraps non-2xx responses. Code and Message are filled from the
// error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, matricule, password string) (User, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	body := map[string]string{"matricule_number": matricule, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// RegisterInput is the account creation payload.
type RegisterInput struct {
	UserID          string `json:"user_id,omitempty"`
	MatriculeNumber string `json:"matricule_number"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	Password        string `json:"password"`
	Service         string `json:"service"`
	Role            string `json:"role"`
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "auth/register", in, &resp)
	return resp.User, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "users/me", nil, &u)
	return u, err
}

func (c *Client) ListMachines(ctx context.Context) ([]Machine, error) {
	var resp struct {
		Machines []Machine `json:"machines"`
	}
	err := c.do(ctx, http.MethodGet, "machines", nil, &resp)
	return resp.Machines, err
}

// CreateMachine registers a machine. The boolean reports whether its QR label was stored.
func (c *Client) CreateMachine(ctx context.Context, name, location, status string) (Machine, bool, error) {
	var resp struct {
		Machine     Machine `json:"machine"`
		QRCodeSaved bool    `json:"qr_code_saved"`
	}
	body := map[string]string{"name": name, "location": location}
	if status != "" {
		body["status"] = status
	}
	err := c.do(ctx, http.MethodPost, "machines", body, &resp)
	return resp.Machine, resp.QRCodeSaved, err
}

func (c *Client) ListIssues(ctx context.Context, q IssueQuery) (IssuePage, error) {
	v := url.Values{}
	setIf := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	setIf("status", q.Status)
	setIf("urgency", q.Urgency)
	setIf("machine_id", q.MachineID)
	setIf("date", q.Date)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	endpoint := "issues"
	if len(v) > 0 {
		endpoint += "?" + v.Encode()
	}
	var page IssuePage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &page)
	return page, err
}

func (c *Client) GetIssue(ctx context.Context, id string) (Issue, error) {
	var is Issue
	err := c.do(ctx, http.MethodGet, "issues/"+url.PathEscape(id), nil, &is)
	return is, err
}

// CreateIssue reports a problem on a machine.
func (c *Client) CreateIssue(ctx context.Context, machineID, description, urgency string) (Issue, error) {
	body := map[string]string{"machine_id": machineID, "description": description, "urgency": urgency}
	return c.issueAction(ctx, http.MethodPost, "issues", body)
}

func (c *Client) AssignIssue(ctx context.Context, id string) (Issue, error) {
	return c.issueAction(ctx, http.MethodPost, "issues/"+url.PathEscape(id)+"/assign", nil)
}

func (c *Client) UpdateStatus(ctx context.Context, id, status string) (Issue, error) {
	return c.issueAction(ctx, http.MethodPatch, "issues/"+url.PathEscape(id)+"/status", map[string]string{"status": status})
}

func (c *Client) CloseIssue(ctx context.Context, id, resolution, problem string) (Issue, error) {
	body := map[string]string{"resolution": resolution}
	if problem != "" {
		body["problem_description"] = problem
	}
	return c.issueAction(ctx, http.MethodPost, "issues/"+url.PathEscape(id)+"/close", body)
}

func (c *Client) AddNote(ctx context.Context, id, text string) (Note, error) {
	var resp struct {
		Note Note `json:"note"`
	}
	err := c.do(ctx, http.MethodPost, "issues/"+url.PathEscape(id)+"/notes", map[string]string{"text": text}, &resp)
	return resp.Note, err
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	err := c.do(ctx, http.MethodGet, "analytics/dashboard", nil, &d)
	return d, err
}

// Export downloads the issue report. format is "excel" or "pdf".
func (c *Client) Export(ctx context.Context, format string) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, "issues/export?format="+url.QueryEscape(format), nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return data, resp.Header.Get("Content-Type"), err
}

func (c *Client) issueAction(ctx context.Context, method, endpoint string, body any) (Issue, error) {
	var resp struct {
		Issue Issue `json:"issue"`
	}
	err := c.do(ctx, method, endpoint, body, &resp)
	return resp.Issue, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
