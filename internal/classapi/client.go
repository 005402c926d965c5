package classapi

import (
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

// Remote is the set of store operations the sync engine depends on.
// It is implemented by *Client and by in-memory fakes in tests.
type Remote interface {
	FetchSnapshot(ctx context.Context, code string, opts FetchOptions) (Snapshot, error)
	WriteGroup(ctx context.Context, code string, group int, values []float64) error
	WritePairs(ctx context.Context, code string, xs, ys []float64) error
	DeleteGroupPoint(ctx context.Context, code string, group int, value float64) error
	DeletePair(ctx context.Context, code string, p Point) error
	DeleteGroupData(ctx context.Context, code, admin string, group int) error
	DeleteAll(ctx context.Context, code, admin string) error
	RenameVariable(ctx context.Context, code, admin string, index int, name string) error
	RenameGroup(ctx context.Context, code, admin string, index int, name string) error
	AddGroup(ctx context.Context, code, admin, name string) error
	DeleteGroup(ctx context.Context, code, admin string, index int) error
	SetEnabled(ctx context.Context, code, admin string, enabled bool) error
	CreateSession(ctx context.Context, spec NewSession) (Credentials, error)
	LookupSession(ctx context.Context, code, admin string) (SessionInfo, error)
	ExtendExpiration(ctx context.Context, code, admin string) (time.Time, error)
}

// Ensure Client implements Remote at compile time.
var _ Remote = (*Client)(nil)

// FetchOptions tunes a snapshot fetch.
type FetchOptions struct {
	// BypassCache asks the store to skip any cached response so the
	// fetch observes writes that just completed.
	BypassCache bool
}

// Client talks to the class session store over HTTP.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

const (
	defaultStoreURL  = "127.0.0.1:8750"
	defaultUserAgent = "tally/0.1"
	requestTimeout   = 10 * time.Second
	maxBodyBytes     = 8 << 20
)

// NewClient builds a Client for the store at storeURL (host:port or a full
// URL).
func NewClient(storeURL string) (*Client, error) {
	base, err := parseBaseURL(storeURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// BaseURL returns the normalized store address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// FetchSnapshot retrieves the full session snapshot.
func (c *Client) FetchSnapshot(ctx context.Context, code string, opts FetchOptions) (Snapshot, error) {
	if c == nil {
		return Snapshot{}, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	if opts.BypassCache {
		values.Set("nocache", "1")
	}
	rel := sessionURL(code, "snapshot")
	rel.RawQuery = values.Encode()
	body, err := c.doURL(ctx, "fetch snapshot", http.MethodGet, rel, nil, opts.BypassCache)
	if err != nil {
		return Snapshot{}, err
	}
	return ParseSnapshot(body)
}

// WriteGroup appends values to a 1-based group index.
func (c *Client) WriteGroup(ctx context.Context, code string, group int, values []float64) error {
	form := url.Values{}
	form.Set("group", strconv.Itoa(group))
	form.Set("values", JoinValues(values))
	return c.postEmpty(ctx, "write group", sessionURL(code, "data"), form)
}

// WritePairs appends row-aligned coordinates in one call.
func (c *Client) WritePairs(ctx context.Context, code string, xs, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("write pairs: %d x values but %d y values", len(xs), len(ys))
	}
	form := url.Values{}
	form.Set("x", JoinValues(xs))
	form.Set("y", JoinValues(ys))
	return c.postEmpty(ctx, "write pairs", sessionURL(code, "data"), form)
}

// DeleteGroupPoint removes one occurrence of value from a group.
func (c *Client) DeleteGroupPoint(ctx context.Context, code string, group int, value float64) error {
	form := url.Values{}
	form.Set("group", strconv.Itoa(group))
	form.Set("value", FormatValue(value))
	return c.postEmpty(ctx, "delete point", sessionURL(code, "delete-point"), form)
}

// DeletePair removes one occurrence of a paired observation.
func (c *Client) DeletePair(ctx context.Context, code string, p Point) error {
	form := url.Values{}
	form.Set("x", FormatValue(p.X))
	form.Set("y", FormatValue(p.Y))
	return c.postEmpty(ctx, "delete point", sessionURL(code, "delete-point"), form)
}

// DeleteGroupData removes every observation in a group.
func (c *Client) DeleteGroupData(ctx context.Context, code, admin string, group int) error {
	form := adminForm(admin)
	form.Set("group", strconv.Itoa(group))
	return c.postEmpty(ctx, "delete group data", sessionURL(code, "delete-group-data"), form)
}

// DeleteAll removes every observation in the session.
func (c *Client) DeleteAll(ctx context.Context, code, admin string) error {
	return c.postEmpty(ctx, "delete all", sessionURL(code, "delete-all"), adminForm(admin))
}

// RenameVariable renames a 1-based variable slot.
func (c *Client) RenameVariable(ctx context.Context, code, admin string, index int, name string) error {
	form := adminForm(admin)
	form.Set("name", name)
	return c.postEmpty(ctx, "rename variable", sessionURL(code, "variables", strconv.Itoa(index)), form)
}

// RenameGroup renames a 1-based group.
func (c *Client) RenameGroup(ctx context.Context, code, admin string, index int, name string) error {
	form := adminForm(admin)
	form.Set("name", name)
	return c.postEmpty(ctx, "rename group", sessionURL(code, "groups", strconv.Itoa(index)), form)
}

// AddGroup appends a new named group.
func (c *Client) AddGroup(ctx context.Context, code, admin, name string) error {
	form := adminForm(admin)
	form.Set("name", name)
	return c.postEmpty(ctx, "add group", sessionURL(code, "groups"), form)
}

// DeleteGroup removes a group and its observations.
func (c *Client) DeleteGroup(ctx context.Context, code, admin string, index int) error {
	form := adminForm(admin)
	form.Set("delete", "1")
	return c.postEmpty(ctx, "delete group", sessionURL(code, "groups", strconv.Itoa(index)), form)
}

// SetEnabled opens or closes data collection for non-admin writers.
func (c *Client) SetEnabled(ctx context.Context, code, admin string, enabled bool) error {
	form := adminForm(admin)
	if enabled {
		form.Set("enabled", "1")
	} else {
		form.Set("enabled", "0")
	}
	return c.postEmpty(ctx, "set enabled", sessionURL(code, "enabled"), form)
}

// CreateSession creates a session and returns its code and admin token.
func (c *Client) CreateSession(ctx context.Context, spec NewSession) (Credentials, error) {
	form := url.Values{}
	for _, v := range spec.Variables {
		form.Add("variable", v)
	}
	for _, g := range spec.Groups {
		form.Add("group", g)
	}
	var creds Credentials
	if err := c.postJSON(ctx, "create session", &url.URL{Path: "/api/sessions"}, form, &creds); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// LookupSession validates a code and, when admin is non-empty, the admin
// token.
func (c *Client) LookupSession(ctx context.Context, code, admin string) (SessionInfo, error) {
	values := url.Values{}
	if admin != "" {
		values.Set("admin", admin)
	}
	rel := sessionURL(code)
	rel.RawQuery = values.Encode()
	body, err := c.doURL(ctx, "lookup session", http.MethodGet, rel, nil, false)
	if err != nil {
		return SessionInfo{}, err
	}
	var info SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return SessionInfo{}, fmt.Errorf("decode response: %w", err)
	}
	return info, nil
}

// ExtendExpiration pushes the session's expiry out and returns the new
// deadline.
func (c *Client) ExtendExpiration(ctx context.Context, code, admin string) (time.Time, error) {
	var payload struct {
		Expires time.Time `json:"expires"`
	}
	if err := c.postJSON(ctx, "extend expiration", sessionURL(code, "extend"), adminForm(admin), &payload); err != nil {
		return time.Time{}, err
	}
	return payload.Expires, nil
}

func (c *Client) postEmpty(ctx context.Context, op string, rel *url.URL, form url.Values) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	body, err := c.doURL(ctx, op, http.MethodPost, rel, form, false)
	if err != nil {
		return err
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return &StoreError{Op: op, Message: msg}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, op string, rel *url.URL, form url.Values, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	body, err := c.doURL(ctx, op, http.MethodPost, rel, form, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doURL(ctx context.Context, op, method string, rel *url.URL, form url.Values, noCache bool) ([]byte, error) {
	reqURL := c.baseURL.ResolveReference(rel)
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if noCache {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%s: response larger than %d bytes", op, maxBodyBytes)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	if resp.StatusCode >= 400 {
		return nil, &StoreError{Op: op, Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func adminForm(admin string) url.Values {
	form := url.Values{}
	form.Set("admin", admin)
	return form
}

// sessionURL builds the relative URL for a session resource. The code is
// typed by people, so every segment is escaped.
func sessionURL(code string, rest ...string) *url.URL {
	segs := append([]string{NormalizeCode(code)}, rest...)
	escaped := make([]string, len(segs))
	for i, seg := range segs {
		escaped[i] = url.PathEscape(seg)
	}
	return &url.URL{
		Path:    "/api/sessions/" + strings.Join(segs, "/"),
		RawPath: "/api/sessions/" + strings.Join(escaped, "/"),
	}
}

func parseBaseURL(storeURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(storeURL)
	if trimmed == "" {
		trimmed = defaultStoreURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse store url %q: %w", storeURL, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
