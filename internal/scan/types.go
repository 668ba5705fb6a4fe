package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/ratelimit"
)

// Status is the closed set of probe outcomes.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	StatusUnknown  Status = "unknown"  // inconclusive classification
	StatusBlocked  Status = "blocked"  // anti-automation defenses detected
	StatusError    Status = "error"    // transport or implementation failure
)

var statuses = []Status{StatusFound, StatusNotFound, StatusUnknown, StatusBlocked, StatusError}

func (s Status) Valid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus accepts the wire form case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// Result is one probe outcome. Providers create it, addons enrich Profile.
type Result struct {
	Provider   string         `json:"provider"`
	Username   string         `json:"username"`
	URL        string         `json:"url"`
	Status     Status         `json:"status"`
	HTTPStatus *int           `json:"http_status"`
	ElapsedMS  int64          `json:"elapsed_ms"`
	Evidence   map[string]any `json:"evidence"`
	Profile    map[string]any `json:"profile"`
	Error      *string        `json:"error"`
	Timestamp  string         `json:"timestamp_iso"`
}

// NewResult returns a Result with empty bags and a completion timestamp.
func NewResult(provider, username, url string, status Status) *Result {
	return &Result{
		Provider:  provider,
		Username:  username,
		URL:       url,
		Status:    status,
		Evidence:  map[string]any{},
		Profile:   map[string]any{},
		Timestamp: Now(),
	}
}

// ErrorResult converts err into an error-status Result.
func ErrorResult(provider, username, url string, err error) *Result {
	r := NewResult(provider, username, url, StatusError)
	if err != nil {
		r.SetError(err.Error())
	}
	return r
}

// SetError records msg as the failure message.
func (r *Result) SetError(msg string) *Result {
	r.Error = &msg
	return r
}

// ErrorText returns the failure message, or "" when there is none.
func (r *Result) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// SetHTTPStatus records the transport status code.
func (r *Result) SetHTTPStatus(code int) *Result {
	r.HTTPStatus = &code
	return r
}

// Since stamps ElapsedMS from start.
func (r *Result) Since(start time.Time) *Result {
	r.ElapsedMS = time.Since(start).Milliseconds()
	return r
}

// Normalize fills the invariants every consumer relies on.
func (r *Result) Normalize() {
	if r.Evidence == nil {
		r.Evidence = map[string]any{}
	}
	if r.Profile == nil {
		r.Profile = map[string]any{}
	}
	if r.Timestamp == "" {
		r.Timestamp = Now()
	}
	if r.ElapsedMS < 0 {
		r.ElapsedMS = 0
	}
	if !r.Status.Valid() {
		r.Status = StatusUnknown
	}
}

func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	p := plain(r)
	if p.Evidence == nil {
		p.Evidence = map[string]any{}
	}
	if p.Profile == nil {
		p.Profile = map[string]any{}
	}
	return json.Marshal(p)
}

// Clone copies r with its own Evidence and Profile maps. Values inside the
// maps are shared.
func (r *Result) Clone() *Result {
	c := *r
	if r.HTTPStatus != nil {
		code := *r.HTTPStatus
		c.HTTPStatus = &code
	}
	if r.Error != nil {
		msg := *r.Error
		c.Error = &msg
	}
	c.Evidence = make(map[string]any, len(r.Evidence))
	for k, v := range r.Evidence {
		c.Evidence[k] = v
	}
	c.Profile = make(map[string]any, len(r.Profile))
	for k, v := range r.Profile {
		c.Profile[k] = v
	}
	return &c
}

// ProfileString returns a non-empty string profile value.
func (r *Result) ProfileString(key string) (string, bool) {
	v, ok := r.Profile[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Now is the timestamp format of Result.Timestamp.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Provider checks one external service for an identifier.
type Provider interface {
	Name() string
	// BuildURL must not perform I/O.
	BuildURL(identifier string) string
	Timeout() time.Duration
	UAProfile() string
	Check(ctx context.Context, identifier string, client httpx.Doer, headers http.Header) (*Result, error)
}

// Validator is implemented by providers that know a claimed and an
// unclaimed username for self-testing.
type Validator interface {
	ValidationPair() (claimed, unclaimed string)
}

// Addon enriches the complete result set of a scan. It mutates the Profile
// maps of the given results in place and must not add or remove entries.
type Addon interface {
	Name() string
	Run(ctx context.Context, identifier string, results []*Result, client httpx.Doer, limiter *ratelimit.HostLimiter) error
}

// Catalog is an immutable snapshot of what an engine can run.
type Catalog struct {
	Providers map[string]Provider
	Addons    map[string]Addon
	// Enabled lists addon names run on every scan, in order.
	Enabled []string
}

// ProviderNames returns the sorted provider names.
func (c *Catalog) ProviderNames() []string {
	return sortedKeys(c.Providers)
}

// Select resolves requested provider names the way Scan does. An empty
// request selects every provider.
func (c *Catalog) Select(requested []string) []string {
	return selectProviders(c.Providers, requested)
}

// AddonNames returns the sorted addon names.
func (c *Catalog) AddonNames() []string {
	return sortedKeys(c.Addons)
}

type Config struct {
	MaxConcurrency  int
	MinHostInterval time.Duration
	// DefaultTimeout bounds providers that declare no timeout.
	DefaultTimeout time.Duration
	// AddonTimeout bounds each addon run; zero means no bound.
	AddonTimeout time.Duration
}

type ValidationFailure struct {
	Provider  string
	Claimed   string
	Unclaimed string

	Used   *Result
	Unused *Result
}

// Summary is the found/failed tally used by job listings.
type Summary struct {
	Results int `json:"results_count"`
	Found   int `json:"found_count"`
	Failed  int `json:"failed_count"`
}

func (s *Summary) Add(r *Result) {
	s.Results++
	switch r.Status {
	case StatusFound:
		s.Found++
	case StatusError, StatusUnknown, StatusBlocked, StatusNotFound:
		s.Failed++
	}
}

func Summarize(results []*Result) Summary {
	var s Summary
	for _, r := range results {
		if r != nil {
			s.Add(r)
		}
	}
	return s
}
