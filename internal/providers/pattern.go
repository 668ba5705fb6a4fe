package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tdh8316/socialhunt/internal/data"
	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/metadata"
	"github.com/tdh8316/socialhunt/internal/scan"
)

// BlockHints mark a page as an anti-bot interstitial rather than a profile.
var BlockHints = []string{
	"captcha",
	"verify you are human",
	"unusual traffic",
	"access denied",
	"temporarily blocked",
	"cloudflare",
	"security check",
	"please enable cookies",
}

const defaultPatternTimeout = 10 * time.Second

// Pattern classifies a profile page by substring patterns.
type Pattern struct {
	name string
	spec data.ProviderSpec
}

func NewPattern(name string, spec data.ProviderSpec) *Pattern {
	return &Pattern{name: name, spec: spec}
}

func (p *Pattern) Name() string { return p.name }

func (p *Pattern) BuildURL(username string) string {
	return strings.ReplaceAll(p.spec.URL, "{username}", username)
}

func (p *Pattern) Timeout() time.Duration {
	if p.spec.Timeout > 0 {
		return time.Duration(p.spec.Timeout) * time.Second
	}
	return defaultPatternTimeout
}

func (p *Pattern) UAProfile() string {
	if p.spec.UAProfile == "" {
		return httpx.DefaultProfile
	}
	return p.spec.UAProfile
}

func (p *Pattern) Note() string { return p.spec.Note }

func (p *Pattern) ValidationPair() (string, string) {
	return p.spec.Claimed, p.spec.Unclaimed
}

func (p *Pattern) Check(ctx context.Context, username string, client httpx.Doer, headers http.Header) (*scan.Result, error) {
	start := time.Now()
	url := p.BuildURL(username)

	ok, err := matchUsername(p.spec.RegexCheck, username)
	if err != nil {
		return nil, err
	}
	if !ok {
		res := scan.NewResult(p.name, username, url, scan.StatusNotFound).Since(start)
		res.Evidence["regex_check"] = "mismatch"
		return res, nil
	}

	resp, err := get(ctx, client, url, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := httpx.ReadBody(resp.Body, httpx.DefaultMaxBodyBytes)
	if err != nil {
		return nil, err
	}
	html := string(raw)
	text := strings.ToLower(html)

	status := Classify(text, substitute(p.spec.SuccessPatterns, username), substitute(p.spec.ErrorPatterns, username))

	res := scan.NewResult(p.name, username, url, status).SetHTTPStatus(resp.StatusCode)
	res.Evidence["len"] = len(text)
	res.Evidence["final_url"] = httpx.FinalURL(resp, url)
	res.Profile = metadata.Extract(html)
	return res.Since(start), nil
}

// Classify maps lower-cased page text onto a status. Block hints win over
// error patterns, which win over success patterns.
func Classify(textLower string, success, errorPatterns []string) scan.Status {
	for _, h := range BlockHints {
		if strings.Contains(textLower, h) {
			return scan.StatusBlocked
		}
	}
	for _, e := range errorPatterns {
		if e != "" && strings.Contains(textLower, strings.ToLower(e)) {
			return scan.StatusNotFound
		}
	}
	for _, s := range success {
		if s != "" && strings.Contains(textLower, strings.ToLower(s)) {
			return scan.StatusFound
		}
	}
	return scan.StatusUnknown
}

func substitute(patterns []string, username string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = strings.ReplaceAll(p, "{username}", username)
	}
	return out
}
