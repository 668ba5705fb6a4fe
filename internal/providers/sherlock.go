package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tdh8316/socialhunt/internal/data"
	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/scan"
)

// Sherlock probes one site of a Sherlock-style data.json.
type Sherlock struct {
	name string
	site data.SiteData
}

func NewSherlock(name string, site data.SiteData) *Sherlock {
	return &Sherlock{name: name, site: site}
}

// SherlockProviders wraps every site of a loaded database.
func SherlockProviders(sites map[string]data.SiteData) []scan.Provider {
	out := make([]scan.Provider, 0, len(sites))
	for name, sd := range sites {
		out = append(out, NewSherlock(name, sd))
	}
	return out
}

func (s *Sherlock) Name() string { return s.name }

func (s *Sherlock) BuildURL(username string) string {
	return strings.ReplaceAll(s.site.URL, "{}", username)
}

// Timeout is left to the engine default.
func (s *Sherlock) Timeout() time.Duration { return 0 }

func (s *Sherlock) UAProfile() string { return httpx.DefaultProfile }

func (s *Sherlock) ValidationPair() (string, string) {
	return s.site.UsedUsername, s.site.UnusedUsername
}

func (s *Sherlock) Check(ctx context.Context, username string, client httpx.Doer, headers http.Header) (*scan.Result, error) {
	start := time.Now()
	sd := s.site

	if sd.URL == "" {
		return nil, fmt.Errorf("missing url in database")
	}

	profileURL := s.BuildURL(username)
	probeURL := profileURL
	if sd.URLProbe != "" {
		probeURL = strings.ReplaceAll(sd.URLProbe, "{}", username)
	}

	ok, err := matchUsername(sd.RegexCheck, username)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Not a valid username for this site.
		res := scan.NewResult(s.name, username, profileURL, scan.StatusNotFound).Since(start)
		res.Evidence["regex_check"] = "mismatch"
		return res, nil
	}

	resp, err := get(ctx, client, probeURL, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := scan.NewResult(s.name, username, profileURL, scan.StatusNotFound).SetHTTPStatus(resp.StatusCode)
	res.Evidence["error_type"] = sd.ErrorType
	if probeURL != profileURL {
		res.Evidence["probe_url"] = probeURL
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		res.Status = scan.StatusBlocked
		return res.Since(start), nil
	}

	switch sd.ErrorType {
	case "status_code":
		if resp.StatusCode == http.StatusOK {
			res.Status = scan.StatusFound
		}

	case "message":
		body, err := httpx.ReadBody(resp.Body, httpx.DefaultMaxBodyBytes)
		if err != nil {
			return nil, err
		}
		notFound, err := containsErrorMessage(string(body), sd.ErrorMsg)
		if err != nil {
			return nil, err
		}
		if !notFound {
			res.Status = scan.StatusFound
		}

	case "response_url":
		finalURL := httpx.FinalURL(resp, probeURL)
		res.Evidence["final_url"] = finalURL
		if resp.StatusCode >= 200 && resp.StatusCode < 400 && finalURL == probeURL {
			res.Status = scan.StatusFound
		}

	default:
		return nil, fmt.Errorf("unsupported error type %q", sd.ErrorType)
	}

	return res.Since(start), nil
}

func containsErrorMessage(body string, errorMsg any) (bool, error) {
	switch v := errorMsg.(type) {
	case nil:
		return false, fmt.Errorf("errorMsg is missing (nil) for errorType=message")
	case string:
		if v == "" {
			return false, nil
		}
		return strings.Contains(body, v), nil
	case []any:
		for _, it := range v {
			s, ok := it.(string)
			if !ok {
				continue
			}
			if s != "" && strings.Contains(body, s) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported errorMsg type %T for errorType=message", errorMsg)
	}
}
