package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tdh8316/socialhunt/internal/httpx"
)

const SherlockDataURL = "https://raw.githubusercontent.com/sherlock-project/sherlock/refs/heads/master/sherlock_project/resources/data.json"

// SiteData is one entry of a Sherlock-style data.json.
type SiteData struct {
	ErrorType string `json:"errorType"`
	ErrorMsg  any    `json:"errorMsg"`

	URL      string `json:"url"`
	URLMain  string `json:"urlMain"`
	URLProbe string `json:"urlProbe"`
	URLError string `json:"errorUrl"`

	UsedUsername   string `json:"username_claimed"`
	UnusedUsername string `json:"username_unclaimed"`
	RegexCheck     string `json:"regexCheck"`
}

// ErrorTypes are the detection methods a Sherlock site entry may use.
var ErrorTypes = []string{"status_code", "message", "response_url"}

// Validate reports why a site entry cannot be probed.
func (sd SiteData) Validate() error {
	if !strings.Contains(sd.URL, "{}") {
		return fmt.Errorf("url %q has no {} placeholder", sd.URL)
	}
	if !slices.Contains(ErrorTypes, sd.ErrorType) {
		return fmt.Errorf("unsupported errorType %q", sd.ErrorType)
	}
	if sd.ErrorType == "message" && sd.ErrorMsg == nil {
		return fmt.Errorf("errorType message without errorMsg")
	}
	return nil
}

// LoadSites loads a Sherlock data.json. Top-level keys starting with "$"
// ("$schema") are metadata. Entries that fail to decode or validate are
// passed to onInvalid, when set, and left out.
func LoadSites(filename string, onInvalid func(site string, err error)) (map[string]SiteData, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return parseSites(raw, onInvalid)
}

func parseSites(raw []byte, onInvalid func(site string, err error)) (map[string]SiteData, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	out := make(map[string]SiteData, len(entries))
	for siteName, msg := range entries {
		if strings.HasPrefix(siteName, "$") {
			continue
		}

		var sd SiteData
		err := json.Unmarshal(msg, &sd)
		if err == nil {
			err = sd.Validate()
		}
		if err != nil {
			if onInvalid != nil {
				onInvalid(siteName, err)
			}
			continue
		}
		out[siteName] = sd
	}
	return out, nil
}

// UpdateFromRemote downloads the Sherlock database to destPath atomically.
func UpdateFromRemote(ctx context.Context, client httpx.Doer, userAgent string, destPath string) error {
	return updateFrom(ctx, client, SherlockDataURL, userAgent, destPath)
}

func updateFrom(ctx context.Context, client httpx.Doer, src, userAgent, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download failed: %s (%s)", resp.Status, string(snippet))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	sites, err := parseSites(body, nil)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	if len(sites) == 0 {
		return fmt.Errorf("download failed: no usable site entries")
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	tmp := destPath + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, destPath)
}
