package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadSites_SkipsSchema(t *testing.T) {
	p := writeFile(t, t.TempDir(), "data.json", `{
		"$schema": "data.schema.json",
		"GitHub": {"errorType": "status_code", "url": "https://www.github.com/{}", "username_claimed": "blue"},
		"Steam": {"errorType": "message", "errorMsg": ["not found", "gone"], "url": "https://steam.example/{}"}
	}`)

	sites, err := LoadSites(p, nil)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "status_code", sites["GitHub"].ErrorType)
	assert.Equal(t, "blue", sites["GitHub"].UsedUsername)
	assert.Len(t, sites["Steam"].ErrorMsg, 2)
}

func TestLoadSites_SkipsInvalidEntries(t *testing.T) {
	p := writeFile(t, t.TempDir(), "data.json", `{
		"Good": {"errorType": "status_code", "url": "https://good.example/{}"},
		"NoPlaceholder": {"errorType": "status_code", "url": "https://fixed.example/"},
		"Telepathy": {"errorType": "telepathy", "url": "https://t.example/{}"},
		"Silent": {"errorType": "message", "url": "https://s.example/{}"},
		"Listed": {"errorType": ["message", "status_code"], "url": "https://l.example/{}"}
	}`)

	invalid := map[string]error{}
	sites, err := LoadSites(p, func(site string, err error) { invalid[site] = err })
	require.NoError(t, err)
	assert.Len(t, sites, 1)
	assert.Contains(t, sites, "Good")
	assert.Len(t, invalid, 4)
	assert.ErrorContains(t, invalid["NoPlaceholder"], "placeholder")
	assert.ErrorContains(t, invalid["Telepathy"], "unsupported errorType")
	assert.ErrorContains(t, invalid["Silent"], "without errorMsg")
	assert.Error(t, invalid["Listed"])

	_, err = LoadSites(writeFile(t, t.TempDir(), "bad.json", "[1, 2]"), nil)
	assert.Error(t, err)
}

func TestLoadProviderFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "providers.yaml", `
github:
  url: https://github.com/{username}
  timeout: 12
  ua_profile: desktop_firefox
  success_patterns: ["repositories"]
  error_patterns: ["not found"]
  regex_check: "^[a-z0-9-]+$"
broken: "not a mapping"
nourl:
  timeout: 3
`)
	specs, err := LoadProviderFile(p)
	require.NoError(t, err)
	require.Len(t, specs, 1)

	gh := specs["github"]
	assert.Equal(t, "https://github.com/{username}", gh.URL)
	assert.Equal(t, 12, gh.Timeout)
	assert.Equal(t, "desktop_firefox", gh.UAProfile)
	assert.Equal(t, []string{"repositories"}, gh.SuccessPatterns)
	assert.Equal(t, "^[a-z0-9-]+$", gh.RegexCheck)
}

func TestLoadProviderDir_OverridesAndSkipsBroken(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "site:\n  url: https://a.example/{username}\nother:\n  url: https://o.example/{username}\n")
	writeFile(t, dir, "b.yml", "site:\n  url: https://b.example/{username}\n")
	writeFile(t, dir, "c.yaml", "site: [unterminated\n")
	writeFile(t, dir, "readme.txt", "ignored")

	var bad []string
	specs, err := LoadProviderDir(dir, func(path string, _ error) { bad = append(bad, filepath.Base(path)) })
	require.NoError(t, err)
	assert.Equal(t, "https://b.example/{username}", specs["site"].URL)
	assert.Contains(t, specs, "other")
	assert.Equal(t, []string{"c.yaml"}, bad)

	missing, err := LoadProviderDir(filepath.Join(dir, "nope"), nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLoadEnabledAddons(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "addons.yaml", "addons:\n  - bio_links\n  - '  '\n  - avatar_fingerprint\n")

	names, ok, err := LoadEnabledAddons(p)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"bio_links", "avatar_fingerprint"}, names)

	names, ok, err = LoadEnabledAddons(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, names)
}

func TestUpdateFrom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "ua-test", r.Header.Get("User-Agent"))
			w.Write([]byte(`{"Site": {"errorType": "status_code", "url": "https://s.example/{}"}}`))
		case "/empty":
			w.Write([]byte(`{"$schema": "x", "Broken": {"url": "https://b.example/"}}`))
		case "/html":
			w.Write([]byte(`<html>`))
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "db", "data.json")
	require.NoError(t, updateFrom(context.Background(), srv.Client(), srv.URL+"/ok", "ua-test", dest))

	sites, err := LoadSites(dest, nil)
	require.NoError(t, err)
	assert.Contains(t, sites, "Site")

	assert.Error(t, updateFrom(context.Background(), srv.Client(), srv.URL+"/html", "", dest))
	assert.Error(t, updateFrom(context.Background(), srv.Client(), srv.URL+"/empty", "", dest))
	sites, err = LoadSites(dest, nil)
	require.NoError(t, err)
	assert.Contains(t, sites, "Site")
	assert.Error(t, updateFrom(context.Background(), srv.Client(), srv.URL+"/missing", "", dest))
}
