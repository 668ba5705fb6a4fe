package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/scan"
)

// GitHub reads the public users API, which carries far more profile data
// than the HTML page.
type GitHub struct {
	APIBase string
}

func NewGitHub() *GitHub {
	return &GitHub{APIBase: "https://api.github.com"}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) BuildURL(username string) string {
	return "https://github.com/" + username
}

func (g *GitHub) Timeout() time.Duration { return 10 * time.Second }

func (g *GitHub) UAProfile() string { return httpx.DefaultProfile }

func (g *GitHub) Check(ctx context.Context, username string, client httpx.Doer, headers http.Header) (*scan.Result, error) {
	start := time.Now()
	url := g.BuildURL(username)

	h := headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Accept", "application/vnd.github+json")

	resp, err := get(ctx, client, strings.TrimRight(g.APIBase, "/")+"/users/"+username, h)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := scan.NewResult(g.Name(), username, url, scan.StatusUnknown).SetHTTPStatus(resp.StatusCode)
	res.Evidence["api"] = true

	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		res.Status = scan.StatusNotFound
		return res.Since(start), nil
	case code == http.StatusForbidden:
		res.Status = scan.StatusBlocked
		return res.Since(start), nil
	case code < 200 || code >= 300:
		return res.Since(start), nil
	}

	body, err := httpx.ReadBody(resp.Body, httpx.DefaultMaxBodyBytes)
	if err != nil {
		return nil, err
	}
	res.Status = scan.StatusFound

	if !gjson.ValidBytes(body) {
		return res.Since(start), nil
	}
	doc := gjson.ParseBytes(body)

	name := doc.Get("name").String()
	if name == "" {
		name = doc.Get("login").String()
	}
	res.Profile = compact(map[string]any{
		"display_name": name,
		"avatar_url":   doc.Get("avatar_url").String(),
		"created_at":   doc.Get("created_at").String(),
		"bio":          doc.Get("bio").String(),
		"location":     doc.Get("location").String(),
		"blog":         doc.Get("blog").String(),
	})
	for _, k := range []string{"followers", "following"} {
		if v := doc.Get(k); v.Type == gjson.Number {
			res.Profile[k] = v.Int()
		}
	}
	return res.Since(start), nil
}
