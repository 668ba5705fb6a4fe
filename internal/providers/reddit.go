package providers

import (
	"context"
	"html"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/scan"
)

// RedditUserAgent is sent instead of a browser UA; reddit throttles
// anonymous browser-looking clients harder.
const RedditUserAgent = "socialhunt/1.0 (OSINT research)"

// Reddit reads /user/{name}/about.json.
type Reddit struct {
	Base string
}

func NewReddit() *Reddit {
	return &Reddit{Base: "https://www.reddit.com"}
}

func (r *Reddit) Name() string { return "reddit" }

func (r *Reddit) BuildURL(username string) string {
	return "https://www.reddit.com/user/" + username
}

func (r *Reddit) Timeout() time.Duration { return 10 * time.Second }

func (r *Reddit) UAProfile() string { return httpx.DefaultProfile }

func (r *Reddit) Check(ctx context.Context, username string, client httpx.Doer, headers http.Header) (*scan.Result, error) {
	start := time.Now()
	url := r.BuildURL(username)

	h := headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("User-Agent", RedditUserAgent)
	h.Set("Accept", "application/json")

	resp, err := get(ctx, client, strings.TrimRight(r.Base, "/")+"/user/"+username+"/about.json", h)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := scan.NewResult(r.Name(), username, url, scan.StatusUnknown).SetHTTPStatus(resp.StatusCode)
	res.Evidence["about_json"] = true

	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		res.Status = scan.StatusNotFound
		return res.Since(start), nil
	case code == http.StatusForbidden || code == http.StatusTooManyRequests:
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
	d := gjson.GetBytes(body, "data")

	name := d.Get("subreddit.title").String()
	if name == "" {
		name = username
	}
	avatar := d.Get("icon_img").String()
	if avatar == "" {
		avatar = d.Get("snoovatar_img").String()
	}

	res.Profile = compact(map[string]any{
		"display_name": name,
		"avatar_url":   html.UnescapeString(avatar),
	})
	for _, k := range []string{"comment_karma", "link_karma"} {
		if v := d.Get(k); v.Type == gjson.Number {
			res.Profile[k] = v.Int()
		}
	}
	if v := d.Get("created_utc"); v.Type == gjson.Number {
		sec, frac := math.Modf(v.Float())
		res.Profile["created_at"] = time.Unix(int64(sec), int64(frac*1e9)).UTC().Format(time.RFC3339)
	}
	return res.Since(start), nil
}
