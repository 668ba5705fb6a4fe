package addons

import (
	"context"
	"net/url"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/ratelimit"
	"github.com/tdh8316/socialhunt/internal/scan"
)

var (
	bioURLRe    = regexp2.MustCompile(`https?://[^\s)\]]+`, regexp2.IgnoreCase)
	bioDomainRe = regexp2.MustCompile(`\b(?:[a-z0-9-]{1,63}\.)+(?:[a-z]{2,63})\b`, regexp2.IgnoreCase)
	bioHandleRe = regexp2.MustCompile(`(?<!\w)@([a-z0-9_\.]{2,30})`, regexp2.IgnoreCase)
)

// BioLinks pulls URLs, domains and @handles out of bio and description text.
type BioLinks struct{}

func NewBioLinks() *BioLinks { return &BioLinks{} }

func (*BioLinks) Name() string { return "bio_links" }

func (*BioLinks) Run(_ context.Context, _ string, results []*scan.Result, _ httpx.Doer, _ *ratelimit.HostLimiter) error {
	for _, r := range results {
		if r == nil {
			continue
		}
		var parts []string
		for _, k := range []string{"bio", "description"} {
			if v, ok := r.ProfileString(k); ok {
				parts = append(parts, strings.TrimSpace(v))
			}
		}
		if len(parts) == 0 {
			continue
		}
		text := strings.Join(parts, "\n")

		urls := dedupe(findAll(bioURLRe, text, 0))
		var domains []string
		for _, u := range urls {
			if pu, err := url.Parse(u); err == nil && pu.Hostname() != "" {
				domains = append(domains, strings.ToLower(pu.Hostname()))
			}
		}
		domains = dedupe(domains)

		known := make(map[string]struct{}, len(domains))
		for _, d := range domains {
			known[strings.ToLower(d)] = struct{}{}
		}
		for _, d := range dedupe(findAll(bioDomainRe, text, 0)) {
			if _, dup := known[strings.ToLower(d)]; !dup {
				domains = append(domains, d)
			}
		}
		domains = dedupe(domains)

		handles := dedupe(findAll(bioHandleRe, text, 1))

		if len(urls) > 0 {
			r.Profile["bio_urls"] = urls
		}
		if len(domains) > 0 {
			r.Profile["bio_domains"] = domains
		}
		if len(handles) > 0 {
			r.Profile["bio_handles"] = handles
		}
	}
	return nil
}

func findAll(re *regexp2.Regexp, text string, group int) []string {
	var out []string
	m, err := re.FindStringMatch(text)
	for err == nil && m != nil {
		if g := m.GroupByNumber(group); g != nil && g.Length > 0 {
			out = append(out, g.String())
		}
		m, err = re.FindNextMatch(m)
	}
	return out
}

// dedupe keeps the first spelling of each case-insensitively distinct value.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
