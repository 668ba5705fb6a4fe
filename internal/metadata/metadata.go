// Package metadata pulls profile hints out of public profile pages:
// OpenGraph / Twitter card tags, JSON-LD blocks and follower counts.
// Everything here is best effort and never fails a probe.
package metadata

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dlclark/regexp2"
	"github.com/tidwall/gjson"
)

// Extract merges OpenGraph data, JSON-LD gaps and follower counts.
func Extract(html string) map[string]any {
	out := map[string]any{}
	if strings.TrimSpace(html) == "" {
		return out
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return out
	}

	for k, v := range openGraph(doc) {
		out[k] = v
	}
	for k, v := range jsonLD(doc) {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	for k, v := range Counts(strings.ToLower(html)) {
		out[k] = v
	}
	return out
}

// OpenGraph extracts display_name, description, avatar_url and
// canonical_url from OG / Twitter meta tags, falling back to <title>.
func OpenGraph(html string) map[string]any {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return map[string]any{}
	}
	return openGraph(doc)
}

func openGraph(doc *goquery.Document) map[string]any {
	meta := func(names ...string) string {
		for _, n := range names {
			for _, attr := range []string{"property", "name"} {
				sel := doc.Find(`meta[` + attr + `="` + n + `"]`).First()
				if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
					return strings.TrimSpace(v)
				}
			}
		}
		return ""
	}

	out := map[string]any{}
	title := meta("og:title", "twitter:title")
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title != "" {
		out["display_name"] = title
	}
	if v := meta("og:description", "twitter:description"); v != "" {
		out["description"] = v
	}
	if v := meta("og:image", "twitter:image"); v != "" {
		out["avatar_url"] = v
	}
	if v := meta("og:url"); v != "" {
		out["canonical_url"] = v
	}
	return out
}

// JSONLD returns display_name, avatar_url and canonical_url from the first
// JSON-LD object that carries any of them.
func JSONLD(html string) map[string]any {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return map[string]any{}
	}
	return jsonLD(doc)
}

func jsonLD(doc *goquery.Document) map[string]any {
	out := map[string]any{}
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := strings.TrimSpace(s.Text())
		if txt == "" || !gjson.Valid(txt) {
			return true
		}
		parsed := gjson.Parse(txt)
		candidates := []gjson.Result{parsed}
		if parsed.IsArray() {
			candidates = parsed.Array()
		}
		for _, c := range candidates {
			if !c.IsObject() {
				continue
			}
			if v := strings.TrimSpace(c.Get("name").String()); v != "" && c.Get("name").Type == gjson.String {
				out["display_name"] = v
			}
			if v := coerceImage(c.Get("image")); v != "" {
				out["avatar_url"] = v
			}
			if v := strings.TrimSpace(c.Get("url").String()); v != "" && c.Get("url").Type == gjson.String {
				out["canonical_url"] = v
			}
			if len(out) > 0 {
				return false
			}
		}
		return true
	})
	return out
}

func coerceImage(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return v.String()
	case v.IsObject():
		if u := v.Get("url").String(); u != "" {
			return u
		}
		return v.Get("contentUrl").String()
	case v.IsArray():
		arr := v.Array()
		if len(arr) > 0 {
			return coerceImage(arr[0])
		}
	}
	return ""
}

// matchTimeout bounds every match; a timed out match counts as no match.
const matchTimeout = time.Second

func mustCompile(expr string) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, regexp2.None)
	re.MatchTimeout = matchTimeout
	return re
}

// submatch returns the full match followed by its groups, or nil.
func submatch(re *regexp2.Regexp, s string) []string {
	m, err := re.FindStringMatch(s)
	if err != nil || m == nil {
		return nil
	}
	groups := m.Groups()
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.String()
	}
	return out
}

var countPatterns = []struct {
	key string
	re  *regexp2.Regexp
}{
	{"followers", mustCompile(`([0-9][0-9,\.]*\s*[km]?)\s+followers\b`)},
	{"following", mustCompile(`([0-9][0-9,\.]*\s*[km]?)\s+following\b`)},
	{"subscribers", mustCompile(`([0-9][0-9,\.]*\s*[km]?)\s+subscribers\b`)},
	{"members", mustCompile(`([0-9][0-9,\.]*\s*[km]?)\s+members\b`)},
}

// Counts sniffs "<n> followers" style counters from lower-cased text.
func Counts(textLower string) map[string]any {
	out := map[string]any{}
	if textLower == "" {
		return out
	}
	for _, p := range countPatterns {
		m := submatch(p.re, textLower)
		if m == nil {
			continue
		}
		if n, ok := ParseHumanInt(m[1]); ok {
			out[p.key] = n
		}
	}
	return out
}

var (
	kmRe   = mustCompile(`^([0-9]+(?:\.[0-9]+)?)([KM])$`)
	intRe  = mustCompile(`^[0-9][0-9,]*$`)
	someRe = mustCompile(`[0-9][0-9,]*`)
)

// ParseHumanInt parses counts like "1,234", "12.3K" or "4M".
func ParseHumanInt(s string) (int64, bool) {
	t := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if t == "" {
		return 0, false
	}

	if m := submatch(kmRe, t); m != nil {
		base, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		mult := 1000.0
		if m[2] == "M" {
			mult = 1_000_000
		}
		return int64(math.Round(base * mult)), true
	}

	if ok, _ := intRe.MatchString(t); ok {
		n, err := strconv.ParseInt(strings.ReplaceAll(t, ",", ""), 10, 64)
		return n, err == nil
	}

	if m := submatch(someRe, t); m != nil {
		n, err := strconv.ParseInt(strings.ReplaceAll(m[0], ",", ""), 10, 64)
		return n, err == nil
	}
	return 0, false
}
