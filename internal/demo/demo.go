// Package demo masks personal data so the tool can be shown publicly.
package demo

import (
	"strings"

	"github.com/tdh8316/socialhunt/internal/scan"
)

// RecordLimit caps lists of records in demo output.
const RecordLimit = 5

var safeKeys = map[string]struct{}{
	"source":          {},
	"breach":          {},
	"database":        {},
	"origin":          {},
	"status":          {},
	"provider":        {},
	"elapsed_ms":      {},
	"result_count":    {},
	"breach_sources":  {},
	"data_types":      {},
	"note":            {},
	"demo_mode":       {},
	"fields_searched": {},
	"account":         {},
	"username":        {},
	"query":           {},
	"type":            {},
	"category":        {},
	// classification metadata
	"error_type":            {},
	"regex_check":           {},
	"avatar_content_type":   {},
	"avatar_cluster_id":     {},
	"avatar_cluster_method": {},
}

// CensorString masks s unless key is known to be harmless. E-mail
// addresses keep their first letter and domain.
func CensorString(s, key string) string {
	if _, ok := safeKeys[strings.ToLower(key)]; ok {
		return s
	}

	if strings.Contains(s, "@") && strings.Contains(s, ".") {
		if name, domain, ok := strings.Cut(s, "@"); ok && !strings.Contains(domain, "@") {
			if len(name) > 1 {
				return name[:1] + "***@" + domain
			}
			return "*@" + domain
		}
	}

	if len(s) <= 2 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + "********"
}

// Censor masks every string reachable from v. Slices are cut to
// RecordLimit entries.
func Censor(v any, key string) any {
	switch t := v.(type) {
	case string:
		return CensorString(t, key)
	case []string:
		out := make([]string, 0, min(len(t), RecordLimit))
		for _, s := range t[:min(len(t), RecordLimit)] {
			out = append(out, CensorString(s, key))
		}
		return out
	case []any:
		out := make([]any, 0, min(len(t), RecordLimit))
		for _, it := range t[:min(len(t), RecordLimit)] {
			out = append(out, Censor(it, key))
		}
		return out
	case map[string]any:
		return CensorMap(t)
	case []map[string]any:
		out := make([]map[string]any, 0, min(len(t), RecordLimit))
		for _, m := range t[:min(len(t), RecordLimit)] {
			out = append(out, CensorMap(m))
		}
		return out
	default:
		return v
	}
}

// CensorMap returns a masked copy of m.
func CensorMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Censor(v, k)
	}
	return out
}

// Redact masks a result's profile and evidence in place. It matches the
// scan.Engine Redact hook.
func Redact(r *scan.Result) {
	if r == nil {
		return
	}
	r.Profile = CensorMap(r.Profile)
	r.Evidence = CensorMap(r.Evidence)
	if r.Error != nil {
		r.SetError(CensorString(*r.Error, ""))
	}
}
