package httpx

import (
	"net/http"
	"strings"
)

// DefaultProfile is the header preset every request starts from.
const DefaultProfile = "desktop_chrome"

var profiles = map[string]http.Header{
	"desktop_chrome": {
		"User-Agent":      {DefaultUserAgent},
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.9"},
	},
	"desktop_firefox": {
		"User-Agent":      {"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0"},
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.5"},
	},
	"mobile_safari": {
		"User-Agent":      {"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"},
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.9"},
	},
	"api_client": {
		"User-Agent": {"socialhunt/1.0 (+username presence checks)"},
		"Accept":     {"application/json"},
	},
}

// Profile returns a copy of the named header preset. Unknown names yield an
// empty header.
func Profile(name string) http.Header {
	h, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return http.Header{}
	}
	return h.Clone()
}

// ProfileNames lists the known presets.
func ProfileNames() []string {
	out := make([]string, 0, len(profiles))
	for k := range profiles {
		out = append(out, k)
	}
	return out
}

// MergeHeaders layers over on top of base. Keys present in over replace the
// base values entirely.
func MergeHeaders(base, over http.Header) http.Header {
	out := base.Clone()
	if out == nil {
		out = http.Header{}
	}
	for k, vs := range over {
		out[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return out
}

// HeadersFor resolves the headers for a provider's UA profile.
func HeadersFor(profile string) http.Header {
	return MergeHeaders(Profile(DefaultProfile), Profile(profile))
}
