// Package netsafe guards outbound fetches of URLs that came from scraped
// profile data. Only public http(s) endpoints pass.
package netsafe

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/tdh8316/socialhunt/internal/httpx"
)

var ErrUnsafeURL = errors.New("unsafe url")

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

type Guard struct {
	// AllowPrivate skips the address checks. Host name checks still apply.
	AllowPrivate bool
	// Resolver defaults to net.DefaultResolver.
	Resolver Resolver
}

var blockedHosts = map[string]struct{}{
	"localhost":                {},
	"localhost.localdomain":    {},
	"metadata":                 {},
	"metadata.google.internal": {},
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

func unsafeURL(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsafeURL, fmt.Sprintf(format, args...))
}

// Check rejects non-http(s) URLs, local host names and any host that is or
// resolves to a non-public address.
func (g *Guard) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return unsafeURL("bad url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return unsafeURL("scheme %q not allowed", u.Scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return unsafeURL("missing host")
	}
	if _, ok := blockedHosts[host]; ok {
		return unsafeURL("host %s blocked", host)
	}
	if g.AllowPrivate {
		return nil
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if Blocked(addr) {
			return unsafeURL("ip %s blocked", addr)
		}
		return nil
	}

	var r Resolver = net.DefaultResolver
	if g.Resolver != nil {
		r = g.Resolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, a := range addrs {
		if Blocked(a) {
			return unsafeURL("host %s resolves to blocked ip %s", host, a)
		}
	}
	return nil
}

// Blocked reports whether addr is outside public unicast space.
func Blocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() {
		return true
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() || addr.IsUnspecified() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

type Limits struct {
	MaxBytes int64
	// AcceptPrefix, e.g. "image", requires a matching content type.
	AcceptPrefix string
	MaxRedirects int
}

// DefaultLimits suits avatar downloads.
var DefaultLimits = Limits{MaxBytes: 2_000_000, AcceptPrefix: "image", MaxRedirects: 3}

type Fetched struct {
	Body        []byte
	ContentType string
	URL         string
}

// Fetch GETs rawURL, following at most lim.MaxRedirects redirects by hand so
// every hop passes Check.
func (g *Guard) Fetch(ctx context.Context, client httpx.Doer, rawURL string, lim Limits) (*Fetched, error) {
	if lim.MaxBytes <= 0 {
		lim.MaxBytes = DefaultLimits.MaxBytes
	}
	if lim.MaxRedirects < 0 {
		lim.MaxRedirects = 0
	}
	client = httpx.WithoutRedirects(client)

	h := http.Header{}
	if lim.AcceptPrefix != "" {
		h.Set("Accept", lim.AcceptPrefix+"/*")
	}

	next := rawURL
	for range lim.MaxRedirects + 1 {
		if err := g.Check(ctx, next); err != nil {
			return nil, err
		}

		req, err := httpx.NewRequest(ctx, http.MethodGet, next, nil, h)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, unsafeURL("redirect without location")
			}
			base, _ := url.Parse(next)
			ref, err := base.Parse(loc)
			if err != nil {
				return nil, unsafeURL("bad redirect location: %v", err)
			}
			next = ref.String()
			continue
		}

		f, err := readLimited(resp, lim)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		f.URL = next
		return f, nil
	}
	return nil, unsafeURL("too many redirects")
}

func readLimited(resp *http.Response, lim Limits) (*Fetched, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bad status %d", resp.StatusCode)
	}

	ctype := ""
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		ctype = strings.ToLower(mt)
	}
	if lim.AcceptPrefix != "" && !strings.HasPrefix(ctype, lim.AcceptPrefix+"/") {
		return nil, unsafeURL("unexpected content type %q", ctype)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > lim.MaxBytes {
			return nil, unsafeURL("content too large")
		}
	}

	body, err := httpx.ReadBody(resp.Body, lim.MaxBytes+1)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > lim.MaxBytes {
		return nil, unsafeURL("content too large")
	}
	return &Fetched{Body: body, ContentType: ctype}, nil
}
