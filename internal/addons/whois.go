package addons

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"

	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/ratelimit"
	"github.com/tdh8316/socialhunt/internal/scan"
)

// LookupFunc returns the raw WHOIS text of a domain.
type LookupFunc func(ctx context.Context, domain string) (string, error)

// DefaultWhoisLookup queries the registry through likexian/whois.
func DefaultWhoisLookup(ctx context.Context, domain string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := whois.NewClient().SetTimeout(10 * time.Second)
	return c.Whois(domain)
}

type WhoisRecord struct {
	Registrar string `json:"registrar,omitempty"`
	Created   string `json:"created,omitempty"`
	Expires   string `json:"expires,omitempty"`
}

// BioWhois looks up the domains found by bio_links. It is opt-in since it
// talks to registries directly.
type BioWhois struct {
	Lookup     LookupFunc
	MaxDomains int

	mu    sync.Mutex
	cache map[string]WhoisRecord
}

func NewBioWhois() *BioWhois {
	return &BioWhois{Lookup: DefaultWhoisLookup, MaxDomains: 5, cache: map[string]WhoisRecord{}}
}

func (*BioWhois) Name() string { return "bio_whois" }

func (b *BioWhois) Run(ctx context.Context, _ string, results []*scan.Result, _ httpx.Doer, _ *ratelimit.HostLimiter) error {
	budget := b.MaxDomains
	for _, r := range results {
		if r == nil {
			continue
		}
		domains, _ := r.Profile["bio_domains"].([]string)
		if len(domains) == 0 {
			continue
		}

		records := map[string]WhoisRecord{}
		errs := map[string]string{}
		for _, d := range domains {
			d = strings.ToLower(d)
			if rec, ok := b.cached(d); ok {
				records[d] = rec
				continue
			}
			if budget <= 0 {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			budget--

			rec, err := b.lookup(ctx, d)
			if err != nil {
				errs[d] = err.Error()
				continue
			}
			records[d] = rec
		}

		if len(records) > 0 {
			r.Profile["bio_domain_whois"] = records
		}
		if len(errs) > 0 {
			r.Profile["bio_domain_whois_error"] = errs
		}
	}
	return nil
}

func (b *BioWhois) cached(domain string) (WhoisRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.cache[domain]
	return rec, ok
}

func (b *BioWhois) lookup(ctx context.Context, domain string) (WhoisRecord, error) {
	raw, err := b.Lookup(ctx, domain)
	if err != nil {
		return WhoisRecord{}, err
	}
	info, err := whoisparser.Parse(raw)
	if err != nil {
		return WhoisRecord{}, err
	}

	var rec WhoisRecord
	if info.Registrar != nil {
		rec.Registrar = info.Registrar.Name
	}
	if info.Domain != nil {
		rec.Created = info.Domain.CreatedDate
		rec.Expires = info.Domain.ExpirationDate
	}

	b.mu.Lock()
	if b.cache == nil {
		b.cache = map[string]WhoisRecord{}
	}
	b.cache[domain] = rec
	b.mu.Unlock()
	return rec, nil
}
