package addons

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/ratelimit"
	"github.com/tdh8316/socialhunt/internal/scan"
)

const DefaultMatchDistance = 10

type reference struct {
	name  string
	dhash uint64
}

// AvatarMatch compares every avatar against local reference images. It is
// attached per scan, never enabled globally.
type AvatarMatch struct {
	MaxDistance int

	refs        []reference
	fingerprint *AvatarFingerprint
}

// NewAvatarMatch hashes the reference images up front so a bad path fails
// before any probe is sent.
func NewAvatarMatch(fp *AvatarFingerprint, paths ...string) (*AvatarMatch, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no reference images")
	}
	m := &AvatarMatch{MaxDistance: DefaultMatchDistance, fingerprint: fp}
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		h, err := DHashBytes(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		m.refs = append(m.refs, reference{name: filepath.Base(p), dhash: h})
	}
	return m, nil
}

func (*AvatarMatch) Name() string { return "avatar_match" }

func (m *AvatarMatch) Run(ctx context.Context, id string, results []*scan.Result, client httpx.Doer, limiter *ratelimit.HostLimiter) error {
	if m.fingerprint != nil {
		// Already hashed avatars are skipped, so this is a no-op after
		// avatar_fingerprint ran.
		if err := m.fingerprint.Run(ctx, id, results, client, limiter); err != nil {
			return err
		}
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		dh, ok := r.ProfileString("avatar_dhash")
		if !ok {
			continue
		}

		best, bestRef := -1, ""
		for _, ref := range m.refs {
			d, ok := Hamming(dh, FormatHash(ref.dhash))
			if !ok {
				continue
			}
			if best < 0 || d < best {
				best, bestRef = d, ref.name
			}
		}
		if best < 0 {
			continue
		}
		r.Profile["avatar_match"] = map[string]any{
			"match":     best <= m.MaxDistance,
			"distance":  best,
			"reference": bestRef,
		}
	}
	return nil
}
