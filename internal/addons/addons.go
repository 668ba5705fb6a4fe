// Package addons enriches a finished scan: bio link extraction, avatar
// fingerprints, cross-provider avatar clusters and optional WHOIS lookups.
package addons

import (
	"github.com/tdh8316/socialhunt/internal/netsafe"
	"github.com/tdh8316/socialhunt/internal/scan"
)

// DefaultEnabled is the addon order used when neither addons.yaml nor the
// config names one.
var DefaultEnabled = []string{"bio_links", "avatar_fingerprint", "avatar_clusters"}

// Builtin returns every registrable addon keyed by name. guard is shared by
// the addons that fetch remote content.
func Builtin(guard *netsafe.Guard) map[string]scan.Addon {
	all := []scan.Addon{
		NewBioLinks(),
		NewAvatarFingerprint(guard),
		NewAvatarClusters(),
		NewBioWhois(),
	}
	out := make(map[string]scan.Addon, len(all))
	for _, a := range all {
		out[a.Name()] = a
	}
	return out
}
