package addons

import (
	"context"
	"fmt"

	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/ratelimit"
	"github.com/tdh8316/socialhunt/internal/scan"
)

const DefaultDHashDistance = 4

// AvatarClusters groups results that share an avatar: first by identical
// sha256, then by near dHash among the rest.
type AvatarClusters struct {
	MaxDistance int
}

func NewAvatarClusters() *AvatarClusters {
	return &AvatarClusters{MaxDistance: DefaultDHashDistance}
}

func (*AvatarClusters) Name() string { return "avatar_clusters" }

type avatarItem struct {
	r     *scan.Result
	sha   string
	dhash string
}

func (c *AvatarClusters) Run(_ context.Context, _ string, results []*scan.Result, _ httpx.Doer, _ *ratelimit.HostLimiter) error {
	var items []avatarItem
	for _, r := range results {
		if r == nil {
			continue
		}
		sha, ok1 := r.ProfileString("avatar_sha256")
		dh, ok2 := r.ProfileString("avatar_dhash")
		if ok1 && ok2 {
			items = append(items, avatarItem{r: r, sha: sha, dhash: dh})
		}
	}
	if len(items) < 2 {
		return nil
	}

	next := 1
	assign := func(group []avatarItem, method string) {
		id := fmt.Sprintf("cluster-%d", next)
		next++
		providers := make([]string, len(group))
		for i, it := range group {
			providers[i] = it.r.Provider
		}
		for _, it := range group {
			it.r.Profile["avatar_cluster_id"] = id
			it.r.Profile["avatar_cluster_method"] = method
			it.r.Profile["avatar_cluster_providers"] = providers
		}
	}

	// Exact matches, in first-seen order.
	var order []string
	bySHA := map[string][]avatarItem{}
	for _, it := range items {
		if _, ok := bySHA[it.sha]; !ok {
			order = append(order, it.sha)
		}
		bySHA[it.sha] = append(bySHA[it.sha], it)
	}
	clustered := map[*scan.Result]bool{}
	for _, sha := range order {
		if g := bySHA[sha]; len(g) >= 2 {
			assign(g, "sha256")
			for _, it := range g {
				clustered[it.r] = true
			}
		}
	}

	var rest []avatarItem
	for _, it := range items {
		if !clustered[it.r] {
			rest = append(rest, it)
		}
	}
	method := fmt.Sprintf("dhash<=%d", c.MaxDistance)
	for i, base := range rest {
		if clustered[base.r] {
			continue
		}
		group := []avatarItem{base}
		for _, other := range rest[i+1:] {
			if clustered[other.r] {
				continue
			}
			if d, ok := Hamming(base.dhash, other.dhash); ok && d <= c.MaxDistance {
				group = append(group, other)
			}
		}
		if len(group) >= 2 {
			assign(group, method)
			for _, it := range group {
				clustered[it.r] = true
			}
		}
	}
	return nil
}
