package addons

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"strconv"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/netsafe"
	"github.com/tdh8316/socialhunt/internal/ratelimit"
	"github.com/tdh8316/socialhunt/internal/scan"
)

// AvatarFingerprint downloads each avatar_url and records its sha256 and a
// 64-bit difference hash.
type AvatarFingerprint struct {
	guard  *netsafe.Guard
	limits netsafe.Limits
}

func NewAvatarFingerprint(guard *netsafe.Guard) *AvatarFingerprint {
	if guard == nil {
		guard = &netsafe.Guard{}
	}
	return &AvatarFingerprint{guard: guard, limits: netsafe.DefaultLimits}
}

func (*AvatarFingerprint) Name() string { return "avatar_fingerprint" }

func (a *AvatarFingerprint) Run(ctx context.Context, _ string, results []*scan.Result, client httpx.Doer, limiter *ratelimit.HostLimiter) error {
	for _, r := range results {
		if r == nil {
			continue
		}
		avatar, ok := r.ProfileString("avatar_url")
		if !ok {
			continue
		}
		_, hasSHA := r.ProfileString("avatar_sha256")
		_, hasDHash := r.ProfileString("avatar_dhash")
		if hasSHA && hasDHash {
			continue
		}

		if err := limiter.Wait(ctx, avatar); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The host's next slot falls after the deadline; other hosts may still fit.
			r.Profile["avatar_fetch_error"] = err.Error()
			continue
		}
		f, err := a.guard.Fetch(ctx, client, avatar, a.limits)
		if err != nil {
			r.Profile["avatar_fetch_error"] = err.Error()
			continue
		}
		dh, err := DHashBytes(f.Body)
		if err != nil {
			r.Profile["avatar_fetch_error"] = err.Error()
			continue
		}

		sum := sha256.Sum256(f.Body)
		r.Profile["avatar_sha256"] = hex.EncodeToString(sum[:])
		r.Profile["avatar_dhash"] = FormatHash(dh)
		r.Profile["avatar_bytes"] = len(f.Body)
		if f.ContentType != "" {
			r.Profile["avatar_content_type"] = f.ContentType
		}
		delete(r.Profile, "avatar_fetch_error")
	}
	return nil
}

// DHash computes a difference hash: the image is scaled to 9x8 grayscale
// and bit i is set when a pixel is brighter than its right neighbour.
func DHash(img image.Image) uint64 {
	const w, h = 9, 8
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	pos := 0
	for y := range h {
		for x := range w - 1 {
			if gray.GrayAt(x, y).Y > gray.GrayAt(x+1, y).Y {
				hash |= 1 << pos
			}
			pos++
		}
	}
	return hash
}

// DHashBytes decodes any registered image format and hashes it.
func DHashBytes(b []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	return DHash(img), nil
}

func FormatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// Hamming returns the bit distance of two hex hashes.
func Hamming(a, b string) (int, bool) {
	x, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, false
	}
	y, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, false
	}
	return bits.OnesCount64(x ^ y), true
}
