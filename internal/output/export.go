package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tdh8316/socialhunt/internal/scan"
)

// CSVColumns is the header row written by WriteCSV.
var CSVColumns = []string{
	"provider", "username", "url", "status", "http_status", "elapsed_ms",
	"display_name", "avatar_url", "followers", "following", "subscribers", "created_at",
	"bio_domains", "bio_urls",
	"avatar_sha256", "avatar_dhash", "avatar_cluster_id",
	"timestamp_iso", "error",
}

// WriteCSV writes one row per result. List values are joined with "; ".
func WriteCSV(w io.Writer, results []*scan.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVColumns); err != nil {
		return err
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		httpStatus := ""
		if r.HTTPStatus != nil {
			httpStatus = strconv.Itoa(*r.HTTPStatus)
		}
		row := []string{
			r.Provider, r.Username, r.URL, string(r.Status), httpStatus,
			strconv.FormatInt(r.ElapsedMS, 10),
			cell(r.Profile["display_name"]),
			cell(r.Profile["avatar_url"]),
			cell(r.Profile["followers"]),
			cell(r.Profile["following"]),
			cell(r.Profile["subscribers"]),
			cell(r.Profile["created_at"]),
			cell(r.Profile["bio_domains"]),
			cell(r.Profile["bio_urls"]),
			cell(r.Profile["avatar_sha256"]),
			cell(r.Profile["avatar_dhash"]),
			cell(r.Profile["avatar_cluster_id"]),
			r.Timestamp,
			r.ErrorText(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, "; ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, cell(e))
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(t)
	}
}

// WriteJSON writes results as an indented JSON array.
func WriteJSON(w io.Writer, results []*scan.Result) error {
	if results == nil {
		results = []*scan.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
