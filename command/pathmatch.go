package command

import (
	"net/url"
	"strconv"
	"strings"
)

// VersionParam is the query parameter used to bust caches of reloaded assets.
const VersionParam = "_wr"

// Match is a candidate scored against a changed path.
type Match struct {
	Index     int
	Candidate string
	Ratio     int
	FullMatch bool
}

// pathSegments splits the path part of rawURL, dropping empty segments.
func pathSegments(rawURL string) []string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	var segments []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// MatchRatio compares the segments of changed and candidate from the end and
// returns the share of changed segments that matched, in percent.
func MatchRatio(changed, candidate string) int {
	raw := pathSegments(changed)
	other := pathSegments(candidate)
	if len(raw) == 0 {
		return 0
	}
	matched := 0
	for i, j := len(raw)-1, len(other)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		if raw[i] != other[j] {
			break
		}
		matched++
	}
	return matched * 100 / len(raw)
}

// FindMaxMatch returns every candidate that fully matches path. When none
// does, it returns the single best partial match (or nothing for an empty
// candidate list).
func FindMaxMatch(path string, candidates []string) []Match {
	var best *Match
	var full []Match
	for i, candidate := range candidates {
		ratio := MatchRatio(path, candidate)
		m := Match{Index: i, Candidate: candidate, Ratio: ratio, FullMatch: ratio == 100}
		if m.FullMatch {
			full = append(full, m)
		}
		if best == nil || m.Ratio > best.Ratio {
			best = &m
		}
	}
	if len(full) > 0 {
		return full
	}
	if best == nil {
		return nil
	}
	return []Match{*best}
}

// AddQueryTimestamp sets the cache-busting version parameter of rawURL,
// replacing an existing one.
func AddQueryTimestamp(rawURL string, version int64) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := u.Query()
	query.Set(VersionParam, strconv.FormatInt(version, 10))
	u.RawQuery = query.Encode()
	return u.String()
}
