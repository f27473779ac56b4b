// Package resolver maps fuzzy title queries onto recorded content. File
// names follow the "<series><MMDDHHmm>-<suffix>" convention used by the
// recorder, so the air date of every item can be recovered from its
// title alone.
package resolver

import (
	"strings"
	"time"

	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
)

const stampDigits = 8

// Normalize folds a title or query into its comparable form: lower
// case, spaces as underscores, apostrophes dropped.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "'", "")
	return s
}

type airing struct {
	series string
	date   time.Time
}

// parseAiring extracts the series token and air date from a normalized
// title. The segment before the first '-' ends in an MMDDHHmm stamp;
// whatever precedes the stamp is the series token, which may be empty
// when the segment is the bare stamp. Titles that do not fit the
// convention report ok=false and are skipped by callers.
func parseAiring(normTitle string, now time.Time) (airing, bool) {
	left, _, found := strings.Cut(normTitle, "-")
	if !found || len(left) < stampDigits {
		return airing{}, false
	}

	stamp := left[len(left)-stampDigits:]
	series := left[:len(left)-stampDigits]

	month, ok1 := twoDigits(stamp[0:2])
	day, ok2 := twoDigits(stamp[2:4])
	hour, ok3 := twoDigits(stamp[4:6])
	minute, ok4 := twoDigits(stamp[6:8])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return airing{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return airing{}, false
	}

	// The stamp carries no year. A stamp "ahead" of today's month/day
	// must be from last year.
	year := now.Year()
	if (int(now.Month()) == month && now.Day() < day) || month > int(now.Month()) {
		year--
	}

	return airing{
		series: series,
		date:   time.Date(year, time.Month(month), day, hour, minute, 0, 0, now.Location()),
	}, true
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// FindEarliestMatch returns the item whose normalized title contains
// the normalized query and whose derived air date is the oldest, or nil
// when nothing matches. Matching items whose titles do not parse are
// ignored.
func FindEarliestMatch(items []domain.ContentItem, query string, now time.Time) *domain.ContentItem {
	normQuery := Normalize(query)

	var match *domain.ContentItem
	var matchDate time.Time
	for i := range items {
		normTitle := Normalize(items[i].Title)
		if !strings.Contains(normTitle, normQuery) {
			continue
		}
		parsed, ok := parseAiring(normTitle, now)
		if !ok {
			continue
		}
		if match == nil || parsed.date.Before(matchDate) {
			match = &items[i]
			matchDate = parsed.date
		}
	}
	if match == nil {
		return nil
	}
	out := *match
	return &out
}

// FindNewSince lists the distinct series tokens with at least one item
// airing within the trailing window, in the order the series first
// appear in items. Series named in excluded are left out.
func FindNewSince(items []domain.ContentItem, windowDays int, excluded []string, now time.Time) []string {
	cutoff := now.AddDate(0, 0, -windowDays)

	skip := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		skip[Normalize(name)] = true
	}

	seen := make(map[string]bool)
	var series []string
	for i := range items {
		parsed, ok := parseAiring(Normalize(items[i].Title), now)
		if !ok {
			continue
		}
		if parsed.date.Before(cutoff) {
			continue
		}
		// A bare stamp has no series name to report.
		if parsed.series == "" {
			continue
		}
		if seen[parsed.series] || skip[parsed.series] {
			continue
		}
		seen[parsed.series] = true
		series = append(series, parsed.series)
	}
	return series
}
