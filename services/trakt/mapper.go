package trakt

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bequbed/jellyfin-trakt-sync/models"
)

// MappedReport is a watched item translated into Trakt's vocabulary. Movies
// carry Movie; episodes carry Show and Episode.
type MappedReport struct {
	Kind      models.MediaKind
	SourceID  string
	WatchedAt time.Time
	Movie     *Movie
	Show      *Show
	Episode   *Episode
}

// Label is a human readable description used in logs.
func (r MappedReport) Label() string {
	switch {
	case r.Movie != nil:
		if r.Movie.Year > 0 {
			return r.Movie.Title + " (" + strconv.Itoa(r.Movie.Year) + ")"
		}
		return r.Movie.Title
	case r.Show != nil && r.Episode != nil:
		return r.Show.Title + " S" + strconv.Itoa(r.Episode.Season) + "E" + strconv.Itoa(r.Episode.Number)
	default:
		return r.SourceID
	}
}

// MapItem converts a played media server item into a Trakt report. It returns
// false for anything that is not a movie or an episode.
//
// Show ids stay empty: resolving them needs another media server lookup per
// series, and Trakt matches episodes by show title plus season/number.
func MapItem(item models.WatchedItem) (MappedReport, bool) {
	report := MappedReport{
		Kind:      item.Kind,
		SourceID:  item.SourceID,
		WatchedAt: item.WatchedAt,
	}

	switch item.Kind {
	case models.MediaKindMovie:
		report.Movie = &Movie{
			Title: item.Title,
			Year:  item.Year,
			IDs:   itemIDs(item.ExternalIDs),
		}
		return report, true
	case models.MediaKindEpisode:
		report.Show = &Show{
			Title: item.SeriesTitle,
			IDs:   IDs{},
		}
		report.Episode = &Episode{
			Season: item.Season,
			Number: item.EpisodeNumber,
			Title:  item.Title,
			IDs:    itemIDs(item.ExternalIDs),
		}
		return report, true
	default:
		return MappedReport{}, false
	}
}

func itemIDs(external map[string]any) IDs {
	var ids IDs
	if v, ok := lookupID(external, "imdb"); ok {
		ids.IMDB = v
	}
	if v, ok := lookupID(external, "tmdb"); ok {
		ids.TMDB = v
	}
	return ids
}

// lookupID finds a provider id regardless of key casing ("Tmdb", "tmdb").
func lookupID(external map[string]any, provider string) (string, bool) {
	if v, ok := external[provider]; ok {
		return canonicalID(v)
	}
	for key, v := range external {
		if strings.EqualFold(key, provider) {
			return canonicalID(v)
		}
	}
	return "", false
}

// canonicalID renders an id as a plain string; numeric ids lose any
// fractional or exponent formatting picked up from JSON decoding.
func canonicalID(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		return formatFloatID(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		if f, err := t.Float64(); err == nil {
			return formatFloatID(f)
		}
		return t.String(), t.String() != ""
	default:
		return "", false
	}
}

func formatFloatID(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10), true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
