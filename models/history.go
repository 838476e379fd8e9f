package models

import "time"

// MediaKind distinguishes the media shapes understood by the sync pipeline.
type MediaKind string

const (
	MediaKindMovie   MediaKind = "movie"
	MediaKindEpisode MediaKind = "episode"
	// MediaKindUnknown covers anything the media server returns that is neither
	// a movie nor an episode (trailers, music videos, ...).
	MediaKindUnknown MediaKind = "unknown"
)

// ParseMediaKind converts a media server item type into a MediaKind.
func ParseMediaKind(raw string) MediaKind {
	switch raw {
	case "Movie", "movie":
		return MediaKindMovie
	case "Episode", "episode":
		return MediaKindEpisode
	default:
		return MediaKindUnknown
	}
}

// WatchedItem is a played record read from the media server. It is never
// modified after it has been read.
type WatchedItem struct {
	SourceID      string    `json:"sourceId"`
	Kind          MediaKind `json:"kind"`
	Title         string    `json:"title"`
	Year          int       `json:"year,omitempty"`
	SeriesTitle   string    `json:"seriesTitle,omitempty"`   // episodes only
	Season        int       `json:"season,omitempty"`        // episodes only
	EpisodeNumber int       `json:"episodeNumber,omitempty"` // episodes only
	// ExternalIDs maps a provider name ("imdb", "tmdb", ...) to its id. Values
	// are kept as sent by the server, which may be a string or a JSON number.
	ExternalIDs map[string]any `json:"externalIds,omitempty"`
	WatchedAt   time.Time      `json:"watchedAt,omitempty"`
	Played      bool           `json:"played"`
}

// CacheEntry marks a source item as already reported. Its presence alone means
// the item is never reported again.
type CacheEntry struct {
	SourceID   string
	RecordedAt time.Time
	Title      string
	Kind       MediaKind
}

// RunSummary aggregates the outcome of a single sync pass.
type RunSummary struct {
	Reported             int `json:"reported"`
	SkippedAlreadySynced int `json:"skippedAlreadySynced"`
	Unmappable           int `json:"unmappable"`
	Failed               int `json:"failed"`
}
