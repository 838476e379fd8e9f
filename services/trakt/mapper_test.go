package trakt_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bequbed/jellyfin-trakt-sync/models"
	"github.com/bequbed/jellyfin-trakt-sync/services/trakt"
)

func TestMapMovieCoercesNumericTMDB(t *testing.T) {
	cases := map[string]any{
		"int":         12345,
		"int64":       int64(12345),
		"float64":     float64(12345),
		"json number": json.Number("12345"),
		"string":      "12345",
	}
	for name, tmdb := range cases {
		t.Run(name, func(t *testing.T) {
			report, ok := trakt.MapItem(models.WatchedItem{
				SourceID:    "abc",
				Kind:        models.MediaKindMovie,
				Title:       "Heat",
				Year:        1995,
				ExternalIDs: map[string]any{"tmdb": tmdb, "imdb": "tt0113277"},
			})
			require.True(t, ok)
			require.NotNil(t, report.Movie)
			assert.Equal(t, "12345", report.Movie.IDs.TMDB)
			assert.Equal(t, "tt0113277", report.Movie.IDs.IMDB)
			assert.Equal(t, "Heat", report.Movie.Title)
			assert.Equal(t, 1995, report.Movie.Year)
			assert.Nil(t, report.Show)
			assert.Nil(t, report.Episode)
		})
	}
}

func TestMapMovieAcceptsServerKeyCasing(t *testing.T) {
	report, ok := trakt.MapItem(models.WatchedItem{
		SourceID:    "abc",
		Kind:        models.MediaKindMovie,
		Title:       "Alien",
		ExternalIDs: map[string]any{"Tmdb": "348", "Imdb": "tt0078748", "Tvdb": "1"},
	})
	require.True(t, ok)
	assert.Equal(t, trakt.IDs{IMDB: "tt0078748", TMDB: "348"}, report.Movie.IDs)
}

func TestMapEpisodeLeavesShowIDsEmpty(t *testing.T) {
	watched := time.Date(2025, 2, 1, 20, 0, 0, 0, time.UTC)
	report, ok := trakt.MapItem(models.WatchedItem{
		SourceID:      "ep-1",
		Kind:          models.MediaKindEpisode,
		Title:         "Pilot",
		SeriesTitle:   "Halt and Catch Fire",
		Season:        1,
		EpisodeNumber: 1,
		ExternalIDs:   map[string]any{"tmdb": 975745.0, "imdb": "tt2543312"},
		WatchedAt:     watched,
	})
	require.True(t, ok)
	assert.Equal(t, models.MediaKindEpisode, report.Kind)
	assert.Equal(t, "ep-1", report.SourceID)
	assert.Equal(t, watched, report.WatchedAt)
	require.NotNil(t, report.Show)
	require.NotNil(t, report.Episode)
	assert.Nil(t, report.Movie)

	assert.Equal(t, "Halt and Catch Fire", report.Show.Title)
	assert.Equal(t, trakt.IDs{}, report.Show.IDs)
	assert.Equal(t, 1, report.Episode.Season)
	assert.Equal(t, 1, report.Episode.Number)
	assert.Equal(t, "Pilot", report.Episode.Title)
	assert.Equal(t, "975745", report.Episode.IDs.TMDB)
	assert.Equal(t, "tt2543312", report.Episode.IDs.IMDB)

	encoded, err := json.Marshal(report.Show)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Halt and Catch Fire","ids":{}}`, string(encoded))
	assert.Equal(t, "Halt and Catch Fire S1E1", report.Label())
}

func TestMapUnknownKindIsUnmappable(t *testing.T) {
	_, ok := trakt.MapItem(models.WatchedItem{SourceID: "x", Kind: models.MediaKindUnknown, Title: "Trailer"})
	assert.False(t, ok)
}

func TestMapIgnoresEmptyIDs(t *testing.T) {
	report, ok := trakt.MapItem(models.WatchedItem{
		SourceID:    "abc",
		Kind:        models.MediaKindMovie,
		Title:       "Untitled",
		ExternalIDs: map[string]any{"tmdb": "", "imdb": nil},
	})
	require.True(t, ok)
	assert.Equal(t, trakt.IDs{}, report.Movie.IDs)
}
