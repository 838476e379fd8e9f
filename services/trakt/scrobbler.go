package trakt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/bequbed/jellyfin-trakt-sync/models"
)

// AppVersion is sent with every scrobble.
const AppVersion = "1.0.0"

// ReportError describes a scrobble Trakt did not accept. The item is retried
// on the next run.
type ReportError struct {
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *ReportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("scrobble rejected: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("scrobble failed: %v", e.Err)
}

func (e *ReportError) Unwrap() error { return e.Err }

// Scrobbler reports watched items to Trakt. Calls go through a circuit
// breaker so a Trakt outage fails the rest of a run fast instead of waiting
// out every request timeout.
type Scrobbler struct {
	client *Client
	clock  Clock
	cb     *gobreaker.CircuitBreaker[*ScrobbleResponse]
}

// NewScrobbler creates a new Trakt scrobbler.
func NewScrobbler(client *Client, clock Clock) *Scrobbler {
	if clock == nil {
		clock = SystemClock{}
	}
	cb := gobreaker.NewCircuitBreaker[*ScrobbleResponse](gobreaker.Settings{
		Name:        "trakt-scrobble",
		MaxRequests: 1,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only server-side trouble counts against the breaker; a 404 for an
		// unknown title says nothing about Trakt's health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < http.StatusInternalServerError &&
					statusErr.StatusCode != http.StatusTooManyRequests
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[trakt] circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &Scrobbler{client: client, clock: clock, cb: cb}
}

// Report marks the mapped item as watched using the given credential.
func (s *Scrobbler) Report(ctx context.Context, report MappedReport, cred models.Credential) error {
	request := ScrobbleRequest{
		Progress:   100,
		AppVersion: AppVersion,
		AppDate:    s.clock.Now().Format("2006-01-02"),
	}
	switch {
	case report.Movie != nil:
		request.Movie = report.Movie
	case report.Show != nil && report.Episode != nil:
		request.Show = report.Show
		request.Episode = report.Episode
	default:
		return &ReportError{Err: fmt.Errorf("report %s has no payload", report.SourceID)}
	}

	_, err := s.cb.Execute(func() (*ScrobbleResponse, error) {
		return s.client.ScrobbleStop(ctx, cred.AccessToken, request)
	})
	if err == nil {
		log.Printf("[trakt] scrobbled %s: %s", report.Kind, report.Label())
		return nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return &ReportError{StatusCode: statusErr.StatusCode, Body: statusErr.Body, Err: err}
	}
	return &ReportError{Err: err}
}
