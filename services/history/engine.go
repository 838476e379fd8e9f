package history

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/time/rate"

	"github.com/bequbed/jellyfin-trakt-sync/models"
	"github.com/bequbed/jellyfin-trakt-sync/services/trakt"
)

//go:generate mockgen -destination=mocks_test.go -package=history . Reporter,Fetcher

// Reporter marks a mapped item as watched on the remote service.
type Reporter interface {
	Report(ctx context.Context, report trakt.MappedReport, cred models.Credential) error
}

// Fetcher lists recently played items on the media server.
type Fetcher interface {
	FetchPlayed(ctx context.Context, daysBack, limit int) ([]models.WatchedItem, error)
}

// Engine runs one sync pass at a time. Reports are strictly sequential and
// at least the configured interval passes between the end of one report call
// and the start of the next.
type Engine struct {
	clock   trakt.Clock
	limiter *rate.Limiter
}

// NewEngine creates an engine that waits at least interval between reports.
func NewEngine(clock trakt.Clock, interval time.Duration) *Engine {
	if clock == nil {
		clock = trakt.SystemClock{}
	}
	if interval < time.Second {
		interval = time.Second
	}
	return &Engine{
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// FetchCandidates asks the media server for played items. A failure is logged
// and treated as an empty batch.
func (e *Engine) FetchCandidates(ctx context.Context, fetcher Fetcher, daysBack, limit int) []models.WatchedItem {
	items, err := fetcher.FetchPlayed(ctx, daysBack, limit)
	if err != nil {
		log.Printf("[sync] failed to fetch played items: %v", err)
		return nil
	}
	return items
}

// Run reports every item that is not cached yet. Per-item failures are
// counted and never stop the loop; failed items are left out of the cache so
// the next run retries them. The returned error is non-nil only when the run
// was cancelled or the final cache flush failed; the summary is valid either way.
func (e *Engine) Run(ctx context.Context, items []models.WatchedItem, cache *Cache, cred models.Credential, reporter Reporter) (models.RunSummary, error) {
	runID := uuid.NewString()[:8]
	var summary models.RunSummary

	log.Printf("[sync %s] processing %d candidate items", runID, len(items))

	var runErr error
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			log.Printf("[sync %s] cancelled, %d items left for the next run", runID, len(items)-i)
			runErr = err
			break
		}

		if cache.Has(item.SourceID) {
			summary.SkippedAlreadySynced++
			continue
		}

		mapped, ok := trakt.MapItem(item)
		if !ok {
			log.Printf("[sync %s] warning: cannot map %q (%s, kind %s), skipping", runID, item.Title, item.SourceID, item.Kind)
			summary.Unmappable++
			continue
		}

		if err := e.pace(ctx); err != nil {
			log.Printf("[sync %s] cancelled, %d items left for the next run", runID, len(items)-i)
			runErr = err
			break
		}

		err := e.report(ctx, reporter, mapped, cred)
		e.settle()
		if err != nil {
			log.Printf("[sync %s] failed to report %s: %v", runID, mapped.Label(), err)
			summary.Failed++
			continue
		}

		summary.Reported++
		entry := models.CacheEntry{
			SourceID:   item.SourceID,
			RecordedAt: e.clock.Now(),
			Title:      item.Title,
			Kind:       item.Kind,
		}
		if err := cache.Record(ctx, entry); err != nil {
			// Already reported; the final flush gets another chance to persist it.
			log.Printf("[sync %s] failed to persist cache entry for %s: %v", runID, item.SourceID, err)
		}
	}

	if err := cache.Flush(context.WithoutCancel(ctx)); err != nil {
		log.Printf("[sync %s] failed to flush sync cache: %v", runID, err)
		if runErr == nil {
			runErr = err
		}
	}

	log.Printf("[sync %s] completed: %d reported, %d already synced, %d unmappable, %d failed",
		runID, summary.Reported, summary.SkippedAlreadySynced, summary.Unmappable, summary.Failed)
	return summary, runErr
}

// pace blocks until the limiter holds a full token again. It only waits; the
// token is taken by settle once the report returns.
func (e *Engine) pace(ctx context.Context) error {
	tokens := e.limiter.TokensAt(e.clock.Now())
	if tokens >= 1 {
		return nil
	}
	seconds := (1 - tokens) / float64(e.limiter.Limit())
	delay := time.Duration(math.Ceil(seconds * float64(time.Second)))
	return e.clock.Sleep(ctx, delay)
}

// settle drains the limiter at the moment a report call returns, whatever its
// outcome, so the next call waits a full interval from here.
func (e *Engine) settle() {
	e.limiter.ReserveN(e.clock.Now(), 1)
}

// report calls the reporter, turning a panic into an ordinary failure.
func (e *Engine) report(ctx context.Context, reporter Reporter, mapped trakt.MappedReport, cred models.Credential) error {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() {
		err = reporter.Report(ctx, mapped, cred)
	})
	if recovered := pc.Recovered(); recovered != nil {
		return recovered.AsError()
	}
	return err
}
