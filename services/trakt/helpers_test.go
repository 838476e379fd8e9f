package trakt_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/bequbed/jellyfin-trakt-sync/models"
	"github.com/bequbed/jellyfin-trakt-sync/services/trakt"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type memPersister struct {
	mu    sync.Mutex
	cred  models.Credential
	saves int
	err   error
}

func (p *memPersister) LoadCredential() (models.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cred, nil
}

func (p *memPersister) SaveCredential(cred models.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.cred = cred
	p.saves++
	return nil
}

type recordingPrompter struct {
	shown   []trakt.DeviceCodeResponse
	waiting int
	onShow  func()
}

func (p *recordingPrompter) ShowDeviceCode(code trakt.DeviceCodeResponse) {
	p.shown = append(p.shown, code)
	if p.onShow != nil {
		p.onShow()
	}
}

func (p *recordingPrompter) Waiting() { p.waiting++ }

// fakeTrakt is an in-process stand-in for the Trakt OAuth and scrobble API.
type fakeTrakt struct {
	mu       sync.Mutex
	requests map[string]int

	deviceCodeStatus int
	expiresIn        int
	interval         int
	// pollStatuses is consumed one entry per poll; once exhausted, pollFinal is used.
	pollStatuses  []int
	pollFinal     int
	refreshStatus int
	// refreshBody, when set, is written verbatim with a 200 instead of a token.
	refreshBody string
	// refreshDelay holds the refresh response until the delay passes or the
	// client goes away.
	refreshDelay time.Duration
	// pollDrops closes the connection without a response on that many polls.
	pollDrops     int
	scrobbleCodes []int
	lastHeaders   http.Header
	lastScrobble  map[string]any
}

func newFakeTrakt() *fakeTrakt {
	return &fakeTrakt{
		requests:         make(map[string]int),
		deviceCodeStatus: http.StatusOK,
		expiresIn:        600,
		interval:         5,
		pollFinal:        http.StatusOK,
		refreshStatus:    http.StatusOK,
	}
}

func (f *fakeTrakt) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *fakeTrakt) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.requests {
		n += c
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func tokenBody(access string) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": access + "-refresh",
		"expires_in":    7776000,
		"token_type":    "bearer",
		"created_at":    1700000000,
	}
}

func (f *fakeTrakt) router() http.Handler {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.requests[req.URL.Path]++
			f.lastHeaders = req.Header.Clone()
			f.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("/oauth/device/code", func(w http.ResponseWriter, req *http.Request) {
		if f.deviceCodeStatus != http.StatusOK {
			writeJSON(w, f.deviceCodeStatus, map[string]string{"error": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"device_code":      "device-123",
			"user_code":        "ABCD1234",
			"verification_url": "https://trakt.tv/activate",
			"expires_in":       f.expiresIn,
			"interval":         f.interval,
		})
	}).Methods(http.MethodPost)
	r.HandleFunc("/oauth/device/token", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		if f.pollDrops > 0 {
			f.pollDrops--
			f.mu.Unlock()
			dropConnection(w)
			return
		}
		status := f.pollFinal
		if len(f.pollStatuses) > 0 {
			status = f.pollStatuses[0]
			f.pollStatuses = f.pollStatuses[1:]
		}
		f.mu.Unlock()
		if status == http.StatusOK {
			writeJSON(w, http.StatusOK, tokenBody("device-access"))
			return
		}
		w.WriteHeader(status)
	}).Methods(http.MethodPost)
	r.HandleFunc("/oauth/token", func(w http.ResponseWriter, req *http.Request) {
		if f.refreshDelay > 0 {
			select {
			case <-req.Context().Done():
				return
			case <-time.After(f.refreshDelay):
			}
		}
		if f.refreshBody != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(f.refreshBody))
			return
		}
		if f.refreshStatus != http.StatusOK {
			writeJSON(w, f.refreshStatus, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, tokenBody("refreshed-access"))
	}).Methods(http.MethodPost)
	r.HandleFunc("/users/me", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"username": "watcher"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/scrobble/stop", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		f.mu.Lock()
		f.lastScrobble = body
		status := http.StatusCreated
		if len(f.scrobbleCodes) > 0 {
			status = f.scrobbleCodes[0]
			f.scrobbleCodes = f.scrobbleCodes[1:]
		}
		f.mu.Unlock()
		if status == http.StatusCreated {
			writeJSON(w, status, map[string]any{"id": 1, "action": "scrobble", "progress": 100})
			return
		}
		writeJSON(w, status, map[string]string{"error": "nope"})
	}).Methods(http.MethodPost)
	return r
}

func (f *fakeTrakt) start(t *testing.T) *trakt.Client {
	return f.startWithTimeout(t, 0)
}

// startWithTimeout serves the fake API to a client whose calls give up after
// timeout (no limit when zero).
func (f *fakeTrakt) startWithTimeout(t *testing.T, timeout time.Duration) *trakt.Client {
	t.Helper()
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	httpClient := srv.Client()
	httpClient.Timeout = timeout
	// One connection per request, so a dropped connection is never replayed
	// by the transport on a reused keep-alive.
	httpClient.Transport.(*http.Transport).DisableKeepAlives = true
	return trakt.NewClientWithHTTP(srv.URL, httpClient, "client-id", "client-secret")
}

// dropConnection closes the underlying connection so the client sees a
// transport error instead of an HTTP status.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(err)
	}
	_ = conn.Close()
}
