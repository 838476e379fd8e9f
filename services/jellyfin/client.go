package jellyfin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"

	"github.com/bequbed/jellyfin-trakt-sync/models"
)

const (
	clientName    = "JellyfinTraktSync"
	clientVersion = "1.0.0"
	deviceName    = "trakt-sync"
)

// ErrNotAuthenticated is returned when a user-scoped call runs before Authenticate.
var ErrNotAuthenticated = errors.New("jellyfin: not authenticated")

// Client talks to the Jellyfin REST API on behalf of a single user.
type Client struct {
	httpClient *http.Client
	baseURL    string
	deviceID   string
	token      string
	userID     string
	userName   string
	retryDelay time.Duration
	now        func() time.Time
}

// UserData is the per-user play state of an item.
type UserData struct {
	Played         bool   `json:"Played"`
	PlayCount      int    `json:"PlayCount"`
	LastPlayedDate string `json:"LastPlayedDate,omitempty"`
}

// Item is the subset of BaseItemDto needed to report a play.
type Item struct {
	ID                string         `json:"Id"`
	Name              string         `json:"Name"`
	Type              string         `json:"Type"`
	ProductionYear    int            `json:"ProductionYear,omitempty"`
	SeriesName        string         `json:"SeriesName,omitempty"`
	SeriesID          string         `json:"SeriesId,omitempty"`
	ParentIndexNumber int            `json:"ParentIndexNumber,omitempty"` // season
	IndexNumber       int            `json:"IndexNumber,omitempty"`       // episode
	ProviderIDs       map[string]any `json:"ProviderIds,omitempty"`
	UserData          *UserData      `json:"UserData,omitempty"`
}

type itemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

type authResponse struct {
	AccessToken string `json:"AccessToken"`
	User        struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	} `json:"User"`
}

// NewClient creates a Jellyfin client for the given server.
func NewClient(serverURL, deviceID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewClientWithHTTP(serverURL, deviceID, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP creates a client with a caller-supplied http.Client.
func NewClientWithHTTP(serverURL, deviceID string, httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		deviceID:   deviceID,
		retryDelay: time.Second,
		now:        time.Now,
	}
}

// UserID returns the id of the authenticated user.
func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) authorizationHeader() string {
	header := fmt.Sprintf(`MediaBrowser Client=%q, Device=%q, DeviceId=%q, Version=%q`,
		clientName, deviceName, c.deviceID, clientVersion)
	if c.token != "" {
		header += fmt.Sprintf(`, Token=%q`, c.token)
	}
	return header
}

// statusError marks non-2xx answers; 4xx ones are not worth retrying.
type statusError struct {
	op     string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("jellyfin %s returned status %d: %s", e.op, e.status, e.body)
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, payload, out any) error {
	return retry.Do(
		func() error {
			var body io.Reader
			if payload != nil {
				encoded, err := json.Marshal(payload)
				if err != nil {
					return retry.Unrecoverable(fmt.Errorf("marshal %s request: %w", op, err))
				}
				body = bytes.NewReader(encoded)
			}

			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create %s request: %w", op, err))
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("X-Emby-Authorization", c.authorizationHeader())
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if c.token != "" {
				req.Header.Set("X-Emby-Token", c.token)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("jellyfin %s request failed: %w", op, err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusOK {
				respBody, _ := io.ReadAll(resp.Body)
				statusErr := &statusError{op: op, status: resp.StatusCode, body: string(respBody)}
				if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(statusErr)
				}
				return statusErr
			}

			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode jellyfin %s: %w", op, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[jellyfin] %s attempt %d failed: %v", op, n+1, err)
		}),
	)
}

// Authenticate logs in with username and password and keeps the session token.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	payload := map[string]string{"Username": username, "Pw": password}

	var auth authResponse
	if err := c.doJSON(ctx, "authenticate", http.MethodPost, "/Users/AuthenticateByName", payload, &auth); err != nil {
		return err
	}
	if auth.AccessToken == "" || auth.User.ID == "" {
		return errors.New("jellyfin authenticate: response missing token or user id")
	}

	c.token = auth.AccessToken
	c.userID = auth.User.ID
	c.userName = auth.User.Name
	log.Printf("[jellyfin] connected as %s", c.userName)
	return nil
}

// FetchPlayed returns up to limit played movies and episodes, most recent
// first, whose last play falls within the past daysBack days.
func (c *Client) FetchPlayed(ctx context.Context, daysBack, limit int) ([]models.WatchedItem, error) {
	if c.userID == "" {
		return nil, ErrNotAuthenticated
	}

	params := url.Values{}
	params.Set("SortBy", "DatePlayed")
	params.Set("SortOrder", "Descending")
	params.Set("IncludeItemTypes", "Movie,Episode")
	params.Set("Recursive", "true")
	params.Set("Fields", "ProviderIds,UserData")
	params.Set("IsPlayed", "true")
	params.Set("Limit", strconv.Itoa(limit))

	var resp itemsResponse
	endpoint := "/Users/" + url.PathEscape(c.userID) + "/Items?" + params.Encode()
	if err := c.doJSON(ctx, "items", http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	var cutoff time.Time
	if daysBack > 0 {
		cutoff = c.now().AddDate(0, 0, -daysBack)
	}

	watched := make([]models.WatchedItem, 0, len(resp.Items))
	for _, item := range resp.Items {
		converted := ToWatchedItem(item)
		if !converted.Played {
			continue
		}
		if !cutoff.IsZero() && !converted.WatchedAt.IsZero() && converted.WatchedAt.Before(cutoff) {
			continue
		}
		watched = append(watched, converted)
	}

	log.Printf("[jellyfin] found %d recently played items", len(watched))
	return watched, nil
}

// ToWatchedItem converts a Jellyfin item into the sync model.
func ToWatchedItem(item Item) models.WatchedItem {
	watched := models.WatchedItem{
		SourceID:    item.ID,
		Kind:        models.ParseMediaKind(item.Type),
		Title:       item.Name,
		Year:        item.ProductionYear,
		ExternalIDs: make(map[string]any, len(item.ProviderIDs)),
	}
	for provider, id := range item.ProviderIDs {
		watched.ExternalIDs[strings.ToLower(provider)] = id
	}
	if watched.Kind == models.MediaKindEpisode {
		watched.SeriesTitle = item.SeriesName
		watched.Season = item.ParentIndexNumber
		watched.EpisodeNumber = item.IndexNumber
	}
	if item.UserData != nil {
		watched.Played = item.UserData.Played
		watched.WatchedAt = parsePlayedDate(item.UserData.LastPlayedDate)
	}
	return watched
}

// parsePlayedDate accepts Jellyfin's seven-digit fractional timestamps with or
// without a zone suffix.
func parsePlayedDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.9999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
