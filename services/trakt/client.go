package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	traktAPIBaseURL = "https://api.trakt.tv"
	traktAPIVersion = "2"
)

// ErrSlowDown is returned by PollForToken when Trakt asks the client to poll
// less often.
var ErrSlowDown = errors.New("polling too fast, slow down")

// StatusError is returned when Trakt answers with an unexpected HTTP status.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trakt %s failed: %s - %s", e.Op, e.Status, e.Body)
}

// Client handles Trakt API interactions for OAuth and scrobbling
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
}

// DeviceCodeResponse represents the response from /oauth/device/code
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// TokenResponse represents the response from /oauth/device/token and /oauth/token
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	CreatedAt    int64  `json:"created_at"`
}

// UserProfile represents basic Trakt user information
type UserProfile struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	VIP      bool   `json:"vip"`
	Private  bool   `json:"private"`
	IDs      struct {
		Slug string `json:"slug"`
	} `json:"ids"`
}

// IDs holds external identifiers for a media item
type IDs struct {
	Trakt int    `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TMDB  string `json:"tmdb,omitempty"`
	TVDB  string `json:"tvdb,omitempty"`
}

// Movie represents a Trakt movie
type Movie struct {
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
	IDs   IDs    `json:"ids"`
}

// Show represents a Trakt TV show
type Show struct {
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
	IDs   IDs    `json:"ids"`
}

// Episode represents a Trakt episode
type Episode struct {
	Season int    `json:"season"`
	Number int    `json:"number"`
	Title  string `json:"title,omitempty"`
	IDs    IDs    `json:"ids"`
}

// ScrobbleRequest is the body of /scrobble/stop
type ScrobbleRequest struct {
	Progress   float64  `json:"progress"`
	AppVersion string   `json:"app_version,omitempty"`
	AppDate    string   `json:"app_date,omitempty"`
	Movie      *Movie   `json:"movie,omitempty"`
	Show       *Show    `json:"show,omitempty"`
	Episode    *Episode `json:"episode,omitempty"`
}

// ScrobbleResponse is the body Trakt returns for a created scrobble
type ScrobbleResponse struct {
	ID       int64    `json:"id"`
	Action   string   `json:"action"` // "scrobble" or "watched"
	Progress float64  `json:"progress"`
	Movie    *Movie   `json:"movie,omitempty"`
	Show     *Show    `json:"show,omitempty"`
	Episode  *Episode `json:"episode,omitempty"`
}

// NewClient creates a new Trakt API client
func NewClient(clientID, clientSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewClientWithHTTP(traktAPIBaseURL, &http.Client{Timeout: timeout}, clientID, clientSecret)
}

// NewClientWithHTTP creates a client against a custom base URL, mostly for tests.
func NewClientWithHTTP(baseURL string, httpClient *http.Client, clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// setTraktHeaders adds required Trakt API headers to a request
func (c *Client) setTraktHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", traktAPIVersion)
	req.Header.Set("trakt-api-key", c.clientID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

// do sends a JSON request and returns the raw response. The caller closes the body.
func (c *Client) do(ctx context.Context, method, path, accessToken string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setTraktHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trakt api request: %w", err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) *StatusError {
	respBody, _ := io.ReadAll(resp.Body)
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(respBody),
	}
}

// GetDeviceCode initiates the device code OAuth flow
func (c *Client) GetDeviceCode(ctx context.Context) (*DeviceCodeResponse, error) {
	payload := map[string]string{
		"client_id": c.clientID,
	}

	resp, err := c.do(ctx, http.MethodPost, "/oauth/device/code", "", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("device code", resp)
	}

	var deviceCode DeviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&deviceCode); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if deviceCode.DeviceCode == "" {
		return nil, errors.New("decode response: empty device code")
	}

	return &deviceCode, nil
}

// PollForToken polls for the OAuth token after user has authorized.
// Returns nil, nil if still pending authorization and ErrSlowDown when
// polling too fast. Any other non-200 status is a *StatusError.
func (c *Client) PollForToken(ctx context.Context, deviceCode string) (*TokenResponse, error) {
	payload := map[string]string{
		"code":          deviceCode,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	}

	resp, err := c.do(ctx, http.MethodPost, "/oauth/device/token", "", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return decodeToken(resp.Body)
	case http.StatusBadRequest:
		// 400 means still waiting for user to authorize - this is expected during polling
		return nil, nil
	case http.StatusTooManyRequests:
		return nil, ErrSlowDown
	default:
		// 404 invalid code, 409 already used, 410 expired, 418 denied
		return nil, statusError("token poll", resp)
	}
}

// RefreshAccessToken exchanges a refresh token for a new token bundle
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	payload := map[string]string{
		"refresh_token": refreshToken,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"redirect_uri":  "urn:ietf:wg:oauth:2.0:oob",
		"grant_type":    "refresh_token",
	}

	resp, err := c.do(ctx, http.MethodPost, "/oauth/token", "", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("token refresh", resp)
	}

	return decodeToken(resp.Body)
}

func decodeToken(r io.Reader) (*TokenResponse, error) {
	var token TokenResponse
	if err := json.NewDecoder(r).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("decode response: missing access token")
	}
	return &token, nil
}

// GetUserProfile retrieves information about the authenticated user
func (c *Client) GetUserProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/me", accessToken, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("user profile", resp)
	}

	var profile UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &profile, nil
}

// ScrobbleStop marks an item as fully watched. Trakt answers 201 on success.
func (c *Client) ScrobbleStop(ctx context.Context, accessToken string, request ScrobbleRequest) (*ScrobbleResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/scrobble/stop", accessToken, request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError("scrobble", resp)
	}

	var scrobbleResp ScrobbleResponse
	if err := json.NewDecoder(resp.Body).Decode(&scrobbleResp); err != nil {
		// The scrobble was created; an unreadable body does not undo that.
		return &ScrobbleResponse{}, nil
	}

	return &scrobbleResp, nil
}
