package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bequbed/jellyfin-trakt-sync/models"
)

// ErrConfigIncomplete is returned by Validate when required fields are unset.
var ErrConfigIncomplete = errors.New("config incomplete")

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Jellyfin JellyfinSettings `json:"jellyfin"`
	Trakt    TraktSettings    `json:"trakt"`
	Sync     SyncSettings     `json:"sync"`
	Cache    CacheSettings    `json:"cache"`
	Log      LogConfig        `json:"log"`
}

// JellyfinSettings holds the media server login.
type JellyfinSettings struct {
	ServerURL string `json:"serverUrl"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	DeviceID  string `json:"deviceId"` // Sent in X-Emby-Authorization, stable across runs
}

// TraktSettings defines the Trakt application credentials and OAuth tokens.
type TraktSettings struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"` // Unix timestamp when access token expires
}

// SyncSettings controls the look-back window and pacing of a run.
type SyncSettings struct {
	DaysToLookBack        int   `json:"daysToLookBack"`
	Limit                 int   `json:"limit"`                 // Max played items fetched per run
	LastSync              int64 `json:"lastSync"`              // Unix timestamp of the last completed run
	ReportIntervalMillis  int   `json:"reportIntervalMillis"`  // Minimum spacing between scrobbles (>= 1000)
	RequestTimeoutSeconds int   `json:"requestTimeoutSeconds"` // Per-call HTTP timeout
}

// CacheBackend selects where the sync cache lives.
type CacheBackend string

const (
	CacheBackendJSON   CacheBackend = "json"
	CacheBackendSQLite CacheBackend = "sqlite"
)

// CacheSettings points at the sync cache.
type CacheSettings struct {
	Backend CacheBackend `json:"backend"`
	Path    string       `json:"path"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// ReportInterval returns the spacing between consecutive scrobbles. It never
// drops below one second.
func (s SyncSettings) ReportInterval() time.Duration {
	d := time.Duration(s.ReportIntervalMillis) * time.Millisecond
	if d < time.Second {
		return time.Second
	}
	return d
}

// RequestTimeout returns the per-call HTTP timeout.
func (s SyncSettings) RequestTimeout() time.Duration {
	if s.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// Credential returns the persisted OAuth token state.
func (t TraktSettings) Credential() models.Credential {
	cred := models.Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	if t.ExpiresAt > 0 {
		cred.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	}
	return cred
}

// SetCredential overwrites the OAuth token state.
func (t *TraktSettings) SetCredential(cred models.Credential) {
	t.AccessToken = cred.AccessToken
	t.RefreshToken = cred.RefreshToken
	t.ExpiresAt = 0
	if !cred.ExpiresAt.IsZero() {
		t.ExpiresAt = cred.ExpiresAt.Unix()
	}
}

// Validate checks that everything needed before the first network call is set.
func (s Settings) Validate() error {
	var missing []string
	if strings.TrimSpace(s.Jellyfin.ServerURL) == "" {
		missing = append(missing, "jellyfin.serverUrl")
	}
	if strings.TrimSpace(s.Jellyfin.Username) == "" {
		missing = append(missing, "jellyfin.username")
	}
	if s.Jellyfin.Password == "" {
		missing = append(missing, "jellyfin.password")
	}
	if strings.TrimSpace(s.Trakt.ClientID) == "" {
		missing = append(missing, "trakt.clientId")
	}
	if strings.TrimSpace(s.Trakt.ClientSecret) == "" {
		missing = append(missing, "trakt.clientSecret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfigIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Jellyfin: JellyfinSettings{
			ServerURL: "http://your-jellyfin-server:8096",
			DeviceID:  "trakt-sync-" + uuid.NewString(),
		},
		Trakt: TraktSettings{},
		Sync: SyncSettings{
			DaysToLookBack:        7,
			Limit:                 100,
			ReportIntervalMillis:  1000,
			RequestTimeoutSeconds: 30,
		},
		Cache: CacheSettings{Backend: CacheBackendJSON, Path: "sync_cache.json"},
		Log: LogConfig{
			File:       "logs/sync.log",
			MaxSize:    10, // 10 MB per file
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// applyDefaults fills fields that older or hand-edited configs leave empty.
func applyDefaults(s *Settings) {
	defaults := DefaultSettings()
	if s.Jellyfin.DeviceID == "" {
		s.Jellyfin.DeviceID = defaults.Jellyfin.DeviceID
	}
	if s.Sync.DaysToLookBack <= 0 {
		s.Sync.DaysToLookBack = defaults.Sync.DaysToLookBack
	}
	if s.Sync.Limit <= 0 {
		s.Sync.Limit = defaults.Sync.Limit
	}
	if s.Sync.ReportIntervalMillis <= 0 {
		s.Sync.ReportIntervalMillis = defaults.Sync.ReportIntervalMillis
	}
	if s.Sync.RequestTimeoutSeconds <= 0 {
		s.Sync.RequestTimeoutSeconds = defaults.Sync.RequestTimeoutSeconds
	}
	if s.Cache.Backend == "" {
		s.Cache.Backend = CacheBackendJSON
	}
	if s.Cache.Path == "" {
		s.Cache.Path = defaults.Cache.Path
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	fs   afero.Fs
	path string
}

func NewManager(configPath string) *Manager {
	return NewManagerWithFs(afero.NewOsFs(), configPath)
}

// NewManagerWithFs creates a manager on top of the given filesystem.
func NewManagerWithFs(fsys afero.Fs, configPath string) *Manager {
	return &Manager{fs: fsys, path: configPath}
}

// Path returns the settings file location.
func (m *Manager) Path() string {
	return m.path
}

// Exists reports whether the settings file is already on disk.
func (m *Manager) Exists() bool {
	ok, err := afero.Exists(m.fs, m.path)
	return err == nil && ok
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return m.fs.MkdirAll(dir, 0o755)
}

// Load reads the settings file from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	data, err := afero.ReadFile(m.fs, m.path)
	if errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := mergeLegacy(&s, data); err != nil {
		return Settings{}, fmt.Errorf("decode legacy settings: %w", err)
	}
	applyDefaults(&s)
	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	return WriteJSONAtomic(m.fs, m.path, s)
}

// LoadCredential reads the Trakt token state from the settings file.
func (m *Manager) LoadCredential() (models.Credential, error) {
	s, err := m.Load()
	if err != nil {
		return models.Credential{}, err
	}
	return s.Trakt.Credential(), nil
}

// SaveCredential rewrites the Trakt token state in place, leaving every other
// setting untouched.
func (m *Manager) SaveCredential(cred models.Credential) error {
	s, err := m.Load()
	if err != nil {
		return err
	}
	s.Trakt.SetCredential(cred)
	return m.Save(s)
}

// MarkSynced records the completion time of a run.
func (m *Manager) MarkSynced(at time.Time) error {
	s, err := m.Load()
	if err != nil {
		return err
	}
	s.Sync.LastSync = at.Unix()
	return m.Save(s)
}

// WriteJSONAtomic encodes v as indented JSON into a temp file and renames it
// over path, so readers never observe a partially written file.
func WriteJSONAtomic(fsys afero.Fs, path string, v any) error {
	tmp := path + ".tmp"
	f, err := fsys.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		_ = fsys.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = fsys.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return fsys.Rename(tmp, path)
}
