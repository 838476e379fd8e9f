package config

import "encoding/json"

// legacySettings is the snake_case config.json layout written by the earlier
// sync script. Timestamps there may be floats.
type legacySettings struct {
	Jellyfin struct {
		ServerURL string `json:"server_url"`
		DeviceID  string `json:"device_id"`
	} `json:"jellyfin"`
	Trakt struct {
		ClientID       string  `json:"client_id"`
		ClientSecret   string  `json:"client_secret"`
		AccessToken    string  `json:"access_token"`
		RefreshToken   string  `json:"refresh_token"`
		TokenExpiresAt float64 `json:"token_expires_at"`
	} `json:"trakt"`
	Sync struct {
		DaysToLookBack int     `json:"days_to_look_back"`
		LastSync       float64 `json:"last_sync"`
	} `json:"sync"`
}

// mergeLegacy fills fields left empty by the current layout from legacy keys
// in the same document. The next Save writes the current layout only.
func mergeLegacy(s *Settings, data []byte) error {
	var legacy legacySettings
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&s.Jellyfin.ServerURL, legacy.Jellyfin.ServerURL)
	fill(&s.Jellyfin.DeviceID, legacy.Jellyfin.DeviceID)
	fill(&s.Trakt.ClientID, legacy.Trakt.ClientID)
	fill(&s.Trakt.ClientSecret, legacy.Trakt.ClientSecret)
	fill(&s.Trakt.AccessToken, legacy.Trakt.AccessToken)
	fill(&s.Trakt.RefreshToken, legacy.Trakt.RefreshToken)

	if s.Trakt.ExpiresAt == 0 && legacy.Trakt.TokenExpiresAt > 0 {
		s.Trakt.ExpiresAt = int64(legacy.Trakt.TokenExpiresAt)
	}
	if s.Sync.DaysToLookBack == 0 && legacy.Sync.DaysToLookBack > 0 {
		s.Sync.DaysToLookBack = legacy.Sync.DaysToLookBack
	}
	if s.Sync.LastSync == 0 && legacy.Sync.LastSync > 0 {
		s.Sync.LastSync = int64(legacy.Sync.LastSync)
	}
	return nil
}
