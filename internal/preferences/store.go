// Package preferences persists per-user UI preferences in Redis.
package preferences

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// MaxSearchHistory caps the remembered search terms per user.
const MaxSearchHistory = 5

const (
	fieldDensity      = "density"
	fieldPageSize     = "page_size"
	fieldView         = "view"
	fieldTheme        = "theme"
	fieldSelectedSite = "selected_site"
)

// Preferences holds a user's UI settings.
type Preferences struct {
	Density      string `json:"density"`
	PageSize     int    `json:"page_size"`
	View         string `json:"view"`
	Theme        string `json:"theme"`
	SelectedSite string `json:"selected_site,omitempty"`
}

// Defaults returns the settings used for unset fields.
func Defaults() Preferences {
	return Preferences{Density: "comfortable", PageSize: 25, View: "table", Theme: "system"}
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	Density      *string `json:"density" validate:"omitempty,oneof=compact comfortable large"`
	PageSize     *int    `json:"page_size" validate:"omitempty,min=5,max=200"`
	View         *string `json:"view" validate:"omitempty,oneof=table grid list"`
	Theme        *string `json:"theme" validate:"omitempty,oneof=light dark system"`
	SelectedSite *string `json:"selected_site" validate:"omitempty,uuid"`
}

// Store reads and writes preferences. Stored values carry no schema version.
type Store struct {
	client *redis.Client
}

// NewStore constructs a Store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func prefsKey(userID string) string   { return "prefs:" + userID }
func historyKey(userID string) string { return "prefs:" + userID + ":search" }

// Get merges stored fields over the defaults.
func (s *Store) Get(ctx context.Context, userID string) (Preferences, error) {
	p := Defaults()
	raw, err := s.client.HGetAll(ctx, prefsKey(userID)).Result()
	if err != nil {
		return p, err
	}
	if v := raw[fieldDensity]; v != "" {
		p.Density = v
	}
	if v := raw[fieldPageSize]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.PageSize = n
		}
	}
	if v := raw[fieldView]; v != "" {
		p.View = v
	}
	if v := raw[fieldTheme]; v != "" {
		p.Theme = v
	}
	p.SelectedSite = raw[fieldSelectedSite]
	return p, nil
}

// Update applies patch and returns the resulting preferences.
func (s *Store) Update(ctx context.Context, userID string, patch Patch) (Preferences, error) {
	values := make(map[string]any)
	if patch.Density != nil {
		values[fieldDensity] = *patch.Density
	}
	if patch.PageSize != nil {
		values[fieldPageSize] = *patch.PageSize
	}
	if patch.View != nil {
		values[fieldView] = *patch.View
	}
	if patch.Theme != nil {
		values[fieldTheme] = *patch.Theme
	}
	if patch.SelectedSite != nil {
		values[fieldSelectedSite] = *patch.SelectedSite
	}
	if len(values) > 0 {
		if err := s.client.HSet(ctx, prefsKey(userID), values).Err(); err != nil {
			return Preferences{}, err
		}
	}
	return s.Get(ctx, userID)
}

// SelectedSite returns the user's selected site or "".
func (s *Store) SelectedSite(ctx context.Context, userID string) (string, error) {
	site, err := s.client.HGet(ctx, prefsKey(userID), fieldSelectedSite).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return site, err
}

// SearchHistory returns remembered terms, most recent first.
func (s *Store) SearchHistory(ctx context.Context, userID string) ([]string, error) {
	terms, err := s.client.LRange(ctx, historyKey(userID), 0, MaxSearchHistory-1).Result()
	if terms == nil {
		terms = []string{}
	}
	return terms, err
}

// AddSearch moves term to the front of the history and trims it.
func (s *Store) AddSearch(ctx context.Context, userID, term string) ([]string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.SearchHistory(ctx, userID)
	}
	key := historyKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, key, 0, term)
		pipe.LPush(ctx, key, term)
		pipe.LTrim(ctx, key, 0, MaxSearchHistory-1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.SearchHistory(ctx, userID)
}

// ClearSearch forgets the user's search history.
func (s *Store) ClearSearch(ctx context.Context, userID string) error {
	return s.client.Del(ctx, historyKey(userID)).Err()
}
