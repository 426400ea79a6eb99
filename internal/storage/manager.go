// internal/storage/manager.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	lobbyPrefix  = "lobby:"
	playerPrefix = "player:"
)

// Manager stores lobby and player snapshots as JSON under lobby:<id> and
// player:<id>.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

func (m *Manager) Store() Store { return m.store }

func (m *Manager) save(ctx context.Context, key string, data map[string]interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return m.store.Set(ctx, key, string(raw))
}

func (m *Manager) load(ctx context.Context, key string) (map[string]interface{}, error) {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return data, nil
}

func (m *Manager) list(ctx context.Context, prefix string) ([]string, error) {
	keys, err := m.store.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = strings.TrimPrefix(k, prefix)
	}
	return ids, nil
}

func (m *Manager) SaveLobby(ctx context.Context, lobbyID string, data map[string]interface{}) error {
	return m.save(ctx, lobbyPrefix+lobbyID, data)
}

func (m *Manager) LoadLobby(ctx context.Context, lobbyID string) (map[string]interface{}, error) {
	return m.load(ctx, lobbyPrefix+lobbyID)
}

func (m *Manager) DeleteLobby(ctx context.Context, lobbyID string) error {
	return m.store.Delete(ctx, lobbyPrefix+lobbyID)
}

func (m *Manager) ListLobbyIDs(ctx context.Context) ([]string, error) {
	return m.list(ctx, lobbyPrefix)
}

func (m *Manager) SavePlayer(ctx context.Context, playerID string, data map[string]interface{}) error {
	return m.save(ctx, playerPrefix+playerID, data)
}

func (m *Manager) LoadPlayer(ctx context.Context, playerID string) (map[string]interface{}, error) {
	return m.load(ctx, playerPrefix+playerID)
}

func (m *Manager) DeletePlayer(ctx context.Context, playerID string) error {
	return m.store.Delete(ctx, playerPrefix+playerID)
}

func (m *Manager) ListPlayerIDs(ctx context.Context) ([]string, error) {
	return m.list(ctx, playerPrefix)
}

func (m *Manager) Close() error {
	return m.store.Close()
}
