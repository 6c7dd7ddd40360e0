package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// settingsRowKey is the single row under which the whole Settings
// object is serialized. Settings is one key-value namespace, not a
// table with one column per field, so the Store treats it as an
// opaque JSON blob it doesn't interpret — internal/config owns the
// struct shape and validation.
const settingsRowKey = "engine_settings"

// LoadSettingsJSON returns the raw JSON previously saved by
// SaveSettingsJSON, or ("", ErrNotFound) if none has been saved yet.
func (s *Store) LoadSettingsJSON(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingsRowKey).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	return value, nil
}

// SaveSettingsJSON persists the engine's settings as a JSON blob.
func (s *Store) SaveSettingsJSON(ctx context.Context, raw string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
			settingsRowKey, raw)
		return err
	})
}

// MarshalSettings is a convenience wrapper that JSON-encodes v so
// callers don't have to marshal at every call site.
func MarshalSettings(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	return string(b), nil
}

// UnmarshalSettings decodes a previously saved settings blob into v.
func UnmarshalSettings(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}
	return nil
}
