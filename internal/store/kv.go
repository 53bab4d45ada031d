package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/vetogate/internal/types"
)

// KV is one contract_state entry.
type KV struct {
	Key   string
	Value []byte
}

// GetState returns the raw value stored under key, or ErrNotFound.
func (t *Tx) GetState(ctx context.Context, contract types.Address, key string) ([]byte, error) {
	var value string
	err := t.tx.QueryRowContext(ctx,
		`SELECT value FROM contract_state WHERE contract = ? AND key = ?`,
		addrKey(contract), key,
	).Scan(&value)
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", key, notFound(err))
	}
	return []byte(value), nil
}

// SetState writes value under key, replacing any previous value.
func (t *Tx) SetState(ctx context.Context, contract types.Address, key string, value []byte) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO contract_state (contract, key, value) VALUES (?, ?, ?)
		ON CONFLICT(contract, key) DO UPDATE SET value = excluded.value
	`, addrKey(contract), key, string(value))
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// DeleteState removes key. Deleting a missing key is not an error.
func (t *Tx) DeleteState(ctx context.Context, contract types.Address, key string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM contract_state WHERE contract = ? AND key = ?`,
		addrKey(contract), key,
	)
	if err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}

// ScanState returns entries whose key starts with prefix, ordered by key.
func (t *Tx) ScanState(ctx context.Context, contract types.Address, prefix string) ([]KV, error) {
	// substr comparison avoids LIKE wildcard escaping.
	rows, err := t.tx.QueryContext(ctx, `
		SELECT key, value FROM contract_state
		WHERE contract = ? AND substr(key, 1, ?) = ?
		ORDER BY key COLLATE BINARY ASC
	`, addrKey(contract), len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("scan state %s: %w", prefix, err)
	}
	defer rows.Close()

	out := []KV{}
	for rows.Next() {
		var (
			key   string
			value string
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan state %s: %w", prefix, err)
		}
		out = append(out, KV{Key: key, Value: []byte(value)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state %s: %w", prefix, err)
	}
	return out, nil
}

// LoadJSON decodes the value under key into v.
func (t *Tx) LoadJSON(ctx context.Context, contract types.Address, key string, v any) error {
	raw, err := t.GetState(ctx, contract, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode state %s: %w", key, err)
	}
	return nil
}

// SaveJSON stores v canonically under key.
func (t *Tx) SaveJSON(ctx context.Context, contract types.Address, key string, v any) error {
	raw, err := types.MarshalCanonical(v)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	return t.SetState(ctx, contract, key, raw)
}
