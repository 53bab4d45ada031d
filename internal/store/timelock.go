package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/vetogate/internal/types"
)

// SaveTimelockConfig writes the configuration of a timelock instance.
// The configuration is validated before it is written.
func (t *Tx) SaveTimelockConfig(ctx context.Context, contract types.Address, cfg types.TimelockConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO timelock_configs (contract, owner, overrule_pre_propose, subdao)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(contract) DO UPDATE SET
			owner = excluded.owner,
			overrule_pre_propose = excluded.overrule_pre_propose,
			subdao = excluded.subdao
	`, addrKey(contract), addrKey(cfg.Owner), addrKey(cfg.OverrulePrePropose), addrKey(cfg.Subdao))
	if err != nil {
		return fmt.Errorf("save timelock config: %w", err)
	}
	return nil
}

// TimelockConfig returns the configuration of a timelock instance.
func (t *Tx) TimelockConfig(ctx context.Context, contract types.Address) (types.TimelockConfig, error) {
	var owner, pre, subdao string
	err := t.tx.QueryRowContext(ctx, `
		SELECT owner, overrule_pre_propose, subdao FROM timelock_configs WHERE contract = ?
	`, addrKey(contract)).Scan(&owner, &pre, &subdao)
	if err != nil {
		return types.TimelockConfig{}, fmt.Errorf("timelock config: %w", notFound(err))
	}

	var cfg types.TimelockConfig
	if cfg.Owner, err = parseAddr(owner); err != nil {
		return types.TimelockConfig{}, err
	}
	if cfg.OverrulePrePropose, err = parseAddr(pre); err != nil {
		return types.TimelockConfig{}, err
	}
	if cfg.Subdao, err = parseAddr(subdao); err != nil {
		return types.TimelockConfig{}, err
	}
	return cfg, nil
}

// InsertTimelockProposal stores a new record. Returns ErrConflict if the id exists.
func (t *Tx) InsertTimelockProposal(ctx context.Context, contract types.Address, p types.TimelockedProposal) error {
	msgs, err := marshalMsgs(p.Msgs)
	if err != nil {
		return fmt.Errorf("insert timelock proposal %d: %w", p.ID, err)
	}
	err = t.insertOnce(ctx, `
		INSERT INTO timelock_proposals (contract, proposal_id, msgs, timelock_ts, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(contract, proposal_id) DO NOTHING
	`, addrKey(contract), p.ID, msgs, p.TimelockTS.Unix(), string(p.Status))
	if err != nil {
		return fmt.Errorf("insert timelock proposal %d: %w", p.ID, err)
	}
	return nil
}

// TimelockProposal returns one record, or ErrNotFound.
func (t *Tx) TimelockProposal(ctx context.Context, contract types.Address, id uint64) (types.TimelockedProposal, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT proposal_id, msgs, timelock_ts, status
		FROM timelock_proposals
		WHERE contract = ? AND proposal_id = ?
	`, addrKey(contract), id)
	p, err := scanTimelockProposal(row)
	if err != nil {
		return types.TimelockedProposal{}, fmt.Errorf("timelock proposal %d: %w", id, notFound(err))
	}
	return p, nil
}

// SetTimelockProposalStatus overwrites the status of an existing record.
func (t *Tx) SetTimelockProposalStatus(ctx context.Context, contract types.Address, id uint64, status types.ProposalStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set status of %d: unknown status %q", id, status)
	}
	if err := t.updateOne(ctx, `
		UPDATE timelock_proposals SET status = ? WHERE contract = ? AND proposal_id = ?
	`, string(status), addrKey(contract), id); err != nil {
		return fmt.Errorf("set status of %d: %w", id, err)
	}
	return nil
}

// ListTimelockProposals returns records with id > startAfter (all when nil) in
// ascending id order, at most limit rows.
func (t *Tx) ListTimelockProposals(ctx context.Context, contract types.Address, startAfter *uint64, limit int) ([]types.TimelockedProposal, error) {
	query := `
		SELECT proposal_id, msgs, timelock_ts, status
		FROM timelock_proposals
		WHERE contract = ?`
	args := []any{addrKey(contract)}
	if startAfter != nil {
		query += ` AND proposal_id > ?`
		args = append(args, *startAfter)
	}
	query += ` ORDER BY proposal_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list timelock proposals: %w", err)
	}
	defer rows.Close()

	out := []types.TimelockedProposal{}
	for rows.Next() {
		p, err := scanTimelockProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("list timelock proposals: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timelock proposals: %w", err)
	}
	return out, nil
}

func scanTimelockProposal(row rowScanner) (types.TimelockedProposal, error) {
	var (
		p        types.TimelockedProposal
		msgs     string
		unixTime int64
		status   string
	)
	if err := row.Scan(&p.ID, &msgs, &unixTime, &status); err != nil {
		return types.TimelockedProposal{}, err
	}
	if err := json.Unmarshal([]byte(msgs), &p.Msgs); err != nil {
		return types.TimelockedProposal{}, fmt.Errorf("decode msgs of %d: %w", p.ID, err)
	}
	if err := p.Status.UnmarshalText([]byte(status)); err != nil {
		return types.TimelockedProposal{}, err
	}
	p.TimelockTS = time.Unix(unixTime, 0).UTC()
	return p, nil
}

func marshalMsgs(msgs []types.Msg) (string, error) {
	if msgs == nil {
		msgs = []types.Msg{}
	}
	raw, err := types.MarshalCanonical(msgs)
	if err != nil {
		return "", fmt.Errorf("encode msgs: %w", err)
	}
	return string(raw), nil
}
