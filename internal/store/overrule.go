package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/vetogate/internal/types"
)

// OverruleConfig is the stored base configuration of an admission module.
type OverruleConfig struct {
	DAO                    types.Address   `json:"dao"`
	ProposalModule         types.Address   `json:"proposal_module"`
	DepositInfo            json.RawMessage `json:"deposit_info"`
	OpenProposalSubmission bool            `json:"open_proposal_submission"`
}

// SaveOverruleConfig writes the configuration of an admission module.
func (t *Tx) SaveOverruleConfig(ctx context.Context, contract types.Address, cfg OverruleConfig) error {
	var deposit sql.NullString
	if len(cfg.DepositInfo) > 0 && string(cfg.DepositInfo) != "null" {
		canonical, err := types.CanonicalizeJSON(cfg.DepositInfo)
		if err != nil {
			return fmt.Errorf("save overrule config: %w", err)
		}
		deposit = sql.NullString{String: string(canonical), Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO overrule_configs (contract, dao, proposal_module, deposit_info, open_proposal_submission)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(contract) DO UPDATE SET
			dao = excluded.dao,
			proposal_module = excluded.proposal_module,
			deposit_info = excluded.deposit_info,
			open_proposal_submission = excluded.open_proposal_submission
	`, addrKey(contract), addrKey(cfg.DAO), addrKey(cfg.ProposalModule), deposit, cfg.OpenProposalSubmission)
	if err != nil {
		return fmt.Errorf("save overrule config: %w", err)
	}
	return nil
}

// OverruleConfig returns the configuration of an admission module.
func (t *Tx) OverruleConfig(ctx context.Context, contract types.Address) (OverruleConfig, error) {
	var (
		cfg         OverruleConfig
		dao, module string
		deposit     sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT dao, proposal_module, deposit_info, open_proposal_submission
		FROM overrule_configs WHERE contract = ?
	`, addrKey(contract)).Scan(&dao, &module, &deposit, &cfg.OpenProposalSubmission)
	if err != nil {
		return OverruleConfig{}, fmt.Errorf("overrule config: %w", notFound(err))
	}
	if cfg.DAO, err = parseAddr(dao); err != nil {
		return OverruleConfig{}, err
	}
	if cfg.ProposalModule, err = parseAddr(module); err != nil {
		return OverruleConfig{}, err
	}
	if deposit.Valid {
		cfg.DepositInfo = json.RawMessage(deposit.String)
	} else {
		cfg.DepositInfo = json.RawMessage("null")
	}
	return cfg, nil
}

// InsertOverruleRecord stores the veto proposal id created for a subDAO proposal.
// Returns ErrConflict if a record for (admission, timelock, subdao proposal id) exists.
func (t *Tx) InsertOverruleRecord(ctx context.Context, admission types.Address, rec types.OverruleRecord) error {
	err := t.insertOnce(ctx, `
		INSERT INTO overrule_proposals (admission, record_id, timelock, subdao_proposal_id, overrule_proposal_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, addrKey(admission), rec.RecordID, addrKey(rec.Timelock), rec.SubdaoProposalID, rec.OverruleProposalID)
	if err != nil {
		return fmt.Errorf("insert overrule record %s: %w", rec.RecordID, err)
	}
	return nil
}

// OverruleRecord looks up the record for (timelock, subdao proposal id).
func (t *Tx) OverruleRecord(ctx context.Context, admission, timelock types.Address, subdaoProposalID uint64) (types.OverruleRecord, error) {
	rec := types.OverruleRecord{Timelock: timelock, SubdaoProposalID: subdaoProposalID}
	err := t.tx.QueryRowContext(ctx, `
		SELECT record_id, overrule_proposal_id
		FROM overrule_proposals
		WHERE admission = ? AND timelock = ? AND subdao_proposal_id = ?
	`, addrKey(admission), addrKey(timelock), subdaoProposalID).Scan(&rec.RecordID, &rec.OverruleProposalID)
	if err != nil {
		return types.OverruleRecord{}, fmt.Errorf("overrule record (%s, %d): %w", timelock.Hex(), subdaoProposalID, notFound(err))
	}
	return rec, nil
}

// ListOverruleRecords returns every record of an admission module ordered by
// veto proposal id.
func (t *Tx) ListOverruleRecords(ctx context.Context, admission types.Address) ([]types.OverruleRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT record_id, timelock, subdao_proposal_id, overrule_proposal_id
		FROM overrule_proposals
		WHERE admission = ?
		ORDER BY overrule_proposal_id ASC, record_id ASC
	`, addrKey(admission))
	if err != nil {
		return nil, fmt.Errorf("list overrule records: %w", err)
	}
	defer rows.Close()

	out := []types.OverruleRecord{}
	for rows.Next() {
		var (
			rec      types.OverruleRecord
			timelock string
		)
		if err := rows.Scan(&rec.RecordID, &timelock, &rec.SubdaoProposalID, &rec.OverruleProposalID); err != nil {
			return nil, fmt.Errorf("list overrule records: %w", err)
		}
		if rec.Timelock, err = parseAddr(timelock); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrule records: %w", err)
	}
	return out, nil
}
