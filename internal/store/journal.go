package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/vetogate/internal/types"
)

// Unit kinds recorded in the journal.
const (
	UnitInstantiate = "instantiate"
	UnitExecute     = "execute"
	UnitCall        = "call"
	UnitSubMsg      = "submsg"
	UnitReply       = "reply"
)

// Unit statuses.
const (
	UnitOK     = "ok"
	UnitFailed = "failed"
)

// CommandRecord is one journal row: a unit of execution within a command.
type CommandRecord struct {
	Seq       int64           `json:"seq"`
	CommandID string          `json:"command_id"`
	Step      int             `json:"step"`
	Depth     int             `json:"depth"`
	Kind      string          `json:"kind"`
	Sender    types.Address   `json:"sender"`
	Contract  types.Address   `json:"contract"`
	Msg       string          `json:"msg"`
	Status    string          `json:"status"`
	ErrorKind types.ErrorKind `json:"error_kind,omitempty"`
	Error     string          `json:"error,omitempty"`
	Height    uint64          `json:"height"`
	Time      time.Time       `json:"time"`
}

// AppendCommand writes a journal row. (command_id, step) is unique; a duplicate
// write returns ErrConflict.
func (t *Tx) AppendCommand(ctx context.Context, rec CommandRecord) error {
	err := t.insertOnce(ctx, `
		INSERT INTO commands
		(command_id, step, depth, kind, sender, contract, msg, status, error_kind, error, height, time_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(command_id, step) DO NOTHING
	`,
		rec.CommandID,
		rec.Step,
		rec.Depth,
		rec.Kind,
		addrKey(rec.Sender),
		addrKey(rec.Contract),
		rec.Msg,
		rec.Status,
		string(rec.ErrorKind),
		rec.Error,
		rec.Height,
		rec.Time.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append command %s/%d: %w", rec.CommandID, rec.Step, err)
	}
	return nil
}

// ListCommands returns journal rows with seq > afterSeq in ascending order.
// limit <= 0 returns every row.
func (t *Tx) ListCommands(ctx context.Context, afterSeq int64, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT seq, command_id, step, depth, kind, sender, contract, msg, status, error_kind, error, height, time_unix
		FROM commands
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	out := []CommandRecord{}
	for rows.Next() {
		rec, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("list commands: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return out, nil
}

// CommandUnits returns every unit of one command ordered by step.
func (t *Tx) CommandUnits(ctx context.Context, commandID string) ([]CommandRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT seq, command_id, step, depth, kind, sender, contract, msg, status, error_kind, error, height, time_unix
		FROM commands
		WHERE command_id = ?
		ORDER BY step ASC
	`, commandID)
	if err != nil {
		return nil, fmt.Errorf("command units: %w", err)
	}
	defer rows.Close()

	out := []CommandRecord{}
	for rows.Next() {
		rec, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("command units: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command units: %w", err)
	}
	return out, nil
}

func scanCommand(row rowScanner) (CommandRecord, error) {
	var (
		rec              CommandRecord
		sender, contract string
		errorKind        string
		unixTime         int64
	)
	err := row.Scan(
		&rec.Seq, &rec.CommandID, &rec.Step, &rec.Depth, &rec.Kind,
		&sender, &contract, &rec.Msg, &rec.Status, &errorKind, &rec.Error,
		&rec.Height, &unixTime,
	)
	if err != nil {
		return CommandRecord{}, err
	}
	if rec.Sender, err = parseAddr(sender); err != nil {
		return CommandRecord{}, err
	}
	if rec.Contract, err = parseAddr(contract); err != nil {
		return CommandRecord{}, err
	}
	rec.ErrorKind = types.ErrorKind(errorKind)
	rec.Time = time.Unix(unixTime, 0).UTC()
	return rec, nil
}
