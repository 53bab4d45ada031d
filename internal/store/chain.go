package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/vetogate/internal/types"
)

// ChainState is the block height and block time every command observes.
type ChainState struct {
	ChainID string    `json:"chain_id"`
	Height  uint64    `json:"height"`
	Time    time.Time `json:"time"`
}

// ContractRecord is an instantiated contract.
type ContractRecord struct {
	Seq           int64         `json:"seq"`
	Address       types.Address `json:"address"`
	Code          string        `json:"code"`
	Label         string        `json:"label"`
	Creator       types.Address `json:"creator"`
	InitMsg       []byte        `json:"-"`
	CreatedHeight uint64        `json:"created_height"`
}

// InitChain writes the genesis chain state. A no-op when a state already exists.
func (t *Tx) InitChain(ctx context.Context, st ChainState) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO chain_state (id, chain_id, height, time_unix)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, st.ChainID, st.Height, st.Time.Unix())
	if err != nil {
		return fmt.Errorf("init chain: %w", err)
	}
	return nil
}

// ChainState returns the current chain state, or ErrNotFound before InitChain.
func (t *Tx) ChainState(ctx context.Context) (ChainState, error) {
	var (
		st       ChainState
		unixTime int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT chain_id, height, time_unix FROM chain_state WHERE id = 1`,
	).Scan(&st.ChainID, &st.Height, &unixTime)
	if err != nil {
		return ChainState{}, fmt.Errorf("chain state: %w", notFound(err))
	}
	st.Time = time.Unix(unixTime, 0).UTC()
	return st, nil
}

// SetChainState overwrites height and time.
func (t *Tx) SetChainState(ctx context.Context, st ChainState) error {
	if err := t.updateOne(ctx, `
		UPDATE chain_state SET height = ?, time_unix = ? WHERE id = 1
	`, st.Height, st.Time.Unix()); err != nil {
		return fmt.Errorf("set chain state: %w", err)
	}
	return nil
}

// InsertContract registers a new contract instance. Returns ErrConflict when the
// address or label is taken.
func (t *Tx) InsertContract(ctx context.Context, c ContractRecord) error {
	err := t.insertOnce(ctx, `
		INSERT INTO contracts (address, code, label, creator, init_msg, created_height)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, addrKey(c.Address), c.Code, c.Label, addrKey(c.Creator), string(c.InitMsg), c.CreatedHeight)
	if err != nil {
		return fmt.Errorf("insert contract %s: %w", c.Label, err)
	}
	return nil
}

// Contract returns the instance at addr.
func (t *Tx) Contract(ctx context.Context, addr types.Address) (ContractRecord, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT seq, address, code, label, creator, init_msg, created_height
		FROM contracts WHERE address = ?
	`, addrKey(addr))
	c, err := scanContract(row)
	if err != nil {
		return ContractRecord{}, fmt.Errorf("contract %s: %w", addr.Hex(), notFound(err))
	}
	return c, nil
}

// ContractByLabel returns the instance with the given label.
func (t *Tx) ContractByLabel(ctx context.Context, label string) (ContractRecord, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT seq, address, code, label, creator, init_msg, created_height
		FROM contracts WHERE label = ?
	`, label)
	c, err := scanContract(row)
	if err != nil {
		return ContractRecord{}, fmt.Errorf("contract %q: %w", label, notFound(err))
	}
	return c, nil
}

// ListContracts returns every instance in instantiation order.
func (t *Tx) ListContracts(ctx context.Context) ([]ContractRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT seq, address, code, label, creator, init_msg, created_height
		FROM contracts ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	out := []ContractRecord{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("list contracts: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contracts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (ContractRecord, error) {
	var (
		c                ContractRecord
		address, creator string
		initMsg          string
	)
	if err := row.Scan(&c.Seq, &address, &c.Code, &c.Label, &creator, &initMsg, &c.CreatedHeight); err != nil {
		return ContractRecord{}, err
	}
	var err error
	if c.Address, err = parseAddr(address); err != nil {
		return ContractRecord{}, err
	}
	if c.Creator, err = parseAddr(creator); err != nil {
		return ContractRecord{}, err
	}
	c.InitMsg = []byte(initMsg)
	return c, nil
}
