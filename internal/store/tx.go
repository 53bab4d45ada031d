package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/vetogate/internal/types"
)

// Tx is one atomic unit of work. All reads and writes of a command go through the
// same Tx; nested calls are isolated with savepoints.
type Tx struct {
	tx         *sql.Tx
	savepoints int
	done       bool
}

// Commit makes every write of the transaction durable.
func (t *Tx) Commit() error {
	if t.done {
		return errors.New("commit: transaction already finished")
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards every write. Safe to call after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Nested runs fn under a savepoint. When fn fails, its writes are undone while
// the enclosing transaction stays usable.
func (t *Tx) Nested(ctx context.Context, fn func() error) error {
	t.savepoints++
	name := fmt.Sprintf("sp_%d", t.savepoints)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to %s: %w", name, rbErr))
		}
		if _, relErr := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return errors.Join(err, fmt.Errorf("release %s: %w", name, relErr))
		}
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// insertOnce runs an INSERT ... ON CONFLICT DO NOTHING and maps a no-op to ErrConflict.
func (t *Tx) insertOnce(ctx context.Context, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// updateOne runs an UPDATE and maps "no row matched" to ErrNotFound.
func (t *Tx) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func addrKey(a types.Address) string {
	return strings.ToLower(a.Hex())
}

func parseAddr(s string) (types.Address, error) {
	if !common.IsHexAddress(s) {
		return types.ZeroAddress, fmt.Errorf("corrupt address column %q", s)
	}
	return common.HexToAddress(s), nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
