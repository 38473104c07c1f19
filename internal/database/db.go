package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/bnetlogin/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503": // foreign_key_violation
			return models.ErrBadRequest
		case "23502": // not_null_violation
			return models.ErrBadRequest
		}
	}

	return err
}

// Statement is one parameterized SQL command appended to a Transaction
type Statement struct {
	Name string
	SQL  string
	Args []any
}

// Transaction collects statements that must be applied as one unit.
// Nothing touches the database until CommitTransaction.
type Transaction struct {
	statements []Statement
}

func NewTransaction() *Transaction {
	return &Transaction{}
}

// Append adds a statement; statements run in append order
func (t *Transaction) Append(stmt Statement) {
	t.statements = append(t.statements, stmt)
}

// Statements returns a copy of the appended statements
func (t *Transaction) Statements() []Statement {
	out := make([]Statement, len(t.statements))
	copy(out, t.statements)
	return out
}

func (t *Transaction) Len() int {
	return len(t.statements)
}

// CommitTransaction executes every statement inside a single database transaction.
// Any failure rolls the whole unit back.
func (db *DB) CommitTransaction(ctx context.Context, t *Transaction) error {
	if t.Len() == 0 {
		return nil
	}

	return db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, stmt := range t.statements {
			if _, err := tx.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
				return fmt.Errorf("%s: %w", stmt.Name, MapPostgresError(err))
			}
		}
		return nil
	})
}

func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}
