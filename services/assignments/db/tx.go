package db

import (
	"context"
	"database/sql"
)

// MakeTx opens a transaction and hands back queries bound to it
type MakeTx = func(ctx context.Context) (tx *Queries, discard, commit func() error, err error)

func NewMakeTx(dbtx *sql.DB) MakeTx {
	return func(ctx context.Context) (tx *Queries, discard, commit func() error, err error) {
		sqltx, err := dbtx.BeginTx(ctx, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		return New(sqltx),
			sqltx.Rollback,
			sqltx.Commit,
			nil
	}
}
