// Package postgres provides the PostgreSQL implementations of the playlist
// store and the song catalog.
package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	zlog "github.com/rs/zerolog/log"
)

// querier is the subset of operations shared by a pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is implemented by *pgxpool.Pool and can be mocked for testing.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Connect opens a connection pool and checks the server is reachable.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create database pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to reach database")
	}
	zlog.Info().Msgf("database connected: host=%s db=%s", pool.Config().ConnConfig.Host, pool.Config().ConnConfig.Database)
	return pool, nil
}
