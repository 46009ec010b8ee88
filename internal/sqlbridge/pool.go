// Package sqlbridge connects the transaction monitor to the relational store.
//
// It owns the bounded pool of warm database sessions and translates the
// embedded-SQL requests a running artifact emits into driver calls. The
// monitor, not the artifact, owns transactionality: a unit of work spans the
// claim of a session until the commit or rollback that returns it.
package sqlbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xandr001/qwics/internal/logger"
)

// acquireTimeout caps the wait for a pooled connection so an exhausted pool
// surfaces as an error instead of blocking the task forever.
const acquireTimeout = 10 * time.Second

// ErrNoSession is returned when SQL arrives on a task that has no database
// session claimed.
var ErrNoSession = errors.New("sqlbridge: no database session claimed")

// Pool is the bounded set of warm database sessions.
type Pool struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPool opens a pgx pool over the connect string with the given session
// bound.
func NewPool(ctx context.Context, connString string, size int) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connect string: %w", err)
	}
	cfg.MaxConns = int32(size)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	log := logger.With("component", "sqlbridge")
	log.Info("database pool initialized", "max_conns", size)
	return &Pool{pool: pool, logger: log}, nil
}

// Close shuts the pool down.
func (p *Pool) Close() {
	p.pool.Close()
}

// NewSession creates an unclaimed session bound to the pool. The first
// BEGIN routed through ExecSQL claims a connection for it.
func (p *Pool) NewSession() *Session {
	return &Session{pool: p}
}

// Checkout claims a session for a task and opens its unit of work. Return
// finishes it.
func (p *Pool) Checkout(ctx context.Context) (*Session, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	conn, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		if acquireCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("connection acquire timeout after %v: pool may be exhausted", acquireTimeout)
		}
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to begin unit of work: %w", err)
	}
	return &Session{pool: p, conn: conn, tx: tx}, nil
}

// Session is one task's claimed database session. In standalone mode the
// task claims it at dispatch and returns it at task end; in in-DB mode the
// session was claimed before dispatch and commits stay logical.
type Session struct {
	pool *Pool
	conn *pgxpool.Conn
	tx   pgx.Tx

	// InDB marks the in-DB-transaction mode: the surrounding client
	// dialogue owns the session, so commits finish the logical
	// transaction but keep the connection claimed.
	InDB bool
}

// Begin opens a logical transaction on the claimed connection. Used by
// in-DB mode, where BEGIN must not claim a second pool session.
func (s *Session) Begin(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoSession
	}
	if s.tx != nil {
		return nil
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// Exec runs a statement on the session, inside the logical transaction when
// one is open.
func (s *Session) Exec(ctx context.Context, sql string) (string, error) {
	if s.tx != nil {
		tag, err := s.tx.Exec(ctx, sql)
		return tag.String(), err
	}
	if s.conn == nil {
		return "", ErrNoSession
	}
	tag, err := s.conn.Exec(ctx, sql)
	return tag.String(), err
}

// Query runs a row-returning statement on the session.
func (s *Session) Query(ctx context.Context, sql string) (pgx.Rows, error) {
	if s.tx != nil {
		return s.tx.Query(ctx, sql)
	}
	if s.conn == nil {
		return nil, ErrNoSession
	}
	return s.conn.Query(ctx, sql)
}

// finish closes the open logical transaction, committing or rolling back.
func (s *Session) finish(ctx context.Context, commit bool) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if commit {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
		return nil
	}
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

// Sync finishes the logical transaction but keeps the connection claimed,
// opening a fresh transaction so the session stays usable. This is the
// in-DB mode commit/rollback.
func (s *Session) Sync(ctx context.Context, commit bool) error {
	if err := s.finish(ctx, commit); err != nil {
		return err
	}
	return s.Begin(ctx)
}

// Claimed reports whether the session holds a pool connection.
func (s *Session) Claimed() bool {
	return s.conn != nil
}

// Return finishes any open transaction and gives the connection back to the
// pool. This ends the task's unit of work in standalone mode.
func (s *Session) Return(ctx context.Context, commit bool) error {
	err := s.finish(ctx, commit)
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
	return err
}

// Reclaim acquires a fresh connection for the session after a Return, so a
// BEGIN later in the same task can claim a pool session again.
func (s *Session) Reclaim(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	fresh, err := s.pool.Checkout(ctx)
	if err != nil {
		return err
	}
	s.conn, s.tx = fresh.conn, fresh.tx
	return nil
}
