// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Store implements storage.Store on PostgreSQL via bun.
type Store struct {
	db *bun.DB
}

// Option configures a Store.
type Option func(*options)

type options struct {
	password     string
	queryLogging bool
}

// WithPassword sets the connection password separately from the DSN.
func WithPassword(password string) Option {
	return func(o *options) { o.password = password }
}

// WithQueryLogging enables verbose query logging via bundebug.
func WithQueryLogging() Option {
	return func(o *options) { o.queryLogging = true }
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: empty DSN")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	connOpts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if o.password != "" {
		connOpts = append(connOpts, pgdriver.WithPassword(o.password))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(connOpts...))

	db := bun.NewDB(sqldb, pgdialect.New())
	if o.queryLogging {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	models := []any{
		(*documentRow)(nil),
		(*unitRow)(nil),
		(*taskRow)(nil),
		(*queryRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("postgres: create table: %w", err)
		}
	}
	return nil
}

type txKey struct{}

// conn returns the transaction bound to ctx, if any, or the pooled DB.
func (s *Store) conn(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return s.db
}

// WithTransaction runs fn inside a single database transaction. Repository
// calls made with the context passed to fn join that transaction. A nested
// call joins the transaction already bound to ctx.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
