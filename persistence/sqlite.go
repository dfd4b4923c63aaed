/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package persistence

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps revisions in a SQLite database. Revision order is the
// insertion order of the revisions table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore creates or opens the database at path and applies the
// schema. It is safe to call on an existing database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to sqlite store %s: %w", path, err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, runtimeID, revision string, blobs map[string][]byte) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save revision %s: %w", revision, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM blobs WHERE runtime_id = ? AND revision = ?`, runtimeID, revision); err != nil {
		return fmt.Errorf("save revision %s: %w", revision, err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM revisions WHERE runtime_id = ? AND revision = ?`, runtimeID, revision); err != nil {
		return fmt.Errorf("save revision %s: %w", revision, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO revisions (runtime_id, revision, created_at) VALUES (?, ?, ?)`,
		runtimeID, revision, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("save revision %s: %w", revision, err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO blobs (runtime_id, revision, operator_id, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save revision %s: %w", revision, err)
	}
	defer stmt.Close()
	for id, data := range blobs {
		if _, err = stmt.ExecContext(ctx, runtimeID, revision, id, data); err != nil {
			return fmt.Errorf("save operator %s: %w", id, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit revision %s: %w", revision, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, runtimeID, revision string) (map[string][]byte, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT seq FROM revisions WHERE runtime_id = ? AND revision = ?`, runtimeID, revision).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(runtimeID, revision)
	}
	if err != nil {
		return nil, fmt.Errorf("load revision %s: %w", revision, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT operator_id, data FROM blobs WHERE runtime_id = ? AND revision = ?`, runtimeID, revision)
	if err != nil {
		return nil, fmt.Errorf("load revision %s: %w", revision, err)
	}
	defer rows.Close()

	blobs := make(map[string][]byte)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan blob: %w", err)
		}
		blobs[id] = data
	}
	return blobs, rows.Err()
}

func (s *SQLiteStore) LastRevision(ctx context.Context, runtimeID string) (string, error) {
	var revision string
	err := s.db.QueryRowContext(ctx,
		`SELECT revision FROM revisions WHERE runtime_id = ? ORDER BY seq DESC LIMIT 1`, runtimeID).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound(runtimeID, "")
	}
	if err != nil {
		return "", fmt.Errorf("read last revision: %w", err)
	}
	return revision, nil
}

func (s *SQLiteStore) Revisions(ctx context.Context, runtimeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT revision FROM revisions WHERE runtime_id = ? ORDER BY seq`, runtimeID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var rev string
		if err := rows.Scan(&rev); err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
