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
	"errors"
	"fmt"

	"github.com/rulego/streamcep/logger"
	"github.com/rulego/streamcep/types"
	"golang.org/x/sync/errgroup"
)

// Holder owns stateful operators. Snapshot and Restore are serialized with
// the holder's event processing.
type Holder interface {
	Name() string
	OperatorIDs() []string
	Snapshot(ctx context.Context) (map[string][]byte, error)
	// Restore replaces the state of all operators or of none and returns
	// the state it replaced, captured in the same step.
	Restore(ctx context.Context, blobs map[string][]byte) (map[string][]byte, error)
}

// Manager persists and restores every holder of one runtime as a revision.
type Manager struct {
	runtimeID string
	store     Store
	holders   []Holder
	log       logger.Logger
}

// NewManager creates a manager. store may be nil, in which case every
// operation fails with types.ErrNoPersistenceStore.
func NewManager(runtimeID string, store Store, holders []Holder, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Manager{runtimeID: runtimeID, store: store, holders: holders, log: log}
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Persist snapshots all holders concurrently and saves them as a new
// revision. Each holder is captured at a point between two of its own
// events; holders are not synchronized with each other.
func (m *Manager) Persist(ctx context.Context) (string, error) {
	if m.store == nil {
		return "", types.ErrNoPersistenceStore
	}
	parts, err := m.snapshotAll(ctx)
	if err != nil {
		return "", err
	}
	blobs := make(map[string][]byte)
	for i, part := range parts {
		for id, data := range part {
			if _, dup := blobs[id]; dup {
				return "", fmt.Errorf("persist: operator %s of %s is registered twice", id, m.holders[i].Name())
			}
			blobs[id] = data
		}
	}

	revision, err := NewRevision()
	if err != nil {
		return "", err
	}
	if err := m.store.Save(ctx, m.runtimeID, revision, blobs); err != nil {
		return "", fmt.Errorf("persist revision %s: %w", revision, err)
	}
	m.log.Info("persisted revision %s with %d operators", revision, len(blobs))
	return revision, nil
}

// RestoreLastRevision restores the most recent revision and returns it.
func (m *Manager) RestoreLastRevision(ctx context.Context) (string, error) {
	if m.store == nil {
		return "", types.ErrNoPersistenceStore
	}
	revision, err := m.store.LastRevision(ctx, m.runtimeID)
	if err != nil {
		return "", &types.RestoreError{Err: err}
	}
	return revision, m.RestoreRevision(ctx, revision)
}

// RestoreRevision restores revision into every holder. All blobs are
// checked before any holder is touched; if a holder fails, holders
// restored before it are put back to the state their restore replaced.
func (m *Manager) RestoreRevision(ctx context.Context, revision string) error {
	if m.store == nil {
		return types.ErrNoPersistenceStore
	}
	blobs, err := m.store.Load(ctx, m.runtimeID, revision)
	if err != nil {
		return &types.RestoreError{Revision: revision, Err: err}
	}

	parts := make([]map[string][]byte, len(m.holders))
	for i, h := range m.holders {
		parts[i] = make(map[string][]byte)
		for _, id := range h.OperatorIDs() {
			data, ok := blobs[id]
			if !ok {
				return &types.RestoreError{Revision: revision, OperatorID: id, Err: errors.New("operator missing from revision")}
			}
			parts[i][id] = data
		}
	}

	backup := make([]map[string][]byte, 0, len(m.holders))
	for i, h := range m.holders {
		replaced, err := h.Restore(ctx, parts[i])
		if err != nil {
			m.rollback(ctx, backup)
			var re *types.RestoreError
			if errors.As(err, &re) {
				return &types.RestoreError{Revision: revision, OperatorID: re.OperatorID, Err: re.Err}
			}
			return &types.RestoreError{Revision: revision, Err: err}
		}
		backup = append(backup, replaced)
	}
	m.log.Info("restored revision %s", revision)
	return nil
}

func (m *Manager) snapshotAll(ctx context.Context) ([]map[string][]byte, error) {
	parts := make([]map[string][]byte, len(m.holders))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range m.holders {
		i, h := i, h
		g.Go(func() error {
			blobs, err := h.Snapshot(gctx)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", h.Name(), err)
			}
			parts[i] = blobs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (m *Manager) rollback(ctx context.Context, backup []map[string][]byte) {
	for i, blobs := range backup {
		if _, err := m.holders[i].Restore(ctx, blobs); err != nil {
			m.log.Error("rollback of %s failed: %v", m.holders[i].Name(), err)
		}
	}
}
