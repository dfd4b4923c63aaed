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
	"fmt"

	"github.com/google/uuid"
	"github.com/rulego/streamcep/types"
)

// Store keeps revisions of operator snapshots. A revision maps operator IDs
// to opaque blobs; Save either stores all of them or none.
type Store interface {
	Save(ctx context.Context, runtimeID, revision string, blobs map[string][]byte) error
	// Load returns types.ErrRevisionNotFound for an unknown revision.
	Load(ctx context.Context, runtimeID, revision string) (map[string][]byte, error)
	// LastRevision returns the most recently saved revision, or
	// types.ErrRevisionNotFound when the runtime has none.
	LastRevision(ctx context.Context, runtimeID string) (string, error)
}

// Lister is implemented by stores that can enumerate revisions, oldest first.
type Lister interface {
	Revisions(ctx context.Context, runtimeID string) ([]string, error)
}

// NewRevision returns a time ordered revision ID (UUIDv7).
func NewRevision() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate revision: %w", err)
	}
	return id.String(), nil
}

// OpenStore builds the store selected by cfg. It returns nil for
// types.StoreNone.
func OpenStore(cfg types.Config) (Store, error) {
	switch cfg.Store.Type {
	case types.StoreNone:
		return nil, nil
	case types.StoreMemory:
		return NewMemoryStore(), nil
	case types.StoreBolt:
		return OpenBoltStore(cfg.Store.Path)
	case types.StoreSQLite:
		return OpenSQLiteStore(cfg.Store.Path)
	case types.StoreRedis:
		return NewRedisStore(cfg.Store.Redis)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

func copyBlobs(blobs map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(blobs))
	for id, data := range blobs {
		out[id] = append([]byte(nil), data...)
	}
	return out
}

func notFound(runtimeID, revision string) error {
	if revision == "" {
		return fmt.Errorf("runtime %s: %w", runtimeID, types.ErrRevisionNotFound)
	}
	return fmt.Errorf("runtime %s revision %s: %w", runtimeID, revision, types.ErrRevisionNotFound)
}
