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
	"sync"
)

// MemoryStore keeps revisions for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	runtimes map[string]*memoryRuntime
}

type memoryRuntime struct {
	order     []string
	revisions map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runtimes: make(map[string]*memoryRuntime)}
}

func (s *MemoryStore) Save(_ context.Context, runtimeID, revision string, blobs map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[runtimeID]
	if !ok {
		rt = &memoryRuntime{revisions: make(map[string]map[string][]byte)}
		s.runtimes[runtimeID] = rt
	}
	if _, exists := rt.revisions[revision]; !exists {
		rt.order = append(rt.order, revision)
	}
	rt.revisions[revision] = copyBlobs(blobs)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, runtimeID, revision string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rt, ok := s.runtimes[runtimeID]; ok {
		if blobs, ok := rt.revisions[revision]; ok {
			return copyBlobs(blobs), nil
		}
	}
	return nil, notFound(runtimeID, revision)
}

func (s *MemoryStore) LastRevision(_ context.Context, runtimeID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.runtimes[runtimeID]
	if !ok || len(rt.order) == 0 {
		return "", notFound(runtimeID, "")
	}
	return rt.order[len(rt.order)-1], nil
}

func (s *MemoryStore) Revisions(_ context.Context, runtimeID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.runtimes[runtimeID]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), rt.order...), nil
}
