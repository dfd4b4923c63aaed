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
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rulego/streamcep/types"
)

// markerField is stored in every revision hash so that a revision without
// operators still exists. Operator IDs always contain a slash.
const markerField = "revision"

// RedisStore keeps each revision in a hash and indexes revisions of a
// runtime in a sorted set scored by save time.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisStore connects to the configured server and verifies it with PING.
func NewRedisStore(cfg types.RedisConfig) (*RedisStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Address, err)
	}
	return &RedisStore{client: client, prefix: cfg.Prefix, timeout: cfg.Timeout}, nil
}

func (s *RedisStore) revisionKey(runtimeID, revision string) string {
	return s.prefix + runtimeID + ":rev:" + revision
}

func (s *RedisStore) indexKey(runtimeID string) string {
	return s.prefix + runtimeID + ":revisions"
}

func (s *RedisStore) Save(ctx context.Context, runtimeID, revision string, blobs map[string][]byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fields := make(map[string]interface{}, len(blobs)+1)
	fields[markerField] = revision
	for id, data := range blobs {
		fields[id] = data
	}
	key := s.revisionKey(runtimeID, revision)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.ZAdd(ctx, s.indexKey(runtimeID), redis.Z{Score: float64(time.Now().UnixMilli()), Member: revision})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save revision %s to redis: %w", revision, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, runtimeID, revision string) (map[string][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	values, err := s.client.HGetAll(ctx, s.revisionKey(runtimeID, revision)).Result()
	if err != nil {
		return nil, fmt.Errorf("load revision %s from redis: %w", revision, err)
	}
	if len(values) == 0 {
		return nil, notFound(runtimeID, revision)
	}
	blobs := make(map[string][]byte, len(values))
	for field, v := range values {
		if field == markerField {
			continue
		}
		blobs[field] = []byte(v)
	}
	return blobs, nil
}

func (s *RedisStore) LastRevision(ctx context.Context, runtimeID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	revs, err := s.client.ZRevRange(ctx, s.indexKey(runtimeID), 0, 0).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("read last revision from redis: %w", err)
	}
	if len(revs) == 0 {
		return "", notFound(runtimeID, "")
	}
	return revs[0], nil
}

func (s *RedisStore) Revisions(ctx context.Context, runtimeID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	revs, err := s.client.ZRange(ctx, s.indexKey(runtimeID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list revisions from redis: %w", err)
	}
	return revs, nil
}

// Close closes the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
