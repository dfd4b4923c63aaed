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

/*
Package persistence saves and restores operator state as revisions.

A revision is a map from operator ID ("<query>/window", "<query>/pattern",
"<query>/aggregator") to an opaque blob. Stores:

  - MemoryStore: process lifetime, useful for tests
  - BoltStore: a bbolt file, one bucket per runtime
  - RedisStore: one hash per revision plus a sorted set index
  - SQLiteStore: revisions and blobs tables

Use OpenStore to build the store named in types.Config. Manager drives a
persist or restore across all pipelines of a runtime:

	m := persistence.NewManager("plan", store, holders, log)
	rev, err := m.Persist(ctx)
	...
	_, err = m.RestoreLastRevision(ctx)
*/
package persistence
