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
Package window implements the sliding windows of a query pipeline.

# Window Types

	length(N)  holds the last N events; each arrival beyond N evicts the oldest
	time(D)    holds events for D milliseconds after their timestamp

Both emit notifications instead of batches. An arriving event yields an
Insert notification, and every event leaving the window yields a Remove
notification, so downstream aggregates update incrementally:

	w, _ := window.NewLengthWindow("q/window", 2, def)
	w.Insert(e1) // [insert e1]
	w.Insert(e2) // [insert e2]
	w.Insert(e3) // [remove e1, insert e3]

Time windows ask a Waker for a wake-up at the expiry time of their oldest
event. The pipeline turns the wake-up into an OnTimer call on its own
goroutine.

# Snapshots

Windows implement types.Stateful. A time window stores each event with the
delay it still had to live; Restore re-bases those delays on the current
clock and re-arms the waker.
*/
package window
