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
Package stream wires queries into running pipelines.

# Data Flow

	InputHandler.Send -> Junction -> Pipeline mailbox -> pipeline goroutine
	    filter -> window | pattern -> aggregator -> projection -> callbacks
	                                                           -> output Junction

Each Pipeline owns one goroutine that drains an unbounded Mailbox. Senders
only enqueue, so Send never blocks on processing. Timer wake-ups of time
windows, snapshot requests and restore requests travel through the same
mailbox and are therefore serialized with events: a snapshot reflects every
event sent before it on the same goroutine, and no event is processed while
a restore is in progress.

# Building

	p, err := stream.Build(query, defs, stream.BuildOptions{Logger: log})
	p.AddCallback(func(ts int64, in, removed []types.Event) { ... })
	junction.Subscribe(p)
	p.Start()
	defer p.Stop()

# Output Policy

A query emits current events by default. types.ExpiredEvents delivers only
the events leaving the window and types.AllEvents both. Aggregates are
updated for every notification regardless of the policy.
*/
package stream
