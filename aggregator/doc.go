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
Package aggregator provides incremental aggregation for continuous queries.

Every aggregate is a Function that supports both directions: Insert folds a
value entering a window and Expire removes a value leaving it. Results are
therefore always the aggregate over exactly the events currently held.

# Aggregation Types

	sum            int/long input -> long (overflow checked), float/double -> double
	count          long, counts every notification
	avg            double, null while empty
	min, max       keep the input type; backed by a multiset so expiring the
	               current extreme yields the next one
	distinctcount  long

Null inputs are skipped. A failing Insert or Expire leaves the accumulator
unchanged.

# Custom Aggregates

	aggregator.Register("last", func(input types.AttrType) (aggregator.Function, error) {
		return &LastAggregator{}, nil
	})

# Grouping

Group keeps one accumulator set per group-by key and drops a key once all of
its events have expired. It implements types.Stateful; Snapshot encodes
every accumulator with MarshalState.
*/
package aggregator
