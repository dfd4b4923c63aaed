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
Package types provides the shared data model of the engine.

# Streams and Events

A StreamDefinition is an ordered list of typed attributes. Supported types
and their Go representations:

	string -> string
	bool   -> bool
	int    -> int32
	long   -> int64
	float  -> float32
	double -> float64

Input values are normalized with StreamDefinition.Coerce, which rejects
arity or type mismatches with a *TypeMismatchError:

	def := &types.StreamDefinition{ID: "StockStream", Attributes: []types.Attribute{
		{Name: "symbol", Type: types.TypeString},
		{Name: "price", Type: types.TypeFloat},
		{Name: "volume", Type: types.TypeInt},
	}}
	data, err := def.Coerce([]interface{}{"IBM", 75.6, 100})

# Plans

A Plan is an already compiled query set. Each Query reads either a single
stream (filter and optional window) or a Pattern of steps, and projects
attributes and aggregates:

	types.Query{
		Name: "query1",
		From: &types.SingleInput{
			Stream: "StockStream",
			Filter: "price > 10",
			Window: &types.WindowSpec{Type: types.WindowLength, Length: 10},
		},
		Select: []types.SelectItem{
			{Attr: "symbol"},
			{Attr: "price"},
			{Agg: "sum", Attr: "volume", As: "totalVol"},
		},
	}

Plans can also be loaded from YAML with LoadPlan.

# Errors

Boundary errors are either sentinels (ErrNoPersistenceStore,
ErrRuntimeNotRunning, ErrUnknownStream, ErrUnknownQuery,
ErrRevisionNotFound) or typed (*TypeMismatchError, *RestoreError,
*AggregationError). Use errors.Is and errors.As to inspect them.
*/
package types
