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

// Package pattern implements the state machine behind pattern queries such
// as
//
//	e1=Stream1[price>20] <2:5> -> e2=Stream2[price>20]
//
// Each Step matches events of one stream through an optional filter and
// takes between Min and Max of them. A partial match that may both repeat
// its step and move on forks, so short and long repetitions stay viable
// together. The first completion of a lineage (all forks of one starting
// event) wins and the rest of the lineage is dropped.
package pattern
