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
Package condition compiles filter expressions with expr-lang.

Query filters and pattern step filters are both Conditions. The environment
is a map from attribute name to value; pattern step filters additionally see
every alias captured so far as a nested map:

	cond, err := condition.NewExprCondition("price > e1.price && like_match(symbol, 'IB%')")
	ok, err := cond.Evaluate(map[string]interface{}{
		"symbol": "IBM",
		"price":  80.0,
		"e1":     map[string]interface{}{"price": 75.6},
	})

Besides the expr-lang builtins, like_match, is_null and is_not_null are
available. An empty expression always matches.
*/
package condition
