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
Package streamcep 是一个带快照与恢复能力的有状态连续查询引擎。

运行时接收一个已编译的查询计划（流定义与查询），为每个查询构建一个单协程管道：
过滤、窗口或模式匹配、聚合、投影，最后回调。窗口、模式状态机和聚合器的状态
可以作为一个版本（revision）持久化到存储中，并在新的运行时中恢复。

# 核心特性

• 长度窗口与时间窗口，输出插入事件与过期事件
• 跨流的量化模式匹配（every、within）
• 增量聚合：sum、count、avg、min、max、distinctcount，支持分组
• 可插拔的持久化存储：内存、bbolt、Redis、SQLite

# 入门示例

	plan := &types.Plan{
		Name: "stocks",
		Streams: []types.StreamDefinition{{ID: "StockStream", Attributes: []types.Attribute{
			{Name: "symbol", Type: types.TypeString},
			{Name: "price", Type: types.TypeFloat},
			{Name: "volume", Type: types.TypeInt},
		}}},
		Queries: []types.Query{{
			Name: "query1",
			From: &types.SingleInput{
				Stream: "StockStream",
				Window: &types.WindowSpec{Type: types.WindowLength, Length: 10},
			},
			Select: []types.SelectItem{
				{Attr: "symbol"},
				{Attr: "price"},
				{Agg: "sum", Attr: "volume", As: "totalVol"},
			},
		}},
	}

	rt, err := streamcep.New(plan, streamcep.WithPersistenceStore(persistence.NewMemoryStore()))
	if err != nil {
		panic(err)
	}
	defer rt.Shutdown()

	_ = rt.AddCallback("query1", func(ts int64, in, removed []types.Event) {
		fmt.Println(in, removed)
	})
	_ = rt.Start()

	h, _ := rt.InputHandler("StockStream")
	_ = h.Send("IBM", 75.6, 100)

	rev, err := rt.Persist(context.Background())

# 生命周期

	Created → Started → (Running ⇄ Persisted)* → Shutdown

发送事件、持久化与恢复只在 Started、Running、Persisted 状态下有效，
否则返回 types.ErrRuntimeNotRunning。未配置存储时持久化与恢复返回
types.ErrNoPersistenceStore。恢复失败返回 *types.RestoreError，且所有算子
保持恢复前的状态。

# 日志

默认使用全局日志记录器，可通过 WithLogger 替换，例如基于 zerolog 的 JSON 日志：

	rt, err := streamcep.New(plan, streamcep.WithLogger(logger.NewJSONLogger(logger.INFO, os.Stderr)))
*/
package streamcep
