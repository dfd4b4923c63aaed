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

package streamcep

import (
	"github.com/rulego/streamcep/logger"
	"github.com/rulego/streamcep/persistence"
	"github.com/rulego/streamcep/types"
)

// Option 表示对运行时默认行为的修改配置。
// 通过函数式选项模式，用户可以灵活地配置运行时的各种行为。
type Option func(*Runtime)

// WithPersistenceStore 设置持久化存储。
// 显式设置的存储优先于配置中的存储，且不会在 Shutdown 时关闭。
//
// 示例:
//
//	store := persistence.NewMemoryStore()
//	rt, err := streamcep.New(plan, streamcep.WithPersistenceStore(store))
func WithPersistenceStore(store persistence.Store) Option {
	return func(r *Runtime) {
		r.store = store
		r.ownsStore = false
	}
}

// WithLogger 设置自定义日志记录器。
// 允许用户提供自己的日志实现，支持不同的日志后端和格式。
//
// 参数:
//   - log: 实现了logger.Logger接口的日志记录器
//
// 示例:
//
//	customLogger := logger.NewLogger(logger.DEBUG, os.Stderr)
//	rt, err := streamcep.New(plan, streamcep.WithLogger(customLogger))
func WithLogger(log logger.Logger) Option {
	return func(r *Runtime) {
		r.log = log
	}
}

// WithLogLevel 设置日志级别，优先于配置中的 logLevel。
//
// 参数:
//   - level: 日志级别，可选值：DEBUG, INFO, WARN, ERROR, OFF
func WithLogLevel(level logger.Level) Option {
	return func(r *Runtime) {
		r.logLevel = &level
	}
}

// WithConfig 设置运行时配置。
// 配置中的存储类型不为空时，运行时会自行打开该存储并在 Shutdown 时关闭。
//
// 示例:
//
//	cfg, err := types.LoadConfig("streamcep.yaml")
//	rt, err := streamcep.New(plan, streamcep.WithConfig(cfg))
func WithConfig(cfg types.Config) Option {
	return func(r *Runtime) {
		r.config = cfg
		r.configSet = true
	}
}

// WithClock 替换时间源，单位为毫秒。主要用于测试。
func WithClock(clock types.Clock) Option {
	return func(r *Runtime) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithMailboxSize 设置每个管道邮箱的初始容量。
func WithMailboxSize(size int) Option {
	return func(r *Runtime) {
		r.config.MailboxSize = size
	}
}
