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
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rulego/streamcep/logger"
	"github.com/rulego/streamcep/persistence"
	"github.com/rulego/streamcep/stream"
	"github.com/rulego/streamcep/types"
)

// State 运行时生命周期状态
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateRunning
	StatePersisted
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StatePersisted:
		return "persisted"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// active reports whether events, persist and restore are accepted.
func (s State) active() bool {
	return s == StateStarted || s == StateRunning || s == StatePersisted
}

// Runtime 是一个查询计划的执行运行时。
// 每个查询编译为一个独立的管道（单协程 actor），输入句柄只负责入队，
// 快照与恢复通过管道邮箱与事件串行执行。
//
// 使用示例:
//
//	rt, err := streamcep.New(plan, streamcep.WithPersistenceStore(persistence.NewMemoryStore()))
//	_ = rt.AddCallback("query1", func(ts int64, in, removed []types.Event) { ... })
//	_ = rt.Start()
//	h, _ := rt.InputHandler("StockStream")
//	_ = h.Send("IBM", 75.6, 100)
//	rev, _ := rt.Persist(ctx)
type Runtime struct {
	plan   *types.Plan
	config types.Config
	log    logger.Logger
	clock  types.Clock

	// option values collected before build
	configSet bool
	logLevel  *logger.Level

	store     persistence.Store
	ownsStore bool

	junctions map[string]*stream.Junction
	handlers  map[string]*stream.InputHandler
	pipelines []*stream.Pipeline
	stopOrder []*stream.Pipeline // producers of InsertInto streams first
	byName    map[string]*stream.Pipeline
	manager   *persistence.Manager

	state        atomic.Int32
	lifecycle    sync.Mutex
	shutdownOnce sync.Once
	shutdownErr  error
}

// New 根据计划创建运行时。计划中的流定义、查询和表达式在此处完成编译，
// 任何错误都会同步返回。
//
// 参数:
//   - plan: 已编译的查询计划
//   - options: 可选配置项
//
// 示例:
//
//	plan, _ := types.LoadPlan("plan.yaml")
//	rt, err := streamcep.New(plan, streamcep.WithLogLevel(logger.DEBUG))
func New(plan *types.Plan, options ...Option) (*Runtime, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is nil")
	}
	r := &Runtime{
		plan:      plan,
		config:    types.DefaultConfig(),
		clock:     types.SystemClock,
		junctions: make(map[string]*stream.Junction),
		handlers:  make(map[string]*stream.InputHandler),
		byName:    make(map[string]*stream.Pipeline),
	}
	for _, option := range options {
		option(r)
	}
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := r.setupLogger(); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if r.store == nil {
		store, err := persistence.OpenStore(r.config)
		if err != nil {
			return nil, err
		}
		r.store, r.ownsStore = store, store != nil
	}
	if err := r.build(); err != nil {
		r.closeStore()
		return nil, err
	}
	r.log.Info("runtime created with %d streams and %d queries", len(r.junctions), len(r.pipelines))
	return r, nil
}

func (r *Runtime) setupLogger() error {
	if r.log == nil {
		r.log = logger.GetDefault()
	}
	switch {
	case r.logLevel != nil:
		r.log.SetLevel(*r.logLevel)
	case r.configSet:
		level, err := logger.ParseLevel(r.config.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		r.log.SetLevel(level)
	}
	r.log = logger.Named(r.log, r.plan.Name)
	return nil
}

func (r *Runtime) build() error {
	defs := make(map[string]*types.StreamDefinition, len(r.plan.Streams))
	for i := range r.plan.Streams {
		def := &r.plan.Streams[i]
		defs[def.ID] = def
		r.addJunction(def)
	}

	holders := make([]persistence.Holder, 0, len(r.plan.Queries))
	for _, q := range r.plan.Queries {
		p, err := stream.Build(q, defs, stream.BuildOptions{
			Clock:       r.clock,
			Logger:      r.log,
			MailboxSize: r.config.MailboxSize,
		})
		if err != nil {
			return err
		}
		if q.InsertInto != "" {
			out := p.OutputDefinition()
			if existing, ok := defs[out.ID]; ok {
				if !existing.Equal(out) {
					return fmt.Errorf("query %s: output does not match the definition of stream %s", q.Name, out.ID)
				}
			} else {
				defs[out.ID] = out
				r.addJunction(out)
			}
			p.SetSink(r.junctions[out.ID])
		}
		for _, id := range p.Streams() {
			r.junctions[id].Subscribe(p)
		}
		r.pipelines = append(r.pipelines, p)
		r.byName[q.Name] = p
		holders = append(holders, p)
	}
	r.stopOrder = shutdownOrder(r.pipelines, r.plan.Queries)
	r.manager = persistence.NewManager(r.plan.Name, r.store, holders, r.log)
	return nil
}

// shutdownOrder sorts pipelines so that a query feeding a stream through
// InsertInto comes before every query reading that stream. Ties keep plan
// order; pipelines on a cycle follow in plan order.
func shutdownOrder(pipelines []*stream.Pipeline, queries []types.Query) []*stream.Pipeline {
	producers := make(map[string][]int)
	for i, q := range queries {
		if q.InsertInto != "" {
			producers[q.InsertInto] = append(producers[q.InsertInto], i)
		}
	}
	pending := make([]int, len(pipelines))
	consumers := make([][]int, len(pipelines))
	for i, p := range pipelines {
		seen := make(map[int]bool)
		for _, id := range p.Streams() {
			for _, from := range producers[id] {
				if from != i && !seen[from] {
					seen[from] = true
					pending[i]++
					consumers[from] = append(consumers[from], i)
				}
			}
		}
	}

	order := make([]*stream.Pipeline, 0, len(pipelines))
	done := make([]bool, len(pipelines))
	for len(order) < len(pipelines) {
		next := -1
		for i := range pipelines {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			for i := range pipelines {
				if !done[i] {
					next = i
					break
				}
			}
		}
		done[next] = true
		order = append(order, pipelines[next])
		for _, c := range consumers[next] {
			pending[c]--
		}
	}
	return order
}

func (r *Runtime) addJunction(def *types.StreamDefinition) {
	j := stream.NewJunction(def, r.log)
	r.junctions[def.ID] = j
	r.handlers[def.ID] = stream.NewInputHandler(j, r.clock, r.acceptEvent)
}

// acceptEvent gates sends on the lifecycle state.
func (r *Runtime) acceptEvent() error {
	for {
		s := State(r.state.Load())
		if !s.active() {
			return fmt.Errorf("send in state %s: %w", s, types.ErrRuntimeNotRunning)
		}
		if s == StateRunning || r.state.CompareAndSwap(int32(s), int32(StateRunning)) {
			return nil
		}
	}
}

// Name returns the runtime identity used as the persistence key.
func (r *Runtime) Name() string {
	return r.plan.Name
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	return State(r.state.Load())
}

// InputHandler returns the handle of streamID.
func (r *Runtime) InputHandler(streamID string) (*stream.InputHandler, error) {
	h, ok := r.handlers[streamID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownStream, streamID)
	}
	return h, nil
}

// AddCallback registers cb on the output of query.
func (r *Runtime) AddCallback(query string, cb stream.Callback) error {
	p, ok := r.byName[query]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownQuery, query)
	}
	p.AddCallback(cb)
	return nil
}

// OutputDefinition describes the output events of query.
func (r *Runtime) OutputDefinition(query string) (*types.StreamDefinition, error) {
	p, ok := r.byName[query]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownQuery, query)
	}
	return p.OutputDefinition(), nil
}

// AddStreamCallback observes every event published to streamID, including
// streams fed by InsertInto.
func (r *Runtime) AddStreamCallback(streamID string, cb stream.StreamCallback) error {
	j, ok := r.junctions[streamID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownStream, streamID)
	}
	j.AddCallback(cb)
	return nil
}

// Start launches every pipeline. Starting a started runtime is a no-op.
func (r *Runtime) Start() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	switch r.State() {
	case StateCreated:
	case StateShutdown:
		return fmt.Errorf("start: %w", types.ErrRuntimeNotRunning)
	default:
		return nil
	}
	for _, p := range r.pipelines {
		p.Start()
	}
	r.state.Store(int32(StateStarted))
	r.log.Info("runtime started")
	return nil
}

// Shutdown rejects further sends, drains every pipeline, cancels pending
// timers and closes the store if the runtime opened it. It is idempotent.
func (r *Runtime) Shutdown() error {
	r.shutdownOnce.Do(func() {
		r.lifecycle.Lock()
		defer r.lifecycle.Unlock()
		r.state.Store(int32(StateShutdown))
		for _, p := range r.stopOrder {
			p.Stop()
		}
		r.shutdownErr = r.closeStore()
		r.log.Info("runtime shut down")
	})
	return r.shutdownErr
}

func (r *Runtime) closeStore() error {
	if !r.ownsStore {
		return nil
	}
	if c, ok := r.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}

// Persist captures all operator state as a new revision.
func (r *Runtime) Persist(ctx context.Context) (string, error) {
	if err := r.checkActive("persist"); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.PersistTimeout)
	defer cancel()
	rev, err := r.manager.Persist(ctx)
	if err != nil {
		r.log.Warn("persist failed: %v", err)
		return "", err
	}
	r.state.CompareAndSwap(int32(StateRunning), int32(StatePersisted))
	r.state.CompareAndSwap(int32(StateStarted), int32(StatePersisted))
	return rev, nil
}

// RestoreLastRevision restores the most recent revision of this runtime and
// returns it. On error the operator state is left unchanged.
func (r *Runtime) RestoreLastRevision(ctx context.Context) (string, error) {
	if err := r.checkActive("restore"); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.PersistTimeout)
	defer cancel()
	rev, err := r.manager.RestoreLastRevision(ctx)
	if err != nil {
		r.log.Warn("restore failed: %v", err)
		return "", err
	}
	return rev, nil
}

// RestoreRevision restores a specific revision.
func (r *Runtime) RestoreRevision(ctx context.Context, revision string) error {
	if err := r.checkActive("restore"); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.PersistTimeout)
	defer cancel()
	if err := r.manager.RestoreRevision(ctx, revision); err != nil {
		r.log.Warn("restore of %s failed: %v", revision, err)
		return err
	}
	return nil
}

// Revisions lists the stored revisions of this runtime when the store
// supports listing.
func (r *Runtime) Revisions(ctx context.Context) ([]string, error) {
	if r.store == nil {
		return nil, types.ErrNoPersistenceStore
	}
	l, ok := r.store.(persistence.Lister)
	if !ok {
		return nil, fmt.Errorf("store %T cannot list revisions", r.store)
	}
	return l.Revisions(ctx, r.plan.Name)
}

// Stats returns the counters of every query pipeline.
func (r *Runtime) Stats() map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(r.pipelines))
	for _, p := range r.pipelines {
		out[p.Name()] = p.Stats()
	}
	return out
}

func (r *Runtime) checkActive(op string) error {
	if s := r.State(); !s.active() {
		return fmt.Errorf("%s in state %s: %w", op, s, types.ErrRuntimeNotRunning)
	}
	return nil
}
