package aggregator

import (
	"fmt"
	"strings"

	"github.com/rulego/streamcep/types"
	"github.com/rulego/streamcep/utils/codec"
	"github.com/spf13/cast"
)

// GlobalKey is the group key of a query without group by.
const GlobalKey = "__global__"

// AggregationField defines configuration for a single aggregation field
type AggregationField struct {
	AggregateType string         // Aggregation type (e.g., sum, avg)
	InputIndex    int            // Input attribute position, -1 for none
	InputType     types.AttrType // Input attribute type
	OutputAlias   string         // Output alias (e.g., "totalVolume")
}

type groupState struct {
	funcs []Function
	// refs counts the notifications currently held by the group; the
	// group is dropped once every held event has expired.
	refs int64
}

// Group applies insert and expire notifications to one accumulator set per
// group-by key. It is owned by a single pipeline goroutine.
type Group struct {
	id          string
	fields      []AggregationField
	groupFields []int
	groups      map[string]*groupState
	// rejected counts inserts that failed, keyed by event data. Their
	// later removals must not touch the accumulators.
	rejected map[string]int64
}

// NewGroup builds a group aggregator. groupFields are input attribute
// positions; none means a single global group.
func NewGroup(id string, fields []AggregationField, groupFields []int) (*Group, error) {
	for _, f := range fields {
		if _, err := Create(f.AggregateType, f.InputType); err != nil {
			return nil, fmt.Errorf("aggregation %s: %w", f.OutputAlias, err)
		}
	}
	return &Group{
		id:          id,
		fields:      fields,
		groupFields: groupFields,
		groups:      make(map[string]*groupState),
		rejected:    make(map[string]int64),
	}, nil
}

// ID implements types.Stateful.
func (g *Group) ID() string {
	return g.id
}

// OutputTypes returns the result type of every aggregation field.
func (g *Group) OutputTypes() []types.AttrType {
	out := make([]types.AttrType, len(g.fields))
	for i, f := range g.fields {
		fn, _ := Create(f.AggregateType, f.InputType)
		out[i] = fn.OutputType()
	}
	return out
}

// Key returns the group key of e.
func (g *Group) Key(e types.Event) string {
	if len(g.groupFields) == 0 {
		return GlobalKey
	}
	parts := make([]string, len(g.groupFields))
	for i, idx := range g.groupFields {
		parts[i] = cast.ToString(e.Get(idx))
	}
	return strings.Join(parts, "|")
}

// Apply folds n into the accumulators of its group and returns their
// results in field order. On error no accumulator has changed. A rejected
// insert is remembered so that the removal of the same event is skipped;
// Apply then returns nil results and no error.
func (g *Group) Apply(n types.Notification) ([]interface{}, error) {
	if n.Kind == types.Remove && len(g.rejected) > 0 {
		rk := rejectKey(n.Event)
		if c := g.rejected[rk]; c > 0 {
			if c == 1 {
				delete(g.rejected, rk)
			} else {
				g.rejected[rk] = c - 1
			}
			return nil, nil
		}
	}
	key := g.Key(n.Event)
	gs, ok := g.groups[key]
	if !ok {
		if n.Kind == types.Remove {
			return nil, &types.AggregationError{Function: g.id, Value: key, Err: ErrNotPresent}
		}
		var err error
		if gs, err = g.newGroupState(); err != nil {
			return nil, err
		}
	}

	for i, f := range g.fields {
		v := n.Event.Get(f.InputIndex)
		var err error
		if n.Kind == types.Insert {
			err = gs.funcs[i].Insert(v)
		} else {
			err = gs.funcs[i].Expire(v)
		}
		if err != nil {
			g.rollback(gs, n, i)
			if n.Kind == types.Insert {
				g.rejected[rejectKey(n.Event)]++
			}
			return nil, &types.AggregationError{Function: f.AggregateType, Value: v, Err: err}
		}
	}

	if n.Kind == types.Insert {
		gs.refs++
		g.groups[key] = gs
	} else {
		gs.refs--
	}
	results := make([]interface{}, len(gs.funcs))
	for i, fn := range gs.funcs {
		results[i] = fn.Result()
	}
	if gs.refs <= 0 {
		delete(g.groups, key)
	}
	return results, nil
}

// rejectKey identifies an event by its data. Windows restamp removals, so
// the timestamp is left out.
func rejectKey(e types.Event) string {
	return fmt.Sprintf("%#v", e.Data)
}

// Rejected returns the number of rejected inserts still held by windows.
func (g *Group) Rejected() int {
	n := 0
	for _, c := range g.rejected {
		n += int(c)
	}
	return n
}

// rollback undoes the first applied functions of a failed notification.
func (g *Group) rollback(gs *groupState, n types.Notification, applied int) {
	for i := 0; i < applied; i++ {
		v := n.Event.Get(g.fields[i].InputIndex)
		if n.Kind == types.Insert {
			_ = gs.funcs[i].Expire(v)
		} else {
			_ = gs.funcs[i].Insert(v)
		}
	}
}

func (g *Group) newGroupState() (*groupState, error) {
	funcs := make([]Function, len(g.fields))
	for i, f := range g.fields {
		fn, err := Create(f.AggregateType, f.InputType)
		if err != nil {
			return nil, err
		}
		funcs[i] = fn
	}
	return &groupState{funcs: funcs}, nil
}

// Len returns the number of live groups.
func (g *Group) Len() int {
	return len(g.groups)
}

type groupSnapshot struct {
	Key    string   `codec:"k"`
	Refs   int64    `codec:"r"`
	States [][]byte `codec:"s"`
}

type aggregatorSnapshot struct {
	Groups   []groupSnapshot  `codec:"g"`
	Rejected map[string]int64 `codec:"x,omitempty"`
}

// Snapshot implements types.Stateful.
func (g *Group) Snapshot() ([]byte, error) {
	snaps := make([]groupSnapshot, 0, len(g.groups))
	for key, gs := range g.groups {
		s := groupSnapshot{Key: key, Refs: gs.refs, States: make([][]byte, len(gs.funcs))}
		for i, fn := range gs.funcs {
			data, err := fn.MarshalState()
			if err != nil {
				return nil, fmt.Errorf("snapshot %s group %s: %w", g.id, key, err)
			}
			s.States[i] = data
		}
		snaps = append(snaps, s)
	}
	rejected := make(map[string]int64, len(g.rejected))
	for k, c := range g.rejected {
		rejected[k] = c
	}
	return codec.Encode(aggregatorSnapshot{Groups: snaps, Rejected: rejected})
}

// Restore implements types.Stateful. The current groups are replaced only
// when every accumulator decoded.
func (g *Group) Restore(data []byte) error {
	var snap aggregatorSnapshot
	if err := codec.Decode(data, &snap); err != nil {
		return err
	}
	groups := make(map[string]*groupState, len(snap.Groups))
	for _, s := range snap.Groups {
		if len(s.States) != len(g.fields) {
			return fmt.Errorf("group %s has %d accumulators, expected %d", s.Key, len(s.States), len(g.fields))
		}
		gs, err := g.newGroupState()
		if err != nil {
			return err
		}
		for i, st := range s.States {
			if err := gs.funcs[i].UnmarshalState(st); err != nil {
				return fmt.Errorf("group %s field %s: %w", s.Key, g.fields[i].OutputAlias, err)
			}
		}
		gs.refs = s.Refs
		groups[s.Key] = gs
	}
	rejected := make(map[string]int64, len(snap.Rejected))
	for k, c := range snap.Rejected {
		if c <= 0 {
			return fmt.Errorf("rejected insert %s has count %d", k, c)
		}
		rejected[k] = c
	}
	g.groups = groups
	g.rejected = rejected
	return nil
}
