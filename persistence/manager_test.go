package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/rulego/streamcep/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHolder keeps one byte of state per operator.
type fakeHolder struct {
	name  string
	state map[string][]byte
	fail  bool
	// snapshots counts Snapshot calls
	snapshots int
}

func (h *fakeHolder) Name() string { return h.name }

func (h *fakeHolder) OperatorIDs() []string {
	ids := make([]string, 0, len(h.state))
	for id := range h.state {
		ids = append(ids, id)
	}
	return ids
}

func (h *fakeHolder) Snapshot(context.Context) (map[string][]byte, error) {
	h.snapshots++
	return copyBlobs(h.state), nil
}

func (h *fakeHolder) Restore(_ context.Context, blobs map[string][]byte) (map[string][]byte, error) {
	if h.fail {
		return nil, &types.RestoreError{OperatorID: h.name + "/window", Err: errors.New("corrupt")}
	}
	replaced := h.state
	h.state = copyBlobs(blobs)
	return replaced, nil
}

func TestManager_NoStore(t *testing.T) {
	m := NewManager("rt", nil, nil, nil)
	_, err := m.Persist(context.Background())
	assert.ErrorIs(t, err, types.ErrNoPersistenceStore)
	_, err = m.RestoreLastRevision(context.Background())
	assert.ErrorIs(t, err, types.ErrNoPersistenceStore)
	assert.ErrorIs(t, m.RestoreRevision(context.Background(), "r"), types.ErrNoPersistenceStore)
}

func TestManager_PersistRestore(t *testing.T) {
	ctx := context.Background()
	a := &fakeHolder{name: "a", state: map[string][]byte{"a/window": {1}}}
	b := &fakeHolder{name: "b", state: map[string][]byte{"b/pattern": {2}}}
	m := NewManager("rt", NewMemoryStore(), []Holder{a, b}, nil)

	_, err := m.RestoreLastRevision(ctx)
	assert.ErrorIs(t, err, types.ErrRevisionNotFound)

	rev, err := m.Persist(ctx)
	require.NoError(t, err)

	a.state["a/window"] = []byte{7}
	b.state["b/pattern"] = []byte{8}
	got, err := m.RestoreLastRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, rev, got)
	assert.Equal(t, []byte{1}, a.state["a/window"])
	assert.Equal(t, []byte{2}, b.state["b/pattern"])

	err = m.RestoreRevision(ctx, "nope")
	var re *types.RestoreError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nope", re.Revision)
	assert.ErrorIs(t, err, types.ErrRevisionNotFound)
}

func TestManager_DuplicateOperator(t *testing.T) {
	a := &fakeHolder{name: "a", state: map[string][]byte{"x/window": {1}}}
	b := &fakeHolder{name: "b", state: map[string][]byte{"x/window": {2}}}
	m := NewManager("rt", NewMemoryStore(), []Holder{a, b}, nil)
	_, err := m.Persist(context.Background())
	assert.Error(t, err)
}

// 缺失算子时不修改任何持有者
func TestManager_RestoreMissingOperator(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, "rt", "r1", map[string][]byte{"a/window": {1}}))

	a := &fakeHolder{name: "a", state: map[string][]byte{"a/window": {5}}}
	b := &fakeHolder{name: "b", state: map[string][]byte{"b/window": {6}}}
	m := NewManager("rt", store, []Holder{a, b}, nil)

	err := m.RestoreRevision(ctx, "r1")
	var re *types.RestoreError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "b/window", re.OperatorID)
	assert.Equal(t, "r1", re.Revision)
	assert.Equal(t, []byte{5}, a.state["a/window"])
}

func TestManager_RestoreRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, "rt", "r1", map[string][]byte{"a/window": {1}, "b/window": {2}}))

	a := &fakeHolder{name: "a", state: map[string][]byte{"a/window": {5}}}
	b := &fakeHolder{name: "b", state: map[string][]byte{"b/window": {6}}, fail: true}
	m := NewManager("rt", store, []Holder{a, b}, nil)

	err := m.RestoreRevision(ctx, "r1")
	var re *types.RestoreError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "b/window", re.OperatorID)
	assert.Equal(t, "r1", re.Revision)
	assert.Equal(t, []byte{5}, a.state["a/window"])
	assert.Equal(t, []byte{6}, b.state["b/window"])
	// the rollback point comes from the restore step itself
	assert.Zero(t, a.snapshots)
	assert.Zero(t, b.snapshots)
}
