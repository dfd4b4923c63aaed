package aggregator

import (
	"errors"
	"math"
	"testing"

	"github.com/rulego/streamcep/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockFields() []AggregationField {
	return []AggregationField{
		{AggregateType: "sum", InputIndex: 2, InputType: types.TypeInt, OutputAlias: "totalVolume"},
		{AggregateType: "count", InputIndex: -1, OutputAlias: "n"},
	}
}

func insert(data ...interface{}) types.Notification {
	return types.Notification{Kind: types.Insert, Event: types.NewEvent(0, data...)}
}

func remove(data ...interface{}) types.Notification {
	return types.Notification{Kind: types.Remove, Event: types.NewEvent(0, data...)}
}

func TestGroup_Global(t *testing.T) {
	g, err := NewGroup("q/aggregator", stockFields(), nil)
	require.NoError(t, err)
	assert.Equal(t, "q/aggregator", g.ID())
	assert.Equal(t, []types.AttrType{types.TypeLong, types.TypeLong}, g.OutputTypes())

	res, err := g.Apply(insert("IBM", float32(75.6), int32(100)))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(100), int64(1)}, res)

	res, err = g.Apply(insert("WSO2", float32(45.6), int32(200)))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(300), int64(2)}, res)

	res, err = g.Apply(remove("IBM", float32(75.6), int32(100)))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(200), int64(1)}, res)

	res, err = g.Apply(remove("WSO2", float32(45.6), int32(200)))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(0), int64(0)}, res)
	assert.Equal(t, 0, g.Len())
}

func TestGroup_ByKey(t *testing.T) {
	g, err := NewGroup("q/aggregator", stockFields(), []int{0})
	require.NoError(t, err)

	_, err = g.Apply(insert("IBM", float32(1), int32(10)))
	require.NoError(t, err)
	res, err := g.Apply(insert("WSO2", float32(1), int32(5)))
	require.NoError(t, err)
	assert.Equal(t, int64(5), res[0])
	res, err = g.Apply(insert("IBM", float32(1), int32(7)))
	require.NoError(t, err)
	assert.Equal(t, int64(17), res[0])
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, "IBM", g.Key(types.NewEvent(0, "IBM", nil, nil)))
}

// 失败的通知不得改变任何累加器
func TestGroup_ErrorLeavesStateUnchanged(t *testing.T) {
	fields := []AggregationField{
		{AggregateType: "count", InputIndex: -1, OutputAlias: "n"},
		{AggregateType: "sum", InputIndex: 0, InputType: types.TypeDouble, OutputAlias: "s"},
	}
	g, err := NewGroup("q/aggregator", fields, nil)
	require.NoError(t, err)

	_, err = g.Apply(insert(1.5))
	require.NoError(t, err)

	_, err = g.Apply(insert("bad"))
	var aggErr *types.AggregationError
	require.True(t, errors.As(err, &aggErr))
	assert.Equal(t, "sum", aggErr.Function)

	res, err := g.Apply(insert(2.0))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(2), 3.5}, res)

	assert.Equal(t, 1, g.Rejected())
	res, err = g.Apply(remove("bad"))
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0, g.Rejected())
	res, err = g.Apply(remove(2.0))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), 1.5}, res)
}

// 被拒绝的插入在快照恢复后仍然跳过其移除
func TestGroup_RejectedInsertSurvivesRestore(t *testing.T) {
	fields := []AggregationField{{AggregateType: "sum", InputIndex: 0, InputType: types.TypeLong, OutputAlias: "s"}}
	g, err := NewGroup("q/aggregator", fields, nil)
	require.NoError(t, err)

	_, err = g.Apply(insert(int64(math.MaxInt64 - 1)))
	require.NoError(t, err)
	_, err = g.Apply(insert(int64(5)))
	assert.ErrorIs(t, err, ErrOverflow)
	data, err := g.Snapshot()
	require.NoError(t, err)

	restored, err := NewGroup("q/aggregator", fields, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(data))
	assert.Equal(t, 1, restored.Rejected())

	// the removal stamp differs from the insert; only the data identifies it
	res, err := restored.Apply(types.Notification{Kind: types.Remove, Event: types.NewEvent(42, int64(5))})
	require.NoError(t, err)
	assert.Nil(t, res)
	res, err = restored.Apply(remove(int64(math.MaxInt64 - 1)))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(0)}, res)
	assert.Equal(t, 0, restored.Len())
}

func TestGroup_RemoveUnknownGroup(t *testing.T) {
	g, err := NewGroup("q/aggregator", stockFields(), []int{0})
	require.NoError(t, err)
	_, err = g.Apply(remove("IBM", float32(1), int32(1)))
	assert.ErrorIs(t, err, ErrNotPresent)
}

func TestGroup_SnapshotRestore(t *testing.T) {
	g, err := NewGroup("q/aggregator", stockFields(), []int{0})
	require.NoError(t, err)
	_, _ = g.Apply(insert("IBM", float32(1), int32(100)))
	_, _ = g.Apply(insert("WSO2", float32(1), int32(200)))
	data, err := g.Snapshot()
	require.NoError(t, err)

	_, _ = g.Apply(insert("IBM", float32(1), int32(900)))

	restored, err := NewGroup("q/aggregator", stockFields(), []int{0})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(data))
	res, err := restored.Apply(insert("IBM", float32(1), int32(1)))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(101), int64(2)}, res)

	require.NoError(t, g.Restore(data))
	assert.Equal(t, 2, g.Len())

	assert.Error(t, g.Restore([]byte("garbage")))
	assert.Equal(t, 2, g.Len())
}

func TestNewGroup_InvalidField(t *testing.T) {
	_, err := NewGroup("q/aggregator", []AggregationField{
		{AggregateType: "avg", InputIndex: 0, InputType: types.TypeString, OutputAlias: "a"},
	}, nil)
	assert.Error(t, err)
}
