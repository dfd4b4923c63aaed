package pattern

import (
	"testing"

	"github.com/rulego/streamcep/condition"
	"github.com/rulego/streamcep/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockDef(id string) *types.StreamDefinition {
	return &types.StreamDefinition{ID: id, Attributes: []types.Attribute{
		{Name: "symbol", Type: types.TypeString},
		{Name: "price", Type: types.TypeFloat},
		{Name: "volume", Type: types.TypeInt},
	}}
}

func mustCondition(t *testing.T, expression string) condition.Condition {
	t.Helper()
	c, err := condition.NewExprCondition(expression)
	require.NoError(t, err)
	return c
}

// e1=Stream1[price>20] <2:5> -> e2=Stream2[price>20]
func quantifiedSteps(t *testing.T) []Step {
	return []Step{
		{Alias: "e1", Stream: "Stream1", Def: stockDef("Stream1"), Filter: mustCondition(t, "price > 20"), Min: 2, Max: 5},
		{Alias: "e2", Stream: "Stream2", Def: stockDef("Stream2"), Filter: mustCondition(t, "price > 20"), Min: 1, Max: 1},
	}
}

func send(t *testing.T, m *Machine, stream string, ts int64, symbol string, price float32) []Match {
	t.Helper()
	matches, err := m.Process(stream, types.NewEvent(ts, symbol, price, int32(100)))
	require.NoError(t, err)
	return matches
}

func projectPrices(m Match) []interface{} {
	return []interface{}{m.Value(0, 0, 1), m.Value(0, 1, 1), m.Value(0, 2, 1), m.Value(0, 3, 1), m.Value(1, types.LastIndex, 1)}
}

func TestMachine_QuantifiedPattern(t *testing.T) {
	m, err := NewMachine("query1/pattern", quantifiedSteps(t), 0, false)
	require.NoError(t, err)

	assert.Empty(t, send(t, m, "Stream1", 1, "WSO2", 25.6))
	assert.Equal(t, 1, m.Len())
	assert.Empty(t, send(t, m, "Stream1", 2, "GOOG", 47.6))
	// one partial stays on e1, a fork waits for e2
	assert.Equal(t, 2, m.Len())
	assert.Empty(t, send(t, m, "Stream1", 3, "GOOG", 13.7))
	assert.Equal(t, 2, m.Len())

	matches := send(t, m, "Stream2", 4, "IBM", 45.7)
	require.Len(t, matches, 1)
	assert.Equal(t, []interface{}{float32(25.6), float32(47.6), nil, nil, float32(45.7)}, projectPrices(matches[0]))
	assert.Equal(t, int64(4), matches[0].Timestamp)
	assert.Equal(t, 0, m.Len())

	// a non-every pattern matches once
	assert.Empty(t, send(t, m, "Stream1", 5, "GOOG", 47.8))
	assert.Empty(t, send(t, m, "Stream2", 6, "IBM", 55.7))
}

// TestMachine_RestoreContinuity 快照恢复后的部分匹配可以继续完成
func TestMachine_RestoreContinuity(t *testing.T) {
	m, err := NewMachine("query1/pattern", quantifiedSteps(t), 0, false)
	require.NoError(t, err)
	send(t, m, "Stream1", 1, "WSO2", 25.6)
	send(t, m, "Stream1", 2, "GOOG", 47.6)
	send(t, m, "Stream1", 3, "GOOG", 13.7)
	data, err := m.Snapshot()
	require.NoError(t, err)

	restored, err := NewMachine("query1/pattern", quantifiedSteps(t), 0, false)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(data))
	assert.Equal(t, 2, restored.Len())

	var all []Match
	all = append(all, send(t, restored, "Stream2", 10, "IBM", 45.7)...)
	all = append(all, send(t, restored, "Stream1", 11, "GOOG", 47.8)...)
	all = append(all, send(t, restored, "Stream2", 12, "IBM", 55.7)...)
	require.Len(t, all, 1)
	assert.Equal(t, []interface{}{float32(25.6), float32(47.6), nil, nil, float32(45.7)}, projectPrices(all[0]))
}

func TestMachine_Every(t *testing.T) {
	steps := []Step{
		{Alias: "e1", Stream: "Stream1", Def: stockDef("Stream1"), Filter: mustCondition(t, "price > 20"), Min: 1, Max: 1},
		{Alias: "e2", Stream: "Stream2", Def: stockDef("Stream2"), Filter: mustCondition(t, "price > e1.price"), Min: 1, Max: 1},
	}
	m, err := NewMachine("q/pattern", steps, 0, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Stream1", "Stream2"}, m.Streams())

	send(t, m, "Stream1", 1, "IBM", 30)
	send(t, m, "Stream1", 2, "WSO2", 50)
	assert.Equal(t, 2, m.Len())

	matches := send(t, m, "Stream2", 3, "ORACLE", 40)
	require.Len(t, matches, 1)
	assert.Equal(t, "IBM", matches[0].Value(0, 0, 0))
	assert.Equal(t, 1, m.Len())

	matches = send(t, m, "Stream2", 4, "ORACLE", 60)
	require.Len(t, matches, 1)
	assert.Equal(t, "WSO2", matches[0].Value(0, 0, 0))
	assert.Equal(t, 0, m.Len())
}

func TestMachine_SingleStepCompletesImmediately(t *testing.T) {
	steps := []Step{{Alias: "e1", Stream: "S", Def: stockDef("S"), Min: 1, Max: 1}}
	m, err := NewMachine("q/pattern", steps, 0, true)
	require.NoError(t, err)
	matches := send(t, m, "S", 1, "IBM", 1)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, m.Len())
}

// 最后一步满足最小次数即完成，整个匹配分支随之结束
func TestMachine_CompletesAtMinimum(t *testing.T) {
	steps := []Step{
		{Alias: "e1", Stream: "S", Def: stockDef("S"), Min: 1, Max: 3},
	}
	m, err := NewMachine("q/pattern", steps, 0, false)
	require.NoError(t, err)
	matches := send(t, m, "S", 1, "a", 1)
	require.Len(t, matches, 1)
	assert.Len(t, matches[0].Captured[0], 1)
}

func TestMachine_UnboundedAndWithin(t *testing.T) {
	steps := []Step{
		{Alias: "e1", Stream: "S1", Def: stockDef("S1"), Min: 1, Max: types.Unbounded},
		{Alias: "e2", Stream: "S2", Def: stockDef("S2"), Min: 1, Max: 1},
	}
	m, err := NewMachine("q/pattern", steps, 100, false)
	require.NoError(t, err)
	for i := int64(0); i < 4; i++ {
		send(t, m, "S1", i, "a", 1)
	}
	assert.Equal(t, 5, m.Len())

	// every partial started at ts 0 is older than the bound
	assert.Empty(t, send(t, m, "S2", 200, "b", 1))
	assert.Equal(t, 0, m.Len())

	// the lineage died without completing, so a new one may start
	send(t, m, "S1", 300, "a", 1)
	matches := send(t, m, "S2", 350, "b", 1)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(300), matches[0].Captured[0][0].Timestamp)
}

func TestMachine_FilterErrorIsIsolated(t *testing.T) {
	steps := []Step{
		{Alias: "e1", Stream: "S", Def: stockDef("S"), Filter: mustCondition(t, "price > 20"), Min: 1, Max: 1},
		{Alias: "e2", Stream: "S", Def: stockDef("S"), Filter: mustCondition(t, "price > e1.price"), Min: 1, Max: 1},
	}
	m, err := NewMachine("q/pattern", steps, 0, false)
	require.NoError(t, err)
	send(t, m, "S", 1, "a", 30)

	_, err = m.Process("S", types.NewEvent(2, "b", nil, int32(1)))
	assert.Error(t, err)
	assert.Equal(t, 1, m.Len())

	matches := send(t, m, "S", 3, "c", 40)
	assert.Len(t, matches, 1)
}

func TestMachine_RestoreRejectsCorruptState(t *testing.T) {
	m, err := NewMachine("q/pattern", quantifiedSteps(t), 0, false)
	require.NoError(t, err)
	send(t, m, "Stream1", 1, "WSO2", 25.6)
	data, err := m.Snapshot()
	require.NoError(t, err)

	oneStep, err := NewMachine("q/pattern", quantifiedSteps(t)[:1], 0, false)
	require.NoError(t, err)
	assert.Error(t, oneStep.Restore(data))
	assert.Equal(t, 0, oneStep.Len())

	assert.Error(t, m.Restore([]byte("not msgpack")))
	assert.Equal(t, 1, m.Len())
}

func TestNewMachine_InvalidBounds(t *testing.T) {
	_, err := NewMachine("q/pattern", nil, 0, false)
	assert.Error(t, err)
	_, err = NewMachine("q/pattern", []Step{{Alias: "e1", Stream: "S", Def: stockDef("S"), Min: 3, Max: 2}}, 0, false)
	assert.Error(t, err)
}

func TestMatch_Value(t *testing.T) {
	m := Match{Captured: [][]types.Event{{types.NewEvent(1, "a"), types.NewEvent(2, "b")}, nil}}
	assert.Equal(t, "b", m.Value(0, types.LastIndex, 0))
	assert.Equal(t, "a", m.Value(0, 0, 0))
	assert.Nil(t, m.Value(0, 5, 0))
	assert.Nil(t, m.Value(1, types.LastIndex, 0))
	assert.Nil(t, m.Value(2, 0, 0))
}
