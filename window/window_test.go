package window

import (
	"testing"
	"time"

	"github.com/rulego/streamcep/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockDef() *types.StreamDefinition {
	return &types.StreamDefinition{ID: "StockStream", Attributes: []types.Attribute{
		{Name: "symbol", Type: types.TypeString},
		{Name: "price", Type: types.TypeFloat},
		{Name: "volume", Type: types.TypeInt},
	}}
}

func stock(ts int64, symbol string, price float32, volume int32) types.Event {
	return types.NewEvent(ts, symbol, price, volume)
}

type recordingWaker struct {
	wakes []int64
}

func (r *recordingWaker) Wake(at int64) {
	r.wakes = append(r.wakes, at)
}

func kinds(ns []types.Notification) []types.Kind {
	out := make([]types.Kind, len(ns))
	for i, n := range ns {
		out[i] = n.Kind
	}
	return out
}

func TestCreateWindow(t *testing.T) {
	clock := func() int64 { return 0 }
	w, err := CreateWindow("q/window", types.WindowSpec{Type: types.WindowLength, Length: 3}, stockDef(), nil, clock)
	require.NoError(t, err)
	assert.IsType(t, &LengthWindow{}, w)

	w, err = CreateWindow("q/window", types.WindowSpec{Type: types.WindowTime, Duration: time.Second}, stockDef(), &recordingWaker{}, clock)
	require.NoError(t, err)
	assert.IsType(t, &TimeWindow{}, w)

	_, err = CreateWindow("q/window", types.WindowSpec{Type: types.WindowTime, Duration: time.Second}, stockDef(), nil, clock)
	assert.Error(t, err)
	_, err = CreateWindow("q/window", types.WindowSpec{Type: "session"}, stockDef(), nil, clock)
	assert.Error(t, err)
	_, err = NewLengthWindow("q/window", 0, stockDef())
	assert.Error(t, err)
}

// TestLengthWindow_Eviction 超出长度时先移除最旧事件再插入
func TestLengthWindow_Eviction(t *testing.T) {
	w, err := NewLengthWindow("q/window", 2, stockDef())
	require.NoError(t, err)

	assert.Equal(t, []types.Kind{types.Insert}, kinds(w.Insert(stock(1, "IBM", 75.6, 100))))
	assert.Equal(t, []types.Kind{types.Insert}, kinds(w.Insert(stock(2, "WSO2", 45.6, 100))))

	out := w.Insert(stock(3, "ORACLE", 57.6, 100))
	require.Equal(t, []types.Kind{types.Remove, types.Insert}, kinds(out))
	assert.Equal(t, "IBM", out[0].Event.Data[0])
	assert.Equal(t, int64(3), out[0].Event.Timestamp)
	assert.Equal(t, "ORACLE", out[1].Event.Data[0])

	assert.Equal(t, 2, w.Len())
	events := w.Events()
	assert.Equal(t, "WSO2", events[0].Data[0])
	assert.Equal(t, "ORACLE", events[1].Data[0])
	assert.Nil(t, w.OnTimer(100))
}

func TestLengthWindow_InsertClonesEvent(t *testing.T) {
	w, err := NewLengthWindow("q/window", 1, stockDef())
	require.NoError(t, err)
	e := stock(1, "IBM", 75.6, 100)
	w.Insert(e)
	e.Data[0] = "changed"
	assert.Equal(t, "IBM", w.Events()[0].Data[0])
}

func TestLengthWindow_SnapshotRestore(t *testing.T) {
	w, err := NewLengthWindow("q/window", 3, stockDef())
	require.NoError(t, err)
	w.Insert(stock(1, "IBM", 75.6, 100))
	w.Insert(types.NewEvent(2, "WSO2", nil, int32(200)))
	data, err := w.Snapshot()
	require.NoError(t, err)

	w.Insert(stock(3, "ORACLE", 57.6, 300))

	restored, err := NewLengthWindow("q/window", 3, stockDef())
	require.NoError(t, err)
	require.NoError(t, restored.Restore(data))
	require.Equal(t, 2, restored.Len())
	assert.Equal(t, types.NewEvent(1, "IBM", float32(75.6), int32(100)), restored.Events()[0])
	assert.Equal(t, types.NewEvent(2, "WSO2", nil, int32(200)), restored.Events()[1])

	small, err := NewLengthWindow("q/window", 1, stockDef())
	require.NoError(t, err)
	assert.Error(t, small.Restore(data))

	assert.Error(t, w.Restore([]byte{0xc1}))
	assert.Equal(t, 3, w.Len())
}

func TestTimeWindow_Expiry(t *testing.T) {
	now := int64(1000)
	waker := &recordingWaker{}
	w, err := NewTimeWindow("q/window", 100, stockDef(), waker, func() int64 { return now })
	require.NoError(t, err)

	out := w.Insert(stock(1000, "IBM", 75.6, 100))
	assert.Equal(t, []types.Kind{types.Insert}, kinds(out))
	now = 1050
	w.Insert(stock(1050, "WSO2", 45.6, 100))
	assert.Equal(t, []int64{1100}, waker.wakes)

	assert.Empty(t, w.OnTimer(1099))

	out = w.OnTimer(1100)
	require.Equal(t, []types.Kind{types.Remove}, kinds(out))
	assert.Equal(t, "IBM", out[0].Event.Data[0])
	assert.Equal(t, int64(1100), out[0].Event.Timestamp)
	assert.Equal(t, []int64{1100, 1150}, waker.wakes)

	// due entries expire before the insert
	now = 1200
	out = w.Insert(stock(1200, "ORACLE", 57.6, 100))
	require.Equal(t, []types.Kind{types.Remove, types.Insert}, kinds(out))
	assert.Equal(t, "WSO2", out[0].Event.Data[0])
	assert.Equal(t, 1, w.Len())
}

func TestTimeWindow_OutOfOrderTimestamp(t *testing.T) {
	waker := &recordingWaker{}
	w, err := NewTimeWindow("q/window", 100, stockDef(), waker, func() int64 { return 0 })
	require.NoError(t, err)
	w.Insert(stock(500, "IBM", 1, 1))
	w.Insert(stock(200, "WSO2", 1, 1))

	assert.Equal(t, "WSO2", w.Events()[0].Data[0])
	assert.Equal(t, []int64{600, 300}, waker.wakes)
}

// TestTimeWindow_SnapshotRestore 恢复后按剩余时间重新计算过期时刻
func TestTimeWindow_SnapshotRestore(t *testing.T) {
	now := int64(1000)
	clock := func() int64 { return now }
	w, err := NewTimeWindow("q/window", 100, stockDef(), &recordingWaker{}, clock)
	require.NoError(t, err)
	w.Insert(stock(1000, "IBM", 75.6, 100))
	now = 1040
	w.Insert(stock(1040, "WSO2", 45.6, 200))

	now = 1060
	data, err := w.Snapshot()
	require.NoError(t, err)

	now = 5000
	waker := &recordingWaker{}
	restored, err := NewTimeWindow("q/window", 100, stockDef(), waker, clock)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(data))
	require.Equal(t, 2, restored.Len())
	assert.Equal(t, []int64{5040}, waker.wakes)

	out := restored.OnTimer(5040)
	require.Len(t, out, 1)
	assert.Equal(t, "IBM", out[0].Event.Data[0])
	assert.Equal(t, []int64{5040, 5080}, waker.wakes)

	out = restored.OnTimer(5080)
	require.Len(t, out, 1)
	assert.Equal(t, int32(200), out[0].Event.Data[2])
	assert.Equal(t, 0, restored.Len())
}

func TestTimeWindow_SnapshotOfOverdueEntry(t *testing.T) {
	now := int64(0)
	clock := func() int64 { return now }
	w, err := NewTimeWindow("q/window", 10, stockDef(), &recordingWaker{}, clock)
	require.NoError(t, err)
	w.Insert(stock(0, "IBM", 1, 1))
	now = 50
	data, err := w.Snapshot()
	require.NoError(t, err)

	waker := &recordingWaker{}
	restored, err := NewTimeWindow("q/window", 10, stockDef(), waker, clock)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(data))
	assert.Equal(t, []int64{50}, waker.wakes)
	assert.Len(t, restored.OnTimer(50), 1)
}
