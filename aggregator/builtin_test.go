package aggregator

import (
	"errors"
	"math"
	"testing"

	"github.com/rulego/streamcep/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCreate(t *testing.T, name string, input types.AttrType) Function {
	t.Helper()
	fn, err := Create(name, input)
	require.NoError(t, err)
	return fn
}

// TestSumAggregator 测试求和的插入与过期
func TestSumAggregator(t *testing.T) {
	t.Run("整数求和", func(t *testing.T) {
		fn := mustCreate(t, "sum", types.TypeInt)
		assert.Equal(t, types.TypeLong, fn.OutputType())
		assert.Equal(t, int64(0), fn.Result())

		require.NoError(t, fn.Insert(int32(100)))
		require.NoError(t, fn.Insert(int32(200)))
		require.NoError(t, fn.Insert(nil))
		assert.Equal(t, int64(300), fn.Result())

		require.NoError(t, fn.Expire(int32(100)))
		assert.Equal(t, int64(200), fn.Result())
	})

	t.Run("浮点求和", func(t *testing.T) {
		fn := mustCreate(t, "sum", types.TypeDouble)
		assert.Equal(t, types.TypeDouble, fn.OutputType())
		require.NoError(t, fn.Insert(1.5))
		require.NoError(t, fn.Insert(2.25))
		assert.InDelta(t, 3.75, fn.Result(), 1e-9)
	})

	t.Run("溢出不修改状态", func(t *testing.T) {
		fn := mustCreate(t, "sum", types.TypeLong)
		require.NoError(t, fn.Insert(int64(math.MaxInt64)))
		err := fn.Insert(int64(1))
		assert.True(t, errors.Is(err, ErrOverflow))
		assert.Equal(t, int64(math.MaxInt64), fn.Result())
	})

	t.Run("非数值输入", func(t *testing.T) {
		fn := mustCreate(t, "sum", types.TypeDouble)
		err := fn.Insert("abc")
		assert.True(t, errors.Is(err, ErrNotNumeric))
		assert.Equal(t, 0.0, fn.Result())
	})

	t.Run("字符串属性不能求和", func(t *testing.T) {
		_, err := Create("sum", types.TypeString)
		assert.Error(t, err)
	})
}

func TestCountAndAvg(t *testing.T) {
	count := mustCreate(t, "count", "")
	avg := mustCreate(t, "avg", types.TypeFloat)
	assert.Nil(t, avg.Result())

	for _, v := range []interface{}{float32(10), float32(20), nil} {
		require.NoError(t, count.Insert(v))
		require.NoError(t, avg.Insert(v))
	}
	assert.Equal(t, int64(3), count.Result())
	assert.InDelta(t, 15.0, avg.Result(), 1e-9)

	require.NoError(t, count.Expire(float32(10)))
	require.NoError(t, avg.Expire(float32(10)))
	assert.Equal(t, int64(2), count.Result())
	assert.InDelta(t, 20.0, avg.Result(), 1e-9)

	require.NoError(t, avg.Expire(float32(20)))
	assert.Nil(t, avg.Result())

	count.Reset()
	assert.ErrorIs(t, count.Expire(nil), ErrNotPresent)
}

// TestExtremeAggregator 过期当前极值后应返回次优值
func TestExtremeAggregator(t *testing.T) {
	minFn := mustCreate(t, "min", types.TypeInt)
	maxFn := mustCreate(t, "max", types.TypeFloat)
	assert.Nil(t, minFn.Result())

	for _, v := range []int32{5, 3, 3, 8} {
		require.NoError(t, minFn.Insert(v))
		require.NoError(t, maxFn.Insert(float32(v)))
	}
	assert.Equal(t, int32(3), minFn.Result())
	assert.Equal(t, float32(8), maxFn.Result())

	require.NoError(t, minFn.Expire(int32(3)))
	assert.Equal(t, int32(3), minFn.Result())
	require.NoError(t, minFn.Expire(int32(3)))
	assert.Equal(t, int32(5), minFn.Result())
	require.NoError(t, maxFn.Expire(float32(8)))
	assert.Equal(t, float32(5), maxFn.Result())

	assert.ErrorIs(t, minFn.Expire(int32(42)), ErrNotPresent)

	str := mustCreate(t, "max", types.TypeString)
	require.NoError(t, str.Insert("IBM"))
	require.NoError(t, str.Insert("WSO2"))
	assert.Equal(t, "WSO2", str.Result())

	_, err := Create("min", types.TypeBool)
	assert.Error(t, err)
}

func TestDistinctCount(t *testing.T) {
	fn := mustCreate(t, "distinctcount", types.TypeString)
	for _, v := range []string{"IBM", "WSO2", "IBM"} {
		require.NoError(t, fn.Insert(v))
	}
	assert.Equal(t, int64(2), fn.Result())
	require.NoError(t, fn.Expire("IBM"))
	assert.Equal(t, int64(2), fn.Result())
	require.NoError(t, fn.Expire("IBM"))
	assert.Equal(t, int64(1), fn.Result())
}

// TestMarshalState 状态序列化后恢复到新实例
func TestMarshalState(t *testing.T) {
	cases := []struct {
		name  string
		input types.AttrType
		vals  []interface{}
	}{
		{"sum", types.TypeInt, []interface{}{int32(1), int32(2)}},
		{"count", "", []interface{}{"a", nil}},
		{"avg", types.TypeDouble, []interface{}{1.0, 4.0}},
		{"min", types.TypeLong, []interface{}{int64(9), int64(4)}},
		{"max", types.TypeDouble, []interface{}{2.5, -1.0}},
		{"max", types.TypeString, []interface{}{"a", "b"}},
		{"distinctcount", types.TypeInt, []interface{}{int32(1), int32(1), int32(2)}},
	}
	for _, c := range cases {
		t.Run(c.name+"/"+string(c.input), func(t *testing.T) {
			src := mustCreate(t, c.name, c.input)
			for _, v := range c.vals {
				require.NoError(t, src.Insert(v))
			}
			data, err := src.MarshalState()
			require.NoError(t, err)

			dst := mustCreate(t, c.name, c.input)
			require.NoError(t, dst.UnmarshalState(data))
			assert.Equal(t, src.Result(), dst.Result())

			assert.Error(t, dst.UnmarshalState(nil))
			assert.Equal(t, src.Result(), dst.Result())
		})
	}
}

type lastValue struct {
	v interface{}
}

func (l *lastValue) Insert(v interface{}) error {
	l.v = v
	return nil
}

func (l *lastValue) Expire(interface{}) error { return nil }

func (l *lastValue) Result() interface{} { return l.v }

func (l *lastValue) OutputType() types.AttrType { return types.TypeString }

func (l *lastValue) Reset() { l.v = nil }

func (l *lastValue) MarshalState() ([]byte, error) { return []byte{0}, nil }

func (l *lastValue) UnmarshalState([]byte) error { return nil }

func TestRegister(t *testing.T) {
	Register("last", func(types.AttrType) (Function, error) { return &lastValue{}, nil })
	fn, err := Create("last", types.TypeString)
	require.NoError(t, err)
	require.NoError(t, fn.Insert("x"))
	assert.Equal(t, "x", fn.Result())

	_, err = Create("unknown", types.TypeInt)
	assert.Error(t, err)
}
