package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushPop(t *testing.T) {
	q := New[int](2)
	assert.True(t, q.IsEmpty())

	for i := 1; i <= 5; i++ {
		q.Push(i)
	}
	assert.Equal(t, 5, q.Len())

	front, ok := q.Front()
	require.True(t, ok)
	assert.Equal(t, 1, front)
	back, ok := q.Back()
	require.True(t, ok)
	assert.Equal(t, 5, back)

	for i := 1; i <= 5; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok = q.Pop()
	assert.False(t, ok)
}

// 队首绕回后扩容仍保持顺序
func TestQueue_GrowAfterWrap(t *testing.T) {
	q := New[string](3)
	q.Push("a")
	q.Push("b")
	q.Push("c")
	_, _ = q.Pop()
	_, _ = q.Pop()
	q.Push("d")
	q.Push("e")
	q.Push("f") // grows here with head in the middle

	assert.Equal(t, []string{"c", "d", "e", "f"}, q.PopAll())
	assert.True(t, q.IsEmpty())
	assert.Nil(t, q.PopAll())
}

func TestQueue_At(t *testing.T) {
	q := New[int](0)
	q.Push(10)
	q.Push(20)
	assert.Equal(t, 10, q.At(0))
	assert.Equal(t, 20, q.At(1))
	assert.Panics(t, func() { q.At(2) })

	q.Reset()
	assert.Equal(t, 0, q.Len())
	_, ok := q.Back()
	assert.False(t, ok)
}
