package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rulego/streamcep/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStoreContract runs the behaviour every Store must share.
func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.LastRevision(ctx, "rt")
	assert.ErrorIs(t, err, types.ErrRevisionNotFound)
	_, err = s.Load(ctx, "rt", "missing")
	assert.ErrorIs(t, err, types.ErrRevisionNotFound)

	rev1, err := NewRevision()
	require.NoError(t, err)
	rev2, err := NewRevision()
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "rt", rev1, map[string][]byte{"q/window": {1, 2}, "q/aggregator": {3}}))
	require.NoError(t, s.Save(ctx, "rt", rev2, map[string][]byte{"q/window": {9}}))
	require.NoError(t, s.Save(ctx, "other", rev1, map[string][]byte{}))

	last, err := s.LastRevision(ctx, "rt")
	require.NoError(t, err)
	assert.Equal(t, rev2, last)

	blobs, err := s.Load(ctx, "rt", rev1)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"q/window": {1, 2}, "q/aggregator": {3}}, blobs)

	blobs, err = s.Load(ctx, "other", rev1)
	require.NoError(t, err)
	assert.Empty(t, blobs)

	if l, ok := s.(Lister); ok {
		revs, err := l.Revisions(ctx, "rt")
		require.NoError(t, err)
		assert.Equal(t, []string{rev1, rev2}, revs)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

// 保存后修改原始数据不影响已存储的版本
func TestMemoryStore_CopiesBlobs(t *testing.T) {
	s := NewMemoryStore()
	data := map[string][]byte{"q/window": {1}}
	require.NoError(t, s.Save(context.Background(), "rt", "r1", data))
	data["q/window"][0] = 7

	blobs, err := s.Load(context.Background(), "rt", "r1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, blobs["q/window"])
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revisions.db")
	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	testStoreContract(t, s)
	require.NoError(t, s.Close())

	// survives reopening
	s, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.LastRevision(context.Background(), "rt")
	assert.NoError(t, err)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revisions.sqlite")
	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	testStoreContract(t, s)
	require.NoError(t, s.Close())

	s, err = OpenSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	revs, err := s.Revisions(context.Background(), "rt")
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	cfg := types.DefaultConfig().Store.Redis
	cfg.Address = addr
	rev, err := NewRevision()
	require.NoError(t, err)
	cfg.Prefix = "streamcep-test:" + rev + ":"

	s, err := NewRedisStore(cfg)
	require.NoError(t, err)
	defer s.Close()
	testStoreContract(t, s)
}

func TestOpenStore(t *testing.T) {
	cfg := types.DefaultConfig()
	s, err := OpenStore(cfg)
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg.Store.Type = types.StoreMemory
	s, err = OpenStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	cfg.Store.Type = types.StoreBolt
	cfg.Store.Path = filepath.Join(t.TempDir(), "b.db")
	s, err = OpenStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s.(*BoltStore).Close())

	cfg.Store.Type = "etcd"
	_, err = OpenStore(cfg)
	assert.Error(t, err)
}

func TestNewRevision_Ordered(t *testing.T) {
	prev, err := NewRevision()
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		next, err := NewRevision()
		require.NoError(t, err)
		assert.Less(t, prev, next)
		prev = next
	}
}
