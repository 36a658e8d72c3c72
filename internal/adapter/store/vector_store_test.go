package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"notesim/internal/domain"
	"notesim/internal/port"
)

func openBolt(t *testing.T) *BoltVectorStore {
	t.Helper()
	st, err := NewBoltVectorStore(filepath.Join(t.TempDir(), "vectors.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func openSQLite(t *testing.T) *SQLiteVectorStore {
	t.Helper()
	st, err := NewSQLiteVectorStore(filepath.Join(t.TempDir(), "vectors.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// prepare creates, indexes and loads a 3-dimensional collection.
func prepare(t *testing.T, st port.VectorStore) domain.CollectionSchema {
	t.Helper()
	ctx := context.Background()
	schema := domain.DefaultSchema("notes", 3)

	exists, err := st.CollectionExists(ctx, schema.Name)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, st.CreateCollection(ctx, schema))
	require.NoError(t, st.BuildIndex(ctx, schema))
	require.NoError(t, st.LoadCollection(ctx, schema.Name))

	exists, err = st.CollectionExists(ctx, schema.Name)
	require.NoError(t, err)
	require.True(t, exists)
	return schema
}

func record(key string, vec []float32, mtime int64) domain.VectorRecord {
	return domain.VectorRecord{
		Key:        key,
		Path:       key,
		Vector:     vec,
		Preview:    "preview of " + key,
		ModTime:    mtime,
		HasModTime: true,
	}
}

// put writes rec the way the sync engine does.
func put(t *testing.T, st port.VectorStore, collection string, rec domain.VectorRecord) {
	t.Helper()
	ctx := context.Background()
	if !st.NativeUpsert() {
		require.NoError(t, st.Delete(ctx, collection, rec.Key))
	}
	require.NoError(t, st.Upsert(ctx, collection, rec))
}

func testStoreContract(t *testing.T, st port.VectorStore) {
	ctx := context.Background()
	schema := prepare(t, st)

	put(t, st, schema.Name, record("a.md", []float32{1, 0, 0}, 100))
	put(t, st, schema.Name, record("b.md", []float32{0.9, 0.1, 0}, 200))
	put(t, st, schema.Name, record("c.md", []float32{0, 0, 1}, 300))

	t.Run("get", func(t *testing.T) {
		rec, ok, err := st.Get(ctx, schema.Name, "b.md")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b.md", rec.Key)
		assert.Equal(t, "preview of b.md", rec.Preview)
		assert.True(t, rec.HasModTime)
		assert.EqualValues(t, 200, rec.ModTime)

		_, ok, err = st.Get(ctx, schema.Name, "missing.md")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("replace keeps one record", func(t *testing.T) {
		put(t, st, schema.Name, record("b.md", []float32{0.9, 0.1, 0}, 250))

		rec, ok, err := st.Get(ctx, schema.Name, "b.md")
		require.NoError(t, err)
		require.True(t, ok)
		assert.EqualValues(t, 250, rec.ModTime)

		info, err := st.Describe(ctx, schema.Name)
		require.NoError(t, err)
		assert.Equal(t, 3, info.Dimension)
		assert.EqualValues(t, 3, info.Count)
	})

	t.Run("search orders by similarity", func(t *testing.T) {
		got, err := st.Search(ctx, schema.Name, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "a.md", got[0].Key)
		assert.Equal(t, "b.md", got[1].Key)
		assert.InDelta(t, 1.0, got[0].Similarity(), 1e-6)
		assert.Greater(t, got[0].Similarity(), got[1].Similarity())
	})

	t.Run("delete missing key is not an error", func(t *testing.T) {
		require.NoError(t, st.Delete(ctx, schema.Name, "never-stored.md"))
	})

	t.Run("delete removes record", func(t *testing.T) {
		require.NoError(t, st.Delete(ctx, schema.Name, "c.md"))
		_, ok, err := st.Get(ctx, schema.Name, "c.md")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestBoltVectorStore(t *testing.T) {
	st := openBolt(t)
	assert.True(t, st.NativeUpsert())
	testStoreContract(t, st)
}

func TestSQLiteVectorStore(t *testing.T) {
	st := openSQLite(t)
	assert.False(t, st.NativeUpsert())
	testStoreContract(t, st)
}

func TestSQLiteVectorStore_InsertRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	schema := prepare(t, st)

	require.NoError(t, st.Upsert(ctx, schema.Name, record("a.md", []float32{1, 0, 0}, 1)))
	assert.Error(t, st.Upsert(ctx, schema.Name, record("a.md", []float32{1, 0, 0}, 2)))
}

func TestSQLiteVectorStore_ReturnsDistance(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	schema := prepare(t, st)
	put(t, st, schema.Name, record("a.md", []float32{1, 0, 0}, 1))

	got, err := st.Search(ctx, schema.Name, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ScoreDistance, got[0].Kind)
	assert.InDelta(t, 0.0, got[0].Value, 1e-6)
}

func TestSQLiteVectorStore_MissingModTime(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	schema := prepare(t, st)

	rec := record("a.md", []float32{1, 0, 0}, 0)
	rec.HasModTime = false
	put(t, st, schema.Name, rec)

	got, ok, err := st.Get(ctx, schema.Name, "a.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.HasModTime)
}

func TestBoltVectorStore_SearchRequiresLoad(t *testing.T) {
	ctx := context.Background()
	st := openBolt(t)
	schema := domain.DefaultSchema("notes", 3)
	require.NoError(t, st.CreateCollection(ctx, schema))

	_, err := st.Search(ctx, schema.Name, []float32{1, 0, 0}, 1)
	assert.Error(t, err)

	info, err := st.Describe(ctx, schema.Name)
	require.NoError(t, err)
	assert.False(t, info.Loaded)
}

func TestBoltVectorStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	st := openBolt(t)
	schema := prepare(t, st)

	err := st.Upsert(ctx, schema.Name, record("a.md", []float32{1, 0}, 1))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestBoltVectorStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")

	st, err := NewBoltVectorStore(path, 0)
	require.NoError(t, err)
	schema := prepare(t, st)
	put(t, st, schema.Name, record("a.md", []float32{1, 0, 0}, 42))
	require.NoError(t, st.Close())

	st, err = NewBoltVectorStore(path, 0)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.LoadCollection(ctx, schema.Name))
	got, err := st.Search(ctx, schema.Name, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a.md", got[0].Key)
}

func TestBoltVectorStore_LockedByAnotherHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	first, err := NewBoltVectorStore(path, 0)
	require.NoError(t, err)
	defer first.Close()

	start := time.Now()
	_, err = NewBoltVectorStore(path, 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConnectivity))
	assert.ErrorIs(t, err, bbolt.ErrTimeout)
	assert.Contains(t, err.Error(), "locked")
	assert.Less(t, time.Since(start), 5*time.Second)

	require.NoError(t, first.Close())
	second, err := NewBoltVectorStore(path, 100*time.Millisecond)
	require.NoError(t, err)
	second.Close()
}

func TestMigrate_CurrentVersionIsNoop(t *testing.T) {
	st := openBolt(t)
	ctx := context.Background()
	schema := domain.DefaultSchema("notes", 3)
	require.NoError(t, st.CreateCollection(ctx, schema))

	result, err := st.CheckMigration(schema.Name)
	require.NoError(t, err)
	assert.False(t, result.NeedsRebuild)
	require.NoError(t, st.Migrate(schema.Name))

	info, err := st.GetSchemaInfo(schema.Name)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, info.Version)
}

func TestMigrate_NewerVersionIsConfigurationError(t *testing.T) {
	st := openBolt(t)
	ctx := context.Background()
	schema := domain.DefaultSchema("notes", 3)
	require.NoError(t, st.CreateCollection(ctx, schema))

	require.NoError(t, st.db.Update(func(tx *bbolt.Tx) error {
		return putSchemaInfo(tx, schema.Name, &SchemaInfo{Version: CurrentSchemaVersion + 1, Dimension: 3})
	}))

	err := st.LoadCollection(ctx, schema.Name)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestEncodeDecodeEmbedding(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	got, err := decodeEmbedding(encodeEmbedding(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}
