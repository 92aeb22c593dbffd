package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testEntries() []Entry {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []Entry{
		{RunID: "r1", Fingerprint: "fa", Query: "select * from t where a = 1", Timestamp: base, BeforeTime: 20 * time.Millisecond},
		{RunID: "r2", Fingerprint: "fb", Query: "select * from t where b = 1", Timestamp: base.Add(time.Second), Applied: true, Kept: true,
			BeforeTime: 40 * time.Millisecond, AfterTime: 10 * time.Millisecond, Improvement: 0.75, CreatedIndexes: []string{"idx_t_b"}},
		{RunID: "r3", Fingerprint: "fa", Query: "select * from t where a = 2", Timestamp: base.Add(2 * time.Second), Applied: true,
			BeforeTime: 20 * time.Millisecond, AfterTime: 19 * time.Millisecond, Improvement: 0.05,
			CreatedIndexes: []string{"idx_t_a"}, DroppedIndexes: []string{"idx_t_a"}},
	}
}

func testStore(t *testing.T, s Store) {
	defer func() { require.NoError(t, s.Close()) }()
	for _, e := range testEntries() {
		require.NoError(t, s.Record(e))
	}

	fa, err := s.Lookup("fa")
	require.NoError(t, err)
	require.Len(t, fa, 2)
	require.Equal(t, "r1", fa[0].RunID)
	require.Equal(t, "r3", fa[1].RunID)
	require.Equal(t, []string{"idx_t_a"}, fa[1].DroppedIndexes)
	require.InDelta(t, 0.05, fa[1].Improvement, 1e-9)
	require.Equal(t, 19*time.Millisecond, fa[1].AfterTime)

	none, err := s.Lookup("missing")
	require.NoError(t, err)
	require.Empty(t, none)

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.Equal(t, id, all[i].RunID)
	}
	require.True(t, all[1].Kept)
	require.True(t, all[0].Timestamp.Equal(testEntries()[0].Timestamp))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestBadgerStoreInMemory(t *testing.T) {
	s, err := OpenBadgerStore("")
	require.NoError(t, err)
	testStore(t, s)
}

func TestBadgerStorePersists(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Record(testEntries()[0]))
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	defer s.Close()
	es, err := s.Lookup("fa")
	require.NoError(t, err)
	require.Len(t, es, 1)
	require.Equal(t, "select * from t where a = 1", es[0].Query)
}
