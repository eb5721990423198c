package avlqueue

import (
	"math/rand"
	"testing"

	"github.com/Aidin1998/pincex_clob/internal/trading/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariants verifies AVL balance, stored heights, parent links, key
// ordering, list linkage and the cached head/tail against the actual tree.
func checkInvariants[V any](t *testing.T, q *Queue[V]) {
	t.Helper()

	values := 0
	var visit func(id, parent uint16, lo, hi int64) int
	visit = func(id, parent uint16, lo, hi int64) int {
		if id == Nil {
			return -1
		}
		n := q.trees[id]
		require.True(t, n.Active, "tree node %d inactive", id)
		require.Equal(t, parent, n.Parent, "parent of %d", id)
		require.Greater(t, int64(n.Key), lo)
		require.Less(t, int64(n.Key), hi)

		hl := visit(n.Left, id, lo, int64(n.Key)) + 1
		hr := visit(n.Right, id, int64(n.Key), hi) + 1
		require.Equal(t, uint8(hl), n.HeightLeft, "left height of key %d", n.Key)
		require.Equal(t, uint8(hr), n.HeightRight, "right height of key %d", n.Key)
		require.LessOrEqual(t, hl-hr, 1)
		require.LessOrEqual(t, hr-hl, 1)

		prev := treeRef(id)
		ref := listRef(n.ListHead)
		for ref.Kind == RefList {
			ln := q.lists[ref.ID]
			require.True(t, ln.Active)
			require.Equal(t, id, ln.Tree)
			require.Equal(t, prev, ln.Last)
			values++
			if ln.Next.Kind == RefTree {
				require.Equal(t, id, ln.Next.ID)
				require.Equal(t, ref.ID, n.ListTail)
			}
			prev, ref = ref, ln.Next
		}
		return max(hl, hr)
	}
	visit(q.hdr.Root, Nil, -1, int64(HiInsertionKey)+1)
	require.Equal(t, q.Len(), values)

	keys := q.Keys()
	if len(keys) == 0 {
		assert.Equal(t, uint16(Nil), q.hdr.HeadNode)
		assert.Equal(t, uint16(Nil), q.hdr.TailNode)
		return
	}
	headID, _ := q.search(uint32(keys[0]))
	tailID, _ := q.search(uint32(keys[len(keys)-1]))
	require.Equal(t, uint32(keys[0]), q.hdr.HeadKey)
	require.Equal(t, q.trees[headID].ListHead, q.hdr.HeadNode)
	require.Equal(t, uint32(keys[len(keys)-1]), q.hdr.TailKey)
	require.Equal(t, q.trees[tailID].ListTail, q.hdr.TailNode)
	for i := 1; i < len(keys); i++ {
		if q.ascending {
			require.Less(t, keys[i-1], keys[i])
		} else {
			require.Greater(t, keys[i-1], keys[i])
		}
	}
}

func TestQueue_FIFOWithinKey(t *testing.T) {
	q := New[int](Ascending, 0, 0)
	for i := 0; i < 5; i++ {
		_, err := q.Insert(42, i)
		require.NoError(t, err)
	}
	_, err := q.Insert(43, 100)
	require.NoError(t, err)
	checkInvariants(t, q)

	for i := 0; i < 5; i++ {
		v, ok := q.PopHead()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	v, ok := q.PopHead()
	require.True(t, ok)
	assert.Equal(t, 100, v)
	assert.True(t, q.IsEmpty())

	_, ok = q.PopHead()
	assert.False(t, ok)
}

func TestQueue_SortOrder(t *testing.T) {
	asks := New[string](Ascending, 0, 0)
	bids := New[string](Descending, 0, 0)
	for _, k := range []uint64{20, 10, 30, 10} {
		_, err := asks.Insert(k, "a")
		require.NoError(t, err)
		_, err = bids.Insert(k, "b")
		require.NoError(t, err)
	}

	head, _ := asks.HeadKey()
	tail, _ := asks.TailKey()
	assert.Equal(t, uint64(10), head)
	assert.Equal(t, uint64(30), tail)
	assert.Equal(t, []uint64{10, 20, 30}, asks.Keys())

	head, _ = bids.HeadKey()
	tail, _ = bids.TailKey()
	assert.Equal(t, uint64(30), head)
	assert.Equal(t, uint64(10), tail)
	assert.Equal(t, []uint64{30, 20, 10}, bids.Keys())

	checkInvariants(t, asks)
	checkInvariants(t, bids)
}

func TestQueue_AccessKeyLayout(t *testing.T) {
	q := New[int](Ascending, 0, 0)
	ak, err := q.Insert(0xABCD, 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(0xABCD), ak&HiInsertionKey)
	assert.Equal(t, uint64(1), ak>>ShiftAccessSortOrder&1)
	assert.Equal(t, uint64(1), ak>>ShiftAccessListNodeID&HiNodeID)
	assert.Equal(t, uint64(1), ak>>ShiftAccessTreeNodeID&HiNodeID)

	d := New[int](Descending, 0, 0)
	ak, err = d.Insert(7, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ak>>ShiftAccessSortOrder&1)
}

func TestQueue_InsertionKeyTooLarge(t *testing.T) {
	q := New[int](Ascending, 0, 0)
	_, err := q.Insert(HiInsertionKey+1, 1)
	assert.ErrorIs(t, err, ErrInsertionKeyTooLarge)

	_, err = q.WouldUpdateHead(HiInsertionKey + 1)
	assert.ErrorIs(t, err, ErrInsertionKeyTooLarge)
	_, err = q.WouldUpdateTail(HiInsertionKey + 1)
	assert.ErrorIs(t, err, ErrInsertionKeyTooLarge)
	assert.True(t, q.IsEmpty())
}

func TestQueue_WouldUpdateHeadTail(t *testing.T) {
	q := New[int](Ascending, 0, 0)
	ok, err := q.WouldUpdateHead(5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = q.WouldUpdateTail(5)
	assert.True(t, ok)

	_, _ = q.Insert(10, 1)
	_, _ = q.Insert(20, 2)

	tests := []struct {
		key        uint64
		head, tail bool
	}{
		{5, true, false},
		{10, false, false},
		{15, false, false},
		{20, false, true},
		{25, false, true},
	}
	for _, tt := range tests {
		head, err := q.WouldUpdateHead(tt.key)
		require.NoError(t, err)
		tail, err := q.WouldUpdateTail(tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.head, head, "head for %d", tt.key)
		assert.Equal(t, tt.tail, tail, "tail for %d", tt.key)
	}

	d := New[int](Descending, 0, 0)
	_, _ = d.Insert(10, 1)
	_, _ = d.Insert(20, 2)
	head, _ := d.WouldUpdateHead(25)
	tail, _ := d.WouldUpdateTail(10)
	assert.True(t, head)
	assert.True(t, tail)
	head, _ = d.WouldUpdateHead(20)
	assert.False(t, head)
}

func TestQueue_InsertRemoveRoundTrip(t *testing.T) {
	q := New[int](Ascending, 0, 0)
	for _, k := range []uint64{50, 20, 80, 20, 90} {
		_, err := q.Insert(k, int(k))
		require.NoError(t, err)
	}
	before := q.hdr
	keys := q.Keys()

	for _, k := range []uint64{10, 20, 60, 95} {
		ak, err := q.Insert(k, 7)
		require.NoError(t, err)
		v, err := q.Remove(ak)
		require.NoError(t, err)
		assert.Equal(t, 7, v)

		after := q.hdr
		assert.Equal(t, before.Root, after.Root)
		assert.Equal(t, before.HeadKey, after.HeadKey)
		assert.Equal(t, before.HeadNode, after.HeadNode)
		assert.Equal(t, before.TailKey, after.TailKey)
		assert.Equal(t, before.TailNode, after.TailNode)
		assert.Equal(t, before.Active, after.Active)
		assert.Equal(t, keys, q.Keys())
		checkInvariants(t, q)
	}
}

func TestQueue_RemoveInvalidatesAccessKey(t *testing.T) {
	q := New[int](Descending, 0, 0)
	ak, err := q.Insert(5, 1)
	require.NoError(t, err)
	_, err = q.Remove(ak)
	require.NoError(t, err)

	_, err = q.Remove(ak)
	assert.ErrorIs(t, err, ErrInvalidAccessKey)
	_, err = q.Get(ak)
	assert.ErrorIs(t, err, ErrInvalidAccessKey)
	assert.ErrorIs(t, q.Update(ak, func(*int) {}), ErrInvalidAccessKey)

	// Same node ids, different key: the recycled slot must not resolve.
	_, err = q.Insert(6, 2)
	require.NoError(t, err)
	_, err = q.Get(ak)
	assert.ErrorIs(t, err, ErrInvalidAccessKey)
}

func TestQueue_UpdateInPlace(t *testing.T) {
	q := New[int](Ascending, 0, 0)
	first, _ := q.Insert(3, 1)
	_, _ = q.Insert(3, 2)

	require.NoError(t, q.Update(first, func(v *int) { *v = 10 }))
	v, err := q.Get(first)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	head, ok := q.HeadAccessKey()
	require.True(t, ok)
	assert.Equal(t, first, head)
}

func TestQueue_RandomOperationsStayBalanced(t *testing.T) {
	for _, ascending := range []bool{Ascending, Descending} {
		rng := rand.New(rand.NewSource(7))
		q := New[int](ascending, 16, 16)
		live := make(map[uint64]int)
		fifo := make(map[uint64][]int)
		next := 0

		for step := 0; step < 3000; step++ {
			if len(live) == 0 || rng.Intn(100) < 55 {
				key := uint64(rng.Intn(200) + 1)
				ak, err := q.Insert(key, next)
				require.NoError(t, err)
				live[ak] = next
				fifo[key] = append(fifo[key], next)
				next++
			} else if rng.Intn(4) == 0 {
				headKey, _ := q.HeadKey()
				ak, _ := q.HeadAccessKey()
				v, ok := q.PopHead()
				require.True(t, ok)
				require.Equal(t, fifo[headKey][0], v, "FIFO violated at key %d", headKey)
				fifo[headKey] = fifo[headKey][1:]
				delete(live, ak)
			} else {
				var ak uint64
				n := rng.Intn(len(live))
				for k := range live {
					if n == 0 {
						ak = k
						break
					}
					n--
				}
				v, err := q.Remove(ak)
				require.NoError(t, err)
				require.Equal(t, live[ak], v)
				delete(live, ak)
				key := ak & HiInsertionKey
				for i, x := range fifo[key] {
					if x == v {
						fifo[key] = append(fifo[key][:i], fifo[key][i+1:]...)
						break
					}
				}
			}
			if step%50 == 0 {
				checkInvariants(t, q)
			}
		}
		checkInvariants(t, q)
		assert.Equal(t, len(live), q.Len())

		// The height of an AVL tree with n keys is below 1.45*log2(n+2).
		if h, ok := q.Height(); ok {
			assert.Less(t, int(h), 12)
		}
	}
}

func TestQueue_WalkHeadToTail(t *testing.T) {
	q := New[string](Descending, 0, 0)
	_, _ = q.Insert(10, "c")
	_, _ = q.Insert(30, "a")
	_, _ = q.Insert(20, "b1")
	_, _ = q.Insert(20, "b2")

	var got []string
	q.Walk(func(_ uint64, v string) bool {
		got = append(got, v)
		return true
	})
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, got)

	got = got[:0]
	q.Walk(func(_ uint64, v string) bool {
		got = append(got, v)
		return len(got) < 2
	})
	assert.Equal(t, []string{"a", "b1"}, got)
}

func TestQueue_PopTailRemovesNewestWorst(t *testing.T) {
	q := New[int](Ascending, 0, 0)
	_, _ = q.Insert(10, 1)
	_, _ = q.Insert(30, 2)
	_, _ = q.Insert(30, 3)

	v, ok := q.PopTail()
	require.True(t, ok)
	assert.Equal(t, 3, v)
	tail, _ := q.TailKey()
	assert.Equal(t, uint64(30), tail)
	checkInvariants(t, q)
}

func TestQueue_InsertCheckEvictionCriticalHeight(t *testing.T) {
	q := New[int](Ascending, 0, 0)
	_, _ = q.Insert(10, 10)
	_, _ = q.Insert(20, 20)
	tailAK, _ := q.Insert(30, 30)
	h, _ := q.Height()
	require.Equal(t, uint8(1), h)

	_, err := q.InsertCheckEviction(40, 40, MaxHeight+1)
	assert.ErrorIs(t, err, ErrInvalidHeight)

	// No better than the tail: refused, nothing changes.
	res, err := q.InsertCheckEviction(30, 99, 0)
	require.NoError(t, err)
	assert.False(t, res.Inserted())
	assert.False(t, res.Evicted())
	assert.Equal(t, 99, res.Value)
	assert.Equal(t, []uint64{10, 20, 30}, q.Keys())

	// Strictly better: the tail entry is evicted first.
	res, err = q.InsertCheckEviction(5, 5, 0)
	require.NoError(t, err)
	assert.True(t, res.Inserted())
	assert.True(t, res.Evicted())
	assert.Equal(t, tailAK, res.EvictedAccessKey)
	assert.Equal(t, 30, res.Value)
	assert.Equal(t, []uint64{5, 10, 20}, q.Keys())
	checkInvariants(t, q)

	// Below the critical height a plain insert happens.
	res, err = q.InsertCheckEviction(50, 50, MaxHeight)
	require.NoError(t, err)
	assert.True(t, res.Inserted())
	assert.False(t, res.Evicted())
}

func TestQueue_InsertCheckEvictionPoolFull(t *testing.T) {
	q := New[int](Ascending, 0, 0)
	var lastAK uint64
	for i := 0; i < NNodesMax; i++ {
		ak, err := q.Insert(100, i)
		require.NoError(t, err)
		lastAK = ak
	}
	_, err := q.Insert(100, -1)
	assert.ErrorIs(t, err, ErrTooManyListNodes)

	res, err := q.InsertCheckEviction(100, -1, MaxHeight)
	require.NoError(t, err)
	assert.False(t, res.Inserted())
	assert.Equal(t, NNodesMax, q.Len())

	res, err = q.InsertCheckEviction(99, -2, MaxHeight)
	require.NoError(t, err)
	assert.True(t, res.Inserted())
	assert.Equal(t, lastAK, res.EvictedAccessKey)
	assert.Equal(t, NNodesMax-1, res.Value)
	assert.Equal(t, NNodesMax, q.Len())

	head, _ := q.HeadKey()
	assert.Equal(t, uint64(99), head)
}

func TestQueue_InsertEvictTail(t *testing.T) {
	q := New[int](Descending, 0, 0)
	_, _, _, err := q.InsertEvictTail(10, 1)
	assert.ErrorIs(t, err, ErrEvictEmpty)

	_, _ = q.Insert(10, 1)
	_, _ = q.Insert(20, 2)
	_, _, _, err = q.InsertEvictTail(10, 3)
	assert.ErrorIs(t, err, ErrEvictNewTail)

	ak, evictedAK, evicted, err := q.InsertEvictTail(15, 3)
	require.NoError(t, err)
	assert.NotEqual(t, uint64(Nil), ak)
	assert.Equal(t, uint64(10), evictedAK&HiInsertionKey)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, []uint64{20, 15}, q.Keys())
}

func TestQueue_JournalRollbackRestoresState(t *testing.T) {
	j := journal.New()
	q := New[int](Ascending, 2, 2)
	q.SetJournal(j)

	var aks []uint64
	for _, k := range []uint64{40, 20, 60, 10, 30, 50, 70, 20} {
		ak, err := q.Insert(k, int(k))
		require.NoError(t, err)
		aks = append(aks, ak)
	}
	j.Commit()
	before := q.State()

	for _, k := range []uint64{5, 80, 35, 36, 37} {
		_, err := q.Insert(k, 0)
		require.NoError(t, err)
	}
	_, err := q.Remove(aks[0])
	require.NoError(t, err)
	_, err = q.Remove(aks[1])
	require.NoError(t, err)
	_, ok := q.PopHead()
	require.True(t, ok)
	require.NoError(t, q.Update(aks[3], func(v *int) { *v = -1 }))
	_, err = q.InsertCheckEviction(1, 1, 0)
	require.NoError(t, err)

	j.Rollback()
	assert.Equal(t, before, q.State())
	checkInvariants(t, q)

	// The queue keeps working after a rollback.
	_, err = q.Insert(45, 45)
	require.NoError(t, err)
	j.Commit()
	checkInvariants(t, q)
}

func TestQueue_StateRoundTrip(t *testing.T) {
	q := New[int](Descending, 0, 0)
	aks := make([]uint64, 0)
	for _, k := range []uint64{9, 3, 7, 3, 1} {
		ak, _ := q.Insert(k, int(k))
		aks = append(aks, ak)
	}
	_, _ = q.Remove(aks[2])

	restored, err := FromState(q.State())
	require.NoError(t, err)
	assert.Equal(t, q.Keys(), restored.Keys())
	v, err := restored.Get(aks[1])
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	checkInvariants(t, restored)

	_, err = FromState(State[int]{})
	assert.Error(t, err)
}

func BenchmarkQueue_InsertPopHead(b *testing.B) {
	q := New[int](Ascending, 1024, 1024)
	rng := rand.New(rand.NewSource(1))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := q.Insert(uint64(rng.Intn(1000)+1), i); err != nil {
			b.Fatal(err)
		}
		if q.Len() > 1000 {
			q.PopHead()
		}
	}
}
