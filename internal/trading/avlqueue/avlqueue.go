// =============================
// AVL Queue
// =============================
// This file implements the price-time priority container used by the order books.
//
// Sections in this file:
// 1. Constants, abort codes and access keys.
// 2. Node types: tree nodes (one per insertion key) and list nodes (one per value).
// 3. Queue: insertion, removal, eviction and head/tail bookkeeping.
// 4. Tree maintenance: search, traversal, deletion, retracing and rotations.
//
// How it works:
// - Every distinct insertion key owns one tree node in an AVL tree.
// - Each tree node anchors a doubly linked FIFO list of the values that share its key.
// - Retired nodes go on free stacks and are reused, so node ids stay within 14 bits.
// - The globally best (head) and worst (tail) entries are cached for O(1) access.

package avlqueue

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/journal"
	"github.com/Aidin1998/pincex_clob/pkg/errors"
)

// ModuleName tags abort codes raised by this package.
const ModuleName = "avlqueue"

const (
	// Ascending queues treat the smallest key as the head.
	Ascending = true
	// Descending queues treat the largest key as the head.
	Descending = false

	// Nil marks an absent node id or access key.
	Nil = 0
	// HiInsertionKey is the largest accepted insertion key.
	HiInsertionKey uint64 = 0xFFFFFFFF
	// HiNodeID masks a 14-bit node id.
	HiNodeID uint64 = 0x3FFF
	// NNodesMax is the number of tree nodes, and separately list nodes, a queue may allocate.
	NNodesMax = 16383
	// MaxHeight is the largest critical height accepted by InsertCheckEviction.
	MaxHeight uint8 = 18

	ShiftAccessSortOrder  = 32
	ShiftAccessListNodeID = 33
	ShiftAccessTreeNodeID = 47
)

var (
	ErrTooManyTreeNodes     = errors.NewAbort(ModuleName, 0, "E_TOO_MANY_TREE_NODES", errors.ClassCapacity)
	ErrTooManyListNodes     = errors.NewAbort(ModuleName, 1, "E_TOO_MANY_LIST_NODES", errors.ClassCapacity)
	ErrInsertionKeyTooLarge = errors.NewAbort(ModuleName, 2, "E_INSERTION_KEY_TOO_LARGE", errors.ClassValidation)
	ErrEvictEmpty           = errors.NewAbort(ModuleName, 3, "E_EVICT_EMPTY", errors.ClassInvariant)
	ErrEvictNewTail         = errors.NewAbort(ModuleName, 4, "E_EVICT_NEW_TAIL", errors.ClassInvariant)
	ErrInvalidHeight        = errors.NewAbort(ModuleName, 5, "E_INVALID_HEIGHT", errors.ClassValidation)
	ErrInvalidAccessKey     = errors.NewAbort(ModuleName, 6, "E_INVALID_ACCESS_KEY", errors.ClassNotFound)
)

// RefKind tags what a list node's last/next reference points at.
type RefKind uint8

const (
	RefNone RefKind = iota
	RefTree
	RefList
)

// NodeRef is a tagged reference to a tree node or a list node.
type NodeRef struct {
	Kind RefKind `json:"kind"`
	ID   uint16  `json:"id"`
}

func treeRef(id uint16) NodeRef { return NodeRef{Kind: RefTree, ID: id} }
func listRef(id uint16) NodeRef { return NodeRef{Kind: RefList, ID: id} }

// TreeNode is one insertion key in the AVL tree.
type TreeNode struct {
	Key         uint32 `json:"key"`
	HeightLeft  uint8  `json:"hl"`
	HeightRight uint8  `json:"hr"`
	Parent      uint16 `json:"parent"`
	Left        uint16 `json:"left"`
	Right       uint16 `json:"right"`
	ListHead    uint16 `json:"list_head"`
	ListTail    uint16 `json:"list_tail"`
	NextFree    uint16 `json:"next_free"`
	Active      bool   `json:"active"`
}

func (n *TreeNode) height() uint8 {
	return max(n.HeightLeft, n.HeightRight)
}

// ListNode holds one value in a key's FIFO list.
type ListNode[V any] struct {
	Last     NodeRef `json:"last"`
	Next     NodeRef `json:"next"`
	Tree     uint16  `json:"tree"`
	NextFree uint16  `json:"next_free"`
	Active   bool    `json:"active"`
	Value    V       `json:"value"`
}

// Header is the queue-level bookkeeping: root, cached head/tail and free stacks.
type Header struct {
	Root     uint16 `json:"root"`
	HeadKey  uint32 `json:"head_key"`
	HeadNode uint16 `json:"head_node"`
	TailKey  uint32 `json:"tail_key"`
	TailNode uint16 `json:"tail_node"`
	TreeTop  uint16 `json:"tree_top"`
	ListTop  uint16 `json:"list_top"`
	Active   int    `json:"active"`
}

// EvictionResult describes the outcome of InsertCheckEviction.
type EvictionResult[V any] struct {
	// AccessKey is Nil when the insert was refused.
	AccessKey uint64
	// EvictedAccessKey is Nil when nothing was evicted.
	EvictedAccessKey uint64
	// Value is the evicted value, or the refused value when AccessKey is Nil.
	Value V
}

// Inserted reports whether the value was admitted.
func (r EvictionResult[V]) Inserted() bool { return r.AccessKey != Nil }

// Evicted reports whether a tail entry was removed to make room.
func (r EvictionResult[V]) Evicted() bool { return r.EvictedAccessKey != Nil }

// Queue is an AVL tree of FIFO lists keyed by a 32-bit insertion key.
// Node id 0 is reserved in both arenas.
type Queue[V any] struct {
	ascending bool
	hdr       Header
	trees     []TreeNode
	lists     []ListNode[V]

	journal   *journal.Journal
	marked    bool
	markEpoch uint64
	markTrees int
	markLists int
}

// New creates a queue with the given sort order and preallocated free nodes.
// Preallocation counts above NNodesMax are clamped.
func New[V any](ascending bool, nInactiveTreeNodes, nInactiveListNodes int) *Queue[V] {
	nInactiveTreeNodes = min(max(nInactiveTreeNodes, 0), NNodesMax)
	nInactiveListNodes = min(max(nInactiveListNodes, 0), NNodesMax)

	q := &Queue[V]{
		ascending: ascending,
		trees:     make([]TreeNode, 1, nInactiveTreeNodes+1),
		lists:     make([]ListNode[V], 1, nInactiveListNodes+1),
	}
	for i := 0; i < nInactiveTreeNodes; i++ {
		q.trees = append(q.trees, TreeNode{NextFree: q.hdr.TreeTop})
		q.hdr.TreeTop = uint16(len(q.trees) - 1)
	}
	for i := 0; i < nInactiveListNodes; i++ {
		q.lists = append(q.lists, ListNode[V]{NextFree: q.hdr.ListTop})
		q.hdr.ListTop = uint16(len(q.lists) - 1)
	}
	return q
}

// SetJournal makes every subsequent mutation undoable through j.
func (q *Queue[V]) SetJournal(j *journal.Journal) {
	q.journal = j
	q.marked = false
}

// IsAscending reports the sort order.
func (q *Queue[V]) IsAscending() bool { return q.ascending }

// IsEmpty reports whether the queue holds no values.
func (q *Queue[V]) IsEmpty() bool { return q.hdr.Root == Nil }

// Len returns the number of values in the queue.
func (q *Queue[V]) Len() int { return q.hdr.Active }

// Height returns the height of the tree, or false when empty. A lone root has height 0.
func (q *Queue[V]) Height() (uint8, bool) {
	if q.hdr.Root == Nil {
		return 0, false
	}
	return q.trees[q.hdr.Root].height(), true
}

// HeadKey returns the best key.
func (q *Queue[V]) HeadKey() (uint64, bool) {
	if q.hdr.HeadNode == Nil {
		return 0, false
	}
	return uint64(q.hdr.HeadKey), true
}

// TailKey returns the worst key.
func (q *Queue[V]) TailKey() (uint64, bool) {
	if q.hdr.TailNode == Nil {
		return 0, false
	}
	return uint64(q.hdr.TailKey), true
}

// HeadAccessKey returns the access key of the oldest value at the best key.
func (q *Queue[V]) HeadAccessKey() (uint64, bool) {
	if q.hdr.HeadNode == Nil {
		return Nil, false
	}
	return q.accessKey(q.hdr.HeadKey, q.hdr.HeadNode, q.lists[q.hdr.HeadNode].Tree), true
}

// TailAccessKey returns the access key of the newest value at the worst key.
func (q *Queue[V]) TailAccessKey() (uint64, bool) {
	if q.hdr.TailNode == Nil {
		return Nil, false
	}
	return q.accessKey(q.hdr.TailKey, q.hdr.TailNode, q.lists[q.hdr.TailNode].Tree), true
}

// HasKey reports whether any value is queued under key.
func (q *Queue[V]) HasKey(key uint64) bool {
	if key > HiInsertionKey {
		return false
	}
	id, side := q.search(uint32(key))
	return id != Nil && side == sideNone
}

// WouldUpdateHead reports whether inserting key would make it the new head.
func (q *Queue[V]) WouldUpdateHead(key uint64) (bool, error) {
	if key > HiInsertionKey {
		return false, ErrInsertionKeyTooLarge
	}
	if q.hdr.HeadNode == Nil {
		return true, nil
	}
	if q.ascending {
		return uint32(key) < q.hdr.HeadKey, nil
	}
	return uint32(key) > q.hdr.HeadKey, nil
}

// WouldUpdateTail reports whether inserting key would make it the new tail.
func (q *Queue[V]) WouldUpdateTail(key uint64) (bool, error) {
	if key > HiInsertionKey {
		return false, ErrInsertionKeyTooLarge
	}
	if q.hdr.TailNode == Nil {
		return true, nil
	}
	if q.ascending {
		return uint32(key) >= q.hdr.TailKey, nil
	}
	return uint32(key) <= q.hdr.TailKey, nil
}

// Insert appends value to key's list, creating a tree node for a new key,
// and returns the access key for the entry.
func (q *Queue[V]) Insert(key uint64, value V) (uint64, error) {
	if key > HiInsertionKey {
		return Nil, ErrInsertionKeyTooLarge
	}
	q.begin()
	return q.insert(uint32(key), value)
}

// InsertCheckEviction inserts value unless the tree is taller than
// criticalHeight or the list pool is exhausted. Under that pressure a key no
// better than the tail is refused, otherwise the tail entry is evicted first.
func (q *Queue[V]) InsertCheckEviction(key uint64, value V, criticalHeight uint8) (EvictionResult[V], error) {
	if criticalHeight > MaxHeight {
		return EvictionResult[V]{}, ErrInvalidHeight
	}
	if key > HiInsertionKey {
		return EvictionResult[V]{}, ErrInsertionKeyTooLarge
	}
	q.begin()

	if q.IsEmpty() {
		ak, err := q.insert(uint32(key), value)
		return EvictionResult[V]{AccessKey: ak}, err
	}

	tooTall := q.trees[q.hdr.Root].height() > criticalHeight
	poolFull := len(q.lists)-1 >= NNodesMax && q.hdr.ListTop == Nil
	if !tooTall && !poolFull {
		ak, err := q.insert(uint32(key), value)
		return EvictionResult[V]{AccessKey: ak}, err
	}

	k := uint32(key)
	if (q.ascending && k >= q.hdr.TailKey) || (!q.ascending && k <= q.hdr.TailKey) {
		return EvictionResult[V]{Value: value}, nil
	}

	tailList := q.hdr.TailNode
	tailTree := q.lists[tailList].Tree
	evictedKey := q.accessKey(q.hdr.TailKey, tailList, tailTree)
	evicted := q.remove(tailList, tailTree)

	ak, err := q.insert(k, value)
	if err != nil {
		return EvictionResult[V]{}, err
	}
	return EvictionResult[V]{AccessKey: ak, EvictedAccessKey: evictedKey, Value: evicted}, nil
}

// InsertEvictTail inserts a key strictly better than the current tail and
// then evicts the tail entry.
func (q *Queue[V]) InsertEvictTail(key uint64, value V) (accessKey, evictedAccessKey uint64, evicted V, err error) {
	if key > HiInsertionKey {
		return Nil, Nil, evicted, ErrInsertionKeyTooLarge
	}
	if q.IsEmpty() {
		return Nil, Nil, evicted, ErrEvictEmpty
	}
	k := uint32(key)
	if (q.ascending && k >= q.hdr.TailKey) || (!q.ascending && k <= q.hdr.TailKey) {
		return Nil, Nil, evicted, ErrEvictNewTail
	}
	q.begin()
	if accessKey, err = q.insert(k, value); err != nil {
		return Nil, Nil, evicted, err
	}
	tailList := q.hdr.TailNode
	tailTree := q.lists[tailList].Tree
	evictedAccessKey = q.accessKey(q.hdr.TailKey, tailList, tailTree)
	evicted = q.remove(tailList, tailTree)
	return accessKey, evictedAccessKey, evicted, nil
}

// Remove unlinks the entry for accessKey and returns its value.
func (q *Queue[V]) Remove(accessKey uint64) (V, error) {
	listID, treeID, err := q.resolve(accessKey)
	if err != nil {
		var zero V
		return zero, err
	}
	q.begin()
	return q.remove(listID, treeID), nil
}

// PopHead removes the oldest value at the best key.
func (q *Queue[V]) PopHead() (V, bool) {
	if q.hdr.HeadNode == Nil {
		var zero V
		return zero, false
	}
	q.begin()
	listID := q.hdr.HeadNode
	return q.remove(listID, q.lists[listID].Tree), true
}

// PopTail removes the newest value at the worst key.
func (q *Queue[V]) PopTail() (V, bool) {
	if q.hdr.TailNode == Nil {
		var zero V
		return zero, false
	}
	q.begin()
	listID := q.hdr.TailNode
	return q.remove(listID, q.lists[listID].Tree), true
}

// Get returns the value stored under accessKey.
func (q *Queue[V]) Get(accessKey uint64) (V, error) {
	listID, _, err := q.resolve(accessKey)
	if err != nil {
		var zero V
		return zero, err
	}
	return q.lists[listID].Value, nil
}

// Update mutates the value stored under accessKey in place. Its position in
// the queue does not change.
func (q *Queue[V]) Update(accessKey uint64, fn func(*V)) error {
	listID, _, err := q.resolve(accessKey)
	if err != nil {
		return err
	}
	q.begin()
	q.touchList(listID)
	fn(&q.lists[listID].Value)
	return nil
}

// Walk visits every entry from head to tail, oldest first within a key,
// until fn returns false.
func (q *Queue[V]) Walk(fn func(accessKey uint64, value V) bool) {
	if q.hdr.HeadNode == Nil {
		return
	}
	treeID := q.lists[q.hdr.HeadNode].Tree
	for treeID != Nil {
		tn := q.trees[treeID]
		for ref := listRef(tn.ListHead); ref.Kind == RefList; ref = q.lists[ref.ID].Next {
			if !fn(q.accessKey(tn.Key, ref.ID, treeID), q.lists[ref.ID].Value) {
				return
			}
		}
		treeID = q.traverse(treeID, q.ascending)
	}
}

// Keys returns the distinct keys from head to tail.
func (q *Queue[V]) Keys() []uint64 {
	keys := make([]uint64, 0)
	if q.hdr.HeadNode == Nil {
		return keys
	}
	for id := q.lists[q.hdr.HeadNode].Tree; id != Nil; id = q.traverse(id, q.ascending) {
		keys = append(keys, uint64(q.trees[id].Key))
	}
	return keys
}

func (q *Queue[V]) accessKey(key uint32, listID, treeID uint16) uint64 {
	ak := uint64(key) | uint64(listID)<<ShiftAccessListNodeID | uint64(treeID)<<ShiftAccessTreeNodeID
	if q.ascending {
		ak |= 1 << ShiftAccessSortOrder
	}
	return ak
}

// resolve decodes and validates an access key against live nodes.
func (q *Queue[V]) resolve(accessKey uint64) (listID, treeID uint16, err error) {
	key := uint32(accessKey & HiInsertionKey)
	listID = uint16(accessKey >> ShiftAccessListNodeID & HiNodeID)
	treeID = uint16(accessKey >> ShiftAccessTreeNodeID & HiNodeID)
	ascending := accessKey>>ShiftAccessSortOrder&1 == 1

	if ascending != q.ascending ||
		listID == Nil || int(listID) >= len(q.lists) ||
		treeID == Nil || int(treeID) >= len(q.trees) {
		return Nil, Nil, ErrInvalidAccessKey
	}
	ln := &q.lists[listID]
	tn := &q.trees[treeID]
	if !ln.Active || !tn.Active || ln.Tree != treeID || tn.Key != key {
		return Nil, Nil, ErrInvalidAccessKey
	}
	return listID, treeID, nil
}

func (q *Queue[V]) insert(key uint32, value V) (uint64, error) {
	match, side := q.search(key)
	existing := match != Nil && side == sideNone

	if !q.canAllocList() {
		return Nil, ErrTooManyListNodes
	}
	if !existing && !q.canAllocTree() {
		return Nil, ErrTooManyTreeNodes
	}

	var treeID, listID uint16
	if existing {
		treeID = match
		tail := q.trees[treeID].ListTail
		listID = q.allocList(value, listRef(tail), treeRef(treeID), treeID)
		q.touchList(tail)
		q.lists[tail].Next = listRef(listID)
		q.touchTree(treeID)
		q.trees[treeID].ListTail = listID
	} else {
		treeID = q.allocTree(key, match)
		listID = q.allocList(value, treeRef(treeID), treeRef(treeID), treeID)
		q.trees[treeID].ListHead = listID
		q.trees[treeID].ListTail = listID
		if match == Nil {
			q.hdr.Root = treeID
		} else {
			q.touchTree(match)
			if side == sideLeft {
				q.trees[match].Left = treeID
			} else {
				q.trees[match].Right = treeID
			}
			q.retrace(match, true, side == sideLeft)
		}
	}
	q.hdr.Active++

	if q.hdr.HeadNode == Nil || (q.ascending && key < q.hdr.HeadKey) || (!q.ascending && key > q.hdr.HeadKey) {
		q.hdr.HeadKey = key
		q.hdr.HeadNode = listID
	}
	if q.hdr.TailNode == Nil || (q.ascending && key >= q.hdr.TailKey) || (!q.ascending && key <= q.hdr.TailKey) {
		q.hdr.TailKey = key
		q.hdr.TailNode = listID
	}
	return q.accessKey(key, listID, treeID), nil
}

func (q *Queue[V]) remove(listID, treeID uint16) V {
	ln := q.lists[listID]
	last, next := ln.Last, ln.Next
	empty := last.Kind == RefTree && next.Kind == RefTree

	if last.Kind == RefTree {
		if !empty {
			q.touchTree(treeID)
			q.trees[treeID].ListHead = next.ID
		}
	} else {
		q.touchList(last.ID)
		q.lists[last.ID].Next = next
	}
	if next.Kind == RefTree {
		if !empty {
			q.touchTree(treeID)
			q.trees[treeID].ListTail = last.ID
		}
	} else {
		q.touchList(next.ID)
		q.lists[next.ID].Last = last
	}

	if q.hdr.HeadNode == listID {
		if !empty {
			q.hdr.HeadNode = q.trees[treeID].ListHead
		} else if id := q.traverse(treeID, q.ascending); id != Nil {
			q.hdr.HeadKey = q.trees[id].Key
			q.hdr.HeadNode = q.trees[id].ListHead
		} else {
			q.hdr.HeadKey, q.hdr.HeadNode = 0, Nil
		}
	}
	if q.hdr.TailNode == listID {
		if !empty {
			q.hdr.TailNode = q.trees[treeID].ListTail
		} else if id := q.traverse(treeID, !q.ascending); id != Nil {
			q.hdr.TailKey = q.trees[id].Key
			q.hdr.TailNode = q.trees[id].ListTail
		} else {
			q.hdr.TailKey, q.hdr.TailNode = 0, Nil
		}
	}

	if empty {
		q.removeTreeNode(treeID)
	}
	q.hdr.Active--
	return q.freeList(listID)
}

func (q *Queue[V]) canAllocTree() bool {
	return q.hdr.TreeTop != Nil || len(q.trees)-1 < NNodesMax
}

func (q *Queue[V]) canAllocList() bool {
	return q.hdr.ListTop != Nil || len(q.lists)-1 < NNodesMax
}

func (q *Queue[V]) allocTree(key uint32, parent uint16) uint16 {
	var id uint16
	if q.hdr.TreeTop != Nil {
		id = q.hdr.TreeTop
		q.touchTree(id)
		q.hdr.TreeTop = q.trees[id].NextFree
	} else {
		q.trees = append(q.trees, TreeNode{})
		id = uint16(len(q.trees) - 1)
	}
	q.trees[id] = TreeNode{Key: key, Parent: parent, Active: true}
	return id
}

func (q *Queue[V]) freeTree(id uint16) {
	q.touchTree(id)
	q.trees[id] = TreeNode{NextFree: q.hdr.TreeTop}
	q.hdr.TreeTop = id
}

func (q *Queue[V]) allocList(value V, last, next NodeRef, treeID uint16) uint16 {
	var id uint16
	if q.hdr.ListTop != Nil {
		id = q.hdr.ListTop
		q.touchList(id)
		q.hdr.ListTop = q.lists[id].NextFree
	} else {
		q.lists = append(q.lists, ListNode[V]{})
		id = uint16(len(q.lists) - 1)
	}
	q.lists[id] = ListNode[V]{Last: last, Next: next, Tree: treeID, Active: true, Value: value}
	return id
}

func (q *Queue[V]) freeList(id uint16) V {
	q.touchList(id)
	value := q.lists[id].Value
	q.lists[id] = ListNode[V]{NextFree: q.hdr.ListTop}
	q.hdr.ListTop = id
	return value
}

type nodeKey struct {
	owner any
	list  bool
	id    uint16
}

// begin snapshots the header and arena lengths once per journal epoch.
func (q *Queue[V]) begin() {
	if q.journal == nil {
		return
	}
	if q.marked && q.markEpoch == q.journal.Epoch() {
		return
	}
	q.marked = true
	q.markEpoch = q.journal.Epoch()
	q.markTrees, q.markLists = len(q.trees), len(q.lists)

	hdr, nTrees, nLists := q.hdr, q.markTrees, q.markLists
	q.journal.Record(func() {
		q.trees = q.trees[:nTrees]
		q.lists = q.lists[:nLists]
		q.hdr = hdr
	})
}

func (q *Queue[V]) touchTree(id uint16) {
	if q.journal == nil || int(id) >= q.markTrees {
		return
	}
	old := q.trees[id]
	q.journal.RecordOnce(nodeKey{owner: q, id: id}, func() { q.trees[id] = old })
}

func (q *Queue[V]) touchList(id uint16) {
	if q.journal == nil || int(id) >= q.markLists {
		return
	}
	old := q.lists[id]
	q.journal.RecordOnce(nodeKey{owner: q, list: true, id: id}, func() { q.lists[id] = old })
}
