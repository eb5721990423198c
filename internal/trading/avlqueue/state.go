package avlqueue

import "fmt"

// State is a serializable copy of a queue. Node ids and free stacks are kept
// verbatim so access keys issued before a snapshot stay valid after restore.
type State[V any] struct {
	Ascending bool          `json:"ascending"`
	Header    Header        `json:"header"`
	Trees     []TreeNode    `json:"trees"`
	Lists     []ListNode[V] `json:"lists"`
}

// State returns a deep copy of the queue's internals.
func (q *Queue[V]) State() State[V] {
	return State[V]{
		Ascending: q.ascending,
		Header:    q.hdr,
		Trees:     append([]TreeNode(nil), q.trees...),
		Lists:     append([]ListNode[V](nil), q.lists...),
	}
}

// FromState rebuilds a queue from a State.
func FromState[V any](s State[V]) (*Queue[V], error) {
	if len(s.Trees) == 0 || len(s.Lists) == 0 {
		return nil, fmt.Errorf("avlqueue state missing sentinel nodes")
	}
	if len(s.Trees)-1 > NNodesMax || len(s.Lists)-1 > NNodesMax {
		return nil, fmt.Errorf("avlqueue state exceeds %d nodes", NNodesMax)
	}
	h := s.Header
	if int(h.Root) >= len(s.Trees) || int(h.HeadNode) >= len(s.Lists) || int(h.TailNode) >= len(s.Lists) ||
		int(h.TreeTop) >= len(s.Trees) || int(h.ListTop) >= len(s.Lists) {
		return nil, fmt.Errorf("avlqueue state header references missing node")
	}
	return &Queue[V]{
		ascending: s.Ascending,
		hdr:       h,
		trees:     append([]TreeNode(nil), s.Trees...),
		lists:     append([]ListNode[V](nil), s.Lists...),
	}, nil
}
