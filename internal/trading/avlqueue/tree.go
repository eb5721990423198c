package avlqueue

type side uint8

const (
	sideNone side = iota
	sideLeft
	sideRight
)

// search returns the node holding key, or the would-be parent of a new leaf
// for key together with the side the leaf would hang on.
func (q *Queue[V]) search(key uint32) (uint16, side) {
	id := q.hdr.Root
	if id == Nil {
		return Nil, sideNone
	}
	for {
		n := &q.trees[id]
		switch {
		case key == n.Key:
			return id, sideNone
		case key < n.Key:
			if n.Left == Nil {
				return id, sideLeft
			}
			id = n.Left
		default:
			if n.Right == Nil {
				return id, sideRight
			}
			id = n.Right
		}
	}
}

// traverse returns the in-order successor (or predecessor) of start.
func (q *Queue[V]) traverse(start uint16, successor bool) uint16 {
	n := &q.trees[start]
	if successor {
		if n.Right != Nil {
			id := n.Right
			for q.trees[id].Left != Nil {
				id = q.trees[id].Left
			}
			return id
		}
		child, parent := start, n.Parent
		for parent != Nil && q.trees[parent].Right == child {
			child, parent = parent, q.trees[parent].Parent
		}
		return parent
	}

	if n.Left != Nil {
		id := n.Left
		for q.trees[id].Right != Nil {
			id = q.trees[id].Right
		}
		return id
	}
	child, parent := start, n.Parent
	for parent != Nil && q.trees[parent].Left == child {
		child, parent = parent, q.trees[parent].Parent
	}
	return parent
}

func (q *Queue[V]) replaceChild(parent, old, new uint16) {
	q.touchTree(parent)
	if q.trees[parent].Left == old {
		q.trees[parent].Left = new
	} else {
		q.trees[parent].Right = new
	}
}

func (q *Queue[V]) setParent(child, parent uint16) {
	if child == Nil {
		return
	}
	q.touchTree(child)
	q.trees[child].Parent = parent
}

// removeTreeNode deletes an empty key from the tree. A node with two
// children is replaced by its in-order successor.
func (q *Queue[V]) removeTreeNode(z uint16) {
	zn := q.trees[z]
	parent, left, right := zn.Parent, zn.Left, zn.Right

	var retraceFrom uint16
	var retraceLeft bool

	if left == Nil || right == Nil {
		child := left
		if child == Nil {
			child = right
		}
		q.setParent(child, parent)
		if parent == Nil {
			q.hdr.Root = child
		} else {
			retraceFrom, retraceLeft = parent, q.trees[parent].Left == z
			q.replaceChild(parent, z, child)
		}
	} else {
		s := right
		for q.trees[s].Left != Nil {
			s = q.trees[s].Left
		}
		if s == right {
			retraceFrom, retraceLeft = s, false
		} else {
			sp, sr := q.trees[s].Parent, q.trees[s].Right
			q.touchTree(sp)
			q.trees[sp].Left = sr
			q.setParent(sr, sp)

			q.touchTree(s)
			q.trees[s].Right = right
			q.setParent(right, s)
			retraceFrom, retraceLeft = sp, true
		}
		q.touchTree(s)
		q.trees[s].Left = left
		q.trees[s].HeightLeft = zn.HeightLeft
		q.trees[s].HeightRight = zn.HeightRight
		q.trees[s].Parent = parent
		q.setParent(left, s)
		if parent == Nil {
			q.hdr.Root = s
		} else {
			q.replaceChild(parent, z, s)
		}
	}

	q.freeTree(z)
	if retraceFrom != Nil {
		q.retrace(retraceFrom, false, retraceLeft)
	}
}

// retrace walks from node towards the root after the subtree on one side of
// node grew or shrank by one, updating heights and rebalancing as needed.
func (q *Queue[V]) retrace(node uint16, increment, left bool) {
	for {
		q.touchTree(node)
		n := &q.trees[node]
		oldHeight := n.height()
		switch {
		case left && increment:
			n.HeightLeft++
		case left:
			n.HeightLeft--
		case increment:
			n.HeightRight++
		default:
			n.HeightRight--
		}

		subtree, height := node, n.height()
		if n.HeightLeft > n.HeightRight+1 {
			subtree, height = q.rebalanceLeftHeavy(node)
		} else if n.HeightRight > n.HeightLeft+1 {
			subtree, height = q.rebalanceRightHeavy(node)
		}

		parent := q.trees[subtree].Parent
		if parent == Nil {
			q.hdr.Root = subtree
			return
		}
		nodeIsLeft := q.trees[parent].Left == node
		if subtree != node {
			q.replaceChild(parent, node, subtree)
		}
		if height == oldHeight {
			return
		}
		increment, left, node = height > oldHeight, nodeIsLeft, parent
	}
}

func (q *Queue[V]) rebalanceLeftHeavy(z uint16) (uint16, uint8) {
	x := q.trees[z].Left
	if q.trees[x].HeightRight > q.trees[x].HeightLeft {
		return q.rotateLeftRight(z, x)
	}
	return q.rotateRight(z, x)
}

func (q *Queue[V]) rebalanceRightHeavy(z uint16) (uint16, uint8) {
	x := q.trees[z].Right
	if q.trees[x].HeightLeft > q.trees[x].HeightRight {
		return q.rotateRightLeft(z, x)
	}
	return q.rotateLeft(z, x)
}

// rotateRight lifts x, the left child of z.
func (q *Queue[V]) rotateRight(z, x uint16) (uint16, uint8) {
	q.touchTree(z)
	q.touchTree(x)
	parent := q.trees[z].Parent
	t := q.trees[x].Right

	q.trees[z].Left = t
	q.setParent(t, z)
	q.trees[z].HeightLeft = q.trees[x].HeightRight
	q.trees[z].Parent = x

	q.trees[x].Right = z
	q.trees[x].Parent = parent
	q.trees[x].HeightRight = q.trees[z].height() + 1
	return x, q.trees[x].height()
}

// rotateLeft lifts x, the right child of z.
func (q *Queue[V]) rotateLeft(z, x uint16) (uint16, uint8) {
	q.touchTree(z)
	q.touchTree(x)
	parent := q.trees[z].Parent
	t := q.trees[x].Left

	q.trees[z].Right = t
	q.setParent(t, z)
	q.trees[z].HeightRight = q.trees[x].HeightLeft
	q.trees[z].Parent = x

	q.trees[x].Left = z
	q.trees[x].Parent = parent
	q.trees[x].HeightLeft = q.trees[z].height() + 1
	return x, q.trees[x].height()
}

// rotateLeftRight lifts y, the right child of x, where x is the left child of z.
func (q *Queue[V]) rotateLeftRight(z, x uint16) (uint16, uint8) {
	y := q.trees[x].Right
	q.touchTree(z)
	q.touchTree(x)
	q.touchTree(y)
	parent := q.trees[z].Parent
	yn := q.trees[y]

	q.trees[x].Right = yn.Left
	q.setParent(yn.Left, x)
	q.trees[x].HeightRight = yn.HeightLeft
	q.trees[x].Parent = y

	q.trees[z].Left = yn.Right
	q.setParent(yn.Right, z)
	q.trees[z].HeightLeft = yn.HeightRight
	q.trees[z].Parent = y

	q.trees[y].Left = x
	q.trees[y].Right = z
	q.trees[y].Parent = parent
	q.trees[y].HeightLeft = q.trees[x].height() + 1
	q.trees[y].HeightRight = q.trees[z].height() + 1
	return y, q.trees[y].height()
}

// rotateRightLeft lifts y, the left child of x, where x is the right child of z.
func (q *Queue[V]) rotateRightLeft(z, x uint16) (uint16, uint8) {
	y := q.trees[x].Left
	q.touchTree(z)
	q.touchTree(x)
	q.touchTree(y)
	parent := q.trees[z].Parent
	yn := q.trees[y]

	q.trees[z].Right = yn.Left
	q.setParent(yn.Left, z)
	q.trees[z].HeightRight = yn.HeightLeft
	q.trees[z].Parent = y

	q.trees[x].Left = yn.Right
	q.setParent(yn.Right, x)
	q.trees[x].HeightLeft = yn.HeightRight
	q.trees[x].Parent = y

	q.trees[y].Left = z
	q.trees[y].Right = x
	q.trees[y].Parent = parent
	q.trees[y].HeightLeft = q.trees[z].height() + 1
	q.trees[y].HeightRight = q.trees[x].height() + 1
	return y, q.trees[y].height()
}
