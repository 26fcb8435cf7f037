// Package list implements the doubly-linked list backing LIST values
// (LPUSH/RPUSH/LRANGE/...). It is a direct translation of
// original_source/redis/src/adlist.c/.h: plain head/tail pointers, an
// O(1) push/delete-by-node, and an index lookup that walks from the
// tail for negative indices the same way listIndex does.
package list

// Destructor runs on a node's value when the node is removed.
type Destructor func(value interface{})

// Match reports whether value equals key, used by Find.
type Match func(value interface{}, key interface{}) bool

type Node struct {
	prev, next *Node
	Value      interface{}
}

// Next returns the node after n, or nil at the tail.
func (n *Node) Next() *Node { return n.next }

// Prev returns the node before n, or nil at the head.
func (n *Node) Prev() *Node { return n.prev }

// List is a doubly-linked list with O(1) length, push, and node
// deletion.
type List struct {
	head, tail *Node
	len        int
	free       Destructor
	match      Match
}

// New creates an empty list. free, if non-nil, runs on a value whenever
// its node is removed.
func New(free Destructor) *List {
	return &List{free: free}
}

// SetMatch installs the equality function used by Find.
func (l *List) SetMatch(m Match) { l.match = m }

// Len returns the number of nodes.
func (l *List) Len() int { return l.len }

// Front returns the head node, or nil if empty.
func (l *List) Front() *Node { return l.head }

// Back returns the tail node, or nil if empty.
func (l *List) Back() *Node { return l.tail }

// PushFront inserts value as the new head.
func (l *List) PushFront(value interface{}) *Node {
	n := &Node{Value: value, next: l.head}
	if l.head == nil {
		l.head, l.tail = n, n
	} else {
		l.head.prev = n
		l.head = n
	}
	l.len++
	return n
}

// PushBack inserts value as the new tail.
func (l *List) PushBack(value interface{}) *Node {
	n := &Node{Value: value, prev: l.tail}
	if l.tail == nil {
		l.head, l.tail = n, n
	} else {
		l.tail.next = n
		l.tail = n
	}
	l.len++
	return n
}

// Remove unlinks node from the list and runs the destructor on its
// value. node must belong to l.
func (l *List) Remove(node *Node) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	if l.free != nil {
		l.free(node.Value)
	}
	l.len--
}

// PopFront removes and returns the head value, ok=false if empty.
func (l *List) PopFront() (interface{}, bool) {
	if l.head == nil {
		return nil, false
	}
	n := l.head
	v := n.Value
	l.head = n.next
	if l.head != nil {
		l.head.prev = nil
	} else {
		l.tail = nil
	}
	l.len--
	return v, true
}

// PopBack removes and returns the tail value, ok=false if empty.
func (l *List) PopBack() (interface{}, bool) {
	if l.tail == nil {
		return nil, false
	}
	n := l.tail
	v := n.Value
	l.tail = n.prev
	if l.tail != nil {
		l.tail.next = nil
	} else {
		l.head = nil
	}
	l.len--
	return v, true
}

// Index returns the node at position idx. A non-negative idx counts
// from the head starting at 0; a negative idx counts from the tail
// starting at -1. Returns nil if out of range, matching listIndex.
func (l *List) Index(idx int) *Node {
	if idx < 0 {
		n := l.tail
		idx = -idx - 1
		for idx > 0 && n != nil {
			n = n.prev
			idx--
		}
		return n
	}
	n := l.head
	for idx > 0 && n != nil {
		n = n.next
		idx--
	}
	return n
}

// Find returns the first node whose value matches key according to the
// installed Match function (or Go equality if none was set), nil if
// none does.
func (l *List) Find(key interface{}) *Node {
	for n := l.head; n != nil; n = n.next {
		if l.match != nil {
			if l.match(n.Value, key) {
				return n
			}
		} else if n.Value == key {
			return n
		}
	}
	return nil
}

// Values returns every value head-to-tail.
func (l *List) Values() []interface{} {
	out := make([]interface{}, 0, l.len)
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.Value)
	}
	return out
}

// Clear removes every node, running the destructor on each value.
func (l *List) Clear() {
	for n := l.head; n != nil; {
		next := n.next
		if l.free != nil {
			l.free(n.Value)
		}
		n = next
	}
	l.head, l.tail, l.len = nil, nil, 0
}

// Trim keeps only the nodes in [start, stop] inclusive (both head-
// relative, post-normalization by the caller), discarding the rest and
// running the destructor on each discarded value. Used by LTRIM.
func (l *List) Trim(start, stop int) {
	i := 0
	var next *Node
	for n := l.head; n != nil; n = next {
		next = n.next
		if i < start || i > stop {
			l.Remove(n)
		}
		i++
	}
}
