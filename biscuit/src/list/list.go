// Package list implements the intrusive circular list used throughout
// the kernel as the building block for queues, region maps, the run
// queue, the sleep queue, and wait lists (spec.md 4.B). Translated from
// the C cllist (original_source/kern/lib/cllist.c,
// kern/inc/cllist.h) into a generic Go type: nodes embed the payload
// directly rather than carrying a void*, and insertion before any node
// and extraction of any node are O(1). Each insertion allocates the
// Node that carries the value; extraction allocates nothing.
package list

// Node is one link in a circular list. The zero value is a valid empty,
// unlinked node.
type Node[T any] struct {
	next, prev *Node[T]
	list       *List[T]
	Value      T
}

// List is a circular doubly linked list with a sentinel header node.
// The header is never returned from Front/Back and never holds a
// caller Value.
type List[T any] struct {
	root Node[T]
	len  int
}

// Init must be called before use unless the List was obtained via New.
func (l *List[T]) Init() *List[T] {
	l.root.next = &l.root
	l.root.prev = &l.root
	l.root.list = l
	l.len = 0
	return l
}

// New returns an initialized empty list.
func New[T any]() *List[T] {
	return new(List[T]).Init()
}

// Len returns the number of elements in the list.
func (l *List[T]) Len() int {
	return l.len
}

// Empty reports whether the list has no elements.
func (l *List[T]) Empty() bool {
	return l.len == 0
}

// Front returns the first node, or nil if the list is empty.
func (l *List[T]) Front() *Node[T] {
	if l.len == 0 {
		return nil
	}
	return l.root.next
}

// Back returns the last node, or nil if the list is empty.
func (l *List[T]) Back() *Node[T] {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

// Next returns the node following n, or nil at the end of the list.
func (n *Node[T]) Next() *Node[T] {
	if p := n.next; n.list != nil && p != &n.list.root {
		return p
	}
	return nil
}

// Prev returns the node preceding n, or nil at the start of the list.
func (n *Node[T]) Prev() *Node[T] {
	if p := n.prev; n.list != nil && p != &n.list.root {
		return p
	}
	return nil
}

// PushBack appends a new node holding v and returns it. O(1).
func (l *List[T]) PushBack(v T) *Node[T] {
	return l.insertBefore(v, &l.root)
}

// PushFront prepends a new node holding v and returns it. O(1).
func (l *List[T]) PushFront(v T) *Node[T] {
	return l.insertBefore(v, l.root.next)
}

// InsertBefore inserts a new node holding v immediately before mark,
// which must belong to l. O(1).
func (l *List[T]) InsertBefore(v T, mark *Node[T]) *Node[T] {
	if mark.list != l {
		panic("list: mark not in this list")
	}
	return l.insertBefore(v, mark)
}

func (l *List[T]) insertBefore(v T, mark *Node[T]) *Node[T] {
	n := &Node[T]{Value: v, list: l, prev: mark.prev, next: mark}
	n.prev.next = n
	n.next.prev = n
	l.len++
	return n
}

// Extract removes n from whatever list it belongs to. O(1). It is a
// no-op if n is already unlinked. Matches the cllist contract that
// extraction of any non-header node is O(1) given only the node's own
// pointer (spec.md 4.B).
func (n *Node[T]) Extract() {
	if n.list == nil {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.list.len--
	n.next, n.prev, n.list = nil, nil, nil
}

// PopFront removes and returns the value at the front of the list.
// The second return is false if the list was empty.
func (l *List[T]) PopFront() (T, bool) {
	var zero T
	f := l.Front()
	if f == nil {
		return zero, false
	}
	v := f.Value
	f.Extract()
	return v, true
}

// Do calls f for every element in the list, front to back. f must not
// mutate the list.
func (l *List[T]) Do(f func(v T)) {
	for n := l.Front(); n != nil; n = n.Next() {
		f(n.Value)
	}
}
