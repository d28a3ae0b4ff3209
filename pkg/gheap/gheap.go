package gheap

// Binary min-heap ordered by a user supplied less function
type Heap[T any] struct {
	s    []T
	less func(a, b T) bool
}

func NewHeap[T any](less func(a, b T) bool, values ...T) *Heap[T] {
	h := &Heap[T]{s: values, less: less}
	for i := len(h.s)/2 - 1; i >= 0; i-- {
		h.down(i)
	}
	return h
}

func (h *Heap[T]) down(u int) {
	for {
		v := u
		if l := 2*u + 1; l < len(h.s) && h.less(h.s[l], h.s[v]) {
			v = l
		}
		if r := 2*u + 2; r < len(h.s) && h.less(h.s[r], h.s[v]) {
			v = r
		}
		if v == u {
			return
		}
		h.s[v], h.s[u] = h.s[u], h.s[v]
		u = v
	}
}

func (h *Heap[T]) up(u int) {
	for u != 0 && h.less(h.s[u], h.s[(u-1)/2]) {
		h.s[(u-1)/2], h.s[u] = h.s[u], h.s[(u-1)/2]
		u = (u - 1) / 2
	}
}

func (h *Heap[T]) Len() int      { return len(h.s) }
func (h *Heap[T]) IsEmpty() bool { return len(h.s) == 0 }

func (h *Heap[T]) Push(e T) {
	h.s = append(h.s, e)
	h.up(len(h.s) - 1)
}

// Panics on an empty heap
func (h *Heap[T]) Pop() T {
	x := h.s[0]
	n := len(h.s) - 1
	h.s[0] = h.s[n]
	h.s = h.s[:n]
	h.down(0)
	return x
}

// Panics on an empty heap
func (h *Heap[T]) Peek() T {
	return h.s[0]
}
