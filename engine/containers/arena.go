package containers

const defaultArenaChunk = 64

// Arena is a bump allocator for values that live for a single frame.
// Alloc hands out pointers into fixed-size chunks, so a pointer stays valid
// until the next Reset. Reset keeps the chunks around: values handed out after
// a Reset are recycled and still hold whatever the previous frame left in them,
// callers are expected to reinitialize what they get.
type Arena[T any] struct {
	chunks    [][]T
	chunkSize int
	chunk     int
	offset    int
}

func NewArena[T any](chunkSize int) *Arena[T] {
	if chunkSize <= 0 {
		chunkSize = defaultArenaChunk
	}
	return &Arena[T]{
		chunkSize: chunkSize,
	}
}

func (a *Arena[T]) Alloc() *T {
	if a.chunk == len(a.chunks) {
		a.chunks = append(a.chunks, make([]T, a.chunkSize))
	}
	v := &a.chunks[a.chunk][a.offset]
	a.offset++
	if a.offset == a.chunkSize {
		a.chunk++
		a.offset = 0
	}
	return v
}

// Len returns the number of values handed out since the last Reset.
func (a *Arena[T]) Len() int {
	return a.chunk*a.chunkSize + a.offset
}

// Capacity returns the number of values the arena can hand out without growing.
func (a *Arena[T]) Capacity() int {
	return len(a.chunks) * a.chunkSize
}

func (a *Arena[T]) Reset() {
	a.chunk = 0
	a.offset = 0
}
