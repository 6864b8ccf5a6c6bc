package ecs

// Each iterates over entities that have component A. The world is borrowed for
// the duration of the call: components may be mutated through the pointers,
// but spawning, despawning, inserting or removing panics with ErrBorrowed.
// Iteration order is unspecified.
func Each[A any](w *World, fn func(EntityID, *A)) {
	defer w.borrow()()
	for id, a := range storeOf[A](w.registry).data {
		fn(id, a)
	}
}

// Each2 iterates over entities that have both component A and B.
// It iterates over the smaller store and checks the larger one.
func Each2[A, B any](w *World, fn func(EntityID, *A, *B)) {
	defer w.borrow()()
	sa, sb := storeOf[A](w.registry), storeOf[B](w.registry)
	if sa.Len() <= sb.Len() {
		for id, a := range sa.data {
			if b, ok := sb.data[id]; ok {
				fn(id, a, b)
			}
		}
	} else {
		for id, b := range sb.data {
			if a, ok := sa.data[id]; ok {
				fn(id, a, b)
			}
		}
	}
}

// Each3 iterates over entities that have components A, B, and C.
func Each3[A, B, C any](w *World, fn func(EntityID, *A, *B, *C)) {
	defer w.borrow()()
	sa, sb, sc := storeOf[A](w.registry), storeOf[B](w.registry), storeOf[C](w.registry)

	// Iterate the smallest store
	smallest := sa.Len()
	which := 0
	if sb.Len() < smallest {
		smallest = sb.Len()
		which = 1
	}
	if sc.Len() < smallest {
		which = 2
	}

	switch which {
	case 0:
		for id, a := range sa.data {
			if b, ok := sb.data[id]; ok {
				if c, ok := sc.data[id]; ok {
					fn(id, a, b, c)
				}
			}
		}
	case 1:
		for id, b := range sb.data {
			if a, ok := sa.data[id]; ok {
				if c, ok := sc.data[id]; ok {
					fn(id, a, b, c)
				}
			}
		}
	case 2:
		for id, c := range sc.data {
			if a, ok := sa.data[id]; ok {
				if b, ok := sb.data[id]; ok {
					fn(id, a, b, c)
				}
			}
		}
	}
}
