package ot

// Transform rewrites operation a so it stays valid after operation b, which
// was committed ahead of it, has already been applied. Both operations must
// have been created against the same buffer state.
//
// Tie-break for concurrent inserts at the same position: the later-arriving
// insert lands after the committed one, so the committed operation's text is
// never split. The rule depends only on commit order, never on operation
// content.
func Transform(a, b Operation) Operation {
	switch {
	case a.IsInsert() && b.IsInsert():
		return transformInsertInsert(a, b)
	case a.IsInsert() && b.IsDelete():
		return transformInsertDelete(a, b)
	case a.IsDelete() && b.IsInsert():
		return transformDeleteInsert(a, b)
	default:
		return transformDeleteDelete(a, b)
	}
}

// transformInsertInsert shifts a past b's inserted text when b comes first
// in the buffer, or at the same position (committed op wins the spot).
func transformInsertInsert(a, b Operation) Operation {
	aPrime := a

	if a.Position >= b.Position {
		aPrime.Position += b.textLen()
	}

	return aPrime
}

// transformInsertDelete pulls a back by however much of b's deleted range
// lies before it, clamping so a lands at the deletion boundary when its
// original position fell inside the deleted span.
func transformInsertDelete(a, b Operation) Operation {
	aPrime := a

	if a.Position >= b.Position {
		aPrime.Position -= min(b.Count, a.Position-b.Position)
	}

	return aPrime
}

// transformDeleteInsert shifts a's range past b's inserted text.
func transformDeleteInsert(a, b Operation) Operation {
	aPrime := a

	if a.Position >= b.Position {
		aPrime.Position += b.textLen()
	}

	return aPrime
}

// transformDeleteDelete removes the already-deleted overlap from a's range.
// When the overlap consumes a entirely the result is a count-0 no-op rather
// than a dropped operation, so callers can detect and skip it.
func transformDeleteDelete(a, b Operation) Operation {
	aPrime := a

	switch {
	case a.Position >= b.end():
		// b's range lies entirely before a: shift back.
		aPrime.Position -= b.Count
	case a.end() <= b.Position:
		// a's range lies entirely before b: unaffected.
	default:
		// Overlapping ranges: each rune is deleted exactly once.
		overlap := min(a.end(), b.end()) - max(a.Position, b.Position)
		aPrime.Count -= overlap
		aPrime.Position = min(a.Position, b.Position)
	}

	return aPrime
}

// TransformBatch reconciles batch against a sequence of already-committed
// batches: every operation of batch is transformed against every operation
// of every concurrent batch, in commit order. An empty concurrent sequence
// returns the batch unchanged.
func TransformBatch(batch Batch, concurrent []Batch) Batch {
	if len(concurrent) == 0 || len(batch) == 0 {
		return batch
	}

	transformed := make(Batch, len(batch))
	copy(transformed, batch)

	for _, committed := range concurrent {
		for _, against := range committed {
			if against.IsNoop() {
				continue
			}

			for i, op := range transformed {
				transformed[i] = Transform(op, against)
			}
		}
	}

	return transformed
}
