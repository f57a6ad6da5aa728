package ot

// Diff computes the minimal edit turning old into new as at most one delete
// followed by one insert. It finds the longest common prefix and suffix and
// expresses the differing middle span at the prefix boundary. Deterministic,
// O(n) in string length.
func Diff(old, new string) Batch {
	if old == new {
		return nil
	}

	oldRunes := []rune(old)
	newRunes := []rune(new)

	prefix := 0
	for prefix < len(oldRunes) && prefix < len(newRunes) && oldRunes[prefix] == newRunes[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(oldRunes)-prefix && suffix < len(newRunes)-prefix &&
		oldRunes[len(oldRunes)-1-suffix] == newRunes[len(newRunes)-1-suffix] {
		suffix++
	}

	var batch Batch

	if deleted := len(oldRunes) - prefix - suffix; deleted > 0 {
		batch = append(batch, NewDelete(prefix, deleted))
	}

	if inserted := newRunes[prefix : len(newRunes)-suffix]; len(inserted) > 0 {
		batch = append(batch, NewInsert(prefix, string(inserted)))
	}

	return batch
}
