package ot

import "errors"

// ErrInvalidPosition is returned when an operation targets a position outside
// the buffer. A correctly transformed operation can never trigger it; the
// check guards against corrupt input reaching the buffer.
var ErrInvalidPosition = errors.New("invalid position")

// Apply executes every operation of the batch against content, in order, and
// returns the resulting content. Batches produced by Diff are delete-then-
// insert at the same boundary and never invalidate their own positions.
// No-op operations are skipped. If any operation falls outside the buffer the
// original content is returned unchanged with ErrInvalidPosition: a batch is
// applied entirely or not at all.
func Apply(content string, batch Batch) (string, error) {
	runes := []rune(content)

	for _, op := range batch {
		if op.IsNoop() {
			continue
		}

		var err error

		switch op.Type {
		case Insert:
			runes, err = applyInsert(runes, op)
		case Delete:
			runes, err = applyDelete(runes, op)
		default:
			err = errors.New("unknown operation type")
		}

		if err != nil {
			return content, err
		}
	}

	return string(runes), nil
}

// applyInsert splices the inserted text in at the operation position.
func applyInsert(runes []rune, op Operation) ([]rune, error) {
	if op.Position < 0 || op.Position > len(runes) {
		return nil, ErrInvalidPosition
	}

	text := []rune(op.Text)

	out := make([]rune, 0, len(runes)+len(text))
	out = append(out, runes[:op.Position]...)
	out = append(out, text...)
	out = append(out, runes[op.Position:]...)

	return out, nil
}

// applyDelete removes the operation's range from the buffer.
func applyDelete(runes []rune, op Operation) ([]rune, error) {
	if op.Position < 0 || op.end() > len(runes) {
		return nil, ErrInvalidPosition
	}

	out := make([]rune, 0, len(runes)-op.Count)
	out = append(out, runes[:op.Position]...)
	out = append(out, runes[op.end():]...)

	return out, nil
}
