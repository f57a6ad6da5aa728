package ot

// OpType represents the type of operation.
type OpType int

const (
	Insert OpType = iota
	Delete
)

// Operation represents a single edit against a text buffer: either an
// insertion of Text at Position, or a deletion of Count runes starting at
// Position. Positions are rune offsets, valid only relative to the buffer
// state at a particular revision. Operations are immutable once created;
// transforming produces a new operation.
type Operation struct {
	Type     OpType `json:"type"`
	Position int    `json:"position"`
	Text     string `json:"text,omitempty"`  // Inserted text (insert only)
	Count    int    `json:"count,omitempty"` // Number of runes removed (delete only)
}

// NewInsert creates an insert operation.
func NewInsert(position int, text string) Operation {
	return Operation{
		Type:     Insert,
		Position: position,
		Text:     text,
	}
}

// NewDelete creates a delete operation.
func NewDelete(position, count int) Operation {
	return Operation{
		Type:     Delete,
		Position: position,
		Count:    count,
	}
}

// IsInsert returns true if this is an insert operation.
func (o Operation) IsInsert() bool {
	return o.Type == Insert
}

// IsDelete returns true if this is a delete operation.
func (o Operation) IsDelete() bool {
	return o.Type == Delete
}

// IsNoop returns true if the operation has no effect: an empty insert, or a
// delete whose count was consumed entirely by transformation.
func (o Operation) IsNoop() bool {
	if o.IsInsert() {
		return o.Text == ""
	}

	return o.Count <= 0
}

// textLen returns the rune length of the inserted text.
func (o Operation) textLen() int {
	return len([]rune(o.Text))
}

// end returns the exclusive end of a delete's target range.
func (o Operation) end() int {
	return o.Position + o.Count
}

// Batch is an ordered sequence of operations produced from one client edit.
// Batches, not single operations, are the unit exchanged over the wire.
type Batch []Operation

// IsNoop returns true if every operation in the batch is a no-op.
func (b Batch) IsNoop() bool {
	for _, op := range b {
		if !op.IsNoop() {
			return false
		}
	}

	return true
}
