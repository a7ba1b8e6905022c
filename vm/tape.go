package vm

// DefaultTapeSize is the number of cells on a tape unless configured otherwise.
const DefaultTapeSize = 1 << 20

// Tape is the mutable state a program runs against: a fixed row of signed
// cells and a head that always stays within [0, len(Cells)).
type Tape struct {
	Cells []int32
	Head  int
}

// NewTape allocates a zeroed tape of size cells with the head in the middle
// so programs can move left. A non-positive size selects DefaultTapeSize.
func NewTape(size int) *Tape {
	if size <= 0 {
		size = DefaultTapeSize
	}
	return &Tape{
		Cells: make([]int32, size),
		Head:  size / 2,
	}
}

// Len returns the number of cells.
func (t *Tape) Len() int {
	return len(t.Cells)
}

// Current returns the value under the head.
func (t *Tape) Current() int32 {
	return t.Cells[t.Head]
}
