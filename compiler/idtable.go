package compiler

// idHash is the DJB-style string hash used to gate identifier comparisons.
func idHash(b []byte) uint64 {
	h := uint64(5381)
	for _, c := range b {
		h += h*33 ^ uint64(c)
	}
	return h
}

// identifier is one interned spelling.
type identifier struct {
	name    string
	hash    uint64
	entry   int  // bytecode offset of the function body
	defined bool // entry is valid
	defs    []int
	calls   []int
}

// idTable interns identifier spellings to small integer ids. Equal spellings
// always map to the same id. Lookups compare hashes first and bytes second.
type idTable struct {
	recs    []identifier
	buckets map[uint64][]int
}

func newIDTable() *idTable {
	return &idTable{
		recs:    make([]identifier, 0, 8),
		buckets: make(map[uint64][]int),
	}
}

// intern returns the id for spelling, creating a record on first sight.
func (t *idTable) intern(spelling []byte) int {
	h := idHash(spelling)
	for _, id := range t.buckets[h] {
		if t.recs[id].name == string(spelling) {
			return id
		}
	}
	id := len(t.recs)
	t.recs = append(t.recs, identifier{name: string(spelling), hash: h})
	t.buckets[h] = append(t.buckets[h], id)
	return id
}

// setEntry records where the function named by id begins.
func (t *idTable) setEntry(id, offset int) {
	t.recs[id].entry = offset
	t.recs[id].defined = true
}

// entryOf returns the resolved entry of id, or false if id was never
// defined as a function.
func (t *idTable) entryOf(id int) (int, bool) {
	if id < 0 || id >= len(t.recs) {
		return 0, false
	}
	rec := &t.recs[id]
	return rec.entry, rec.defined
}

func (t *idTable) name(id int) string {
	return t.recs[id].name
}

func (t *idTable) noteDef(id, offset int) {
	t.recs[id].defs = append(t.recs[id].defs, offset)
}

func (t *idTable) noteCall(id, offset int) {
	t.recs[id].calls = append(t.recs[id].calls, offset)
}

// Symbol is a read-only snapshot of one identifier after compilation.
type Symbol struct {
	Name    string
	Entry   int   // Bytecode entry offset; valid when Defined
	Defined bool  // The name was defined as a function
	Defs    []int // Source offsets of each "name:" definition
	Calls   []int // Source offsets of each call
}

// symbols snapshots the table in id order.
func (t *idTable) symbols() []Symbol {
	out := make([]Symbol, len(t.recs))
	for i, rec := range t.recs {
		out[i] = Symbol{
			Name:    rec.name,
			Entry:   rec.entry,
			Defined: rec.defined,
			Defs:    append([]int(nil), rec.defs...),
			Calls:   append([]int(nil), rec.calls...),
		}
	}
	return out
}
