package symmap

// DefaultThreshold is the lowest address (exclusive) kept in a SymbolMap. Everything at or below it
// belongs to the identity-mapped low memory and never to the loaded kernel image.
const DefaultThreshold uint64 = 0x200000

type Record struct {
	Addr uint64 `json:"addr"`
	Line int32  `json:"line"`
}

// SymbolMap maps a source file name to its address/line records. Files keep the order in which they
// were first seen and records keep the order in which they were appended.
type SymbolMap struct {
	files   []string
	records map[string][]Record
}

func New() *SymbolMap {
	return &SymbolMap{records: make(map[string][]Record)}
}

func (m *SymbolMap) Append(file string, r Record) {
	m.touch(file)
	m.records[file] = append(m.records[file], r)
}

// touch registers file without adding a record. Only decoders need this, to reproduce input that
// carries an empty sequence.
func (m *SymbolMap) touch(file string) {
	if _, ok := m.records[file]; ok {
		return
	}
	m.files = append(m.files, file)
	m.records[file] = nil
}

func (m *SymbolMap) Files() []string {
	files := make([]string, len(m.files))
	copy(files, m.files)
	return files
}

func (m *SymbolMap) Records(file string) []Record {
	return m.records[file]
}

func (m *SymbolMap) Has(file string) bool {
	_, ok := m.records[file]
	return ok
}

// Len returns the number of files in the map.
func (m *SymbolMap) Len() int {
	return len(m.files)
}

func (m *SymbolMap) RecordCount() int {
	n := 0
	for _, recs := range m.records {
		n += len(recs)
	}
	return n
}

// Each calls fn for every file in insertion order.
func (m *SymbolMap) Each(fn func(file string, records []Record)) {
	for _, file := range m.files {
		fn(file, m.records[file])
	}
}

// Equal reports whether both maps hold the same files, in the same order, with the same records.
func (m *SymbolMap) Equal(o *SymbolMap) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i, file := range m.files {
		if o.files[i] != file {
			return false
		}
		a, b := m.records[file], o.records[file]
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if a[j] != b[j] {
				return false
			}
		}
	}
	return true
}
