package symmap

import (
	"fmt"
	"sort"
	"strconv"
)

type Entry struct {
	Addr     uint64
	Location string
}

// Table is the flattened, address ordered view of a SymbolMap that the kernel loads for backtraces.
type Table struct {
	entries []Entry
}

// NewTable flattens m into "file:line" locations. When several records share an address the one
// appended last wins.
func NewTable(m *SymbolMap) *Table {
	entries := make([]Entry, 0, m.RecordCount())
	m.Each(func(file string, records []Record) {
		for _, r := range records {
			entries = append(entries, Entry{Addr: r.Addr, Location: file + ":" + strconv.FormatInt(int64(r.Line), 10)})
		}
	})
	return NewTableFromEntries(entries)
}

// NewTableFromEntries sorts entries by address and drops all but the last entry for an address.
func NewTableFromEntries(entries []Entry) *Table {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })

	deduped := sorted[:0]
	for _, e := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].Addr == e.Addr {
			deduped[n-1] = e
			continue
		}
		deduped = append(deduped, e)
	}
	return &Table{entries: deduped}
}

func (t *Table) Entries() []Entry {
	return t.entries
}

func (t *Table) Len() int {
	return len(t.entries)
}

// Lookup returns the location of the greatest address <= addr.
func (t *Table) Lookup(addr uint64) (string, error) {
	if len(t.entries) == 0 {
		return "", fmt.Errorf("empty symbol table")
	}
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Addr > addr })
	if i == 0 {
		return "", fmt.Errorf("no location <= addr: 0x%x", addr)
	}
	return t.entries[i-1].Location, nil
}
