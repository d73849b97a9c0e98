// Package postcard writes and reads the two binary symbol map formats the kernel loads at runtime.
//
// Both follow the postcard wire format: unsigned integers and lengths are LEB128 varints, signed
// integers are zigzag encoded first, strings are length prefixed UTF-8, sequences and maps are
// length prefixed, structs are their fields in declaration order and an Option is a 0/1 tag byte
// followed by the value.
//
// The map format (.pcrd) is map<string, seq<{addr u64, line i32}>>, keys in byte order.
// The compact format (.epcrd) is Option<map<u64, string>> of "file:line" locations in address order,
// which the kernel uses as its lookup table directly.
package postcard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/dennwc/varint"

	"github.com/ohes/ksymtool/internal/symmap"
)

var (
	ErrTruncated = errors.New("postcard: unexpected end of input")
	ErrOverflow  = errors.New("postcard: varint overflows")
)

func EncodeMap(w io.Writer, m *symmap.SymbolMap) error {
	files := m.Files()
	sort.Strings(files)

	e := encoder{buf: make([]byte, 0, mapSize(files, m))}
	e.uvarint(uint64(len(files)))
	for _, file := range files {
		records := m.Records(file)
		e.string(file)
		e.uvarint(uint64(len(records)))
		for _, r := range records {
			e.uvarint(r.Addr)
			e.varint32(r.Line)
		}
	}
	_, err := w.Write(e.buf)
	return err
}

func DecodeMap(data []byte) (*symmap.SymbolMap, error) {
	d := decoder{buf: data}
	n, err := d.length()
	if err != nil {
		return nil, fmt.Errorf("map length: %w", err)
	}
	m := symmap.New()
	for i := uint64(0); i < n; i++ {
		file, err := d.string()
		if err != nil {
			return nil, fmt.Errorf("entry %d key: %w", i, err)
		}
		count, err := d.length()
		if err != nil {
			return nil, fmt.Errorf("entry %q length: %w", file, err)
		}
		for j := uint64(0); j < count; j++ {
			addr, err := d.uvarint()
			if err != nil {
				return nil, fmt.Errorf("entry %q record %d addr: %w", file, j, err)
			}
			line, err := d.varint32()
			if err != nil {
				return nil, fmt.Errorf("entry %q record %d line: %w", file, j, err)
			}
			m.Append(file, symmap.Record{Addr: addr, Line: line})
		}
	}
	return m, nil
}

func EncodeTable(w io.Writer, t *symmap.Table) error {
	entries := t.Entries()
	size := 1 + varint.UvarintSize(uint64(len(entries)))
	for _, entry := range entries {
		size += varint.UvarintSize(entry.Addr) + stringSize(entry.Location)
	}
	e := encoder{buf: make([]byte, 0, size)}
	e.buf = append(e.buf, 1) // Some
	e.uvarint(uint64(len(entries)))
	for _, entry := range entries {
		e.uvarint(entry.Addr)
		e.string(entry.Location)
	}
	_, err := w.Write(e.buf)
	return err
}

// DecodeTable reads the compact format. A None table decodes as an empty Table.
func DecodeTable(data []byte) (*symmap.Table, error) {
	d := decoder{buf: data}
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return symmap.NewTableFromEntries(nil), nil
	case 1:
	default:
		return nil, fmt.Errorf("postcard: invalid option tag 0x%02x", tag)
	}
	n, err := d.length()
	if err != nil {
		return nil, fmt.Errorf("table length: %w", err)
	}
	entries := make([]symmap.Entry, 0, n)
	for i := uint64(0); i < n; i++ {
		addr, err := d.uvarint()
		if err != nil {
			return nil, fmt.Errorf("table entry %d addr: %w", i, err)
		}
		loc, err := d.string()
		if err != nil {
			return nil, fmt.Errorf("table entry %d location: %w", i, err)
		}
		entries = append(entries, symmap.Entry{Addr: addr, Location: loc})
	}
	return symmap.NewTableFromEntries(entries), nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) uvarint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

func (e *encoder) varint32(v int32) {
	e.uvarint(zigzag32(v))
}

func zigzag32(v int32) uint64 {
	return uint64(uint32(v<<1) ^ uint32(v>>31))
}

func stringSize(s string) int {
	return varint.UvarintSize(uint64(len(s))) + len(s)
}

// mapSize is the exact encoded size of m, so EncodeMap allocates once.
func mapSize(files []string, m *symmap.SymbolMap) int {
	n := varint.UvarintSize(uint64(len(files)))
	for _, file := range files {
		records := m.Records(file)
		n += stringSize(file) + varint.UvarintSize(uint64(len(records)))
		for _, r := range records {
			n += varint.UvarintSize(r.Addr) + varint.UvarintSize(zigzag32(r.Line))
		}
	}
	return n
}

func (e *encoder) string(s string) {
	e.uvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) byte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, ErrTruncated
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := varint.Uvarint(d.buf[d.off:])
	if n == 0 {
		return 0, ErrTruncated
	}
	if n < 0 {
		return 0, ErrOverflow
	}
	d.off += n
	return v, nil
}

func (d *decoder) varint32() (int32, error) {
	u, err := d.uvarint()
	if err != nil {
		return 0, err
	}
	if u > math.MaxUint32 {
		return 0, ErrOverflow
	}
	z := uint32(u)
	return int32(z>>1) ^ -int32(z&1), nil
}

// length reads a sequence length and rejects values that cannot fit in the remaining input, since
// every element takes at least one byte.
func (d *decoder) length() (uint64, error) {
	n, err := d.uvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(len(d.buf)-d.off) {
		return 0, ErrTruncated
	}
	return n, nil
}

func (d *decoder) string() (string, error) {
	n, err := d.length()
	if err != nil {
		return "", err
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}
