package symmap

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteJSON writes m as a JSON object keyed by file name. Keys are written in insertion order, which
// encoding/json cannot do for a Go map.
func (m *SymbolMap) WriteJSON(w io.Writer) error {
	stream := jsoniter.NewStream(jsonAPI, w, 4096)
	stream.WriteObjectStart()
	for i, file := range m.files {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(file)
		stream.WriteArrayStart()
		for j, r := range m.records[file] {
			if j > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectStart()
			stream.WriteObjectField("addr")
			stream.WriteUint64(r.Addr)
			stream.WriteMore()
			stream.WriteObjectField("line")
			stream.WriteInt32(r.Line)
			stream.WriteObjectEnd()
		}
		stream.WriteArrayEnd()
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return stream.Error
	}
	return stream.Flush()
}

// ReadJSON decodes a map previously written by WriteJSON. A null line number, which older tooling
// produced for unparseable lines, decodes as 0.
func ReadJSON(r io.Reader) (*SymbolMap, error) {
	iter := jsoniter.Parse(jsonAPI, r, 4096)
	if next := iter.WhatIsNext(); next != jsoniter.ObjectValue {
		return nil, fmt.Errorf("symbol map must be a JSON object, got value type %v", next)
	}
	m := New()
	iter.ReadObjectCB(func(iter *jsoniter.Iterator, file string) bool {
		m.touch(file)
		iter.ReadArrayCB(func(iter *jsoniter.Iterator) bool {
			var rec Record
			iter.ReadObjectCB(func(iter *jsoniter.Iterator, field string) bool {
				switch field {
				case "addr":
					rec.Addr = iter.ReadUint64()
				case "line":
					if iter.WhatIsNext() == jsoniter.NilValue {
						iter.Skip()
						return true
					}
					rec.Line = iter.ReadInt32()
				default:
					iter.Skip()
				}
				return true
			})
			m.Append(file, rec)
			return iter.Error == nil
		})
		return iter.Error == nil
	})
	if iter.Error != nil {
		// a complete object never reads past its closing brace, so EOF means truncated input
		return nil, fmt.Errorf("decoding symbol map: %w", iter.Error)
	}
	return m, nil
}
