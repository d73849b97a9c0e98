package linetable

import (
	"context"
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ohes/ksymtool/internal/symmap"
)

// DwarfSource reads .debug_line straight from the ELF. Rows are keyed by the file name recorded in
// the line table instead of objdump's CU/file headers, so keys carry the full path.
type DwarfSource struct {
	path string
	opts Options
}

func NewDwarfSource(path string, opts Options) *DwarfSource {
	return &DwarfSource{path: path, opts: opts}
}

func (s *DwarfSource) Build(ctx context.Context) (*symmap.SymbolMap, error) {
	slog.Info("Loading DWARF line tables", "path", s.path)
	ef, err := elf.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("kernel binary: %w", err)
	}
	defer ef.Close()

	d, err := ef.DWARF()
	if err != nil {
		return nil, fmt.Errorf("reading DWARF from %s: %w", s.path, err)
	}
	return buildFromDWARF(ctx, d, s.opts)
}

func buildFromDWARF(ctx context.Context, d *dwarf.Data, opts Options) (*symmap.SymbolMap, error) {
	m := symmap.New()
	rdr := d.Reader()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ent, err := rdr.Next()
		if err != nil {
			return nil, err
		}
		if ent == nil {
			break
		}
		if ent.Tag != dwarf.TagCompileUnit {
			rdr.SkipChildren()
			continue
		}
		lr, err := d.LineReader(ent)
		if err != nil {
			return nil, fmt.Errorf("line table for unit at offset 0x%x: %w", ent.Offset, err)
		}
		rdr.SkipChildren()
		if lr == nil {
			continue
		}

		var le dwarf.LineEntry
		for {
			if err := lr.Next(&le); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, err
			}
			if le.EndSequence || le.File == nil || le.Address <= opts.Threshold {
				continue
			}
			m.Append(le.File.Name, symmap.Record{Addr: le.Address, Line: int32(le.Line)})
		}
	}
	return m, nil
}
