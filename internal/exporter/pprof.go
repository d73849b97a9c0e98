package exporter

import (
	"io"
	"sort"

	"github.com/google/pprof/profile"
	"github.com/klauspost/compress/gzip"

	"github.com/ohes/ksymtool/internal/symmap"
)

// BuildPprofProfile turns the symbol map into a pprof profile with one function per source file and
// one location (plus one unit sample) per address, so that `pprof -list`/`-disasm` style tooling can
// attribute kernel addresses to lines.
func BuildPprofProfile(m *symmap.SymbolMap, binary string) (*profile.Profile, error) {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "lines", Unit: "count"}},
	}
	if m.RecordCount() == 0 {
		return p, nil
	}

	mapping := &profile.Mapping{
		ID:              1,
		File:            binary,
		HasFunctions:    true,
		HasFilenames:    true,
		HasLineNumbers:  true,
		HasInlineFrames: false,
	}
	p.Mapping = []*profile.Mapping{mapping}

	funcs := map[string]*profile.Function{}
	locMap := map[uint64]*profile.Location{}
	nextFuncID := uint64(1)
	nextLocID := uint64(1)

	addFunction := func(file string) *profile.Function {
		if f, ok := funcs[file]; ok {
			return f
		}
		fn := &profile.Function{
			ID:         nextFuncID,
			Name:       file,
			SystemName: file,
			Filename:   file,
		}
		nextFuncID++
		funcs[file] = fn
		p.Function = append(p.Function, fn)
		return fn
	}

	m.Each(func(file string, records []symmap.Record) {
		fn := addFunction(file)
		for _, r := range records {
			// several rows can share an address; the last one wins, as in the flattened table
			if loc, ok := locMap[r.Addr]; ok {
				loc.Line = []profile.Line{{Function: fn, Line: int64(r.Line)}}
				continue
			}
			loc := &profile.Location{
				ID:      nextLocID,
				Mapping: mapping,
				Address: r.Addr,
				Line:    []profile.Line{{Function: fn, Line: int64(r.Line)}},
			}
			nextLocID++
			locMap[r.Addr] = loc
			p.Location = append(p.Location, loc)
			p.Sample = append(p.Sample, &profile.Sample{
				Value:    []int64{1},
				Location: []*profile.Location{loc},
			})
			if mapping.Start == 0 || r.Addr < mapping.Start {
				mapping.Start = r.Addr
			}
			if r.Addr >= mapping.Limit {
				mapping.Limit = r.Addr + 1
			}
		}
	})

	// sort for deterministic output
	sort.Slice(p.Function, func(i, j int) bool { return p.Function[i].ID < p.Function[j].ID })
	sort.Slice(p.Location, func(i, j int) bool { return p.Location[i].ID < p.Location[j].ID })

	if err := p.CheckValid(); err != nil {
		return nil, err
	}
	return p, nil
}

func WriteProfileGzip(p *profile.Profile, w io.Writer) error {
	gw := gzip.NewWriter(w)
	if err := p.WriteUncompressed(gw); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}
