// Package pipeline produces the kernel symbol map artifacts: it extracts the line table, writes the
// JSON map and derives the binary encodings and optional profile exports from it.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"google.golang.org/protobuf/proto"

	"github.com/ohes/ksymtool/internal/exporter"
	"github.com/ohes/ksymtool/internal/linetable"
	"github.com/ohes/ksymtool/internal/symmap"
	"github.com/ohes/ksymtool/internal/tool"
)

type Source interface {
	Build(ctx context.Context) (*symmap.SymbolMap, error)
}

type Output struct {
	Path string
	Size int64
}

type Result struct {
	Files   int
	Records int
	Outputs []Output
}

type Pipeline struct {
	fs        afero.Fs
	cfg       Config
	source    Source
	converter Converter
	now       func() time.Time
}

func New(fs afero.Fs, runner tool.Runner, cfg Config) (*Pipeline, error) {
	p := &Pipeline{fs: fs, cfg: cfg, now: time.Now}

	switch cfg.Source {
	case SourceObjdump:
		p.source = linetable.NewObjdumpSource(fs, runner, cfg.Objdump, cfg.ELFPath, cfg.DumpPath, cfg.Parse)
	case SourceDWARF:
		p.source = linetable.NewDwarfSource(cfg.ELFPath, cfg.Parse)
	default:
		return nil, fmt.Errorf("unknown line table source %q", cfg.Source)
	}

	switch cfg.Converter {
	case ConverterNative:
		p.converter = NewNativeConverter(fs)
	case ConverterSerdeConv:
		p.converter = NewSerdeConvConverter(runner, cfg.SerdeConv)
	default:
		return nil, fmt.Errorf("unknown converter %q", cfg.Converter)
	}
	return p, nil
}

func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	m, err := p.source.Build(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Built symbol map", "files", m.Len(), "records", m.RecordCount())

	res := &Result{Files: m.Len(), Records: m.RecordCount()}
	if err := p.write(res, p.cfg.JSONPath, m.WriteJSON); err != nil {
		return nil, err
	}

	for _, c := range []struct {
		format Format
		path   string
	}{
		{FormatPostcard, p.cfg.PostcardPath},
		{FormatCompact, p.cfg.CompactPath},
	} {
		if err := p.converter.Convert(ctx, p.cfg.JSONPath, c.format, c.path); err != nil {
			return nil, fmt.Errorf("converting to %s: %w", c.format, err)
		}
		p.record(res, c.path)
	}

	if err := p.export(res, m); err != nil {
		return nil, err
	}

	for _, o := range res.Outputs {
		slog.Info("Wrote symbol map artifact", "path", o.Path, "size", humanize.Bytes(uint64(o.Size)))
	}
	return res, nil
}

func (p *Pipeline) export(res *Result, m *symmap.SymbolMap) error {
	binary := filepath.Base(p.cfg.ELFPath)
	if p.cfg.PprofPath != "" {
		prof, err := exporter.BuildPprofProfile(m, binary)
		if err != nil {
			return fmt.Errorf("building pprof profile: %w", err)
		}
		if err := p.write(res, p.cfg.PprofPath, func(w io.Writer) error { return exporter.WriteProfileGzip(prof, w) }); err != nil {
			return err
		}
	}
	if p.cfg.OTLPPath != "" {
		req := exporter.BuildOtlpRequest(m, binary, func() uint64 { return uint64(p.now().UnixNano()) })
		data, err := proto.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshalling OTLP request: %w", err)
		}
		if err := p.write(res, p.cfg.OTLPPath, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}); err != nil {
			return err
		}
	}
	if p.cfg.ListingPath != "" {
		table := symmap.NewTable(m)
		if err := p.write(res, p.cfg.ListingPath, func(w io.Writer) error { return exporter.WriteListing(table, w) }); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) write(res *Result, path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := p.fs.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	p.record(res, path)
	return nil
}

func (p *Pipeline) record(res *Result, path string) {
	o := Output{Path: path}
	if fi, err := p.fs.Stat(path); err == nil {
		o.Size = fi.Size()
	}
	res.Outputs = append(res.Outputs, o)
}
