package linetable

import (
	"bufio"
	"log/slog"
	"strings"

	"github.com/spf13/afero"

	"github.com/ohes/ksymtool/internal/symmap"
)

type LineLoader interface {
	ReadLines() ([]string, error)
}

type DataLoader struct {
	fs   afero.Fs
	Path string
}

func NewDataLoader(fs afero.Fs, path string) *DataLoader {
	return &DataLoader{fs: fs, Path: path}
}

func (d *DataLoader) ReadLines() ([]string, error) {
	slog.Debug("Loading lines from file", "path", d.Path)
	f, err := d.fs.Open(d.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Load reads a previously produced listing and parses it.
func Load(loader LineLoader, opts Options) (*symmap.SymbolMap, error) {
	lines, err := loader.ReadLines()
	if err != nil {
		return nil, err
	}
	return Parse(strings.Join(lines, "\n"), opts)
}
