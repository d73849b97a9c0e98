package linetable

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/ohes/ksymtool/internal/symmap"
	"github.com/ohes/ksymtool/internal/tool"
)

const (
	DefaultObjdump  = "objdump"
	DefaultDumpPath = "data.txt"
)

// ObjdumpSource dumps the decoded DWARF line table of an ELF with objdump into an intermediate
// file, parses it, and removes the file again.
type ObjdumpSource struct {
	fs       afero.Fs
	runner   tool.Runner
	objdump  string
	elfPath  string
	dumpPath string
	opts     Options
}

func NewObjdumpSource(fs afero.Fs, runner tool.Runner, objdump, elfPath, dumpPath string, opts Options) *ObjdumpSource {
	if objdump == "" {
		objdump = DefaultObjdump
	}
	if dumpPath == "" {
		dumpPath = DefaultDumpPath
	}
	return &ObjdumpSource{fs: fs, runner: runner, objdump: objdump, elfPath: elfPath, dumpPath: dumpPath, opts: opts}
}

func (s *ObjdumpSource) Build(ctx context.Context) (*symmap.SymbolMap, error) {
	if _, err := s.fs.Stat(s.elfPath); err != nil {
		return nil, fmt.Errorf("kernel binary: %w", err)
	}
	f, err := s.fs.Create(s.dumpPath)
	if err != nil {
		return nil, fmt.Errorf("creating line table dump: %w", err)
	}
	defer func() {
		if err := s.fs.Remove(s.dumpPath); err != nil {
			slog.Warn("Failed to remove line table dump", "path", s.dumpPath, "error", err)
		}
	}()

	runErr := s.runner.Run(ctx, f, s.objdump, "--dwarf=decodedline", s.elfPath)
	closeErr := f.Close()
	if runErr != nil {
		return nil, fmt.Errorf("dumping line table: %w", runErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("writing line table dump: %w", closeErr)
	}

	return Load(NewDataLoader(s.fs, s.dumpPath), s.opts)
}
