package pipeline

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/ohes/ksymtool/internal/postcard"
	"github.com/ohes/ksymtool/internal/symmap"
)

// LoadTable reads any of the produced symbol map files, picking the decoder by extension the same
// way the kernel's loader does.
func LoadTable(fs afero.Fs, path string) (*symmap.Table, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".json":
		m, err := symmap.ReadJSON(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return symmap.NewTable(m), nil
	case ".pcrd":
		m, err := postcard.DecodeMap(data)
		if err != nil {
			return nil, err
		}
		return symmap.NewTable(m), nil
	case ".epcrd", ".cpost":
		return postcard.DecodeTable(data)
	default:
		return nil, fmt.Errorf("unknown symbol map format %q", ext)
	}
}
