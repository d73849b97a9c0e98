package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/ohes/ksymtool/internal/postcard"
	"github.com/ohes/ksymtool/internal/symmap"
	"github.com/ohes/ksymtool/internal/tool"
)

// Format names match the serde_conv -F argument.
type Format string

const (
	FormatPostcard Format = "postcard"
	FormatCompact  Format = "cpost"
)

// Converter turns the JSON symbol map into one of the binary encodings.
type Converter interface {
	Convert(ctx context.Context, jsonPath string, format Format, outPath string) error
}

type NativeConverter struct {
	fs afero.Fs
}

func NewNativeConverter(fs afero.Fs) *NativeConverter {
	return &NativeConverter{fs: fs}
}

func (c *NativeConverter) Convert(ctx context.Context, jsonPath string, format Format, outPath string) error {
	data, err := afero.ReadFile(c.fs, jsonPath)
	if err != nil {
		return err
	}
	m, err := symmap.ReadJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: %w", jsonPath, err)
	}

	var buf bytes.Buffer
	switch format {
	case FormatPostcard:
		err = postcard.EncodeMap(&buf, m)
	case FormatCompact:
		err = postcard.EncodeTable(&buf, symmap.NewTable(m))
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}
	if err := c.fs.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(c.fs, outPath, buf.Bytes(), 0o644)
}

// SerdeConvConverter shells out to serde_conv, which must see the same paths on the real filesystem.
type SerdeConvConverter struct {
	runner tool.Runner
	binary string
}

func NewSerdeConvConverter(runner tool.Runner, binary string) *SerdeConvConverter {
	return &SerdeConvConverter{runner: runner, binary: binary}
}

func (c *SerdeConvConverter) Convert(ctx context.Context, jsonPath string, format Format, outPath string) error {
	return c.runner.Run(ctx, nil, c.binary, "-i", jsonPath, "-F", string(format), "-o", outPath)
}
