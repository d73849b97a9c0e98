package pipeline

import (
	"github.com/ohes/ksymtool/internal/linetable"
)

const (
	SourceObjdump = "objdump"
	SourceDWARF   = "dwarf"

	ConverterNative    = "native"
	ConverterSerdeConv = "serde_conv"
)

type Config struct {
	ELFPath      string
	DumpPath     string
	JSONPath     string
	PostcardPath string
	CompactPath  string

	// optional exports, skipped when empty
	PprofPath   string
	OTLPPath    string
	ListingPath string

	Source    string
	Converter string
	Objdump   string
	SerdeConv string

	Parse linetable.Options
}

// DefaultConfig reproduces the fixed layout of the kernel build tree.
func DefaultConfig() Config {
	return Config{
		ELFPath:      "build/kernel.elf",
		DumpPath:     linetable.DefaultDumpPath,
		JSONPath:     "build/ksymmap.json",
		PostcardPath: "build/ksymmap.pcrd",
		CompactPath:  "build/ksymmap.epcrd",
		Source:       SourceObjdump,
		Converter:    ConverterNative,
		Objdump:      linetable.DefaultObjdump,
		SerdeConv:    "serde_conv",
		Parse:        linetable.DefaultOptions(),
	}
}
