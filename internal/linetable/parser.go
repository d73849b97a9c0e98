package linetable

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/ohes/ksymtool/internal/symmap"
)

const (
	cuPrefix   = "CU: "
	fileSuffix = ":"

	// objdump rows that look like data but carry none
	columnHeader       = "File name"
	continuationSuffix = "[++]"
	endOfSequence      = "-"
)

type Options struct {
	// Threshold is the exclusive lower bound for kept addresses.
	Threshold uint64
	// Lenient reproduces the historical coercion of bad numbers instead of failing: a record with an
	// unparseable address is dropped and an unparseable line number becomes 0. Only 0x-prefixed hex
	// and plain decimal count as numbers; exponent, 0b and 0o forms are unparseable.
	Lenient bool
}

func DefaultOptions() Options {
	return Options{Threshold: symmap.DefaultThreshold}
}

type MalformedLineError struct {
	LineNo int
	Line   string
	Reason string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed line %d %q: %s", e.LineNo, e.Line, e.Reason)
}

// Parse builds a SymbolMap from an `objdump --dwarf=decodedline` listing.
func Parse(dump string, opts Options) (*symmap.SymbolMap, error) {
	return ParseLines(strings.Split(strings.TrimSpace(dump), "\n"), opts)
}

// ParseLines does a single forward pass over lines. "CU: <name>:" and "<name>:" lines select the
// current file; other non-blank lines are "<file> <line> <addr> ..." rows attributed to it. Rows
// before the first header are ignored.
func ParseLines(lines []string, opts Options) (*symmap.SymbolMap, error) {
	m := symmap.New()
	var file string
	haveFile := false
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, cuPrefix):
			file = ""
			if len(line) > len(cuPrefix) {
				file = strings.TrimSpace(line[len(cuPrefix) : len(line)-1])
			}
			haveFile = true
		case strings.HasSuffix(line, fileSuffix):
			file = strings.TrimSpace(strings.TrimSuffix(line, fileSuffix))
			haveFile = true
		case haveFile && strings.TrimSpace(line) != "":
			rec, ok, err := parseRow(line, opts.Lenient)
			if err != nil {
				return nil, &MalformedLineError{LineNo: i + 1, Line: line, Reason: err.Error()}
			}
			if ok && rec.Addr > opts.Threshold {
				m.Append(file, rec)
			}
		}
	}
	slog.Debug("Parsed line table", "files", m.Len(), "records", m.RecordCount())
	return m, nil
}

func parseRow(line string, lenient bool) (symmap.Record, bool, error) {
	fields := strings.Fields(line)
	if isColumnHeader(line) || (len(fields) == 1 && strings.HasSuffix(fields[0], continuationSuffix)) {
		return symmap.Record{}, false, nil
	}
	if len(fields) < 3 {
		if lenient {
			return symmap.Record{}, false, nil
		}
		return symmap.Record{}, false, fmt.Errorf("expected line number and address, got %d field(s)", len(fields))
	}
	lineTok, addrTok := fields[1], fields[2]

	addr, err := parseNumber(addrTok)
	if err != nil {
		if lenient {
			return symmap.Record{}, false, nil
		}
		return symmap.Record{}, false, fmt.Errorf("address %q: %w", addrTok, err)
	}

	if lineTok == endOfSequence && !lenient {
		return symmap.Record{}, false, nil
	}
	lineNo, err := parseLineNumber(lineTok)
	if err != nil {
		if lenient {
			return symmap.Record{Addr: addr}, true, nil
		}
		return symmap.Record{}, false, fmt.Errorf("line number %q: %w", lineTok, err)
	}
	return symmap.Record{Addr: addr, Line: lineNo}, true, nil
}

func isColumnHeader(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), columnHeader)
}

// parseNumber accepts 0x-prefixed hex or plain decimal.
func parseNumber(tok string) (uint64, error) {
	if rest, ok := strings.CutPrefix(strings.ToLower(tok), "0x"); ok {
		return strconv.ParseUint(rest, 16, 64)
	}
	return strconv.ParseUint(tok, 10, 64)
}

func parseLineNumber(tok string) (int32, error) {
	n, err := parseNumber(tok)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 {
		return 0, errors.New("out of range")
	}
	return int32(n), nil
}
