package exporter

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ohes/ksymtool/internal/symmap"
)

// WriteListing writes one "0x<addr> <file>:<line>" row per table entry, in address order.
func WriteListing(t *symmap.Table, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range t.Entries() {
		if _, err := fmt.Fprintf(bw, "0x%x %s\n", e.Addr, e.Location); err != nil {
			return err
		}
	}
	return bw.Flush()
}
