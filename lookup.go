package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/ohes/ksymtool/internal/pipeline"
)

const unknownLocation = "???"

type lookupParams struct {
	mapPath string
	addrs   []string
}

func addLookupParams(cmd *kingpin.CmdClause) *lookupParams {
	p := &lookupParams{}
	cmd.Arg("map", "Symbol map (.json, .pcrd, .epcrd or .cpost).").Required().StringVar(&p.mapPath)
	cmd.Arg("addr", "Addresses to resolve, hex with 0x or decimal.").Required().StringsVar(&p.addrs)
	return p
}

func runLookup(w io.Writer, params *lookupParams) error {
	table, err := pipeline.LoadTable(afero.NewOsFs(), params.mapPath)
	if err != nil {
		return err
	}
	for _, a := range params.addrs {
		addr, err := strconv.ParseUint(a, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", a, err)
		}
		loc, err := table.Lookup(addr)
		if err != nil {
			loc = unknownLocation
		}
		if _, err := fmt.Fprintf(w, "0x%x %s\n", addr, loc); err != nil {
			return err
		}
	}
	return nil
}
