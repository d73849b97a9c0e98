package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/ohes/ksymtool/internal/pipeline"
	"github.com/ohes/ksymtool/internal/tool"
)

type symmapParams struct {
	cfg       pipeline.Config
	threshold string
}

func addSymmapParams(cmd *kingpin.CmdClause) *symmapParams {
	p := &symmapParams{cfg: pipeline.DefaultConfig()}
	cmd.Flag("elf", "Kernel ELF with DWARF line info.").Default(p.cfg.ELFPath).StringVar(&p.cfg.ELFPath)
	cmd.Flag("dump", "Scratch file for the objdump listing.").Default(p.cfg.DumpPath).StringVar(&p.cfg.DumpPath)
	cmd.Flag("json", "JSON symbol map output.").Default(p.cfg.JSONPath).StringVar(&p.cfg.JSONPath)
	cmd.Flag("pcrd", "Postcard symbol map output.").Default(p.cfg.PostcardPath).StringVar(&p.cfg.PostcardPath)
	cmd.Flag("epcrd", "Compact postcard address table output.").Default(p.cfg.CompactPath).StringVar(&p.cfg.CompactPath)
	cmd.Flag("pprof", "Optional gzipped pprof export of the line table.").StringVar(&p.cfg.PprofPath)
	cmd.Flag("otlp", "Optional OTLP profiles export of the line table.").StringVar(&p.cfg.OTLPPath)
	cmd.Flag("listing", "Optional sorted text listing of address and location.").StringVar(&p.cfg.ListingPath)
	cmd.Flag("source", "Line table source.").Default(p.cfg.Source).EnumVar(&p.cfg.Source, pipeline.SourceObjdump, pipeline.SourceDWARF)
	cmd.Flag("converter", "Postcard encoder.").Default(p.cfg.Converter).EnumVar(&p.cfg.Converter, pipeline.ConverterNative, pipeline.ConverterSerdeConv)
	cmd.Flag("objdump", "objdump binary.").Default(p.cfg.Objdump).StringVar(&p.cfg.Objdump)
	cmd.Flag("serde-conv", "serde_conv binary.").Default(p.cfg.SerdeConv).StringVar(&p.cfg.SerdeConv)
	cmd.Flag("lenient", "Coerce malformed rows instead of failing.").BoolVar(&p.cfg.Parse.Lenient)
	cmd.Flag("threshold", "Only keep addresses above this value.").Default(fmt.Sprintf("0x%x", p.cfg.Parse.Threshold)).StringVar(&p.threshold)
	return p
}

func runSymmap(ctx context.Context, params *symmapParams) error {
	cfg := params.cfg
	threshold, err := strconv.ParseUint(params.threshold, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid threshold %q: %w", params.threshold, err)
	}
	cfg.Parse.Threshold = threshold

	p, err := pipeline.New(afero.NewOsFs(), tool.NewExecRunner(), cfg)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("Symbol map built", "files", res.Files, "records", res.Records, "outputs", len(res.Outputs))
	return nil
}
