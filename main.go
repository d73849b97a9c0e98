package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]), "Kernel symbol map tooling: line tables, lookups and boot timing.")
	app.HelpFlag.Short('h')
	verbose := app.Flag("verbose", "Enable debug logging.").Short('v').Bool()

	symmapCmd := app.Command("symmap", "Build the address-to-source symbol map of the kernel ELF.")
	symmapParams := addSymmapParams(symmapCmd)

	lookupCmd := app.Command("lookup", "Resolve addresses against a symbol map.")
	lookupParams := addLookupParams(lookupCmd)

	boottimeCmd := app.Command("boottime", "Boot the kernel in QEMU repeatedly and time each boot.")
	boottimeParams := addBoottimeParams(boottimeCmd)

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case symmapCmd.FullCommand():
		checkError(runSymmap(ctx, symmapParams))
	case lookupCmd.FullCommand():
		checkError(runLookup(os.Stdout, lookupParams))
	case boottimeCmd.FullCommand():
		checkError(runBoottime(ctx, boottimeParams))
	default:
		checkError(fmt.Errorf("unknown command %q", cmd))
	}
}

func checkError(err error) {
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
