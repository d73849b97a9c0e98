package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/ohes/ksymtool/internal/boottimer"
)

type boottimeParams struct {
	image       string
	addr        string
	runs        int
	qemu        string
	memory      string
	metricsAddr string
}

func addBoottimeParams(cmd *kingpin.CmdClause) *boottimeParams {
	p := &boottimeParams{}
	cmd.Flag("image", "Bootable kernel image.").Default("build/oh_es.iso").StringVar(&p.image)
	cmd.Flag("addr", "Address the debug console connects to.").Default(boottimer.DefaultAddr).StringVar(&p.addr)
	cmd.Flag("runs", "Number of boots to time, 0 runs until interrupted.").Default("0").IntVar(&p.runs)
	cmd.Flag("qemu", "QEMU system emulator binary.").Default("qemu-system-x86_64").StringVar(&p.qemu)
	cmd.Flag("memory", "Guest memory size.").Default("1G").StringVar(&p.memory)
	cmd.Flag("metrics-addr", "Serve Prometheus metrics on this address when set.").StringVar(&p.metricsAddr)
	return p
}

func runBoottime(ctx context.Context, params *boottimeParams) error {
	reg := prometheus.NewRegistry()

	qemu := boottimer.NewQEMU(params.image)
	qemu.Binary = params.qemu
	qemu.Memory = params.memory
	qemu.DebugconAddr = params.addr

	timer, err := boottimer.NewTimer(params.addr, qemu, reg)
	if err != nil {
		return err
	}

	if params.metricsAddr != "" {
		srv := &http.Server{
			Addr:              params.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	if err := timer.Start(); err != nil {
		return err
	}

	done := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case m, ok := <-timer.Results():
			if !ok {
				break loop
			}
			if m.MarkerSeen {
				slog.Info("Boot finished", "run", done+1, "elapsed_ms", m.Elapsed.Milliseconds())
			} else {
				slog.Warn("Connection closed without boot marker", "run", done+1)
			}
			done++
			if params.runs > 0 && done >= params.runs {
				break loop
			}
		}
	}
	return timer.Stop()
}
