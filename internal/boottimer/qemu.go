package boottimer

import (
	"context"
	"log/slog"
	"os/exec"

	"golang.org/x/sys/unix"
)

type QEMU struct {
	Binary       string
	Image        string
	DebugconAddr string
	Memory       string
	KVMDevice    string
}

func NewQEMU(image string) *QEMU {
	return &QEMU{
		Binary:       "qemu-system-x86_64",
		Image:        image,
		DebugconAddr: DefaultAddr,
		Memory:       "1G",
		KVMDevice:    "/dev/kvm",
	}
}

func (q *QEMU) Args() []string {
	args := []string{
		"-hda", q.Image,
		"-s",
		"-debugcon", "telnet:" + q.DebugconAddr,
		"-global", "isa-debugcon.iobase=0x402",
	}
	if q.kvmAvailable() {
		args = append(args, "-accel", "kvm", "-cpu", "host")
	} else {
		args = append(args, "-accel", "tcg")
	}
	return append(args, "-monitor", "none", "-serial", "stdio", "-m", q.Memory)
}

func (q *QEMU) kvmAvailable() bool {
	return q.KVMDevice != "" && unix.Access(q.KVMDevice, unix.R_OK|unix.W_OK) == nil
}

// Launch starts the emulator without waiting for it; the guest ends the run itself by shutting
// down, which closes the debug console.
func (q *QEMU) Launch(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, q.Binary, q.Args()...)
	if err := cmd.Start(); err != nil {
		return err
	}
	slog.Debug("Launched emulator", "pid", cmd.Process.Pid, "image", q.Image)
	go func() {
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			slog.Warn("Emulator exited with error", "error", err)
		}
	}()
	return nil
}
