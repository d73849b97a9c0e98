package boottimer

import (
	"strings"
	"testing"
)

func TestQEMU_Args(t *testing.T) {
	t.Run("without_kvm_falls_back_to_tcg", func(t *testing.T) {
		q := NewQEMU("build/oh_es.iso")
		q.KVMDevice = "/nonexistent/kvm"
		got := strings.Join(q.Args(), " ")
		want := "-hda build/oh_es.iso -s -debugcon telnet:localhost:3400 -global isa-debugcon.iobase=0x402 -accel tcg -monitor none -serial stdio -m 1G"
		if got != want {
			t.Fatalf("unexpected args:\n got: %s\nwant: %s", got, want)
		}
	})

	t.Run("accessible_device_enables_kvm", func(t *testing.T) {
		q := NewQEMU("build/oh_es.iso")
		q.KVMDevice = t.TempDir() // directories are readable and writable by their owner
		got := strings.Join(q.Args(), " ")
		if !strings.Contains(got, "-accel kvm -cpu host") {
			t.Fatalf("expected kvm acceleration, got: %s", got)
		}
	})
}
