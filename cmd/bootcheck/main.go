// Command bootcheck runs the CPU-feature preflight a real bootloader's
// protected-mode hand-off would perform before jumping into this
// kernel (spec.md 4.A's atomics and 4.D's page tables assume a baseline
// 32-bit CPUID-capable x86 processor; this kernel's boot path has no
// bootloader of its own to do that check, see cmd/kernel). It is a
// portable, host-side stand-in for the direct CPUID/CR4 probes a real
// kernel entry point would run, using golang.org/x/sys/cpu instead of
// inline assembly or a patched runtime.
package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/cpu"
)

// required lists the baseline CPU features this kernel's Go-hosted
// simulation assumes are present: SSE2/SSE3 because the Go runtime
// itself requires them on 386/amd64, and POPCNT because stats.Counter_t
// dumps (biscuit/src/stats/stats.go) are exactly the kind of bit-count
// workload that instruction accelerates.
func required() map[string]bool {
	return map[string]bool{
		"SSE2":   cpu.X86.HasSSE2,
		"SSE3":   cpu.X86.HasSSE3,
		"POPCNT": cpu.X86.HasPOPCNT,
	}
}

func main() {
	var missing []string
	for name, have := range required() {
		if !have {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "bootcheck: missing required CPU features: %v\n", missing)
		os.Exit(1)
	}
	fmt.Println("bootcheck: host CPU meets this kernel's baseline feature requirements")
}
