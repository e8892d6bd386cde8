// Command bootmem replays the boot memory sequence against simulated physical
// memory. It builds the boot page tables for a machine layout read from a
// YAML or TOML file, performs the switch to virtual addressing through a
// simulated MMU and reports the resulting address space.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/kfmt"
	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(planCmd), "")
	subcommands.Register(new(memmapCmd), "")
	subcommands.Register(new(probeCmd), "")

	flag.Parse()

	kfmt.InitLogging(false)
	kfmt.SetOutputSink(os.Stderr)

	// There is no CPU to halt on the host.
	kernel.SetHaltFn(func() {
		os.Exit(int(subcommands.ExitFailure))
	})

	os.Exit(int(subcommands.Execute(context.Background())))
}
