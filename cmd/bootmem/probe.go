package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/TonyChenSmith/aos-sub001/kernel/cpu"
	"github.com/google/subcommands"
)

// probeCmd implements subcommands.Command for the "probe" command.
type probeCmd struct{}

// Name implements subcommands.Command.
func (*probeCmd) Name() string {
	return "probe"
}

// Synopsis implements subcommands.Command.
func (*probeCmd) Synopsis() string {
	return "print the paging features of the host CPU"
}

// Usage implements subcommands.Command.
func (*probeCmd) Usage() string {
	return "probe\n"
}

// SetFlags implements subcommands.Command.
func (*probeCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*probeCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	features := cpu.HostFeatures()
	fmt.Fprintln(os.Stdout, features)

	// CR4 is not readable outside ring 0; report what the builder would
	// choose if LA57 were enabled.
	fmt.Fprintf(os.Stdout, "max levels: %d\n", 4+btoi(features.FiveLevel(cpu.CR4LA57)))
	return subcommands.ExitSuccess
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
