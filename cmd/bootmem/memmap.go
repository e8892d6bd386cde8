package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/TonyChenSmith/aos-sub001/kernel/mm/memmap"
	"github.com/google/subcommands"
	"gvisor.dev/gvisor/pkg/log"
)

// memmapCmd implements subcommands.Command for the "memmap" command.
type memmapCmd struct {
	layout string
}

// Name implements subcommands.Command.
func (*memmapCmd) Name() string {
	return "memmap"
}

// Synopsis implements subcommands.Command.
func (*memmapCmd) Synopsis() string {
	return "classify the firmware memory map of a layout"
}

// Usage implements subcommands.Command.
func (*memmapCmd) Usage() string {
	return "memmap -layout <file>\n"
}

// SetFlags implements subcommands.Command.
func (m *memmapCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.layout, "layout", "", "machine layout file (.yaml or .toml).")
}

// Execute implements subcommands.Command.Execute.
func (m *memmapCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if m.layout == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}

	layout, err := loadLayout(m.layout)
	if err != nil {
		log.Warningf("%v", err)
		return subcommands.ExitFailure
	}

	if err := printMemoryMap(os.Stdout, layout); err != nil {
		log.Warningf("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// printMemoryMap seeds a registry from the layout's memory map and writes it
// to w followed by per-type totals.
func printMemoryMap(w io.Writer, layout *Layout) error {
	memMap, err := layout.memoryMap()
	if err != nil {
		return err
	}

	var reg memmap.Registry
	if kerr := memmap.Seed(&reg, memMap); kerr != nil {
		return kerr
	}
	if kerr := reg.Verify(); kerr != nil {
		return kerr
	}

	reg.Dump(w)

	fmt.Fprintln(w)
	for typ := memmap.TypeReserved; typ <= memmap.TypeMMIO; typ++ {
		if pages := reg.Pages(typ); pages != 0 {
			fmt.Fprintf(w, "%-12s %10d pages\n", typ, pages)
		}
	}
	return nil
}
