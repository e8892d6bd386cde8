package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/boot"
	"github.com/TonyChenSmith/aos-sub001/kernel/kfmt"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/physmem"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/pmm"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/vmm"
	"github.com/google/subcommands"
	"gvisor.dev/gvisor/pkg/log"
)

var hugePolicies = map[string]vmm.HugePolicy{
	"auto": vmm.HugeAuto,
	"none": vmm.HugeNone,
	"2m":   vmm.Huge2M,
	"1g":   vmm.Huge1G,
}

// planCmd implements subcommands.Command for the "plan" command.
type planCmd struct {
	layout string
	huge   string
	debug  bool
}

// Name implements subcommands.Command.
func (*planCmd) Name() string {
	return "plan"
}

// Synopsis implements subcommands.Command.
func (*planCmd) Synopsis() string {
	return "build the boot address space for a layout and dump it"
}

// Usage implements subcommands.Command.
func (*planCmd) Usage() string {
	return "plan -layout <file> [-huge=auto|none|2m|1g] [-debug]\n"
}

// SetFlags implements subcommands.Command.
func (p *planCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.layout, "layout", "", "machine layout file (.yaml or .toml).")
	f.StringVar(&p.huge, "huge", "auto", "huge page policy: auto, none, 2m or 1g.")
	f.BoolVar(&p.debug, "debug", false, "enable debug logging and page pool checks.")
}

// Execute implements subcommands.Command.Execute.
func (p *planCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	huge, ok := hugePolicies[p.huge]
	if p.layout == "" || !ok {
		f.Usage()
		return subcommands.ExitUsageError
	}

	if p.debug {
		kfmt.InitLogging(true)
	}

	layout, err := loadLayout(p.layout)
	if err != nil {
		log.Warningf("%v", err)
		return subcommands.ExitFailure
	}

	if err := runPlan(os.Stdout, layout, huge, p.debug); err != nil {
		if kerr, ok := err.(*kernel.Error); ok {
			kernel.Panic(kerr)
		}
		log.Warningf("%v", err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}

// runPlan runs the boot memory sequence for layout on sparse simulated
// memory, checks every plan mapping through the MMU and writes a report to w.
func runPlan(w io.Writer, layout *Layout, huge vmm.HugePolicy, debug bool) error {
	params, err := layout.Params(huge, debug)
	if err != nil {
		return err
	}

	phys := physmem.NewSparse(0)
	mmu := vmm.NewMMU(phys, params.Features.FiveLevel(params.CR4))

	core, kerr := boot.Run(params, mmu, mmu)
	if kerr != nil {
		return kerr
	}

	for _, entry := range params.Plan {
		if err := verifyMapping(mmu, entry.Phys, entry.Virt, entry.Pages); err != nil {
			return fmt.Errorf("%s: %w", entry.Name, err)
		}
	}
	if err := verifyMapping(mmu, core.Pool.Translator().ToPhysical(core.Pool.Base()), core.Pool.Base(), 1); err != nil {
		return fmt.Errorf("page-pool: %w", err)
	}

	fmt.Fprintf(w, "features:  %s\n", params.Features)
	fmt.Fprintf(w, "levels:    %d\n", core.Tables.Levels())
	fmt.Fprintf(w, "cr3:       0x%x\n", params.TopTable)
	fmt.Fprintf(w, "page pool: 0x%x (%d of %d pages used)\n", core.Pool.Base(), pmm.PoolPages-core.Pool.FreePages(), pmm.PoolPages)
	fmt.Fprintf(w, "free:      0x%x (%d pages)\n\n", params.FreeRegion.Base, params.FreeRegion.Pages)

	fmt.Fprintln(w, "memory registry:")
	core.Registry.Dump(&kfmt.PrefixWriter{Sink: w, Prefix: []byte("  ")})
	if kerr := core.Registry.Verify(); kerr != nil {
		return kerr
	}

	fmt.Fprintln(w)
	core.Tables.Dump(w)
	return nil
}

// verifyMapping checks that the MMU translates every page of the virtual
// range to the expected physical page.
func verifyMapping(mmu *vmm.MMU, paddr, vaddr uintptr, pages uint64) (err error) {
	defer func() {
		if fault := recover(); fault != nil {
			kerr, ok := fault.(*kernel.Error)
			if !ok {
				panic(fault)
			}
			err = kerr
		}
	}()

	for page := uint64(0); page < pages; page++ {
		offset := uintptr(page) << mm.PageShift
		if got := mmu.Translate(vaddr+offset, false); got != paddr+offset {
			return fmt.Errorf("0x%x translates to 0x%x instead of 0x%x", vaddr+offset, got, paddr+offset)
		}
	}
	return nil
}
