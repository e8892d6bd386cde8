package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/TonyChenSmith/aos-sub001/kernel/boot"
	"github.com/TonyChenSmith/aos-sub001/kernel/cpu"
	"github.com/TonyChenSmith/aos-sub001/kernel/hal/efi"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/vmm"
	"gopkg.in/yaml.v3"
)

// descriptorStride matches the descriptor size reported by common firmware.
const descriptorStride = 48

// Address is a 64-bit address that is written as a string ("0x...") or as an
// integer in layout files.
type Address uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(string(text), 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", text, err)
	}
	*a = Address(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	return a.UnmarshalText([]byte(value.Value))
}

// Layout describes the machine state handed to the boot memory sequence.
type Layout struct {
	Features        FeatureLayout      `yaml:"features" toml:"features"`
	FreeRegion      RegionLayout       `yaml:"free_region" toml:"free_region"`
	PoolVirtualBase Address            `yaml:"pool_virtual_base" toml:"pool_virtual_base"`
	MemoryMap       []DescriptorLayout `yaml:"memory_map" toml:"memory_map"`
	Plan            []MappingLayout    `yaml:"plan" toml:"plan"`
}

// FeatureLayout lists the CPU paging features of the simulated machine.
type FeatureLayout struct {
	LA57        bool `yaml:"la57" toml:"la57"`
	Page1GB     bool `yaml:"page1gb" toml:"page1gb"`
	GlobalPages bool `yaml:"global_pages" toml:"global_pages"`
	NX          bool `yaml:"nx" toml:"nx"`

	// EnableLA57 sets CR4.LA57 before the tables are built.
	EnableLA57 bool `yaml:"enable_la57" toml:"enable_la57"`
}

// RegionLayout is the free region the page pool is carved from.
type RegionLayout struct {
	Base  Address `yaml:"base" toml:"base"`
	Pages uint64  `yaml:"pages" toml:"pages"`
}

// DescriptorLayout is one firmware memory map entry. Type holds an EFI
// memory type name such as "Conventional".
type DescriptorLayout struct {
	Type  string  `yaml:"type" toml:"type"`
	Start Address `yaml:"start" toml:"start"`
	Pages uint64  `yaml:"pages" toml:"pages"`
}

// MappingLayout is one boot plan entry. Attr uses the format of vmm.Attr's
// String method, e.g. "rw- global".
type MappingLayout struct {
	Name  string  `yaml:"name" toml:"name"`
	Phys  Address `yaml:"phys" toml:"phys"`
	Virt  Address `yaml:"virt" toml:"virt"`
	Pages uint64  `yaml:"pages" toml:"pages"`
	Attr  string  `yaml:"attr" toml:"attr"`
}

// loadLayout reads a layout file. The format is selected by the file
// extension.
func loadLayout(path string) (*Layout, error) {
	var layout Layout

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &layout); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, &layout); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported layout format %q", ext)
	}

	return &layout, nil
}

// memoryMap encodes the layout's memory map in the firmware's binary format.
func (l *Layout) memoryMap() (*efi.MemoryMap, error) {
	descs := make([]efi.MemoryDescriptor, 0, len(l.MemoryMap))
	for i, entry := range l.MemoryMap {
		typ, ok := efi.ParseMemoryType(entry.Type)
		if !ok {
			return nil, fmt.Errorf("memory map entry %d: unknown memory type %q", i, entry.Type)
		}
		descs = append(descs, efi.MemoryDescriptor{
			Type:          typ,
			PhysicalStart: uint64(entry.Start),
			NumberOfPages: entry.Pages,
		})
	}

	memMap, err := efi.EncodeMemoryMap(descs, descriptorStride)
	if err != nil {
		return nil, err
	}
	return memMap, nil
}

// Params converts the layout into boot parameters.
func (l *Layout) Params(huge vmm.HugePolicy, debug bool) (*boot.Params, error) {
	memMap, err := l.memoryMap()
	if err != nil {
		return nil, err
	}

	params := &boot.Params{
		FreeRegion: boot.Region{Base: uintptr(l.FreeRegion.Base), Pages: l.FreeRegion.Pages},
		Features: cpu.Features{
			LA57:        l.Features.LA57,
			Page1GB:     l.Features.Page1GB,
			GlobalPages: l.Features.GlobalPages,
			NX:          l.Features.NX,
		},
		MemoryMap:       memMap,
		PoolVirtualBase: uintptr(l.PoolVirtualBase),
		Huge:            huge,
		Debug:           debug,
	}

	if l.Features.EnableLA57 {
		params.CR4 |= cpu.CR4LA57
	}

	for _, entry := range l.Plan {
		attr, ok := vmm.ParseAttr(entry.Attr)
		if !ok {
			return nil, fmt.Errorf("plan entry %q: invalid attributes %q", entry.Name, entry.Attr)
		}
		params.Plan = append(params.Plan, boot.Mapping{
			Name:  entry.Name,
			Phys:  uintptr(entry.Phys),
			Virt:  uintptr(entry.Virt),
			Pages: entry.Pages,
			Attr:  attr,
		})
	}

	return params, nil
}
