package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TonyChenSmith/aos-sub001/kernel/mm/vmm"
	"github.com/google/go-cmp/cmp"
)

func mustLoadLayout(t *testing.T, path string) *Layout {
	t.Helper()

	layout, err := loadLayout(path)
	if err != nil {
		t.Fatal(err)
	}
	return layout
}

func TestLoadLayout(t *testing.T) {
	fromYAML := mustLoadLayout(t, "testdata/layout.yaml")
	fromTOML := mustLoadLayout(t, "testdata/layout.toml")

	if diff := cmp.Diff(fromYAML, fromTOML); diff != "" {
		t.Fatalf("YAML and TOML layouts differ (-yaml +toml):\n%s", diff)
	}

	if exp := Address(0xffff800000000000); fromYAML.PoolVirtualBase != exp {
		t.Errorf("expected pool virtual base 0x%x; got 0x%x", exp, fromYAML.PoolVirtualBase)
	}

	exp := MappingLayout{Name: "kernel-stack", Phys: 0x400000, Pages: 16, Attr: "rw-"}
	if diff := cmp.Diff(exp, fromYAML.Plan[2]); diff != "" {
		t.Errorf("unexpected plan entry (-want +got):\n%s", diff)
	}
}

func TestLoadLayoutErrors(t *testing.T) {
	dir := t.TempDir()

	write := func(name, contents string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	specs := []struct {
		name string
		path string
	}{
		{"unknown format", write("layout.json", "{}")},
		{"missing file", filepath.Join(dir, "missing.yaml")},
		{"bad yaml address", write("bad.yaml", "pool_virtual_base: nowhere\n")},
		{"bad toml address", write("bad.toml", "pool_virtual_base = \"nowhere\"\n")},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			if _, err := loadLayout(spec.path); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLayoutParams(t *testing.T) {
	layout := mustLoadLayout(t, "testdata/layout.yaml")
	layout.Features.EnableLA57 = true
	layout.Features.LA57 = true

	params, err := layout.Params(vmm.Huge2M, true)
	if err != nil {
		t.Fatal(err)
	}

	if !params.Features.FiveLevel(params.CR4) {
		t.Error("expected LA57 to be enabled")
	}

	if params.MemoryMap.Len() != len(layout.MemoryMap) {
		t.Errorf("expected %d memory map entries; got %d", len(layout.MemoryMap), params.MemoryMap.Len())
	}

	if got, exp := params.Plan[3].Attr, vmm.AttrRW|vmm.CacheWriteCombining; got != exp {
		t.Errorf("expected framebuffer attributes %v; got %v", exp, got)
	}

	if !params.Debug || params.Huge != vmm.Huge2M {
		t.Error("expected debug and huge page options to be carried over")
	}

	t.Run("bad attributes", func(t *testing.T) {
		layout := mustLoadLayout(t, "testdata/layout.yaml")
		layout.Plan[0].Attr = "-wx"
		if _, err := layout.Params(vmm.HugeAuto, false); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("bad memory type", func(t *testing.T) {
		layout := mustLoadLayout(t, "testdata/layout.yaml")
		layout.MemoryMap[0].Type = "Free"
		if _, err := layout.Params(vmm.HugeAuto, false); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestRunPlan(t *testing.T) {
	for _, policy := range []vmm.HugePolicy{vmm.HugeAuto, vmm.HugeNone} {
		t.Run(policy.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := runPlan(&buf, mustLoadLayout(t, "testdata/layout.yaml"), policy, false); err != nil {
				t.Fatal(err)
			}

			out := buf.String()
			for _, exp := range []string{
				"levels:    4\n",
				"cr3:       0x6fff000\n",
				"page pool: 0xffff800000000000",
				"free:      0x1000000 (22528 pages)\n",
				"kernel-data\n",
				"PML4 at 0x6fff000\n",
				"-> 0xfd000000",
			} {
				if !strings.Contains(out, exp) {
					t.Errorf("expected output to contain %q; got:\n%s", exp, out)
				}
			}
		})
	}

	t.Run("1GiB pages without support", func(t *testing.T) {
		var buf bytes.Buffer
		if err := runPlan(&buf, mustLoadLayout(t, "testdata/layout.yaml"), vmm.Huge1G, false); err != vmm.ErrUnsupportedTopology {
			t.Fatalf("expected ErrUnsupportedTopology; got %v", err)
		}
	})
}

func TestPrintMemoryMap(t *testing.T) {
	var buf bytes.Buffer
	if err := printMemoryMap(&buf, mustLoadLayout(t, "testdata/layout.yaml")); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, exp := range []string{
		"  0 [0x0000000000000000-0x00000000000a0000)      160 pages available\n",
		"  2 [0x0000000000100000-0x0000000007f00000)    32256 pages available\n",
		"acpi-nvs",
		"mmio",
	} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected output to contain %q; got:\n%s", exp, out)
		}
	}
}
