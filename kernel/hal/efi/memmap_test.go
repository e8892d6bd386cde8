package efi

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryTypeString(t *testing.T) {
	specs := map[MemoryType]string{
		ReservedMemoryType:     "Reserved",
		ConventionalMemory:     "Conventional",
		ACPIMemoryNVS:          "ACPINVS",
		UnacceptedMemoryType:   "Unaccepted",
		MemoryType(0x70000000): "MemoryType(1879048192)",
	}

	for typ, exp := range specs {
		if got := typ.String(); got != exp {
			t.Errorf("expected %q; got %q", exp, got)
		}

		parsed, ok := ParseMemoryType(exp)
		if typ < maxMemoryType && (!ok || parsed != typ) {
			t.Errorf("expected ParseMemoryType(%q) to return %d; got %d, %t", exp, typ, parsed, ok)
		}
	}

	if _, ok := ParseMemoryType("bogus"); ok {
		t.Error("expected ParseMemoryType to reject unknown names")
	}
}

func TestMemoryMapVisit(t *testing.T) {
	// Firmware-style layout with a 48-byte stride
	const stride = 48
	words := make([]uint64, 3*stride/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)

	raw := []struct {
		typ   uint32
		start uint64
		pages uint64
		attr  uint64
	}{
		{uint32(ConventionalMemory), 0x0, 0x9f, 0xf},
		{uint32(ACPIReclaimMemory), 0x7fee0000, 0x10, 0xf},
		{uint32(MemoryMappedIO), 0xfec00000, 0x1, 0x8000000000000001},
	}

	for i, r := range raw {
		desc := buf[i*stride:]
		binary.LittleEndian.PutUint32(desc[0:], r.typ)
		binary.LittleEndian.PutUint64(desc[8:], r.start)
		binary.LittleEndian.PutUint64(desc[24:], r.pages)
		binary.LittleEndian.PutUint64(desc[32:], r.attr)
		// vendor extension bytes past the known layout
		binary.LittleEndian.PutUint64(desc[40:], 0xdeadbeef)
	}

	m, err := NewMemoryMap(buf, stride)
	if err != nil {
		t.Fatal(err)
	}

	if got := m.Len(); got != len(raw) {
		t.Fatalf("expected %d descriptors; got %d", len(raw), got)
	}

	var visited []MemoryDescriptor
	m.Visit(func(desc *MemoryDescriptor) bool {
		visited = append(visited, *desc)
		return true
	})

	exp := []MemoryDescriptor{
		{Type: ConventionalMemory, PhysicalStart: 0x0, NumberOfPages: 0x9f, Attribute: 0xf},
		{Type: ACPIReclaimMemory, PhysicalStart: 0x7fee0000, NumberOfPages: 0x10, Attribute: 0xf},
		{Type: MemoryMappedIO, PhysicalStart: 0xfec00000, NumberOfPages: 0x1, Attribute: 0x8000000000000001},
	}

	if diff := cmp.Diff(exp, visited, cmp.AllowUnexported(MemoryDescriptor{})); diff != "" {
		t.Fatalf("unexpected descriptors (-want +got):\n%s", diff)
	}

	t.Run("visitor aborts", func(t *testing.T) {
		var count int
		m.Visit(func(*MemoryDescriptor) bool {
			count++
			return false
		})

		if count != 1 {
			t.Fatalf("expected visitor to be invoked once; got %d", count)
		}
	})
}

func TestEncodeMemoryMap(t *testing.T) {
	descs := []MemoryDescriptor{
		{Type: LoaderCode, PhysicalStart: 0x100000, NumberOfPages: 0x20},
		{Type: BootServicesData, PhysicalStart: 0x200000, NumberOfPages: 0x100},
	}

	m, err := EncodeMemoryMap(descs, 56)
	if err != nil {
		t.Fatal(err)
	}

	var visited []MemoryDescriptor
	m.Visit(func(desc *MemoryDescriptor) bool {
		visited = append(visited, *desc)
		return true
	})

	if diff := cmp.Diff(descs, visited, cmp.AllowUnexported(MemoryDescriptor{})); diff != "" {
		t.Fatalf("unexpected descriptors (-want +got):\n%s", diff)
	}

	for _, size := range []uintptr{0, 32, 44} {
		if _, err := EncodeMemoryMap(descs, size); err != errBadDescriptorSize {
			t.Errorf("expected errBadDescriptorSize for descriptor size %d; got %v", size, err)
		}
	}

	if m, err := EncodeMemoryMap(nil, 48); err != nil || m.Len() != 0 {
		t.Fatalf("expected an empty map; got %v", err)
	}
}
