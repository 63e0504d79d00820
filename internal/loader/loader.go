// Package loader loads a RISC-V ELF64 kernel image into physical memory.
// ELF parsing is an out-of-scope external collaborator: this package is a
// thin wrapper around github.com/yalue/elf_reader, mirroring the original implementation's
// load_elf_phys (_examples/original_source's vmstate/mod.rs), which walks
// PT_LOAD program headers and copies each segment's file bytes to its
// virtual address.
package loader

import (
	"fmt"

	"github.com/yalue/elf_reader"

	"github.com/smoynes/rv64/internal/addr"
)

// Segment is one PT_LOAD segment's bytes and the address they load at.
type Segment struct {
	Addr addr.Address
	Data []byte
}

// Image is a parsed kernel: its entry point and the segments to copy into
// physical memory before any hart starts fetching.
type Image struct {
	Entry    addr.Address
	Segments []Segment
}

const ptLoad = 1

// Load parses an ELF64 little-endian RISC-V image from data and returns
// its entry point and loadable segments.
func Load(data []byte) (*Image, error) {
	f, err := elf_reader.ParseELFFile(data)
	if err != nil {
		return nil, fmt.Errorf("loader: parse ELF: %w", err)
	}

	count, err := f.GetProgramHeaderCount()
	if err != nil {
		return nil, fmt.Errorf("loader: program header count: %w", err)
	}

	img := &Image{Entry: addr.Address(f.GetEntryPoint())}

	for i := uint16(0); i < count; i++ {
		info, err := f.GetProgramHeaderInfo(i)
		if err != nil {
			return nil, fmt.Errorf("loader: program header %d: %w", i, err)
		}

		if info.Type != ptLoad || info.MemSize == 0 {
			continue
		}

		data, err := f.GetProgramHeaderBytes(i)
		if err != nil {
			return nil, fmt.Errorf("loader: program header %d bytes: %w", i, err)
		}

		img.Segments = append(img.Segments, Segment{
			Addr: addr.Address(info.VirtualAddress),
			Data: data,
		})
	}

	return img, nil
}
