package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DataPattern selects the fill used to initialize the victim arena before
// hammering.
type DataPattern int

const (
	DataZeroes DataPattern = iota
	DataOnes
	DataRandom
)

// fixedArenaBase pins the victim allocation at a fixed virtual address so
// that DRAM-address translation stays stable across runs, mirroring the
// original tool's hardcoded 0x2000000000 mapping address.
const fixedArenaBase = uintptr(0x2000000000)

// Memory owns the large, hugepage-backed victim arena that hammering
// targets and the scanner inspects.
type Memory struct {
	file      *os.File
	data      []byte
	size      uint64
	superpage bool
	seed      int64
}

// AllocateMemory opens (creating if necessary) a file under the
// hugetlbfs mount and maps it at a fixed address, matching the original
// Memory::allocate_memory.
func AllocateMemory(cfg *EccsmithConfig, useSuperpage bool) (*Memory, error) {
	path := cfg.HugetlbfsMount + "/buff"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("memory: open hugetlbfs backing file %q: %w", path, err)
	}
	if err := f.Truncate(int64(cfg.MemorySize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("memory: truncate %q to %d bytes: %w", path, cfg.MemorySize, err)
	}

	flags := uintptr(unix.MAP_SHARED | unix.MAP_FIXED)
	if useSuperpage {
		flags |= unix.MAP_HUGETLB
	}
	addr, _, errno := unix.Syscall6(unix.SYS_MMAP, fixedArenaBase, uintptr(cfg.MemorySize),
		uintptr(unix.PROT_READ|unix.PROT_WRITE), flags, f.Fd(), 0)
	if errno != 0 {
		f.Close()
		return nil, fmt.Errorf("memory: mmap %d bytes at %#x: %w", cfg.MemorySize, fixedArenaBase, errno)
	}
	bytesView := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(cfg.MemorySize))

	return &Memory{file: f, data: bytesView, size: cfg.MemorySize, superpage: useSuperpage}, nil
}

// BaseAddr returns the arena's fixed virtual base address.
func (m *Memory) BaseAddr() uintptr { return fixedArenaBase }

// Size returns the arena size in bytes.
func (m *Memory) Size() uint64 { return m.size }

// Initialize fills the arena with the requested pattern. DataRandom is
// seeded so the expected byte at any address is reproducible from the
// seed alone.
func (m *Memory) Initialize(pattern DataPattern, seed int64) {
	m.seed = seed
	switch pattern {
	case DataZeroes:
		for i := range m.data {
			m.data[i] = 0x00
		}
	case DataOnes:
		for i := range m.data {
			m.data[i] = 0xff
		}
	case DataRandom:
		rng := rand.New(rand.NewSource(seed))
		rng.Read(m.data)
	}
}

func (m *Memory) expectedByte(offset uint64, pattern DataPattern) byte {
	switch pattern {
	case DataZeroes:
		return 0x00
	case DataOnes:
		return 0xff
	default:
		// Reconstruct the deterministic random stream's byte at offset
		// without materializing the whole arena again: re-seed and
		// consume up to offset. Acceptable because scans happen over
		// small victim windows, not the whole arena.
		rng := rand.New(rand.NewSource(m.seed))
		buf := make([]byte, offset+1)
		rng.Read(buf)
		return buf[offset]
	}
}

// CheckMemory scans the rows around every aggressor used by mapping
// (agg ± window) for bytes that differ from the expected fill, recording
// a BitFlip for each and rewriting the arena back to the expected value
// unless reproducibility is requested (in which case the scan is
// restricted to rows that already have recorded flips and bytes are left
// untouched).
func (m *Memory) CheckMemory(mc MemConfiguration, mapping *PatternAddressMapper, pattern DataPattern, window int, reproducibility bool) []BitFlip {
	var flips []BitFlip
	rowsToCheck := map[int]bool{}
	if reproducibility {
		for _, round := range mapping.BitFlips {
			for _, f := range round {
				rowsToCheck[f.Row] = true
			}
		}
	} else {
		for _, row := range mapping.AggIDToRow {
			for d := -window; d <= window; d++ {
				rowsToCheck[row+d] = true
			}
		}
	}

	const colBytes = 1 << 12 // one row's worth of scanned columns, conservative default
	for row := range rowsToCheck {
		for col := 0; col < colBytes; col++ {
			addr := DRAMAddr{Bank: mapping.Bank, Row: row, Col: col}
			p := mc.ToVirt(addr, fixedArenaBase)
			offset := uintptr(p) - fixedArenaBase
			if offset >= uintptr(len(m.data)) {
				continue
			}
			actual := m.data[offset]
			expected := m.expectedByte(uint64(offset), pattern)
			if actual == expected {
				continue
			}
			diff := actual ^ expected
			for bit := 0; bit < 8; bit++ {
				if diff&(1<<uint(bit)) == 0 {
					continue
				}
				flips = append(flips, BitFlip{
					Address:      uintptr(p),
					PageOffset:   uint64(offset),
					Row:          row,
					BitIndex:     bit,
					ExpectedByte: expected,
					ActualByte:   actual,
					ObservedAt:   time.Now(),
				})
			}
			if !reproducibility {
				m.data[offset] = expected
			}
		}
	}
	return flips
}

// Close unmaps and closes the backing file.
func (m *Memory) Close() error {
	if len(m.data) > 0 {
		// The arena was mapped with a raw mmap syscall, so it is released the
		// same way: unix.Munmap only accepts slices returned by unix.Mmap.
		if _, _, errno := unix.Syscall(unix.SYS_MUNMAP, uintptr(unsafe.Pointer(&m.data[0])), uintptr(len(m.data)), 0); errno != 0 {
			return fmt.Errorf("memory: munmap: %w", errno)
		}
	}
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}
