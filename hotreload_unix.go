//go:build linux

package main

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CodeBuffer is an executable page holding one jitted hammering program. It
// is allocated read-write, filled with machine code, then mprotect'd to
// read-execute before invocation — a W^X discipline the page holds for its
// whole lifetime, unlike the original tool's always-RWX mapping.
type CodeBuffer struct {
	addr uintptr
	size int
	exec bool
}

// AllocateCodeBuffer reserves a page-aligned, anonymous, read-write mapping
// large enough to hold size bytes of machine code.
func AllocateCodeBuffer(size int) (*CodeBuffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("jit: invalid buffer size %d", size)
	}
	pageSize := unix.Getpagesize()
	allocSize := ((size + pageSize - 1) / pageSize) * pageSize

	data, err := unix.Mmap(-1, 0, allocSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap %d bytes: %w", allocSize, err)
	}
	return &CodeBuffer{addr: uintptr(unsafe.Pointer(&data[0])), size: allocSize}, nil
}

// slice views the buffer's full allocation as a byte slice.
func (b *CodeBuffer) slice() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(b.addr)), b.size)
}

// Load copies code into the buffer and flips it from writable to
// executable. The buffer must not already be sealed.
func (b *CodeBuffer) Load(code []byte) error {
	if b.exec {
		return fmt.Errorf("jit: buffer already sealed executable")
	}
	if len(code) > b.size {
		return fmt.Errorf("jit: code length %d exceeds buffer %d", len(code), b.size)
	}
	copy(b.slice(), code)
	if err := unix.Mprotect(b.slice(), unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("jit: mprotect exec: %w", err)
	}
	b.exec = true
	return nil
}

// Run invokes the buffer's contents as a niladic function with no return
// value, via the well-known funcval cast: a Go func value is a pointer to
// a pointer to code, so we build that shape over our own executable page.
func (b *CodeBuffer) Run() error {
	if !b.exec {
		return fmt.Errorf("jit: buffer not sealed executable")
	}
	entry := b.addr
	funcval := &entry
	fn := *(*func())(unsafe.Pointer(&funcval))
	fn()
	return nil
}

// Address returns the buffer's executable base address.
func (b *CodeBuffer) Address() uintptr {
	return b.addr
}

// Free releases the underlying mapping. The buffer must not be used again.
func (b *CodeBuffer) Free() error {
	if b.addr == 0 {
		return nil
	}
	if err := unix.Munmap(b.slice()); err != nil {
		return fmt.Errorf("jit: munmap: %w", err)
	}
	b.addr, b.size = 0, 0
	return nil
}
