package main

import (
	"fmt"
	"runtime"
	"unsafe"
)

// FlushingStrategy controls when a cache line is flushed relative to the
// load that touched it.
type FlushingStrategy int

const (
	FlushEarliestPossible FlushingStrategy = iota
	FlushLatestPossible
)

// FencingStrategy controls when memory fences are inserted into the
// hammering body.
type FencingStrategy int

const (
	FenceOmit FencingStrategy = iota
	FenceLatestPossible
)

// CodeJitter emits and executes machine code realizing a hammering
// sequence or a timing measurement. Register usage deliberately avoids
// R14 and R15: Go's internal calling convention reserves R14 for the
// goroutine pointer, and jitted code that clobbered it would corrupt the
// runtime's view of the current goroutine on return.
type CodeJitter struct {
	scratch []byte // 8-byte pinned scratch word jitted code writes results into
}

func NewCodeJitter() *CodeJitter {
	return &CodeJitter{scratch: make([]byte, 8)}
}

func (j *CodeJitter) scratchAddr() uintptr {
	return uintptr(unsafe.Pointer(&j.scratch[0]))
}

func (j *CodeJitter) readScratch() uint64 {
	return uint64(j.scratch[0]) | uint64(j.scratch[1])<<8 | uint64(j.scratch[2])<<16 | uint64(j.scratch[3])<<24 |
		uint64(j.scratch[4])<<32 | uint64(j.scratch[5])<<40 | uint64(j.scratch[6])<<48 | uint64(j.scratch[7])<<56
}

func mustReg(name string) Register {
	r, ok := GetRegister(name)
	if !ok {
		panic("jitter: unknown register " + name)
	}
	return r
}

// MeasurePair times rounds back-to-back accesses to a and b, bracketed by
// mfence/rdtscp and followed by clflushopt, exactly as the original
// tool's measure_time did, and returns the mean cycle count per round (0
// when rounds is 0).
func (j *CodeJitter) MeasurePair(a, b uintptr, rounds int) uint64 {
	rax, rbx, rdx := mustReg("rax"), mustReg("rbx"), mustReg("rdx")
	r8, r9, r10, r11, r13 := mustReg("r8"), mustReg("r9"), mustReg("r10"), mustReg("r11"), mustReg("r13")

	e := NewEmitter()
	e.Push(rbx)
	e.MovImm64(rbx, uint64(a))
	e.MovImm64(r8, uint64(b))
	e.MovImm64(r9, uint64(j.scratchAddr()))
	e.MovImm64(r13, uint64(rounds))
	e.MovImm64(r11, 0)

	loopStart := e.Here()
	e.Mfence()
	e.MovLoad(rax, rbx, 0)
	e.MovLoad(rdx, r8, 0)
	e.Rdtscp()
	e.MovRegReg(r10, rax) // before
	e.MovLoad(rax, rbx, 0)
	e.MovLoad(rdx, r8, 0)
	e.Mfence()
	e.Rdtscp()
	e.SubRegReg(rax, r10) // rax = after - before
	e.AddRegReg(r11, rax)
	e.Clflushopt(rbx, 0)
	e.Clflushopt(r8, 0)
	e.SubImm32(r13, 1)
	e.CmpImm32(r13, 0)
	if err := e.JccBack(JNE, loopStart); err != nil {
		panic(err)
	}
	e.MovStore(r9, r11, 0)
	e.Pop(rbx)
	e.Ret()

	j.run(e.Bytes())
	if rounds == 0 {
		return 0
	}
	return j.readScratch() / uint64(rounds)
}

// hammerProgram describes the resolved inputs to BuildHammeringProgram.
type hammerProgram struct {
	Accesses       []unsafe.Pointer
	ActsPerTrefi   int
	Flushing       FlushingStrategy
	Fencing        FencingStrategy
	SyncEachRef    bool
	SyncAggressors []unsafe.Pointer
	Threshold      uint64
	TotalActs      int
	BasePeriod     int
}

// BuildHammeringProgram emits the straight-line hammering body described
// in the code-jitter design: an optional preamble refresh-sync loop over
// the sync aggressors, then the access sequence with flushing/fencing
// applied per the chosen strategies, periodically re-synced if requested.
func (j *CodeJitter) BuildHammeringProgram(p hammerProgram) []byte {
	rax, rbx := mustReg("rax"), mustReg("rbx")
	rdx, rsi := mustReg("rdx"), mustReg("rsi")
	r8, r9, r10, r11 := mustReg("r8"), mustReg("r9"), mustReg("r10"), mustReg("r11")

	e := NewEmitter()
	e.Push(rbx)

	emitSyncLoop := func() {
		if len(p.SyncAggressors) < 2 {
			return
		}
		a, b := p.SyncAggressors[0], p.SyncAggressors[1]
		e.MovImm64(rbx, uint64(uintptr(a)))
		e.MovImm64(r8, uint64(uintptr(b)))
		loop := e.Here()
		e.Mfence()
		e.MovLoad(rax, rbx, 0)
		e.MovLoad(rdx, r8, 0)
		e.Rdtscp()
		e.MovRegReg(r10, rax)
		e.MovLoad(rax, rbx, 0)
		e.MovLoad(rdx, r8, 0)
		e.Mfence()
		e.Rdtscp()
		e.SubRegReg(rax, r10)
		e.Clflushopt(rbx, 0)
		e.Clflushopt(r8, 0)
		e.CmpImm32(rax, int32(p.Threshold))
		if err := e.JccBack(JB, loop); err != nil {
			panic(err)
		}
	}

	emitSyncLoop()

	sinceRef := 0
	accessesEmitted := 0
	var pending []unsafe.Pointer // FlushLatestPossible: loads not yet flushed
	for accessesEmitted < p.TotalActs {
		for _, addr := range p.Accesses {
			if accessesEmitted >= p.TotalActs {
				break
			}
			e.MovImm64(r9, uint64(uintptr(addr)))
			e.MovLoad(rsi, r9, 0)
			accessesEmitted++
			sinceRef++

			if p.Flushing == FlushEarliestPossible {
				e.Clflushopt(r9, 0)
			} else {
				pending = append(pending, addr)
			}
			if p.Flushing == FlushLatestPossible && accessesEmitted%p.BasePeriod == 0 {
				for _, f := range pending {
					e.MovImm64(r11, uint64(uintptr(f)))
					e.Clflushopt(r11, 0)
				}
				pending = pending[:0]
			}
			if p.Fencing == FenceLatestPossible && accessesEmitted%p.BasePeriod == 0 {
				e.Mfence()
			}
			if p.ActsPerTrefi > 0 && sinceRef >= p.ActsPerTrefi {
				sinceRef = 0
				if p.SyncEachRef {
					emitSyncLoop()
				}
			}
		}
		if p.Flushing == FlushLatestPossible {
			for _, addr := range pending {
				e.MovImm64(r11, uint64(uintptr(addr)))
				e.Clflushopt(r11, 0)
			}
			pending = pending[:0]
		}
	}
	e.Pop(rbx)
	e.Ret()
	return e.Bytes()
}

// Hammer loads and runs a hammering program once.
func (j *CodeJitter) Hammer(program []byte) error {
	return j.run(program)
}

func (j *CodeJitter) run(code []byte) error {
	buf, err := AllocateCodeBuffer(len(code))
	if err != nil {
		return fmt.Errorf("jitter: allocate code buffer: %w", err)
	}
	defer buf.Free()
	if err := buf.Load(code); err != nil {
		return fmt.Errorf("jitter: load code: %w", err)
	}
	if err := buf.Run(); err != nil {
		return fmt.Errorf("jitter: run code: %w", err)
	}
	runtime.KeepAlive(j.scratch)
	return nil
}
