package main

import (
	"bytes"
	"testing"
)

func TestEmitterFixedOpcodes(t *testing.T) {
	cases := []struct {
		name string
		emit func(e *Emitter)
		want []byte
	}{
		{"mfence", func(e *Emitter) { e.Mfence() }, []byte{0x0F, 0xAE, 0xF0}},
		{"lfence", func(e *Emitter) { e.Lfence() }, []byte{0x0F, 0xAE, 0xE8}},
		{"rdtscp", func(e *Emitter) { e.Rdtscp() }, []byte{0x0F, 0x01, 0xF9}},
		{"ret", func(e *Emitter) { e.Ret() }, []byte{0xC3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEmitter()
			tc.emit(e)
			if !bytes.Equal(e.Bytes(), tc.want) {
				t.Errorf("%s: got % x want % x", tc.name, e.Bytes(), tc.want)
			}
		})
	}
}

func TestMovLoadPlainBase(t *testing.T) {
	rax, _ := GetRegister("rax")
	rbx, _ := GetRegister("rbx")
	e := NewEmitter()
	if err := e.MovLoad(rax, rbx, 0); err != nil {
		t.Fatalf("MovLoad: %v", err)
	}
	want := []byte{0x48, 0x8B, 0x03}
	if !bytes.Equal(e.Bytes(), want) {
		t.Errorf("got % x want % x", e.Bytes(), want)
	}
}

func TestMovLoadNeedsSIB(t *testing.T) {
	rax, _ := GetRegister("rax")
	rsp, _ := GetRegister("rsp")
	e := NewEmitter()
	if err := e.MovLoad(rax, rsp, 0); err != nil {
		t.Fatalf("MovLoad: %v", err)
	}
	// rsp as base requires a SIB byte (0x24) even with no displacement.
	want := []byte{0x48, 0x8B, 0x04, 0x24}
	if !bytes.Equal(e.Bytes(), want) {
		t.Errorf("got % x want % x", e.Bytes(), want)
	}
}

func TestMovLoadRbpBaseForcesDisp8(t *testing.T) {
	rax, _ := GetRegister("rax")
	rbp, _ := GetRegister("rbp")
	e := NewEmitter()
	if err := e.MovLoad(rax, rbp, 0); err != nil {
		t.Fatalf("MovLoad: %v", err)
	}
	// rbp as base with disp=0 would otherwise collide with the
	// RIP-relative encoding, so a zero disp8 is forced.
	want := []byte{0x48, 0x8B, 0x45, 0x00}
	if !bytes.Equal(e.Bytes(), want) {
		t.Errorf("got % x want % x", e.Bytes(), want)
	}
}

func TestMovLoadRejectsNon64Bit(t *testing.T) {
	eax, _ := GetRegister("eax")
	rbx, _ := GetRegister("rbx")
	e := NewEmitter()
	if err := e.MovLoad(eax, rbx, 0); err == nil {
		t.Error("expected error for 32-bit destination register")
	}
}

func TestClflushoptPlainBase(t *testing.T) {
	rbx, _ := GetRegister("rbx")
	e := NewEmitter()
	if err := e.Clflushopt(rbx, 0); err != nil {
		t.Fatalf("Clflushopt: %v", err)
	}
	want := []byte{0x66, 0x0F, 0xAE, 0x3B}
	if !bytes.Equal(e.Bytes(), want) {
		t.Errorf("got % x want % x", e.Bytes(), want)
	}
}

func TestClflushoptExtendedBaseKeepsRexAdjacentToOpcode(t *testing.T) {
	// base=r9 needs REX.B; the REX prefix must immediately precede the
	// 0F escape byte, with the mandatory 0x66 prefix ahead of it, or the
	// decoder drops REX.B and targets rcx instead of r9.
	r9, _ := GetRegister("r9")
	e := NewEmitter()
	if err := e.Clflushopt(r9, 0); err != nil {
		t.Fatalf("Clflushopt: %v", err)
	}
	want := []byte{0x66, 0x41, 0x0F, 0xAE, 0x39}
	if !bytes.Equal(e.Bytes(), want) {
		t.Errorf("got % x want % x", e.Bytes(), want)
	}
}

func TestJccBackRejectsForwardTarget(t *testing.T) {
	e := NewEmitter()
	e.Mfence()
	future := Label(100)
	if err := e.JccBack(JNE, future); err == nil {
		t.Error("expected error for a target past the current position")
	}
}

func TestResolveForwardPatch(t *testing.T) {
	e := NewEmitter()
	p := e.JccForward(JE)
	e.Mfence()
	e.Resolve(p)
	// Resolve runs after the mfence, so the rel32 field should skip exactly
	// the 3 mfence bytes and land at the end of the buffer.
	rel := int32(e.Bytes()[2]) | int32(e.Bytes()[3])<<8 | int32(e.Bytes()[4])<<16 | int32(e.Bytes()[5])<<24
	if rel != 3 {
		t.Errorf("expected rel32 of 3 (jump skips the mfence), got %d", rel)
	}
}
