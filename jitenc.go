package main

import "fmt"

// Emitter accumulates x86-64 machine code byte by byte, following the
// teacher's own REX-prefix/ModRM/SIB construction style rather than
// driving an external assembler: each method below builds one
// instruction's encoding directly into the buffer.
type Emitter struct {
	buf []byte
}

func NewEmitter() *Emitter { return &Emitter{} }

func (e *Emitter) emit(b ...byte) { e.buf = append(e.buf, b...) }

func (e *Emitter) Bytes() []byte { return e.buf }

func (e *Emitter) Len() int { return len(e.buf) }

// rex builds a REX prefix: W selects 64-bit operands, R extends the
// ModRM.reg field, X extends SIB.index, B extends ModRM.rm/SIB.base.
func rex(w, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}

func le32(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

// memOperand emits the ModRM(+SIB)(+disp) bytes addressing [base+disp32],
// given base's 3-bit encoding (caller supplies the REX.B extension bit
// separately). rsp/r12 (encoding&7==4) require a SIB byte; rbp/r13
// (encoding&7==5) require at least disp8 even for a zero displacement.
func (e *Emitter) memOperand(reg Register, base Register, disp int32) {
	baseEnc := base.Encoding & 7
	var mod byte
	switch {
	case disp == 0 && !needsDisp8Pad(base.Encoding):
		mod = 0x00
	case disp >= -128 && disp <= 127:
		mod = 0x01 // disp8
	default:
		mod = 0x02 // disp32
	}
	e.emit(modrm(mod, reg.Encoding, baseEnc))
	if needsSIB(base.Encoding) {
		e.emit(0x24) // SIB: scale=0, index=none(100), base=rsp/r12
	}
	switch mod {
	case 0x01:
		e.emit(byte(int8(disp)))
	case 0x02:
		e.emit(le32(disp)...)
	}
}

// MovLoad emits `mov dstReg, [baseReg+disp]` — a 64-bit memory read,
// the core "touch this row" primitive.
func (e *Emitter) MovLoad(dst, base Register, disp int32) error {
	if dst.Size != 64 || base.Size != 64 {
		return fmt.Errorf("jitenc: MovLoad requires 64-bit registers")
	}
	e.emit(rex(true, dst.Encoding >= 8, false, base.Encoding >= 8))
	e.emit(0x8B)
	e.memOperand(dst, base, disp)
	return nil
}

// Clflushopt emits `clflushopt [baseReg+disp]`.
func (e *Emitter) Clflushopt(base Register, disp int32) error {
	if base.Size != 64 {
		return fmt.Errorf("jitenc: Clflushopt requires a 64-bit base register")
	}
	e.emit(0x66)
	if base.Encoding >= 8 {
		e.emit(rex(false, false, false, true))
	}
	e.emit(0x0F, 0xAE)
	e.memOperand(Register{Encoding: 7}, base, disp) // /7 opcode extension in ModRM.reg
	return nil
}

// Mfence emits `mfence`.
func (e *Emitter) Mfence() { e.emit(0x0F, 0xAE, 0xF0) }

// Lfence emits `lfence`.
func (e *Emitter) Lfence() { e.emit(0x0F, 0xAE, 0xE8) }

// Rdtscp emits `rdtscp` (writes EDX:EAX, ECX).
func (e *Emitter) Rdtscp() { e.emit(0x0F, 0x01, 0xF9) }

// Push emits `push reg` (64-bit).
func (e *Emitter) Push(reg Register) {
	if reg.Encoding >= 8 {
		e.emit(rex(false, false, false, true))
	}
	e.emit(0x50 + (reg.Encoding & 7))
}

// Pop emits `pop reg` (64-bit).
func (e *Emitter) Pop(reg Register) {
	if reg.Encoding >= 8 {
		e.emit(rex(false, false, false, true))
	}
	e.emit(0x58 + (reg.Encoding & 7))
}

// Ret emits `ret`.
func (e *Emitter) Ret() { e.emit(0xC3) }

// MovImm64 emits `mov reg, imm64`.
func (e *Emitter) MovImm64(reg Register, imm uint64) {
	e.emit(rex(true, false, false, reg.Encoding >= 8))
	e.emit(0xB8 + (reg.Encoding & 7))
	for i := 0; i < 8; i++ {
		e.emit(byte(imm >> (8 * i)))
	}
}

// SubImm32 emits `sub reg, imm32` for a 64-bit register.
func (e *Emitter) SubImm32(reg Register, imm int32) {
	e.emit(rex(true, false, false, reg.Encoding >= 8))
	e.emit(0x81)
	e.emit(modrm(0x03, 5, reg.Encoding&7)) // /5 = SUB
	e.emit(le32(imm)...)
}

// CmpImm32 emits `cmp reg, imm32` for a 64-bit register.
func (e *Emitter) CmpImm32(reg Register, imm int32) {
	e.emit(rex(true, false, false, reg.Encoding >= 8))
	e.emit(0x81)
	e.emit(modrm(0x03, 7, reg.Encoding&7)) // /7 = CMP
	e.emit(le32(imm)...)
}

// MovStore emits `mov [baseReg+disp], srcReg` — a 64-bit memory write.
func (e *Emitter) MovStore(base, src Register, disp int32) error {
	if base.Size != 64 || src.Size != 64 {
		return fmt.Errorf("jitenc: MovStore requires 64-bit registers")
	}
	e.emit(rex(true, src.Encoding >= 8, false, base.Encoding >= 8))
	e.emit(0x89)
	e.memOperand(src, base, disp)
	return nil
}

// MovRegReg emits `mov dst, src` for two 64-bit registers.
func (e *Emitter) MovRegReg(dst, src Register) {
	e.emit(rex(true, dst.Encoding >= 8, false, src.Encoding >= 8))
	e.emit(0x8B)
	e.emit(modrm(0x03, dst.Encoding, src.Encoding))
}

// SubRegReg emits `sub dst, src` (dst -= src) for two 64-bit registers.
func (e *Emitter) SubRegReg(dst, src Register) {
	e.emit(rex(true, dst.Encoding >= 8, false, src.Encoding >= 8))
	e.emit(0x2B)
	e.emit(modrm(0x03, dst.Encoding, src.Encoding))
}

// AddRegReg emits `add dst, src` (dst += src) for two 64-bit registers.
func (e *Emitter) AddRegReg(dst, src Register) {
	e.emit(rex(true, dst.Encoding >= 8, false, src.Encoding >= 8))
	e.emit(0x03)
	e.emit(modrm(0x03, dst.Encoding, src.Encoding))
}

// Label marks the current buffer position for a later backward jump.
type Label int

func (e *Emitter) Here() Label { return Label(len(e.buf)) }

// JmpBack emits a `jmp rel32` to a previously recorded label (used for
// polling/busy-wait loops). Returns an error if the target lies after the
// current position (forward jumps use JccForward instead).
func (e *Emitter) JmpBack(target Label) error {
	if int(target) > len(e.buf) {
		return fmt.Errorf("jitenc: JmpBack target is not in the past")
	}
	e.emit(0xE9)
	rel := int32(int(target) - (len(e.buf) + 4))
	e.emit(le32(rel)...)
	return nil
}

// JccCond names a conditional-jump condition code.
type JccCond byte

const (
	JB  JccCond = 0x82 // below (unsigned <), used for "not yet past threshold"
	JAE JccCond = 0x83 // above or equal (unsigned >=)
	JNE JccCond = 0x85
	JE  JccCond = 0x84
)

// JccBack emits a near conditional jump (0F 8x rel32) to a prior label.
func (e *Emitter) JccBack(cond JccCond, target Label) error {
	if int(target) > len(e.buf) {
		return fmt.Errorf("jitenc: JccBack target is not in the past")
	}
	e.emit(0x0F, byte(cond))
	rel := int32(int(target) - (len(e.buf) + 4))
	e.emit(le32(rel)...)
	return nil
}

// patch is a placeholder recorded at emission time and fixed up once the
// jump target is known (used for forward branches out of a loop body).
type patch struct {
	pos int // offset of the rel32 field
}

// JccForward emits a conditional jump with a zeroed rel32 placeholder and
// returns a patch to resolve once the forward target is reached.
func (e *Emitter) JccForward(cond JccCond) patch {
	e.emit(0x0F, byte(cond))
	pos := len(e.buf)
	e.emit(0, 0, 0, 0)
	return patch{pos: pos}
}

// Resolve fixes up a forward jump's rel32 field to target the emitter's
// current position.
func (e *Emitter) Resolve(p patch) {
	rel := int32(len(e.buf) - (p.pos + 4))
	copy(e.buf[p.pos:p.pos+4], le32(rel))
}
