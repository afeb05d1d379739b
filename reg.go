package main

// x86-64 general-purpose register table used by the jit encoder. Only the
// 64-bit registers are needed: every hammering primitive operates on full
// addresses and full timestamp-counter halves.

type Register struct {
	Name     string
	Size     int   // size in bits
	Encoding uint8 // ModRM/SIB register field encoding, 0-15
}

var x86_64Registers = map[string]Register{
	"rax": {Name: "rax", Size: 64, Encoding: 0},
	"rcx": {Name: "rcx", Size: 64, Encoding: 1},
	"rdx": {Name: "rdx", Size: 64, Encoding: 2},
	"rbx": {Name: "rbx", Size: 64, Encoding: 3},
	"rsp": {Name: "rsp", Size: 64, Encoding: 4},
	"rbp": {Name: "rbp", Size: 64, Encoding: 5},
	"rsi": {Name: "rsi", Size: 64, Encoding: 6},
	"rdi": {Name: "rdi", Size: 64, Encoding: 7},
	"r8":  {Name: "r8", Size: 64, Encoding: 8},
	"r9":  {Name: "r9", Size: 64, Encoding: 9},
	"r10": {Name: "r10", Size: 64, Encoding: 10},
	"r11": {Name: "r11", Size: 64, Encoding: 11},
	"r12": {Name: "r12", Size: 64, Encoding: 12},
	"r13": {Name: "r13", Size: 64, Encoding: 13},
	"r14": {Name: "r14", Size: 64, Encoding: 14},
	"r15": {Name: "r15", Size: 64, Encoding: 15},

	// 32-bit aliases, needed because RDTSCP returns its halves in eax/edx.
	"eax": {Name: "eax", Size: 32, Encoding: 0},
	"edx": {Name: "edx", Size: 32, Encoding: 2},
	"ecx": {Name: "ecx", Size: 32, Encoding: 1},
}

// GetRegister returns register info by name.
func GetRegister(regName string) (Register, bool) {
	reg, ok := x86_64Registers[regName]
	return reg, ok
}

// needsSIB reports whether the register's encoding requires a SIB byte to
// address [reg] or [reg+disp] — true for rsp and r12, whose ModRM r/m
// field value of 4 is reserved for the SIB-follows encoding.
func needsSIB(encoding uint8) bool {
	return encoding&0x7 == 4
}

// needsDisp8Pad reports whether the register's encoding requires at least
// a one-byte displacement to address [reg] with no offset — true for rbp
// and r13, whose ModRM mod=00,r/m=101 encoding is reserved for RIP-relative
// addressing.
func needsDisp8Pad(encoding uint8) bool {
	return encoding&0x7 == 5
}
