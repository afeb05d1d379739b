package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBitDefUnmarshalSingle(t *testing.T) {
	var b BitDef
	if err := json.Unmarshal([]byte("6"), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(b.Bits) != 1 || b.Bits[0] != 6 {
		t.Errorf("got %+v, want [6]", b.Bits)
	}
}

func TestBitDefUnmarshalArray(t *testing.T) {
	var b BitDef
	if err := json.Unmarshal([]byte("[6, 13, 18]"), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []uint{6, 13, 18}
	if len(b.Bits) != len(want) {
		t.Fatalf("got %+v, want %+v", b.Bits, want)
	}
	for i := range want {
		if b.Bits[i] != want[i] {
			t.Errorf("index %d: got %d want %d", i, b.Bits[i], want[i])
		}
	}
}

func TestBitDefRoundTrip(t *testing.T) {
	single := BitDef{Bits: []uint{9}}
	data, err := json.Marshal(single)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "9" {
		t.Errorf("single-bit marshal: got %s want 9", data)
	}

	group := BitDef{Bits: []uint{1, 2, 3}}
	data, err = json.Marshal(group)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[1,2,3]" {
		t.Errorf("group marshal: got %s want [1,2,3]", data)
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	doc := `{
		"name": "test-device",
		"channels": 1, "dimms": 1, "ranks": 1, "total_banks": 16,
		"row_bits": [18, 19, 20],
		"col_bits": [3, 4, 5],
		"bank_bits": [6, 13, 14, 17]
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.NumDramLocationsPerMapping != defaultNumDramLocationsPerMapping {
		t.Errorf("num_dram_locations_per_mapping: got %d want %d", cfg.NumDramLocationsPerMapping, defaultNumDramLocationsPerMapping)
	}
	if cfg.EffectivePatterns != defaultEffectivePatterns {
		t.Errorf("effective_patterns: got %d want %d", cfg.EffectivePatterns, defaultEffectivePatterns)
	}
	if cfg.HugetlbfsMount != defaultHugetlbfsMount {
		t.Errorf("hugetlbfs_mount: got %q want %q", cfg.HugetlbfsMount, defaultHugetlbfsMount)
	}
	if cfg.MemorySize == 0 {
		t.Error("memory_size should have a non-zero fallback")
	}
}

func TestLoadConfigRejectsMissingBankBits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	doc := `{"name": "bad", "total_banks": 4, "row_bits": [1], "col_bits": [2]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected an error for missing bank_bits")
	}
}
