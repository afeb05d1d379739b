package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// BitDef mirrors the original tool's std::variant<uint64_t,
// vector<uint64_t>>: a single physical address bit index, or an ordered
// list of bit indices interpreted as an XOR group contributing to one
// output bit of a bank/row/column function.
type BitDef struct {
	Bits []uint
}

// UnmarshalJSON accepts either a bare integer or an array of integers.
func (b *BitDef) UnmarshalJSON(data []byte) error {
	var single uint
	if err := json.Unmarshal(data, &single); err == nil {
		b.Bits = []uint{single}
		return nil
	}
	var many []uint
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("config: bit definition must be a uint or an array of uints: %w", err)
	}
	b.Bits = many
	return nil
}

// MarshalJSON emits a bare integer for single-bit definitions and an
// array otherwise, round-tripping the original variant encoding.
func (b BitDef) MarshalJSON() ([]byte, error) {
	if len(b.Bits) == 1 {
		return json.Marshal(b.Bits[0])
	}
	return json.Marshal(b.Bits)
}

// EccsmithConfig is the JSON-decoded DRAM/device configuration plus the
// ambient knobs (memory size, hugetlbfs mount, RAS db path) the original
// split across BlacksmithConfig and ProgramArguments.
type EccsmithConfig struct {
	Name       string `json:"name"`
	Channels   uint   `json:"channels"`
	Dimms      uint   `json:"dimms"`
	Ranks      uint   `json:"ranks"`
	TotalBanks uint   `json:"total_banks"`

	RowBits  []BitDef `json:"row_bits"`
	ColBits  []BitDef `json:"col_bits"`
	BankBits []BitDef `json:"bank_bits"`

	MemorySize    uint64 `json:"memory_size"`
	DramaRounds   uint   `json:"drama_rounds"`
	Threshold     uint64 `json:"threshold"`
	ActsPerTrefi  uint   `json:"acts_per_trefi"`

	NumDramLocationsPerMapping uint `json:"num_dram_locations_per_mapping"`
	EffectivePatterns          uint `json:"effective_patterns"`

	HugetlbfsMount string `json:"hugetlbfs_mount"`
	RasDBPath      string `json:"ras_db_path"`

	// ConfigPath is not part of the JSON document; it is stamped in by
	// the CLI so a replay run can reload the same device configuration.
	ConfigPath string `json:"-"`
}

const (
	defaultHugetlbfsMount             = "/mnt/huge"
	defaultRasDBPath                  = "/var/lib/rasdaemon/ras-mc_event.db"
	defaultNumDramLocationsPerMapping = 3
	defaultEffectivePatterns          = 3
	defaultDramaRounds                = 10_000
)

// LoadConfig reads and validates a device configuration file, applying
// the same defaults the original tool's ProgramArguments/BlacksmithConfig
// pair applied.
func LoadConfig(path string) (*EccsmithConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	var cfg EccsmithConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if cfg.TotalBanks == 0 {
		return nil, fmt.Errorf("config: total_banks must be > 0")
	}
	if len(cfg.RowBits) == 0 || len(cfg.ColBits) == 0 || len(cfg.BankBits) == 0 {
		return nil, fmt.Errorf("config: row_bits, col_bits, and bank_bits must all be non-empty")
	}
	if cfg.HugetlbfsMount == "" {
		cfg.HugetlbfsMount = envOr("ECCSMITH_HUGETLBFS_MOUNT", defaultHugetlbfsMount)
	}
	if cfg.RasDBPath == "" {
		cfg.RasDBPath = envOr("ECCSMITH_RAS_DB_PATH", defaultRasDBPath)
	}
	if cfg.NumDramLocationsPerMapping == 0 {
		cfg.NumDramLocationsPerMapping = defaultNumDramLocationsPerMapping
	}
	if cfg.EffectivePatterns == 0 {
		cfg.EffectivePatterns = defaultEffectivePatterns
	}
	if cfg.DramaRounds == 0 {
		cfg.DramaRounds = defaultDramaRounds
	}
	if cfg.MemorySize == 0 {
		cfg.MemorySize = 1 << 30 // 1 GiB fallback
	}
	return &cfg, nil
}
