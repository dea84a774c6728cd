// Package raid implements the redundancy engine (C2): chunking, striping,
// parity (XOR + GF(2^8)), online rebuild, and the per-device health
// monitor. Level 0/1/5/6 are the primitives; 10/01/50/60 and the Z-family
// are built as rotations/compositions of those primitives, per spec.
package raid

import (
	"github.com/r3e-network/warehouse-core/domain/raidmeta"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

// ValidateConfig wraps raidmeta.Config.Validate, translating plain errors
// into the core's discriminated error kind.
func ValidateConfig(cfg raidmeta.Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.InvalidConfiguration("raid_config", err.Error())
	}
	if cfg.ParityAlgorithm == "" {
		return nil
	}
	switch cfg.ParityAlgorithm {
	case raidmeta.ParityXOR, raidmeta.ParityReedSolomon:
	default:
		return errors.InvalidConfiguration("parity_algorithm", "must be xor or reed-solomon")
	}
	return nil
}

// WithDefaults fills in the spec's defaults for any zero-valued fields.
func WithDefaults(cfg raidmeta.Config) raidmeta.Config {
	if cfg.StripeSize <= 0 {
		cfg.StripeSize = raidmeta.DefaultStripeSize
	}
	if cfg.ParityAlgorithm == "" {
		cfg.ParityAlgorithm = raidmeta.ParityXOR
	}
	if cfg.MirrorCount <= 0 {
		cfg.MirrorCount = 2
	}
	return cfg
}
