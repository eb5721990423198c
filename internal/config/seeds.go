package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"gopkg.in/yaml.v3"
)

// MarketSeed describes one market to register on a fresh exchange.
type MarketSeed struct {
	Base            string `yaml:"base"`
	BaseNameGeneric string `yaml:"base_name_generic"`
	Quote           string `yaml:"quote"`
	LotSize         uint64 `yaml:"lot_size"`
	TickSize        uint64 `yaml:"tick_size"`
	MinSize         uint64 `yaml:"min_size"`
	// Underwriter is the 1-based index of a seeded underwriter; generic
	// markets only.
	Underwriter uint64 `yaml:"underwriter"`
}

// Info converts the seed to market parameters.
func (s MarketSeed) Info() market.Info {
	info := market.Info{
		BaseType:        model.AssetType(s.Base),
		BaseNameGeneric: s.BaseNameGeneric,
		QuoteType:       model.AssetType(s.Quote),
		LotSize:         s.LotSize,
		TickSize:        s.TickSize,
		MinSize:         s.MinSize,
		UnderwriterID:   s.Underwriter,
	}
	if info.BaseType == "" && s.BaseNameGeneric != "" {
		info.BaseType = model.GenericAsset
	}
	return info
}

// Seeds is the content of a seed file.
type Seeds struct {
	Underwriters int          `yaml:"underwriters"`
	Custodians   int          `yaml:"custodians"`
	Markets      []MarketSeed `yaml:"markets"`
}

// LoadSeeds parses a seed file. Unknown keys are rejected.
func LoadSeeds(path string) (*Seeds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeeds(data)
}

func ParseSeeds(data []byte) (*Seeds, error) {
	var seeds Seeds
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seeds); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, m := range seeds.Markets {
		if m.Underwriter > uint64(seeds.Underwriters) {
			return nil, fmt.Errorf("market %d: underwriter %d is not seeded", i, m.Underwriter)
		}
	}
	return &seeds, nil
}
