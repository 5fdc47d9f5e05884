package wavepool

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/wavepool/wavepool/service/locator"
	"github.com/wavepool/wavepool/service/pool"
	"github.com/wavepool/wavepool/service/unit"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the engine configuration. It
// can be populated from JSON, YAML, environment-driven loaders, etc. The
// zero value is useful; nested fields inherit their package defaults.
type Config struct {
	Pool    pool.Config   `json:"pool" yaml:"pool"`
	Unit    UnitConfig    `json:"unit" yaml:"unit"`
	Locator LocatorConfig `json:"locator" yaml:"locator"`
}

// UnitConfig selects the execution unit flavour and transport sizing.
type UnitConfig struct {
	Style  unit.Style `json:"style" yaml:"style"`
	Buffer int        `json:"buffer" yaml:"buffer"`
}

// LocatorConfig controls how worker module locations are resolved.
type LocatorConfig struct {
	Convention   locator.Convention `json:"convention" yaml:"convention"`
	VolumeNaming bool               `json:"volumeNaming" yaml:"volumeNaming"`
}

// DefaultConfig returns a Config populated with the package defaults.
// Pool.Units is left at zero so the engine can size it to the logical core
// count at construction time. Callers may modify the returned struct before
// passing it to New via WithConfig.
func DefaultConfig() *Config {
	return &Config{
		Pool: pool.Config{
			PollInterval: pool.DefaultPollInterval,
		},
		Unit: UnitConfig{
			Style: unit.StyleChannel,
		},
		Locator: LocatorConfig{
			Convention: locator.ConventionPath,
		},
	}
}

// Validate returns an error describing invalid settings or nil. Pool
// settings are validated after defaulting, inside New.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Unit.Style {
	case "", unit.StyleChannel, unit.StylePort:
	default:
		return fmt.Errorf("unknown unit style: %v", c.Unit.Style)
	}
	switch c.Locator.Convention {
	case "", locator.ConventionPath, locator.ConventionURL:
	default:
		return fmt.Errorf("unknown locator convention: %v", c.Locator.Convention)
	}
	if c.Unit.Buffer < 0 {
		return fmt.Errorf("unit.buffer must not be negative, had %v", c.Unit.Buffer)
	}
	return nil
}

// LoadConfig reads a YAML configuration document from the supplied URL. Any
// scheme the storage service understands works, including file://, embed://
// and mem://; scheme-specific options such as an embed.FS are passed
// through.
func LoadConfig(ctx context.Context, URL string, options ...storage.Option) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
	}
	return ret, nil
}
