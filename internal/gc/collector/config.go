package collector

import (
	"github.com/go-kit/log"
)

// Threshold policy defaults.
const (
	// DefaultThreshold is the number of live records that triggers the first
	// collection.
	DefaultThreshold = 100

	// DefaultUsedSpaceRatio is the fraction of the threshold that may stay
	// occupied after a collection before the threshold is raised.
	DefaultUsedSpaceRatio = 0.7
)

// Config configures a Collector.
//
// The zero value is usable: invalid or missing fields are replaced by the
// defaults when the collector is created.
type Config struct {
	// Threshold is the live record count above which an allocation runs a
	// collection. Default: 100.
	Threshold int

	// UsedSpaceRatio controls threshold growth. After a collection, if more
	// than Threshold*UsedSpaceRatio records survive, the threshold becomes
	// live/UsedSpaceRatio. Valid range (0, 1]. Default: 0.7.
	UsedSpaceRatio float64

	// Logger receives collection events. Default: no-op logger.
	Logger log.Logger

	// CheckConfinement makes every entry point verify that it runs on the
	// goroutine that first used the collector.
	CheckConfinement bool

	// RecordAllocSites captures the allocation stack of every record.
	RecordAllocSites bool
}

// DefaultConfig returns the default collector configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		UsedSpaceRatio: DefaultUsedSpaceRatio,
		Logger:         log.NewNopLogger(),
	}
}

// normalize replaces invalid values with defaults.
func (cfg Config) normalize() Config {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.UsedSpaceRatio <= 0 || cfg.UsedSpaceRatio > 1 {
		cfg.UsedSpaceRatio = DefaultUsedSpaceRatio
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	return cfg
}
