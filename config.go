package segcache

import (
	"time"

	"github.com/spf13/viper"
)

// Configuration keys, settable in a config file or as SEGCACHE_* env vars
// (the key upper-cased after the prefix, e.g. SEGCACHE_PROVIDER).
const (
	cfgProvider         = "provider"
	cfgReadTimeoutMs    = "read_timeout_ms"
	cfgLookupTimeoutMs  = "lookup_timeout_ms"
	cfgWriteTimeoutMs   = "write_timeout_ms"
	cfgScanTimeoutMs    = "scan_timeout_ms"
	cfgDensityThreshold = "rollup_density_threshold"
	cfgMaxIndexHeaders  = "max_index_headers"
	cfgEventQueueSize   = "event_queue_size"
)

// LoadConfig reads process-wide settings and converts them to Options.
// Settings come from SEGCACHE_* environment variables and, when path is
// non-empty, from the config file at path (any format viper supports).
// Explicit Options passed to New after these override them.
func LoadConfig(path string) ([]Option, error) {
	v := viper.New()
	v.SetEnvPrefix("SEGCACHE")
	v.AutomaticEnv()

	v.SetDefault(cfgProvider, "")
	v.SetDefault(cfgReadTimeoutMs, 0)
	v.SetDefault(cfgLookupTimeoutMs, 0)
	v.SetDefault(cfgWriteTimeoutMs, 0)
	v.SetDefault(cfgScanTimeoutMs, 0)
	v.SetDefault(cfgDensityThreshold, 0.5)
	v.SetDefault(cfgMaxIndexHeaders, 0)
	v.SetDefault(cfgEventQueueSize, DefaultEventQueueSize)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	opts := []Option{
		WithTimeouts(Timeouts{
			Read:   time.Duration(v.GetInt(cfgReadTimeoutMs)) * time.Millisecond,
			Lookup: time.Duration(v.GetInt(cfgLookupTimeoutMs)) * time.Millisecond,
			Write:  time.Duration(v.GetInt(cfgWriteTimeoutMs)) * time.Millisecond,
			Scan:   time.Duration(v.GetInt(cfgScanTimeoutMs)) * time.Millisecond,
		}),
		WithRollupDensityThreshold(v.GetFloat64(cfgDensityThreshold)),
		WithMaxIndexHeaders(v.GetInt(cfgMaxIndexHeaders)),
		WithEventQueueSize(v.GetInt(cfgEventQueueSize)),
	}
	if name := v.GetString(cfgProvider); name != "" {
		opts = append(opts, WithProviderName(name))
	}
	return opts, nil
}
