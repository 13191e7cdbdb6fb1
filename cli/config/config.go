package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/pithecene-io/cinebridge/types"
)

// Config represents a cinebridge.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Key      KeyConfig                  `yaml:"key"`
	Resolver ResolverConfig             `yaml:"resolver"`
	Player   PlayerConfig               `yaml:"player"`
	Proxies  map[string]ProxyPoolConfig `yaml:"proxies"`
	Proxy    ProxySelection             `yaml:"proxy"`
	Adapter  AdapterConfig              `yaml:"adapter"`
	Storage  StorageConfig              `yaml:"storage"`
	Policy   PolicyConfig               `yaml:"policy"`
	Server   ServerConfig               `yaml:"server"`
}

// KeyConfig holds the envelope key material.
//
// Either Key and Nonce are given in Encoding, or Secret (with optional Salt
// and Info) is expanded with HKDF-SHA256.
type KeyConfig struct {
	Key           string `yaml:"key"`
	Nonce         string `yaml:"nonce"`
	Encoding      string `yaml:"encoding"`
	TagLengthBits int    `yaml:"tag_length_bits"`
	Secret        string `yaml:"secret"`
	Salt          string `yaml:"salt"`
	Info          string `yaml:"info"`
}

// ResolverConfig holds envelope fetch defaults.
type ResolverConfig struct {
	Suffix      string            `yaml:"suffix"`
	Placeholder string            `yaml:"placeholder"`
	Timeout     Duration          `yaml:"timeout"`
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// PlayerConfig holds player defaults.
type PlayerConfig struct {
	Autoplay      bool     `yaml:"autoplay"`
	LoaderTimeout Duration `yaml:"loader_timeout"`
}

// StorageConfig holds audit storage defaults.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig holds audit write policy defaults.
type PolicyConfig struct {
	Name          string `yaml:"name"`
	BufferRecords int    `yaml:"buffer_records"`
}

// ProxyPoolConfig is a proxy pool definition within the config file.
// Name is derived from the map key, not stored in the struct.
type ProxyPoolConfig struct {
	Strategy  types.ProxyStrategy   `yaml:"strategy"`
	Endpoints []types.ProxyEndpoint `yaml:"endpoints"`
	Sticky    *ProxyStickyConfig    `yaml:"sticky,omitempty"`
}

// ProxyStickyConfig is the sticky section of a proxy pool.
type ProxyStickyConfig struct {
	Scope types.ProxyStickyScope `yaml:"scope"`
	TTLMs *int64                 `yaml:"ttl_ms,omitempty"`
}

// ProxySelection holds proxy selection defaults from the config file.
type ProxySelection struct {
	Pool string `yaml:"pool"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type         string            `yaml:"type"`
	URL          string            `yaml:"url"`
	Channel      string            `yaml:"channel,omitempty"`
	Stream       string            `yaml:"stream,omitempty"`
	StreamMaxLen int64             `yaml:"stream_max_len,omitempty"`
	Secret       string            `yaml:"secret,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Timeout      Duration          `yaml:"timeout,omitempty"`
	Retries      *int              `yaml:"retries,omitempty"`
}

// ServerConfig holds envelope server defaults.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	Root string `yaml:"root"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ProxyPools converts the map-keyed proxy pool config into a sorted slice
// of types.ProxyPool. Sorting by name ensures deterministic ordering.
func (c *Config) ProxyPools() []types.ProxyPool {
	if len(c.Proxies) == 0 {
		return nil
	}

	names := make([]string, 0, len(c.Proxies))
	for name := range c.Proxies {
		names = append(names, name)
	}
	sort.Strings(names)

	pools := make([]types.ProxyPool, 0, len(names))
	for _, name := range names {
		pc := c.Proxies[name]
		pool := types.ProxyPool{
			Name:      name,
			Strategy:  pc.Strategy,
			Endpoints: pc.Endpoints,
		}
		if pc.Sticky != nil {
			pool.Sticky = &types.ProxySticky{Scope: pc.Sticky.Scope, TTLMs: pc.Sticky.TTLMs}
		}
		pools = append(pools, pool)
	}
	return pools
}
