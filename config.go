package dnstraverse

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML shape loaded by --config, applied as an overlay
// before CLI flags (which always win over the file). Most fields are
// pointers so that a field absent from the file (nil) is distinguishable
// from an explicit false/zero. Type and RootServer are parsed but Apply
// does not use them.
type FileConfig struct {
	Type        string   `yaml:"type"`
	RootServer  string   `yaml:"root_server"`
	AllRoots    *bool    `yaml:"all_root_servers"`
	UDPSize     *uint16  `yaml:"udp_size"`
	AllowTCP    *bool    `yaml:"allow_tcp"`
	AlwaysTCP   *bool    `yaml:"always_tcp"`
	MaxDepth    *int     `yaml:"max_depth"`
	Retries     *int     `yaml:"retries"`
	FollowAAAA  *bool    `yaml:"follow_aaaa"`
	Fast        *bool    `yaml:"fast"`
	Timeout     *string  `yaml:"timeout"`
	GeoIPDB     string   `yaml:"geoip_db"`
	ExportDOT   string   `yaml:"export_dot"`
}

// LoadFileConfig reads and parses a YAML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// Apply overlays the file's set fields onto cfg, returning the result. CLI
// flags are applied by the caller afterwards so they always take
// precedence over the file.
func (fc FileConfig) Apply(cfg Config) Config {
	if fc.AllRoots != nil {
		cfg.AllRoots = *fc.AllRoots
	}
	if fc.UDPSize != nil {
		cfg.UDPSize = *fc.UDPSize
	}
	if fc.AllowTCP != nil {
		cfg.AllowTCP = *fc.AllowTCP
	}
	if fc.AlwaysTCP != nil {
		cfg.AlwaysTCP = *fc.AlwaysTCP
	}
	if fc.MaxDepth != nil {
		cfg.MaxDepth = *fc.MaxDepth
	}
	if fc.Retries != nil {
		cfg.Retries = *fc.Retries
	}
	if fc.FollowAAAA != nil {
		cfg.FollowAAAA = *fc.FollowAAAA
	}
	if fc.Fast != nil {
		cfg.Fast = *fc.Fast
	}
	if fc.Timeout != nil {
		if d, err := time.ParseDuration(*fc.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	return cfg
}
