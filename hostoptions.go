package harness

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// HostOptions are the settings shared by every invocation on this host.
type HostOptions struct {
	ConcurrentFlasherLimit int                `toml:"concurrent_flasher_limit"`
	ShardWorkers           int                `toml:"shard_workers"`
	ConfigDirs             []string           `toml:"config_dirs"`
	Devices                []string           `toml:"devices"`
	KeyStore               KeyStoreOptions    `toml:"keystore"`
	LogSaver               ObjectStoreOptions `toml:"log_saver"`
}

type KeyStoreOptions struct {
	RedisURL string `toml:"redis_url"`
	Prefix   string `toml:"prefix"`
}

// ObjectStoreOptions configure the object-store log saver.
type ObjectStoreOptions struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

func (o ObjectStoreOptions) Enabled() bool {
	return o.Endpoint != "" && o.Bucket != ""
}

// LoadHostOptions decodes a host options file. Keys the file sets that no
// option knows about are rejected.
func LoadHostOptions(path string) (*HostOptions, error) {
	opts := new(HostOptions)
	md, err := toml.DecodeFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read host options %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown host options in %s: %v", path, undecoded)
	}
	return opts, nil
}
