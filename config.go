package harness

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-harness/flags"
)

// Config holds the application configuration
type Config struct {
	ConfigName             string        // Bundled config name or descriptor path
	Args                   []string      // Option tokens applied to the configuration
	ConfigDirs             []string      // Directories searched for bundled configs
	LogDir                 string        // Directory invocation logs are saved under
	RunInterval            time.Duration // Interval between invocations
	RunOnce                bool          // Exit after one invocation
	ShardWorkers           int           // Maximum number of invocations running at once
	ConcurrentFlasherLimit int           // Host-wide flashing limit, 0 is unlimited
	Devices                []string      // Serials of the devices invocations run on
	KeyStore               KeyStoreOptions
	ObjectStore            ObjectStoreOptions
	HealthzAddr            string              // Healthz listen address, empty disables it
	Metrics                opmetrics.CLIConfig // Prometheus endpoint, served when enabled
	DryRun                 bool
	Log                    log.Logger
}

// MetricsAddr is the metrics listen address, empty when metrics are disabled.
func (c *Config) MetricsAddr() string {
	if !c.Metrics.Enabled {
		return ""
	}
	return net.JoinHostPort(c.Metrics.ListenAddr, strconv.Itoa(c.Metrics.ListenPort))
}

// NewConfig creates a new Config from cli context. Host options are read
// first; flags set on the command line override them.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	configName := ctx.String(flags.Config.Name)
	if configName == "" {
		return nil, errors.New("configuration name is required")
	}

	host := new(HostOptions)
	if path := ctx.String(flags.HostConfig.Name); path != "" {
		var err error
		host, err = LoadHostOptions(path)
		if err != nil {
			return nil, err
		}
	}

	args := strings.Fields(ctx.String(flags.Args.Name))
	args = append(args, ctx.Args().Slice()...)

	configDirs := host.ConfigDirs
	if ctx.IsSet(flags.ConfigDirs.Name) {
		configDirs = ctx.StringSlice(flags.ConfigDirs.Name)
	}
	absDirs := make([]string, 0, len(configDirs))
	for _, dir := range configDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for config directory '%s': %w", dir, err)
		}
		absDirs = append(absDirs, abs)
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err := filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	flasherLimit := host.ConcurrentFlasherLimit
	if ctx.IsSet(flags.ConcurrentFlasherLimit.Name) || flasherLimit == 0 {
		flasherLimit = ctx.Int(flags.ConcurrentFlasherLimit.Name)
	}
	shardWorkers := host.ShardWorkers
	if ctx.IsSet(flags.ShardWorkers.Name) || shardWorkers == 0 {
		shardWorkers = ctx.Int(flags.ShardWorkers.Name)
	}
	devices := host.Devices
	if ctx.IsSet(flags.Devices.Name) {
		devices = ctx.StringSlice(flags.Devices.Name)
	}

	keyStore := host.KeyStore
	if ctx.IsSet(flags.KeyStoreRedisURL.Name) {
		keyStore.RedisURL = ctx.String(flags.KeyStoreRedisURL.Name)
	}
	if ctx.IsSet(flags.KeyStorePrefix.Name) {
		keyStore.Prefix = ctx.String(flags.KeyStorePrefix.Name)
	}

	objectStore := host.LogSaver
	overrideString(ctx, flags.ObjectStoreEndpoint, &objectStore.Endpoint)
	overrideString(ctx, flags.ObjectStoreBucket, &objectStore.Bucket)
	overrideString(ctx, flags.ObjectStoreAccessKey, &objectStore.AccessKey)
	overrideString(ctx, flags.ObjectStoreSecretKey, &objectStore.SecretKey)
	if ctx.IsSet(flags.ObjectStoreUseSSL.Name) {
		objectStore.UseSSL = ctx.Bool(flags.ObjectStoreUseSSL.Name)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run interval must not be negative: %s", runInterval)
	}

	return &Config{
		ConfigName:             configName,
		Args:                   args,
		ConfigDirs:             absDirs,
		LogDir:                 logDir,
		RunInterval:            runInterval,
		RunOnce:                runInterval == 0,
		ShardWorkers:           shardWorkers,
		ConcurrentFlasherLimit: flasherLimit,
		Devices:                devices,
		KeyStore:               keyStore,
		ObjectStore:            objectStore,
		HealthzAddr:            ctx.String(flags.HealthzAddr.Name),
		Metrics:                metricsCfg,
		DryRun:                 ctx.Bool(flags.DryRun.Name),
		Log:                    log,
	}, nil
}

func overrideString(ctx *cli.Context, flag *cli.StringFlag, dst *string) {
	if ctx.IsSet(flag.Name) {
		*dst = ctx.String(flag.Name)
	}
}
