package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_HARNESS"

var (
	Config = &cli.StringFlag{
		Name:     "config",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:    "Configuration to run: a bundled config name or a descriptor path",
	}
	ConfigDirs = &cli.StringSliceFlag{
		Name:    "config-dir",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG_DIR"),
		Usage:   "Directory searched for bundled configs. Can be repeated.",
	}
	Args = &cli.StringFlag{
		Name:    "args",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ARGS"),
		Usage:   "Option tokens applied to the configuration (eg. '--num-tests 3 --loop')",
	}
	HostConfig = &cli.StringFlag{
		Name:    "host-config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HOST_CONFIG"),
		Usage:   "Path to a TOML file with host options",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory invocation logs are saved under",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between invocations (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ShardWorkers = &cli.IntFlag{
		Name:    "shard-workers",
		Value:   8,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHARD_WORKERS"),
		Usage:   "Maximum number of invocations, shards and resumes included, running at once",
	}
	ConcurrentFlasherLimit = &cli.IntFlag{
		Name:    "concurrent-flasher-limit",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENT_FLASHER_LIMIT"),
		Usage:   "Maximum number of devices flashed at once on this host. 0 means unlimited.",
	}
	Devices = &cli.StringSliceFlag{
		Name:    "device",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEVICE"),
		Usage:   "Serial of a device available to invocations. Can be repeated.",
	}
	KeyStoreRedisURL = &cli.StringFlag{
		Name:    "keystore-redis-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KEYSTORE_REDIS_URL"),
		Usage:   "Redis URL option values prefixed with USE_KEYSTORE@ are read from",
	}
	KeyStorePrefix = &cli.StringFlag{
		Name:    "keystore-prefix",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KEYSTORE_PREFIX"),
		Usage:   "Prefix added to every key store lookup",
	}
	ObjectStoreEndpoint = &cli.StringFlag{
		Name:    "object-store-endpoint",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OBJECT_STORE_ENDPOINT"),
		Usage:   "S3-compatible endpoint logs are uploaded to, without scheme",
	}
	ObjectStoreBucket = &cli.StringFlag{
		Name:    "object-store-bucket",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OBJECT_STORE_BUCKET"),
		Usage:   "Bucket logs are uploaded to",
	}
	ObjectStoreAccessKey = &cli.StringFlag{
		Name:    "object-store-access-key",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OBJECT_STORE_ACCESS_KEY"),
		Usage:   "Object store access key",
	}
	ObjectStoreSecretKey = &cli.StringFlag{
		Name:    "object-store-secret-key",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OBJECT_STORE_SECRET_KEY"),
		Usage:   "Object store secret key",
	}
	ObjectStoreUseSSL = &cli.BoolFlag{
		Name:    "object-store-use-ssl",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OBJECT_STORE_USE_SSL"),
		Usage:   "Use TLS when talking to the object store",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Address the healthz endpoint listens on while invocations repeat. Empty disables it.",
	}
	DryRun = &cli.BoolFlag{
		Name:    "dry-run",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DRY_RUN"),
		Usage:   "Resolve and print the configuration without running it",
	}
)

var requiredFlags = []cli.Flag{
	Config,
}

var optionalFlags = []cli.Flag{
	ConfigDirs,
	Args,
	HostConfig,
	LogDir,
	RunInterval,
	ShardWorkers,
	ConcurrentFlasherLimit,
	Devices,
	KeyStoreRedisURL,
	KeyStorePrefix,
	ObjectStoreEndpoint,
	ObjectStoreBucket,
	ObjectStoreAccessKey,
	ObjectStoreSecretKey,
	ObjectStoreUseSSL,
	HealthzAddr,
	DryRun,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
