package flags

import (
	"time"

	"github.com/urfave/cli/v2"
)

const envVarPrefix = "CHAINTRACE"

func prefixEnvVars(name string) []string {
	return []string{envVarPrefix + "_" + name}
}

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Optional YAML file with defaults; explicit flags and env vars win",
		EnvVars: prefixEnvVars("CONFIG"),
	}
	LogLevelFlag = &cli.StringFlag{
		Name:    "log.level",
		Usage:   "The lowest log level that will be output (trace, debug, info, warn, error, crit)",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
	}
	LogColorFlag = &cli.BoolFlag{
		Name:    "log.color",
		Usage:   "Color the log output if in terminal mode",
		EnvVars: prefixEnvVars("LOG_COLOR"),
	}

	// Chain
	ChainRpcFlag = &cli.StringFlag{
		Name:    "chain-rpc",
		Usage:   "JSON-RPC endpoint of an archive node that exposes debug_traceTransaction",
		EnvVars: prefixEnvVars("CHAIN_RPC"),
	}
	ChainIdFlag = &cli.UintFlag{
		Name:    "chain-id",
		Usage:   "The chain id of the procurement chain",
		EnvVars: prefixEnvVars("CHAIN_ID"),
		Value:   1,
	}
	ProcurementAddressFlag = &cli.StringFlag{
		Name:    "procurement-address",
		Usage:   "Address of the procurement contract whose events are mirrored",
		EnvVars: prefixEnvVars("PROCUREMENT_ADDRESS"),
	}
	StartingHeightFlag = &cli.Uint64Flag{
		Name:    "starting-height",
		Usage:   "The starting height of the event mirror",
		EnvVars: prefixEnvVars("STARTING_HEIGHT"),
		Value:   0,
	}
	ConfirmationsFlag = &cli.Uint64Flag{
		Name:    "confirmations",
		Usage:   "Number of confirmations a block needs before it is mirrored",
		EnvVars: prefixEnvVars("CONFIRMATIONS"),
		Value:   12,
	}
	BlocksStepFlag = &cli.Uint64Flag{
		Name:    "blocks-step",
		Usage:   "Maximum number of headers fetched per mirror tick",
		EnvVars: prefixEnvVars("BLOCKS_STEP"),
		Value:   500,
	}
	MainIntervalFlag = &cli.DurationFlag{
		Name:    "main-loop-interval",
		Usage:   "Interval of the event mirror loop",
		EnvVars: prefixEnvVars("MAIN_LOOP_INTERVAL"),
		Value:   time.Second * 5,
	}

	// Tracing
	TraceMaxDepthFlag = &cli.IntFlag{
		Name:    "trace.max-depth",
		Usage:   "Maximum call nesting the chain walker descends into",
		EnvVars: prefixEnvVars("TRACE_MAX_DEPTH"),
		Value:   1024,
	}
	TraceWorkersFlag = &cli.IntFlag{
		Name:    "trace.workers",
		Usage:   "Maximum concurrent traces scheduled by the event mirror",
		EnvVars: prefixEnvVars("TRACE_WORKERS"),
		Value:   4,
	}

	// Operational database
	MasterDbHostFlag = &cli.StringFlag{
		Name:    "master-db-host",
		Usage:   "The host of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_HOST"),
		Value:   "127.0.0.1",
	}
	MasterDbPortFlag = &cli.IntFlag{
		Name:    "master-db-port",
		Usage:   "The port of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_PORT"),
		Value:   5432,
	}
	MasterDbUserFlag = &cli.StringFlag{
		Name:    "master-db-user",
		Usage:   "The user of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_USER"),
		Value:   "postgres",
	}
	MasterDbPasswordFlag = &cli.StringFlag{
		Name:    "master-db-password",
		Usage:   "The password of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_PASSWORD"),
	}
	MasterDbNameFlag = &cli.StringFlag{
		Name:    "master-db-name",
		Usage:   "The db name of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_NAME"),
		Value:   "chaintrace",
	}

	// Warehouse
	ClickHouseAddrFlag = &cli.StringSliceFlag{
		Name:    "clickhouse-addr",
		Usage:   "ClickHouse native protocol address(es), host:port",
		EnvVars: prefixEnvVars("CLICKHOUSE_ADDR"),
		Value:   cli.NewStringSlice("127.0.0.1:9000"),
	}
	ClickHouseDatabaseFlag = &cli.StringFlag{
		Name:    "clickhouse-database",
		Usage:   "ClickHouse database holding the warehouse tables",
		EnvVars: prefixEnvVars("CLICKHOUSE_DATABASE"),
		Value:   "procurement",
	}
	ClickHouseUserFlag = &cli.StringFlag{
		Name:    "clickhouse-user",
		Usage:   "ClickHouse user",
		EnvVars: prefixEnvVars("CLICKHOUSE_USER"),
		Value:   "default",
	}
	ClickHousePasswordFlag = &cli.StringFlag{
		Name:    "clickhouse-password",
		Usage:   "ClickHouse password",
		EnvVars: prefixEnvVars("CLICKHOUSE_PASSWORD"),
	}

	// Raw trace archive
	MinioEndpointFlag = &cli.StringFlag{
		Name:    "minio-endpoint",
		Usage:   "S3 compatible endpoint for raw trace archiving; empty disables the archive",
		EnvVars: prefixEnvVars("MINIO_ENDPOINT"),
	}
	MinioAccessKeyFlag = &cli.StringFlag{
		Name:    "minio-access-key",
		Usage:   "Archive access key",
		EnvVars: prefixEnvVars("MINIO_ACCESS_KEY"),
	}
	MinioSecretKeyFlag = &cli.StringFlag{
		Name:    "minio-secret-key",
		Usage:   "Archive secret key",
		EnvVars: prefixEnvVars("MINIO_SECRET_KEY"),
	}
	MinioBucketFlag = &cli.StringFlag{
		Name:    "minio-bucket",
		Usage:   "Archive bucket",
		EnvVars: prefixEnvVars("MINIO_BUCKET"),
		Value:   "chaintrace-traces",
	}
	MinioUseSSLFlag = &cli.BoolFlag{
		Name:    "minio-use-ssl",
		Usage:   "Use TLS towards the archive endpoint",
		EnvVars: prefixEnvVars("MINIO_USE_SSL"),
	}

	// Sessions
	RedisAddrFlag = &cli.StringFlag{
		Name:    "redis-addr",
		Usage:   "Redis address for wallet sessions",
		EnvVars: prefixEnvVars("REDIS_ADDR"),
		Value:   "127.0.0.1:6379",
	}
	RedisPasswordFlag = &cli.StringFlag{
		Name:    "redis-password",
		Usage:   "Redis password",
		EnvVars: prefixEnvVars("REDIS_PASSWORD"),
	}
	RedisDbFlag = &cli.IntFlag{
		Name:    "redis-db",
		Usage:   "Redis logical database",
		EnvVars: prefixEnvVars("REDIS_DB"),
	}
	SessionTTLFlag = &cli.DurationFlag{
		Name:    "session-ttl",
		Usage:   "Lifetime of a wallet session",
		EnvVars: prefixEnvVars("SESSION_TTL"),
		Value:   time.Hour * 12,
	}

	// HTTP
	HttpHostFlag = &cli.StringFlag{
		Name:    "http-host",
		Usage:   "The host of the api server",
		EnvVars: prefixEnvVars("HTTP_HOST"),
		Value:   "0.0.0.0",
	}
	HttpPortFlag = &cli.IntFlag{
		Name:    "http-port",
		Usage:   "The port of the api server",
		EnvVars: prefixEnvVars("HTTP_PORT"),
		Value:   8080,
	}
	CorsOriginsFlag = &cli.StringSliceFlag{
		Name:    "cors-origins",
		Usage:   "Origins allowed to call the api from a browser",
		EnvVars: prefixEnvVars("CORS_ORIGINS"),
		Value:   cli.NewStringSlice("*"),
	}
)

// Command specific
var (
	MigrationsFlag = &cli.StringFlag{
		Name:    "migrations-dir",
		Usage:   "Path to the SQL migrations of the operational database",
		EnvVars: prefixEnvVars("MIGRATIONS_DIR"),
		Value:   "./migrations",
	}
	TxHashFlag = &cli.StringFlag{
		Name:     "tx-hash",
		Usage:    "Transaction whose payment chain is traced",
		Required: true,
	}
	ThresholdFlag = &cli.Float64Flag{
		Name:  "threshold",
		Usage: "Anomaly score threshold (0-100) for suspicious-departments",
		Value: 50,
	}
	RatioFlag = &cli.Float64Flag{
		Name:  "ratio",
		Usage: "Vendor retention ratio for chain-completeness",
		Value: 0.7,
	}
	OriginFlag = &cli.StringFlag{
		Name:  "origin",
		Usage: "Government wallet the payment chains start at",
	}
	MaxDelayFlag = &cli.Float64Flag{
		Name:  "max-delay",
		Usage: "Forwarding delay in seconds below which a vendor is flagged",
		Value: 60,
	}
	DaysFlag = &cli.IntFlag{
		Name:  "days",
		Usage: "How many days back payment-chain looks",
		Value: 30,
	}
	LimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum rows of the list queries",
		Value: 5,
	}
	DepartmentFlag = &cli.StringFlag{
		Name:  "department",
		Usage: "Department wallet for department-stats",
	}
)

var loggingFlags = []cli.Flag{
	ConfigFileFlag,
	LogLevelFlag,
	LogColorFlag,
}

var chainFlags = []cli.Flag{
	ChainRpcFlag,
	ChainIdFlag,
	ProcurementAddressFlag,
	StartingHeightFlag,
	ConfirmationsFlag,
	BlocksStepFlag,
	MainIntervalFlag,
	TraceMaxDepthFlag,
	TraceWorkersFlag,
}

var storeFlags = []cli.Flag{
	MasterDbHostFlag,
	MasterDbPortFlag,
	MasterDbUserFlag,
	MasterDbPasswordFlag,
	MasterDbNameFlag,
	ClickHouseAddrFlag,
	ClickHouseDatabaseFlag,
	ClickHouseUserFlag,
	ClickHousePasswordFlag,
	MinioEndpointFlag,
	MinioAccessKeyFlag,
	MinioSecretKeyFlag,
	MinioBucketFlag,
	MinioUseSSLFlag,
}

var apiFlags = []cli.Flag{
	RedisAddrFlag,
	RedisPasswordFlag,
	RedisDbFlag,
	SessionTTLFlag,
	HttpHostFlag,
	HttpPortFlag,
	CorsOriginsFlag,
}

var Flags []cli.Flag

var QueryFlags = []cli.Flag{
	ThresholdFlag,
	RatioFlag,
	OriginFlag,
	MaxDelayFlag,
	DaysFlag,
	LimitFlag,
	DepartmentFlag,
}

func init() {
	Flags = append(Flags, loggingFlags...)
	Flags = append(Flags, chainFlags...)
	Flags = append(Flags, storeFlags...)
	Flags = append(Flags, apiFlags...)
}
