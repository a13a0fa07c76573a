package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/flags"
)

type Config struct {
	Chain     ChainConfig
	Trace     TraceConfig
	MasterDB  DBConfig
	Warehouse WarehouseConfig
	Archive   ArchiveConfig
	Session   SessionConfig
	HTTP      HTTPConfig
}

type ChainConfig struct {
	ChainRpcUrl        string
	ChainId            uint
	ProcurementAddress common.Address
	StartingHeight     uint64
	Confirmations      uint64
	BlockStep          uint64
	MainLoopInterval   time.Duration
}

type TraceConfig struct {
	MaxDepth int
	Workers  int
}

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

type WarehouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
}

type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether raw traces should be archived at all.
func (c ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}

type SessionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type HTTPConfig struct {
	Host        string
	Port        int
	CorsOrigins []string
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig builds the configuration from the cli context. When --config names a file,
// its values fill every flag the operator did not set explicitly or through the environment.
func LoadConfig(cliCtx *cli.Context) (Config, error) {
	if path := cliCtx.String(flags.ConfigFileFlag.Name); path != "" {
		file, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := file.Apply(cliCtx); err != nil {
			return Config{}, err
		}
		log.Info("applied config file", "path", path)
	}

	if raw := cliCtx.String(flags.ProcurementAddressFlag.Name); raw != "" && !common.IsHexAddress(raw) {
		return Config{}, errs.NewValidation(flags.ProcurementAddressFlag.Name, "not a contract address")
	}
	cfg := NewConfig(cliCtx)
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	log.Info("loaded chain config", "chainId", cfg.Chain.ChainId, "procurement", cfg.Chain.ProcurementAddress)
	return cfg, nil
}

func NewConfig(cliCtx *cli.Context) Config {
	return Config{
		Chain: ChainConfig{
			ChainRpcUrl:        cliCtx.String(flags.ChainRpcFlag.Name),
			ChainId:            cliCtx.Uint(flags.ChainIdFlag.Name),
			ProcurementAddress: common.HexToAddress(cliCtx.String(flags.ProcurementAddressFlag.Name)),
			StartingHeight:     cliCtx.Uint64(flags.StartingHeightFlag.Name),
			Confirmations:      cliCtx.Uint64(flags.ConfirmationsFlag.Name),
			BlockStep:          cliCtx.Uint64(flags.BlocksStepFlag.Name),
			MainLoopInterval:   cliCtx.Duration(flags.MainIntervalFlag.Name),
		},
		Trace: TraceConfig{
			MaxDepth: cliCtx.Int(flags.TraceMaxDepthFlag.Name),
			Workers:  cliCtx.Int(flags.TraceWorkersFlag.Name),
		},
		MasterDB: DBConfig{
			Host:     cliCtx.String(flags.MasterDbHostFlag.Name),
			Port:     cliCtx.Int(flags.MasterDbPortFlag.Name),
			Name:     cliCtx.String(flags.MasterDbNameFlag.Name),
			User:     cliCtx.String(flags.MasterDbUserFlag.Name),
			Password: cliCtx.String(flags.MasterDbPasswordFlag.Name),
		},
		Warehouse: WarehouseConfig{
			Addr:     cliCtx.StringSlice(flags.ClickHouseAddrFlag.Name),
			Database: cliCtx.String(flags.ClickHouseDatabaseFlag.Name),
			Username: cliCtx.String(flags.ClickHouseUserFlag.Name),
			Password: cliCtx.String(flags.ClickHousePasswordFlag.Name),
		},
		Archive: ArchiveConfig{
			Endpoint:  cliCtx.String(flags.MinioEndpointFlag.Name),
			AccessKey: cliCtx.String(flags.MinioAccessKeyFlag.Name),
			SecretKey: cliCtx.String(flags.MinioSecretKeyFlag.Name),
			Bucket:    cliCtx.String(flags.MinioBucketFlag.Name),
			UseSSL:    cliCtx.Bool(flags.MinioUseSSLFlag.Name),
		},
		Session: SessionConfig{
			RedisAddr:     cliCtx.String(flags.RedisAddrFlag.Name),
			RedisPassword: cliCtx.String(flags.RedisPasswordFlag.Name),
			RedisDB:       cliCtx.Int(flags.RedisDbFlag.Name),
			TTL:           cliCtx.Duration(flags.SessionTTLFlag.Name),
		},
		HTTP: HTTPConfig{
			Host:        cliCtx.String(flags.HttpHostFlag.Name),
			Port:        cliCtx.Int(flags.HttpPortFlag.Name),
			CorsOrigins: cliCtx.StringSlice(flags.CorsOriginsFlag.Name),
		},
	}
}

// Check validates the settings every command relies on.
func (c Config) Check() error {
	if c.Chain.ChainRpcUrl == "" {
		return errs.NewValidation(flags.ChainRpcFlag.Name, "rpc url is required")
	}
	if c.Trace.MaxDepth <= 0 {
		return errs.NewValidation(flags.TraceMaxDepthFlag.Name, "must be positive")
	}
	if c.Trace.Workers <= 0 {
		return errs.NewValidation(flags.TraceWorkersFlag.Name, "must be positive")
	}
	if c.Chain.BlockStep == 0 {
		return errs.NewValidation(flags.BlocksStepFlag.Name, "must be positive")
	}
	if len(c.Warehouse.Addr) == 0 {
		return errs.NewValidation(flags.ClickHouseAddrFlag.Name, "at least one address is required")
	}
	return nil
}

// CheckIndexing validates the settings only the indexer needs.
func (c Config) CheckIndexing() error {
	if c.Chain.ProcurementAddress == (common.Address{}) {
		return errs.NewValidation(flags.ProcurementAddressFlag.Name, "contract address is required to index")
	}
	return nil
}

// DSN is the postgres connection string for gorm.
func (c DBConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s dbname=%s sslmode=disable", c.Host, c.Name)
	if c.Port != 0 {
		dsn += fmt.Sprintf(" port=%d", c.Port)
	}
	if c.User != "" {
		dsn += fmt.Sprintf(" user=%s", c.User)
	}
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}
