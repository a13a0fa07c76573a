package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/flags"
)

// File is the on-disk configuration layout. Zero values mean "not set".
type File struct {
	Chain struct {
		RpcURL             string `json:"rpcURL" yaml:"rpcURL"`
		ChainID            uint   `json:"chainId" yaml:"chainId"`
		ProcurementAddress string `json:"procurementAddress" yaml:"procurementAddress"`
		StartingHeight     uint64 `json:"startingHeight" yaml:"startingHeight"`
		Confirmations      uint64 `json:"confirmations" yaml:"confirmations"`
		BlocksStep         uint64 `json:"blocksStep" yaml:"blocksStep"`
		MainLoopInterval   string `json:"mainLoopInterval" yaml:"mainLoopInterval"`
	} `json:"chain" yaml:"chain"`

	Trace struct {
		MaxDepth int `json:"maxDepth" yaml:"maxDepth"`
		Workers  int `json:"workers" yaml:"workers"`
	} `json:"trace" yaml:"trace"`

	DBConfig struct {
		Host     string `json:"host" yaml:"host"`
		Port     int    `json:"port" yaml:"port"`
		Name     string `json:"name" yaml:"name"`
		User     string `json:"user" yaml:"user"`
		Password string `json:"password" yaml:"password"`
	} `json:"dbConfig" yaml:"dbConfig"`

	Warehouse struct {
		Addr     []string `json:"addr" yaml:"addr"`
		Database string   `json:"database" yaml:"database"`
		User     string   `json:"user" yaml:"user"`
		Password string   `json:"password" yaml:"password"`
	} `json:"warehouse" yaml:"warehouse"`

	Archive struct {
		Endpoint  string `json:"endpoint" yaml:"endpoint"`
		AccessKey string `json:"accessKey" yaml:"accessKey"`
		SecretKey string `json:"secretKey" yaml:"secretKey"`
		Bucket    string `json:"bucket" yaml:"bucket"`
		UseSSL    bool   `json:"useSSL" yaml:"useSSL"`
	} `json:"archive" yaml:"archive"`

	Session struct {
		RedisAddr     string `json:"redisAddr" yaml:"redisAddr"`
		RedisPassword string `json:"redisPassword" yaml:"redisPassword"`
		RedisDB       int    `json:"redisDB" yaml:"redisDB"`
		TTL           string `json:"ttl" yaml:"ttl"`
	} `json:"session" yaml:"session"`

	HTTP struct {
		Host        string   `json:"host" yaml:"host"`
		Port        int      `json:"port" yaml:"port"`
		CorsOrigins []string `json:"corsOrigins" yaml:"corsOrigins"`
	} `json:"http" yaml:"http"`
}

// LoadFile parses a YAML or JSON config file, chosen by extension.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.TypeConfig, "failed to read config file", err).AddContext("path", path)
	}

	var file File
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, errs.Wrap(errs.TypeConfig, "failed to parse YAML", err).AddContext("path", path)
		}
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, errs.Wrap(errs.TypeConfig, "failed to parse JSON", err).AddContext("path", path)
		}
	default:
		return nil, errs.New(errs.TypeConfig, fmt.Sprintf("unsupported config file format: %s", ext))
	}
	return &file, nil
}

// values flattens the file into flag name -> textual flag value, skipping unset fields.
func (f *File) values() map[string]string {
	out := make(map[string]string)
	setString := func(name, v string) {
		if v != "" {
			out[name] = v
		}
	}
	setInt := func(name string, v int64) {
		if v != 0 {
			out[name] = strconv.FormatInt(v, 10)
		}
	}
	setUint := func(name string, v uint64) {
		if v != 0 {
			out[name] = strconv.FormatUint(v, 10)
		}
	}

	setString(flags.ChainRpcFlag.Name, f.Chain.RpcURL)
	setUint(flags.ChainIdFlag.Name, uint64(f.Chain.ChainID))
	setString(flags.ProcurementAddressFlag.Name, f.Chain.ProcurementAddress)
	setUint(flags.StartingHeightFlag.Name, f.Chain.StartingHeight)
	setUint(flags.ConfirmationsFlag.Name, f.Chain.Confirmations)
	setUint(flags.BlocksStepFlag.Name, f.Chain.BlocksStep)
	setString(flags.MainIntervalFlag.Name, f.Chain.MainLoopInterval)

	setInt(flags.TraceMaxDepthFlag.Name, int64(f.Trace.MaxDepth))
	setInt(flags.TraceWorkersFlag.Name, int64(f.Trace.Workers))

	setString(flags.MasterDbHostFlag.Name, f.DBConfig.Host)
	setInt(flags.MasterDbPortFlag.Name, int64(f.DBConfig.Port))
	setString(flags.MasterDbNameFlag.Name, f.DBConfig.Name)
	setString(flags.MasterDbUserFlag.Name, f.DBConfig.User)
	setString(flags.MasterDbPasswordFlag.Name, f.DBConfig.Password)

	setString(flags.ClickHouseAddrFlag.Name, strings.Join(f.Warehouse.Addr, ","))
	setString(flags.ClickHouseDatabaseFlag.Name, f.Warehouse.Database)
	setString(flags.ClickHouseUserFlag.Name, f.Warehouse.User)
	setString(flags.ClickHousePasswordFlag.Name, f.Warehouse.Password)

	setString(flags.MinioEndpointFlag.Name, f.Archive.Endpoint)
	setString(flags.MinioAccessKeyFlag.Name, f.Archive.AccessKey)
	setString(flags.MinioSecretKeyFlag.Name, f.Archive.SecretKey)
	setString(flags.MinioBucketFlag.Name, f.Archive.Bucket)
	if f.Archive.UseSSL {
		out[flags.MinioUseSSLFlag.Name] = "true"
	}

	setString(flags.RedisAddrFlag.Name, f.Session.RedisAddr)
	setString(flags.RedisPasswordFlag.Name, f.Session.RedisPassword)
	setInt(flags.RedisDbFlag.Name, int64(f.Session.RedisDB))
	setString(flags.SessionTTLFlag.Name, f.Session.TTL)

	setString(flags.HttpHostFlag.Name, f.HTTP.Host)
	setInt(flags.HttpPortFlag.Name, int64(f.HTTP.Port))
	setString(flags.CorsOriginsFlag.Name, strings.Join(f.HTTP.CorsOrigins, ","))
	return out
}

// Apply copies file values onto every flag of cliCtx that was not set on the command
// line or through its environment variable.
func (f *File) Apply(cliCtx *cli.Context) error {
	for name, v := range f.values() {
		// flags the running command does not define resolve to nil
		if cliCtx.Value(name) == nil || cliCtx.IsSet(name) {
			continue
		}
		if err := cliCtx.Set(name, v); err != nil {
			return errs.Wrap(errs.TypeConfig, "invalid config file value", err).AddContext("flag", name)
		}
	}
	return nil
}
