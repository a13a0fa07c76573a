package chaintrace

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"

	"github.com/transparencyx/chaintrace/api"
	"github.com/transparencyx/chaintrace/archive"
	"github.com/transparencyx/chaintrace/config"
	"github.com/transparencyx/chaintrace/database"
	"github.com/transparencyx/chaintrace/mirror"
	"github.com/transparencyx/chaintrace/session"
	"github.com/transparencyx/chaintrace/synchronizer"
	"github.com/transparencyx/chaintrace/synchronizer/node"
	"github.com/transparencyx/chaintrace/tracing"
	"github.com/transparencyx/chaintrace/warehouse"
)

// BlockSize is the number of stored headers the event mirror handles per tick.
const BlockSize = 3000

// Services are the clients every command shares.
type Services struct {
	EthClient node.EthClient
	DB        *database.DB
	Warehouse *warehouse.Warehouse
	// Archive is nil when no archive endpoint is configured.
	Archive *archive.Archive
	Tracer  *tracing.Tracer
}

// OpenServices dials the node, the operational database, the warehouse and the optional
// archive, and builds a tracer on top of them.
func OpenServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{}
	ethClient, err := node.DialEthClient(ctx, cfg.Chain.ChainRpcUrl)
	if err != nil {
		log.Error("new eth client fail", "err", err)
		return nil, err
	}
	s.EthClient = ethClient

	db, err := database.NewDB(ctx, cfg.MasterDB)
	if err != nil {
		log.Error("new database fail", "err", err)
		s.Close()
		return nil, err
	}
	s.DB = db

	wh, err := warehouse.Open(ctx, cfg.Warehouse)
	if err != nil {
		log.Error("open warehouse fail", "err", err)
		s.Close()
		return nil, err
	}
	s.Warehouse = wh

	tracerCfg := tracing.TracerConfig{
		MaxDepth: cfg.Trace.MaxDepth,
		Ledger:   db.TraceJobs,
	}
	if cfg.Archive.Enabled() {
		ar, err := archive.Dial(ctx, cfg.Archive)
		if err != nil {
			log.Error("open archive fail", "err", err)
			s.Close()
			return nil, err
		}
		s.Archive = ar
		tracerCfg.Archive = ar
	} else {
		log.Info("raw trace archive disabled")
	}
	s.Tracer = tracing.NewTracer(ethClient, wh, tracerCfg)
	return s, nil
}

func (s *Services) Close() error {
	var result error
	if s.Warehouse != nil {
		if err := s.Warehouse.Close(); err != nil {
			result = errors.Join(result, fmt.Errorf("close warehouse: %w", err))
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			result = errors.Join(result, fmt.Errorf("close database: %w", err))
		}
	}
	if s.EthClient != nil {
		s.EthClient.Close()
	}
	return result
}

// ChainTrace runs the api server and, when indexing, the synchronizer and the event mirror.
type ChainTrace struct {
	services     *Services
	redis        *redis.Client
	synchronizer *synchronizer.Synchronizer
	mirror       *mirror.EventMirror
	api          *api.API
	stopped      atomic.Bool
}

func NewChainTrace(ctx context.Context, cfg *config.Config, shutdown context.CancelCauseFunc, indexing bool) (*ChainTrace, error) {
	services, err := OpenServices(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ct := &ChainTrace{services: services}

	if err := services.Warehouse.EnsureSchema(ctx); err != nil {
		log.Error("ensure warehouse schema fail", "err", err)
		_ = ct.close()
		return nil, err
	}

	ct.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Session.RedisAddr,
		Password: cfg.Session.RedisPassword,
		DB:       cfg.Session.RedisDB,
	})
	sessions := session.NewStore(ct.redis, cfg.Session.TTL)
	if err := sessions.Ping(ctx); err != nil {
		log.Error("session store unreachable", "addr", cfg.Session.RedisAddr, "err", err)
		_ = ct.close()
		return nil, err
	}

	deps := api.Deps{
		Tracer:    services.Tracer,
		Analytics: services.Warehouse,
		Sessions:  sessions,
		Flows:     services.Warehouse,
		Jobs:      services.DB.TraceJobs,
		Roles:     services.DB.Roles,
		Checks: map[string]api.HealthCheck{
			"clickhouse": services.Warehouse.Ping,
			"redis":      sessions.Ping,
		},
	}
	if services.Archive != nil {
		deps.Archive = services.Archive
	}
	ct.api, err = api.NewApi(cfg.HTTP, deps)
	if err != nil {
		_ = ct.close()
		return nil, err
	}

	if !indexing {
		return ct, nil
	}

	ct.synchronizer, err = synchronizer.NewSynchronizer(ctx, cfg, services.DB, services.EthClient, shutdown)
	if err != nil {
		log.Error("new synchronizer fail", "err", err)
		_ = ct.close()
		return nil, err
	}

	mirrorConfig := &mirror.MirrorConfig{
		ProcurementAddress: cfg.Chain.ProcurementAddress,
		EventLoopInterval:  cfg.Chain.MainLoopInterval,
		StartHeight:        new(big.Int).SetUint64(cfg.Chain.StartingHeight),
		BlockSize:          BlockSize,
		TraceWorkers:       cfg.Trace.Workers,
	}
	ct.mirror, err = mirror.NewEventMirror(services.DB, services.Warehouse, services.Tracer, services.EthClient, mirrorConfig, shutdown)
	if err != nil {
		log.Error("new event mirror fail", "err", err)
		_ = ct.close()
		return nil, err
	}
	return ct, nil
}

func (ct *ChainTrace) Start(ctx context.Context) error {
	if ct.synchronizer != nil {
		if err := ct.synchronizer.Start(); err != nil {
			return err
		}
	}
	if ct.mirror != nil {
		if err := ct.mirror.Start(); err != nil {
			return err
		}
	}
	return ct.api.Start(ctx)
}

func (ct *ChainTrace) Stop(ctx context.Context) error {
	var result error
	if ct.api != nil {
		if err := ct.api.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("stop api: %w", err))
		}
	}
	if ct.mirror != nil {
		if err := ct.mirror.Close(); err != nil {
			result = errors.Join(result, fmt.Errorf("close event mirror: %w", err))
		}
	}
	if ct.synchronizer != nil {
		if err := ct.synchronizer.Close(); err != nil {
			result = errors.Join(result, fmt.Errorf("close synchronizer: %w", err))
		}
	}
	if err := ct.close(); err != nil {
		result = errors.Join(result, err)
	}
	ct.stopped.Store(true)
	log.Info("chaintrace stopped")
	return result
}

func (ct *ChainTrace) close() error {
	var result error
	if ct.redis != nil {
		if err := ct.redis.Close(); err != nil {
			result = errors.Join(result, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := ct.services.Close(); err != nil {
		result = errors.Join(result, err)
	}
	return result
}

func (ct *ChainTrace) Stopped() bool {
	return ct.stopped.Load()
}
