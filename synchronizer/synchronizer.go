package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/transparencyx/chaintrace/common/tasks"
	"github.com/transparencyx/chaintrace/config"
	"github.com/transparencyx/chaintrace/database"
	common2 "github.com/transparencyx/chaintrace/database/common"
	"github.com/transparencyx/chaintrace/metrics"
	"github.com/transparencyx/chaintrace/synchronizer/node"
)

// Synchronizer stores confirmed block headers together with the procurement contract
// logs they contain. Consumers read the stored headers, never the chain.
type Synchronizer struct {
	ethClient node.EthClient
	db        *database.DB
	chainCfg  *config.ChainConfig

	headers         []types.Header
	latestHeader    *types.Header
	headerTraversal *node.HeaderTraversal

	resourceCtx    context.Context
	resourceCancel context.CancelFunc
	tasks          tasks.Group
}

func NewSynchronizer(ctx context.Context, cfg *config.Config, db *database.DB, client node.EthClient, shutdown context.CancelCauseFunc) (*Synchronizer, error) {
	fromHeader, err := resumeHeader(ctx, &cfg.Chain, db, client)
	if err != nil {
		return nil, err
	}

	confDepth := new(big.Int).SetUint64(cfg.Chain.Confirmations)
	headerTraversal := node.NewHeaderTraversal(client, fromHeader, confDepth, cfg.Chain.ChainId)

	resCtx, resCancel := context.WithCancel(context.Background())
	return &Synchronizer{
		ethClient:       client,
		db:              db,
		chainCfg:        &cfg.Chain,
		headerTraversal: headerTraversal,
		latestHeader:    fromHeader,
		resourceCtx:     resCtx,
		resourceCancel:  resCancel,
		tasks: tasks.Group{HandleCrit: func(err error) {
			shutdown(fmt.Errorf("critical error in synchronizer: %w", err))
		}},
	}, nil
}

// resumeHeader picks the header the traversal continues after: the newest stored one,
// else the block before the configured starting height, else nil (genesis).
func resumeHeader(ctx context.Context, chainCfg *config.ChainConfig, db *database.DB, client node.EthClient) (*types.Header, error) {
	latest, err := db.Blocks.LatestBlockHeader()
	if err != nil {
		log.Error("query latest block header fail", "err", err)
		return nil, err
	}
	if latest != nil {
		header, err := client.BlockHeaderByHash(ctx, latest.Hash)
		if err != nil {
			log.Error("get stored header from chain fail", "hash", latest.Hash, "err", err)
			return nil, err
		}
		log.Info("resuming from stored header", "number", header.Number)
		return header, nil
	}
	if chainCfg.StartingHeight > 0 {
		header, err := client.BlockHeaderByNumber(ctx, new(big.Int).SetUint64(chainCfg.StartingHeight-1))
		if err != nil {
			log.Error("get block from chain fail", "err", err)
			return nil, err
		}
		log.Info("starting from configured height", "height", chainCfg.StartingHeight)
		return header, nil
	}
	log.Info("no indexed state, starting from genesis")
	return nil, nil
}

func (syncer *Synchronizer) Start() error {
	log.Info("starting synchronizer", "interval", syncer.chainCfg.MainLoopInterval, "step", syncer.chainCfg.BlockStep)
	tickerSyncer := time.NewTicker(syncer.chainCfg.MainLoopInterval)
	syncer.tasks.Go(func() error {
		defer tickerSyncer.Stop()
		for {
			select {
			case <-syncer.resourceCtx.Done():
				return nil
			case <-tickerSyncer.C:
			}
			if err := syncer.tick(syncer.resourceCtx); err != nil {
				log.Error("synchronizer tick failed", "err", err)
			}
		}
	})
	return nil
}

// tick retries the previous batch before asking for new headers.
func (syncer *Synchronizer) tick(ctx context.Context) error {
	if len(syncer.headers) > 0 {
		log.Info("retrying previous batch")
	} else {
		newHeaders, err := syncer.headerTraversal.NextHeaders(ctx, syncer.chainCfg.BlockStep)
		if err != nil {
			return fmt.Errorf("error querying for headers: %w", err)
		}
		if len(newHeaders) == 0 {
			log.Debug("no new headers, synced to head")
			return nil
		}
		syncer.headers = newHeaders
	}

	if latest := syncer.headerTraversal.LatestHeader(); latest != nil {
		log.Debug("chain head", "number", latest.Number)
	}
	if err := syncer.processBatch(ctx, syncer.headers); err != nil {
		return err
	}
	syncer.latestHeader = &syncer.headers[len(syncer.headers)-1]
	syncer.headers = nil
	return nil
}

func (syncer *Synchronizer) processBatch(ctx context.Context, headers []types.Header) error {
	if len(headers) == 0 {
		return nil
	}
	firstHeader, lastHeader := headers[0], headers[len(headers)-1]
	log.Info("sync batch", "size", len(headers), "startBlock", firstHeader.Number, "endBlock", lastHeader.Number)

	headerMap := make(map[common.Hash]*types.Header, len(headers))
	for i := range headers {
		header := headers[i]
		headerMap[header.Hash()] = &header
	}

	filterQuery := ethereum.FilterQuery{
		FromBlock: firstHeader.Number,
		ToBlock:   lastHeader.Number,
		Addresses: []common.Address{syncer.chainCfg.ProcurementAddress},
	}
	logs, err := syncer.ethClient.FilterLogs(ctx, filterQuery)
	if err != nil {
		log.Error("failed to extract logs", "err", err)
		return err
	}
	if logs.ToBlockHeader == nil || logs.ToBlockHeader.Number.Cmp(lastHeader.Number) != 0 {
		return errors.New("mismatch in FilterLog#ToBlock number")
	} else if logs.ToBlockHeader.Hash() != lastHeader.Hash() {
		return fmt.Errorf("mismatch in FilterLog#ToBlock block hash: %s != %s", logs.ToBlockHeader.Hash(), lastHeader.Hash())
	}

	events := make([]common2.ContractEvent, 0, len(logs.Logs))
	for i := range logs.Logs {
		l := &logs.Logs[i]
		header, ok := headerMap[l.BlockHash]
		if !ok {
			log.Error("log found with block hash not in the batch", "blockHash", l.BlockHash, "logIndex", l.Index)
			return errors.New("parsed log with a block hash not in the batch")
		}
		events = append(events, common2.ContractEventFromLog(l, header.Time))
	}

	blockHeaders := make([]common2.BlockHeader, 0, len(headers))
	for i := range headers {
		if headers[i].Number == nil {
			continue
		}
		blockHeaders = append(blockHeaders, common2.BlockHeaderFromHeader(&headers[i]))
	}

	if err := syncer.db.Transaction(func(tx *database.DB) error {
		if err := tx.Blocks.StoreBlockHeaders(blockHeaders); err != nil {
			return err
		}
		return tx.ContractEvents.StoreContractEvents(events)
	}); err != nil {
		log.Error("store batch fail", "err", err)
		return err
	}

	metrics.SyncedHeight.Set(float64(lastHeader.Number.Uint64()))
	metrics.SyncedLogsTotal.Add(float64(len(events)))
	log.Info("stored batch", "headers", len(blockHeaders), "events", len(events))
	return nil
}

func (syncer *Synchronizer) Close() error {
	log.Info("closing synchronizer")
	syncer.resourceCancel()
	return syncer.tasks.Wait()
}
