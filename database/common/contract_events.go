package common

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContractEvent is a raw procurement contract log awaiting (or past) mirroring.
type ContractEvent struct {
	GUID            uuid.UUID      `gorm:"primaryKey;type:uuid"`
	BlockHash       common.Hash    `gorm:"serializer:bytes"`
	BlockNumber     *big.Int       `gorm:"serializer:u256;type:numeric"`
	Timestamp       uint64
	TransactionHash common.Hash    `gorm:"serializer:bytes"`
	LogIndex        uint64
	ContractAddress common.Address `gorm:"serializer:bytes"`
	EventSignature  common.Hash    `gorm:"serializer:bytes"`
	RLPLog          *types.Log     `gorm:"serializer:json;column:rlp"`
}

func (ContractEvent) TableName() string {
	return "contract_events"
}

func ContractEventFromLog(log *types.Log, timestamp uint64) ContractEvent {
	var signature common.Hash
	if len(log.Topics) > 0 {
		signature = log.Topics[0]
	}
	return ContractEvent{
		GUID:            uuid.New(),
		BlockHash:       log.BlockHash,
		BlockNumber:     new(big.Int).SetUint64(log.BlockNumber),
		Timestamp:       timestamp,
		TransactionHash: log.TxHash,
		LogIndex:        uint64(log.Index),
		ContractAddress: log.Address,
		EventSignature:  signature,
		RLPLog:          log,
	}
}

type ContractEventsView interface {
	ContractEventsInRange(from, to *big.Int) ([]ContractEvent, error)
}

type ContractEventsDB interface {
	ContractEventsView

	StoreContractEvents([]ContractEvent) error
}

type contractEventsDB struct {
	gorm *gorm.DB
}

func NewContractEventsDB(db *gorm.DB) ContractEventsDB {
	return &contractEventsDB{gorm: db}
}

func (c *contractEventsDB) StoreContractEvents(events []ContractEvent) error {
	if len(events) == 0 {
		return nil
	}
	return c.gorm.CreateInBatches(&events, len(events)).Error
}

// ContractEventsInRange returns the events of blocks from..to inclusive in chain order.
func (c *contractEventsDB) ContractEventsInRange(from, to *big.Int) ([]ContractEvent, error) {
	var events []ContractEvent
	err := c.gorm.Model(&ContractEvent{}).
		Where("block_number >= ? AND block_number <= ?", from.String(), to.String()).
		Order("block_number ASC, log_index ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
