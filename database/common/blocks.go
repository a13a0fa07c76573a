package common

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gorm.io/gorm"
)

// BlockHeader is the synchronizer checkpoint: every header whose contract events are stored.
type BlockHeader struct {
	Hash       common.Hash `gorm:"primaryKey;serializer:bytes"`
	ParentHash common.Hash `gorm:"serializer:bytes"`
	Number     *big.Int    `gorm:"serializer:u256;type:numeric"`
	Timestamp  uint64
}

func (BlockHeader) TableName() string {
	return "block_headers"
}

func BlockHeaderFromHeader(header *types.Header) BlockHeader {
	return BlockHeader{
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Number:     header.Number,
		Timestamp:  header.Time,
	}
}

type BlocksView interface {
	LatestBlockHeader() (*BlockHeader, error)
	BlockHeaderWithScope(func(db *gorm.DB) *gorm.DB) (*BlockHeader, error)
}

type BlocksDB interface {
	BlocksView

	StoreBlockHeaders([]BlockHeader) error
}

type blocksDB struct {
	gorm *gorm.DB
}

func NewBlocksDB(db *gorm.DB) BlocksDB {
	return &blocksDB{gorm: db}
}

func (b *blocksDB) StoreBlockHeaders(headers []BlockHeader) error {
	if len(headers) == 0 {
		return nil
	}
	return b.gorm.CreateInBatches(&headers, len(headers)).Error
}

func (b *blocksDB) LatestBlockHeader() (*BlockHeader, error) {
	return b.BlockHeaderWithScope(func(db *gorm.DB) *gorm.DB {
		return db.Order("number DESC")
	})
}

// BlockHeaderWithScope returns the first header matching the scope, or nil when none does.
func (b *blocksDB) BlockHeaderWithScope(scope func(db *gorm.DB) *gorm.DB) (*BlockHeader, error) {
	var header BlockHeader
	result := b.gorm.Model(&BlockHeader{}).Scopes(scope).Take(&header)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &header, nil
}
