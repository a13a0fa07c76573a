package worker

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimRecord is the operational view of a submitted claim. The warehouse keeps the
// history; this table answers point lookups while mirroring.
type ClaimRecord struct {
	ClaimID          *big.Int       `gorm:"primaryKey;serializer:u256;type:numeric" json:"claimId"`
	InvoiceHash      common.Hash    `gorm:"serializer:bytes;index" json:"invoiceHash"`
	Vendor           common.Address `gorm:"serializer:bytes" json:"vendor"`
	Department       common.Address `gorm:"serializer:bytes;index" json:"department"`
	Amount           *big.Int       `gorm:"serializer:u256;type:numeric" json:"amount"`
	SupplierPayments uint64         `gorm:"default:0" json:"supplierPayments"`
	BlockNumber      *big.Int       `gorm:"serializer:u256;type:numeric" json:"blockNumber"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (ClaimRecord) TableName() string {
	return "claim_records"
}

type ClaimRecordView interface {
	QueryClaimRecord(claimID *big.Int) (*ClaimRecord, error)
	QueryClaimByInvoiceHash(invoiceHash common.Hash) (*ClaimRecord, error)
	QueryDepartmentClaimAmounts(department common.Address, beforeClaim *big.Int) ([]*big.Int, error)
}

type ClaimRecordDB interface {
	ClaimRecordView

	StoreClaimRecord(record ClaimRecord) error
	NextSupplierPaymentIndex(claimID *big.Int) (uint64, error)
}

type claimRecordDB struct {
	gorm *gorm.DB
}

func NewClaimRecordDB(db *gorm.DB) ClaimRecordDB {
	return &claimRecordDB{gorm: db}
}

// StoreClaimRecord ignores a claim id it has already seen, so replaying a block range is safe.
func (c *claimRecordDB) StoreClaimRecord(record ClaimRecord) error {
	return c.gorm.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

func (c *claimRecordDB) QueryClaimRecord(claimID *big.Int) (*ClaimRecord, error) {
	return c.take(c.gorm.Where("claim_id = ?", claimID.String()))
}

func (c *claimRecordDB) QueryClaimByInvoiceHash(invoiceHash common.Hash) (*ClaimRecord, error) {
	return c.take(c.gorm.Where("invoice_hash = ?", invoiceHash.Hex()).Order("created_at DESC"))
}

func (c *claimRecordDB) take(query *gorm.DB) (*ClaimRecord, error) {
	var record ClaimRecord
	if err := query.Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// QueryDepartmentClaimAmounts lists the amounts of the department's claims filed before
// beforeClaim, oldest first.
func (c *claimRecordDB) QueryDepartmentClaimAmounts(department common.Address, beforeClaim *big.Int) ([]*big.Int, error) {
	var records []ClaimRecord
	err := c.gorm.Select("claim_id", "amount").
		Where("department = ? AND claim_id < ?", hexLower(department), beforeClaim.String()).
		Order("claim_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	amounts := make([]*big.Int, 0, len(records))
	for _, r := range records {
		amounts = append(amounts, r.Amount)
	}
	return amounts, nil
}

// NextSupplierPaymentIndex hands out the per-claim supplier payment index, starting at 0.
func (c *claimRecordDB) NextSupplierPaymentIndex(claimID *big.Int) (uint64, error) {
	var index uint64
	err := c.gorm.Transaction(func(tx *gorm.DB) error {
		var record ClaimRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("claim_id = ?", claimID.String()).
			Take(&record).Error
		if err != nil {
			return err
		}
		index = record.SupplierPayments
		return tx.Model(&ClaimRecord{}).
			Where("claim_id = ?", claimID.String()).
			Update("supplier_payments", gorm.Expr("supplier_payments + 1")).Error
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}
