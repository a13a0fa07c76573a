package worker

import (
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VendorAssignment maps a selected vendor to the department that selected it.
type VendorAssignment struct {
	Vendor       common.Address `gorm:"primaryKey;serializer:bytes" json:"vendor"`
	Department   common.Address `gorm:"serializer:bytes;index" json:"department"`
	BudgetID     *big.Int       `gorm:"serializer:u256;type:numeric" json:"budgetId"`
	AllocationID *big.Int       `gorm:"serializer:u256;type:numeric" json:"allocationId"`
	Active       bool           `gorm:"default:true" json:"active"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (VendorAssignment) TableName() string {
	return "vendor_assignments"
}

type VendorAssignmentView interface {
	DepartmentOfVendor(vendor common.Address) (*common.Address, error)
}

type VendorAssignmentDB interface {
	VendorAssignmentView

	StoreVendorAssignment(VendorAssignment) error
	RemoveVendor(vendor common.Address) error
}

type vendorAssignmentDB struct {
	gorm *gorm.DB
}

func NewVendorAssignmentDB(db *gorm.DB) VendorAssignmentDB {
	return &vendorAssignmentDB{gorm: db}
}

// StoreVendorAssignment keeps the latest selection of a vendor.
func (v *vendorAssignmentDB) StoreVendorAssignment(a VendorAssignment) error {
	a.Active = true
	return v.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vendor"}},
		DoUpdates: clause.AssignmentColumns([]string{"department", "budget_id", "allocation_id", "active", "updated_at"}),
	}).Create(&a).Error
}

func (v *vendorAssignmentDB) RemoveVendor(vendor common.Address) error {
	return v.gorm.Model(&VendorAssignment{}).
		Where("vendor = ?", hexLower(vendor)).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()}).Error
}

// DepartmentOfVendor returns nil for an unknown or removed vendor.
func (v *vendorAssignmentDB) DepartmentOfVendor(vendor common.Address) (*common.Address, error) {
	var a VendorAssignment
	err := v.gorm.Where("vendor = ? AND active = ?", hexLower(vendor), true).Take(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a.Department, nil
}

func hexLower(a common.Address) string {
	return strings.ToLower(a.Hex())
}
