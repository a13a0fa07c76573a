package worker

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleAssignment is the confirmed on-chain role of an address.
type RoleAssignment struct {
	Address   common.Address `gorm:"primaryKey;serializer:bytes" json:"address"`
	Role      string         `gorm:"type:varchar(32)" json:"role"`
	Sponsor   common.Address `gorm:"serializer:bytes" json:"sponsor"`
	Active    bool           `gorm:"default:true" json:"active"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (RoleAssignment) TableName() string {
	return "role_assignments"
}

type RoleAssignmentView interface {
	RoleOf(address common.Address) (string, error)
}

type RoleAssignmentDB interface {
	RoleAssignmentView

	AssignRole(address common.Address, role string, sponsor common.Address) error
	RevokeRole(address common.Address, role string) error
}

type roleAssignmentDB struct {
	gorm *gorm.DB
}

func NewRoleAssignmentDB(db *gorm.DB) RoleAssignmentDB {
	return &roleAssignmentDB{gorm: db}
}

// AssignRole replaces whatever role the address held before.
func (r *roleAssignmentDB) AssignRole(address common.Address, role string, sponsor common.Address) error {
	a := RoleAssignment{Address: address, Role: role, Sponsor: sponsor, Active: true}
	return r.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "sponsor", "active", "updated_at"}),
	}).Create(&a).Error
}

// RevokeRole only revokes when the address still holds role.
func (r *roleAssignmentDB) RevokeRole(address common.Address, role string) error {
	return r.gorm.Model(&RoleAssignment{}).
		Where("address = ? AND role = ?", hexLower(address), role).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()}).Error
}

// RoleOf returns "" for an address without an active role.
func (r *roleAssignmentDB) RoleOf(address common.Address) (string, error) {
	var a RoleAssignment
	err := r.gorm.Where("address = ? AND active = ?", hexLower(address), true).Take(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return a.Role, nil
}
