package common

import (
	"errors"
	"math/big"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventCursor records how far a consumer of the stored headers has got.
type EventCursor struct {
	Name        string   `gorm:"primaryKey;type:varchar(64)"`
	BlockNumber *big.Int `gorm:"serializer:u256;type:numeric"`
	UpdatedAt   time.Time
}

func (EventCursor) TableName() string {
	return "event_cursors"
}

type EventCursorsDB interface {
	Cursor(name string) (*big.Int, error)
	AdvanceCursor(name string, number *big.Int) error
}

type eventCursorsDB struct {
	gorm *gorm.DB
}

func NewEventCursorsDB(db *gorm.DB) EventCursorsDB {
	return &eventCursorsDB{gorm: db}
}

// Cursor returns nil for a consumer that has not processed anything yet.
func (e *eventCursorsDB) Cursor(name string) (*big.Int, error) {
	var cursor EventCursor
	err := e.gorm.Where("name = ?", name).Take(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return cursor.BlockNumber, nil
}

func (e *eventCursorsDB) AdvanceCursor(name string, number *big.Int) error {
	cursor := EventCursor{Name: name, BlockNumber: number, UpdatedAt: time.Now()}
	return e.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"block_number", "updated_at"}),
	}).Create(&cursor).Error
}
