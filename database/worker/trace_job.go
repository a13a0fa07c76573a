package worker

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Trace job status
const (
	StatusPending = 0
	StatusSuccess = 2
	StatusFailed  = 3
)

var statusNames = map[uint8]string{
	StatusPending: "pending",
	StatusSuccess: "success",
	StatusFailed:  "failed",
}

// TraceJob is one payment chain trace request and its outcome.
type TraceJob struct {
	GUID         uuid.UUID   `gorm:"primaryKey;type:uuid" json:"guid"`
	TxHash       common.Hash `gorm:"serializer:bytes;index" json:"txHash"`
	RequestedBy  string      `gorm:"type:varchar(64)" json:"requestedBy"`
	Status       uint8       `gorm:"default:0;index" json:"-"`
	Participants int         `json:"participants"`
	TotalValue   *big.Int    `gorm:"serializer:u256;type:numeric" json:"totalValue"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (TraceJob) TableName() string {
	return "trace_jobs"
}

func (j TraceJob) StatusName() string {
	if name, ok := statusNames[j.Status]; ok {
		return name
	}
	return "unknown"
}

type TraceJobView interface {
	QueryTraceJobByGUID(guid uuid.UUID) (*TraceJob, error)
	QueryTraceJobsByTx(txHash common.Hash, limit int) ([]TraceJob, error)
	GetStatusStatistics() (map[string]int64, error)
}

type TraceJobDB interface {
	TraceJobView

	StartTraceJob(txHash common.Hash, requestedBy string) (uuid.UUID, error)
	CompleteTraceJob(guid uuid.UUID, participants int, totalValue *big.Int) error
	FailTraceJob(guid uuid.UUID, reason string) error
	CleanupOldRecords(olderThan time.Time) (int64, error)
}

type traceJobDB struct {
	gorm *gorm.DB
}

func NewTraceJobDB(db *gorm.DB) TraceJobDB {
	return &traceJobDB{gorm: db}
}

func (t *traceJobDB) StartTraceJob(txHash common.Hash, requestedBy string) (uuid.UUID, error) {
	job := TraceJob{
		GUID:        uuid.New(),
		TxHash:      txHash,
		RequestedBy: requestedBy,
		Status:      StatusPending,
	}
	if err := t.gorm.Create(&job).Error; err != nil {
		return uuid.Nil, err
	}
	return job.GUID, nil
}

func (t *traceJobDB) CompleteTraceJob(guid uuid.UUID, participants int, totalValue *big.Int) error {
	return t.update(guid, map[string]interface{}{
		"status":       StatusSuccess,
		"participants": participants,
		"total_value":  totalValue.String(),
		"updated_at":   time.Now(),
	})
}

func (t *traceJobDB) FailTraceJob(guid uuid.UUID, reason string) error {
	return t.update(guid, map[string]interface{}{
		"status":        StatusFailed,
		"error_message": reason,
		"updated_at":    time.Now(),
	})
}

func (t *traceJobDB) update(guid uuid.UUID, updates map[string]interface{}) error {
	result := t.gorm.Model(&TraceJob{}).Where("guid = ?", guid).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (t *traceJobDB) QueryTraceJobByGUID(guid uuid.UUID) (*TraceJob, error) {
	var job TraceJob
	err := t.gorm.Where("guid = ?", guid).Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// QueryTraceJobsByTx returns the newest jobs of txHash first.
func (t *traceJobDB) QueryTraceJobsByTx(txHash common.Hash, limit int) ([]TraceJob, error) {
	var jobs []TraceJob
	query := t.gorm.Where("tx_hash = ?", txHash.Hex()).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (t *traceJobDB) GetStatusStatistics() (map[string]int64, error) {
	var rows []struct {
		Status uint8
		Count  int64
	}
	err := t.gorm.Model(&TraceJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int64, len(rows))
	for _, r := range rows {
		stats[TraceJob{Status: r.Status}.StatusName()] = r.Count
	}
	return stats, nil
}

func (t *traceJobDB) CleanupOldRecords(olderThan time.Time) (int64, error) {
	result := t.gorm.Where("created_at < ? AND status <> ?", olderThan, StatusPending).Delete(&TraceJob{})
	return result.RowsAffected, result.Error
}
