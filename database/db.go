package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/config"
	"github.com/transparencyx/chaintrace/database/common"
	_ "github.com/transparencyx/chaintrace/database/utils/serializers"
	"github.com/transparencyx/chaintrace/database/worker"
)

type DB struct {
	gorm *gorm.DB

	Blocks         common.BlocksDB
	ContractEvents common.ContractEventsDB
	Cursors        common.EventCursorsDB
	Claims         worker.ClaimRecordDB
	Vendors        worker.VendorAssignmentDB
	Roles          worker.RoleAssignmentDB
	TraceJobs      worker.TraceJobDB
}

// Models lists every table owned by the operational store.
var Models = []interface{}{
	&common.BlockHeader{},
	&common.ContractEvent{},
	&common.EventCursor{},
	&worker.ClaimRecord{},
	&worker.VendorAssignment{},
	&worker.RoleAssignment{},
	&worker.TraceJob{},
}

func NewDB(ctx context.Context, dbConfig config.DBConfig) (*DB, error) {
	db, err := Open(postgres.Open(dbConfig.DSN()))
	if err != nil {
		return nil, errs.Wrap(errs.TypeDatabase, "open postgres", err).AddContext("host", dbConfig.Host)
	}
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return nil, errs.Wrap(errs.TypeDatabase, "postgres handle", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, errs.Wrap(errs.TypeDatabase, "postgres ping failed", err).AddContext("host", dbConfig.Host)
	}
	log.Info("connected to postgres", "host", dbConfig.Host, "database", dbConfig.Name)
	return db, nil
}

// Open builds a DB on any gorm dialector.
func Open(dialector gorm.Dialector) (*DB, error) {
	gormConfig := gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        3_000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
	gorm, err := gorm.Open(dialector, &gormConfig)
	if err != nil {
		return nil, err
	}
	return newDB(gorm), nil
}

func newDB(gorm *gorm.DB) *DB {
	return &DB{
		gorm:           gorm,
		Blocks:         common.NewBlocksDB(gorm),
		ContractEvents: common.NewContractEventsDB(gorm),
		Cursors:        common.NewEventCursorsDB(gorm),
		Claims:         worker.NewClaimRecordDB(gorm),
		Vendors:        worker.NewVendorAssignmentDB(gorm),
		Roles:          worker.NewRoleAssignmentDB(gorm),
		TraceJobs:      worker.NewTraceJobDB(gorm),
	}
}

func (db *DB) Transaction(fn func(db *DB) error) error {
	return db.gorm.Transaction(func(tx *gorm.DB) error {
		return fn(newDB(tx))
	})
}

func (db *DB) Close() error {
	sql, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sql.Close()
}

// AutoMigrate creates the tables from the models. Production schemas come from
// ExecuteSQLMigration; this serves embedded databases.
func (db *DB) AutoMigrate() error {
	return db.gorm.AutoMigrate(Models...)
}

// ExecuteSQLMigration runs every .sql file under migrationsFolder in lexical order.
func (db *DB) ExecuteSQLMigration(migrationsFolder string) error {
	var files []string
	err := filepath.Walk(migrationsFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Failed to process migration file: %s", path))
		}
		if info.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, path := range files {
		fileContent, readErr := os.ReadFile(path)
		if readErr != nil {
			return errors.Wrap(readErr, fmt.Sprintf("Error reading SQL file: %s", path))
		}
		if execErr := db.gorm.Exec(string(fileContent)).Error; execErr != nil {
			return errors.Wrap(execErr, fmt.Sprintf("Error executing SQL script: %s", path))
		}
		log.Info("applied migration", "file", filepath.Base(path))
	}
	return nil
}
