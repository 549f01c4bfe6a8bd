package postgres

import (
	"log"

	"github.com/lonmstalker/advert-market-settlement/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// MustInitDB opens the settlement database. Schema changes go through
// migrations, never AutoMigrate.
func MustInitDB(cfg *config.SettlementConfig) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.SettlementDB.Dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("failed to init db: %v\n", err.Error())
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v\n", err)
	}
	sqlDB.SetMaxOpenConns(cfg.SettlementDB.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.SettlementDB.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.SettlementDB.ConnMaxLifetime)

	return db
}
