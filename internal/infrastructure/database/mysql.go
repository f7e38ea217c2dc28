package database

import (
	"fmt"
	"time"

	"courierledger/internal/config"
	"courierledger/internal/infrastructure/logging"
	"courierledger/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitMySQL 初始化 MySQL 连接并迁移表结构
func InitMySQL(cfg *config.MySQLConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logging.Module("database").Info("MySQL 连接成功")
	return db, nil
}

// Migrate 自动迁移全部表结构，测试用 sqlite 库也走这里
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.WeightSlab{},
		&model.DistanceSlab{},
		&model.ServiceType{},
		&model.Mode{},
		&model.Party{},
		&model.RateDefault{},
		&model.PartyRateSlab{},
		&model.RateAudit{},
		&model.Invoice{},
		&model.InvoiceLine{},
		&model.PartyPayment{},
		&model.PaymentAllocation{},
		&model.AllocationRequest{},
		&model.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("自动迁移表结构失败: %w", err)
	}
	return nil
}
