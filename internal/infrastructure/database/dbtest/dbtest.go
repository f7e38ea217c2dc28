// Package dbtest 为各包测试提供迁移好的内存 sqlite 库
package dbtest

import (
	"fmt"
	"regexp"
	"testing"

	"courierledger/internal/infrastructure/database"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Open 打开一个按测试名隔离的内存库
//
// sqlite 不支持 SELECT ... FOR UPDATE，gorm 的 sqlite 方言会忽略行锁子句。
// 只开一个连接，写入天然串行；事务内的查询必须走 tx，否则会自锁。
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", unsafeName.ReplaceAllString(t.Name(), "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
