package database

import (
	"fmt"
	"log"
	"time"

	"earnlink/internal/config"
	"earnlink/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLDSN 拼接 MySQL 连接串
func MySQLDSN(cfg *config.MySQLConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
}

// PostgresDSN 拼接 PostgreSQL 连接串
func PostgresDSN(cfg *config.PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
}

// Open 按配置的驱动打开数据库并迁移表结构
func Open(cfg *config.Config) (*gorm.DB, error) {
	var (
		dialector    gorm.Dialector
		maxOpenConns int
		maxIdleConns int
	)

	switch cfg.Storage.Driver {
	case config.StorageDriverMySQL:
		dialector = mysql.Open(MySQLDSN(&cfg.MySQL))
		maxOpenConns, maxIdleConns = cfg.MySQL.MaxOpenConns, cfg.MySQL.MaxIdleConns
	case config.StorageDriverPostgres:
		dialector = postgres.Open(PostgresDSN(&cfg.Postgres))
		maxOpenConns, maxIdleConns = cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Storage.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true, // 唯一索引冲突转换为 gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Printf("数据库连接成功: driver=%s", cfg.Storage.Driver)
	return db, nil
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Transaction{},
		&model.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("自动迁移表结构失败: %w", err)
	}
	return nil
}
