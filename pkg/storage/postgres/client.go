package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"p2pcollector/config"
	"p2pcollector/pkg/storage"
)

type Client struct {
	DB *gorm.DB
}

func NewClient(dsn string) (*Client, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Client{DB: db}, nil
}

// Initialize connects to Postgres and applies pool settings. createDB issues
// CREATE DATABASE first; migrate runs AutoMigrate for every table.
func Initialize(cfg config.PostgresConfig, env string, createDB, migrate bool, logger *zap.Logger) (*Client, error) {
	if createDB {
		if err := CreateDatabase(cfg, env); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	client, err := NewClient(cfg.DSN(env))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := client.configurePool(cfg); err != nil {
		_ = client.Close()
		return nil, err
	}

	if migrate {
		if err := client.AutoMigrate(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	logger.Info("postgres ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Bool("migrated", migrate),
	)
	return client, nil
}

func (c *Client) configurePool(cfg config.PostgresConfig) error {
	db, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}

// AutoMigrate creates or updates dimension, snapshot and fact tables.
func (c *Client) AutoMigrate() error {
	if err := c.DB.AutoMigrate(storage.Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// IsHealthy pings the pool.
func (c *Client) IsHealthy(ctx context.Context) bool {
	db, err := c.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (c *Client) Close() error {
	db, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
