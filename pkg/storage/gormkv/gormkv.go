// Package gormkv is a storage.Backend persisted in a SQL table through gorm.
package gormkv

import (
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Item is one stored key/value row.
type Item struct {
	Key       string    `gorm:"column:key;primaryKey;size:512"`
	Value     string    `gorm:"column:value;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Item) TableName() string { return "sop_kv_items" }

// Backend implements storage.Backend on top of a gorm connection.
type Backend struct {
	db *gorm.DB
}

// New wraps db and migrates the items table.
func New(db *gorm.DB) (*Backend, error) {
	if db == nil {
		return nil, errors.New("gormkv: nil db")
	}
	if err := db.AutoMigrate(&Item{}); err != nil {
		return nil, err
	}
	return &Backend{db: db}, nil
}

// Open connects to postgres at dsn with gorm logging silenced.
func Open(dsn string) (*Backend, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return New(db)
}

func (b *Backend) GetItem(key string) (string, bool, error) {
	var item Item
	err := b.db.Where("key = ?", key).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return item.Value, true, nil
}

func (b *Backend) SetItem(key, value string) error {
	return b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Item{Key: key, Value: value}).Error
}

func (b *Backend) RemoveItem(key string) error {
	return b.db.Where("key = ?", key).Delete(&Item{}).Error
}

// Keys returns keys in insertion order.
func (b *Backend) Keys() ([]string, error) {
	var keys []string
	err := b.db.Model(&Item{}).Order("created_at, key").Pluck("key", &keys).Error
	return keys, err
}
