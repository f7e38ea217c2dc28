package model

import (
	"time"
)

// WeightSlab 重量段，[MinWeightGrams, MaxWeightGrams) 半开区间
// MaxWeightGrams 为空表示无上限
type WeightSlab struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"type:varchar(64);not null" json:"name"`
	MinWeightGrams int64     `gorm:"not null;index" json:"min_weight_grams"`
	MaxWeightGrams *int64    `json:"max_weight_grams"`
	Active         bool      `gorm:"not null;index" json:"active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WeightSlab) TableName() string {
	return "weight_slab"
}

// Contains 判断重量是否落在本段内
func (s WeightSlab) Contains(weightGrams int64) bool {
	if weightGrams < s.MinWeightGrams {
		return false
	}
	return s.MaxWeightGrams == nil || weightGrams < *s.MaxWeightGrams
}

// Overlaps 判断两个半开区间是否有交集（MaxWeightGrams 为空视为正无穷）
func (s WeightSlab) Overlaps(other WeightSlab) bool {
	if other.MaxWeightGrams != nil && s.MinWeightGrams >= *other.MaxWeightGrams {
		return false
	}
	if s.MaxWeightGrams != nil && other.MinWeightGrams >= *s.MaxWeightGrams {
		return false
	}
	return true
}

// DistanceSlab / ServiceType / Mode 都是按 Code 唯一的枚举表

type DistanceSlab struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Title     string    `gorm:"type:varchar(128);not null" json:"title"`
	Active    bool      `gorm:"not null" json:"active"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DistanceSlab) TableName() string {
	return "distance_slab"
}

type ServiceType struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Title     string    `gorm:"type:varchar(128);not null" json:"title"`
	Active    bool      `gorm:"not null" json:"active"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ServiceType) TableName() string {
	return "service_type"
}

type Mode struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Title     string    `gorm:"type:varchar(128);not null" json:"title"`
	Active    bool      `gorm:"not null" json:"active"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Mode) TableName() string {
	return "mode"
}
