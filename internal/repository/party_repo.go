package repository

import (
	"context"
	"errors"

	"courierledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPartyNotFound = errors.New("客户不存在")
)

type PartyRepository struct {
	db *gorm.DB
}

func NewPartyRepository(db *gorm.DB) *PartyRepository {
	return &PartyRepository{db: db}
}

func (r *PartyRepository) GetByID(ctx context.Context, id int64) (*model.Party, error) {
	var party model.Party
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&party).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartyNotFound
		}
		return nil, err
	}
	return &party, nil
}
