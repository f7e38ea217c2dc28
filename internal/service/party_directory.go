package service

import (
	"context"
	"errors"

	"courierledger/internal/infrastructure/cache"
	"courierledger/internal/repository"

	"gorm.io/gorm"
)

// PartyDirectory 对应外部协作方 getPartyRegion(partyId)
type PartyDirectory interface {
	PartyRegion(ctx context.Context, partyID int64) (*int64, error)
}

// DBPartyDirectory 从 party 表读取区域，结果缓存
type DBPartyDirectory struct {
	partyRepo *repository.PartyRepository
	regions   *cache.LookupCache[int64, *int64]
}

func NewDBPartyDirectory(db *gorm.DB, regions *cache.LookupCache[int64, *int64]) *DBPartyDirectory {
	return &DBPartyDirectory{
		partyRepo: repository.NewPartyRepository(db),
		regions:   regions,
	}
}

// PartyRegion 客户不存在或未设置区域时返回 nil
func (d *DBPartyDirectory) PartyRegion(ctx context.Context, partyID int64) (*int64, error) {
	return d.regions.GetOrLoad(ctx, partyID, func(ctx context.Context) (*int64, error) {
		party, err := d.partyRepo.GetByID(ctx, partyID)
		if err != nil {
			if errors.Is(err, repository.ErrPartyNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return party.RegionID, nil
	})
}
