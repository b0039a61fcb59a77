package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrNoPlanFound = errors.New("no pricing plan found")
)

type PricingRepository struct {
	*pg.DB
}

func NewPricingRepository(db *pg.DB) *PricingRepository {
	return &PricingRepository{
		db,
	}
}

func (r *PricingRepository) Create(ctx context.Context, plan *model.PricingPlan) (*model.PricingPlan, error) {
	entity := toPricingPlanEntity(plan)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toPricingPlanModel(entity), nil
}

// Resolve finds the unit price for (merchant, country, channel type)
// effective at the given instant. Merchant-specific plans take precedence
// over platform defaults; within each tier the most recently effective
// plan wins. ErrNoPlanFound means the caller should fall back to the
// configured default rate.
func (r *PricingRepository) Resolve(ctx context.Context, merchantID int64, countryCode string, chType model.ChannelType, at time.Time) (*model.PricingPlan, error) {
	// merchant-specific plan first
	plan, err := r.lookup(ctx, &merchantID, countryCode, chType, at)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, ErrNoPlanFound) {
		return nil, err
	}

	// platform default
	return r.lookup(ctx, nil, countryCode, chType, at)
}

func (r *PricingRepository) lookup(ctx context.Context, merchantID *int64, countryCode string, chType model.ChannelType, at time.Time) (*model.PricingPlan, error) {
	q := r.Read(ctx).WithContext(ctx).
		Where("country_code = ?", countryCode).
		Where("channel_type = ?", string(chType)).
		Where("effective_at <= ?", at)

	if merchantID != nil {
		q = q.Where("merchant_id = ?", *merchantID)
	} else {
		q = q.Where("merchant_id IS NULL")
	}

	var entity PricingPlanEntity
	err := q.Order("effective_at DESC").First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoPlanFound
		}
		return nil, err
	}
	return toPricingPlanModel(&entity), nil
}
