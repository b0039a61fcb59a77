package repository

import (
	"context"
	"errors"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
)

type ChannelRepository struct {
	*pg.DB
}

func NewChannelRepository(db *pg.DB) *ChannelRepository {
	return &ChannelRepository{
		db,
	}
}

func (r *ChannelRepository) Create(ctx context.Context, ch *model.Channel) (*model.Channel, error) {
	entity := toChannelEntity(ch)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toChannelModel(entity), nil
}

func (r *ChannelRepository) GetByID(ctx context.Context, id int64) (*model.Channel, error) {
	var entity ChannelEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	return toChannelModel(&entity), nil
}

// ListActive returns active channels of the given type in deterministic
// order: priority ascending, then creation order. Selection logic on top
// of this must produce the same channel for the same inputs every time.
func (r *ChannelRepository) ListActive(ctx context.Context, chType model.ChannelType) ([]*model.Channel, error) {
	var entities []*ChannelEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("type = ?", string(chType)).
		Where("status = ?", string(model.ChannelStatusActive)).
		Order("priority ASC").
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toChannelModels(entities), nil
}

func (r *ChannelRepository) List(ctx context.Context, f model.ChannelFilter) ([]*model.Channel, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&ChannelEntity{})

	if f.Type != nil {
		q = q.Where("type = ?", string(*f.Type))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.Provider != nil {
		q = q.Where("provider = ?", *f.Provider)
	}

	var entities []*ChannelEntity
	if err := q.Order("priority ASC").Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toChannelModels(entities), nil
}

// UpdateStatus moves a channel between operational states. Channels are
// never deleted; deactivation preserves message history references.
func (r *ChannelRepository) UpdateStatus(ctx context.Context, id int64, status model.ChannelStatus) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&ChannelEntity{}).
		Where("id = ?", id).
		Update("status", string(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// UpdateSuccessRate stores the rolling delivery rate computed by the
// monitoring sweep.
func (r *ChannelRepository) UpdateSuccessRate(ctx context.Context, id int64, rate float64) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&ChannelEntity{}).
		Where("id = ?", id).
		Update("success_rate", rate)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChannelNotFound
	}
	return nil
}
