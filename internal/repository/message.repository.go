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
	// ErrNotFound is returned when a message does not exist.
	ErrNotFound = errors.New("message not found")
)

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{
		db,
	}
}

func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	entity := toMessageEntity(msg)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toMessageModel(entity), nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toMessageModel(&entity), nil
}

// GetForMerchant scopes the lookup to the owning merchant so one tenant
// can never read another tenant's message.
func (r *MessageRepository) GetForMerchant(ctx context.Context, id string, merchantID int64) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toMessageModel(&entity), nil
}

// GetByExternalID resolves a provider callback to our message row.
func (r *MessageRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toMessageModel(&entity), nil
}

// MarkSent transitions queued -> sent and records the provider message id.
// The guarded WHERE makes the transition race-safe: a message cancelled or
// failed in the meantime is left untouched and false is returned.
func (r *MessageRepository) MarkSent(ctx context.Context, id string, externalID string, sentAt time.Time) (bool, error) {
	result := r.Write(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("id = ? AND status = ?", id, string(model.MessageStatusQueued)).
		Updates(map[string]interface{}{
			"status":      string(model.MessageStatusSent),
			"external_id": externalID,
			"sent_at":     sentAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// TransitionStatus applies a guarded state-machine move: the row is
// updated only if its current status is one of from. Returns whether the
// transition happened. Duplicate provider callbacks land here as no-ops.
func (r *MessageRepository) TransitionStatus(ctx context.Context, id string, from []model.MessageStatus, to model.MessageStatus, fields map[string]interface{}) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	updates := map[string]interface{}{"status": string(to)}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("id = ? AND status IN ?", id, statuses).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *MessageRepository) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&MessageEntity{})

	if f.MerchantID != nil {
		q = q.Where("merchant_id = ?", *f.MerchantID)
	}
	if f.Destination != nil && *f.Destination != "" {
		q = q.Where("destination = ?", *f.Destination)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*MessageEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toMessageModels(entities), total, nil
}

// CountByStatusSince aggregates message counts per (channel, status) in
// the trailing window. Feeds the monitoring sweep.
func (r *MessageRepository) CountByStatusSince(ctx context.Context, since time.Time) (map[int64]map[model.MessageStatus]int64, error) {
	type row struct {
		ChannelID int64
		Status    string
		N         int64
	}
	var rows []row
	err := r.Read(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Select("channel_id, status, COUNT(*) as n").
		Where("created_at >= ?", since).
		Group("channel_id").
		Group("status").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}

	out := make(map[int64]map[model.MessageStatus]int64)
	for _, r := range rows {
		if out[r.ChannelID] == nil {
			out[r.ChannelID] = make(map[model.MessageStatus]int64)
		}
		out[r.ChannelID][model.MessageStatus(r.Status)] = r.N
	}
	return out, nil
}
