package helpers

import (
	"context"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/repository"
	"github.com/sakaloan5-create/sms-platform/pkg/pg"
	"github.com/sakaloan5-create/sms-platform/pkg/redis"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.MerchantEntity{},
		&repository.ChannelEntity{},
		&repository.MessageEntity{},
		&repository.TransactionEntity{},
		&repository.PricingPlanEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	adapter, err := redis.NewRedisAdapter("test", "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestMerchant(t *testing.T, db *pg.DB, m model.Merchant) *model.Merchant {
	ctx := context.Background()
	created, err := repository.NewMerchantRepository(db).Create(ctx, &m)
	require.NoError(t, err)
	return created
}

func CreateTestChannel(t *testing.T, db *pg.DB, ch *model.Channel) *model.Channel {
	ctx := context.Background()
	created, err := repository.NewChannelRepository(db).Create(ctx, ch)
	require.NoError(t, err)
	return created
}
