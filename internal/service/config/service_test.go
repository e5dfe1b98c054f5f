package config

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/errs"
	"gitee.com/flycash/broadcast-platform/internal/repository/dao"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySettingsDAO 内存版配置DAO，记录回源次数
type memorySettingsDAO struct {
	mu    sync.Mutex
	items map[string]dao.DeliverySettings
	reads int
}

func newMemorySettingsDAO() *memorySettingsDAO {
	return &memorySettingsDAO{items: make(map[string]dao.DeliverySettings)}
}

func (d *memorySettingsDAO) GetByKey(_ context.Context, key string) (dao.DeliverySettings, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	cfg, ok := d.items[key]
	if !ok {
		return dao.DeliverySettings{}, fmt.Errorf("%w: key=%s", errs.ErrSettingsNotFound, key)
	}
	return cfg, nil
}

func (d *memorySettingsDAO) Upsert(_ context.Context, data dao.DeliverySettings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[data.BizKey] = data
	return nil
}

func (d *memorySettingsDAO) readCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func newTestService(d dao.DeliverySettingsDAO) DeliverySettingsService {
	return NewDeliverySettingsService(d, cache.New(time.Minute, time.Minute))
}

func TestGetFallsBackToDefaults(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemorySettingsDAO())

	settings, err := svc.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDeliverySettings(), settings)
}

func TestSaveThenGetRoundTrip(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemorySettingsDAO())

	want := domain.DeliverySettings{
		MaxAttempts:     7,
		MaxRedeliveries: 2,
		RedeliveryDelay: 10 * time.Minute,
		InitialBackoff:  2 * time.Second,
		MaxBackoff:      time.Minute,
	}
	require.NoError(t, svc.Save(context.Background(), DefaultKey, want))

	got, err := svc.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetUsesCache(t *testing.T) {
	t.Parallel()
	d := newMemorySettingsDAO()
	svc := newTestService(d)

	require.NoError(t, svc.Save(context.Background(), DefaultKey, domain.DefaultDeliverySettings()))

	for i := 0; i < 5; i++ {
		_, err := svc.Get(context.Background(), DefaultKey)
		require.NoError(t, err)
	}
	// 首次回源之后全部走本地缓存
	assert.Equal(t, 1, d.readCount())
}

func TestSaveInvalidatesCache(t *testing.T) {
	t.Parallel()
	d := newMemorySettingsDAO()
	svc := newTestService(d)

	first := domain.DefaultDeliverySettings()
	require.NoError(t, svc.Save(context.Background(), DefaultKey, first))
	_, err := svc.Get(context.Background(), DefaultKey)
	require.NoError(t, err)

	updated := first
	updated.MaxAttempts = 9
	require.NoError(t, svc.Save(context.Background(), DefaultKey, updated))

	got, err := svc.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, int32(9), got.MaxAttempts)
}

func TestGetPartialConfigMergesDefaults(t *testing.T) {
	t.Parallel()
	d := newMemorySettingsDAO()
	require.NoError(t, d.Upsert(context.Background(), dao.DeliverySettings{
		BizKey: DefaultKey,
		Config: `{"maxAttempts": 8}`,
	}))
	svc := newTestService(d)

	got, err := svc.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, int32(8), got.MaxAttempts)
	// 未配置的字段落到兜底值
	assert.Equal(t, domain.DefaultDeliverySettings().MaxBackoff, got.MaxBackoff)
}
