package batcher

import (
	"context"
	"fmt"
	"testing"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/errs"
	"gitee.com/flycash/broadcast-platform/internal/test/fakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUsers(n int) []domain.Recipient {
	recipients := make([]domain.Recipient, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("user-%04d", i)
		recipients = append(recipients, domain.NewUserRecipient(id, "conv-"+id, "https://push.example.com"))
	}
	return recipients
}

func TestBatchSplitsByFixedSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		count       int
		wantBatches int
		wantLast    int
	}{
		{name: "刚好一个批次", count: DefaultBatchSize, wantBatches: 1, wantLast: DefaultBatchSize},
		{name: "多一个溢出", count: DefaultBatchSize + 1, wantBatches: 2, wantLast: 1},
		{name: "两个半批次", count: 2*DefaultBatchSize + 500, wantBatches: 3, wantLast: 500},
		{name: "单个接收者", count: 1, wantBatches: 1, wantLast: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := fakes.NewRecipientRepo()
			b := NewBatcher(repo)
			const notificationID = uint64(42)

			result, err := b.Batch(context.Background(), notificationID, newUsers(tt.count))
			require.NoError(t, err)

			assert.Equal(t, int64(tt.count), result.TotalCount)
			require.Len(t, result.BatchKeys, tt.wantBatches)

			// 批次键从1开始连续编号
			for i, key := range result.BatchKeys {
				id, idx, err1 := domain.ParseBatchKey(key)
				require.NoError(t, err1)
				assert.Equal(t, notificationID, id)
				assert.Equal(t, i+1, idx)
			}

			// 每个落库的接收者都有批次，最后一个批次装余数
			last, err := repo.FindByBatchKey(context.Background(),
				result.BatchKeys[tt.wantBatches-1], 0, DefaultBatchSize)
			require.NoError(t, err)
			assert.Len(t, last, tt.wantLast)

			counters, err := repo.CountByStatus(context.Background(), notificationID)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.count), counters.Total)
			assert.Equal(t, int64(tt.count), counters.Pending)
		})
	}
}

func TestBatchEmptyAndNil(t *testing.T) {
	t.Parallel()

	b := NewBatcher(fakes.NewRecipientRepo())

	_, err := b.Batch(context.Background(), 1, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	result, err := b.Batch(context.Background(), 1, []domain.Recipient{})
	require.NoError(t, err)
	assert.Zero(t, result.TotalCount)
	assert.Empty(t, result.BatchKeys)
}

func TestBatchFlagsPendingInstallation(t *testing.T) {
	t.Parallel()

	repo := fakes.NewRecipientRepo()
	b := NewBatcher(repo)

	recipients := []domain.Recipient{
		domain.NewUserRecipient("u1", "conv-1", "https://push.example.com"),
		// 还没安装应用，没有会话
		domain.NewUserRecipient("u2", "", ""),
	}
	result, err := b.Batch(context.Background(), 7, recipients)
	require.NoError(t, err)
	assert.True(t, result.HasPendingInstallation)
	assert.Equal(t, int64(2), result.TotalCount)
}

func TestBatchRejectsInvalidRecipient(t *testing.T) {
	t.Parallel()

	b := NewBatcher(fakes.NewRecipientRepo())
	_, err := b.Batch(context.Background(), 7, []domain.Recipient{
		{Type: domain.RecipientTypeUser, ID: ""},
	})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestBatchIsIdempotentOnRetry(t *testing.T) {
	t.Parallel()

	repo := fakes.NewRecipientRepo()
	b := NewBatcher(repo)
	recipients := newUsers(10)

	_, err := b.Batch(context.Background(), 9, recipients)
	require.NoError(t, err)
	// 整体重跑不会产生重复记录
	result, err := b.Batch(context.Background(), 9, recipients)
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.TotalCount)

	counters, err := repo.CountByStatus(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(10), counters.Total)
}
