package batcher

import (
	"context"
	"fmt"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/errs"
	"gitee.com/flycash/broadcast-platform/internal/repository"
	"github.com/gotomicro/ego/core/elog"
)

// DefaultBatchSize 单个批次的接收者数量上限，
// 取值要保证单批落库不触碰存储侧的单请求限制
const DefaultBatchSize = 1000

// BatchResult 分批结果
type BatchResult struct {
	// BatchKeys 按批次序号排列的批次键
	BatchKeys []string
	// TotalCount 落库的接收者总数
	TotalCount int64
	// HasPendingInstallation 是否存在还没有可投递会话的接收者
	HasPendingInstallation bool
}

// Batcher 把扁平的接收者列表切成固定大小的批次并落库
// 只负责落库，不负责入队，两者分开才能各自独立重试
type Batcher interface {
	Batch(ctx context.Context, notificationID uint64, recipients []domain.Recipient) (BatchResult, error)
}

type batcher struct {
	repo      repository.RecipientRepository
	batchSize int
	logger    *elog.Component
}

// NewBatcher 创建分批器
func NewBatcher(repo repository.RecipientRepository) Batcher {
	return &batcher{
		repo:      repo,
		batchSize: DefaultBatchSize,
		logger:    elog.DefaultLogger,
	}
}

func (b *batcher) Batch(ctx context.Context, notificationID uint64, recipients []domain.Recipient) (BatchResult, error) {
	if recipients == nil {
		return BatchResult{}, fmt.Errorf("%w: 接收者列表为nil", errs.ErrInvalidParameter)
	}
	if len(recipients) == 0 {
		return BatchResult{}, nil
	}

	var result BatchResult
	batchIndex := 0
	for start := 0; start < len(recipients); start += b.batchSize {
		end := start + b.batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		chunk := recipients[start:end]
		batchIndex++
		// 批次序号从1开始
		batchKey := domain.MakeBatchKey(notificationID, batchIndex)

		records := make([]domain.RecipientRecord, 0, len(chunk))
		for _, recipient := range chunk {
			if err := recipient.Validate(); err != nil {
				return BatchResult{}, err
			}
			if recipient.PendingInstallation() {
				result.HasPendingInstallation = true
			}
			records = append(records, domain.RecipientRecord{
				NotificationID: notificationID,
				BatchKey:       batchKey,
				Recipient:      recipient,
				Status:         domain.DeliveryStatusPending,
			})
		}

		// 整个批次一次落库，失败时调用方重试整个批次
		if err := b.repo.BatchCreate(ctx, records); err != nil {
			return BatchResult{}, fmt.Errorf("批次落库失败: batchKey=%s, %w", batchKey, err)
		}

		result.BatchKeys = append(result.BatchKeys, batchKey)
		result.TotalCount += int64(len(chunk))
	}

	b.logger.Info("分批落库完成",
		elog.Any("notificationID", notificationID),
		elog.Int("batches", len(result.BatchKeys)),
		elog.Int64("total", result.TotalCount))
	return result, nil
}
