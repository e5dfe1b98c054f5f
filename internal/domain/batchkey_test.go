package domain

import (
	"testing"

	"gitee.com/flycash/broadcast-platform/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeBatchKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "1234:1", MakeBatchKey(1234, 1))
	assert.Equal(t, "1:9999", MakeBatchKey(1, 9999))
}

func TestParseBatchKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		wantID  uint64
		wantIdx int
		wantErr error
	}{
		{
			name:    "正常解析",
			key:     "1234:7",
			wantID:  1234,
			wantIdx: 7,
		},
		{
			name:    "缺少分隔符",
			key:     "1234",
			wantErr: errs.ErrInvalidBatchKey,
		},
		{
			name:    "多余的分隔符",
			key:     "12:34:56",
			wantErr: errs.ErrInvalidBatchKey,
		},
		{
			name:    "通知ID不是数字",
			key:     "abc:1",
			wantErr: errs.ErrInvalidBatchKey,
		},
		{
			name:    "批次序号不是数字",
			key:     "1234:x",
			wantErr: errs.ErrInvalidBatchKey,
		},
		{
			name:    "批次序号从1开始",
			key:     "1234:0",
			wantErr: errs.ErrInvalidBatchKey,
		},
		{
			name:    "负数批次序号",
			key:     "1234:-1",
			wantErr: errs.ErrInvalidBatchKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, idx, err := ParseBatchKey(tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantIdx, idx)
		})
	}
}

func TestBatchKeyRoundTrip(t *testing.T) {
	t.Parallel()
	const notificationID = uint64(987654321)
	for idx := 1; idx <= 100; idx++ {
		id, parsed, err := ParseBatchKey(MakeBatchKey(notificationID, idx))
		require.NoError(t, err)
		assert.Equal(t, notificationID, id)
		assert.Equal(t, idx, parsed)
	}
}
