package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/audit"
)

func TestAuditRecorder_EncodeDecode(t *testing.T) {
	rec, err := NewAuditRecorder(nil, 64)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	small := audit.Transition{
		EntityType: audit.EntitySalesOrder,
		EntityID:   id.New(),
		From:       "draft",
		To:         "pending_approval",
		UserID:     "clerk",
		Metadata:   map[string]any{"lines": float64(2)},
		At:         at,
	}

	t.Run("small metadata stays plain", func(t *testing.T) {
		row, err := rec.encode(small)
		require.NoError(t, err)
		assert.Equal(t, CompressionNone, row.CompressionAlgo)
		assert.NotEmpty(t, row.Metadata)
		assert.Nil(t, row.MetadataCompressed)

		back, err := rec.decode(row)
		require.NoError(t, err)
		assert.Equal(t, small, back)
	})

	t.Run("large metadata is compressed", func(t *testing.T) {
		big := small
		big.Metadata = map[string]any{"reason": strings.Repeat("spoiled ", 64)}

		row, err := rec.encode(big)
		require.NoError(t, err)
		assert.Equal(t, CompressionZstd, row.CompressionAlgo)
		assert.Nil(t, row.Metadata)
		assert.NotEmpty(t, row.MetadataCompressed)

		back, err := rec.decode(row)
		require.NoError(t, err)
		assert.Equal(t, big.Metadata, back.Metadata)
	})

	t.Run("zero time is stamped", func(t *testing.T) {
		row, err := rec.encode(audit.Transition{EntityID: id.New(), To: "draft"})
		require.NoError(t, err)
		assert.False(t, row.CreatedAt.IsZero())
		assert.Nil(t, row.Metadata)
	})
}
