package inbound

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/core/apperror"
)

func TestGoodsReceipt_Transition(t *testing.T) {
	g := &GoodsReceipt{Status: GRNReceiving}

	err := g.Transition(GRNPendingApproval)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
	assert.Equal(t, GRNReceiving, g.Status)

	require.NoError(t, g.Transition(GRNInspected))
	require.NoError(t, g.Transition(GRNPendingApproval))
	require.NoError(t, g.Transition(GRNCompleted))
	assert.Equal(t, GRNCompleted, g.Status)

	assert.Error(t, g.Transition(GRNReceiving))
}
