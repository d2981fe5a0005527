package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusCompleted, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusFailed, true},
		{OrderStatusProcessing, OrderStatusCancelled, false},
		{OrderStatusCompleted, OrderStatusDisputed, true},
		{OrderStatusCompleted, OrderStatusPending, false},
		{OrderStatusDisputed, OrderStatusCompleted, true},
		{OrderStatusCancelled, OrderStatusCompleted, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusFailed, OrderStatusCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.False(t, OrderStatusDisputed.IsTerminal())
}

func TestDownloadToken_Remaining(t *testing.T) {
	assert.Equal(t, 3, DownloadToken{DownloadLimit: 5, DownloadCount: 2}.Remaining())
	assert.Equal(t, 0, DownloadToken{DownloadLimit: 5, DownloadCount: 7}.Remaining())
}
