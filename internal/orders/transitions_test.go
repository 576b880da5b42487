package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

func TestTransitionTable(t *testing.T) {
	statuses := []enums.OrderStatus{
		enums.OrderStatusShipping,
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
		enums.OrderStatusReturnRequested,
		enums.OrderStatusReturned,
	}
	allowed := map[[2]enums.OrderStatus]bool{
		{enums.OrderStatusShipping, enums.OrderStatusCompleted}:        true,
		{enums.OrderStatusShipping, enums.OrderStatusCancelled}:        true,
		{enums.OrderStatusCompleted, enums.OrderStatusReturnRequested}: true,
		{enums.OrderStatusReturnRequested, enums.OrderStatusReturned}:  true,
		{enums.OrderStatusReturnRequested, enums.OrderStatusCompleted}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]enums.OrderStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
			err := ValidateTransition(from, to)
			if want {
				assert.NoError(t, err)
			} else {
				assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition), "%s -> %s", from, to)
			}
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, status := range []enums.OrderStatus{enums.OrderStatusCancelled, enums.OrderStatusReturned} {
		assert.True(t, status.IsTerminal())
		assert.Empty(t, allowedTransitions[status])
	}
}
