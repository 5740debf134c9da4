package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "crm/internal/core/context"
)

func TestNewEntryTakesActorFromContext(t *testing.T) {
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "acc-7", Role: "ACCOUNTANT"})
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{RequestID: "req-1"})

	e := NewEntry(ctx, "deal", "d-1", "deal.approve_finance", nil, nil)

	assert.Equal(t, "acc-7", e.ActorID)
	assert.Equal(t, "req-1", e.RequestID)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestChangesReportsChangedFields(t *testing.T) {
	type state struct {
		Status string `json:"status"`
		Amount string `json:"amount"`
	}
	e := Entry{
		Before: state{Status: "STOCK_CONFIRMED", Amount: "630"},
		After:  state{Status: "FINANCE_APPROVED", Amount: "630"},
	}

	changes, err := e.Changes()
	require.NoError(t, err)

	assert.Len(t, changes, 1)
	assert.Equal(t, map[string]any{"old": "STOCK_CONFIRMED", "new": "FINANCE_APPROVED"}, changes["status"])
}

func TestDiffDetectsRemovedKeys(t *testing.T) {
	changes := Diff(map[string]any{"hold": "truck"}, map[string]any{})

	assert.Equal(t, map[string]any{"old": "truck", "new": nil}, changes["hold"])
}
