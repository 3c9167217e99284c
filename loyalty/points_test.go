package loyalty_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointsmith/loyalty-engine/loyalty"
)

func TestAwardForSubtotal(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		want     int64
	}{
		{"just below threshold", "9.99", 0},
		{"exact threshold", "10.00", 1},
		{"just above threshold", "10.01", 1},
		{"top of one-point band", "19.99", 1},
		{"two points", "20.00", 2},
		{"typical order", "50.00", 5},
		{"integer string", "50", 5},
		{"zero", "0.00", 0},
		{"empty string", "", 0},
		{"garbage", "not-a-number", 0},
		{"negative clamped to zero", "-5.00", 0},
		{"large order", "123456.78", 12345},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, loyalty.AwardForSubtotal(tt.subtotal))
		})
	}
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "order_450789469_processed", loyalty.EventKey("450789469"))
}

func adj(op loyalty.AdjustmentOp, amount int64) loyalty.Adjustment {
	return loyalty.Adjustment{CustomerID: "cust-1", Op: op, Amount: amount}
}

func TestNextPoints(t *testing.T) {
	tests := []struct {
		name    string
		current int64
		adj     loyalty.Adjustment
		want    int64
		wantErr error
	}{
		{"add", 5, adj(loyalty.AdjustAdd, 3), 8, nil},
		{"add to empty balance", 0, adj(loyalty.AdjustAdd, 10), 10, nil},
		{"add zero rejected", 5, adj(loyalty.AdjustAdd, 0), 0, loyalty.ErrInvalidDelta},
		{"add negative rejected", 5, adj(loyalty.AdjustAdd, -1), 0, loyalty.ErrInvalidDelta},
		{"subtract", 5, adj(loyalty.AdjustSubtract, 2), 3, nil},
		{"subtract to zero", 5, adj(loyalty.AdjustSubtract, 5), 0, nil},
		{"subtract overdraw rejected", 5, adj(loyalty.AdjustSubtract, 6), 0, loyalty.ErrInsufficientPoints},
		{"subtract zero rejected", 5, adj(loyalty.AdjustSubtract, 0), 0, loyalty.ErrInvalidDelta},
		{"set", 5, adj(loyalty.AdjustSet, 2), 2, nil},
		{"set to zero", 5, adj(loyalty.AdjustSet, 0), 0, nil},
		{"set negative rejected", 5, adj(loyalty.AdjustSet, -1), 0, loyalty.ErrInvalidDelta},
		{"unknown op rejected", 5, loyalty.Adjustment{Op: "divide", Amount: 2}, 0, loyalty.ErrInvalidDelta},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loyalty.NextPoints(tt.current, tt.adj)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextPoints_Overdraw_ReportsAmounts(t *testing.T) {
	_, err := loyalty.NextPoints(3, loyalty.Adjustment{
		CustomerID: "cust-1",
		Op:         loyalty.AdjustSubtract,
		Amount:     10,
	})

	var ipe *loyalty.InsufficientPointsError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, loyalty.CustomerID("cust-1"), ipe.CustomerID)
	assert.Equal(t, int64(3), ipe.Available)
	assert.Equal(t, int64(10), ipe.Requested)
}
