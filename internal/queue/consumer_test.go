package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessage_AppendsConfirmation(t *testing.T) {
	dir := t.TempDir()
	c := NewConsumer("amqp://unused", dir)

	body, err := json.Marshal(PurchaseConfirmedEvent{
		OrderID: 7, UserID: 3, SeatSaleID: 2, TicketIDs: []uint64{10, 11},
		TotalPrice: 9000, ConfirmedAt: "2026-05-01T12:00:00Z",
	})
	require.NoError(t, err)
	require.NoError(t, c.HandleMessage(body))
	require.NoError(t, c.HandleMessage(body))

	b, err := os.ReadFile(filepath.Join(dir, "purchase.log"))
	require.NoError(t, err)
	line := "[2026-05-01T12:00:00Z] Purchase confirmed | order_id=7 | user_id=3 | seat_sale_id=2 | total=9000 | tickets=[10,11]\n"
	assert.Equal(t, line+line, string(b))
}

func TestHandleMessage_RejectsMalformedBody(t *testing.T) {
	dir := t.TempDir()
	err := NewConsumer("amqp://unused", dir).HandleMessage([]byte("{"))
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "purchase.log"))
	assert.True(t, os.IsNotExist(statErr))
}
