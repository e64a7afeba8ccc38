package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWithData_JSONRoundTripWithdrawal(t *testing.T) {
	original := EventWithData{
		Type:      WithdrawalApproved,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Module:    "withdrawals",
		Data: &WithdrawalData{
			Type:            WithdrawalApproved,
			RequestID:       "01J0",
			InvestorID:      "inv-1",
			ProductID:       "funding-1",
			RequestedAmount: "1000000",
			FeeAmount:       "50000",
			NetAmount:       "950000",
			ApproverID:      "admin",
		},
	}

	raw, err := json.Marshal(&original)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"fee_amount":"50000"`)

	var decoded EventWithData
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, WithdrawalApproved, decoded.Type)

	data, ok := decoded.Data.(*WithdrawalData)
	require.True(t, ok)
	assert.Equal(t, WithdrawalApproved, data.EventType())
	assert.Equal(t, "950000", data.NetAmount)
	assert.Equal(t, "inv-1", data.PartitionKey())
}

func TestEventWithData_UnknownTypeFallsBackToGeneric(t *testing.T) {
	raw := []byte(`{"type":"SOMETHING_ELSE","timestamp":"2026-01-02T03:04:05Z","module":"x","data":{"a":1}}`)

	var decoded EventWithData
	require.NoError(t, json.Unmarshal(raw, &decoded))

	generic, ok := decoded.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, EventType("SOMETHING_ELSE"), generic.EventType())
	assert.Equal(t, float64(1), generic.Data["a"])
}

func TestEventWithData_NullData(t *testing.T) {
	var decoded EventWithData
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ACCRUAL_COMPLETED","data":null}`), &decoded))
	assert.Nil(t, decoded.Data)
}
