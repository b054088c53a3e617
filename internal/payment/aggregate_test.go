package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_GroupsInFirstSeenOrder(t *testing.T) {
	agg, err := Aggregate([]PaymentIntent{
		{IntentID: "intent1", DestinationAddress: "a", Amount: 5},
		{IntentID: "intent2", DestinationAddress: "b", Amount: 3},
		{IntentID: "intent3", DestinationAddress: "a", Amount: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, []AggregatedOutput{
		{Address: "a", TotalAmount: 7, OutputIndex: 0},
		{Address: "b", TotalAmount: 3, OutputIndex: 1},
	}, agg.Outputs)
	assert.Equal(t, map[string]int{"intent1": 0, "intent2": 1, "intent3": 0}, agg.TraceMap)
	assert.Equal(t, uint64(10), agg.Total())
	assert.Equal(t, []Recipient{{"a", 7}, {"b", 3}}, agg.Recipients())
}

func TestAggregate_Receipts(t *testing.T) {
	agg, err := Aggregate([]PaymentIntent{
		{IntentID: "i1", EventID: "e1", RecipientPubkey: "p1", DestinationAddress: "a", Amount: 5},
		{IntentID: "i2", EventID: "e2", RecipientPubkey: "p2", DestinationAddress: "b", Amount: 3},
		{IntentID: "i3", EventID: "e3", RecipientPubkey: "p3", DestinationAddress: "a", Amount: 2},
	})
	require.NoError(t, err)

	rs := agg.Receipts("sender")
	require.Len(t, rs, 3)
	assert.Equal(t, IntentReceipt{
		IntentID: "i3", EventID: "e3", RecipientPubkey: "p3",
		OutputIndex: 0, FromWallet: "sender", ToWallet: "a", Amount: 2,
	}, rs[2])
	assert.Equal(t, 1, rs[1].OutputIndex)
	assert.Equal(t, "b", rs[1].ToWallet)
}

func TestAggregate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		intents []PaymentIntent
	}{
		{"empty", nil},
		{"zero amount", []PaymentIntent{{IntentID: "i1", DestinationAddress: "a"}}},
		{"no address", []PaymentIntent{{IntentID: "i1", Amount: 1}}},
		{"no id", []PaymentIntent{{DestinationAddress: "a", Amount: 1}}},
		{"duplicate id", []PaymentIntent{
			{IntentID: "i1", DestinationAddress: "a", Amount: 1},
			{IntentID: "i1", DestinationAddress: "b", Amount: 1},
		}},
		{"overflow", []PaymentIntent{
			{IntentID: "i1", DestinationAddress: "a", Amount: ^uint64(0)},
			{IntentID: "i2", DestinationAddress: "a", Amount: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.intents)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, KindInvalidRequest, ErrorKind(err))
		})
	}
}
