package payment

import (
	"fmt"
	"math"
)

// Aggregation is a batch of intents grouped by destination address.
type Aggregation struct {
	// Outputs are in first-seen order; OutputIndex equals the position.
	Outputs []AggregatedOutput
	// TraceMap maps each intent id to its output index.
	TraceMap map[string]int

	intents []PaymentIntent
}

// Aggregate groups intents by destination, summing amounts.
func Aggregate(intents []PaymentIntent) (*Aggregation, error) {
	if len(intents) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidRequest)
	}

	agg := &Aggregation{
		TraceMap: make(map[string]int, len(intents)),
		intents:  intents,
	}
	byAddr := make(map[string]int)

	for i, in := range intents {
		switch {
		case in.IntentID == "":
			return nil, fmt.Errorf("%w: intent %d has no id", ErrInvalidRequest, i)
		case in.DestinationAddress == "":
			return nil, fmt.Errorf("%w: intent %s has no destination", ErrInvalidRequest, in.IntentID)
		case in.Amount == 0:
			return nil, fmt.Errorf("%w: intent %s has zero amount", ErrInvalidRequest, in.IntentID)
		}
		if _, dup := agg.TraceMap[in.IntentID]; dup {
			return nil, fmt.Errorf("%w: duplicate intent %s", ErrInvalidRequest, in.IntentID)
		}

		idx, ok := byAddr[in.DestinationAddress]
		if !ok {
			idx = len(agg.Outputs)
			byAddr[in.DestinationAddress] = idx
			agg.Outputs = append(agg.Outputs, AggregatedOutput{
				Address:     in.DestinationAddress,
				OutputIndex: idx,
			})
		}
		out := &agg.Outputs[idx]
		if out.TotalAmount > math.MaxUint64-in.Amount {
			return nil, fmt.Errorf("%w: amount overflow at %s", ErrInvalidRequest, out.Address)
		}
		out.TotalAmount += in.Amount
		agg.TraceMap[in.IntentID] = idx
	}
	return agg, nil
}

// Recipients returns the outputs as transaction recipients, in order.
func (a *Aggregation) Recipients() []Recipient {
	rs := make([]Recipient, len(a.Outputs))
	for i, o := range a.Outputs {
		rs[i] = Recipient{Address: o.Address, Amount: o.TotalAmount}
	}
	return rs
}

// Total returns the sum of all outputs.
func (a *Aggregation) Total() uint64 {
	var t uint64
	for _, o := range a.Outputs {
		t += o.TotalAmount
	}
	return t
}

// Receipts returns one receipt per intent, in intent order.
func (a *Aggregation) Receipts(fromWallet string) []IntentReceipt {
	rs := make([]IntentReceipt, len(a.intents))
	for i, in := range a.intents {
		idx := a.TraceMap[in.IntentID]
		rs[i] = IntentReceipt{
			IntentID:        in.IntentID,
			EventID:         in.EventID,
			RecipientPubkey: in.RecipientPubkey,
			OutputIndex:     idx,
			FromWallet:      fromWallet,
			ToWallet:        a.Outputs[idx].Address,
			Amount:          in.Amount,
		}
	}
	return rs
}
