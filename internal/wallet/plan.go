package wallet

import (
	"fmt"

	"github.com/Klingon-tech/lashd/pkg/tx"
)

// SpendPlan is a funded set of inputs for a payment.
type SpendPlan struct {
	Inputs []UTXO
	Total  uint64 // sum of inputs
	Amount uint64 // sum of recipient outputs
	Fee    uint64
	Change uint64 // 0 means no change output
}

// HasChange reports whether the plan pays change back to the sender.
func (p *SpendPlan) HasChange() bool { return p.Change > 0 }

// PlanSpend selects inputs paying amount to numOutputs recipients at feeRate.
//
// The fee is re-estimated with the actual input count until the selection
// covers it. A change output is added only when the remainder after paying
// for it is at least dustLimit; otherwise the remainder goes to the fee.
// Inputs that cover amount plus the no-change fee exactly produce a plan
// without change.
func PlanSpend(utxos []UTXO, amount uint64, numOutputs int, feeRate, dustLimit uint64) (*SpendPlan, error) {
	if amount == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if numOutputs <= 0 {
		return nil, fmt.Errorf("at least one output required")
	}

	feeNoChange := func(n int) uint64 { return tx.EstimateTxFee(n, numOutputs, feeRate) }
	feeWithChange := func(n int) uint64 { return tx.EstimateTxFee(n, numOutputs+1, feeRate) }

	// Start from a one-input estimate and raise the target until the
	// selection also pays for its own inputs. The target only grows.
	target := amount + feeNoChange(1)
	var sel *CoinSelection
	for {
		var err error
		sel, err = SelectCoins(utxos, target)
		if err != nil {
			return nil, err
		}
		need := amount + feeNoChange(len(sel.Inputs))
		if sel.Total >= need {
			break
		}
		target = need
	}

	n := len(sel.Inputs)
	plan := &SpendPlan{Inputs: sel.Inputs, Total: sel.Total, Amount: amount}

	withChange := feeWithChange(n)
	if sel.Total > amount+withChange && sel.Total-amount-withChange >= dustLimit {
		plan.Fee = withChange
		plan.Change = sel.Total - amount - withChange
	} else {
		plan.Fee = sel.Total - amount
	}
	return plan, nil
}
