package wallet

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Klingon-tech/lashd/pkg/tx"
)

func makeUTXOs(values ...uint64) []UTXO {
	utxos := make([]UTXO, len(values))
	for i, v := range values {
		utxos[i] = UTXO{TxID: fmt.Sprintf("%064x", i+1), Vout: 0, Value: v}
	}
	return utxos
}

func TestSelectCoins_ExactMatch(t *testing.T) {
	sel, err := SelectCoins(makeUTXOs(1000, 2000, 3000), 2000)
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if sel.Total != 2000 || sel.Change != 0 || len(sel.Inputs) != 1 {
		t.Errorf("got total=%d change=%d inputs=%d, want 2000/0/1", sel.Total, sel.Change, len(sel.Inputs))
	}
}

func TestSelectCoins_MultipleUTXOs(t *testing.T) {
	sel, err := SelectCoins(makeUTXOs(1000, 2000, 3000), 4500)
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if sel.Total != 5000 || sel.Change != 500 {
		t.Errorf("total=%d change=%d, want 5000/500", sel.Total, sel.Change)
	}
	if sel.Inputs[0].Value != 3000 {
		t.Errorf("first input = %d, want largest first", sel.Inputs[0].Value)
	}
}

func TestSelectCoins_PrefersLessChange(t *testing.T) {
	// Single 4000 leaves 500; largest-first also stops at 4000.
	sel, err := SelectCoins(makeUTXOs(1000, 4000, 2500), 3500)
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if sel.Total != 4000 || sel.Change != 500 || len(sel.Inputs) != 1 {
		t.Errorf("total=%d change=%d inputs=%d", sel.Total, sel.Change, len(sel.Inputs))
	}
}

func TestSelectCoins_Errors(t *testing.T) {
	if _, err := SelectCoins(nil, 1); !errors.Is(err, ErrNoUTXOs) {
		t.Errorf("no utxos: err = %v", err)
	}
	if _, err := SelectCoins(makeUTXOs(0, 0), 1); !errors.Is(err, ErrNoUTXOs) {
		t.Errorf("zero-value utxos: err = %v", err)
	}
	if _, err := SelectCoins(makeUTXOs(100), 0); err == nil {
		t.Error("zero target should fail")
	}
	if _, err := SelectCoins(makeUTXOs(100, 200), 301); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("insufficient: err = %v", err)
	}
}

func TestSelectCoins_AllUTXOs(t *testing.T) {
	sel, err := SelectCoins(makeUTXOs(100, 200, 300), 600)
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if len(sel.Inputs) != 3 || sel.Change != 0 {
		t.Errorf("inputs=%d change=%d, want 3/0", len(sel.Inputs), sel.Change)
	}
}

func TestPlanSpend_ExactFitHasNoChange(t *testing.T) {
	const amount = 10_000
	fee := tx.EstimateTxFee(1, 2, 1)
	utxos := makeUTXOs(amount + fee)

	plan, err := PlanSpend(utxos, amount, 2, 1, 1)
	if err != nil {
		t.Fatalf("PlanSpend: %v", err)
	}
	if plan.HasChange() {
		t.Errorf("change = %d, want none", plan.Change)
	}
	if plan.Fee != fee || plan.Total != amount+fee {
		t.Errorf("fee=%d total=%d, want %d/%d", plan.Fee, plan.Total, fee, amount+fee)
	}

	if _, err := PlanSpend(utxos, amount+1, 2, 1, 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("one satoshi over: err = %v, want ErrInsufficientFunds", err)
	}
}

func TestPlanSpend_ChangeAboveDust(t *testing.T) {
	plan, err := PlanSpend(makeUTXOs(100_000), 10_000, 1, 1, 546)
	if err != nil {
		t.Fatalf("PlanSpend: %v", err)
	}
	wantFee := tx.EstimateTxFee(1, 2, 1)
	if plan.Fee != wantFee {
		t.Errorf("fee = %d, want %d", plan.Fee, wantFee)
	}
	if plan.Change != 100_000-10_000-wantFee {
		t.Errorf("change = %d", plan.Change)
	}
	if plan.Amount+plan.Fee+plan.Change != plan.Total {
		t.Error("amount + fee + change != total")
	}
}

func TestPlanSpend_SubDustChangeGoesToFee(t *testing.T) {
	base := tx.EstimateTxFee(1, 2, 1) // fee with change output
	plan, err := PlanSpend(makeUTXOs(10_000+base+100), 10_000, 1, 1, 546)
	if err != nil {
		t.Fatalf("PlanSpend: %v", err)
	}
	if plan.HasChange() {
		t.Errorf("change = %d, want folded into fee", plan.Change)
	}
	if plan.Fee != base+100 {
		t.Errorf("fee = %d, want %d", plan.Fee, base+100)
	}
}

func TestPlanSpend_ReestimatesForExtraInputs(t *testing.T) {
	// One-input fee estimate fits in the largest coin alone, but the amount
	// needs two coins, whose fee is larger.
	plan, err := PlanSpend(makeUTXOs(6000, 6000), 10_000, 1, 1, 1)
	if err != nil {
		t.Fatalf("PlanSpend: %v", err)
	}
	if len(plan.Inputs) != 2 {
		t.Fatalf("inputs = %d, want 2", len(plan.Inputs))
	}
	if plan.Total < plan.Amount+tx.EstimateTxFee(2, 1, 1) {
		t.Error("plan does not cover its own fee")
	}
}
