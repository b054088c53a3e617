package wallet

import (
	"errors"
	"fmt"
	"sort"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoUTXOs           = errors.New("no UTXOs available")
)

// UTXO is an unspent output controlled by the sender. Transient: built per
// request from the chain backend and never persisted.
type UTXO struct {
	TxID    string
	Vout    uint32
	Address string
	Value   uint64
	Script  []byte // locking script
	Height  int64  // 0 when unconfirmed
}

// Outpoint returns "txid:vout".
func (u UTXO) Outpoint() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.Vout)
}

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Inputs []UTXO // Selected UTXOs to spend.
	Total  uint64 // Sum of selected input values.
	Change uint64 // Total - target.
}

// SelectCoins chooses UTXOs covering target. Two candidates are built:
// the smallest single UTXO that covers the target, and a largest-first
// accumulation. The one leaving less change wins.
func SelectCoins(utxos []UTXO, target uint64) (*CoinSelection, error) {
	if target == 0 {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]UTXO, 0, len(utxos))
	var available uint64
	for _, u := range utxos {
		if u.Value > 0 {
			candidates = append(candidates, u)
			available += u.Value
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoUTXOs
	}
	if available < target {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, available, target)
	}

	// Ascending by value; ties broken by outpoint for stable results.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Value != candidates[j].Value {
			return candidates[i].Value < candidates[j].Value
		}
		return candidates[i].Outpoint() < candidates[j].Outpoint()
	})

	var best *CoinSelection
	consider := func(sel *CoinSelection) {
		if best == nil || sel.Change < best.Change ||
			(sel.Change == best.Change && len(sel.Inputs) < len(best.Inputs)) {
			best = sel
		}
	}

	idx := sort.Search(len(candidates), func(i int) bool { return candidates[i].Value >= target })
	if idx < len(candidates) {
		u := candidates[idx]
		consider(&CoinSelection{Inputs: []UTXO{u}, Total: u.Value, Change: u.Value - target})
	}

	var total uint64
	for i := len(candidates) - 1; i >= 0; i-- {
		total += candidates[i].Value
		if total >= target {
			picked := make([]UTXO, 0, len(candidates)-i)
			for j := len(candidates) - 1; j >= i; j-- {
				picked = append(picked, candidates[j])
			}
			consider(&CoinSelection{Inputs: picked, Total: total, Change: total - target})
			break
		}
	}
	return best, nil
}
