package electrum

import (
	"context"
	"time"
)

// baseUnitsPerCent is the number of base units in 0.01 of the display unit.
const baseUnitsPerCent = 1_000_000

// AddressBalance is one entry of a BalanceReport.
type AddressBalance struct {
	Address     string `json:"address"`
	Confirmed   int64  `json:"confirmed"`
	Unconfirmed int64  `json:"unconfirmed"`
	Balance     int64  `json:"balance"`
	Err         error  `json:"-"`
	Error       string `json:"error,omitempty"`
}

// BalanceReport is the result of FetchBalances. Balances are in input order.
type BalanceReport struct {
	Balances      []AddressBalance `json:"balances"`
	SuccessCount  int              `json:"success_count"`
	ErrorCount    int              `json:"error_count"`
	TotalSatoshis int64            `json:"total_satoshis"`
	// Total is TotalSatoshis in the display unit, rounded to two decimals.
	Total float64 `json:"total"`
}

// FetchBalances looks up every address over a single session on the first
// reachable endpoint. Per-address failures are recorded on their entry.
// An error is returned only when no connection could be made or the
// session broke before any reply arrived.
func (c *Client) FetchBalances(ctx context.Context, eps []Endpoint, addresses []string) (*BalanceReport, error) {
	report := &BalanceReport{Balances: make([]AddressBalance, len(addresses))}
	if len(addresses) == 0 {
		return report, nil
	}

	var reqs []Request
	var slots []int
	for i, addr := range addresses {
		report.Balances[i].Address = addr
		sh, err := ScriptHash(addr)
		if err != nil {
			report.Balances[i].setErr(err)
			continue
		}
		reqs = append(reqs, Request{Method: MethodGetBalance, Params: []any{sh}})
		slots = append(slots, i)
	}

	if len(reqs) > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()

		s, err := c.Open(ctx, eps)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		start := time.Now()
		replies, got, err := s.Batch(ctx, reqs)
		if err != nil && got == 0 {
			return nil, err
		}
		if err != nil {
			c.logger.Warn().Err(err).Int("answered", got).Int("requested", len(reqs)).
				Msg("Balance session broke mid-batch")
		}
		c.logger.Debug().Str("endpoint", s.ep.String()).Int("addresses", len(reqs)).
			Dur("took", time.Since(start)).Msg("Fetched balances")

		for j, rep := range replies {
			entry := &report.Balances[slots[j]]
			if rep.Err != nil {
				entry.setErr(rep.Err)
				continue
			}
			var b Balance
			if err := decodeResult(MethodGetBalance, rep.Result, &b); err != nil {
				entry.setErr(err)
				continue
			}
			entry.Confirmed = b.Confirmed
			entry.Unconfirmed = b.Unconfirmed
			entry.Balance = b.Total()
		}
	}

	for _, b := range report.Balances {
		if b.Err != nil {
			report.ErrorCount++
			continue
		}
		report.SuccessCount++
		report.TotalSatoshis += b.Balance
	}
	report.Total = DisplayAmount(report.TotalSatoshis)
	return report, nil
}

func (b *AddressBalance) setErr(err error) {
	b.Err = err
	b.Error = err.Error()
}

// DisplayAmount converts base units to the display unit rounded half away
// from zero to two decimals.
func DisplayAmount(sats int64) float64 {
	neg := sats < 0
	if neg {
		sats = -sats
	}
	cents := (sats + baseUnitsPerCent/2) / baseUnitsPerCent
	if neg {
		cents = -cents
	}
	return float64(cents) / 100
}
