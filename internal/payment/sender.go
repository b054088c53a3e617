package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/lashd/config"
	"github.com/Klingon-tech/lashd/internal/electrum"
	klog "github.com/Klingon-tech/lashd/internal/log"
	"github.com/Klingon-tech/lashd/internal/metrics"
	"github.com/Klingon-tech/lashd/internal/wallet"
	"github.com/Klingon-tech/lashd/pkg/tx"
)

// feeTargetBlocks is the confirmation target passed to estimatefee.
const feeTargetBlocks = 6

// DefaultBroadcastTimeout bounds a broadcast when no timeout is configured.
const DefaultBroadcastTimeout = 30 * time.Second

// Chain is the part of the Electrum client the sender needs.
type Chain interface {
	ListUnspent(ctx context.Context, eps []electrum.Endpoint, address string) ([]electrum.Unspent, error)
	Broadcast(ctx context.Context, eps []electrum.Endpoint, rawHex string) (string, error)
	EstimateFee(ctx context.Context, eps []electrum.Endpoint, blocks int) (float64, error)
}

// SenderOptions configures fee and key handling.
type SenderOptions struct {
	// FeeRate in base units per byte. Raised to MinFeeRate if lower.
	FeeRate uint64
	// EstimateFee asks the server for a rate, falling back to FeeRate.
	EstimateFee bool
	MinFeeRate  uint64
	DustLimit   uint64
	CoinType    uint32
	Mainnet     bool
	// BroadcastTimeout bounds the broadcast call, which does not follow
	// the caller's cancellation.
	BroadcastTimeout time.Duration
}

// Sender performs single send attempts. It never retries: a rejected or
// timed-out broadcast is reported to the caller as is.
type Sender struct {
	chain  Chain
	opts   SenderOptions
	logger zerolog.Logger
}

// NewSender creates a sender.
func NewSender(chain Chain, opts SenderOptions) *Sender {
	if opts.MinFeeRate == 0 {
		opts.MinFeeRate = 1
	}
	if opts.FeeRate < opts.MinFeeRate {
		opts.FeeRate = opts.MinFeeRate
	}
	if opts.BroadcastTimeout <= 0 {
		opts.BroadcastTimeout = DefaultBroadcastTimeout
	}
	return &Sender{
		chain:  chain,
		opts:   opts,
		logger: klog.WithComponent("payment"),
	}
}

// Send builds, signs and broadcasts one transaction paying every recipient.
func (s *Sender) Send(ctx context.Context, req *TransactionRequest) *TransactionResult {
	res := &TransactionResult{}
	start := time.Now()

	err := s.send(ctx, req, res)
	res.Err = err
	res.Success = err == nil

	kind := "ok"
	if err != nil {
		kind = string(ErrorKind(err))
	}
	metrics.Broadcasts.WithLabelValues(kind).Inc()

	ev := s.logger.Info()
	if err != nil {
		ev = s.logger.Warn().Err(err).Str("kind", kind).Bool("unknown", res.Unknown)
	} else {
		metrics.BroadcastAmount.Add(float64(res.TotalAmount))
	}
	ev.Str("sender", req.SenderAddress).
		Str("tx", res.TxHash).
		Uint64("amount", res.TotalAmount).
		Uint64("fee", res.Fee).
		Int("inputs", res.Inputs).
		Int("outputs", res.Outputs).
		Dur("took", time.Since(start)).
		Msg("Send")
	return res
}

func (s *Sender) send(ctx context.Context, req *TransactionRequest, res *TransactionResult) error {
	if err := tx.ValidateAddress(req.SenderAddress); err != nil {
		return fmt.Errorf("%w: sender: %w", ErrInvalidRequest, err)
	}
	outs := make([]tx.Output, len(req.Recipients))
	for i, r := range req.Recipients {
		outs[i] = tx.Output{Address: r.Address, Amount: r.Amount}
	}
	total, err := tx.ValidateOutputs(outs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	res.TotalAmount = total

	key, err := wallet.ResolveKey(req.KeyMaterial, wallet.DerivationOptions{
		CoinType: s.opts.CoinType,
		Mainnet:  s.opts.Mainnet,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	defer key.Zero()
	if key.Address != req.SenderAddress {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrKeyMismatch)
	}

	utxos, err := s.listUTXOs(ctx, req.Endpoints, req.SenderAddress)
	if err != nil {
		return err
	}

	rate := s.feeRate(ctx, req.Endpoints)
	plan, err := wallet.PlanSpend(utxos, total, len(outs), rate, s.opts.DustLimit)
	if err != nil {
		return fmt.Errorf("plan spend: %w", err)
	}

	b := tx.NewBuilder()
	for _, in := range plan.Inputs {
		b.AddInput(in.TxID, in.Vout, in.Script, in.Value)
	}
	for _, out := range outs {
		b.AddP2PKHOutput(out.Address, out.Amount)
	}
	if plan.HasChange() {
		b.AddP2PKHOutput(req.SenderAddress, plan.Change)
	}
	if err := b.Sign(ctx, key.Key); err != nil {
		return err
	}
	built, err := b.Build()
	if err != nil {
		return err
	}

	res.TxHash = built.TxID()
	res.Fee = plan.Fee
	res.Change = plan.Change
	res.Inputs = built.InputCount()
	res.Outputs = built.OutputCount()
	res.UsedInputs = built.Outpoints()

	txid, err := s.broadcast(ctx, req.Endpoints, built.Hex())
	if err != nil {
		if isUnknownOutcome(err) {
			res.Unknown = true
			return fmt.Errorf("broadcast: %w", asTimeout(err))
		}
		res.TxHash = ""
		return fmt.Errorf("broadcast: %w", err)
	}
	if txid != "" && txid != res.TxHash {
		s.logger.Warn().Str("local", res.TxHash).Str("server", txid).Msg("Server reported a different txid")
	}
	return nil
}

// broadcast sends rawHex once. Once written the transaction may be on the
// network, so the call runs to its own timeout even if ctx is cancelled.
func (s *Sender) broadcast(ctx context.Context, eps []electrum.Endpoint, rawHex string) (string, error) {
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.BroadcastTimeout)
	defer cancel()
	return s.chain.Broadcast(bctx, eps, rawHex)
}

// isUnknownOutcome reports whether a broadcast error leaves the transaction
// possibly accepted.
func isUnknownOutcome(err error) bool {
	var connErr *electrum.ConnectionError
	if errors.As(err, &connErr) {
		return false // never reached a server
	}
	var timeoutErr *electrum.TimeoutError
	return errors.As(err, &timeoutErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func asTimeout(err error) error {
	var timeoutErr *electrum.TimeoutError
	if errors.As(err, &timeoutErr) {
		return err
	}
	return &electrum.TimeoutError{Method: electrum.MethodBroadcast, Err: err}
}

// listUTXOs converts the sender's unspent outputs into coin selection input.
func (s *Sender) listUTXOs(ctx context.Context, eps []electrum.Endpoint, address string) ([]wallet.UTXO, error) {
	script, err := tx.P2PKHScript(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	unspent, err := s.chain.ListUnspent(ctx, eps, address)
	if err != nil {
		return nil, fmt.Errorf("list unspent: %w", err)
	}
	utxos := make([]wallet.UTXO, len(unspent))
	for i, u := range unspent {
		utxos[i] = wallet.UTXO{
			TxID:    u.TxHash,
			Vout:    u.TxPos,
			Address: address,
			Value:   u.Value,
			Script:  script,
			Height:  u.Height,
		}
	}
	return utxos, nil
}

// feeRate returns the rate in base units per byte.
func (s *Sender) feeRate(ctx context.Context, eps []electrum.Endpoint) uint64 {
	if !s.opts.EstimateFee {
		return s.opts.FeeRate
	}
	perKB, err := s.chain.EstimateFee(ctx, eps, feeTargetBlocks)
	if err != nil || perKB <= 0 {
		s.logger.Debug().Err(err).Float64("estimate", perKB).Msg("No fee estimate, using configured rate")
		return s.opts.FeeRate
	}
	return tx.FeeRateFromPerKB(perKB, config.Coin, s.opts.MinFeeRate)
}
