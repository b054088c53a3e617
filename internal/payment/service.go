package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/lashd/internal/gate"
	klog "github.com/Klingon-tech/lashd/internal/log"
	"github.com/Klingon-tech/lashd/internal/store"
)

// Service runs sends through the rate gate and records settled batches.
type Service struct {
	sender *Sender
	gate   *gate.Gate // nil disables the gate
	ledger store.LedgerStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a payment service. g may be nil.
func NewService(sender *Sender, g *gate.Gate, ledger store.LedgerStore) *Service {
	return &Service{
		sender: sender,
		gate:   g,
		ledger: ledger,
		logger: klog.WithComponent("payment"),
		now:    time.Now,
	}
}

// SendTransaction sends req once, subject to the rate gate.
func (s *Service) SendTransaction(ctx context.Context, req *TransactionRequest) *TransactionResult {
	key, err := gateKey(req.SenderPubkey)
	if err != nil {
		return &TransactionResult{Err: err}
	}
	var res *TransactionResult
	err = s.guard(ctx, key, func(ctx context.Context, e *gate.Eligibility) (*gate.Outcome, error) {
		res = s.sendAt(ctx, req, e)
		return outcomeOf(res), res.Err
	})
	if res == nil {
		res = &TransactionResult{Err: err}
	}
	return res
}

// SendBatch aggregates intents, sends one transaction paying every
// distinct destination and, on success, stores one ledger record keyed by
// the transaction hash. Output i of the transaction is aggregated output i.
func (s *Service) SendBatch(ctx context.Context, req *BatchRequest) *BatchResult {
	agg, err := Aggregate(req.Intents)
	if err != nil {
		return &BatchResult{Result: &TransactionResult{Err: err}}
	}
	key, err := gateKey(req.SenderPubkey)
	if err != nil {
		return &BatchResult{Result: &TransactionResult{Err: err}}
	}

	out := &BatchResult{
		Outputs:  agg.Outputs,
		Receipts: agg.Receipts(req.SenderAddress),
	}
	treq := &TransactionRequest{
		SenderAddress: req.SenderAddress,
		SenderPubkey:  req.SenderPubkey,
		Recipients:    agg.Recipients(),
		KeyMaterial:   req.KeyMaterial,
		Endpoints:     req.Endpoints,
	}

	err = s.guard(ctx, key, func(ctx context.Context, e *gate.Eligibility) (*gate.Outcome, error) {
		res := s.sendAt(ctx, treq, e)
		out.Result = res
		if res.Success {
			out.LedgerID = s.record(ctx, req, agg, res, out.Receipts)
		}
		return outcomeOf(res), res.Err
	})
	if out.Result == nil {
		out.Result = &TransactionResult{Err: err}
	}
	return out
}

// IntentReceipt reports whether intentID was paid by txHash and in which
// output. Unknown transactions or intents return store.ErrNotFound.
func (s *Service) IntentReceipt(ctx context.Context, txHash, intentID string) (*IntentReceipt, error) {
	rec, err := s.ledger.GetLedger(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", txHash, err)
	}
	rc, ok := rec.Receipt(intentID)
	if !ok {
		return nil, fmt.Errorf("intent %s in %s: %w", intentID, txHash, store.ErrNotFound)
	}
	return &rc, nil
}

// Ledger returns the ledger record of txHash.
func (s *Service) Ledger(ctx context.Context, txHash string) (*store.LedgerRecord, error) {
	return s.ledger.GetLedger(ctx, txHash)
}

func (s *Service) sendAt(ctx context.Context, req *TransactionRequest, e *gate.Eligibility) *TransactionResult {
	res := s.sender.Send(ctx, req)
	if e != nil {
		res.BlockHeight = e.CurrentHeight
	}
	return res
}

func (s *Service) guard(ctx context.Context, sender string, fn func(context.Context, *gate.Eligibility) (*gate.Outcome, error)) error {
	if s.gate == nil {
		_, err := fn(ctx, nil)
		return err
	}
	return s.gate.Run(ctx, sender, fn)
}

// record stores the ledger entry for a settled batch and returns its id.
// A failure is logged: the transaction is already broadcast.
func (s *Service) record(ctx context.Context, req *BatchRequest, agg *Aggregation, res *TransactionResult, receipts []IntentReceipt) string {
	rec := &store.LedgerRecord{
		ID:           uuid.NewString(),
		TxHash:       res.TxHash,
		SenderPubkey: req.SenderPubkey,
		FromWallet:   req.SenderAddress,
		TotalAmount:  agg.Total(),
		Fee:          res.Fee,
		OutputCount:  res.Outputs,
		IntentCount:  len(req.Intents),
		Receipts:     receipts,
		CreatedAt:    s.now().UTC(),
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	inserted, err := s.ledger.PutLedger(wctx, rec)
	if err != nil {
		s.logger.Error().Err(err).Str("tx", res.TxHash).Msg("Failed to store ledger record")
		return ""
	}
	if !inserted {
		s.logger.Debug().Str("tx", res.TxHash).Msg("Ledger record already present")
		if existing, err := s.ledger.GetLedger(wctx, res.TxHash); err == nil {
			return existing.ID
		}
		return ""
	}
	s.logger.Info().Str("tx", res.TxHash).Int("intents", rec.IntentCount).
		Int("outputs", rec.OutputCount).Msg("Batch settled")
	return rec.ID
}

// outcomeOf reports a broadcast to the gate. An unknown outcome counts: the
// transaction may already be accepted at this height.
func outcomeOf(res *TransactionResult) *gate.Outcome {
	return &gate.Outcome{
		Broadcast:  res.Success || res.Unknown,
		TxHash:     res.TxHash,
		UsedInputs: res.UsedInputs,
	}
}
