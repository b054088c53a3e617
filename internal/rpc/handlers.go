package rpc

import (
	"context"
	"strings"

	"github.com/Klingon-tech/lashd/internal/payment"
)

// ── Payment endpoints ───────────────────────────────────────────────────

func (s *Server) handlePaymentSend(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Payments == nil {
		return nil, disabled("payments")
	}
	var params SendParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.SenderPubkey == "" {
		return nil, invalidParams("sender_pubkey is required")
	}
	if params.KeyMaterial == "" {
		return nil, invalidParams("key_material is required")
	}
	eps, rpcErr := parseEndpoints(params.Endpoints)
	if rpcErr != nil {
		return nil, rpcErr
	}

	res := s.backend.Payments.SendTransaction(ctx, &payment.TransactionRequest{
		SenderAddress: params.SenderAddress,
		SenderPubkey:  params.SenderPubkey,
		Recipients:    params.Recipients,
		KeyMaterial:   params.KeyMaterial,
		Endpoints:     eps,
	})
	if res.Err != nil {
		return nil, toError(res.Err, res)
	}
	return res, nil
}

func (s *Server) handlePaymentSendBatch(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Payments == nil {
		return nil, disabled("payments")
	}
	var params SendBatchParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.SenderPubkey == "" {
		return nil, invalidParams("sender_pubkey is required")
	}
	if params.KeyMaterial == "" {
		return nil, invalidParams("key_material is required")
	}
	if len(params.Intents) == 0 {
		return nil, invalidParams("intents are required")
	}
	eps, rpcErr := parseEndpoints(params.Endpoints)
	if rpcErr != nil {
		return nil, rpcErr
	}

	res := s.backend.Payments.SendBatch(ctx, &payment.BatchRequest{
		SenderAddress: params.SenderAddress,
		SenderPubkey:  params.SenderPubkey,
		KeyMaterial:   params.KeyMaterial,
		Intents:       params.Intents,
		Endpoints:     eps,
	})
	if res.Result != nil && res.Result.Err != nil {
		return nil, toError(res.Result.Err, res)
	}
	return res, nil
}

func (s *Server) handlePaymentGetReceipt(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Payments == nil {
		return nil, disabled("payments")
	}
	var params ReceiptParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.TxHash == "" || params.IntentID == "" {
		return nil, invalidParams("tx_hash and intent_id are required")
	}

	rc, err := s.backend.Payments.IntentReceipt(ctx, strings.ToLower(params.TxHash), params.IntentID)
	if err != nil {
		return nil, toError(err, nil)
	}
	return rc, nil
}

// ── Wallet / gate / chain endpoints ─────────────────────────────────────

func (s *Server) handleWalletGetBalances(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Chain == nil {
		return nil, disabled("chain backend")
	}
	var params BalancesParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	eps, rpcErr := parseEndpoints(params.Endpoints)
	if rpcErr != nil {
		return nil, rpcErr
	}

	report, err := s.backend.Chain.FetchBalances(ctx, eps, params.Addresses)
	if err != nil {
		return nil, toError(err, nil)
	}
	return report, nil
}

func (s *Server) handleGateCheckEligibility(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Eligibility == nil {
		return nil, disabled("rate gate")
	}
	var params SenderParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.SenderPubkey == "" {
		return nil, invalidParams("sender_pubkey is required")
	}

	e, err := s.backend.Eligibility.Check(ctx, params.SenderPubkey)
	if err != nil {
		return nil, toError(err, nil)
	}
	return e, nil
}

func (s *Server) handleChainGetHeight(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Chain == nil {
		return nil, disabled("chain backend")
	}
	var params EndpointsParam
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
	}
	eps, rpcErr := parseEndpoints(params.Endpoints)
	if rpcErr != nil {
		return nil, rpcErr
	}

	tip, err := s.backend.Chain.Tip(ctx, eps)
	if err != nil {
		return nil, toError(err, nil)
	}
	return &HeightResult{Height: tip.Height, BlockTime: tip.Time}, nil
}
