package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/lashd/internal/electrum"
	"github.com/Klingon-tech/lashd/internal/gate"
	"github.com/Klingon-tech/lashd/internal/wallet"
	"github.com/Klingon-tech/lashd/pkg/tx"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{&gate.RateLimitedError{}, KindRateLimited},
		{fmt.Errorf("plan: %w", wallet.ErrInsufficientFunds), KindInsufficientFunds},
		{wallet.ErrNoUTXOs, KindInsufficientFunds},
		{fmt.Errorf("broadcast: %w", &electrum.TimeoutError{}), KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{&electrum.ConnectionError{Err: errors.New("x")}, KindConnection},
		{fmt.Errorf("broadcast: %w", &electrum.RPCError{Message: "bad"}), KindProtocolRejection},
		{fmt.Errorf("%w: %w", ErrInvalidRequest, tx.ErrZeroOutput), KindInvalidRequest},
		{wallet.ErrInvalidKeyMaterial, KindInvalidRequest},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}

func TestTransactionResult_JSON(t *testing.T) {
	res := &TransactionResult{
		TxHash:  "ab",
		Unknown: true,
		Err:     fmt.Errorf("broadcast: %w", &electrum.TimeoutError{Method: electrum.MethodBroadcast}),
	}
	b, err := json.Marshal(res)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, false, m["success"])
	assert.Equal(t, "ab", m["tx_hash"])
	assert.Equal(t, true, m["outcome_unknown"])
	assert.Equal(t, string(KindTimeout), m["error_kind"])
	assert.Contains(t, m["error"], "timed out")
}
