package tx

import "math"

// Serialized sizes of a P2PKH transaction, in bytes.
const (
	// version(4) + input count(1) + output count(1) + locktime(4)
	TxOverheadSize = 10
	// prev txid(32) + vout(4) + script len(1) + sig push(1+72) + pubkey push(1+33) + sequence(4)
	P2PKHInputSize = 148
	// value(8) + script len(1) + P2PKH locking script(25)
	P2PKHOutputSize = 34
)

// EstimateSize returns the serialized size of a P2PKH transaction with the
// given number of inputs and outputs.
func EstimateSize(numInputs, numOutputs int) int {
	return TxOverheadSize + P2PKHInputSize*numInputs + P2PKHOutputSize*numOutputs
}

// EstimateTxFee returns the fee for a P2PKH transaction with the given
// number of inputs and outputs at feeRate (base units per byte).
func EstimateTxFee(numInputs, numOutputs int, feeRate uint64) uint64 {
	return uint64(EstimateSize(numInputs, numOutputs)) * feeRate
}

// FeeRateFromPerKB converts a per-kilobyte rate in coins (as returned by
// blockchain.estimatefee) to base units per byte, never below floor.
func FeeRateFromPerKB(coinsPerKB float64, coin uint64, floor uint64) uint64 {
	if coinsPerKB <= 0 {
		return floor
	}
	// Epsilon absorbs float noise so exact rates don't round up.
	perByte := uint64(math.Ceil(coinsPerKB*float64(coin)/1000 - 1e-9))
	if perByte < floor {
		return floor
	}
	return perByte
}
