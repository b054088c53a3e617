package tx

import "testing"

func TestEstimateTxFee(t *testing.T) {
	tests := []struct {
		name       string
		numInputs  int
		numOutputs int
		feeRate    uint64
		want       uint64
	}{
		{"zero rate", 1, 2, 0, 0},
		{"1-in 2-out", 1, 2, 1, 10 + 148 + 68},       // 226
		{"2-in 2-out", 2, 2, 10, (10 + 296 + 68) * 10}, // 3740
		{"consolidate 10-in 1-out", 10, 1, 1, 10 + 1480 + 34},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTxFee(tt.numInputs, tt.numOutputs, tt.feeRate)
			if got != tt.want {
				t.Errorf("EstimateTxFee(%d, %d, %d) = %d, want %d",
					tt.numInputs, tt.numOutputs, tt.feeRate, got, tt.want)
			}
		})
	}
}

func TestEstimateTxFee_GrowsWithInputs(t *testing.T) {
	prev := EstimateTxFee(1, 2, 1)
	for n := 2; n <= 5; n++ {
		fee := EstimateTxFee(n, 2, 1)
		if fee-prev != P2PKHInputSize {
			t.Errorf("inputs %d: delta = %d, want %d", n, fee-prev, P2PKHInputSize)
		}
		prev = fee
	}
}

func TestFeeRateFromPerKB(t *testing.T) {
	tests := []struct {
		name  string
		perKB float64
		floor uint64
		want  uint64
	}{
		{"unknown estimate", -1, 1, 1},
		{"below floor", 0.000005, 1, 1},
		{"rounds up", 0.00001001, 1, 2},
		{"ten per byte", 0.0001, 1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FeeRateFromPerKB(tt.perKB, 100_000_000, tt.floor); got != tt.want {
				t.Errorf("FeeRateFromPerKB(%v) = %d, want %d", tt.perKB, got, tt.want)
			}
		})
	}
}
