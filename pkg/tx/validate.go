package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/bsv-blockchain/go-bt/v2/bscript"
)

// Validation errors.
var (
	ErrNoOutputs      = errors.New("transaction has no outputs")
	ErrOutputOverflow = errors.New("output values overflow")
	ErrZeroOutput     = errors.New("output value is zero")
	ErrInvalidAddress = errors.New("invalid address")
	ErrTooManyOutputs = errors.New("too many outputs")
)

// MaxOutputs caps outputs per transaction.
const MaxOutputs = 2500

// Output is a requested payment.
type Output struct {
	Address string
	Amount  uint64
}

// ValidateAddress checks that address decodes to a P2PKH locking script.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if _, err := bscript.NewP2PKHFromAddress(address); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}
	return nil
}

// ValidateOutputs checks each requested output and returns their sum.
func ValidateOutputs(outputs []Output) (uint64, error) {
	if len(outputs) == 0 {
		return 0, ErrNoOutputs
	}
	if len(outputs) > MaxOutputs {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooManyOutputs, len(outputs), MaxOutputs)
	}
	var total uint64
	for i, out := range outputs {
		if out.Amount == 0 {
			return 0, fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		if err := ValidateAddress(out.Address); err != nil {
			return 0, fmt.Errorf("output %d: %w", i, err)
		}
		if total > math.MaxUint64-out.Amount {
			return 0, ErrOutputOverflow
		}
		total += out.Amount
	}
	return total, nil
}
