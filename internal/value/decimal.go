package value

import (
	"math/big"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// bigFloatFromDecimal128 parses a Decimal128's canonical string form into a
// big.Float, used only to collapse it into the same mathematical-value
// comparison the other numeric widths use.
func bigFloatFromDecimal128(d primitive.Decimal128) (*big.Float, bool, error) {
	bf, _, err := big.ParseFloat(d.String(), 10, 200, big.ToNearestEven)
	if err != nil {
		return nil, false, err
	}
	return bf, true, nil
}
