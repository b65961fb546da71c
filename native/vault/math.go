package vault

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Precision scales assets per share: a value of Precision means one
// underlying unit per share.
const Precision = 1_000_000_000

var precision = big.NewInt(Precision)

// toWord converts v to a 256-bit word. Nil is treated as zero.
func toWord(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrUnderflow
	}
	word, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	return word, nil
}

// Add returns a+b, failing when the sum exceeds 2^256-1.
func Add(a, b *big.Int) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	y, err := toWord(b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return sum.ToBig(), nil
}

// Sub returns a-b, failing when b > a.
func Sub(a, b *big.Int) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	y, err := toWord(b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrUnderflow
	}
	return diff.ToBig(), nil
}

// MulDiv returns floor(a*b/d). The product is held in 512 bits, so only a
// quotient above 2^256-1 overflows.
func MulDiv(a, b, d *big.Int) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	y, err := toWord(b)
	if err != nil {
		return nil, err
	}
	z, err := toWord(d)
	if err != nil {
		return nil, err
	}
	if z.IsZero() {
		return nil, ErrDivisionByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, z)
	if overflow {
		return nil, ErrOverflow
	}
	return out.ToBig(), nil
}

// AssetsPerShare returns totalAssets*Precision/totalShares.
func AssetsPerShare(totalAssets, totalShares *big.Int) (*big.Int, error) {
	return MulDiv(totalAssets, precision, totalShares)
}

// SharesToAssets converts shares at the given scaled rate, rounding down.
func SharesToAssets(shares, assetsPerShare *big.Int) (*big.Int, error) {
	return MulDiv(shares, assetsPerShare, precision)
}

// AssetsToShares converts assets at the given scaled rate, rounding down.
func AssetsToShares(assets, assetsPerShare *big.Int) (*big.Int, error) {
	return MulDiv(assets, precision, assetsPerShare)
}

// ProRata returns floor(received*contribution/total).
func ProRata(received, contribution, total *big.Int) (*big.Int, error) {
	return MulDiv(received, contribution, total)
}
