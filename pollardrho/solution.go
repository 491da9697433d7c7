package pollardrho

import (
	"math/big"

	"github.com/yangfh2004/timerelease/elgamal"
	"github.com/yangfh2004/timerelease/mathutil"
)

// Solution encapsulates a tortoise/hare collision (a1, a2, b1, b2, n) for a
// specific pubkey, from which the discrete log x can be reconstructed
// (§4.4).
type Solution struct {
	A1, A2, B1, B2, N *big.Int
}

// String renders the solution as the comma-separated decimal string the
// blob store persists (§6: solution TEXT "a1, a2, b1, b2, n").
func (s *Solution) String() string {
	return s.A1.String() + ", " + s.A2.String() + ", " + s.B1.String() + ", " +
		s.B2.String() + ", " + s.N.String()
}

// ParseSolution parses the comma-separated decimal form back into a
// Solution.
func ParseSolution(s string) (*Solution, error) {
	parts := splitAndTrim(s, ",")
	if len(parts) != 5 {
		return nil, errBadSolutionFormat(s)
	}
	vals := make([]*big.Int, 5)
	for i, part := range parts {
		v, ok := new(big.Int).SetString(part, 10)
		if !ok {
			return nil, errBadSolutionFormat(s)
		}
		vals[i] = v
	}
	return &Solution{A1: vals[0], A2: vals[1], B1: vals[2], B2: vals[3], N: vals[4]}, nil
}

func errBadSolutionFormat(s string) error {
	return &solutionFormatError{raw: s}
}

type solutionFormatError struct{ raw string }

func (e *solutionFormatError) Error() string {
	return "pollardrho: malformed solution string: " + e.raw
}

func splitAndTrim(s, sep string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if string(s[i]) == sep {
			out = append(out, trimSpace(s[start:i]))
			start = i + 1
		}
	}
	out = append(out, trimSpace(s[start:]))
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// ToPrivateKey reconstructs the discrete log x from the collision and
// returns the resulting PrivateKey (§4.4):
//
//	r = (b1 - b2) mod n
//	if r == 0: unsolvable from this collision (ErrZeroR)
//	d = gcd(r, n); with a safe prime n this is almost always 1
//	x = r^-1 * (a2 - a1) mod n   (or the d>1 representative, see below)
func (s *Solution) ToPrivateKey(pk *elgamal.PublicKey) (*elgamal.PrivateKey, error) {
	n := s.N
	r := new(big.Int).Sub(s.B1, s.B2)
	r.Mod(r, n)
	if r.Sign() == 0 {
		return nil, ErrZeroR
	}

	d := mathutil.GCD(r, n)
	numer := new(big.Int).Sub(s.A2, s.A1)
	numer.Mod(numer, n)

	var x *big.Int
	if d.Cmp(big.NewInt(1)) == 0 {
		rInv := mathutil.ModInverse(r, n)
		if rInv == nil {
			return nil, ErrZeroR
		}
		x = new(big.Int).Mul(rInv, numer)
		x.Mod(x, n)
	} else {
		// d ∈ {1, n} for a safe prime n = q prime; d == n would mean r ≡ 0,
		// already handled above, so this branch only exists for
		// generality against non-safe-prime pubkeys reaching this path.
		nOverD := new(big.Int).Div(n, d)
		rOverD := new(big.Int).Div(r, d)
		numerOverD := new(big.Int).Div(numer, d)
		rInv := mathutil.ModInverse(rOverD, nOverD)
		if rInv == nil {
			return nil, ErrZeroR
		}
		x = new(big.Int).Mul(rInv, numerOverD)
		x.Mod(x, nOverD)
	}

	if x.Sign() <= 0 || x.Cmp(n) >= 0 {
		return nil, ErrZeroR
	}

	return &elgamal.PrivateKey{P: pk.P, G: pk.G, X: x, BitLength: pk.BitLength}, nil
}

// Verify reports whether x is a valid private key for pubkey: either the
// canonical g^x ≡ h (mod p), or — when elgamal.AllowSignFlip is set — the
// documented sign-flip artefact g^x + h ≡ p (§4.4, §8 property 3).
func Verify(x *big.Int, pubkey *elgamal.PublicKey) bool {
	n := pubkey.N()
	if x.Sign() <= 0 || x.Cmp(n) >= 0 {
		return false
	}
	gx := new(big.Int).Exp(pubkey.G, x, pubkey.P)
	if gx.Cmp(pubkey.H) == 0 {
		return true
	}
	if elgamal.AllowSignFlip {
		sum := new(big.Int).Add(gx, pubkey.H)
		if sum.Cmp(pubkey.P) == 0 {
			return true
		}
	}
	return false
}
