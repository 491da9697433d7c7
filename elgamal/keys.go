// Package elgamal implements the chained ElGamal public-key schedule that
// serves as the time-release clock: each block's pubkey is derived
// deterministically from the previous one, and mining a block publishes the
// private key that unlocks ciphertexts addressed to it.
package elgamal

import (
	"fmt"
	"math/big"

	"github.com/yangfh2004/timerelease/mathutil"
)

// AllowSignFlip controls whether verification also accepts the documented
// sign-flip artefact (g^x + h ≡ p) alongside the canonical g^x ≡ h check.
// spec.md marks the root cause of this artefact as unclear and asks
// implementations to preserve acceptance behind a flag so it can be
// tightened later without another migration.
var AllowSignFlip = true

// PublicKey is (p, g, h, bitLength): a safe-prime modulus, a generator of
// the order-n subgroup (n = (p-1)/2), the public element h = g^x mod p, and
// the bit length of p (also the difficulty tag for this key).
type PublicKey struct {
	P         *big.Int
	G         *big.Int
	H         *big.Int
	BitLength int
}

// N returns the subgroup order (p-1)/2.
func (pk *PublicKey) N() *big.Int {
	n := new(big.Int).Sub(pk.P, big.NewInt(1))
	return n.Rsh(n, 1)
}

// PrivateKey is (p, g, x, bitLength) with g^x ≡ h (mod p). It is never
// transmitted from a sender; it only exists after Solution.ToPrivateKey
// reconstructs it from a mined collision.
type PrivateKey struct {
	P         *big.Int
	G         *big.Int
	X         *big.Int
	BitLength int
}

// Hex renders a PublicKey as the "hex(g), hex(h), hex(p)" triple the blob
// store persists (§6: public_key TEXT "hex(g), hex(h), hex(p)").
func (pk *PublicKey) Hex() string {
	return fmt.Sprintf("%s, %s, %s", pk.G.Text(16), pk.H.Text(16), pk.P.Text(16))
}

// ParsePublicKeyHex parses the "hex(g), hex(h), hex(p)" triple back into a
// PublicKey. bitLength is recovered from p's bit length since the stored
// triple does not carry it explicitly.
func ParsePublicKeyHex(s string) (*PublicKey, error) {
	var gHex, hHex, pHex string
	if _, err := fmt.Sscanf(s, "%s %s %s", &gHex, &hHex, &pHex); err != nil {
		return nil, fmt.Errorf("elgamal: malformed pubkey hex triple %q: %w", s, err)
	}
	g, ok := new(big.Int).SetString(trimComma(gHex), 16)
	if !ok {
		return nil, fmt.Errorf("elgamal: bad g hex %q", gHex)
	}
	h, ok := new(big.Int).SetString(trimComma(hHex), 16)
	if !ok {
		return nil, fmt.Errorf("elgamal: bad h hex %q", hHex)
	}
	p, ok := new(big.Int).SetString(trimComma(pHex), 16)
	if !ok {
		return nil, fmt.Errorf("elgamal: bad p hex %q", pHex)
	}
	return &PublicKey{P: p, G: g, H: h, BitLength: p.BitLen()}, nil
}

func trimComma(s string) string {
	if len(s) > 0 && s[len(s)-1] == ',' {
		return s[:len(s)-1]
	}
	return s
}

// GeneratePubKey deterministically builds a PublicKey of the given bit
// length from a numeric seed (§4.1):
//  1. seed the PRNG with seed;
//  2. find a safe prime p = 2q+1 of bitLength bits;
//  3. find a generator g of the order-n subgroup;
//  4. sample a secret exponent x and set h = g^x mod p, then discard x.
//
// The secret x is intentionally never returned: senders must not be able to
// recover it, only mining a future block does.
func GeneratePubKey(bitLength int, seed uint64) *PublicKey {
	rnd := mathutil.NewSeededRand(seed)

	var p, q *big.Int
	for {
		q = rnd.OddBits(bitLength - 1)
		if cand, ok := mathutil.IsSafePrime(q); ok {
			p = cand
			break
		}
	}
	n := q

	two := big.NewInt(2)
	pMinus2 := new(big.Int).Sub(p, two)
	var g *big.Int
	for {
		g = rnd.Range(two, pMinus2)
		if mathutil.ModPow(g, n, p).Cmp(big.NewInt(1)) != 0 {
			continue
		}
		if mathutil.ModPow(g, two, p).Cmp(big.NewInt(1)) == 0 {
			continue
		}
		break
	}

	// x ranges over [2, n-1], i.e. the half-open interval [2, n).
	x := rnd.Range(two, n)
	h := mathutil.ModPow(g, x, p)

	return &PublicKey{P: p, G: g, H: h, BitLength: bitLength}
}

// ScheduleNext chains the next pubkey off the previous one: the next seed is
// the sum of the previous key's p, g and h. Anyone holding the chain can
// fast-forward this schedule to any future height.
func ScheduleNext(prev *PublicKey, bitLength int) *PublicKey {
	sum := new(big.Int).Add(prev.P, prev.G)
	sum.Add(sum, prev.H)
	seed := sum.Uint64()
	return GeneratePubKey(bitLength, seed)
}

const (
	// Term is the number of blocks between difficulty adjustments.
	Term = 120
	// BlockTime is the target wall-clock seconds between blocks.
	BlockTime = 30

	minBitLength = 16
	maxBitLength = 64
)

// DifficultyAdjust implements the single-step ±1 bit_length retarget every
// Term blocks (§4.1, §9 Open Questions: preserved as-is, no target window —
// this is known to oscillate under bursty mining and is kept verbatim).
func DifficultyAdjust(prevBitLength int, elapsedSeconds float64) int {
	next := prevBitLength
	switch {
	case elapsedSeconds < BlockTime:
		next++
	case elapsedSeconds > BlockTime:
		next--
	}
	if next < minBitLength {
		next = minBitLength
	}
	if next > maxBitLength {
		next = maxBitLength
	}
	return next
}
