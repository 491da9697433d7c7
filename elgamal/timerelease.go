package elgamal

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/yangfh2004/timerelease/mathutil"
)

// Ciphertext is a standard ElGamal ciphertext (c1, c2), encoded as a pair of
// hex big-ints on the wire (§3 Transaction.cipher).
type Ciphertext struct {
	C1 *big.Int
	C2 *big.Int
}

// Hex renders the ciphertext as "hex(c1), hex(c2)".
func (c *Ciphertext) Hex() string {
	return fmt.Sprintf("%s, %s", c.C1.Text(16), c.C2.Text(16))
}

// ParseCiphertextHex parses a "hex(c1), hex(c2)" pair.
func ParseCiphertextHex(s string) (*Ciphertext, error) {
	var c1Hex, c2Hex string
	if _, err := fmt.Sscanf(s, "%s %s", &c1Hex, &c2Hex); err != nil {
		return nil, fmt.Errorf("elgamal: malformed ciphertext hex pair %q: %w", s, err)
	}
	c1, ok := new(big.Int).SetString(trimComma(c1Hex), 16)
	if !ok {
		return nil, fmt.Errorf("elgamal: bad c1 hex %q", c1Hex)
	}
	c2, ok := new(big.Int).SetString(c2Hex, 16)
	if !ok {
		return nil, fmt.Errorf("elgamal: bad c2 hex %q", c2Hex)
	}
	return &Ciphertext{C1: c1, C2: c2}, nil
}

// EncryptForFuture encrypts plaintext m (a non-negative integer < p) against
// a future scheduled public key: c1 = g^k mod p, c2 = m * h^k mod p, for a
// fresh ephemeral k (§4.5).
func EncryptForFuture(pubkeyAtHeight *PublicKey, m *big.Int) (*Ciphertext, error) {
	p, g, h := pubkeyAtHeight.P, pubkeyAtHeight.G, pubkeyAtHeight.H
	if m.Sign() < 0 || m.Cmp(p) >= 0 {
		return nil, fmt.Errorf("elgamal: plaintext out of range [0, p)")
	}
	n := pubkeyAtHeight.N()

	kBuf := make([]byte, (n.BitLen()+7)/8+8)
	if _, err := rand.Read(kBuf); err != nil {
		return nil, fmt.Errorf("elgamal: sampling ephemeral key: %w", err)
	}
	k := new(big.Int).SetBytes(kBuf)
	k.Mod(k, new(big.Int).Sub(n, big.NewInt(1)))
	k.Add(k, big.NewInt(1)) // k in [1, n)

	c1 := mathutil.ModPow(g, k, p)
	hk := mathutil.ModPow(h, k, p)
	c2 := new(big.Int).Mul(m, hk)
	c2.Mod(c2, p)

	return &Ciphertext{C1: c1, C2: c2}, nil
}

// DecryptWithSolution recovers m using the private key x reconstructed by
// mining the block at the target release height: s = c1^x mod p, m = c2 *
// s^-1 mod p (§4.5).
func DecryptWithSolution(x *big.Int, pubkey *PublicKey, ct *Ciphertext) (*big.Int, error) {
	p := pubkey.P
	s := mathutil.ModPow(ct.C1, x, p)
	sInv := mathutil.ModInverse(s, p)
	if sInv == nil {
		return nil, fmt.Errorf("elgamal: c1^x has no inverse mod p (x invalid?)")
	}
	m := new(big.Int).Mul(ct.C2, sInv)
	m.Mod(m, p)
	return m, nil
}
