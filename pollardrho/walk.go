// Package pollardrho is the hard part of this system: a Floyd cycle-finding
// walk over the ElGamal group whose step function is branched by the
// block's own header hash, turning a classic Pollard-rho discrete-log
// attack into proof of work. Solving the walk both seals a block and
// publishes the private key that unlocks every ciphertext scheduled for
// release at that height.
package pollardrho

import (
	"errors"
	"math/big"

	"github.com/yangfh2004/timerelease/elgamal"
	"github.com/yangfh2004/timerelease/headerhash"
)

// ErrZeroR is returned by Solution.ToPrivateKey when the collision landed on
// b1 == b2 (mod n), which makes x unsolvable from this particular
// collision. The miner must keep walking past it (§4.4).
var ErrZeroR = errors.New("pollardrho: b1 == b2 (mod n), collision unsolvable")

// State is a walker position (y, a, b) with the invariant y = g^a * h^b mod
// p.
type State struct {
	Y *big.Int
	A *big.Int
	B *big.Int
}

// InitialState draws a0, b0 uniformly from [0, n) and sets y0 = g^a0 h^b0
// mod p (§4.3).
func InitialState(pk *elgamal.PublicKey, rnd interface {
	Range(lo, hi *big.Int) *big.Int
}) State {
	n := pk.N()
	a0 := rnd.Range(big.NewInt(0), n)
	b0 := rnd.Range(big.NewInt(0), n)
	y0 := new(big.Int).Exp(pk.G, a0, pk.P)
	hb := new(big.Int).Exp(pk.H, b0, pk.P)
	y0.Mul(y0, hb)
	y0.Mod(y0, pk.P)
	return State{Y: y0, A: a0, B: b0}
}

// Step advances a walker one step (§4.3). The header hash H is computed
// over the block's canonical prefix with the current element y as the
// varying field ("nonce" slot), which is what couples the walk to the
// block's header, body and pubkey: altering any of them perturbs every
// subsequent step.
func Step(pfx *headerhash.Prefix, pk *elgamal.PublicKey, s State) State {
	p, g, h, n := pk.P, pk.G, pk.H, pk.N()

	H := pfx.HashAsIntModP(s.Y.String(), p)
	branch := new(big.Int).Mod(H, big.NewInt(3)).Int64()

	switch branch {
	case 0:
		y2 := new(big.Int).Exp(s.Y, H, p)
		a2 := new(big.Int).Mul(s.A, H)
		a2.Mod(a2, n)
		b2 := new(big.Int).Mul(s.B, H)
		b2.Mod(b2, n)
		return State{Y: y2, A: a2, B: b2}
	case 1:
		y2 := new(big.Int).Exp(g, H, p)
		y2.Mul(y2, s.Y)
		y2.Mod(y2, p)
		a2 := new(big.Int).Add(s.A, H)
		a2.Mod(a2, n)
		return State{Y: y2, A: a2, B: new(big.Int).Set(s.B)}
	default: // 2
		y2 := new(big.Int).Exp(h, H, p)
		y2.Mul(y2, s.Y)
		y2.Mod(y2, p)
		b2 := new(big.Int).Add(s.B, H)
		b2.Mod(b2, n)
		return State{Y: y2, A: new(big.Int).Set(s.A), B: b2}
	}
}
