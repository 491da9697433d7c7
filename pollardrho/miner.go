package pollardrho

import (
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/yangfh2004/timerelease/elgamal"
	"github.com/yangfh2004/timerelease/headerhash"
	"github.com/yangfh2004/timerelease/mathutil"
)

// ErrDeadline is returned by MineOne when the deadline elapses before a
// collision is found. Callers should consult peers for a longer chain and
// retry with a fresh candidate (§4.3, §4.6).
var ErrDeadline = errors.New("pollardrho: mining deadline reached without collision")

// Result is a successful mine: the Solution plus the nonce (the varying
// field value at the collision point) that becomes the block's header
// nonce.
type Result struct {
	Solution *Solution
	Nonce    string
}

// Miner runs the Floyd tortoise/hare walk described in §4.3. It holds no
// state across calls to MineOne: every candidate block gets a fresh walk,
// matching the original source's behavior of discarding in-progress walk
// state on a retry rather than resuming it.
type Miner struct {
	// StepsPerDeadlineCheck bounds how often the deadline and stop flag are
	// polled, so that cancellation fires within a small multiple of one
	// walk step (§5) without paying a time.Now() syscall every step.
	StepsPerDeadlineCheck int
}

// NewMiner returns a Miner with sensible defaults.
func NewMiner() *Miner {
	return &Miner{StepsPerDeadlineCheck: 256}
}

// MineOne runs the walk for pubkey against prefix until a collision is
// found or deadline elapses. stop, if non-nil, is polled cooperatively so a
// caller can cancel the walk early (e.g. because a longer peer chain
// already arrived).
func (m *Miner) MineOne(prefix *headerhash.Prefix, pubkey *elgamal.PublicKey, seed uint64, deadline time.Time, stop *atomic.Bool) (*Result, error) {
	if m.StepsPerDeadlineCheck <= 0 {
		m.StepsPerDeadlineCheck = 256
	}
	rnd := mathutil.NewSeededRand(seed)

	tortoise := InitialState(pubkey, rnd)
	hare := tortoise

	steps := 0
	for {
		if steps%m.StepsPerDeadlineCheck == 0 {
			if stop != nil && stop.Load() {
				return nil, ErrDeadline
			}
			if !time.Now().Before(deadline) {
				return nil, ErrDeadline
			}
		}
		steps++

		tortoise = Step(prefix, pubkey, tortoise)
		hare = Step(prefix, pubkey, hare)
		hare = Step(prefix, pubkey, hare)

		if tortoise.Y.Cmp(hare.Y) == 0 {
			sol := &Solution{
				A1: new(big.Int).Set(tortoise.A),
				A2: new(big.Int).Set(hare.A),
				B1: new(big.Int).Set(tortoise.B),
				B2: new(big.Int).Set(hare.B),
				N:  pubkey.N(),
			}
			if _, err := sol.ToPrivateKey(pubkey); err != nil {
				// Collision on equal b: keep walking (§4.4) rather than
				// failing the whole candidate.
				tortoise = Step(prefix, pubkey, tortoise)
				hare = Step(prefix, pubkey, hare)
				hare = Step(prefix, pubkey, hare)
				continue
			}
			return &Result{Solution: sol, Nonce: tortoise.Y.String()}, nil
		}
	}
}
