package elgamal

import (
	"math/big"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func TestGeneratePubKeyDeterministic(t *testing.T) {
	a := GeneratePubKey(16, 0xFFFFFFFFFFFF)
	b := GeneratePubKey(16, 0xFFFFFFFFFFFF)
	if a.P.Cmp(b.P) != 0 || a.G.Cmp(b.G) != 0 || a.H.Cmp(b.H) != 0 {
		t.Fatalf("generation not deterministic:\n%s\n%s", spew.Sdump(a), spew.Sdump(b))
	}
}

func TestGeneratePubKeyInvariants(t *testing.T) {
	pk := GeneratePubKey(24, 12345)
	n := pk.N()

	if !pk.P.ProbablyPrime(20) {
		t.Fatalf("p is not prime")
	}
	if !n.ProbablyPrime(20) {
		t.Fatalf("(p-1)/2 is not prime: not a safe prime")
	}
	one := big.NewInt(1)
	two := big.NewInt(2)
	if pk.G.Cmp(one) <= 0 || pk.G.Cmp(pk.P) >= 0 {
		t.Fatalf("g out of range")
	}
	gn := new(big.Int).Exp(pk.G, n, pk.P)
	if gn.Cmp(one) != 0 {
		t.Fatalf("g^n != 1 mod p")
	}
	g2 := new(big.Int).Exp(pk.G, two, pk.P)
	if g2.Cmp(one) == 0 {
		t.Fatalf("g^2 == 1 mod p, g has wrong order")
	}
	if pk.H.Cmp(one) <= 0 || pk.H.Cmp(pk.P) >= 0 {
		t.Fatalf("h out of range")
	}
}

func TestGeneratePubKeySolvable(t *testing.T) {
	// Small-bit exhaustive check that some x with g^x = h actually exists,
	// per spec.md §4.1's rationale for discarding x at generation time.
	pk := GeneratePubKey(12, 777)
	n := pk.N()
	found := false
	for x := big.NewInt(1); x.Cmp(n) < 0; x.Add(x, big.NewInt(1)) {
		if new(big.Int).Exp(pk.G, x, pk.P).Cmp(pk.H) == 0 {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("no x in [1, n) solves g^x = h for generated key")
	}
}

func TestHexRoundTrip(t *testing.T) {
	pk := GeneratePubKey(20, 99)
	parsed, err := ParsePublicKeyHex(pk.Hex())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.P.Cmp(pk.P) != 0 || parsed.G.Cmp(pk.G) != 0 || parsed.H.Cmp(pk.H) != 0 {
		t.Fatalf("hex round trip mismatch")
	}
}

func TestScheduleNextDeterministic(t *testing.T) {
	genesis := GeneratePubKey(16, 0xFFFFFFFFFFFF)
	a := ScheduleNext(genesis, 16)
	b := ScheduleNext(genesis, 16)
	if a.P.Cmp(b.P) != 0 {
		t.Fatalf("schedule_next not deterministic")
	}
}

func TestDifficultyAdjust(t *testing.T) {
	if got := DifficultyAdjust(20, 10); got != 21 {
		t.Fatalf("expected increment on fast mining, got %d", got)
	}
	if got := DifficultyAdjust(20, 60); got != 19 {
		t.Fatalf("expected decrement on slow mining, got %d", got)
	}
	if got := DifficultyAdjust(20, BlockTime); got != 20 {
		t.Fatalf("expected no change at exactly target, got %d", got)
	}
	if got := DifficultyAdjust(minBitLength, 60); got != minBitLength {
		t.Fatalf("expected clamp at minimum, got %d", got)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	pk := GeneratePubKey(24, 555)
	x := big.NewInt(42)
	// derive h as g^x for a reconstructible private key
	pk.H = new(big.Int).Exp(pk.G, x, pk.P)

	m := big.NewInt(12345)
	ct, err := EncryptForFuture(pk, m)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := DecryptWithSolution(x, pk, ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got.Cmp(m) != 0 {
		t.Fatalf("round trip mismatch: want %s got %s", m, got)
	}
}
