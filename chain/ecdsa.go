package chain

import (
	"crypto/sha256"
	"encoding/asn1"
	"errors"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// VerifyECDSA is the external collaborator spec.md calls verify_ecdsa:
// verify a raw r‖s signature (64 bytes) against a raw SECP256k1 verifying
// key and a message. The node calls this once per non-coinbase
// transaction body during block verification (§4.6 step 6); it never signs
// anything itself.
func VerifyECDSA(pubKeyBytes, sig, msg []byte) bool {
	if len(sig) != 64 {
		return false
	}
	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig[:32]) {
		// overflowed mod n: reject rather than silently reduce.
		return false
	}
	if s.SetByteSlice(sig[32:]) {
		return false
	}
	signature := ecdsa.NewSignature(&r, &s)
	digest := sha256.Sum256(msg)
	return signature.Verify(digest[:], pubKey)
}

// SignECDSA is the wallet-side counterpart: sign msg with priv and return
// the raw 64-byte r‖s signature the wire format expects. Not part of the
// node's core contract (spec.md: signing is an external collaborator), but
// the CLI wallet needs to produce exactly the bytes VerifyECDSA accepts.
func SignECDSA(priv *secp256k1.PrivateKey, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	sig := ecdsa.Sign(priv, digest[:])
	r, s, err := derToRS(sig.Serialize())
	if err != nil {
		return nil, err
	}
	out := make([]byte, 64)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}

type derSignature struct {
	R, S *big.Int
}

// derToRS extracts the raw (r, s) pair from a DER-encoded ECDSA signature.
// ecdsa.Signature only exposes a DER Serialize(); this is the one place we
// need the individual scalars, so we round-trip through ASN.1 rather than
// reaching into the library's unexported fields.
func derToRS(der []byte) (r, s *big.Int, err error) {
	var parsed derSignature
	if _, err := asn1.Unmarshal(der, &parsed); err != nil {
		return nil, nil, errors.New("chain: malformed DER signature: " + err.Error())
	}
	if parsed.R == nil || parsed.S == nil {
		return nil, nil, errors.New("chain: incomplete DER signature")
	}
	return parsed.R, parsed.S, nil
}
