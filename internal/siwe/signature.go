package siwe

import (
	"crypto/ecdsa"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrBadSignature = errors.New("bad signature encoding")

// RecoverAddress recupera la dirección que firmó raw con personal_sign
// (EIP-191). Devuelve la dirección en minúsculas.
func RecoverAddress(raw, signatureHex string) (string, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signatureHex))
	if err != nil || len(sig) != crypto.SignatureLength {
		return "", ErrBadSignature
	}
	// No mutar el slice del llamador.
	sig = append([]byte(nil), sig...)
	switch sig[crypto.RecoveryIDOffset] {
	case 27, 28:
		sig[crypto.RecoveryIDOffset] -= 27
	case 0, 1:
	default:
		return "", ErrBadSignature
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(raw)), sig)
	if err != nil {
		return "", ErrBadSignature
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// Sign firma raw con personal_sign y devuelve la firma en hex (v = 27/28),
// tal como la produce una wallet.
func Sign(raw string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(raw)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
