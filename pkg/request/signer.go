package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var ErrMissingSignerKey = errors.New("no key for required signer")

// Signed is a request compiled and signed against one blockhash.
type Signed struct {
	Request     *Request
	Transaction *solana.Transaction
	Blockhash   solana.Hash
}

// Signature is the transaction id: the fee payer's signature.
func (s *Signed) Signature() solana.Signature {
	if len(s.Transaction.Signatures) == 0 {
		return solana.Signature{}
	}
	return s.Transaction.Signatures[0]
}

type Signer interface {
	Sign(ctx context.Context, req *Request, blockhash solana.Hash) (*Signed, error)
}

// KeySigner signs with in-memory private keys.
type KeySigner struct {
	keys map[solana.PublicKey]solana.PrivateKey
}

func NewKeySigner(keys ...solana.PrivateKey) *KeySigner {
	s := &KeySigner{keys: make(map[solana.PublicKey]solana.PrivateKey, len(keys))}
	for _, k := range keys {
		s.keys[k.PublicKey()] = k
	}
	return s
}

func (s *KeySigner) Sign(_ context.Context, req *Request, blockhash solana.Hash) (*Signed, error) {
	for _, k := range req.Signers {
		if _, ok := s.keys[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSignerKey, k)
		}
	}

	tx, err := req.Transaction(blockhash)
	if err != nil {
		return nil, err
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if k, ok := s.keys[key]; ok {
			return &k
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return &Signed{Request: req, Transaction: tx, Blockhash: blockhash}, nil
}
