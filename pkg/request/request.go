package request

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

var (
	ErrEmptyRequest    = errors.New("request has no instructions")
	ErrMissingFeePayer = errors.New("request has no fee payer")
)

// Request is an ordered batch of instructions submitted atomically.
type Request struct {
	Instructions []solana.Instruction
	FeePayer     solana.PublicKey
	// Signers lists every key that must sign, fee payer first.
	Signers []solana.PublicKey
}

type options struct {
	unitLimit uint32
	unitPrice uint64
}

type Option func(*options)

// WithComputeUnitLimit prepends a SetComputeUnitLimit instruction.
func WithComputeUnitLimit(units uint32) Option {
	return func(o *options) { o.unitLimit = units }
}

// WithComputeUnitPrice prepends a SetComputeUnitPrice instruction (micro-lamports per unit).
func WithComputeUnitPrice(microLamports uint64) Option {
	return func(o *options) { o.unitPrice = microLamports }
}

// Assemble packs instructions into one request in the order given. Compute budget
// instructions, when requested, come first: price, then limit. Nothing is reordered,
// deduplicated or merged.
func Assemble(instructions []solana.Instruction, feePayer solana.PublicKey, extraSigners []solana.PublicKey, opts ...Option) (*Request, error) {
	if len(instructions) == 0 {
		return nil, ErrEmptyRequest
	}
	if feePayer.IsZero() {
		return nil, ErrMissingFeePayer
	}
	for i, inst := range instructions {
		if inst == nil {
			return nil, fmt.Errorf("instruction %d is nil", i)
		}
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	prefix := make([]solana.Instruction, 0, 2)
	if o.unitPrice > 0 {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(o.unitPrice).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("failed to build CU price instruction: %w", err)
		}
		prefix = append(prefix, ix)
	}
	if o.unitLimit > 0 {
		ix, err := computebudget.NewSetComputeUnitLimitInstruction(o.unitLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("failed to build CU limit instruction: %w", err)
		}
		prefix = append(prefix, ix)
	}

	all := make([]solana.Instruction, 0, len(prefix)+len(instructions))
	all = append(all, prefix...)
	all = append(all, instructions...)

	return &Request{
		Instructions: all,
		FeePayer:     feePayer,
		Signers:      requiredSigners(all, feePayer, extraSigners),
	}, nil
}

func requiredSigners(instructions []solana.Instruction, feePayer solana.PublicKey, extra []solana.PublicKey) []solana.PublicKey {
	seen := map[solana.PublicKey]bool{feePayer: true}
	out := []solana.PublicKey{feePayer}
	add := func(k solana.PublicKey) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, k := range extra {
		add(k)
	}
	for _, inst := range instructions {
		for _, meta := range inst.Accounts() {
			if meta.IsSigner {
				add(meta.PublicKey)
			}
		}
	}
	return out
}

// Transaction compiles the request into an unsigned transaction.
func (r *Request) Transaction(blockhash solana.Hash) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(r.Instructions, blockhash, solana.TransactionPayer(r.FeePayer))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}
