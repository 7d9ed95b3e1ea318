package gorb

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Instruction is one encoded AMM instruction ready to be placed into a transaction.
type Instruction struct {
	bin.BaseVariant
	Payload                 Payload
	programID               solana.PublicKey
	data                    []byte
	solana.AccountMetaSlice `bin:"-" borsh_skip:"true"`
}

var _ solana.Instruction = (*Instruction)(nil)

func (inst *Instruction) ProgramID() solana.PublicKey {
	return inst.programID
}

func (inst *Instruction) Accounts() (out []*solana.AccountMeta) {
	return inst.AccountMetaSlice
}

func (inst *Instruction) Data() ([]byte, error) {
	out := make([]byte, len(inst.data))
	copy(out, inst.data)
	return out, nil
}

// Builder pairs a codec with the account list rules for one deployment of the program.
type Builder struct {
	ProgramID solana.PublicKey
	Programs  Programs
	codec     *Codec
}

// NewBuilder returns a builder using table for discriminators.
func NewBuilder(programID solana.PublicKey, programs Programs, table Discriminators) (*Builder, error) {
	codec, err := NewCodec(table)
	if err != nil {
		return nil, err
	}
	return &Builder{ProgramID: programID, Programs: programs, codec: codec}, nil
}

// NewDefaultBuilder targets the GorbChain deployment with the write-path discriminator table.
func NewDefaultBuilder() *Builder {
	return &Builder{
		ProgramID: GORB_AMM_PROGRAM_ID,
		Programs:  DefaultPrograms,
		codec:     MustNewCodec(DefaultDiscriminators),
	}
}

func (b *Builder) Codec() *Codec {
	return b.codec
}

// Build encodes p and attaches the account list for its operation. Fields of c that the
// payload already determines (swap direction, withdrawn amounts, queried token) are taken
// from the payload. Fields the payload leaves unset are filled from c on a copy; p itself
// is never modified.
//
// An InitPool without mints takes mints and bump from the pool keys. One with mints must
// match the keys, bump included.
func (b *Builder) Build(p Payload, c AccountContext) (*Instruction, error) {
	if c.Programs == (Programs{}) {
		c.Programs = b.Programs
	}
	switch v := p.(type) {
	case *InitPool:
		cp := *v
		if cp.MintA.IsZero() && cp.MintB.IsZero() {
			cp.MintA, cp.MintB, cp.Bump = c.Keys.MintA, c.Keys.MintB, c.Keys.Pool.Bump
		}
		if !cp.MintA.Equals(c.Keys.MintA) || !cp.MintB.Equals(c.Keys.MintB) {
			return nil, fmt.Errorf("init pool mints %s/%s do not match pool keys %s/%s",
				cp.MintA, cp.MintB, c.Keys.MintA, c.Keys.MintB)
		}
		if cp.Bump != c.Keys.Pool.Bump {
			return nil, fmt.Errorf("init pool bump %d does not match derived bump %d", cp.Bump, c.Keys.Pool.Bump)
		}
		p = &cp
	case *Swap:
		c.AToB = v.AToB
	case *WithdrawFees:
		cp := *v
		c.AmountA, c.AmountB = cp.AmountA, cp.AmountB
		if cp.Pool.IsZero() {
			cp.Pool = c.Keys.Pool.Address
		}
		p = &cp
	case *CollectFees:
		cp := *v
		if cp.Pool.IsZero() {
			cp.Pool = c.Keys.Pool.Address
		}
		p = &cp
	case *SetFeeTreasury:
		cp := *v
		if cp.Pool.IsZero() {
			cp.Pool = c.Keys.Pool.Address
		}
		if cp.Treasury.IsZero() {
			cp.Treasury = c.Treasury
		}
		p = &cp
	case *FindPoolsByToken:
		c.Token = v.Token
	}

	data, err := b.codec.Encode(p)
	if err != nil {
		return nil, err
	}
	metas, err := BuildAccounts(p.Operation(), c)
	if err != nil {
		return nil, fmt.Errorf("%s accounts: %w", p.Operation(), err)
	}

	inst := &Instruction{
		Payload:          p,
		programID:        b.ProgramID,
		data:             data,
		AccountMetaSlice: metas,
	}
	inst.BaseVariant = bin.BaseVariant{Impl: inst}
	return inst, nil
}
