package sol

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/Solana-ZH/gorbswap/pkg/pool/gorb"
)

// TokenProgram addresses a token program deployment together with its associated-account
// program. Both follow the SPL layouts but may live at non-standard ids.
type TokenProgram struct {
	ProgramID           solana.PublicKey
	AssociatedProgramID solana.PublicKey
}

// rehome moves an instruction built by the token package, which always targets the
// program id set on that package, onto this deployment.
func (tp TokenProgram) rehome(ix *token.Instruction) (solana.Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(tp.ProgramID, ix.Accounts(), data), nil
}

// CreateMintAccount allocates an uninitialized mint owned by the token program.
func (tp TokenProgram) CreateMintAccount(payer, mint solana.PublicKey, rentLamports uint64) (solana.Instruction, error) {
	return system.NewCreateAccountInstruction(rentLamports, MintAccountSize, tp.ProgramID, payer, mint).ValidateAndBuild()
}

// InitializeMint sets decimals and authorities on a freshly allocated mint.
func (tp TokenProgram) InitializeMint(mint solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey, freezeAuthority *solana.PublicKey) (solana.Instruction, error) {
	builder := token.NewInitializeMintInstructionBuilder().
		SetDecimals(decimals).
		SetMintAuthority(mintAuthority).
		SetMintAccount(mint)
	if freezeAuthority != nil {
		builder.SetFreezeAuthority(*freezeAuthority)
	}
	ix, err := builder.ValidateAndBuild()
	if err != nil {
		return nil, err
	}
	return tp.rehome(ix)
}

// MintTo mints amount into destination. authority must sign.
func (tp TokenProgram) MintTo(mint, destination, authority solana.PublicKey, amount uint64) (solana.Instruction, error) {
	ix, err := token.NewMintToInstruction(amount, mint, destination, authority, nil).ValidateAndBuild()
	if err != nil {
		return nil, err
	}
	return tp.rehome(ix)
}

// CreateAssociatedAccount creates owner's associated account for mint, paid by payer.
// The associated-token-account package derives under the SPL ids only, so the account
// list is written out here.
func (tp TokenProgram) CreateAssociatedAccount(payer, owner, mint solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	ata, err := gorb.DeriveAssociatedAccount(owner, mint, tp.ProgramID, tp.AssociatedProgramID)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	return solana.NewInstruction(tp.AssociatedProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(owner, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(tp.ProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}, []byte{0}), ata, nil
}
