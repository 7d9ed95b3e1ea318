package sol

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/Solana-ZH/gorbswap/pkg/pool/gorb"
)

// TokenAmount reads the amount held by a token account in the SPL layout.
func TokenAmount(data []byte) (uint64, error) {
	if uint64(len(data)) < TokenAccountSize {
		return 0, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return 0, fmt.Errorf("decode token account: %w", err)
	}
	return acc.Amount, nil
}

// AccountReader reads raw accounts, nil for absent ones.
type AccountReader interface {
	ReadAccounts(ctx context.Context, keys []solana.PublicKey) ([]*Account, error)
}

// SelectOrCreateTokenAccounts returns owner's associated accounts for mints, index-aligned,
// plus the create instructions for those that do not exist yet. Nothing is submitted.
func (c *Client) SelectOrCreateTokenAccounts(ctx context.Context, tp TokenProgram, payer, owner solana.PublicKey, mints ...solana.PublicKey) ([]solana.PublicKey, []solana.Instruction, error) {
	atas, instrs, err := SelectOrCreateTokenAccounts(ctx, c, tp, payer, owner, mints...)
	if err != nil {
		return nil, nil, err
	}
	if len(instrs) > 0 {
		c.log.Debug("associated accounts missing", zap.Int("count", len(instrs)), zap.Stringer("owner", owner))
	}
	return atas, instrs, nil
}

func SelectOrCreateTokenAccounts(ctx context.Context, r AccountReader, tp TokenProgram, payer, owner solana.PublicKey, mints ...solana.PublicKey) ([]solana.PublicKey, []solana.Instruction, error) {
	atas := make([]solana.PublicKey, len(mints))
	for i, mint := range mints {
		ata, err := gorb.DeriveAssociatedAccount(owner, mint, tp.ProgramID, tp.AssociatedProgramID)
		if err != nil {
			return nil, nil, err
		}
		atas[i] = ata
	}

	existing, err := r.ReadAccounts(ctx, atas)
	if err != nil {
		return nil, nil, err
	}

	var instrs []solana.Instruction
	for i, acc := range existing {
		if acc != nil {
			continue
		}
		inst, _, err := tp.CreateAssociatedAccount(payer, owner, mints[i])
		if err != nil {
			return nil, nil, err
		}
		instrs = append(instrs, inst)
	}
	return atas, instrs, nil
}
