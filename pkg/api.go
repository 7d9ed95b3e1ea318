package pkg

import (
	"context"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

// ProtocolName represents the string name of AMM protocol
type ProtocolName string

const (
	ProtocolNameGorbAmm ProtocolName = "gorb_amm"
)

type Pool interface {
	ProtocolName() ProtocolName
	GetProgramID() solana.PublicKey
	GetID() string
	GetTokens() (baseMint, quoteMint string)
	Quote(ctx context.Context, inputMint solana.PublicKey, inputAmount math.Int) (math.Int, error)
	BuildSwapInstructions(
		ctx context.Context,
		user solana.PublicKey,
		inputMint solana.PublicKey,
		inputAmount math.Int,
		minOut math.Int,
	) ([]solana.Instruction, error)
}

type Protocol interface {
	FetchPoolsByPair(ctx context.Context, baseMint, quoteMint solana.PublicKey) ([]Pool, error)
	FetchPoolByID(ctx context.Context, poolID solana.PublicKey) (Pool, error)
}
