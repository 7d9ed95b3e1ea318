package gorb

import (
	"github.com/gagliardetto/solana-go"
)

// Program IDs
var (
	// GorbChain AMM program
	GORB_AMM_PROGRAM_ID = solana.MustPublicKeyFromBase58("EtGrXaRpEdozMtfd8tbkbrbDN8LqZNba3xWTdT3HtQWq")

	// GorbChain token programs. Layout-compatible with SPL Token / ATA but deployed at different ids.
	GORB_TOKEN_PROGRAM_ID            = solana.MustPublicKeyFromBase58("G22oYgZ6LnVcy7v8eSNi2xpNk1NcZiPD8CVKSTut7oZ6")
	GORB_ASSOCIATED_TOKEN_PROGRAM_ID = solana.MustPublicKeyFromBase58("GoATGVNeSXerFerPqTJ8hcED1msPWHHLxao2vwBYqowm")

	// Mint the program treats as the chain's native asset
	NATIVE_MINT = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// Seeds
var (
	POOL_SEED    = []byte("pool")
	VAULT_SEED   = []byte("vault")
	LP_MINT_SEED = []byte("mint")

	NATIVE_POOL_SEED    = []byte("native_sol_pool")
	NATIVE_VAULT_SEED   = []byte("native_sol_vault")
	NATIVE_LP_MINT_SEED = []byte("native_sol_lp_mint")
)

// Account sizes
const (
	POOL_ACCOUNT_SIZE        = 32 + 32 + 1 + 8 + 8 + 8 + 8 + 8 + 32 // 137
	NATIVE_POOL_ACCOUNT_SIZE = POOL_ACCOUNT_SIZE + 32               // 169
)

// Fee constants used by the program's constant-product curve (0.3%)
const (
	FEE_NUMERATOR   = 997
	FEE_DENOMINATOR = 1000
)
