package gorb

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrMissingAccount = errors.New("required account not set")
	ErrInvalidRoute   = errors.New("invalid multihop route")
)

// MultihopHops is the number of hops the program's multihop swap reads.
const MultihopHops = 2

// Programs are the non-AMM programs the dispatcher expects to be passed in.
// AssociatedTokenProgram is only used to derive user accounts.
type Programs struct {
	TokenProgram           solana.PublicKey
	SystemProgram          solana.PublicKey
	AssociatedTokenProgram solana.PublicKey
}

// DefaultPrograms targets GorbChain's token programs.
var DefaultPrograms = Programs{
	TokenProgram:           GORB_TOKEN_PROGRAM_ID,
	SystemProgram:          solana.SystemProgramID,
	AssociatedTokenProgram: GORB_ASSOCIATED_TOKEN_PROGRAM_ID,
}

// UserAccounts are the holding accounts of the signing user for one pool.
type UserAccounts struct {
	Owner  solana.PublicKey
	TokenA solana.PublicKey
	TokenB solana.PublicKey
	LP     solana.PublicKey
}

// Hop is one leg of a multihop swap. Input and Output are the user-side accounts the
// leg reads from and pays into.
type Hop struct {
	Keys   PoolKeys
	Input  solana.PublicKey
	Output solana.PublicKey
}

// AccountContext carries everything any operation's account list may need.
type AccountContext struct {
	Keys     PoolKeys
	User     UserAccounts
	Programs Programs

	// Swap
	AToB bool

	// Fee management
	Treasury  solana.PublicKey
	Authority solana.PublicKey
	AmountA   uint64
	AmountB   uint64

	// MultihopSwap
	Hops []Hop

	// FindPoolsByToken
	Token solana.PublicKey
}

// BuildAccounts returns the ordered account list the program's dispatcher reads for op.
func BuildAccounts(op Operation, c AccountContext) ([]*solana.AccountMeta, error) {
	switch op {
	case OpInitPool:
		return initPoolAccounts(c)
	case OpAddLiquidity:
		return addLiquidityAccounts(c)
	case OpRemoveLiquidity:
		return removeLiquidityAccounts(c)
	case OpSwap:
		return swapAccounts(c)
	case OpMultihopSwap:
		return multihopSwapAccounts(c)
	case OpCollectFees, OpSetFeeTreasury:
		return feeAdminAccounts(c)
	case OpWithdrawFees:
		return withdrawFeesAccounts(c)
	case OpSwapNativeAssetToToken:
		return swapNativeAccounts(c)
	case OpFindPoolsByToken:
		return findPoolsAccounts(c)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, op)
}

func initPoolAccounts(c AccountContext) ([]*solana.AccountMeta, error) {
	if err := requireAccounts(
		named{"pool", c.Keys.Pool.Address}, named{"user token a", c.User.TokenA},
		named{"user token b", c.User.TokenB}, named{"user lp", c.User.LP}, named{"payer", c.User.Owner},
	); err != nil {
		return nil, err
	}
	return []*solana.AccountMeta{
		solana.NewAccountMeta(c.Keys.Pool.Address, true, false),
		solana.NewAccountMeta(c.Keys.MintA, false, false),
		solana.NewAccountMeta(c.Keys.MintB, false, false),
		solana.NewAccountMeta(c.Keys.VaultA, true, false),
		solana.NewAccountMeta(c.Keys.VaultB, true, false),
		solana.NewAccountMeta(c.Keys.LPMint, true, false),
		solana.NewAccountMeta(c.User.TokenA, true, false),
		solana.NewAccountMeta(c.User.TokenB, true, false),
		solana.NewAccountMeta(c.User.LP, true, false),
		solana.NewAccountMeta(c.Programs.TokenProgram, false, false),
		solana.NewAccountMeta(c.Programs.SystemProgram, false, false),
		solana.NewAccountMeta(c.User.Owner, true, true), // fee payer
	}, nil
}

func addLiquidityAccounts(c AccountContext) ([]*solana.AccountMeta, error) {
	if err := requireAccounts(
		named{"pool", c.Keys.Pool.Address}, named{"user token a", c.User.TokenA},
		named{"user token b", c.User.TokenB}, named{"user lp", c.User.LP}, named{"user", c.User.Owner},
	); err != nil {
		return nil, err
	}
	return []*solana.AccountMeta{
		solana.NewAccountMeta(c.Keys.Pool.Address, true, false),
		solana.NewAccountMeta(c.Keys.MintA, false, false),
		solana.NewAccountMeta(c.Keys.MintB, false, false),
		solana.NewAccountMeta(c.Keys.VaultA, true, false),
		solana.NewAccountMeta(c.Keys.VaultB, true, false),
		solana.NewAccountMeta(c.Keys.LPMint, true, false),
		solana.NewAccountMeta(c.User.TokenA, true, false),
		solana.NewAccountMeta(c.User.TokenB, true, false),
		solana.NewAccountMeta(c.User.LP, true, false),
		solana.NewAccountMeta(c.User.Owner, true, true),
		solana.NewAccountMeta(c.Programs.TokenProgram, false, false),
	}, nil
}

// Same shape as add liquidity except the LP account precedes the token accounts.
func removeLiquidityAccounts(c AccountContext) ([]*solana.AccountMeta, error) {
	if err := requireAccounts(
		named{"pool", c.Keys.Pool.Address}, named{"user token a", c.User.TokenA},
		named{"user token b", c.User.TokenB}, named{"user lp", c.User.LP}, named{"user", c.User.Owner},
	); err != nil {
		return nil, err
	}
	return []*solana.AccountMeta{
		solana.NewAccountMeta(c.Keys.Pool.Address, true, false),
		solana.NewAccountMeta(c.Keys.MintA, false, false),
		solana.NewAccountMeta(c.Keys.MintB, false, false),
		solana.NewAccountMeta(c.Keys.VaultA, true, false),
		solana.NewAccountMeta(c.Keys.VaultB, true, false),
		solana.NewAccountMeta(c.Keys.LPMint, true, false),
		solana.NewAccountMeta(c.User.LP, true, false),
		solana.NewAccountMeta(c.User.TokenA, true, false),
		solana.NewAccountMeta(c.User.TokenB, true, false),
		solana.NewAccountMeta(c.User.Owner, true, true),
		solana.NewAccountMeta(c.Programs.TokenProgram, false, false),
	}, nil
}

func swapAccounts(c AccountContext) ([]*solana.AccountMeta, error) {
	if err := requireAccounts(
		named{"pool", c.Keys.Pool.Address}, named{"user token a", c.User.TokenA},
		named{"user token b", c.User.TokenB}, named{"user", c.User.Owner},
	); err != nil {
		return nil, err
	}
	userIn, userOut := c.User.TokenA, c.User.TokenB
	if !c.AToB {
		userIn, userOut = c.User.TokenB, c.User.TokenA
	}
	return []*solana.AccountMeta{
		solana.NewAccountMeta(c.Keys.Pool.Address, true, false),
		solana.NewAccountMeta(c.Keys.MintA, false, false),
		solana.NewAccountMeta(c.Keys.MintB, false, false),
		solana.NewAccountMeta(c.Keys.VaultA, true, false),
		solana.NewAccountMeta(c.Keys.VaultB, true, false),
		solana.NewAccountMeta(userIn, true, false),
		solana.NewAccountMeta(userOut, true, false),
		solana.NewAccountMeta(c.User.Owner, true, true),
		solana.NewAccountMeta(c.Programs.TokenProgram, false, false),
	}, nil
}

// The program reads exactly two standard-pool hops of seven accounts each after the
// three leading ones.
func multihopSwapAccounts(c AccountContext) ([]*solana.AccountMeta, error) {
	if len(c.Hops) != MultihopHops {
		return nil, fmt.Errorf("%w: multihop swap takes %d hops, got %d", ErrInvalidRoute, MultihopHops, len(c.Hops))
	}
	for i, hop := range c.Hops {
		if hop.Keys.Kind != PoolKindStandard {
			return nil, fmt.Errorf("%w: hop %d is a %s pool", ErrInvalidRoute, i, hop.Keys.Kind)
		}
	}
	if err := requireAccounts(named{"user", c.User.Owner}, named{"user input", c.Hops[0].Input}); err != nil {
		return nil, err
	}
	metas := make([]*solana.AccountMeta, 0, 3+7*len(c.Hops))
	metas = append(metas,
		solana.NewAccountMeta(c.User.Owner, true, true),
		solana.NewAccountMeta(c.Programs.TokenProgram, false, false),
		solana.NewAccountMeta(c.Hops[0].Input, true, false),
	)
	for i, hop := range c.Hops {
		if err := requireAccounts(named{fmt.Sprintf("hop %d pool", i), hop.Keys.Pool.Address},
			named{fmt.Sprintf("hop %d output", i), hop.Output}); err != nil {
			return nil, err
		}
		metas = append(metas,
			solana.NewAccountMeta(hop.Keys.Pool.Address, true, false),
			solana.NewAccountMeta(hop.Keys.MintA, false, false),
			solana.NewAccountMeta(hop.Keys.MintB, false, false),
			solana.NewAccountMeta(hop.Keys.VaultA, true, false),
			solana.NewAccountMeta(hop.Keys.VaultB, true, false),
			solana.NewAccountMeta(hop.Input, true, false),
			solana.NewAccountMeta(hop.Output, true, false),
		)
	}
	return metas, nil
}

func feeAdminAccounts(c AccountContext) ([]*solana.AccountMeta, error) {
	if err := requireAccounts(
		named{"pool", c.Keys.Pool.Address}, named{"treasury", c.Treasury}, named{"authority", c.Authority},
	); err != nil {
		return nil, err
	}
	return []*solana.AccountMeta{
		solana.NewAccountMeta(c.Keys.Pool.Address, true, false),
		solana.NewAccountMeta(c.Treasury, false, false),
		solana.NewAccountMeta(c.Authority, true, true),
	}, nil
}

// Each token leg paid from a vault passes the vault twice: once as source, once as its own
// transfer authority. Legs with a zero amount are not read by the program and must be omitted.
// The native leg of a native pool is paid from the pool account and needs no extra accounts.
func withdrawFeesAccounts(c AccountContext) ([]*solana.AccountMeta, error) {
	if err := requireAccounts(
		named{"pool", c.Keys.Pool.Address}, named{"treasury", c.Treasury}, named{"authority", c.Authority},
	); err != nil {
		return nil, err
	}
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(c.Keys.Pool.Address, true, false),
		solana.NewAccountMeta(c.Treasury, true, false),
		solana.NewAccountMeta(c.Authority, true, true),
		solana.NewAccountMeta(c.Programs.TokenProgram, false, false),
		solana.NewAccountMeta(c.Programs.SystemProgram, false, false),
	}

	// A native pool stores the native side first, so AmountA is always the native fee
	// and AmountB the token fee, whatever order the keys were derived in.
	if c.Keys.Kind == PoolKindNative {
		if c.AmountB > 0 {
			metas = append(metas, vaultLeg(c.Keys.TokenVault())...)
		}
		return metas, nil
	}

	if c.AmountA > 0 {
		metas = append(metas, vaultLeg(c.Keys.VaultA)...)
	}
	if c.AmountB > 0 {
		metas = append(metas, vaultLeg(c.Keys.VaultB)...)
	}
	return metas, nil
}

func vaultLeg(vault solana.PublicKey) []*solana.AccountMeta {
	return []*solana.AccountMeta{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(vault, false, false),
	}
}

func swapNativeAccounts(c AccountContext) ([]*solana.AccountMeta, error) {
	if c.Keys.Kind != PoolKindNative {
		return nil, fmt.Errorf("%s requires a native pool, got %s", OpSwapNativeAssetToToken, c.Keys.Kind)
	}
	userToken := c.User.TokenB
	if c.Keys.MintB.Equals(NATIVE_MINT) {
		userToken = c.User.TokenA
	}
	if err := requireAccounts(
		named{"pool", c.Keys.Pool.Address}, named{"user token", userToken}, named{"user", c.User.Owner},
	); err != nil {
		return nil, err
	}
	return []*solana.AccountMeta{
		solana.NewAccountMeta(c.Keys.Pool.Address, true, false),
		solana.NewAccountMeta(c.Keys.TokenMint(), false, false),
		solana.NewAccountMeta(c.Keys.TokenVault(), true, false),
		solana.NewAccountMeta(userToken, true, false),
		solana.NewAccountMeta(c.User.Owner, true, true),
		solana.NewAccountMeta(c.Programs.TokenProgram, false, false),
		solana.NewAccountMeta(c.Programs.SystemProgram, false, false),
	}, nil
}

func findPoolsAccounts(c AccountContext) ([]*solana.AccountMeta, error) {
	if err := requireAccounts(named{"token", c.Token}, named{"payer", c.User.Owner}); err != nil {
		return nil, err
	}
	return []*solana.AccountMeta{
		solana.NewAccountMeta(c.Token, false, false),
		solana.NewAccountMeta(c.User.Owner, true, true),
	}, nil
}

// TokenVault returns the vault holding the non-native side of a native pool.
func (k PoolKeys) TokenVault() solana.PublicKey {
	if k.MintA.Equals(NATIVE_MINT) {
		return k.VaultB
	}
	return k.VaultA
}

type named struct {
	name string
	key  solana.PublicKey
}

func requireAccounts(keys ...named) error {
	for _, k := range keys {
		if k.key.IsZero() {
			return fmt.Errorf("%w: %s", ErrMissingAccount, k.name)
		}
	}
	return nil
}
