package gorb

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
	"lukechampine.com/uint128"

	"github.com/Solana-ZH/gorbswap/pkg"
)

var (
	ErrUnknownPoolLayout  = errors.New("account data is not a pool layout")
	ErrPoolUninitialized  = errors.New("pool not initialized")
	ErrPoolMismatch       = errors.New("pool account does not match derived address")
	ErrInsufficientSupply = errors.New("pool has no liquidity")
)

// PoolState mirrors the on-chain pool account. Native pools store the native mint as TokenA,
// so FeeCollectedA/B hold the native and token fees, and TokenMint is set.
type PoolState struct {
	TokenA        solana.PublicKey
	TokenB        solana.PublicKey
	Bump          uint8
	ReserveA      uint64
	ReserveB      uint64
	TotalLPSupply uint64
	FeeCollectedA uint64
	FeeCollectedB uint64
	FeeTreasury   solana.PublicKey
	TokenMint     solana.PublicKey `borsh_skip:"true"`
}

type nativePoolState struct {
	TokenA        solana.PublicKey
	TokenB        solana.PublicKey
	Bump          uint8
	ReserveA      uint64
	ReserveB      uint64
	TotalLPSupply uint64
	FeeCollectedA uint64
	FeeCollectedB uint64
	FeeTreasury   solana.PublicKey
	TokenMint     solana.PublicKey
}

// DecodePoolState parses a pool account, choosing the layout by data length.
func DecodePoolState(data []byte) (PoolState, PoolKind, error) {
	switch len(data) {
	case POOL_ACCOUNT_SIZE:
		var s PoolState
		if err := borsh.Deserialize(&s, data); err != nil {
			return PoolState{}, 0, fmt.Errorf("decode pool: %w", err)
		}
		if s.TokenA.IsZero() {
			return PoolState{}, 0, ErrPoolUninitialized
		}
		return s, PoolKindStandard, nil
	case NATIVE_POOL_ACCOUNT_SIZE:
		var n nativePoolState
		if err := borsh.Deserialize(&n, data); err != nil {
			return PoolState{}, 0, fmt.Errorf("decode native pool: %w", err)
		}
		if n.TokenA.IsZero() {
			return PoolState{}, 0, ErrPoolUninitialized
		}
		return PoolState(n), PoolKindNative, nil
	}
	return PoolState{}, 0, fmt.Errorf("%w: %d bytes", ErrUnknownPoolLayout, len(data))
}

// Pool is a decoded pool together with its derived addresses.
type Pool struct {
	Keys    PoolKeys
	State   PoolState
	builder *Builder
}

var _ pkg.Pool = (*Pool)(nil)

// NewPool decodes data read from address and checks it against the address the
// program would derive for the stored mints.
func NewPool(builder *Builder, address solana.PublicKey, data []byte) (*Pool, error) {
	state, kind, err := DecodePoolState(data)
	if err != nil {
		return nil, err
	}
	keys, err := DerivePoolKeys(builder.ProgramID, state.TokenA, state.TokenB)
	if err != nil {
		return nil, err
	}
	if keys.Kind != kind || !keys.Pool.Address.Equals(address) {
		return nil, fmt.Errorf("%w: got %s, derived %s", ErrPoolMismatch, address, keys.Pool.Address)
	}
	return &Pool{Keys: keys, State: state, builder: builder}, nil
}

func (p *Pool) ProtocolName() pkg.ProtocolName {
	return pkg.ProtocolNameGorbAmm
}

func (p *Pool) GetProgramID() solana.PublicKey {
	return p.builder.ProgramID
}

func (p *Pool) GetID() string {
	return p.Keys.Pool.Address.String()
}

func (p *Pool) GetTokens() (baseMint, quoteMint string) {
	return p.State.TokenA.String(), p.State.TokenB.String()
}

// Quote returns the output of swapping inputAmount of inputMint at the current reserves.
func (p *Pool) Quote(_ context.Context, inputMint solana.PublicKey, inputAmount math.Int) (math.Int, error) {
	reserveIn, reserveOut, err := p.reservesFor(inputMint)
	if err != nil {
		return math.ZeroInt(), err
	}
	return SwapOutput(inputAmount, math.NewIntFromUint64(reserveIn), math.NewIntFromUint64(reserveOut)), nil
}

func (p *Pool) BuildSwapInstructions(
	_ context.Context,
	user solana.PublicKey,
	inputMint solana.PublicKey,
	inputAmount math.Int,
	minOut math.Int,
) ([]solana.Instruction, error) {
	aToB := inputMint.Equals(p.State.TokenA)
	if !aToB && !inputMint.Equals(p.State.TokenB) {
		return nil, fmt.Errorf("mint %s not in pool %s", inputMint, p.GetID())
	}
	if !inputAmount.IsUint64() || !minOut.IsUint64() {
		return nil, fmt.Errorf("swap amounts exceed u64: in=%s minOut=%s", inputAmount, minOut)
	}
	userAccounts, err := p.UserAccounts(user)
	if err != nil {
		return nil, err
	}
	inst, err := p.builder.Build(&Swap{AmountIn: inputAmount.Uint64(), AToB: aToB}, AccountContext{
		Keys: p.Keys,
		User: userAccounts,
	})
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{inst}, nil
}

// UserAccounts derives the associated holding accounts of owner for this pool's mints.
func (p *Pool) UserAccounts(owner solana.PublicKey) (UserAccounts, error) {
	return DeriveUserAccounts(p.Keys, owner, p.builder.Programs.TokenProgram, p.builder.Programs.AssociatedTokenProgram)
}

// DeriveUserAccounts derives owner's associated accounts for both mints and the LP mint.
func DeriveUserAccounts(keys PoolKeys, owner, tokenProgram, ataProgram solana.PublicKey) (UserAccounts, error) {
	a, err := DeriveAssociatedAccount(owner, keys.MintA, tokenProgram, ataProgram)
	if err != nil {
		return UserAccounts{}, err
	}
	b, err := DeriveAssociatedAccount(owner, keys.MintB, tokenProgram, ataProgram)
	if err != nil {
		return UserAccounts{}, err
	}
	lp, err := DeriveAssociatedAccount(owner, keys.LPMint, tokenProgram, ataProgram)
	if err != nil {
		return UserAccounts{}, err
	}
	return UserAccounts{Owner: owner, TokenA: a, TokenB: b, LP: lp}, nil
}

func (p *Pool) reservesFor(inputMint solana.PublicKey) (in, out uint64, err error) {
	switch {
	case inputMint.Equals(p.State.TokenA):
		return p.State.ReserveA, p.State.ReserveB, nil
	case inputMint.Equals(p.State.TokenB):
		return p.State.ReserveB, p.State.ReserveA, nil
	}
	return 0, 0, fmt.Errorf("mint %s not in pool %s", inputMint, p.GetID())
}

// SwapOutput applies the program's constant-product curve with its 0.3% input fee.
func SwapOutput(amountIn, reserveIn, reserveOut math.Int) math.Int {
	if amountIn.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() {
		return math.ZeroInt()
	}
	inWithFee := amountIn.MulRaw(FEE_NUMERATOR)
	numerator := inWithFee.Mul(reserveOut)
	denominator := reserveIn.MulRaw(FEE_DENOMINATOR).Add(inWithFee)
	return numerator.Quo(denominator)
}

// InitialLiquidity is the LP supply minted by InitPool: floor(sqrt(a*b)).
func InitialLiquidity(amountA, amountB uint64) uint64 {
	product := uint128.From64(amountA).Mul64(amountB)
	return product.Big().Sqrt(product.Big()).Uint64()
}

// DepositFor returns the amounts AddLiquidity takes from an offer of amountA and amountB.
// Once the pool holds reserves the deposit keeps their ratio: the side in excess is cut down.
func (s PoolState) DepositFor(amountA, amountB uint64) (uint64, uint64) {
	if s.ReserveA == 0 || s.ReserveB == 0 {
		return amountA, amountB
	}
	requiredB := uint128.From64(amountA).Mul64(s.ReserveB).Div64(s.ReserveA)
	if requiredB.Cmp64(amountB) <= 0 {
		return amountA, requiredB.Lo
	}
	requiredA := uint128.From64(amountB).Mul64(s.ReserveA).Div64(s.ReserveB)
	return requiredA.Lo, amountB
}

// LiquidityFor returns the LP minted for offering amountA and amountB to the current pool.
func (s PoolState) LiquidityFor(amountA, amountB uint64) (uint64, error) {
	amountA, amountB = s.DepositFor(amountA, amountB)
	if s.TotalLPSupply == 0 {
		return InitialLiquidity(amountA, amountB), nil
	}
	if s.ReserveA == 0 {
		return 0, ErrInsufficientSupply
	}
	return uint128.From64(amountA).Mul64(s.TotalLPSupply).Div64(s.ReserveA).Lo, nil
}

// WithdrawalFor returns the reserves paid out for burning lpAmount.
func (s PoolState) WithdrawalFor(lpAmount uint64) (amountA, amountB uint64, err error) {
	if s.TotalLPSupply == 0 {
		return 0, 0, ErrInsufficientSupply
	}
	if lpAmount > s.TotalLPSupply {
		return 0, 0, fmt.Errorf("lp amount %d exceeds supply %d", lpAmount, s.TotalLPSupply)
	}
	amountA = uint128.From64(lpAmount).Mul64(s.ReserveA).Div64(s.TotalLPSupply).Lo
	amountB = uint128.From64(lpAmount).Mul64(s.ReserveB).Div64(s.TotalLPSupply).Lo
	return amountA, amountB, nil
}
