package scenario

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Solana-ZH/gorbswap/pkg/pool/gorb"
	"github.com/Solana-ZH/gorbswap/pkg/reconcile"
	"github.com/Solana-ZH/gorbswap/pkg/router"
	"github.com/Solana-ZH/gorbswap/pkg/sol"
	"github.com/Solana-ZH/gorbswap/pkg/workflow"
)

const (
	StepInit            = "init"
	StepFund            = "fund"
	StepAddLiquidity    = "add-liquidity"
	StepSwap            = "swap"
	StepSwapNative      = "swap-native"
	StepMultihop        = "multihop"
	StepRemoveLiquidity = "remove-liquidity"
	StepSetTreasury     = "set-treasury"
	StepCollectFees     = "collect-fees"
	StepWithdrawFees    = "withdraw-fees"
	StepFindPools       = "find-pools"
)

// Params are the caller-chosen inputs of a step. Each step reads only the fields it needs.
type Params struct {
	// init, fund, add-liquidity, withdraw-fees
	AmountA uint64
	AmountB uint64
	// init: raw units minted to the wallet per new mint, at least the deposited amount
	Supply    uint64
	DecimalsA uint8
	DecimalsB uint8
	// init: create a second pool pairing mint B with a new mint
	Second bool

	// swap, swap-native, multihop
	AmountIn    uint64
	AToB        bool
	SlippageBps uint32

	// remove-liquidity: 0 burns the whole LP balance
	LPAmount uint64

	// set-treasury, collect-fees, withdraw-fees: zero means the recorded treasury or the wallet
	Treasury solana.PublicKey

	// find-pools: zero means mint A
	Token solana.PublicKey
}

type stepFunc func(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error)

var steps = map[string]stepFunc{
	StepInit:            planInit,
	StepFund:            planFund,
	StepAddLiquidity:    planAddLiquidity,
	StepSwap:            planSwap,
	StepSwapNative:      planSwapNative,
	StepMultihop:        planMultihop,
	StepRemoveLiquidity: planRemoveLiquidity,
	StepSetTreasury:     planSetTreasury,
	StepCollectFees:     planCollectFees,
	StepWithdrawFees:    planWithdrawFees,
	StepFindPools:       planFindPools,
}

// Steps lists the step names in scenario order.
func Steps() []string {
	return []string{
		StepInit, StepFund, StepAddLiquidity, StepSwap, StepSwapNative, StepMultihop,
		StepRemoveLiquidity, StepSetTreasury, StepCollectFees, StepWithdrawFees, StepFindPools,
	}
}

type newMint struct {
	key      solana.PrivateKey
	decimals uint8
	supply   uint64
}

// mintAssets creates each mint with the wallet as authority, opens the wallet's associated
// account for it and mints the supply there.
func (r *Runner) mintAssets(ctx context.Context, mints ...newMint) ([]solana.Instruction, []solana.PublicKey, error) {
	rent, err := r.ledger.MinimumBalanceForRentExemption(ctx, sol.MintAccountSize)
	if err != nil {
		return nil, nil, err
	}
	payer := r.payer()
	var instrs []solana.Instruction
	atas := make([]solana.PublicKey, 0, len(mints))
	for _, m := range mints {
		mint := m.key.PublicKey()
		create, err := r.tokens.CreateMintAccount(payer, mint, rent)
		if err != nil {
			return nil, nil, err
		}
		initialize, err := r.tokens.InitializeMint(mint, m.decimals, payer, nil)
		if err != nil {
			return nil, nil, err
		}
		openATA, ata, err := r.tokens.CreateAssociatedAccount(payer, payer, mint)
		if err != nil {
			return nil, nil, err
		}
		instrs = append(instrs, create, initialize, openATA)
		if m.supply > 0 {
			mintTo, err := r.tokens.MintTo(mint, ata, payer, m.supply)
			if err != nil {
				return nil, nil, err
			}
			instrs = append(instrs, mintTo)
		}
		atas = append(atas, ata)
	}
	return instrs, atas, nil
}

func (r *Runner) userAccounts(keys gorb.PoolKeys) (gorb.UserAccounts, error) {
	return gorb.DeriveUserAccounts(keys, r.payer(), r.builder.Programs.TokenProgram, r.builder.Programs.AssociatedTokenProgram)
}

func (r *Runner) fetchPool(ctx context.Context, rec workflow.Record, key string) (*gorb.Pool, error) {
	addr, err := workflow.Resolve(rec, key)
	if err != nil {
		return nil, err
	}
	return r.pools.FetchPool(ctx, addr)
}

func (r *Runner) treasury(rec workflow.Record, p Params) solana.PublicKey {
	if !p.Treasury.IsZero() {
		return p.Treasury
	}
	if t, err := workflow.Resolve(rec, workflow.KeyTreasury); err == nil {
		return t
	}
	return r.payer()
}

func decimals(rec workflow.Record, key string) int32 {
	d, err := workflow.Amount(rec, key)
	if err != nil {
		return 0
	}
	return int32(d)
}

func poolTargets(rec workflow.Record, keys gorb.PoolKeys, user gorb.UserAccounts) []reconcile.Target {
	decA, decB := decimals(rec, workflow.KeyDecimalsA), decimals(rec, workflow.KeyDecimalsB)
	return []reconcile.Target{
		{Address: user.TokenA, Kind: reconcile.KindToken, Label: "user token a", Decimals: decA},
		{Address: user.TokenB, Kind: reconcile.KindToken, Label: "user token b", Decimals: decB},
		{Address: user.LP, Kind: reconcile.KindToken, Label: "user lp"},
		{Address: keys.VaultA, Kind: reconcile.KindToken, Label: "vault a", Decimals: decA},
		{Address: keys.VaultB, Kind: reconcile.KindToken, Label: "vault b", Decimals: decB},
	}
}

func lpSettle(lp solana.PublicKey) func(before, after reconcile.Snapshot) workflow.Fields {
	return func(_, after reconcile.Snapshot) workflow.Fields {
		return workflow.Fields{Amounts: map[string]uint64{workflow.KeyLPBalance: after.Balances[lp]}}
	}
}

// received records the amount credited to out as the last swap output.
func received(out solana.PublicKey) func(before, after reconcile.Snapshot) workflow.Fields {
	return func(before, after reconcile.Snapshot) workflow.Fields {
		var got uint64
		if d := reconcile.Delta(before, after)[out]; d.IsPositive() && d.IsUint64() {
			got = d.Uint64()
		}
		return workflow.Fields{Amounts: map[string]uint64{workflow.KeyLastSwapOut: got}}
	}
}

func planInit(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	if p.AmountA == 0 || p.AmountB == 0 {
		return nil, fmt.Errorf("%w: initial amounts must be positive", ErrInvalidParams)
	}
	if p.Second {
		return planInitSecond(ctx, r, rec, p)
	}

	mintA, mintB := r.newKey(), r.newKey()
	assets, atas, err := r.mintAssets(ctx,
		newMint{key: mintA, decimals: p.DecimalsA, supply: max(p.Supply, p.AmountA)},
		newMint{key: mintB, decimals: p.DecimalsB, supply: max(p.Supply, p.AmountB)},
	)
	if err != nil {
		return nil, err
	}
	keys, err := gorb.DerivePoolKeys(r.builder.ProgramID, mintA.PublicKey(), mintB.PublicKey())
	if err != nil {
		return nil, err
	}
	user, err := r.userAccounts(keys)
	if err != nil {
		return nil, err
	}
	inst, err := r.builder.Build(&gorb.InitPool{AmountA: p.AmountA, AmountB: p.AmountB}, gorb.AccountContext{Keys: keys, User: user})
	if err != nil {
		return nil, err
	}
	r.log.Info("initializing pool", zap.Stringer("pool", keys.Pool.Address),
		zap.Uint64("expected_lp", gorb.InitialLiquidity(p.AmountA, p.AmountB)))

	withDecimals := workflow.Record{Amounts: map[string]uint64{
		workflow.KeyDecimalsA: uint64(p.DecimalsA),
		workflow.KeyDecimalsB: uint64(p.DecimalsB),
	}}
	return &Plan{
		Step: StepInit,
		Batches: []Batch{
			{
				Name:         "init-assets",
				Instructions: assets,
				Signers:      []solana.PrivateKey{mintA, mintB},
				Fields: workflow.Fields{
					Addresses: map[string]solana.PublicKey{
						workflow.KeyMintA:      mintA.PublicKey(),
						workflow.KeyMintB:      mintB.PublicKey(),
						workflow.KeyUserTokenA: atas[0],
						workflow.KeyUserTokenB: atas[1],
					},
					Amounts: withDecimals.Amounts,
				},
			},
			{
				Name:         StepInit,
				Instructions: []solana.Instruction{inst},
				Fields: workflow.Fields{
					Addresses: map[string]solana.PublicKey{
						workflow.KeyPool:   keys.Pool.Address,
						workflow.KeyVaultA: keys.VaultA,
						workflow.KeyVaultB: keys.VaultB,
						workflow.KeyLPMint: keys.LPMint,
						workflow.KeyUserLP: user.LP,
					},
					Amounts: map[string]uint64{workflow.KeyPoolBump: uint64(keys.Pool.Bump)},
				},
			},
		},
		Targets: poolTargets(withDecimals, keys, user),
		Settle:  lpSettle(user.LP),
	}, nil
}

// planInitSecond opens a pool between mint B and a fresh mint, the second leg of a multihop route.
func planInitSecond(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	mintB, err := workflow.Resolve(rec, workflow.KeyMintB)
	if err != nil {
		return nil, err
	}
	mintC := r.newKey()
	assets, atas, err := r.mintAssets(ctx, newMint{key: mintC, decimals: p.DecimalsB, supply: max(p.Supply, p.AmountB)})
	if err != nil {
		return nil, err
	}
	keys, err := gorb.DerivePoolKeys(r.builder.ProgramID, mintB, mintC.PublicKey())
	if err != nil {
		return nil, err
	}
	user, err := r.userAccounts(keys)
	if err != nil {
		return nil, err
	}
	inst, err := r.builder.Build(&gorb.InitPool{AmountA: p.AmountA, AmountB: p.AmountB}, gorb.AccountContext{Keys: keys, User: user})
	if err != nil {
		return nil, err
	}

	decB := decimals(rec, workflow.KeyDecimalsB)
	return &Plan{
		Step: StepInit,
		Batches: []Batch{
			{
				Name:         "init-second-assets",
				Instructions: assets,
				Signers:      []solana.PrivateKey{mintC},
				Fields: workflow.Fields{
					Addresses: map[string]solana.PublicKey{
						workflow.KeySecondMint: mintC.PublicKey(),
						workflow.KeyUserSecond: atas[0],
					},
					Amounts: map[string]uint64{workflow.KeyDecimalsSecond: uint64(p.DecimalsB)},
				},
			},
			{
				Name:         "init-second",
				Instructions: []solana.Instruction{inst},
				Fields: workflow.Fields{
					Addresses: map[string]solana.PublicKey{workflow.KeySecondPool: keys.Pool.Address},
				},
			},
		},
		Targets: []reconcile.Target{
			{Address: user.TokenA, Kind: reconcile.KindToken, Label: "user token b", Decimals: decB},
			{Address: user.TokenB, Kind: reconcile.KindToken, Label: "user second token", Decimals: int32(p.DecimalsB)},
			{Address: keys.VaultA, Kind: reconcile.KindToken, Label: "second vault a"},
			{Address: keys.VaultB, Kind: reconcile.KindToken, Label: "second vault b"},
		},
	}, nil
}

func planFund(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	if p.AmountA == 0 && p.AmountB == 0 {
		return nil, fmt.Errorf("%w: nothing to mint", ErrInvalidParams)
	}
	mintA, err := workflow.Resolve(rec, workflow.KeyMintA)
	if err != nil {
		return nil, err
	}
	mintB, err := workflow.Resolve(rec, workflow.KeyMintB)
	if err != nil {
		return nil, err
	}
	payer := r.payer()
	atas, instrs, err := sol.SelectOrCreateTokenAccounts(ctx, r.ledger, r.tokens, payer, payer, mintA, mintB)
	if err != nil {
		return nil, err
	}
	for i, leg := range []struct {
		mint   solana.PublicKey
		amount uint64
	}{{mintA, p.AmountA}, {mintB, p.AmountB}} {
		if leg.amount == 0 {
			continue
		}
		inst, err := r.tokens.MintTo(leg.mint, atas[i], payer, leg.amount)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, inst)
	}

	return &Plan{
		Step: StepFund,
		Batches: []Batch{{
			Name:         StepFund,
			Instructions: instrs,
			Fields: workflow.Fields{Addresses: map[string]solana.PublicKey{
				workflow.KeyUserTokenA: atas[0],
				workflow.KeyUserTokenB: atas[1],
			}},
		}},
		Targets: []reconcile.Target{
			{Address: atas[0], Kind: reconcile.KindToken, Label: "user token a", Decimals: decimals(rec, workflow.KeyDecimalsA)},
			{Address: atas[1], Kind: reconcile.KindToken, Label: "user token b", Decimals: decimals(rec, workflow.KeyDecimalsB)},
		},
	}, nil
}

func planAddLiquidity(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	if p.AmountA == 0 || p.AmountB == 0 {
		return nil, fmt.Errorf("%w: deposit amounts must be positive", ErrInvalidParams)
	}
	pool, err := r.fetchPool(ctx, rec, workflow.KeyPool)
	if err != nil {
		return nil, err
	}
	user, err := r.userAccounts(pool.Keys)
	if err != nil {
		return nil, err
	}
	if lp, err := pool.State.LiquidityFor(p.AmountA, p.AmountB); err == nil {
		r.log.Info("adding liquidity", zap.String("pool", pool.GetID()), zap.Uint64("expected_lp", lp))
	}
	inst, err := r.builder.Build(&gorb.AddLiquidity{AmountA: p.AmountA, AmountB: p.AmountB}, gorb.AccountContext{Keys: pool.Keys, User: user})
	if err != nil {
		return nil, err
	}
	return &Plan{
		Step:    StepAddLiquidity,
		Batches: []Batch{{Name: StepAddLiquidity, Instructions: []solana.Instruction{inst}}},
		Targets: poolTargets(rec, pool.Keys, user),
		Settle:  lpSettle(user.LP),
	}, nil
}

func planSwap(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	if p.AmountIn == 0 {
		return nil, fmt.Errorf("%w: amount in must be positive", ErrInvalidParams)
	}
	pool, err := r.fetchPool(ctx, rec, workflow.KeyPool)
	if err != nil {
		return nil, err
	}
	mintIn, mintOut := pool.State.TokenA, pool.State.TokenB
	if !p.AToB {
		mintIn, mintOut = mintOut, mintIn
	}

	rt := router.NewSimpleRouter(r.log, r.pools)
	if _, err := rt.QueryAllPools(ctx, mintIn, mintOut); err != nil {
		return nil, err
	}
	amountIn := math.NewIntFromUint64(p.AmountIn)
	best, quote, err := rt.GetBestPool(ctx, mintIn, amountIn)
	if err != nil {
		return nil, err
	}
	if best.GetID() != pool.GetID() {
		r.log.Info("routing swap through a better pool", zap.String("recorded", pool.GetID()), zap.String("best", best.GetID()))
	}
	minOut := router.MinAmountOut(quote, p.SlippageBps)
	r.log.Info("swapping", zap.String("pool", best.GetID()), zap.Stringer("quote", quote), zap.Stringer("min_out", minOut))

	instrs, err := best.BuildSwapInstructions(ctx, r.payer(), mintIn, amountIn, minOut)
	if err != nil {
		return nil, err
	}
	user, err := r.userAccounts(pool.Keys)
	if err != nil {
		return nil, err
	}
	out := user.TokenB
	if !p.AToB {
		out = user.TokenA
	}
	return &Plan{
		Step:    StepSwap,
		Batches: []Batch{{Name: StepSwap, Instructions: instrs}},
		Targets: poolTargets(rec, pool.Keys, user),
		Settle:  received(out),
	}, nil
}

func planSwapNative(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	if p.AmountIn == 0 {
		return nil, fmt.Errorf("%w: amount in must be positive", ErrInvalidParams)
	}
	pool, err := r.fetchPool(ctx, rec, workflow.KeyNativePool)
	if err != nil {
		return nil, err
	}
	if pool.Keys.Kind != gorb.PoolKindNative {
		return nil, fmt.Errorf("%w: pool %s is not a native pool", ErrInvalidParams, pool.GetID())
	}
	quote, err := pool.Quote(ctx, gorb.NATIVE_MINT, math.NewIntFromUint64(p.AmountIn))
	if err != nil {
		return nil, err
	}
	minOut := router.MinAmountOut(quote, p.SlippageBps)

	payer := r.payer()
	tokenMint := pool.Keys.TokenMint()
	atas, instrs, err := sol.SelectOrCreateTokenAccounts(ctx, r.ledger, r.tokens, payer, payer, tokenMint)
	if err != nil {
		return nil, err
	}
	user := gorb.UserAccounts{Owner: payer, TokenA: atas[0]}
	if pool.Keys.MintA.Equals(gorb.NATIVE_MINT) {
		user = gorb.UserAccounts{Owner: payer, TokenB: atas[0]}
	}
	inst, err := r.builder.Build(
		&gorb.SwapNativeAssetToToken{AmountIn: p.AmountIn, MinimumAmountOut: minOut.Uint64()},
		gorb.AccountContext{Keys: pool.Keys, User: user},
	)
	if err != nil {
		return nil, err
	}
	r.log.Info("swapping native asset", zap.String("pool", pool.GetID()), zap.Stringer("quote", quote), zap.Stringer("min_out", minOut))

	return &Plan{
		Step:    StepSwapNative,
		Batches: []Batch{{Name: StepSwapNative, Instructions: append(instrs, inst)}},
		Targets: []reconcile.Target{
			{Address: payer, Kind: reconcile.KindNative, Label: "wallet lamports", Decimals: 9},
			{Address: atas[0], Kind: reconcile.KindToken, Label: "user token"},
			{Address: pool.Keys.Pool.Address, Kind: reconcile.KindNative, Label: "pool lamports", Decimals: 9},
			{Address: pool.Keys.TokenVault(), Kind: reconcile.KindToken, Label: "token vault"},
		},
		Fields: workflow.Fields{Addresses: map[string]solana.PublicKey{workflow.KeyNativeToken: tokenMint}},
		Settle: received(atas[0]),
	}, nil
}

// planMultihop swaps mint A into the second mint through mint B.
func planMultihop(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	if p.AmountIn == 0 {
		return nil, fmt.Errorf("%w: amount in must be positive", ErrInvalidParams)
	}
	first, err := r.fetchPool(ctx, rec, workflow.KeyPool)
	if err != nil {
		return nil, err
	}
	second, err := r.fetchPool(ctx, rec, workflow.KeySecondPool)
	if err != nil {
		return nil, err
	}
	mintA, err := workflow.Resolve(rec, workflow.KeyMintA)
	if err != nil {
		return nil, err
	}
	mintB, err := workflow.Resolve(rec, workflow.KeyMintB)
	if err != nil {
		return nil, err
	}
	mintC, err := workflow.Resolve(rec, workflow.KeySecondMint)
	if err != nil {
		return nil, err
	}

	mid, err := first.Quote(ctx, mintA, math.NewIntFromUint64(p.AmountIn))
	if err != nil {
		return nil, err
	}
	quote, err := second.Quote(ctx, mintB, mid)
	if err != nil {
		return nil, err
	}
	minOut := router.MinAmountOut(quote, p.SlippageBps)

	var atas [3]solana.PublicKey
	for i, mint := range []solana.PublicKey{mintA, mintB, mintC} {
		if atas[i], err = gorb.DeriveAssociatedAccount(r.payer(), mint, r.tokens.ProgramID, r.tokens.AssociatedProgramID); err != nil {
			return nil, err
		}
	}
	inst, err := r.builder.Build(
		&gorb.MultihopSwap{AmountIn: p.AmountIn, MinimumAmountOut: minOut.Uint64()},
		gorb.AccountContext{
			User: gorb.UserAccounts{Owner: r.payer()},
			Hops: []gorb.Hop{
				{Keys: first.Keys, Input: atas[0], Output: atas[1]},
				{Keys: second.Keys, Input: atas[1], Output: atas[2]},
			},
		},
	)
	if err != nil {
		return nil, err
	}
	r.log.Info("multihop swap", zap.Stringer("quote", quote), zap.Stringer("min_out", minOut))

	return &Plan{
		Step:    StepMultihop,
		Batches: []Batch{{Name: StepMultihop, Instructions: []solana.Instruction{inst}}},
		Targets: []reconcile.Target{
			{Address: atas[0], Kind: reconcile.KindToken, Label: "user token a", Decimals: decimals(rec, workflow.KeyDecimalsA)},
			{Address: atas[1], Kind: reconcile.KindToken, Label: "user token b", Decimals: decimals(rec, workflow.KeyDecimalsB)},
			{Address: atas[2], Kind: reconcile.KindToken, Label: "user second token", Decimals: decimals(rec, workflow.KeyDecimalsSecond)},
		},
		Settle: received(atas[2]),
	}, nil
}

func planRemoveLiquidity(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	pool, err := r.fetchPool(ctx, rec, workflow.KeyPool)
	if err != nil {
		return nil, err
	}
	user, err := r.userAccounts(pool.Keys)
	if err != nil {
		return nil, err
	}
	lp := p.LPAmount
	if lp == 0 {
		accs, err := r.ledger.ReadAccounts(ctx, []solana.PublicKey{user.LP})
		if err != nil {
			return nil, err
		}
		if accs[0] != nil {
			if lp, err = sol.TokenAmount(accs[0].Data); err != nil {
				return nil, err
			}
		}
	}
	if lp == 0 {
		return nil, fmt.Errorf("%w: no lp tokens to burn", ErrInvalidParams)
	}
	a, b, err := pool.State.WithdrawalFor(lp)
	if err != nil {
		return nil, err
	}
	r.log.Info("removing liquidity", zap.Uint64("lp", lp), zap.Uint64("expected_a", a), zap.Uint64("expected_b", b))

	inst, err := r.builder.Build(&gorb.RemoveLiquidity{LPAmount: lp}, gorb.AccountContext{Keys: pool.Keys, User: user})
	if err != nil {
		return nil, err
	}
	return &Plan{
		Step:    StepRemoveLiquidity,
		Batches: []Batch{{Name: StepRemoveLiquidity, Instructions: []solana.Instruction{inst}}},
		Targets: poolTargets(rec, pool.Keys, user),
		Settle:  lpSettle(user.LP),
	}, nil
}

func planSetTreasury(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	pool, err := r.fetchPool(ctx, rec, workflow.KeyPool)
	if err != nil {
		return nil, err
	}
	treasury := p.Treasury
	if treasury.IsZero() {
		treasury = r.payer()
	}
	inst, err := r.builder.Build(&gorb.SetFeeTreasury{Treasury: treasury}, gorb.AccountContext{
		Keys:      pool.Keys,
		Treasury:  treasury,
		Authority: r.payer(),
	})
	if err != nil {
		return nil, err
	}
	return &Plan{
		Step: StepSetTreasury,
		Batches: []Batch{{
			Name:         StepSetTreasury,
			Instructions: []solana.Instruction{inst},
			Fields:       workflow.Fields{Addresses: map[string]solana.PublicKey{workflow.KeyTreasury: treasury}},
		}},
	}, nil
}

func planCollectFees(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	pool, err := r.fetchPool(ctx, rec, workflow.KeyPool)
	if err != nil {
		return nil, err
	}
	inst, err := r.builder.Build(&gorb.CollectFees{}, gorb.AccountContext{
		Keys:      pool.Keys,
		Treasury:  r.treasury(rec, p),
		Authority: r.payer(),
	})
	if err != nil {
		return nil, err
	}
	user, err := r.userAccounts(pool.Keys)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Step:    StepCollectFees,
		Batches: []Batch{{Name: StepCollectFees, Instructions: []solana.Instruction{inst}}},
		Targets: poolTargets(rec, pool.Keys, user)[3:],
	}, nil
}

// planWithdrawFees withdraws the given amounts, or everything the pool has collected.
func planWithdrawFees(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	pool, err := r.fetchPool(ctx, rec, workflow.KeyPool)
	if err != nil {
		return nil, err
	}
	a, b := p.AmountA, p.AmountB
	if a == 0 && b == 0 {
		a, b = pool.State.FeeCollectedA, pool.State.FeeCollectedB
	}
	if a == 0 && b == 0 {
		return nil, fmt.Errorf("%w: pool %s has no collected fees", ErrInvalidParams, pool.GetID())
	}
	treasury := r.treasury(rec, p)
	inst, err := r.builder.Build(&gorb.WithdrawFees{AmountA: a, AmountB: b}, gorb.AccountContext{
		Keys:      pool.Keys,
		Treasury:  treasury,
		Authority: r.payer(),
	})
	if err != nil {
		return nil, err
	}
	return &Plan{
		Step: StepWithdrawFees,
		Batches: []Batch{{
			Name:         StepWithdrawFees,
			Instructions: []solana.Instruction{inst},
			Fields: workflow.Fields{Amounts: map[string]uint64{
				workflow.KeyFeesWithdrawnA: a,
				workflow.KeyFeesWithdrawnB: b,
			}},
		}},
		Targets: []reconcile.Target{
			{Address: pool.Keys.VaultA, Kind: reconcile.KindToken, Label: "vault a", Decimals: decimals(rec, workflow.KeyDecimalsA)},
			{Address: pool.Keys.VaultB, Kind: reconcile.KindToken, Label: "vault b", Decimals: decimals(rec, workflow.KeyDecimalsB)},
		},
	}, nil
}

// planFindPools lists the pools holding a token. When the builder's discriminator table
// carries the on-chain query it is submitted too, so the program logs its own answer.
func planFindPools(ctx context.Context, r *Runner, rec workflow.Record, p Params) (*Plan, error) {
	token := p.Token
	if token.IsZero() {
		var err error
		if token, err = workflow.Resolve(rec, workflow.KeyMintA); err != nil {
			return nil, err
		}
	}
	pools, err := r.pools.FetchPoolsByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	fields := workflow.Fields{
		Addresses: map[string]solana.PublicKey{},
		Amounts:   map[string]uint64{workflow.KeyPoolsFound: uint64(len(pools))},
	}
	for _, pool := range pools {
		r.log.Info("pool found", zap.String("pool", pool.GetID()), zap.Stringer("kind", pool.Keys.Kind),
			zap.Uint64("reserve_a", pool.State.ReserveA), zap.Uint64("reserve_b", pool.State.ReserveB))
		if pool.Keys.Kind == gorb.PoolKindNative {
			if _, ok := fields.Addresses[workflow.KeyNativePool]; !ok {
				fields.Addresses[workflow.KeyNativePool] = pool.Keys.Pool.Address
				fields.Addresses[workflow.KeyNativeToken] = pool.Keys.TokenMint()
			}
		}
	}

	plan := &Plan{Step: StepFindPools, Fields: fields}
	if _, ok := r.builder.Codec().Discriminator(gorb.OpFindPoolsByToken); ok {
		inst, err := r.builder.Build(&gorb.FindPoolsByToken{Token: token}, gorb.AccountContext{
			User: gorb.UserAccounts{Owner: r.payer()},
		})
		if err != nil {
			return nil, err
		}
		plan.Batches = []Batch{{Name: StepFindPools, Instructions: []solana.Instruction{inst}}}
	}
	return plan, nil
}
