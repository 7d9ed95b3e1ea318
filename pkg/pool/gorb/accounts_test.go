package gorb

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flags struct{ w, s bool }

func metaFlags(metas []*solana.AccountMeta) []flags {
	out := make([]flags, len(metas))
	for i, m := range metas {
		out[i] = flags{m.IsWritable, m.IsSigner}
	}
	return out
}

var (
	ro  = flags{false, false}
	rw  = flags{true, false}
	sig = flags{true, true}
)

func testContext(t *testing.T, mintA, mintB solana.PublicKey) AccountContext {
	t.Helper()
	keys, err := DerivePoolKeys(GORB_AMM_PROGRAM_ID, mintA, mintB)
	require.NoError(t, err)
	user, err := DeriveUserAccounts(keys, testTreasury, GORB_TOKEN_PROGRAM_ID, GORB_ASSOCIATED_TOKEN_PROGRAM_ID)
	require.NoError(t, err)
	return AccountContext{
		Keys:      keys,
		User:      user,
		Programs:  DefaultPrograms,
		Treasury:  testMintB,
		Authority: testTreasury,
	}
}

func TestBuildAccountsFlags(t *testing.T) {
	c := testContext(t, testMintA, testMintB)
	c.AmountA, c.AmountB = 1, 1

	tests := []struct {
		op   Operation
		want []flags
	}{
		{OpInitPool, []flags{rw, ro, ro, rw, rw, rw, rw, rw, rw, ro, ro, sig}},
		{OpAddLiquidity, []flags{rw, ro, ro, rw, rw, rw, rw, rw, rw, sig, ro}},
		{OpRemoveLiquidity, []flags{rw, ro, ro, rw, rw, rw, rw, rw, rw, sig, ro}},
		{OpSwap, []flags{rw, ro, ro, rw, rw, rw, rw, sig, ro}},
		{OpCollectFees, []flags{rw, ro, sig}},
		{OpSetFeeTreasury, []flags{rw, ro, sig}},
		{OpWithdrawFees, []flags{rw, rw, sig, ro, ro, rw, ro, rw, ro}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			metas, err := BuildAccounts(tt.op, c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, metaFlags(metas))
		})
	}
}

func TestInitPoolAccountsOrder(t *testing.T) {
	c := testContext(t, testMintA, testMintB)
	metas, err := BuildAccounts(OpInitPool, c)
	require.NoError(t, err)
	require.Len(t, metas, 12)

	assert.Equal(t, c.Keys.Pool.Address, metas[0].PublicKey)
	assert.Equal(t, c.Keys.LPMint, metas[5].PublicKey)
	assert.Equal(t, c.User.LP, metas[8].PublicKey)
	assert.Equal(t, GORB_TOKEN_PROGRAM_ID, metas[9].PublicKey)
	assert.Equal(t, solana.SystemProgramID, metas[10].PublicKey)
	assert.Equal(t, c.User.Owner, metas[11].PublicKey)
	assert.True(t, metas[11].IsSigner)
	assert.True(t, metas[11].IsWritable)
}

func TestRemoveLiquidityPutsLPFirst(t *testing.T) {
	c := testContext(t, testMintA, testMintB)
	add, err := BuildAccounts(OpAddLiquidity, c)
	require.NoError(t, err)
	remove, err := BuildAccounts(OpRemoveLiquidity, c)
	require.NoError(t, err)

	assert.Equal(t, c.User.LP, add[8].PublicKey)
	assert.Equal(t, c.User.LP, remove[6].PublicKey)
	assert.Equal(t, c.User.TokenA, remove[7].PublicKey)
}

func TestSwapAccountsFollowDirection(t *testing.T) {
	c := testContext(t, testMintA, testMintB)

	c.AToB = true
	metas, err := BuildAccounts(OpSwap, c)
	require.NoError(t, err)
	assert.Equal(t, c.User.TokenA, metas[5].PublicKey)
	assert.Equal(t, c.User.TokenB, metas[6].PublicKey)

	c.AToB = false
	metas, err = BuildAccounts(OpSwap, c)
	require.NoError(t, err)
	assert.Equal(t, c.User.TokenB, metas[5].PublicKey)
	assert.Equal(t, c.User.TokenA, metas[6].PublicKey)
}

func TestWithdrawFeesOmitsZeroLegs(t *testing.T) {
	c := testContext(t, testMintA, testMintB)

	metas, err := BuildAccounts(OpWithdrawFees, c)
	require.NoError(t, err)
	assert.Len(t, metas, 5)

	c.AmountB = 10
	metas, err = BuildAccounts(OpWithdrawFees, c)
	require.NoError(t, err)
	require.Len(t, metas, 7)
	assert.Equal(t, c.Keys.VaultB, metas[5].PublicKey)
	assert.Equal(t, c.Keys.VaultB, metas[6].PublicKey)
}

func TestWithdrawFeesNativePool(t *testing.T) {
	c := testContext(t, NATIVE_MINT, testMintB)

	// native leg only: paid from the pool account
	c.AmountA = 10
	metas, err := BuildAccounts(OpWithdrawFees, c)
	require.NoError(t, err)
	assert.Len(t, metas, 5)

	c.AmountB = 10
	metas, err = BuildAccounts(OpWithdrawFees, c)
	require.NoError(t, err)
	require.Len(t, metas, 7)
	assert.Equal(t, c.Keys.TokenVault(), metas[5].PublicKey)
}

func TestWithdrawFeesNativePoolTokenFirstKeys(t *testing.T) {
	// AmountB is the token fee even when the keys list the token mint first
	c := testContext(t, testMintB, NATIVE_MINT)
	c.AmountA, c.AmountB = 0, 7
	metas, err := BuildAccounts(OpWithdrawFees, c)
	require.NoError(t, err)
	require.Len(t, metas, 7)
	assert.Equal(t, c.Keys.TokenVault(), metas[5].PublicKey)
	assert.Equal(t, c.Keys.TokenVault(), metas[6].PublicKey)

	c.AmountA, c.AmountB = 7, 0
	metas, err = BuildAccounts(OpWithdrawFees, c)
	require.NoError(t, err)
	assert.Len(t, metas, 5)
}

func TestMultihopAccounts(t *testing.T) {
	first := testContext(t, testMintA, testMintB)
	second := testContext(t, testMintB, testTreasury)
	c := first
	c.Hops = []Hop{
		{Keys: first.Keys, Input: first.User.TokenA, Output: first.User.TokenB},
		{Keys: second.Keys, Input: second.User.TokenA, Output: second.User.TokenB},
	}

	metas, err := BuildAccounts(OpMultihopSwap, c)
	require.NoError(t, err)
	require.Len(t, metas, 3+7*2)
	assert.Equal(t, sig, metaFlags(metas)[0])
	assert.Equal(t, first.User.TokenA, metas[2].PublicKey)
	assert.Equal(t, second.Keys.Pool.Address, metas[10].PublicKey)
}

func TestMultihopRejectsInvalidRoutes(t *testing.T) {
	first := testContext(t, testMintA, testMintB)
	second := testContext(t, testMintB, testTreasury)
	native := testContext(t, testMintB, NATIVE_MINT)
	hop := func(c AccountContext) Hop {
		return Hop{Keys: c.Keys, Input: c.User.TokenA, Output: c.User.TokenB}
	}

	tests := []struct {
		name string
		hops []Hop
	}{
		{"one hop", []Hop{hop(first)}},
		{"three hops", []Hop{hop(first), hop(second), hop(first)}},
		{"native pool", []Hop{hop(first), hop(native)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := first
			c.Hops = tt.hops
			_, err := BuildAccounts(OpMultihopSwap, c)
			assert.ErrorIs(t, err, ErrInvalidRoute)
		})
	}
}

func TestSwapNativeAccounts(t *testing.T) {
	c := testContext(t, NATIVE_MINT, testMintB)
	metas, err := BuildAccounts(OpSwapNativeAssetToToken, c)
	require.NoError(t, err)
	require.Len(t, metas, 7)
	assert.Equal(t, []flags{rw, ro, rw, rw, sig, ro, ro}, metaFlags(metas))
	assert.Equal(t, testMintB, metas[1].PublicKey)
	assert.Equal(t, c.Keys.VaultB, metas[2].PublicKey)
	assert.Equal(t, c.User.TokenB, metas[3].PublicKey)

	_, err = BuildAccounts(OpSwapNativeAssetToToken, testContext(t, testMintA, testMintB))
	assert.Error(t, err)
}

func TestFindPoolsAccounts(t *testing.T) {
	c := testContext(t, testMintA, testMintB)
	c.Token = testMintA
	metas, err := BuildAccounts(OpFindPoolsByToken, c)
	require.NoError(t, err)
	assert.Equal(t, []flags{ro, sig}, metaFlags(metas))
}

func TestBuildAccountsMissingKey(t *testing.T) {
	c := testContext(t, testMintA, testMintB)
	c.User.LP = solana.PublicKey{}
	_, err := BuildAccounts(OpAddLiquidity, c)
	assert.ErrorIs(t, err, ErrMissingAccount)
}
