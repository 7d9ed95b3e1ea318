package gorb

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePoolKeysDeterministic(t *testing.T) {
	first, err := DerivePoolKeys(GORB_AMM_PROGRAM_ID, testMintA, testMintB)
	require.NoError(t, err)
	second, err := DerivePoolKeys(GORB_AMM_PROGRAM_ID, testMintA, testMintB)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, PoolKindStandard, first.Kind)
	assert.NotEqual(t, first.VaultA, first.VaultB)
	assert.NotEqual(t, first.Pool.Address, first.LPMint)

	expected, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte("pool"), testMintA.Bytes(), testMintB.Bytes()}, GORB_AMM_PROGRAM_ID)
	require.NoError(t, err)
	assert.Equal(t, expected, first.Pool.Address)
	assert.Equal(t, bump, first.Pool.Bump)

	vaultA, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("vault"), expected.Bytes(), testMintA.Bytes()}, GORB_AMM_PROGRAM_ID)
	require.NoError(t, err)
	assert.Equal(t, vaultA, first.VaultA)
}

func TestDerivePoolKeysOrderMatters(t *testing.T) {
	ab, err := DerivePoolKeys(GORB_AMM_PROGRAM_ID, testMintA, testMintB)
	require.NoError(t, err)
	ba, err := DerivePoolKeys(GORB_AMM_PROGRAM_ID, testMintB, testMintA)
	require.NoError(t, err)
	assert.NotEqual(t, ab.Pool.Address, ba.Pool.Address)
}

func TestDerivePoolKeysProgramScoped(t *testing.T) {
	other := solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	a, err := DerivePoolKeys(GORB_AMM_PROGRAM_ID, testMintA, testMintB)
	require.NoError(t, err)
	b, err := DerivePoolKeys(other, testMintA, testMintB)
	require.NoError(t, err)
	assert.NotEqual(t, a.Pool.Address, b.Pool.Address)
}

func TestDerivePoolKeysRejectsSameMint(t *testing.T) {
	_, err := DerivePoolKeys(GORB_AMM_PROGRAM_ID, testMintA, testMintA)
	assert.Error(t, err)
}

func TestDeriveNativePoolKeys(t *testing.T) {
	keys, err := DerivePoolKeys(GORB_AMM_PROGRAM_ID, NATIVE_MINT, testMintB)
	require.NoError(t, err)
	assert.Equal(t, PoolKindNative, keys.Kind)
	assert.Equal(t, testMintB, keys.TokenMint())
	assert.Equal(t, keys.Pool.Address, keys.VaultA)
	assert.Equal(t, keys.VaultB, keys.TokenVault())

	expected, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("native_sol_pool"), testMintB.Bytes()}, GORB_AMM_PROGRAM_ID)
	require.NoError(t, err)
	assert.Equal(t, expected, keys.Pool.Address)

	// native side in B position
	flipped, err := DerivePoolKeys(GORB_AMM_PROGRAM_ID, testMintB, NATIVE_MINT)
	require.NoError(t, err)
	assert.Equal(t, keys.Pool.Address, flipped.Pool.Address)
	assert.Equal(t, flipped.Pool.Address, flipped.VaultB)
	assert.Equal(t, flipped.VaultA, flipped.TokenVault())
}

func TestDeriveAssociatedAccount(t *testing.T) {
	owner := testTreasury
	got, err := DeriveAssociatedAccount(owner, testMintA, GORB_TOKEN_PROGRAM_ID, GORB_ASSOCIATED_TOKEN_PROGRAM_ID)
	require.NoError(t, err)

	expected, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), GORB_TOKEN_PROGRAM_ID.Bytes(), testMintA.Bytes()}, GORB_ASSOCIATED_TOKEN_PROGRAM_ID)
	require.NoError(t, err)
	assert.Equal(t, expected, got)

	// with the standard programs it matches solana-go's own helper
	std, err := DeriveAssociatedAccount(owner, testMintA, solana.TokenProgramID, solana.SPLAssociatedTokenAccountProgramID)
	require.NoError(t, err)
	ref, _, err := solana.FindAssociatedTokenAddress(owner, testMintA)
	require.NoError(t, err)
	assert.Equal(t, ref, std)
}
