package gorb

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInitPoolFillsFromKeys(t *testing.T) {
	builder := NewDefaultBuilder()
	c := testContext(t, testMintA, testMintB)

	payload := &InitPool{AmountA: 100, AmountB: 200}
	inst, err := builder.Build(payload, c)
	require.NoError(t, err)

	// caller's payload is left as passed
	assert.Equal(t, &InitPool{AmountA: 100, AmountB: 200}, payload)

	data, err := inst.Data()
	require.NoError(t, err)
	decoded, err := builder.Codec().Decode(data)
	require.NoError(t, err)
	assert.Equal(t, &InitPool{
		MintA:   testMintA,
		MintB:   testMintB,
		AmountA: 100,
		AmountB: 200,
		Bump:    c.Keys.Pool.Bump,
	}, decoded)
	assert.Len(t, inst.Accounts(), 12)
	assert.Equal(t, GORB_AMM_PROGRAM_ID, inst.ProgramID())
}

func TestBuildInitPoolChecksExplicitFields(t *testing.T) {
	builder := NewDefaultBuilder()
	c := testContext(t, testMintA, testMintB)

	_, err := builder.Build(&InitPool{MintA: testMintA, MintB: testMintB, Bump: c.Keys.Pool.Bump}, c)
	require.NoError(t, err)

	_, err = builder.Build(&InitPool{MintA: testMintA, MintB: testMintB, Bump: c.Keys.Pool.Bump - 1}, c)
	assert.ErrorContains(t, err, "bump")

	_, err = builder.Build(&InitPool{MintA: testMintB, MintB: testMintA, Bump: c.Keys.Pool.Bump}, c)
	assert.ErrorContains(t, err, "do not match")
}

func TestBuildFeePayloadsAreCopied(t *testing.T) {
	builder := NewDefaultBuilder()
	c := testContext(t, testMintA, testMintB)

	withdraw := &WithdrawFees{AmountA: 3}
	inst, err := builder.Build(withdraw, c)
	require.NoError(t, err)
	assert.True(t, withdraw.Pool.IsZero())
	assert.Equal(t, c.Keys.Pool.Address, inst.Payload.(*WithdrawFees).Pool)
	assert.Len(t, inst.Accounts(), 7)

	set := &SetFeeTreasury{}
	inst, err = builder.Build(set, c)
	require.NoError(t, err)
	assert.Equal(t, &SetFeeTreasury{}, set)
	assert.Equal(t, c.Treasury, inst.Payload.(*SetFeeTreasury).Treasury)

	collect := &CollectFees{Pool: solana.PublicKey{}}
	inst, err = builder.Build(collect, c)
	require.NoError(t, err)
	assert.True(t, collect.Pool.IsZero())
	assert.Equal(t, c.Keys.Pool.Address, inst.Payload.(*CollectFees).Pool)
}
