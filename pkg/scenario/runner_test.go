package scenario

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solana-ZH/gorbswap/pkg/pool/gorb"
	"github.com/Solana-ZH/gorbswap/pkg/request"
	"github.com/Solana-ZH/gorbswap/pkg/sol"
	"github.com/Solana-ZH/gorbswap/pkg/workflow"
)

type fakeLedger struct {
	accounts  map[solana.PublicKey]*sol.Account
	submitted []*request.Signed
	onSubmit  func(n int)
	submitErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{accounts: map[solana.PublicKey]*sol.Account{}}
}

func (f *fakeLedger) ReadAccounts(_ context.Context, keys []solana.PublicKey) ([]*sol.Account, error) {
	out := make([]*sol.Account, len(keys))
	for i, k := range keys {
		out[i] = f.accounts[k]
	}
	return out, nil
}

func (f *fakeLedger) ProgramAccounts(_ context.Context, _ solana.PublicKey, filters []rpc.RPCFilter) ([]sol.KeyedAccount, error) {
	var out []sol.KeyedAccount
	for addr, acc := range f.accounts {
		ok := true
		for _, flt := range filters {
			if flt.DataSize != 0 && uint64(len(acc.Data)) != flt.DataSize {
				ok = false
			}
			if m := flt.Memcmp; m != nil {
				end := int(m.Offset) + len(m.Bytes)
				if end > len(acc.Data) || string(acc.Data[m.Offset:end]) != string(m.Bytes) {
					ok = false
				}
			}
		}
		if ok {
			out = append(out, sol.KeyedAccount{Address: addr, Account: *acc})
		}
	}
	return out, nil
}

func (f *fakeLedger) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{1, 2, 3}, nil
}

func (f *fakeLedger) MinimumBalanceForRentExemption(_ context.Context, size uint64) (uint64, error) {
	return size * 6_960, nil
}

func (f *fakeLedger) Submit(_ context.Context, signed *request.Signed) (solana.Signature, error) {
	if f.submitErr != nil {
		return solana.Signature{}, &sol.SubmissionError{Signature: signed.Signature(), Err: f.submitErr}
	}
	f.submitted = append(f.submitted, signed)
	if f.onSubmit != nil {
		f.onSubmit(len(f.submitted))
	}
	return signed.Signature(), nil
}

func (f *fakeLedger) setTokenBalance(addr solana.PublicKey, amount uint64) {
	data := make([]byte, sol.TokenAccountSize)
	binary.LittleEndian.PutUint64(data[64:], amount)
	f.accounts[addr] = &sol.Account{Lamports: 2_039_280, Data: data}
}

func (f *fakeLedger) putPool(t *testing.T, state gorb.PoolState) gorb.PoolKeys {
	t.Helper()
	keys, err := gorb.DerivePoolKeys(gorb.GORB_AMM_PROGRAM_ID, state.TokenA, state.TokenB)
	require.NoError(t, err)
	state.Bump = keys.Pool.Bump
	data, err := borsh.Serialize(state)
	require.NoError(t, err)
	f.accounts[keys.Pool.Address] = &sol.Account{Owner: gorb.GORB_AMM_PROGRAM_ID, Data: data}
	return keys
}

// instructionData returns the data of the i-th compiled instruction of the n-th submission.
func (f *fakeLedger) instructionData(t *testing.T, n, i int) []byte {
	t.Helper()
	require.Greater(t, len(f.submitted), n)
	msg := f.submitted[n].Transaction.Message
	require.Greater(t, len(msg.Instructions), i)
	return msg.Instructions[i].Data
}

type memStore struct {
	rec   workflow.Record
	saves int
}

func (m *memStore) Load(context.Context) (workflow.Record, error) {
	if m.rec.Addresses == nil {
		return workflow.Record{Addresses: map[string]solana.PublicKey{}, Amounts: map[string]uint64{}}, nil
	}
	return m.rec, nil
}

func (m *memStore) Save(_ context.Context, rec workflow.Record) error {
	m.rec = rec
	m.saves++
	return nil
}

func newTestRunner(ledger *fakeLedger, store *memStore, builder *gorb.Builder) (*Runner, solana.PrivateKey) {
	wallet := solana.NewWallet().PrivateKey
	return NewRunner(ledger, wallet, builder, store, nil), wallet
}

// seededPool records a funded pool between two fresh mints owned by the runner's wallet.
func seededPool(t *testing.T, ledger *fakeLedger, store *memStore, wallet solana.PublicKey, state gorb.PoolState) (gorb.PoolKeys, gorb.UserAccounts) {
	t.Helper()
	state.TokenA = solana.NewWallet().PublicKey()
	state.TokenB = solana.NewWallet().PublicKey()
	keys := ledger.putPool(t, state)
	user, err := gorb.DeriveUserAccounts(keys, wallet, gorb.GORB_TOKEN_PROGRAM_ID, gorb.GORB_ASSOCIATED_TOKEN_PROGRAM_ID)
	require.NoError(t, err)
	ledger.setTokenBalance(user.TokenA, 50_000)
	ledger.setTokenBalance(user.TokenB, 50_000)
	store.rec = workflow.Extend(workflow.Record{}, workflow.StepResult{Name: StepInit}, workflow.Fields{
		Addresses: map[string]solana.PublicKey{
			workflow.KeyMintA: state.TokenA,
			workflow.KeyMintB: state.TokenB,
			workflow.KeyPool:  keys.Pool.Address,
		},
		Amounts: map[string]uint64{workflow.KeyDecimalsA: 6, workflow.KeyDecimalsB: 6},
	})
	return keys, user
}

func TestSwapBeforeInitFailsWithMissingKey(t *testing.T) {
	ledger := newFakeLedger()
	runner, _ := newTestRunner(ledger, &memStore{}, gorb.NewDefaultBuilder())

	_, _, err := runner.Run(context.Background(), StepSwap, Params{AmountIn: 1_000, AToB: true})
	require.ErrorIs(t, err, workflow.ErrMissingKey)
	assert.Contains(t, err.Error(), workflow.KeyPool)
	assert.Empty(t, ledger.submitted)
}

func TestUnknownStep(t *testing.T) {
	runner, _ := newTestRunner(newFakeLedger(), &memStore{}, gorb.NewDefaultBuilder())
	_, _, err := runner.Run(context.Background(), "bridge", Params{})
	assert.ErrorIs(t, err, ErrUnknownStep)
}

func TestInitSubmitsAssetsThenPool(t *testing.T) {
	ledger := newFakeLedger()
	store := &memStore{}
	runner, wallet := newTestRunner(ledger, store, gorb.NewDefaultBuilder())

	mintA, mintB := solana.NewWallet().PrivateKey, solana.NewWallet().PrivateKey
	queue := []solana.PrivateKey{mintA, mintB}
	runner.newKey = func() solana.PrivateKey {
		k := queue[0]
		queue = queue[1:]
		return k
	}
	keys, err := gorb.DerivePoolKeys(gorb.GORB_AMM_PROGRAM_ID, mintA.PublicKey(), mintB.PublicKey())
	require.NoError(t, err)
	user, err := gorb.DeriveUserAccounts(keys, wallet.PublicKey(), gorb.GORB_TOKEN_PROGRAM_ID, gorb.GORB_ASSOCIATED_TOKEN_PROGRAM_ID)
	require.NoError(t, err)
	ledger.onSubmit = func(n int) {
		if n == 2 {
			ledger.setTokenBalance(user.LP, gorb.InitialLiquidity(10_000_000_000, 30_000_000_000))
		}
	}

	rec, lines, err := runner.Run(context.Background(), StepInit, Params{
		AmountA: 10_000_000_000, AmountB: 30_000_000_000, DecimalsA: 9, DecimalsB: 9,
	})
	require.NoError(t, err)
	require.Len(t, ledger.submitted, 2)

	assets := ledger.submitted[0]
	assert.Len(t, assets.Transaction.Signatures, 3)
	require.NoError(t, assets.Transaction.VerifySignatures())
	assert.Equal(t, []byte{0}, ledger.instructionData(t, 1, 0)[:1])

	assert.Equal(t, keys.Pool.Address, rec.Addresses[workflow.KeyPool])
	assert.Equal(t, mintA.PublicKey(), rec.Addresses[workflow.KeyMintA])
	assert.Equal(t, user.LP, rec.Addresses[workflow.KeyUserLP])
	assert.Equal(t, uint64(17_320_508_075), rec.Amounts[workflow.KeyLPBalance])
	assert.Equal(t, uint64(keys.Pool.Bump), rec.Amounts[workflow.KeyPoolBump])
	require.Len(t, rec.Steps, 2)
	assert.Equal(t, "init-assets", rec.Steps[0].Name)
	assert.Equal(t, StepInit, rec.Steps[1].Name)
	assert.Equal(t, ledger.submitted[1].Signature(), rec.Steps[1].Signature)
	assert.Equal(t, rec, store.rec)
	assert.NotEmpty(t, lines)
}

func TestSwapRecordsOutput(t *testing.T) {
	ledger := newFakeLedger()
	store := &memStore{}
	runner, wallet := newTestRunner(ledger, store, gorb.NewDefaultBuilder())
	_, user := seededPool(t, ledger, store, wallet.PublicKey(), gorb.PoolState{
		ReserveA: 1_000_000, ReserveB: 1_000_000, TotalLPSupply: 1_000_000,
	})
	ledger.onSubmit = func(int) {
		ledger.setTokenBalance(user.TokenA, 49_000)
		ledger.setTokenBalance(user.TokenB, 50_996)
	}

	rec, lines, err := runner.Run(context.Background(), StepSwap, Params{AmountIn: 1_000, AToB: true, SlippageBps: 50})
	require.NoError(t, err)
	require.Len(t, ledger.submitted, 1)

	data := ledger.instructionData(t, 0, 0)
	require.Len(t, data, 10)
	assert.Equal(t, byte(3), data[0])
	assert.Equal(t, uint64(1_000), binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, byte(1), data[9])

	assert.Equal(t, uint64(996), rec.Amounts[workflow.KeyLastSwapOut])
	last, ok := workflow.LastStep(rec, StepSwap)
	require.True(t, ok)
	assert.False(t, last.Signature.IsZero())
	assert.Len(t, lines, 5)
}

func TestSubmissionFailureKeepsRecord(t *testing.T) {
	ledger := newFakeLedger()
	store := &memStore{}
	runner, wallet := newTestRunner(ledger, store, gorb.NewDefaultBuilder())
	seededPool(t, ledger, store, wallet.PublicKey(), gorb.PoolState{ReserveA: 10, ReserveB: 10, TotalLPSupply: 10})
	cause := errors.New("blockhash not found")
	ledger.submitErr = cause

	_, _, err := runner.Run(context.Background(), StepAddLiquidity, Params{AmountA: 1, AmountB: 1})
	require.ErrorIs(t, err, cause)
	var subErr *sol.SubmissionError
	assert.ErrorAs(t, err, &subErr)
	assert.Zero(t, store.saves)
	assert.Len(t, store.rec.Steps, 1)
}

func TestRemoveLiquidityBurnsWholeBalance(t *testing.T) {
	ledger := newFakeLedger()
	store := &memStore{}
	runner, wallet := newTestRunner(ledger, store, gorb.NewDefaultBuilder())
	_, user := seededPool(t, ledger, store, wallet.PublicKey(), gorb.PoolState{
		ReserveA: 1_000, ReserveB: 4_000, TotalLPSupply: 2_000,
	})
	ledger.setTokenBalance(user.LP, 500)
	ledger.onSubmit = func(int) { ledger.setTokenBalance(user.LP, 0) }

	rec, _, err := runner.Run(context.Background(), StepRemoveLiquidity, Params{})
	require.NoError(t, err)
	data := ledger.instructionData(t, 0, 0)
	assert.Equal(t, byte(2), data[0])
	assert.Equal(t, uint64(500), binary.LittleEndian.Uint64(data[1:]))
	assert.Zero(t, rec.Amounts[workflow.KeyLPBalance])
}

func TestWithdrawFeesDefaultsToCollected(t *testing.T) {
	ledger := newFakeLedger()
	store := &memStore{}
	runner, wallet := newTestRunner(ledger, store, gorb.NewDefaultBuilder())
	seededPool(t, ledger, store, wallet.PublicKey(), gorb.PoolState{
		ReserveA: 1_000, ReserveB: 1_000, TotalLPSupply: 1_000, FeeCollectedA: 30,
	})

	plan, err := runner.Plan(context.Background(), StepWithdrawFees, store.rec, Params{})
	require.NoError(t, err)
	require.Len(t, plan.Batches, 1)
	// pool, treasury, authority, token program, system program, one vault leg
	assert.Len(t, plan.Batches[0].Instructions[0].Accounts(), 7)

	rec, _, err := runner.Execute(context.Background(), store.rec, plan)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), rec.Amounts[workflow.KeyFeesWithdrawnA])
	assert.Zero(t, rec.Amounts[workflow.KeyFeesWithdrawnB])
}

func TestWithdrawFeesWithNothingCollected(t *testing.T) {
	ledger := newFakeLedger()
	store := &memStore{}
	runner, wallet := newTestRunner(ledger, store, gorb.NewDefaultBuilder())
	seededPool(t, ledger, store, wallet.PublicKey(), gorb.PoolState{ReserveA: 1, ReserveB: 1, TotalLPSupply: 1})

	_, err := runner.Plan(context.Background(), StepWithdrawFees, store.rec, Params{})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestSetTreasuryRecordsTreasury(t *testing.T) {
	ledger := newFakeLedger()
	store := &memStore{}
	runner, wallet := newTestRunner(ledger, store, gorb.NewDefaultBuilder())
	seededPool(t, ledger, store, wallet.PublicKey(), gorb.PoolState{ReserveA: 1, ReserveB: 1, TotalLPSupply: 1})
	treasury := solana.NewWallet().PublicKey()

	rec, _, err := runner.Run(context.Background(), StepSetTreasury, Params{Treasury: treasury})
	require.NoError(t, err)
	assert.Equal(t, treasury, rec.Addresses[workflow.KeyTreasury])
	assert.Equal(t, byte(8), ledger.instructionData(t, 0, 0)[0])
}

func TestFindPoolsIsReadOnlyWithWriteTable(t *testing.T) {
	ledger := newFakeLedger()
	store := &memStore{}
	runner, wallet := newTestRunner(ledger, store, gorb.NewDefaultBuilder())
	keys, _ := seededPool(t, ledger, store, wallet.PublicKey(), gorb.PoolState{ReserveA: 1, ReserveB: 1, TotalLPSupply: 1})

	rec, _, err := runner.Run(context.Background(), StepFindPools, Params{Token: keys.MintB})
	require.NoError(t, err)
	assert.Empty(t, ledger.submitted)
	assert.Equal(t, uint64(1), rec.Amounts[workflow.KeyPoolsFound])
	last, ok := workflow.LastStep(rec, StepFindPools)
	require.True(t, ok)
	assert.True(t, last.Signature.IsZero())
}

func TestFindPoolsSubmitsQueryWithQueryTable(t *testing.T) {
	builder, err := gorb.NewBuilder(gorb.GORB_AMM_PROGRAM_ID, gorb.DefaultPrograms, gorb.QueryDiscriminators)
	require.NoError(t, err)
	ledger := newFakeLedger()
	store := &memStore{}
	runner, wallet := newTestRunner(ledger, store, builder)
	seededPool(t, ledger, store, wallet.PublicKey(), gorb.PoolState{ReserveA: 1, ReserveB: 1, TotalLPSupply: 1})

	_, _, err = runner.Run(context.Background(), StepFindPools, Params{})
	require.NoError(t, err)
	require.Len(t, ledger.submitted, 1)
	data := ledger.instructionData(t, 0, 0)
	assert.Equal(t, byte(8), data[0])
	assert.Len(t, data, 33)
}

func TestComputeBudgetOptionsPrefixRequests(t *testing.T) {
	ledger := newFakeLedger()
	store := &memStore{}
	wallet := solana.NewWallet().PrivateKey
	runner := NewRunner(ledger, wallet, gorb.NewDefaultBuilder(), store, nil,
		request.WithComputeUnitPrice(1_000), request.WithComputeUnitLimit(200_000))
	seededPool(t, ledger, store, wallet.PublicKey(), gorb.PoolState{ReserveA: 100, ReserveB: 100, TotalLPSupply: 100})

	_, _, err := runner.Run(context.Background(), StepCollectFees, Params{})
	require.NoError(t, err)
	assert.Len(t, ledger.submitted[0].Transaction.Message.Instructions, 3)
	assert.Equal(t, byte(6), ledger.instructionData(t, 0, 2)[0])
}
