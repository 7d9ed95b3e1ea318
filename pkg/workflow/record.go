package workflow

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/gagliardetto/solana-go"
)

var ErrMissingKey = errors.New("workflow key not set")

// Well-known keys written by the scenario steps.
const (
	KeyMintA          = "mintA"
	KeyMintB          = "mintB"
	KeyPool           = "poolAddress"
	KeyVaultA         = "vaultA"
	KeyVaultB         = "vaultB"
	KeyLPMint         = "lpMint"
	KeyUserTokenA     = "userTokenA"
	KeyUserTokenB     = "userTokenB"
	KeyUserLP         = "userLP"
	KeyTreasury       = "feeTreasury"
	KeyNativePool     = "nativePoolAddress"
	KeyNativeToken    = "nativeTokenMint"
	KeySecondMint     = "secondMint"
	KeySecondPool     = "secondPoolAddress"
	KeyUserSecond     = "userSecondToken"
	KeyLPBalance      = "lpBalance"
	KeyPoolBump       = "poolBump"
	KeyDecimalsA      = "decimalsA"
	KeyDecimalsB      = "decimalsB"
	KeyDecimalsSecond = "decimalsSecond"
	KeyLastSwapOut    = "lastSwapOut"
	KeyFeesWithdrawnA = "feesWithdrawnA"
	KeyFeesWithdrawnB = "feesWithdrawnB"
	KeyPoolsFound     = "poolsFound"
)

// StepResult is the outcome of one submitted step.
type StepResult struct {
	Name      string
	Signature solana.Signature
	Timestamp time.Time
}

// Record is the provenance of a scenario. Treat it as a value: Extend returns a new one.
type Record struct {
	Addresses map[string]solana.PublicKey
	Amounts   map[string]uint64
	Steps     []StepResult
}

// Fields are the values a step adds. Later values overwrite earlier ones under the same key.
type Fields struct {
	Addresses map[string]solana.PublicKey
	Amounts   map[string]uint64
}

// Extend returns a copy of rec with step appended and fields merged in. rec is not modified.
func Extend(rec Record, step StepResult, fields Fields) Record {
	out := Record{
		Addresses: make(map[string]solana.PublicKey, len(rec.Addresses)+len(fields.Addresses)),
		Amounts:   make(map[string]uint64, len(rec.Amounts)+len(fields.Amounts)),
		Steps:     make([]StepResult, 0, len(rec.Steps)+1),
	}
	maps.Copy(out.Addresses, rec.Addresses)
	maps.Copy(out.Addresses, fields.Addresses)
	maps.Copy(out.Amounts, rec.Amounts)
	maps.Copy(out.Amounts, fields.Amounts)
	out.Steps = append(out.Steps, rec.Steps...)
	if step.Name != "" {
		out.Steps = append(out.Steps, step)
	}
	return out
}

// Resolve returns the address stored under key.
func Resolve(rec Record, key string) (solana.PublicKey, error) {
	addr, ok := rec.Addresses[key]
	if !ok || addr.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return addr, nil
}

// Amount returns the amount stored under key.
func Amount(rec Record, key string) (uint64, error) {
	v, ok := rec.Amounts[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return v, nil
}

// LastStep returns the most recent step named name.
func LastStep(rec Record, name string) (StepResult, bool) {
	for i := len(rec.Steps) - 1; i >= 0; i-- {
		if rec.Steps[i].Name == name {
			return rec.Steps[i], true
		}
	}
	return StepResult{}, false
}
