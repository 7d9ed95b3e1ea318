package gorb

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrDerivationFailure is returned when no bump in [0, 255] yields an off-curve address.
var ErrDerivationFailure = errors.New("program address derivation failed")

// PoolKind tells which seed family the program uses for a pool.
type PoolKind uint8

const (
	PoolKindStandard PoolKind = iota
	PoolKindNative
)

func (k PoolKind) String() string {
	switch k {
	case PoolKindStandard:
		return "standard"
	case PoolKindNative:
		return "native"
	}
	return fmt.Sprintf("PoolKind(%d)", uint8(k))
}

// DerivedAddress is a program-owned address together with its bump.
type DerivedAddress struct {
	Address solana.PublicKey
	Bump    uint8
}

// DeriveAddress finds the canonical program address for seeds under programID.
func DeriveAddress(programID solana.PublicKey, seeds ...[]byte) (DerivedAddress, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return DerivedAddress{}, fmt.Errorf("%w: %v", ErrDerivationFailure, err)
	}
	return DerivedAddress{Address: addr, Bump: bump}, nil
}

// PoolKeys holds every program-owned address of one pool. MintA/MintB keep the order
// the pool was created with.
type PoolKeys struct {
	Kind   PoolKind
	Pool   DerivedAddress
	MintA  solana.PublicKey
	MintB  solana.PublicKey
	VaultA solana.PublicKey
	VaultB solana.PublicKey
	LPMint solana.PublicKey
}

// IsNativePool reports whether the program would treat a pool over these mints as native.
func IsNativePool(mintA, mintB solana.PublicKey) bool {
	return mintA.Equals(NATIVE_MINT) || mintB.Equals(NATIVE_MINT)
}

// TokenMint returns the non-native mint of a native pool.
func (k PoolKeys) TokenMint() solana.PublicKey {
	if k.MintA.Equals(NATIVE_MINT) {
		return k.MintB
	}
	return k.MintA
}

// DerivePoolKeys derives the pool, vault and LP mint addresses for the ordered pair (mintA, mintB).
func DerivePoolKeys(programID, mintA, mintB solana.PublicKey) (PoolKeys, error) {
	if mintA.Equals(mintB) {
		return PoolKeys{}, fmt.Errorf("pool mints must differ: %s", mintA)
	}
	if IsNativePool(mintA, mintB) {
		return deriveNativePoolKeys(programID, mintA, mintB)
	}

	pool, err := DeriveAddress(programID, POOL_SEED, mintA.Bytes(), mintB.Bytes())
	if err != nil {
		return PoolKeys{}, fmt.Errorf("derive pool: %w", err)
	}
	vaultA, err := DeriveAddress(programID, VAULT_SEED, pool.Address.Bytes(), mintA.Bytes())
	if err != nil {
		return PoolKeys{}, fmt.Errorf("derive vault a: %w", err)
	}
	vaultB, err := DeriveAddress(programID, VAULT_SEED, pool.Address.Bytes(), mintB.Bytes())
	if err != nil {
		return PoolKeys{}, fmt.Errorf("derive vault b: %w", err)
	}
	lpMint, err := DeriveAddress(programID, LP_MINT_SEED, pool.Address.Bytes())
	if err != nil {
		return PoolKeys{}, fmt.Errorf("derive lp mint: %w", err)
	}
	return PoolKeys{
		Kind:   PoolKindStandard,
		Pool:   pool,
		MintA:  mintA,
		MintB:  mintB,
		VaultA: vaultA.Address,
		VaultB: vaultB.Address,
		LPMint: lpMint.Address,
	}, nil
}

// Native pools keep lamports on the pool account itself, so the native side's vault is the pool.
func deriveNativePoolKeys(programID, mintA, mintB solana.PublicKey) (PoolKeys, error) {
	tokenMint := mintB
	if mintB.Equals(NATIVE_MINT) {
		tokenMint = mintA
	}
	pool, err := DeriveAddress(programID, NATIVE_POOL_SEED, tokenMint.Bytes())
	if err != nil {
		return PoolKeys{}, fmt.Errorf("derive native pool: %w", err)
	}
	vault, err := DeriveAddress(programID, NATIVE_VAULT_SEED, pool.Address.Bytes(), tokenMint.Bytes())
	if err != nil {
		return PoolKeys{}, fmt.Errorf("derive native vault: %w", err)
	}
	lpMint, err := DeriveAddress(programID, NATIVE_LP_MINT_SEED, pool.Address.Bytes())
	if err != nil {
		return PoolKeys{}, fmt.Errorf("derive native lp mint: %w", err)
	}

	keys := PoolKeys{
		Kind:   PoolKindNative,
		Pool:   pool,
		MintA:  mintA,
		MintB:  mintB,
		LPMint: lpMint.Address,
	}
	if mintA.Equals(NATIVE_MINT) {
		keys.VaultA, keys.VaultB = pool.Address, vault.Address
	} else {
		keys.VaultA, keys.VaultB = vault.Address, pool.Address
	}
	return keys, nil
}

// DeriveAssociatedAccount derives the associated holding account for (owner, mint) under
// the given token and associated-account programs.
func DeriveAssociatedAccount(owner, mint, tokenProgram, ataProgram solana.PublicKey) (solana.PublicKey, error) {
	ata, err := DeriveAddress(ataProgram, owner.Bytes(), tokenProgram.Bytes(), mint.Bytes())
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated account for %s: %w", mint, err)
	}
	return ata.Address, nil
}
