package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/Solana-ZH/gorbswap/pkg/sol"
)

// Kind tells how a balance is read from an account.
type Kind uint8

const (
	KindToken  Kind = iota // amount field of a token account
	KindNative             // lamports
)

// Target is one balance to watch. Label and Decimals only affect reports.
type Target struct {
	Address  solana.PublicKey
	Kind     Kind
	Label    string
	Decimals int32
}

// Reader is the part of the ledger transport the reconciler needs.
type Reader interface {
	ReadAccounts(ctx context.Context, keys []solana.PublicKey) ([]*sol.Account, error)
}

// Snapshot holds raw balances taken at one point in time.
type Snapshot struct {
	TakenAt  time.Time
	Balances map[solana.PublicKey]uint64
}

// Take reads every target in one batch. An account that does not exist yet reads as 0.
func Take(ctx context.Context, r Reader, targets []Target) (Snapshot, error) {
	keys := make([]solana.PublicKey, len(targets))
	for i, t := range targets {
		keys[i] = t.Address
	}
	accounts, err := r.ReadAccounts(ctx, keys)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	if len(accounts) != len(keys) {
		return Snapshot{}, fmt.Errorf("snapshot: read %d accounts, asked for %d", len(accounts), len(keys))
	}

	snap := Snapshot{TakenAt: time.Now(), Balances: make(map[solana.PublicKey]uint64, len(targets))}
	for i, t := range targets {
		acc := accounts[i]
		if acc == nil {
			snap.Balances[t.Address] = 0
			continue
		}
		switch t.Kind {
		case KindNative:
			snap.Balances[t.Address] = acc.Lamports
		case KindToken:
			amount, err := sol.TokenAmount(acc.Data)
			if err != nil {
				return Snapshot{}, fmt.Errorf("snapshot %s: %w", t.Address, err)
			}
			snap.Balances[t.Address] = amount
		default:
			return Snapshot{}, fmt.Errorf("snapshot %s: unknown kind %d", t.Address, t.Kind)
		}
	}
	return snap, nil
}

// Delta returns after - before per address. An address missing from one side counts as 0 there.
func Delta(before, after Snapshot) map[solana.PublicKey]math.Int {
	out := make(map[solana.PublicKey]math.Int, len(after.Balances))
	for addr, v := range after.Balances {
		out[addr] = math.NewIntFromUint64(v).Sub(math.NewIntFromUint64(before.Balances[addr]))
	}
	for addr, v := range before.Balances {
		if _, ok := after.Balances[addr]; !ok {
			out[addr] = math.NewIntFromUint64(v).Neg()
		}
	}
	return out
}

// IsZero reports whether no balance moved.
func IsZero(delta map[solana.PublicKey]math.Int) bool {
	for _, d := range delta {
		if !d.IsZero() {
			return false
		}
	}
	return true
}

// Line is one rendered balance change.
type Line struct {
	Label  string
	Before decimal.Decimal
	After  decimal.Decimal
	Change decimal.Decimal
}

// Report scales raw balances by each target's decimals.
func Report(targets []Target, before, after Snapshot) []Line {
	lines := make([]Line, 0, len(targets))
	for _, t := range targets {
		label := t.Label
		if label == "" {
			label = t.Address.String()
		}
		b := scaled(before.Balances[t.Address], t.Decimals)
		a := scaled(after.Balances[t.Address], t.Decimals)
		lines = append(lines, Line{Label: label, Before: b, After: a, Change: a.Sub(b)})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Label < lines[j].Label })
	return lines
}

func scaled(raw uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(math.NewIntFromUint64(raw).BigInt(), -decimals)
}

func (l Line) String() string {
	sign := ""
	if l.Change.IsPositive() {
		sign = "+"
	}
	return fmt.Sprintf("%s: %s -> %s (%s%s)", l.Label, l.Before.String(), l.After.String(), sign, l.Change.String())
}

// FormatReport renders lines one per row.
func FormatReport(lines []Line) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.String())
		b.WriteByte('\n')
	}
	return b.String()
}
