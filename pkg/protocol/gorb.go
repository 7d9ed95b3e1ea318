package protocol

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/Solana-ZH/gorbswap/pkg"
	"github.com/Solana-ZH/gorbswap/pkg/logger"
	"github.com/Solana-ZH/gorbswap/pkg/pool/gorb"
	"github.com/Solana-ZH/gorbswap/pkg/sol"
)

var ErrPoolNotFound = errors.New("pool account not found")

// Ledger is the read surface pool discovery needs.
type Ledger interface {
	ReadAccounts(ctx context.Context, keys []solana.PublicKey) ([]*sol.Account, error)
	ProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.RPCFilter) ([]sol.KeyedAccount, error)
}

// GorbProtocol discovers pools of the GorbChain AMM program.
//
// Pools are program derived from their mint pair, so lookups by pair read the derived
// addresses directly. Lookups by a single token scan the program with memcmp filters
// on the stored mints.
type GorbProtocol struct {
	Ledger  Ledger
	builder *gorb.Builder
	log     *zap.Logger
}

var _ pkg.Protocol = (*GorbProtocol)(nil)

func NewGorbProtocol(ledger Ledger, builder *gorb.Builder, log *zap.Logger) *GorbProtocol {
	return &GorbProtocol{Ledger: ledger, builder: builder, log: logger.OrNop(log)}
}

// FetchPoolsByPair returns the pools for the pair in either mint order. A native pair
// derives the same pool both ways and is read once.
func (p *GorbProtocol) FetchPoolsByPair(ctx context.Context, baseMint, quoteMint solana.PublicKey) ([]pkg.Pool, error) {
	candidates := make([]solana.PublicKey, 0, 2)
	for _, pair := range [][2]solana.PublicKey{{baseMint, quoteMint}, {quoteMint, baseMint}} {
		keys, err := gorb.DerivePoolKeys(p.builder.ProgramID, pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		if slices.Contains(candidates, keys.Pool.Address) {
			continue
		}
		candidates = append(candidates, keys.Pool.Address)
	}
	accounts, err := p.Ledger.ReadAccounts(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pools for %s/%s: %w", baseMint, quoteMint, err)
	}

	res := make([]pkg.Pool, 0, len(candidates))
	for i, acc := range accounts {
		if acc == nil {
			continue
		}
		pool, err := p.decode(candidates[i], acc)
		if err != nil {
			p.log.Debug("skipping pool", zap.Stringer("pool", candidates[i]), zap.Error(err))
			continue
		}
		res = append(res, pool)
	}
	return res, nil
}

// FetchPoolByID reads and decodes one pool account.
func (p *GorbProtocol) FetchPoolByID(ctx context.Context, poolID solana.PublicKey) (pkg.Pool, error) {
	pool, err := p.FetchPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// FetchPool is FetchPoolByID returning the concrete pool.
func (p *GorbProtocol) FetchPool(ctx context.Context, poolID solana.PublicKey) (*gorb.Pool, error) {
	accounts, err := p.Ledger.ReadAccounts(ctx, []solana.PublicKey{poolID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pool %s: %w", poolID, err)
	}
	if len(accounts) == 0 || accounts[0] == nil {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	return p.decode(poolID, accounts[0])
}

// FetchPoolsByToken returns every pool holding mint on either side.
func (p *GorbProtocol) FetchPoolsByToken(ctx context.Context, mint solana.PublicKey) ([]*gorb.Pool, error) {
	seen := make(map[solana.PublicKey]struct{})
	res := make([]*gorb.Pool, 0)
	for _, size := range []uint64{gorb.POOL_ACCOUNT_SIZE, gorb.NATIVE_POOL_ACCOUNT_SIZE} {
		// token_a at offset 0, token_b at offset 32
		for _, offset := range []uint64{0, 32} {
			accounts, err := p.Ledger.ProgramAccounts(ctx, p.builder.ProgramID, []rpc.RPCFilter{
				{DataSize: size},
				{Memcmp: &rpc.RPCFilterMemcmp{Offset: offset, Bytes: mint[:]}},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to scan pools for token %s: %w", mint, err)
			}
			for _, acc := range accounts {
				if _, ok := seen[acc.Address]; ok {
					continue
				}
				pool, err := p.decode(acc.Address, &acc.Account)
				if err != nil {
					p.log.Debug("skipping pool", zap.Stringer("pool", acc.Address), zap.Error(err))
					continue
				}
				seen[acc.Address] = struct{}{}
				res = append(res, pool)
			}
		}
	}
	return res, nil
}

func (p *GorbProtocol) decode(address solana.PublicKey, acc *sol.Account) (*gorb.Pool, error) {
	if !acc.Owner.Equals(p.builder.ProgramID) {
		return nil, fmt.Errorf("pool %s owned by %s", address, acc.Owner)
	}
	return gorb.NewPool(p.builder, address, acc.Data)
}
