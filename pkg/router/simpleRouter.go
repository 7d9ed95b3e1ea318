package router

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Solana-ZH/gorbswap/pkg"
	"github.com/Solana-ZH/gorbswap/pkg/logger"
)

var ErrNoRoute = errors.New("no route found")

type SimpleRouter struct {
	protocols []pkg.Protocol
	pools     []pkg.Pool
	log       *zap.Logger
}

func NewSimpleRouter(log *zap.Logger, protocols ...pkg.Protocol) *SimpleRouter {
	return &SimpleRouter{
		protocols: protocols,
		pools:     []pkg.Pool{},
		log:       logger.OrNop(log),
	}
}

// QueryAllPools collects the pools of every protocol for the pair. A failing protocol is
// logged and skipped; pools already known by id are not added twice.
func (r *SimpleRouter) QueryAllPools(ctx context.Context, baseMint, quoteMint solana.PublicKey) ([]pkg.Pool, error) {
	known := make(map[string]struct{}, len(r.pools))
	for _, p := range r.pools {
		known[p.GetID()] = struct{}{}
	}
	for _, proto := range r.protocols {
		pools, err := proto.FetchPoolsByPair(ctx, baseMint, quoteMint)
		if err != nil {
			r.log.Warn("fetch pools failed", zap.Stringer("base", baseMint), zap.Stringer("quote", quoteMint), zap.Error(err))
			continue
		}
		for _, p := range pools {
			if _, ok := known[p.GetID()]; ok {
				continue
			}
			known[p.GetID()] = struct{}{}
			r.pools = append(r.pools, p)
		}
	}
	return r.pools, nil
}

// GetBestPool returns the known pool quoting the largest output for amountIn of tokenIn.
func (r *SimpleRouter) GetBestPool(ctx context.Context, tokenIn solana.PublicKey, amountIn math.Int) (pkg.Pool, math.Int, error) {
	var best pkg.Pool
	maxOut := math.NewInt(0)
	for _, pool := range r.pools {
		outAmount, err := pool.Quote(ctx, tokenIn, amountIn)
		if err != nil {
			r.log.Debug("error quoting", zap.String("pool", pool.GetID()), zap.Error(err))
			continue
		}
		if outAmount.GT(maxOut) {
			maxOut = outAmount
			best = pool
		}
	}
	if best == nil {
		return nil, math.ZeroInt(), fmt.Errorf("%w for %s", ErrNoRoute, tokenIn)
	}
	return best, maxOut, nil
}

// MinAmountOut lowers quote by slippageBps basis points, rounding down.
func MinAmountOut(quote math.Int, slippageBps uint32) math.Int {
	if slippageBps >= 10_000 {
		return math.ZeroInt()
	}
	return quote.MulRaw(int64(10_000 - slippageBps)).QuoRaw(10_000)
}
