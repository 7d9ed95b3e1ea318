package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Solana-ZH/gorbswap/pkg/config"
	"github.com/Solana-ZH/gorbswap/pkg/logger"
	"github.com/Solana-ZH/gorbswap/pkg/pool/gorb"
	"github.com/Solana-ZH/gorbswap/pkg/reconcile"
	"github.com/Solana-ZH/gorbswap/pkg/request"
	"github.com/Solana-ZH/gorbswap/pkg/scenario"
	"github.com/Solana-ZH/gorbswap/pkg/sol"
	"github.com/Solana-ZH/gorbswap/pkg/workflow"
)

var (
	configFile = flag.String("config", "", "yaml config file (optional)")
	envDir     = flag.String("env-dir", ".", "directory searched upwards for .env")
	step       = flag.String("step", "", "scenario step: "+strings.Join(scenario.Steps(), "|"))
	dryRun     = flag.Bool("dry-run", false, "print the step's instructions without submitting")
	simulate   = flag.Bool("simulate", false, "with -dry-run, also simulate each batch against the ledger")

	amountA     = flag.Uint64("amount-a", 0, "token A amount in raw units (init, fund, add-liquidity, withdraw-fees)")
	amountB     = flag.Uint64("amount-b", 0, "token B amount in raw units (init, fund, add-liquidity, withdraw-fees)")
	supply      = flag.Uint64("supply", 0, "raw units minted to the wallet per new mint (init)")
	decimalsA   = flag.Uint("decimals-a", 9, "decimals of mint A (init)")
	decimalsB   = flag.Uint("decimals-b", 9, "decimals of mint B (init)")
	second      = flag.Bool("second", false, "init a second pool pairing mint B with a new mint")
	amountIn    = flag.Uint64("amount-in", 0, "input amount in raw units (swap, swap-native, multihop)")
	aToB        = flag.Bool("a-to-b", true, "swap direction (swap)")
	slippageBps = flag.Uint("slippage", 50, "slippage tolerance in basis points")
	lpAmount    = flag.Uint64("lp", 0, "LP tokens to burn, 0 for all (remove-liquidity)")
	treasury    = flag.String("treasury", "", "fee treasury address (set-treasury, collect-fees, withdraw-fees)")
	token       = flag.String("token", "", "token mint to look up (find-pools)")
)

func main() {
	flag.Parse()
	if *step == "" {
		fmt.Fprintln(os.Stderr, "Error: -step is required")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile, *envDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg, err := logger.New(cfg.Log.ToLogOption())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	params, err := stepParams()
	if err != nil {
		lg.Fatal("invalid flags", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg, params); err != nil {
		lg.Fatal("step failed", zap.String("step", *step), zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger, params scenario.Params) error {
	wallet, err := cfg.Signer()
	if err != nil {
		return err
	}
	lg.Info("wallet", zap.Stringer("pubkey", wallet.PublicKey()))

	ids, err := cfg.Programs()
	if err != nil {
		return err
	}
	builder, err := gorb.NewBuilder(ids.AMM, gorb.Programs{
		TokenProgram:           ids.Token,
		SystemProgram:          solana.SystemProgramID,
		AssociatedTokenProgram: ids.AssociatedToken,
	}, ids.Discriminators)
	if err != nil {
		return err
	}

	wsURL := cfg.WSURL
	if *dryRun {
		wsURL = ""
	}
	client, err := sol.NewClient(ctx, cfg.RPCURL, wsURL,
		sol.WithCommitment(rpc.CommitmentType(cfg.Commitment)),
		sol.WithRateLimit(cfg.RPS, 1),
		sol.WithConfirmTimeout(cfg.ConfirmTimeout),
		sol.WithLogger(lg),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	store, closeStore := openStore(cfg)
	defer closeStore()

	var opts []request.Option
	if cfg.ComputeUnitPrice > 0 {
		opts = append(opts, request.WithComputeUnitPrice(cfg.ComputeUnitPrice))
	}
	if cfg.ComputeUnitLimit > 0 {
		opts = append(opts, request.WithComputeUnitLimit(cfg.ComputeUnitLimit))
	}
	runner := scenario.NewRunner(client, wallet, builder, store, lg, opts...)

	if *dryRun {
		rec, err := store.Load(ctx)
		if err != nil {
			return err
		}
		plan, err := runner.Plan(ctx, *step, rec, params)
		if err != nil {
			return err
		}
		if err := printPlan(os.Stdout, plan); err != nil {
			return err
		}
		if *simulate {
			return simulatePlan(ctx, runner, client, lg, plan)
		}
		return nil
	}

	rec, lines, err := runner.Run(ctx, *step, params)
	if err != nil {
		return err
	}
	fmt.Print(reconcile.FormatReport(lines))
	for _, s := range rec.Steps[max(0, len(rec.Steps)-2):] {
		lg.Info("recorded", zap.String("step", s.Name), zap.Stringer("signature", s.Signature))
	}
	return nil
}

// Batches after the first usually depend on accounts the earlier ones create, so only
// the first is expected to simulate cleanly on a fresh step.
func simulatePlan(ctx context.Context, runner *scenario.Runner, client *sol.Client, lg *zap.Logger, plan *scenario.Plan) error {
	for _, b := range plan.Batches {
		signed, err := runner.Sign(ctx, b)
		if err != nil {
			return err
		}
		res, err := client.Simulate(ctx, signed)
		if res != nil {
			for _, l := range res.Logs {
				fmt.Println("   ", l)
			}
			if res.UnitsConsumed != nil {
				lg.Info("simulated", zap.String("batch", b.Name), zap.Uint64("units", *res.UnitsConsumed))
			}
		}
		if err != nil {
			return fmt.Errorf("%s: %w", b.Name, err)
		}
	}
	return nil
}

func openStore(cfg *config.Config) (workflow.Store, func()) {
	if cfg.Redis.Addr == "" {
		return workflow.NewFileStore(cfg.StateFile), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return workflow.NewRedisStore(rdb, cfg.Redis.Key), func() { rdb.Close() }
}

func stepParams() (scenario.Params, error) {
	if *decimalsA > 255 || *decimalsB > 255 {
		return scenario.Params{}, fmt.Errorf("decimals out of range")
	}
	if *slippageBps > 10_000 {
		return scenario.Params{}, fmt.Errorf("slippage %d bps exceeds 10000", *slippageBps)
	}
	p := scenario.Params{
		AmountA:     *amountA,
		AmountB:     *amountB,
		Supply:      *supply,
		DecimalsA:   uint8(*decimalsA),
		DecimalsB:   uint8(*decimalsB),
		Second:      *second,
		AmountIn:    *amountIn,
		AToB:        *aToB,
		SlippageBps: uint32(*slippageBps),
		LPAmount:    *lpAmount,
	}
	var err error
	if *treasury != "" {
		if p.Treasury, err = solana.PublicKeyFromBase58(*treasury); err != nil {
			return p, fmt.Errorf("treasury: %w", err)
		}
	}
	if *token != "" {
		if p.Token, err = solana.PublicKeyFromBase58(*token); err != nil {
			return p, fmt.Errorf("token: %w", err)
		}
	}
	return p, nil
}
