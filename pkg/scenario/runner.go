package scenario

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Solana-ZH/gorbswap/pkg/logger"
	"github.com/Solana-ZH/gorbswap/pkg/pool/gorb"
	"github.com/Solana-ZH/gorbswap/pkg/protocol"
	"github.com/Solana-ZH/gorbswap/pkg/reconcile"
	"github.com/Solana-ZH/gorbswap/pkg/request"
	"github.com/Solana-ZH/gorbswap/pkg/sol"
	"github.com/Solana-ZH/gorbswap/pkg/workflow"
)

var (
	ErrUnknownStep   = errors.New("unknown step")
	ErrInvalidParams = errors.New("invalid step parameters")
)

// Ledger is everything a scenario needs from the chain. *sol.Client implements it.
type Ledger interface {
	protocol.Ledger
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
	Submit(ctx context.Context, signed *request.Signed) (solana.Signature, error)
}

// Batch is one request of a step. Signers are the keys needed besides the wallet.
// Fields are merged into the record once the batch is confirmed.
type Batch struct {
	Name         string
	Instructions []solana.Instruction
	Signers      []solana.PrivateKey
	Fields       workflow.Fields
}

// Plan is a step resolved against a record, ready to submit or print.
type Plan struct {
	Step    string
	Batches []Batch
	Targets []reconcile.Target
	// Fields are merged after the last batch.
	Fields workflow.Fields
	// Settle derives fields from the balances observed after the last batch.
	Settle func(before, after reconcile.Snapshot) workflow.Fields
}

// Runner executes scenario steps one at a time against a ledger, persisting the
// extended record after every confirmed request.
type Runner struct {
	ledger  Ledger
	wallet  solana.PrivateKey
	builder *gorb.Builder
	tokens  sol.TokenProgram
	store   workflow.Store
	pools   *protocol.GorbProtocol
	opts    []request.Option
	log     *zap.Logger

	now    func() time.Time
	newKey func() solana.PrivateKey
}

func NewRunner(
	ledger Ledger,
	wallet solana.PrivateKey,
	builder *gorb.Builder,
	store workflow.Store,
	log *zap.Logger,
	opts ...request.Option,
) *Runner {
	log = logger.OrNop(log)
	return &Runner{
		ledger:  ledger,
		wallet:  wallet,
		builder: builder,
		tokens: sol.TokenProgram{
			ProgramID:           builder.Programs.TokenProgram,
			AssociatedProgramID: builder.Programs.AssociatedTokenProgram,
		},
		store:  store,
		pools:  protocol.NewGorbProtocol(ledger, builder, log),
		opts:   opts,
		log:    log,
		now:    time.Now,
		newKey: func() solana.PrivateKey { return solana.NewWallet().PrivateKey },
	}
}

func (r *Runner) payer() solana.PublicKey {
	return r.wallet.PublicKey()
}

// Run loads the record, runs step and returns the extended record with its balance report.
func (r *Runner) Run(ctx context.Context, step string, p Params) (workflow.Record, []reconcile.Line, error) {
	rec, err := r.store.Load(ctx)
	if err != nil {
		return workflow.Record{}, nil, err
	}
	plan, err := r.Plan(ctx, step, rec, p)
	if err != nil {
		return rec, nil, err
	}
	return r.Execute(ctx, rec, plan)
}

// Plan resolves step against rec without submitting anything.
func (r *Runner) Plan(ctx context.Context, step string, rec workflow.Record, p Params) (*Plan, error) {
	fn, ok := steps[step]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	plan, err := fn(ctx, r, rec, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	return plan, nil
}

// Execute submits the plan's batches in order. A failed batch stops the step; batches
// confirmed before it stay recorded.
func (r *Runner) Execute(ctx context.Context, rec workflow.Record, plan *Plan) (workflow.Record, []reconcile.Line, error) {
	before, err := reconcile.Take(ctx, r.ledger, plan.Targets)
	if err != nil {
		return rec, nil, err
	}

	for _, b := range plan.Batches {
		sig, err := r.submit(ctx, b)
		if err != nil {
			return rec, nil, fmt.Errorf("%s: %w", b.Name, err)
		}
		rec = workflow.Extend(rec, workflow.StepResult{Name: b.Name, Signature: sig, Timestamp: r.now()}, b.Fields)
		if err := r.store.Save(ctx, rec); err != nil {
			return rec, nil, err
		}
	}

	after, err := reconcile.Take(ctx, r.ledger, plan.Targets)
	if err != nil {
		return rec, nil, err
	}
	lines := reconcile.Report(plan.Targets, before, after)
	for _, l := range lines {
		r.log.Info("balance", zap.String("step", plan.Step), zap.Stringer("line", l))
	}

	var step workflow.StepResult
	if len(plan.Batches) == 0 {
		step = workflow.StepResult{Name: plan.Step, Timestamp: r.now()}
	}
	fields := plan.Fields
	if plan.Settle != nil {
		fields = merge(fields, plan.Settle(before, after))
	}
	rec = workflow.Extend(rec, step, fields)
	if err := r.store.Save(ctx, rec); err != nil {
		return rec, lines, err
	}
	return rec, lines, nil
}

// Sign assembles and signs one batch against a fresh blockhash.
func (r *Runner) Sign(ctx context.Context, b Batch) (*request.Signed, error) {
	extra := make([]solana.PublicKey, len(b.Signers))
	for i, k := range b.Signers {
		extra[i] = k.PublicKey()
	}
	req, err := request.Assemble(b.Instructions, r.payer(), extra, r.opts...)
	if err != nil {
		return nil, err
	}
	blockhash, err := r.ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	signer := request.NewKeySigner(append([]solana.PrivateKey{r.wallet}, b.Signers...)...)
	return signer.Sign(ctx, req, blockhash)
}

func (r *Runner) submit(ctx context.Context, b Batch) (solana.Signature, error) {
	signed, err := r.Sign(ctx, b)
	if err != nil {
		return solana.Signature{}, err
	}
	r.log.Info("submitting", zap.String("batch", b.Name), zap.Int("instructions", len(signed.Request.Instructions)),
		zap.Stringer("signature", signed.Signature()))
	sig, err := r.ledger.Submit(ctx, signed)
	if err != nil {
		return sig, err
	}
	r.log.Info("confirmed", zap.String("batch", b.Name), zap.Stringer("signature", sig))
	return sig, nil
}

func merge(a, b workflow.Fields) workflow.Fields {
	return workflow.Fields{
		Addresses: mergeMap(a.Addresses, b.Addresses),
		Amounts:   mergeMap(a.Amounts, b.Amounts),
	}
}

func mergeMap[V any](a, b map[string]V) map[string]V {
	out := make(map[string]V, len(a)+len(b))
	maps.Copy(out, a)
	maps.Copy(out, b)
	return out
}
