package sol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/Solana-ZH/gorbswap/pkg/request"
)

var (
	ErrTransactionFailed   = errors.New("transaction failed on chain")
	ErrConfirmationTimeout = errors.New("transaction not confirmed in time")
)

const confirmPollInterval = 500 * time.Millisecond

// SubmissionError wraps any failure between handing a signed request to the ledger
// and its confirmation. Signature is set once the ledger has accepted the transaction.
type SubmissionError struct {
	Signature solana.Signature
	Err       error
}

func (e *SubmissionError) Error() string {
	if e.Signature.IsZero() {
		return fmt.Sprintf("submission failed: %v", e.Err)
	}
	return fmt.Sprintf("submission of %s failed: %v", e.Signature, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Simulate runs the signed request against the current ledger state without submitting it.
func (c *Client) Simulate(ctx context.Context, signed *request.Signed) (*rpc.SimulateTransactionResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.RpcClient.SimulateTransaction(ctx, signed.Transaction)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate transaction: %w", err)
	}
	if res.Value.Err != nil {
		return res.Value, &SubmissionError{Err: fmt.Errorf("%w: %v", ErrTransactionFailed, res.Value.Err)}
	}
	return res.Value, nil
}

// Submit sends the signed request once and blocks until it reaches the client's
// commitment, fails, or the confirm timeout passes. It never resends.
func (c *Client) Submit(ctx context.Context, signed *request.Signed) (solana.Signature, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Signature{}, &SubmissionError{Err: err}
	}
	sig, err := c.RpcClient.SendTransactionWithOpts(
		ctx, signed.Transaction,
		rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: c.commitment,
			MaxRetries:          new(uint),
		},
	)
	if err != nil {
		return solana.Signature{}, &SubmissionError{Signature: signed.Signature(), Err: err}
	}
	c.log.Debug("transaction sent", zap.Stringer("signature", sig))

	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()
	if err := c.awaitConfirmation(waitCtx, sig); err != nil {
		if ctx.Err() == nil && waitCtx.Err() != nil {
			err = fmt.Errorf("%w after %s", ErrConfirmationTimeout, c.confirmTimeout)
		}
		return sig, &SubmissionError{Signature: sig, Err: err}
	}
	c.log.Info("transaction confirmed", zap.Stringer("signature", sig), zap.String("commitment", string(c.commitment)))
	return sig, nil
}

func (c *Client) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	if c.WsClient != nil {
		sub, err := c.WsClient.SignatureSubscribe(sig, c.commitment)
		if err == nil {
			defer sub.Unsubscribe()
			res, err := sub.Recv(ctx)
			if err != nil {
				return fmt.Errorf("await confirmation: %w", err)
			}
			if res.Value.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, res.Value.Err)
			}
			return nil
		}
		c.log.Warn("signature subscription failed, polling instead", zap.Error(err))
	}

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()
	for {
		if err := c.wait(ctx); err != nil {
			return err
		}
		res, err := c.RpcClient.GetSignatureStatuses(ctx, false, sig)
		if err != nil && !errors.Is(err, rpc.ErrNotFound) {
			return fmt.Errorf("get signature status: %w", err)
		}
		if err == nil && len(res.Value) > 0 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
			}
			if reached(status.ConfirmationStatus, c.commitment) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := map[rpc.ConfirmationStatusType]int{
		rpc.ConfirmationStatusProcessed: 1,
		rpc.ConfirmationStatusConfirmed: 2,
		rpc.ConfirmationStatusFinalized: 3,
	}
	return rank[status] >= rank[rpc.ConfirmationStatusType(want)] && rank[status] > 0
}
