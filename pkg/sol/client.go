package sol

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client represents a Solana client that handles both RPC and WebSocket connections
type Client struct {
	RpcClient  *rpc.Client
	WsClient   *ws.Client
	commitment rpc.CommitmentType
	limiter    *rate.Limiter
	log        *zap.Logger

	confirmTimeout time.Duration
}

type ClientOption func(*Client)

// WithRateLimit caps outgoing RPC calls. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithCommitment(commitment rpc.CommitmentType) ClientOption {
	return func(c *Client) { c.commitment = commitment }
}

// WithConfirmTimeout bounds how long Submit waits for confirmation. d <= 0 keeps the default.
func WithConfirmTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.confirmTimeout = d
		}
	}
}

func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a new Solana client with both RPC and WebSocket connections
func NewClient(ctx context.Context, endpoint, wsEndpoint string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		RpcClient:  rpc.New(endpoint),
		commitment: rpc.CommitmentConfirmed,
		log:        zap.NewNop(),

		confirmTimeout: DefaultConfirmTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if wsEndpoint != "" {
		// Initialize WebSocket client
		wsClient, err := ws.Connect(ctx, wsEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to establish WebSocket connection: %w", err)
		}
		c.WsClient = wsClient
	}
	return c, nil
}

// Close terminates all client connections
func (c *Client) Close() error {
	if c.WsClient != nil {
		c.WsClient.Close()
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Account is the raw state of one ledger account.
type Account struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// ReadAccounts fetches accounts in one call. Absent accounts are nil in the result,
// which is index-aligned with keys.
func (c *Client) ReadAccounts(ctx context.Context, keys []solana.PublicKey) ([]*Account, error) {
	out := make([]*Account, len(keys))
	// getMultipleAccounts accepts at most 100 keys per call
	for start := 0; start < len(keys); start += 100 {
		end := min(start+100, len(keys))
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		res, err := c.RpcClient.GetMultipleAccountsWithOpts(ctx, keys[start:end], &rpc.GetMultipleAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read accounts: %w", err)
		}
		for i, acc := range res.Value {
			if acc == nil {
				continue
			}
			out[start+i] = &Account{
				Lamports: acc.Lamports,
				Owner:    acc.Owner,
				Data:     acc.Data.GetBinary(),
			}
		}
	}
	return out, nil
}

// LatestBlockhash returns a blockhash at the client's commitment.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Hash{}, err
	}
	res, err := c.RpcClient.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return res.Value.Blockhash, nil
}

// MinimumBalanceForRentExemption returns the lamports an account of size bytes must hold.
func (c *Client) MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	lamports, err := c.RpcClient.GetMinimumBalanceForRentExemption(ctx, size, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get rent exemption for %d bytes: %w", size, err)
	}
	return lamports, nil
}

// KeyedAccount is an account returned by a program scan.
type KeyedAccount struct {
	Address solana.PublicKey
	Account
}

// ProgramAccounts returns the accounts owned by program that match every filter.
func (c *Client) ProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.RPCFilter) ([]KeyedAccount, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.RpcClient.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
		Filters:    filters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get program accounts: %w", err)
	}
	out := make([]KeyedAccount, 0, len(res))
	for _, acc := range res {
		if acc == nil || acc.Account == nil {
			continue
		}
		out = append(out, KeyedAccount{
			Address: acc.Pubkey,
			Account: Account{
				Lamports: acc.Account.Lamports,
				Owner:    acc.Account.Owner,
				Data:     acc.Account.Data.GetBinary(),
			},
		})
	}
	return out, nil
}
