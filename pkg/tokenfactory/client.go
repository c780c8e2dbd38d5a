package tokenfactory

import (
	"context"
	"crypto/ed25519"
	"os"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	xrate "golang.org/x/time/rate"

	"github.com/code-payments/tokenfactory-client/pkg/metrics"
	"github.com/code-payments/tokenfactory-client/pkg/rate"
	"github.com/code-payments/tokenfactory-client/pkg/retry"
	"github.com/code-payments/tokenfactory-client/pkg/solana"
	compute_budget "github.com/code-payments/tokenfactory-client/pkg/solana/computebudget"
	"github.com/code-payments/tokenfactory-client/pkg/solana/memo"
	"github.com/code-payments/tokenfactory-client/pkg/solana/submit"
	"github.com/code-payments/tokenfactory-client/pkg/solana/token"
	"github.com/code-payments/tokenfactory-client/pkg/solana/tokenfactory"
	"github.com/code-payments/tokenfactory-client/pkg/solana/verify"
)

const (
	metricsStructName = "tokenfactory.client"

	staleResubmitMetricName = "TokenFactoryStaleResubmit"
)

// ErrUnexpectedState is returned when a confirmed transaction did not leave
// the on-chain state it should have.
var ErrUnexpectedState = errors.New("on-chain state does not reflect the confirmed transaction")

// Result is the outcome of a token factory operation. Only a confirmed
// Outcome carries verified state.
type Result struct {
	Outcome *submit.Outcome

	Mint         ed25519.PublicKey
	TokenAccount ed25519.PublicKey

	Supply  solana.TokenAmount
	Balance solana.TokenAmount

	// StaleResubmits counts the reassemblies caused by a stale blockhash.
	StaleResubmits uint
}

// Confirmed reports whether the operation landed and was verified.
func (r *Result) Confirmed() bool {
	return r.Outcome != nil && r.Outcome.Kind == submit.OutcomeConfirmed
}

type Option func(*Client)

// WithCommitment sets the commitment used for confirmation and reads.
func WithCommitment(commitment solana.Commitment) Option {
	return func(c *Client) {
		c.commitment = commitment
	}
}

func WithConfirmationTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.submitOpts = append(c.submitOpts, submit.WithTimeout(timeout))
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.submitOpts = append(c.submitOpts, submit.WithPollInterval(interval))
	}
}

func WithMaxStaleResubmits(n uint) Option {
	return func(c *Client) {
		c.maxStaleResubmits = n
	}
}

// WithComputeUnitPrice prepends a priority fee instruction to every
// transaction. Zero disables it.
func WithComputeUnitPrice(microLamports uint64) Option {
	return func(c *Client) {
		c.computeUnitPrice = microLamports
	}
}

// WithMemo appends a memo instruction carrying text to every transaction.
func WithMemo(text string) Option {
	return func(c *Client) {
		c.memo = text
	}
}

// WithMetricsProvider reports metrics to app for calls whose context carries
// no application of its own.
func WithMetricsProvider(app *newrelic.Application) Option {
	return func(c *Client) {
		c.metricsProvider = app
	}
}

// Client drives the token factory program on behalf of a single payer.
type Client struct {
	log *logrus.Entry

	rpc     solana.Client
	payer   solana.Signer
	program ed25519.PublicKey

	commitment        solana.Commitment
	maxStaleResubmits uint
	computeUnitPrice  uint64
	memo              string
	metricsProvider   *newrelic.Application
	submitOpts        []submit.Option

	submitter *submit.Submitter
	verifier  *verify.Verifier
}

func NewClient(rpc solana.Client, payer solana.Signer, program ed25519.PublicKey, opts ...Option) *Client {
	c := &Client{
		log:               logrus.StandardLogger().WithField("type", "tokenfactory/client"),
		rpc:               rpc,
		payer:             payer,
		program:           program,
		commitment:        solana.CommitmentConfirmed,
		maxStaleResubmits: 3,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.submitter = submit.New(rpc, append([]submit.Option{submit.WithCommitment(c.commitment)}, c.submitOpts...)...)
	c.verifier = verify.New(rpc, c.commitment)

	return c
}

// NewClientFromConfig builds a Client against the configured endpoint, paid
// for by the configured keypair. It also sets up logging and, when a license
// key is configured, New Relic.
func NewClientFromConfig(config *Config) (*Client, error) {
	commitment, err := solana.CommitmentFromString(config.Commitment)
	if err != nil {
		return nil, err
	}

	program, err := solana.PublicKeyFromBase58(config.ProgramAddress)
	if err != nil {
		return nil, errors.Wrap(err, "invalid program address")
	}

	payer, err := solana.LoadKeypairFile(config.KeypairPath)
	if err != nil {
		return nil, err
	}

	var metricsProvider *newrelic.Application
	if len(config.NewRelicLicenseKey) > 0 {
		metricsProvider, err = newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(config.AppName),
			newrelic.ConfigLicense(config.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			return nil, errors.Wrap(err, "error connecting to new relic")
		}
	}

	configureLogger(config, metricsProvider)

	var limiter rate.Limiter = &rate.NoLimiter{}
	if config.RPCRateLimit > 0 {
		limiter = rate.NewLocalRateLimiter(xrate.Limit(config.RPCRateLimit))
	}

	return NewClient(
		solana.NewWithLimiter(config.RPCEndpoint, nil, limiter),
		payer,
		program,
		WithCommitment(commitment),
		WithConfirmationTimeout(config.ConfirmationTimeout),
		WithMaxStaleResubmits(config.MaxStaleResubmits),
		WithComputeUnitPrice(config.ComputeUnitPrice),
		WithMemo(config.Memo),
		WithMetricsProvider(metricsProvider),
	), nil
}

func configureLogger(config *Config, metricsProvider *newrelic.Application) {
	if metricsProvider != nil {
		logrus.SetFormatter(metrics.NewLogFormatter(metricsProvider, &logrus.JSONFormatter{}))
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(os.Stdout)
}

// Payer returns the address paying for, and signing, every transaction.
func (c *Client) Payer() ed25519.PublicKey {
	return c.payer.PublicKey()
}

// CreateToken creates a mint at the mint signer's address. A confirmed
// result has been verified to hold an initialized, empty mint with the
// requested decimals.
//
// Creating a mint that already exists is rejected by the program, and the
// rejection is returned as is.
func (c *Client) CreateToken(ctx context.Context, mint solana.Signer, mintAuthority ed25519.PublicKey, decimals uint8) (*Result, error) {
	ctx = c.withMetrics(ctx)

	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "CreateToken")
	defer tracer.End()

	log := c.log.WithFields(logrus.Fields{
		"method":   "CreateToken",
		"mint":     base58.Encode(mint.PublicKey()),
		"decimals": decimals,
	})

	ix, err := tokenfactory.NewCreateTokenInstruction(c.program, tokenfactory.BindContext{
		Mint:          mint.PublicKey(),
		MintAuthority: mintAuthority,
		Payer:         c.payer.PublicKey(),
	}, decimals)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	result := &Result{Mint: mint.PublicKey()}
	result.Outcome, result.StaleResubmits, err = c.send(ctx, log, []solana.Signer{c.payer, mint}, ix)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}
	if !result.Confirmed() {
		return result, nil
	}

	result.Supply, err = c.verifier.TokenSupply(mint.PublicKey())
	if err != nil {
		tracer.OnError(err)
		return nil, errors.Wrap(err, "failed to verify mint")
	}
	if result.Supply.Decimals != decimals || result.Supply.Amount != 0 {
		err = errors.Wrapf(ErrUnexpectedState, "mint has supply %s", result.Supply)
		tracer.OnError(err)
		return nil, err
	}

	log.Info("token created")
	return result, nil
}

// MintTo mints amount into owner's associated token account. A confirmed
// result has been verified to have grown both the supply and the balance by
// amount.
func (c *Client) MintTo(ctx context.Context, mint solana.Signer, owner ed25519.PublicKey, amount uint64) (*Result, error) {
	ctx = c.withMetrics(ctx)

	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "MintTo")
	defer tracer.End()

	log := c.log.WithFields(logrus.Fields{
		"method": "MintTo",
		"mint":   base58.Encode(mint.PublicKey()),
		"owner":  base58.Encode(owner),
		"amount": amount,
	})

	ata, err := token.GetAssociatedAccount(owner, mint.PublicKey())
	if err != nil {
		tracer.OnError(err)
		return nil, errors.Wrap(err, "failed to derive associated token account")
	}

	supplyBefore, err := c.amountOrZero(c.verifier.TokenSupply(mint.PublicKey()))
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}
	balanceBefore, err := c.amountOrZero(c.verifier.TokenBalance(ata))
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	ix, err := tokenfactory.NewMintInstruction(c.program, tokenfactory.BindContext{
		Mint:  mint.PublicKey(),
		Payer: c.payer.PublicKey(),
		Owner: owner,
	}, amount)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	result := &Result{Mint: mint.PublicKey(), TokenAccount: ata}
	result.Outcome, result.StaleResubmits, err = c.send(ctx, log, []solana.Signer{c.payer, mint}, ix)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}
	if !result.Confirmed() {
		return result, nil
	}

	if result.Supply, err = c.verifier.TokenSupply(mint.PublicKey()); err != nil {
		tracer.OnError(err)
		return nil, errors.Wrap(err, "failed to verify supply")
	}
	if result.Balance, err = c.verifier.TokenBalance(ata); err != nil {
		tracer.OnError(err)
		return nil, errors.Wrap(err, "failed to verify balance")
	}

	if result.Supply.Amount != supplyBefore+amount {
		err = errors.Wrapf(ErrUnexpectedState, "supply went from %d to %d", supplyBefore, result.Supply.Amount)
	} else if result.Balance.Amount != balanceBefore+amount {
		err = errors.Wrapf(ErrUnexpectedState, "balance went from %d to %d", balanceBefore, result.Balance.Amount)
	}
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	log.Info("tokens minted")
	return result, nil
}

// Supply returns the total supply of mint, or verify.ErrNotFound.
func (c *Client) Supply(mint ed25519.PublicKey) (solana.TokenAmount, error) {
	return c.verifier.TokenSupply(mint)
}

// Balance returns owner's balance of mint, or verify.ErrNotFound if owner
// has no associated token account.
func (c *Client) Balance(owner, mint ed25519.PublicKey) (solana.TokenAmount, error) {
	return c.verifier.OwnerBalance(owner, mint)
}

// send assembles and submits the instructions, reassembling with a fresh
// blockhash each time the network reports the blockhash stale. Rejected and
// timed out outcomes are returned without resubmission.
func (c *Client) send(ctx context.Context, log *logrus.Entry, signers []solana.Signer, instructions ...solana.Instruction) (*submit.Outcome, uint, error) {
	if c.computeUnitPrice > 0 {
		instructions = append([]solana.Instruction{compute_budget.SetComputeUnitPrice(c.computeUnitPrice)}, instructions...)
	}
	if len(c.memo) > 0 {
		ix, err := memo.Instruction(c.memo)
		if err != nil {
			return nil, 0, err
		}
		instructions = append(instructions, ix)
	}

	var outcome *submit.Outcome
	attempts, err := retry.Retry(
		func() error {
			blockhash, err := c.rpc.GetLatestBlockhash(c.commitment)
			if err != nil {
				return errors.Wrap(err, "failed to get latest blockhash")
			}

			txn, err := solana.Assemble(c.payer.PublicKey(), blockhash, signers, instructions...)
			if err != nil {
				return err
			}

			outcome, err = c.submitter.Submit(ctx, txn)
			if errors.Is(err, submit.ErrStaleBlockhash) {
				log.WithField("blockhash", blockhash.String()).Info("blockhash went stale, reassembling")
				metrics.RecordCount(ctx, staleResubmitMetricName, 1)
			}
			return err
		},
		retry.RetriableErrors(submit.ErrStaleBlockhash),
		retry.Limit(c.maxStaleResubmits+1),
		retry.Context(ctx),
	)
	if err != nil {
		log.WithError(err).Warn("failed to submit transaction")
		return nil, attempts - 1, err
	}

	log = log.WithFields(logrus.Fields{
		"signature": outcome.Signature.String(),
		"outcome":   outcome.Kind.String(),
	})
	switch outcome.Kind {
	case submit.OutcomeRejected:
		log.WithError(outcome.Err).Info("transaction rejected")
	case submit.OutcomeTimeout:
		log.WithField("blockhash_valid", outcome.BlockhashValid).Warn("transaction outcome unknown")
	}

	return outcome, attempts - 1, nil
}

func (c *Client) amountOrZero(amount solana.TokenAmount, err error) (uint64, error) {
	if err == verify.ErrNotFound {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return amount.Amount, nil
}

func (c *Client) withMetrics(ctx context.Context) context.Context {
	if c.metricsProvider == nil {
		return ctx
	}
	if _, ok := metrics.FromContext(ctx); ok {
		return ctx
	}
	return metrics.NewContext(ctx, c.metricsProvider)
}
