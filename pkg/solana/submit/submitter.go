package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/tokenfactory-client/pkg/metrics"
	"github.com/code-payments/tokenfactory-client/pkg/retry"
	"github.com/code-payments/tokenfactory-client/pkg/retry/backoff"
	"github.com/code-payments/tokenfactory-client/pkg/solana"
)

const (
	metricsStructName = "solana.submit"

	outcomeCountMetricName        = "Submit%sCount"
	confirmationLatencyMetricName = "Submit%sLatency"
	outcomeEventName              = "TransactionOutcome"
)

var (
	// ErrStaleBlockhash is returned when the network no longer recognizes the
	// transaction's blockhash. The transaction never executed, so callers may
	// reassemble it with a fresh blockhash and submit again.
	ErrStaleBlockhash = errors.New("transaction blockhash is no longer valid")

	errPending = errors.New("transaction not yet at commitment")
)

type OutcomeKind int

const (
	OutcomeConfirmed OutcomeKind = iota
	OutcomeRejected
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeConfirmed:
		return "Confirmed"
	case OutcomeRejected:
		return "Rejected"
	case OutcomeTimeout:
		return "Timeout"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the terminal result of a submission.
type Outcome struct {
	Kind      OutcomeKind
	Signature solana.Signature
	Blockhash solana.Blockhash

	// Slot the transaction was processed in, when known.
	Slot uint64

	// Err is the ledger's reason for an OutcomeRejected, as reported.
	Err *solana.TransactionError

	// BlockhashValid is set for OutcomeTimeout. While the blockhash is valid
	// the transaction may still land, so resubmitting risks executing twice.
	BlockhashValid bool
}

type Option func(*Submitter)

// WithCommitment sets the commitment a transaction must reach to be
// considered confirmed. Defaults to confirmed.
func WithCommitment(commitment solana.Commitment) Option {
	return func(s *Submitter) {
		s.commitment = commitment
	}
}

// WithTimeout bounds how long Submit waits for confirmation. Defaults to
// one minute.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Submitter) {
		s.timeout = timeout
	}
}

// WithPollInterval sets the delay between signature status lookups.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Submitter) {
		s.pollInterval = interval
	}
}

// Submitter sends signed transactions and waits for their outcome.
type Submitter struct {
	log    *logrus.Entry
	client solana.Client

	commitment   solana.Commitment
	timeout      time.Duration
	pollInterval time.Duration
}

func New(client solana.Client, opts ...Option) *Submitter {
	s := &Submitter{
		log:          logrus.StandardLogger().WithField("type", "solana/submit"),
		client:       client,
		commitment:   solana.CommitmentConfirmed,
		timeout:      time.Minute,
		pollInterval: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Submit sends txn once and blocks until it is confirmed, rejected, or the
// wait times out. If the network refuses the blockhash, the returned error
// names the signature and blockhash and matches ErrStaleBlockhash under
// errors.Is. Other errors mean the outcome could not be determined.
func (s *Submitter) Submit(ctx context.Context, txn solana.Transaction) (*Outcome, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Submit")
	defer tracer.End()

	outcome, err := s.submit(ctx, txn)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	tracer.AddAttributes(map[string]interface{}{
		"signature": outcome.Signature.String(),
		"outcome":   outcome.Kind.String(),
	})
	return outcome, nil
}

func staleBlockhashError(outcome *Outcome) error {
	return errors.Wrapf(ErrStaleBlockhash, "signature %s, blockhash %s", outcome.Signature, outcome.Blockhash)
}

func (s *Submitter) submit(ctx context.Context, txn solana.Transaction) (*Outcome, error) {
	outcome := &Outcome{
		Signature: txn.Signature(),
		Blockhash: txn.Message.RecentBlockhash,
	}

	log := s.log.WithFields(logrus.Fields{
		"method":    "Submit",
		"signature": outcome.Signature.String(),
		"blockhash": outcome.Blockhash.String(),
	})

	start := time.Now()

	_, err := s.client.SubmitTransaction(txn, s.commitment)
	if err != nil {
		var txErr *solana.TransactionError
		if !errors.As(err, &txErr) {
			log.WithError(err).Warn("failed to submit transaction")
			return nil, errors.Wrap(err, "failed to submit transaction")
		}

		if txErr.ErrorKey() == solana.TransactionErrorBlockhashNotFound {
			log.Info("blockhash is stale")
			return nil, staleBlockhashError(outcome)
		}

		log.WithError(txErr).Info("transaction refused at preflight")
		outcome.Kind = OutcomeRejected
		outcome.Err = txErr
		s.record(ctx, outcome, time.Since(start))
		return outcome, nil
	}

	status, err := s.waitForStatus(ctx, outcome.Signature)
	switch {
	case err == nil && status.ErrorResult != nil:
		if status.ErrorResult.ErrorKey() == solana.TransactionErrorBlockhashNotFound {
			log.Info("blockhash expired before execution")
			return nil, staleBlockhashError(outcome)
		}

		log.WithError(status.ErrorResult).Info("transaction failed")
		outcome.Kind = OutcomeRejected
		outcome.Slot = status.Slot
		outcome.Err = status.ErrorResult
	case err == nil:
		log.WithField("slot", status.Slot).Debug("transaction confirmed")
		outcome.Kind = OutcomeConfirmed
		outcome.Slot = status.Slot
	default:
		valid, validErr := s.client.IsBlockhashValid(outcome.Blockhash, s.commitment)
		if validErr != nil {
			log.WithError(validErr).Warn("failed to check blockhash validity")
			// Assume the worst, the transaction may still land.
			valid = true
		}

		log.WithError(err).WithField("blockhash_valid", valid).Info("timed out waiting for confirmation")
		outcome.Kind = OutcomeTimeout
		outcome.BlockhashValid = valid
		if status != nil {
			outcome.Slot = status.Slot
		}
	}

	s.record(ctx, outcome, time.Since(start))
	return outcome, nil
}

// waitForStatus polls until the signature reaches the configured commitment
// or fails. On timeout, the last status seen (if any) is returned with the
// error.
func (s *Submitter) waitForStatus(ctx context.Context, sig solana.Signature) (*solana.SignatureStatus, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var last *solana.SignatureStatus
	_, err := retry.Retry(
		func() error {
			status, err := s.client.GetSignatureStatus(sig)
			if err == solana.ErrSignatureNotFound {
				return errPending
			} else if err != nil {
				s.log.WithError(err).WithField("signature", sig.String()).Warn("failed to get signature status")
				return errPending
			}

			last = status
			if status.ErrorResult != nil || status.Reached(s.commitment) {
				return nil
			}
			return errPending
		},
		retry.RetriableErrors(errPending),
		retry.Context(waitCtx),
		retry.BackoffContext(waitCtx, backoff.Constant(s.pollInterval), s.pollInterval),
	)
	if err != nil {
		return last, err
	}

	return last, nil
}

func (s *Submitter) record(ctx context.Context, outcome *Outcome, latency time.Duration) {
	metrics.RecordCount(ctx, fmt.Sprintf(outcomeCountMetricName, outcome.Kind), 1)
	metrics.RecordDuration(ctx, fmt.Sprintf(confirmationLatencyMetricName, outcome.Kind), latency)
	metrics.RecordEvent(ctx, outcomeEventName, map[string]interface{}{
		"outcome":   outcome.Kind.String(),
		"signature": outcome.Signature.String(),
		"slot":      outcome.Slot,
	})
}
