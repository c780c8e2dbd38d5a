package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/code-payments/tokenfactory-client/pkg/rate"
	"github.com/code-payments/tokenfactory-client/pkg/retry"
	"github.com/code-payments/tokenfactory-client/pkg/retry/backoff"
)

const (
	// Reference: https://github.com/solana-labs/solana/blob/71e9958e061493d7545bd28d4ac7a85aaed6ffbb/client/src/rpc_custom_error.rs#L11
	rpcNodeUnhealthyCode = -32005

	invalidParamCode = -32602
)

type Commitment struct {
	Commitment string `json:"commitment"`
}

const (
	confirmationStatusProcessed = "processed"
	confirmationStatusConfirmed = "confirmed"
	confirmationStatusFinalized = "finalized"
)

var (
	CommitmentProcessed = Commitment{Commitment: confirmationStatusProcessed}
	CommitmentConfirmed = Commitment{Commitment: confirmationStatusConfirmed}
	CommitmentFinalized = Commitment{Commitment: confirmationStatusFinalized}
)

// CommitmentFromString parses a commitment level name.
func CommitmentFromString(s string) (Commitment, error) {
	switch s {
	case confirmationStatusProcessed:
		return CommitmentProcessed, nil
	case confirmationStatusConfirmed:
		return CommitmentConfirmed, nil
	case confirmationStatusFinalized:
		return CommitmentFinalized, nil
	}
	return Commitment{}, errors.Errorf("unknown commitment %q", s)
}

var (
	ErrNoAccountInfo     = errors.New("no account info")
	ErrSignatureNotFound = errors.New("signature not found")
)

// AccountInfo contains the Solana account information (not to be confused with a TokenAccount)
type AccountInfo struct {
	Data       []byte
	Owner      ed25519.PublicKey
	Lamports   uint64
	Executable bool
}

type SignatureStatus struct {
	Slot        uint64
	ErrorResult *TransactionError

	// Confirmations will be nil if the transaction has been rooted.
	Confirmations      *int
	ConfirmationStatus string
}

func (s SignatureStatus) Confirmed() bool {
	if s.Finalized() {
		return true
	}

	if s.ConfirmationStatus == confirmationStatusConfirmed {
		return true
	}

	return *s.Confirmations >= 1
}

func (s SignatureStatus) Finalized() bool {
	return s.Confirmations == nil || s.ConfirmationStatus == confirmationStatusFinalized
}

// Reached reports whether the status satisfies the commitment level.
func (s SignatureStatus) Reached(commitment Commitment) bool {
	switch commitment {
	case CommitmentConfirmed:
		return s.Confirmed()
	case CommitmentFinalized:
		return s.Finalized()
	}
	return true
}

// Client provides an interaction with the Solana JSON RPC API.
//
// Reference: https://docs.solana.com/apps/jsonrpc-api
type Client interface {
	GetAccountInfo(ed25519.PublicKey, Commitment) (AccountInfo, error)
	GetBalance(ed25519.PublicKey) (uint64, error)
	GetLatestBlockhash(Commitment) (Blockhash, error)
	GetMinimumBalanceForRentExemption(size uint64) (lamports uint64, err error)
	GetSignatureStatus(Signature) (*SignatureStatus, error)
	GetSignatureStatuses([]Signature) ([]*SignatureStatus, error)
	GetSlot(Commitment) (uint64, error)
	GetTokenAccountBalance(ed25519.PublicKey, Commitment) (TokenAmount, error)
	GetTokenSupply(ed25519.PublicKey, Commitment) (TokenAmount, error)
	IsBlockhashValid(Blockhash, Commitment) (bool, error)
	RequestAirdrop(ed25519.PublicKey, uint64, Commitment) (Signature, error)

	// SubmitTransaction sends the transaction with preflight simulation
	// enabled. A transaction the ledger refuses comes back as a
	// *TransactionError.
	SubmitTransaction(Transaction, Commitment) (Signature, error)
}

var (
	errRateLimited  = errors.New("rate limited")
	errServiceError = errors.New("service error")
)

type client struct {
	log     *logrus.Entry
	client  jsonrpc.RPCClient
	retrier retry.Retrier
	limiter rate.Limiter
}

// New returns a client using the specified endpoint.
func New(endpoint string) Client {
	return NewWithRPCOptions(endpoint, nil)
}

// NewWithRPCOptions returns a client configured with the specified RPC options.
func NewWithRPCOptions(endpoint string, opts *jsonrpc.RPCClientOpts) Client {
	return NewWithLimiter(endpoint, opts, &rate.NoLimiter{})
}

// NewWithLimiter returns a client whose requests, retries included, are paced
// by limiter.
func NewWithLimiter(endpoint string, opts *jsonrpc.RPCClientOpts, limiter rate.Limiter) Client {
	return &client{
		log:    logrus.StandardLogger().WithField("type", "solana/client"),
		client: jsonrpc.NewClientWithOpts(endpoint, opts),
		retrier: retry.NewRetrier(
			retry.RetriableErrors(errRateLimited, errServiceError),
			retry.Limit(3),
			retry.BackoffWithJitter(backoff.BinaryExponential(time.Second), 10*time.Second, 0.1),
		),
		limiter: limiter,
	}
}

func (c *client) call(out interface{}, method string, params ...interface{}) error {
	_, err := c.retrier.Retry(func() error {
		if err := c.limiter.Wait(context.Background(), "rpc"); err != nil {
			return err
		}

		err := c.client.CallFor(out, method, params...)
		if err == nil {
			return nil
		}

		return c.handleRpcError(method, err)
	})

	return err
}

func (c *client) handleRpcError(method string, err error) error {
	if httpErr, ok := err.(*jsonrpc.HTTPError); ok {
		if httpErr.Code == http.StatusTooManyRequests {
			c.log.WithField("method", method).Warn("rate limited")
			return errRateLimited
		}
		if httpErr.Code >= 500 {
			return errServiceError
		}
		return err
	}

	rpcErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return err
	}
	if rpcErr.Code == http.StatusTooManyRequests {
		c.log.WithField("method", method).Warn("rate limited")
		return errRateLimited
	}
	if rpcErr.Code >= 500 || rpcErr.Code == rpcNodeUnhealthyCode {
		return errServiceError
	}

	return err
}

func isInvalidParam(err error) bool {
	rpcErr, ok := errors.Cause(err).(*jsonrpc.RPCError)
	return ok && rpcErr.Code == invalidParamCode
}

func (c *client) GetMinimumBalanceForRentExemption(dataSize uint64) (lamports uint64, err error) {
	if err := c.call(&lamports, "getMinimumBalanceForRentExemption", dataSize); err != nil {
		return 0, errors.Wrapf(err, "getMinimumBalanceForRentExemption() failed to send request")
	}

	return lamports, nil
}

func (c *client) GetSlot(commitment Commitment) (slot uint64, err error) {
	// note: we have to wrap the commitment in an []interface{} otherwise the
	//       solana RPC node complains. Technically this is a violation of the
	//       JSON RPC v2.0 standard.
	if err := c.call(&slot, "getSlot", []interface{}{commitment}); err != nil {
		return 0, errors.Wrapf(err, "getSlot() failed to send request")
	}

	return slot, nil
}

func (c *client) GetLatestBlockhash(commitment Commitment) (hash Blockhash, err error) {
	var resp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(&resp, "getLatestBlockhash", []interface{}{commitment}); err != nil {
		return hash, errors.Wrapf(err, "getLatestBlockhash() failed to send request")
	}

	hashBytes, err := base58.Decode(resp.Value.Blockhash)
	if err != nil {
		return hash, errors.Wrap(err, "invalid base58 encoded hash in response")
	}
	if len(hashBytes) != len(hash) {
		return hash, errors.Errorf("invalid blockhash length %d in response", len(hashBytes))
	}

	copy(hash[:], hashBytes)
	return hash, nil
}

func (c *client) IsBlockhashValid(hash Blockhash, commitment Commitment) (bool, error) {
	var resp struct {
		Value bool `json:"value"`
	}
	if err := c.call(&resp, "isBlockhashValid", hash.String(), commitment); err != nil {
		return false, errors.Wrapf(err, "isBlockhashValid() failed to send request")
	}

	return resp.Value, nil
}

func (c *client) GetBalance(account ed25519.PublicKey) (uint64, error) {
	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(&resp, "getBalance", base58.Encode(account), CommitmentProcessed); err != nil {
		if isInvalidParam(err) {
			return 0, ErrNoAccountInfo
		}
		return 0, errors.Wrapf(err, "getBalance() failed to send request")
	}

	return resp.Value, nil
}

type rpcTokenAmount struct {
	Amount   string `json:"amount"`   // example: "49801500000",
	Decimals uint8  `json:"decimals"` // example: 5,
}

func (a rpcTokenAmount) toTokenAmount() (TokenAmount, error) {
	amount, err := strconv.ParseUint(a.Amount, 10, 64)
	if err != nil {
		return TokenAmount{}, errors.Wrapf(err, "invalid token amount %q in response", a.Amount)
	}
	return TokenAmount{Amount: amount, Decimals: a.Decimals}, nil
}

func (c *client) GetTokenAccountBalance(account ed25519.PublicKey, commitment Commitment) (TokenAmount, error) {
	var resp struct {
		Value *rpcTokenAmount `json:"value"`
	}
	if err := c.call(&resp, "getTokenAccountBalance", base58.Encode(account), commitment); err != nil {
		if isInvalidParam(err) {
			return TokenAmount{}, ErrNoAccountInfo
		}
		return TokenAmount{}, errors.Wrapf(err, "getTokenAccountBalance() failed to send request")
	}
	if resp.Value == nil {
		return TokenAmount{}, ErrNoAccountInfo
	}

	return resp.Value.toTokenAmount()
}

func (c *client) GetTokenSupply(mint ed25519.PublicKey, commitment Commitment) (TokenAmount, error) {
	var resp struct {
		Value *rpcTokenAmount `json:"value"`
	}
	if err := c.call(&resp, "getTokenSupply", base58.Encode(mint), commitment); err != nil {
		if isInvalidParam(err) {
			return TokenAmount{}, ErrNoAccountInfo
		}
		return TokenAmount{}, errors.Wrapf(err, "getTokenSupply() failed to send request")
	}
	if resp.Value == nil {
		return TokenAmount{}, ErrNoAccountInfo
	}

	return resp.Value.toTokenAmount()
}

func (c *client) SubmitTransaction(txn Transaction, commitment Commitment) (Signature, error) {
	sig := txn.Signature()

	raw, err := txn.Encode()
	if err != nil {
		return sig, err
	}

	config := struct {
		Encoding            string `json:"encoding"`
		SkipPreflight       bool   `json:"skipPreflight"`
		PreflightCommitment string `json:"preflightCommitment"`
	}{
		Encoding:            "base64",
		SkipPreflight:       false,
		PreflightCommitment: commitment.Commitment,
	}

	var sigStr string
	err = c.call(&sigStr, "sendTransaction", base64.StdEncoding.EncodeToString(raw), config)
	if err == nil {
		return sig, nil
	}

	jsonRPCErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return sig, errors.Wrapf(err, "sendTransaction() failed to send request")
	}

	txErr, parseErr := ParseRPCError(jsonRPCErr)
	if parseErr != nil {
		c.log.WithError(parseErr).WithField("signature", sig.String()).Warn("failed to parse sendTransaction error")
		return sig, errors.Wrap(err, "sendTransaction() failed")
	}
	if txErr != nil {
		return sig, txErr
	}

	return sig, errors.Wrap(err, "sendTransaction() failed")
}

func (c *client) GetAccountInfo(account ed25519.PublicKey, commitment Commitment) (accountInfo AccountInfo, err error) {
	type rpcResponse struct {
		Value *struct {
			Lamports   uint64   `json:"lamports"`
			Owner      string   `json:"owner"`
			Data       []string `json:"data"`
			Executable bool     `json:"executable"`
		} `json:"value"`
	}

	rpcConfig := struct {
		Commitment string `json:"commitment"`
		Encoding   string `json:"encoding"`
	}{
		Commitment: commitment.Commitment,
		Encoding:   "base64",
	}

	var resp rpcResponse
	if err := c.call(&resp, "getAccountInfo", base58.Encode(account), rpcConfig); err != nil {
		return accountInfo, errors.Wrap(err, "getAccountInfo() failed to send request")
	}

	if resp.Value == nil {
		return accountInfo, ErrNoAccountInfo
	}

	accountInfo.Owner, err = base58.Decode(resp.Value.Owner)
	if err != nil {
		return accountInfo, errors.Wrap(err, "invalid base58 encoded owner")
	}

	if len(resp.Value.Data) == 0 {
		return accountInfo, errors.New("missing account data in response")
	}
	accountInfo.Data, err = base64.StdEncoding.DecodeString(resp.Value.Data[0])
	if err != nil {
		return accountInfo, errors.Wrap(err, "invalid base64 encoded data")
	}

	accountInfo.Lamports = resp.Value.Lamports
	accountInfo.Executable = resp.Value.Executable

	return accountInfo, nil
}

func (c *client) RequestAirdrop(account ed25519.PublicKey, lamports uint64, commitment Commitment) (Signature, error) {
	var sigStr string
	if err := c.call(&sigStr, "requestAirdrop", base58.Encode(account), lamports, commitment); err != nil {
		return Signature{}, errors.Wrapf(err, "requestAirdrop() failed to send request")
	}

	sig, err := signatureFromBase58(sigStr)
	if err != nil {
		return Signature{}, err
	}
	if sig == (Signature{}) {
		return Signature{}, errors.New("empty signature returned")
	}

	return sig, nil
}

// GetSignatureStatus looks up a single signature. ErrSignatureNotFound is
// returned while the ledger has not seen it.
func (c *client) GetSignatureStatus(sig Signature) (*SignatureStatus, error) {
	statuses, err := c.GetSignatureStatuses([]Signature{sig})
	if err != nil {
		return nil, err
	}

	if len(statuses) == 0 || statuses[0] == nil {
		return nil, ErrSignatureNotFound
	}

	return statuses[0], nil
}

func (c *client) GetSignatureStatuses(sigs []Signature) ([]*SignatureStatus, error) {
	b58Sigs := make([]string, len(sigs))
	for i := range sigs {
		b58Sigs[i] = sigs[i].String()
	}

	req := struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}{
		SearchTransactionHistory: true,
	}

	type signatureStatus struct {
		Slot               uint64          `json:"slot"`
		Confirmations      *int            `json:"confirmations"`
		ConfirmationStatus string          `json:"confirmationStatus"`
		Err                json.RawMessage `json:"err"`
	}

	var resp struct {
		Value []*signatureStatus `json:"value"`
	}
	if err := c.call(&resp, "getSignatureStatuses", b58Sigs, req); err != nil {
		return nil, errors.Wrap(err, "getSignatureStatuses() failed to send request")
	}
	if len(resp.Value) > len(sigs) {
		return nil, errors.Errorf("received %d statuses for %d signatures", len(resp.Value), len(sigs))
	}

	statuses := make([]*SignatureStatus, len(sigs))
	for i, v := range resp.Value {
		if v == nil {
			continue
		}

		statuses[i] = &SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			ConfirmationStatus: v.ConfirmationStatus,
		}

		if len(v.Err) > 0 && string(v.Err) != "null" {
			var txError interface{}
			if err := json.Unmarshal(v.Err, &txError); err != nil {
				return nil, errors.Wrap(err, "failed to parse transaction result")
			}

			var err error
			statuses[i].ErrorResult, err = ParseTransactionError(txError)
			if err != nil {
				return nil, errors.Wrap(err, "failed to parse transaction result")
			}
		}
	}

	return statuses, nil
}

func signatureFromBase58(s string) (sig Signature, err error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return sig, errors.Wrap(err, "invalid base58 signature")
	}
	if len(raw) != len(sig) {
		return sig, errors.Errorf("invalid signature length %d", len(raw))
	}

	copy(sig[:], raw)
	return sig, nil
}
