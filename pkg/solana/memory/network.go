package memory

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
	compute_budget "github.com/code-payments/tokenfactory-client/pkg/solana/computebudget"
	"github.com/code-payments/tokenfactory-client/pkg/solana/memo"
	"github.com/code-payments/tokenfactory-client/pkg/solana/system"
	"github.com/code-payments/tokenfactory-client/pkg/solana/token"
	"github.com/code-payments/tokenfactory-client/pkg/solana/tokenfactory"
)

const (
	LamportsPerSignature = 5000

	// Matches the default rent parameters of a test validator.
	lamportsPerByteYear    = 3480
	exemptionThresholdYrs  = 2
	accountStorageOverhead = 128
)

// Custom error codes reported by the simulated programs.
const (
	ErrorAccountAlreadyInUse solana.CustomError = 0
	ErrorOwnerMismatch       solana.CustomError = 4
	ErrorOverflow            solana.CustomError = 14
)

// Network is an in memory solana.Client that executes token factory
// instructions against a local ledger. Transactions are checked the way a
// validator's preflight would check them: signatures, blockhash age, fee
// payer funds and instruction execution.
type Network struct {
	mu sync.Mutex

	program ed25519.PublicKey

	slot        uint64
	nonce       uint64
	latest      solana.Blockhash
	blockhashes map[solana.Blockhash]bool
	accounts    map[string]solana.AccountInfo
	statuses    map[solana.Signature]*solana.SignatureStatus
	submitted   []solana.Transaction

	preflight bool
	drop      bool
	hold      bool
}

var _ solana.Client = (*Network)(nil)

// New returns a network that runs the token factory program at program.
func New(program ed25519.PublicKey) *Network {
	n := &Network{
		program:     program,
		slot:        1,
		blockhashes: make(map[solana.Blockhash]bool),
		accounts:    make(map[string]solana.AccountInfo),
		statuses:    make(map[solana.Signature]*solana.SignatureStatus),
		preflight:   true,
	}
	n.rotateBlockhash()
	return n
}

// SetPreflight toggles whether failing transactions are refused at
// submission (the default) or land on the ledger with an error status.
func (n *Network) SetPreflight(enabled bool) {
	n.mu.Lock()
	n.preflight = enabled
	n.mu.Unlock()
}

// SetDropTransactions makes the network accept transactions without ever
// processing them.
func (n *Network) SetDropTransactions(drop bool) {
	n.mu.Lock()
	n.drop = drop
	n.mu.Unlock()
}

// SetHoldConfirmations keeps processed transactions from being confirmed
// until Release is called.
func (n *Network) SetHoldConfirmations(hold bool) {
	n.mu.Lock()
	n.hold = hold
	n.mu.Unlock()
}

// Release finalizes every transaction held back by SetHoldConfirmations.
func (n *Network) Release() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, status := range n.statuses {
		if status.ConfirmationStatus == "processed" {
			status.ConfirmationStatus = "finalized"
			status.Confirmations = nil
		}
	}
}

// ExpireBlockhashes invalidates every blockhash handed out so far.
func (n *Network) ExpireBlockhashes() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for bh := range n.blockhashes {
		n.blockhashes[bh] = false
	}
	n.rotateBlockhash()
}

// SetAccount overwrites the account at address.
func (n *Network) SetAccount(address ed25519.PublicKey, info solana.AccountInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.accounts[string(address)] = cloneAccount(info)
}

// Submitted returns every transaction sent to the network, including the
// ones it refused, in order.
func (n *Network) Submitted() []solana.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]solana.Transaction(nil), n.submitted...)
}

func (n *Network) GetAccountInfo(account ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	info, ok := n.accounts[string(account)]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return cloneAccount(info), nil
}

func (n *Network) GetBalance(account ed25519.PublicKey) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.accounts[string(account)].Lamports, nil
}

func (n *Network) GetLatestBlockhash(_ solana.Commitment) (solana.Blockhash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.latest, nil
}

func (n *Network) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	return rentExemption(size), nil
}

func (n *Network) GetSignatureStatus(sig solana.Signature) (*solana.SignatureStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	status, ok := n.statuses[sig]
	if !ok {
		return nil, solana.ErrSignatureNotFound
	}
	return cloneStatus(status), nil
}

func (n *Network) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	statuses := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		if status, ok := n.statuses[sig]; ok {
			statuses[i] = cloneStatus(status)
		}
	}
	return statuses, nil
}

func (n *Network) GetSlot(_ solana.Commitment) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.slot, nil
}

func (n *Network) GetTokenAccountBalance(account ed25519.PublicKey, _ solana.Commitment) (solana.TokenAmount, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var tokenAccount token.Account
	if !n.unmarshalTokenState(account, &tokenAccount) {
		return solana.TokenAmount{}, solana.ErrNoAccountInfo
	}

	var mint token.Mint
	if !n.unmarshalTokenState(tokenAccount.Mint, &mint) {
		return solana.TokenAmount{}, solana.ErrNoAccountInfo
	}

	return solana.TokenAmount{Amount: tokenAccount.Amount, Decimals: mint.Decimals}, nil
}

func (n *Network) GetTokenSupply(mintAddress ed25519.PublicKey, _ solana.Commitment) (solana.TokenAmount, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var mint token.Mint
	if !n.unmarshalTokenState(mintAddress, &mint) {
		return solana.TokenAmount{}, solana.ErrNoAccountInfo
	}

	return solana.TokenAmount{Amount: mint.Supply, Decimals: mint.Decimals}, nil
}

func (n *Network) IsBlockhashValid(bh solana.Blockhash, _ solana.Commitment) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.blockhashes[bh], nil
}

func (n *Network) RequestAirdrop(account ed25519.PublicKey, lamports uint64, _ solana.Commitment) (solana.Signature, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	info, ok := n.accounts[string(account)]
	if !ok {
		info.Owner = system.ProgramKey
	}
	info.Lamports += lamports
	n.accounts[string(account)] = info

	n.nonce++
	var sig solana.Signature
	first := sha256.Sum256(append([]byte("airdrop"), account...))
	binary.LittleEndian.PutUint64(sig[:8], n.nonce)
	copy(sig[8:], first[:])

	n.slot++
	n.statuses[sig] = &solana.SignatureStatus{
		Slot:               n.slot,
		ConfirmationStatus: "finalized",
	}

	return sig, nil
}

func (n *Network) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sig := txn.Signature()
	n.submitted = append(n.submitted, txn)

	if len(txn.Signatures) == 0 || txn.VerifySignatures() != nil {
		return sig, solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}
	if !n.blockhashes[txn.Message.RecentBlockhash] {
		return sig, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}
	if _, ok := n.statuses[sig]; ok {
		return sig, solana.NewTransactionError(solana.TransactionErrorAlreadyProcessed)
	}

	payer := txn.Message.Accounts[0]
	fee := uint64(len(txn.Signatures)) * LamportsPerSignature
	if n.drop {
		return sig, nil
	}

	ledger := n.cloneLedger()
	if err := debit(ledger, payer, fee); err != nil {
		return sig, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForFee)
	}

	txErr := n.execute(ledger, txn)
	if txErr != nil {
		if n.preflight {
			return sig, txErr
		}

		// Failed transactions still pay their fee.
		feePayer := n.accounts[string(payer)]
		feePayer.Lamports -= fee
		n.accounts[string(payer)] = feePayer
	} else {
		n.accounts = ledger
	}

	n.slot++
	status := &solana.SignatureStatus{
		Slot:               n.slot,
		ErrorResult:        txErr,
		ConfirmationStatus: "finalized",
	}
	if n.hold {
		zero := 0
		status.ConfirmationStatus = "processed"
		status.Confirmations = &zero
	}
	n.statuses[sig] = status

	return sig, nil
}

func (n *Network) execute(ledger map[string]solana.AccountInfo, txn solana.Transaction) *solana.TransactionError {
	for i := range txn.Message.Instructions {
		program := txn.Message.Accounts[txn.Message.Instructions[i].ProgramIndex]

		var err error
		switch {
		case bytes.Equal(program, compute_budget.ProgramKey):
			_, err = compute_budget.DecompileSetComputeUnitPrice(txn.Message, i)
			if err != nil {
				err = instructionErrorKey(solana.InstructionErrorInvalidInstructionData)
			}
		case bytes.Equal(program, memo.ProgramKey):
			if _, err = memo.DecompileMemo(txn.Message, i); err != nil {
				err = instructionErrorKey(solana.InstructionErrorInvalidInstructionData)
			}
		case bytes.Equal(program, n.program):
			err = n.executeTokenFactory(ledger, txn.Message, i)
		default:
			err = instructionErrorKey(solana.InstructionErrorIncorrectProgramID)
		}

		if err != nil {
			return solana.NewInstructionError(i, err)
		}
	}
	return nil
}

func (n *Network) executeTokenFactory(ledger map[string]solana.AccountInfo, m solana.Message, index int) error {
	ix, err := tokenfactory.Decode(m.Instructions[index].Data)
	if err != nil {
		return instructionErrorKey(solana.InstructionErrorInvalidInstructionData)
	}

	switch ix.Kind() {
	case tokenfactory.KindCreateToken:
		decompiled, err := tokenfactory.DecompileCreateToken(m, index, n.program)
		if err != nil {
			return instructionErrorKey(solana.InstructionErrorInvalidArgument)
		}
		return createToken(ledger, decompiled)
	default:
		decompiled, err := tokenfactory.DecompileMint(m, index, n.program)
		if err != nil {
			return instructionErrorKey(solana.InstructionErrorInvalidArgument)
		}
		return mintTo(ledger, decompiled)
	}
}

func createToken(ledger map[string]solana.AccountInfo, ix *tokenfactory.DecompiledCreateToken) error {
	if _, ok := ledger[string(ix.Mint)]; ok {
		return ErrorAccountAlreadyInUse
	}

	rent := rentExemption(token.MintSize)
	if err := debit(ledger, ix.Payer, rent); err != nil {
		return err
	}

	mint := token.Mint{
		MintAuthority: ix.MintAuthority,
		Decimals:      ix.Decimals,
		IsInitialized: true,
	}
	ledger[string(ix.Mint)] = solana.AccountInfo{
		Data:     mint.Marshal(),
		Owner:    token.ProgramKey,
		Lamports: rent,
	}
	return nil
}

func mintTo(ledger map[string]solana.AccountInfo, ix *tokenfactory.DecompiledMint) error {
	mintInfo, ok := ledger[string(ix.Mint)]
	if !ok || !bytes.Equal(mintInfo.Owner, token.ProgramKey) {
		return instructionErrorKey(solana.InstructionErrorUninitializedAccount)
	}

	var mint token.Mint
	if !mint.Unmarshal(mintInfo.Data) || !mint.IsInitialized {
		return instructionErrorKey(solana.InstructionErrorInvalidAccountData)
	}
	if !bytes.Equal(mint.MintAuthority, ix.Payer) {
		return ErrorOwnerMismatch
	}

	var destination token.Account
	destinationInfo, ok := ledger[string(ix.AssociatedTokenAccount)]
	if ok {
		if !destination.Unmarshal(destinationInfo.Data) || !bytes.Equal(destination.Mint, ix.Mint) {
			return instructionErrorKey(solana.InstructionErrorInvalidAccountData)
		}
	} else {
		// The program can only create the payer's own associated account.
		expected, err := token.GetAssociatedAccount(ix.Payer, ix.Mint)
		if err != nil || !bytes.Equal(expected, ix.AssociatedTokenAccount) {
			return instructionErrorKey(solana.InstructionErrorMissingAccount)
		}

		rent := rentExemption(token.AccountSize)
		if err := debit(ledger, ix.Payer, rent); err != nil {
			return err
		}

		destination = token.Account{
			Mint:  ix.Mint,
			Owner: ix.Payer,
			State: token.AccountStateInitialized,
		}
		destinationInfo = solana.AccountInfo{
			Owner:    token.ProgramKey,
			Lamports: rent,
		}
	}

	if mint.Supply+ix.Amount < mint.Supply {
		return ErrorOverflow
	}
	mint.Supply += ix.Amount
	destination.Amount += ix.Amount

	mintInfo.Data = mint.Marshal()
	destinationInfo.Data = destination.Marshal()
	ledger[string(ix.Mint)] = mintInfo
	ledger[string(ix.AssociatedTokenAccount)] = destinationInfo
	return nil
}

func debit(ledger map[string]solana.AccountInfo, account ed25519.PublicKey, lamports uint64) error {
	info := ledger[string(account)]
	if info.Lamports < lamports {
		return instructionErrorKey(solana.InstructionErrorInsufficientFunds)
	}
	info.Lamports -= lamports
	ledger[string(account)] = info
	return nil
}

func (n *Network) unmarshalTokenState(address ed25519.PublicKey, state interface{ Unmarshal([]byte) bool }) bool {
	info, ok := n.accounts[string(address)]
	if !ok || !bytes.Equal(info.Owner, token.ProgramKey) {
		return false
	}
	return state.Unmarshal(info.Data)
}

func (n *Network) rotateBlockhash() {
	n.nonce++

	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], n.nonce)
	n.latest = solana.Blockhash(sha256.Sum256(seed[:]))
	n.blockhashes[n.latest] = true
}

func (n *Network) cloneLedger() map[string]solana.AccountInfo {
	ledger := make(map[string]solana.AccountInfo, len(n.accounts))
	for k, v := range n.accounts {
		ledger[k] = cloneAccount(v)
	}
	return ledger
}

func rentExemption(size uint64) uint64 {
	return (size + accountStorageOverhead) * lamportsPerByteYear * exemptionThresholdYrs
}

func instructionErrorKey(key solana.InstructionErrorKey) error {
	return errors.New(string(key))
}

func cloneAccount(info solana.AccountInfo) solana.AccountInfo {
	info.Data = append([]byte(nil), info.Data...)
	info.Owner = append(ed25519.PublicKey(nil), info.Owner...)
	return info
}

func cloneStatus(status *solana.SignatureStatus) *solana.SignatureStatus {
	clone := *status
	if status.Confirmations != nil {
		c := *status.Confirmations
		clone.Confirmations = &c
	}
	return &clone
}
