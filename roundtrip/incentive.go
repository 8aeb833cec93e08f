package roundtrip

import (
	"math/rand"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// Rand picks an index in [0, n). *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// lockedRand makes a *rand.Rand safe for the concurrent fan-out.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

func NewRand() Rand {
	return &lockedRand{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))} //nolint:gosec
}

type IncentiveDrafter interface {
	Draft(anchor Anchor) (*solana.Transaction, solana.PublicKey, error)
}

// IncentiveBuilder builds the tip transfer paid to the relay. The recipient is drawn uniformly
// from the pool on every call.
type IncentiveBuilder struct {
	payer  solana.PublicKey
	pool   []solana.PublicKey
	amount uint64
	rnd    Rand
}

func NewIncentiveBuilder(payer solana.PublicKey, pool []solana.PublicKey, amount uint64, rnd Rand) (*IncentiveBuilder, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyRecipientPool
	}
	if rnd == nil {
		rnd = NewRand()
	}
	return &IncentiveBuilder{
		payer:  payer,
		pool:   append([]solana.PublicKey(nil), pool...),
		amount: amount,
		rnd:    rnd,
	}, nil
}

func (b *IncentiveBuilder) Amount() uint64 {
	return b.amount
}

// Draft builds the unsigned transfer using the anchor blockhash.
func (b *IncentiveBuilder) Draft(anchor Anchor) (*solana.Transaction, solana.PublicKey, error) {
	recipient := b.pool[b.rnd.Intn(len(b.pool))]
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(b.amount, b.payer, recipient).Build(),
		},
		anchor.Blockhash,
		solana.TransactionPayer(b.payer),
	)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	return tx, recipient, nil
}

// Build drafts the transfer and signs it right away.
func (b *IncentiveBuilder) Build(anchor Anchor, signer TransactionSigner) (SignedTransaction, solana.PublicKey, error) {
	tx, recipient, err := b.Draft(anchor)
	if err != nil {
		return "", solana.PublicKey{}, err
	}
	signed, err := signer.SignTransaction(tx)
	if err != nil {
		return "", solana.PublicKey{}, err
	}
	return signed, recipient, nil
}
