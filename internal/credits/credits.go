// File: internal/credits/credits.go

// Package credits implements the per-agent soft-currency governor that
// gates reasoning calls. The governor is a pure function of the local
// ledger; no cross-agent communication is involved.
package credits

import (
	"sync"

	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

// CollectiveBonus is the flat credit award for contributing to a
// collective memory.
const CollectiveBonus = 10

// Thresholds configures the tier boundaries.
type Thresholds struct {
	Normal float64 // balance above this is TierNormal
	Low    float64 // balance above this (but <= Normal) is TierLowCompute
}

// Ledger tracks one agent's balance. Safe for concurrent use: the agent
// loop spends while HTTP read handlers snapshot.
type Ledger struct {
	mu sync.Mutex

	balance float64
	earned  float64
	spent   float64

	thresholds      Thresholds
	distressEmitted bool

	log *zap.Logger
}

// Snapshot is an immutable view of the ledger for read endpoints and
// persistence.
type Snapshot struct {
	Balance         float64            `json:"balance"`
	Earned          float64            `json:"earned"`
	Spent           float64            `json:"spent"`
	Tier            schemas.CreditTier `json:"tier"`
	DistressEmitted bool               `json:"distressEmitted"`
}

// NewLedger creates a ledger with the given opening balance.
func NewLedger(initial float64, thresholds Thresholds, logger *zap.Logger) *Ledger {
	return &Ledger{
		balance:    initial,
		thresholds: thresholds,
		log:        logger.Named("credits"),
	}
}

// Tier derives the current tier from the balance.
func (l *Ledger) Tier() schemas.CreditTier {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tierLocked()
}

func (l *Ledger) tierLocked() schemas.CreditTier {
	switch {
	case l.balance > l.thresholds.Normal:
		return schemas.TierNormal
	case l.balance > l.thresholds.Low:
		return schemas.TierLowCompute
	case l.balance > 0:
		return schemas.TierCritical
	default:
		return schemas.TierDead
	}
}

// Spend debits the ledger, 1:1 with tokens charged by the reasoning
// backend. The balance may go negative; the dead tier handles that.
func (l *Ledger) Spend(amount float64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	before := l.tierLocked()
	l.balance -= amount
	l.spent += amount
	after := l.tierLocked()
	if before != after {
		l.log.Warn("Credit tier changed",
			zap.String("from", string(before)),
			zap.String("to", string(after)),
			zap.Float64("balance", l.balance))
	}
}

// EarnEmission credits a successful signal emission. The schedule is
// linear in the producer's confidence: 5 + 10*confidence.
func (l *Ledger) EarnEmission(confidence float64) {
	l.earn(5 + 10*confidence)
}

// EarnCollective credits a contribution to a collective memory.
func (l *Ledger) EarnCollective() {
	l.earn(CollectiveBonus)
}

func (l *Ledger) earn(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance += amount
	l.earned += amount
}

// MarkDistress records that the one-shot distress signal was emitted.
// Returns false if it had already been marked.
func (l *Ledger) MarkDistress() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.distressEmitted {
		return false
	}
	l.distressEmitted = true
	return true
}

// Snapshot returns the current ledger view.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Balance:         l.balance,
		Earned:          l.earned,
		Spent:           l.spent,
		Tier:            l.tierLocked(),
		DistressEmitted: l.distressEmitted,
	}
}

// SetBalance overrides the balance. Used by persistence restore and by
// tests that force a tier.
func (l *Ledger) SetBalance(balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = balance
}
