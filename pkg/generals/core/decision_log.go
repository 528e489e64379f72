package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

// DecisionRecord is one completed client round, kept for the operator's
// history command and for tests asserting round outcomes.
type DecisionRecord struct {
	RoundID  uuid.UUID
	Asked    types.Order
	Decision types.Order
	Votes    types.Votes
	At       time.Time
}

// DecisionLog holds this peer's own round history in memory only; it is
// never flushed to disk and does not survive a restart.
type DecisionLog struct {
	mutex   sync.RWMutex
	records []DecisionRecord
}

func NewDecisionLog() *DecisionLog {
	return &DecisionLog{}
}

// Set appends a completed round.
func (d *DecisionLog) Set(record DecisionRecord) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.records = append(d.records, record)
	return nil
}

// Get returns every recorded round, oldest first.
func (d *DecisionLog) Get() ([]DecisionRecord, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	out := make([]DecisionRecord, len(d.records))
	copy(out, d.records)
	return out, nil
}
