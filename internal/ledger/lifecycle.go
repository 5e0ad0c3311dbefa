package ledger

import "fmt"

// Status is a supply-chain checkpoint name.
type Status string

const (
	StatusHarvested     Status = "Harvested"
	StatusProcessing    Status = "Processing"
	StatusQualityTested Status = "Quality-Tested"
	StatusPackaged      Status = "Packaged"
	StatusShipped       Status = "Shipped"
	StatusInStore       Status = "In-Store"
)

// DefaultStages is the herb lifecycle in order.
var DefaultStages = []Status{
	StatusHarvested,
	StatusProcessing,
	StatusQualityTested,
	StatusPackaged,
	StatusShipped,
	StatusInStore,
}

// KnownStakeholders lists the roles the front end offers. The list is
// advisory; any non-empty role is accepted.
var KnownStakeholders = []string{"Farmer", "Processor", "Distributor", "Manufacturer", "Retailer", "Laboratory"}

// Lifecycle is an ordered stage vocabulary with an explicit adjacency table.
// A stage may move to any later stage; repeats and regressions are absent
// from the table.
type Lifecycle struct {
	stages []Status
	rank   map[Status]int
	next   map[Status]map[Status]struct{}
}

// NewLifecycle builds the transition table from stages in lifecycle order.
// The first stage must be Harvested since it is the genesis checkpoint.
func NewLifecycle(stages ...Status) (*Lifecycle, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("lifecycle: no stages")
	}
	if stages[0] != StatusHarvested {
		return nil, fmt.Errorf("lifecycle: first stage must be %s, got %q", StatusHarvested, stages[0])
	}
	l := &Lifecycle{
		stages: append([]Status(nil), stages...),
		rank:   make(map[Status]int, len(stages)),
		next:   make(map[Status]map[Status]struct{}, len(stages)),
	}
	for i, s := range stages {
		if s == "" {
			return nil, fmt.Errorf("lifecycle: blank stage at position %d", i)
		}
		if _, dup := l.rank[s]; dup {
			return nil, fmt.Errorf("lifecycle: duplicate stage %q", s)
		}
		l.rank[s] = i
	}
	for i, from := range stages {
		allowed := make(map[Status]struct{}, len(stages)-i-1)
		for _, to := range stages[i+1:] {
			allowed[to] = struct{}{}
		}
		l.next[from] = allowed
	}
	return l, nil
}

// DefaultLifecycle returns the Harvested..In-Store lifecycle.
func DefaultLifecycle() *Lifecycle {
	l, err := NewLifecycle(DefaultStages...)
	if err != nil {
		panic(err)
	}
	return l
}

// Genesis is the status implied by registration.
func (l *Lifecycle) Genesis() Status { return l.stages[0] }

// Known reports whether s belongs to the vocabulary.
func (l *Lifecycle) Known(s Status) bool {
	_, ok := l.rank[s]
	return ok
}

// CanTransition reports whether a batch whose last status is from may record to.
func (l *Lifecycle) CanTransition(from, to Status) bool {
	_, ok := l.next[from][to]
	return ok
}

// Stages returns the vocabulary in lifecycle order.
func (l *Lifecycle) Stages() []Status {
	return append([]Status(nil), l.stages...)
}
