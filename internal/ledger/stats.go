package ledger

import (
	"context"
	"fmt"
)

// Stats is the dashboard summary. It is derived from the store on every call.
type Stats struct {
	TotalBatches     int    `json:"totalBatches"`
	ActiveFarmers    int    `json:"activeFarmers"`
	HerbVarieties    int    `json:"herbVarieties"`
	VerificationRate string `json:"verificationRate"`
}

// Snapshot scans all batches. A batch counts as verified once it has any
// event beyond genesis.
func (l *Ledger) Snapshot(ctx context.Context) (Stats, error) {
	rows, err := l.store.Summaries(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("scan batches: %w", err)
	}
	farmers := make(map[string]struct{})
	herbs := make(map[string]struct{})
	tracked := 0
	for _, r := range rows {
		farmers[r.FarmerName] = struct{}{}
		herbs[r.HerbType] = struct{}{}
		if r.Events > 1 {
			tracked++
		}
	}
	return Stats{
		TotalBatches:     len(rows),
		ActiveFarmers:    len(farmers),
		HerbVarieties:    len(herbs),
		VerificationRate: rate(tracked, len(rows)),
	}, nil
}

func rate(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
