package airdrop

import (
	"context"
	"fmt"

	"github.com/code-payments/spl-airdrop/pkg/metrics"
	"github.com/code-payments/spl-airdrop/pkg/pointer"
)

const (
	metricsComponent = "airdrop.Service"

	destinationSucceededMetricName = "Airdrop_%s_Destination_Succeeded"
	destinationFailedMetricName    = "Airdrop_%s_Destination_Failed"

	runSummaryEventName = "AirdropRunSummary"
)

func recordDestinationOutcome(ctx context.Context, action Action, res *result) {
	name := destinationSucceededMetricName
	if res.failure != nil {
		name = destinationFailedMetricName
	}
	metrics.RecordCount(ctx, fmt.Sprintf(name, action), 1)
}

func recordRunSummary(ctx context.Context, r *Report, total uint64) {
	metrics.RecordEvent(ctx, runSummaryEventName, map[string]any{
		"action":       string(r.Action),
		"destinations": r.Total,
		"succeeded":    r.Succeeded,
		"failed":       len(r.Failed),
		"total_amount": total,
		"shortfall":    shortfall(r),
	})
}

// shortfall sums what failed destinations are missing. A failure with no
// known balance counts in full.
func shortfall(r *Report) uint64 {
	var missing uint64
	for _, f := range r.Failed {
		actual := pointer.Uint64OrDefault(f.Actual, 0)
		if actual < f.Expected {
			missing += f.Expected - actual
		}
	}
	return missing
}
