package audit

import (
	"context"

	id "idcapture/pkg/domain"
)

// Store persists the trail of every flow in append order.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByFlow(ctx context.Context, flowID id.FlowID) ([]Event, error)
}
