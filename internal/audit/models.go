package audit

import (
	"time"

	id "idcapture/pkg/domain"
)

// Event records one thing that happened in an identity flow. Artifacts are
// referenced by digest; image payloads never enter the trail.
type Event struct {
	Timestamp time.Time
	FlowID    id.FlowID
	Action    string
	Step      string
	Purpose   string
	Decision  string
	Reason    string
	Digest    string
}
