package domaindelay

import "time"

// RequestType partitions delay/concurrency bookkeeping within a domain.
// A domain's "default" state also backstops any request type that has no
// per-type override.
type RequestType string

const (
	RequestHTML    RequestType = "html"
	RequestPDF     RequestType = "pdf"
	RequestImage   RequestType = "image"
	RequestAPI     RequestType = "api"
	RequestDefault RequestType = "default"
)

type key struct {
	domain      string
	requestType RequestType
}

// state is the per-(domain,requestType) bookkeeping the manager keeps.
// Grounded on the teacher's pkg/limiter.hostTiming, generalized from a
// per-host key to a (domain,requestType) key and folded into one struct
// (the teacher carried two divergent copies of this type).
type state struct {
	lastAccessAt time.Time
	delay        time.Duration
	permits      chan struct{}
}
