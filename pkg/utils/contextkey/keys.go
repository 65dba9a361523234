package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

// Only request correlation ids travel in the context. The acting user is always
// an explicit argument of service calls.
const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
)
