package publish

// Class buckets an HTTP status code by how a retry loop should react to it.
type Class int

const (
	// ClassPermanent failures cannot be helped by retrying: the request was
	// malformed, rejected for auth/permission reasons, or targets a missing
	// resource.
	ClassPermanent Class = iota
	// ClassRateLimit failures may be retried after an extended wait.
	ClassRateLimit
	// ClassTransient failures are server faults expected to clear.
	ClassTransient
	// ClassUnknown covers unrecognized codes; retried like transient faults
	// since giving up on them silently would mask recoverable ones.
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassRateLimit:
		return "rate_limit"
	case ClassTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Classify maps an HTTP status code to its retry class. Every retry loop in
// the system consults this one mapping.
func Classify(status int) Class {
	switch {
	case status == 400 || status == 403 || status == 404:
		return ClassPermanent
	case status == 429:
		return ClassRateLimit
	case status >= 500 && status <= 599:
		return ClassTransient
	default:
		return ClassUnknown
	}
}
