package classifier

// FailureKind separates errors reported by the classifier from errors on the
// way to it.
type FailureKind string

const (
	FailureAPI       FailureKind = "api"
	FailureTransport FailureKind = "transport"
)

const (
	UnknownLabel = "unknown"

	MessageConnectionFailed = "Connection failed. Check your internet"
	MessageTimeout          = "Request timed out"
	genericErrorPrefix      = "Error: "
)

// Result is the outcome of one upload: either a label or a failure message.
type Result struct {
	Label   string
	Kind    FailureKind
	Message string
}

func Success(label string) Result {
	return Result{Label: label}
}

func Failure(kind FailureKind, message string) Result {
	return Result{Kind: kind, Message: message}
}

func (r Result) OK() bool {
	return r.Kind == ""
}
