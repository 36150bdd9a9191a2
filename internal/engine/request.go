package engine

import (
	"net/http"
	"time"
)

// MaxAttempts is the retry budget before a Request is dead-lettered.
const MaxAttempts = 5

// Outcome is the terminal classification a cycle assigns to a Request.
type Outcome string

const (
	OutcomeProcessed Outcome = "Processed"
	OutcomeSkipped   Outcome = "Skipped"
	OutcomeRequeued  Outcome = "Requeued"
	OutcomeError     Outcome = "Error"
)

// Reserved internal type tags. These never correspond to a remote resource;
// they exist so the pipeline has something to carry through the stages when
// there is no real work (queue empty) or when a stage fails before a real
// Request could be established.
const (
	TypeBlank     = "_blank"
	TypeErrorTrap = "_errorTrap"
)

// Relation describes a typed edge from a resource to an unrelated-owned
// collection of entities (e.g. repo -> collaborators).
type Relation struct {
	Origin string `json:"origin"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// Context carries parent qualifiers and relation/subtype metadata down to
// derived Requests (pagination, collection elements, relation roots).
type Context struct {
	Qualifier string    `json:"qualifier,omitempty"`
	Relation  *Relation `json:"relation,omitempty"`
	SubType   string    `json:"subType,omitempty"`
	Force     bool      `json:"force,omitempty"`
}

// FetchResponse holds the metadata the Fetcher gathered alongside the
// Document payload.
type FetchResponse struct {
	StatusCode       int
	ETag             string
	Headers          http.Header
	LinkHeader       string
	MetadataTemplate map[string]any
}

// Promise is a handle to a side effect (typically a queue enqueue) started
// during processing. The completion protocol waits on every promise a
// Request accumulated before it is acknowledged.
type Promise <-chan error

// Lease is the opaque token returned by a granted lock.
type Lease struct {
	URL   string
	Token string
}

// Policy is attached to every Request at creation time and is carried across
// requeues and derived pagination Requests. It is not an interface: all
// reference bindings in this engine need only these four fields, and a
// concrete struct keeps Requests trivially serialisable.
type Policy struct {
	ShortForm    string   `json:"shortForm"`
	ExcludeTypes []string `json:"excludeTypes,omitempty"`
	MinVersion   int      `json:"minVersion,omitempty"`
	ReadOnly     bool     `json:"readOnly,omitempty"`
}

// Request is the traversal unit that moves through the Crawler pipeline.
type Request struct {
	Type    string  `json:"type"`
	URL     string  `json:"url,omitempty"`
	Context Context `json:"context"`
	Policy  Policy  `json:"policy"`

	AttemptCount int `json:"attemptCount"`

	Document *Document      `json:"-"`
	Response *FetchResponse `json:"-"`

	Outcome Outcome `json:"-"`
	Message string  `json:"-"`

	Meta map[string]any `json:"-"`

	Promises []Promise `json:"-"`

	Lock *Lease `json:"-"`

	Start    time.Time `json:"-"`
	LoopName string    `json:"-"`

	// NextRequestTime is a backpressure signal: the earliest clock at which
	// the owning loop may dequeue its *next* request.
	NextRequestTime time.Time `json:"-"`

	// DeliveryToken is broker-specific redelivery state (e.g. an AMQP
	// delivery tag) preserved across repush where the binding supports it.
	DeliveryToken any `json:"-"`
}

// NewRequest constructs a bare Request ready to be queued.
func NewRequest(typ, url string, policy Policy) *Request {
	return &Request{
		Type:    typ,
		URL:     url,
		Policy:  policy,
		Meta:    map[string]any{},
		Context: Context{},
	}
}

// IsBlank reports whether this is the synthetic "queue was empty" sentinel.
func (r *Request) IsBlank() bool {
	return r.Type == TypeBlank
}

// IsErrorTrap reports whether this is the synthetic sentinel produced when a
// stage fails before any real Request could be established.
func (r *Request) IsErrorTrap() bool {
	return r.Type == TypeErrorTrap
}

// ShouldSkip reports whether a later pipeline stage should pass this Request
// through untouched because an earlier stage already decided its fate.
func (r *Request) ShouldSkip() bool {
	return r.Outcome == OutcomeSkipped || r.Outcome == OutcomeRequeued || r.Outcome == OutcomeError
}

// MarkSkip sets the Skipped outcome with a free-text reason.
func (r *Request) MarkSkip(reason string) {
	r.Outcome = OutcomeSkipped
	r.Message = reason
}

// MarkRequeue sets the Requeued outcome with a free-text reason.
func (r *Request) MarkRequeue(reason string) {
	r.Outcome = OutcomeRequeued
	r.Message = reason
}

// MarkError sets the Error outcome from an error value.
func (r *Request) MarkError(err error) {
	r.Outcome = OutcomeError
	r.Message = err.Error()
}

// SetMeta records a per-stage timing or counter.
func (r *Request) SetMeta(key string, value any) {
	if r.Meta == nil {
		r.Meta = map[string]any{}
	}
	r.Meta[key] = value
}

// GetCollectionType reports whether this Request denotes a collection
// resource (as opposed to a single element), and the element type to use
// when paginating it. A Request whose Context.SubType is set is a
// collection of that element type; a Request of Type "collection" with no
// SubType is a collection with an empty element type. No other type name
// is treated as a collection.
func (r *Request) GetCollectionType() (elementType string, isCollection bool) {
	if r.Context.SubType != "" {
		return r.Context.SubType, true
	}
	switch r.Type {
	case "collection":
		return "", true
	}
	return "", false
}

// IsRootType reports whether a resource type is a top-level, independently
// addressable root entity (as opposed to a sub-resource only reachable
// through a parent).
func IsRootType(t string) bool {
	switch t {
	case "org", "user", "repo", "team", "commit", "issue", "issue_comment":
		return true
	default:
		return false
	}
}

// Queueable is the reduced projection of a Request that crosses the wire to
// the broker. Transient fields (locks, promises, document, response) must
// never be serialised.
type Queueable struct {
	Type         string  `json:"type"`
	URL          string  `json:"url,omitempty"`
	Context      Context `json:"context"`
	Policy       Policy  `json:"policy"`
	AttemptCount int     `json:"attemptCount"`
}

// ToQueueable projects a Request down to its serialisable form.
func (r *Request) ToQueueable() Queueable {
	return Queueable{
		Type:         r.Type,
		URL:          r.URL,
		Context:      r.Context,
		Policy:       r.Policy,
		AttemptCount: r.AttemptCount,
	}
}

// FromQueueable reconstructs a fresh Request from a wire projection.
func FromQueueable(q Queueable) *Request {
	return &Request{
		Type:         q.Type,
		URL:          q.URL,
		Context:      q.Context,
		Policy:       q.Policy,
		AttemptCount: q.AttemptCount,
		Meta:         map[string]any{},
	}
}
