package worker

// Control message types accepted by the worker.
const (
	// MessageSkipWaiting requests immediate activation without waiting
	// for in-flight clients to drain.
	MessageSkipWaiting = "SKIP_WAITING"
	// MessageGetVersion requests the current version string on the
	// message's reply channel.
	MessageGetVersion = "GET_VERSION"
	// MessageCleanCache requests an immediate purge of all non-current
	// stores.
	MessageCleanCache = "CLEAN_CACHE"
	// MessageVersion is the reply type for MessageGetVersion.
	MessageVersion = "VERSION"
)

// Message is a control-channel message. Unknown types are ignored; a
// malformed message never crashes the worker.
type Message struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`

	// Reply carries the response for query messages. The worker sends
	// without blocking, so the channel must be buffered or already
	// drained by a receiver.
	Reply chan<- Message `json:"-"`
}
