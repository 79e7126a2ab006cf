package core

// Notifier is any service that can post short operational messages to the
// staff chat channel. Calls are fire-and-forget: failures are logged by the
// implementation, never surfaced to the caller.
type Notifier interface {
	SendOperationalMessage(title, body string, isError bool)
}
