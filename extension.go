package gobayeux

// MessageExtender defines the interface that extensions are expected to
// implement. Outgoing sees every request message before it is sent and
// Incoming every reply before the session looks at it.
type MessageExtender interface {
	Outgoing(*Message)
	Incoming(*Message)
	Registered(extensionName string, client *BayeuxClient)
	Unregistered()
}
