package publisher

// Publisher represents a service for publishing accepted records
type Publisher interface {
	// Publish publishes a message keyed by the listing URL
	Publish(key string, message []byte) error

	// Close closes the publisher connection
	Close() error
}
