package backend

import (
	"context"

	"bilancio/internal/amqp"
	"bilancio/internal/ports"
)

// Pinger is implemented by stores that talk to a server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the optional event bus and a cleanup
// function releasing both.
type BackendResult struct {
	Store   ports.Store
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Publisher returns the event bus as a port, or nil when AMQP is off.
func (r *BackendResult) Publisher() ports.EventPublisher {
	if r.Events == nil {
		return nil
	}
	return r.Events
}

// ReadinessChecks lists the dependencies worth probing from /readyz.
func (r *BackendResult) ReadinessChecks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if p, ok := r.Store.(Pinger); ok {
		checks["store"] = p.Ping
	}
	if r.Events != nil {
		checks["amqp"] = r.Events.Ping
	}
	return checks
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresURL string

	// Mongo specific
	MongoURI      string
	MongoDatabase string

	// Memory backend specific
	SeedFile string

	// Event bus, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MongoBackend    BackendType = "mongo"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MongoBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
