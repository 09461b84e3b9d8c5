package natsbridge

import (
	"fmt"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer wraps an in-process NATS server, for tests that want a
// real NATS deployment without an external dependency.
type EmbeddedServer struct {
	server *server.Server
	url    string
}

// StartEmbeddedServer starts an embedded NATS server on a random port.
func StartEmbeddedServer() (*EmbeddedServer, error) {
	opts := &server.Options{
		Host: "127.0.0.1",
		Port: -1,
	}

	s, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("natsbridge: create embedded server: %w", err)
	}

	go s.Start()

	if !s.ReadyForConnections(5e9) {
		return nil, fmt.Errorf("natsbridge: embedded server not ready")
	}

	return &EmbeddedServer{server: s, url: s.ClientURL()}, nil
}

// URL returns the connection URL for the embedded server.
func (e *EmbeddedServer) URL() string {
	return e.url
}

// Shutdown stops the embedded server.
func (e *EmbeddedServer) Shutdown() {
	if e.server != nil {
		e.server.Shutdown()
		e.server.WaitForShutdown()
	}
}
