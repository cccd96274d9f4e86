package synth

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedNATS is a NATS server running in this process, so that serve
// mode can offer the NATS transport without an external broker.
type EmbeddedNATS struct {
	ns     *server.Server
	logger *log.Logger
}

// StartEmbeddedNATS starts a server on host:port. Port -1 picks a free
// port.
func StartEmbeddedNATS(host string, port int, logger *log.Logger) (*EmbeddedNATS, error) {
	if logger == nil {
		logger = log.WithPrefix("nats-server")
	}
	ns, err := server.NewServer(&server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within 5 seconds")
	}
	logger.Info("embedded NATS server started", "url", ns.ClientURL())
	return &EmbeddedNATS{ns: ns, logger: logger}, nil
}

// ClientURL is the URL clients connect to.
func (e *EmbeddedNATS) ClientURL() string { return e.ns.ClientURL() }

// Shutdown stops the server and waits for it to exit.
func (e *EmbeddedNATS) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.logger.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
