package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// RunServer creates a NATS server with JetStream on a random free port,
// storing streams under dir.
func RunServer(dir string) (*server.Server, error) {
	return server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  dir,
	})
}

// SetupJetStream starts an embedded JetStream server for the ACTIVITY and
// ALERTS streams under test. The returned cleanup closes the connection and
// shuts the server down.
func SetupJetStream(t *testing.T) (nats.JetStreamContext, func()) {
	t.Helper()

	s, err := RunServer(t.TempDir())
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("Unable to start NATS server")
	}

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)

	return js, func() {
		nc.Close()
		s.Shutdown()
	}
}
