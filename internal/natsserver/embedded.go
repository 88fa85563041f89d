// Package natsserver runs the in-process NATS server that carries violation
// change events from the API handlers to the live feed.
package natsserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const readyTimeout = 5 * time.Second

// EmbeddedNATS is the server plus the API process's own client connection.
type EmbeddedNATS struct {
	server *server.Server
	conn   *nats.Conn
}

type Config struct {
	Host string
	// Port -1 picks a free port.
	Port int
	// MaxPayload caps one event; violation events are small JSON documents.
	MaxPayload int32
	// MaxPending is the per-client backlog before it is cut as a slow consumer.
	MaxPending int64
}

func DefaultConfig() Config {
	return Config{
		Host:       "127.0.0.1",
		Port:       4222,
		MaxPayload: 256 * 1024,
		MaxPending: 8 * 1024 * 1024,
	}
}

// New starts the server and connects to it. The returned value owns both;
// call Shutdown to release them.
func New(cfg Config) (*EmbeddedNATS, error) {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = def.MaxPayload
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}

	ns, err := server.NewServer(&server.Options{
		Host:          cfg.Host,
		Port:          cfg.Port,
		NoLog:         true,
		NoSigs:        true,
		MaxPayload:    cfg.MaxPayload,
		MaxPending:    cfg.MaxPending,
		WriteDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, errors.New("NATS server did not become ready")
	}

	nc, err := nats.Connect(ns.ClientURL(),
		nats.Name("patrolvision-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	log.WithField("url", ns.ClientURL()).Info("📡 embedded NATS server started")
	return &EmbeddedNATS{server: ns, conn: nc}, nil
}

// Conn is shared by the violation publisher and the feed hub.
func (e *EmbeddedNATS) Conn() *nats.Conn {
	return e.conn
}

func (e *EmbeddedNATS) URL() string {
	return e.server.ClientURL()
}

// Stats is reported on /health.
type Stats struct {
	Clients       int    `json:"clients"`
	Subscriptions uint32 `json:"subscriptions"`
	InMsgs        int64  `json:"inMsgs"`
	OutMsgs       int64  `json:"outMsgs"`
	SlowConsumers int64  `json:"slowConsumers"`
}

func (e *EmbeddedNATS) GetStats() Stats {
	st := Stats{
		Clients:       e.server.NumClients(),
		Subscriptions: e.server.NumSubscriptions(),
	}
	if varz, err := e.server.Varz(nil); err == nil && varz != nil {
		st.InMsgs = varz.InMsgs
		st.OutMsgs = varz.OutMsgs
		st.SlowConsumers = varz.SlowConsumers
	}
	return st
}

// Shutdown drains the client connection before stopping the server so
// in-flight events are delivered.
func (e *EmbeddedNATS) Shutdown() {
	if e.conn != nil {
		if err := e.conn.Drain(); err != nil {
			e.conn.Close()
		}
	}
	if e.server != nil {
		e.server.Shutdown()
		e.server.WaitForShutdown()
	}
	log.Info("📡 NATS server stopped")
}
