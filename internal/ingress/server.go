// Package ingress implements the MO listener: a TCP server
// that admits only a single configured upstream source IP, decodes one
// framed protocol message per connection, persists it, enqueues
// process_mo, and always responds with a confirmation.
package ingress

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rorsat-ltd/kosmos/internal/jobs"
	"github.com/rorsat-ltd/kosmos/internal/mq"
	"github.com/rorsat-ltd/kosmos/internal/store"
	"github.com/rorsat-ltd/kosmos/internal/wire"
)

// Config configures the listener's bind address and admission policy.
type Config struct {
	ListenAddress string
	NAT64Prefix   *net.IPNet
	UpstreamIP    net.IP
}

// moInserter is the slice of *store.Store the ingress server needs,
// narrowed to an interface so package tests can substitute a fake.
type moInserter interface {
	InsertMOMessage(ctx context.Context, m store.MOMessage) error
}

// Server is the MO ingress TCP listener.
type Server struct {
	cfg   Config
	store moInserter
	queue mq.Queue
	log   zerolog.Logger
}

// New builds a Server.
func New(cfg Config, s *store.Store, q mq.Queue, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, store: s, queue: q, log: log}
}

// Run accepts connections until ctx is cancelled, spawning one
// goroutine per connection so a slow or stalled peer never blocks
// others.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return err
	}
	defer ln.Close()

	return s.Serve(ctx, ln)
}

// Serve runs the accept loop against an already-bound listener, used
// directly by tests that need to know the bound port ahead of time.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("address", ln.Addr().String()).Msg("listening for SBD MO connections")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error().Err(err).Msg("failed to accept mo connection")
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	peer, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		s.log.Warn().Err(err).Msg("could not parse peer address")
		return
	}
	peerIP := net.ParseIP(peer)
	if peerIP == nil || !admit(peerIP, s.cfg.NAT64Prefix, s.cfg.UpstreamIP) {
		s.log.Warn().Str("peer", peer).Msg("rejecting connection from unadmitted peer")
		return
	}

	pm, err := wire.ReadProtocolMessage(conn)
	accepted := err == nil

	if accepted {
		mo, parseErr := wire.ParseMOMessage(pm)
		if parseErr != nil {
			accepted = false
		} else if insertErr := s.persist(ctx, mo); insertErr != nil {
			s.log.Error().Err(insertErr).Msg("failed to persist mo message")
			accepted = false
		}
	} else {
		s.log.Warn().Err(err).Msg("failed to decode mo frame")
	}

	confirmation := wire.ConfirmationMessage(accepted)
	if _, err := confirmation.WriteTo(conn); err != nil {
		s.log.Warn().Err(err).Msg("failed to write mo confirmation")
	}
}

func (s *Server) persist(ctx context.Context, mo wire.MOMessage) error {
	id := uuid.New()
	row := store.MOMessage{
		ID:               id,
		CDRReference:     mo.Header.CDRReference,
		IMEI:             mo.Header.IMEI,
		SessionStatus:    sessionStatusFromWire(mo.Header.SessionStatus),
		MOMSN:            mo.Header.MOMSN,
		MTMSN:            mo.Header.MTMSN,
		TimeOfSession:    mo.Header.TimeOfSession,
		Data:             mo.Payload,
		ProcessingStatus: store.ProcessingReceived,
		Received:         time.Now().UTC(),
	}

	if mo.Location != nil {
		lat, lon, cep := mo.Location.Latitude, mo.Location.Longitude, mo.Location.CEPRadius
		row.Latitude = &lat
		row.Longitude = &lon
		row.CEPRadius = &cep
	}

	if err := s.store.InsertMOMessage(ctx, row); err != nil {
		return err
	}

	body, err := json.Marshal(struct {
		ID uuid.UUID `json:"id"`
	}{ID: id})
	if err != nil {
		return err
	}

	return jobs.Enqueue(ctx, s.queue, mq.KindProcessMO, body)
}

func sessionStatusFromWire(s wire.SessionStatus) store.SessionStatus {
	switch s {
	case wire.SessionSuccessful:
		return store.SessionStatusSuccessful
	case wire.SessionSuccessfulTooLarge:
		return store.SessionStatusSuccessfulTooLarge
	case wire.SessionSuccessfulUnacceptableLocation:
		return store.SessionStatusSuccessfulUnacceptableLocation
	case wire.SessionTimeout:
		return store.SessionStatusTimeout
	case wire.SessionTooLarge:
		return store.SessionStatusTooLarge
	case wire.SessionRFLinkLost:
		return store.SessionStatusRFLinkLost
	case wire.SessionProtocolAnomaly:
		return store.SessionStatusProtocolAnomaly
	case wire.SessionIMEIBlocked:
		return store.SessionStatusIMEIBlocked
	default:
		return store.SessionStatusProtocolAnomaly
	}
}
