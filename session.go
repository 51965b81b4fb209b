package prtp

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/xtaci-labs/prtp/metrics"
)

// SessionID is a local-only identifier minted once a handshake completes,
// used to correlate log lines, metrics labels, and recent-session cache
// entries across a session's lifetime. It is never placed on the wire.
type SessionID = xid.ID

// ClientSession is one established, client-initiated PRTP connection.
type ClientSession struct {
	ID     SessionID
	Sender *Sender
	ep     Endpoint
	peer   net.Addr
	done   chan struct{}
}

// DialSession performs the handshake against raddr and returns a ready
// ClientSession. The caller owns ep's goroutine-driven ACK pump via
// RunAckPump, and must call Close when finished.
func DialSession(cfg Config, ep Endpoint, raddr string, rec metrics.Recorder) (*ClientSession, error) {
	peer, err := net.ResolveUDPAddr("udp", raddr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve peer address")
	}

	result, err := ClientHandshake(cfg, ep, peer, rec)
	if err != nil {
		return nil, err
	}

	id := xid.New()
	logSessionEnd("prtp: session %s established with %v", id, peer)

	sender := NewSender(cfg, ep, peer, result.Base, rec)
	sender.rwndBytes = result.RwndBytes

	return &ClientSession{
		ID:     id,
		Sender: sender,
		ep:     ep,
		peer:   peer,
		done:   make(chan struct{}),
	}, nil
}

// RunAckPump drains ACKs from ep and feeds them to the sender until Close
// is called or the socket fails fatally. Run it in its own goroutine
// concurrently with Sender.Send.
func (s *ClientSession) RunAckPump(cfg Config) {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		buf, _, err := s.ep.Recv(cfg.RecvPoll)
		if err != nil {
			if err == ErrTimeout {
				continue
			}
			return
		}
		pkt, ok := Deserialize(buf)
		if !ok {
			continue
		}
		s.Sender.HandleAck(&pkt)
	}
}

// Close stops the ACK pump and the sender.
func (s *ClientSession) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.Sender.Stop()
	return s.ep.Close()
}

// ServerSession is one established, server-accepted PRTP connection.
type ServerSession struct {
	ID       SessionID
	Receiver *Receiver
	Peer     net.Addr
	Started  time.Time
}

// AcceptSession blocks until a client completes the handshake with this
// endpoint, then returns a ready ServerSession. It returns an error if no
// datagram arrives within cfg.ReceiverIdle while awaiting a SYN.
func AcceptSession(cfg Config, ep Endpoint, rec metrics.Recorder) (*ServerSession, error) {
	result, err := ServerHandshake(cfg, ep, cfg.MaxBuffer, rec)
	if err != nil {
		return nil, err
	}

	id := xid.New()
	logSessionEnd("prtp: session %s accepted from %v", id, result.Peer)

	return &ServerSession{
		ID:       id,
		Receiver: NewReceiver(cfg, ep, result.Peer, result.ExpectedSeq, result.LocalSeq, rec),
		Peer:     result.Peer,
		Started:  time.Now(),
	}, nil
}
