package prtp

import (
	"net"

	"github.com/pkg/errors"

	"github.com/xtaci-labs/prtp/metrics"
)

// ErrHandshakeFailed is returned (wrapped) by ClientHandshake when no valid
// SYN+ACK arrives in time; socket send errors are returned wrapped as
// themselves. The caller is expected to retry the whole session, not the
// handshake step alone.
var ErrHandshakeFailed = errors.New("prtp: handshake failed")

// ClientHandshakeResult carries everything the sender/receiver engines
// need once the handshake completes.
type ClientHandshakeResult struct {
	Peer      net.Addr
	Base      uint32
	RwndBytes int
}

// ClientHandshake runs the initiator side of the three-way handshake
// against peer: SYN → SYN+ACK → ACK. rec may be nil.
func ClientHandshake(cfg Config, ep Endpoint, peer net.Addr, rec metrics.Recorder) (*ClientHandshakeResult, error) {
	if rec == nil {
		rec = metrics.Noop()
	}

	syn := Packet{SeqNum: 0, AckNum: 0, WindowSize: 0, Flags: FlagSYN, Timestamp: nowMillis()}
	if err := ep.Send(peer, syn.Serialize()); err != nil {
		return nil, errors.Wrap(err, "send SYN")
	}
	logHandshake("prtp: sent SYN seq=0")

	buf, _, err := ep.Recv(cfg.HandshakeTimeout)
	if err != nil {
		return nil, errors.Wrapf(ErrHandshakeFailed, "awaiting SYN+ACK: %v", err)
	}
	reply, ok := Deserialize(buf)
	if !ok {
		rec.ChecksumRejected()
		return nil, errors.Wrap(ErrHandshakeFailed, "invalid or corrupt SYN+ACK")
	}
	if !reply.HasFlag(FlagSYN) || !reply.HasFlag(FlagACK) {
		return nil, errors.Wrap(ErrHandshakeFailed, "invalid or corrupt SYN+ACK")
	}
	logHandshake("prtp: received SYN+ACK seq=%d ack=%d window=%d", reply.SeqNum, reply.AckNum, reply.WindowSize)

	rwnd := effectiveRwnd(reply.WindowSize)

	ack := Packet{
		SeqNum:    reply.AckNum,
		AckNum:    reply.SeqNum + 1,
		Flags:     FlagACK,
		Timestamp: nowMillis(),
	}
	if err := ep.Send(peer, ack.Serialize()); err != nil {
		return nil, errors.Wrap(err, "send ACK")
	}
	logHandshake("prtp: sent ACK seq=%d ack=%d", ack.SeqNum, ack.AckNum)

	return &ClientHandshakeResult{
		Peer:      peer,
		Base:      ack.SeqNum,
		RwndBytes: rwnd,
	}, nil
}

// ServerHandshakeResult carries everything the receiver engine needs
// once the handshake completes.
type ServerHandshakeResult struct {
	Peer        net.Addr
	ExpectedSeq uint32
	// LocalSeq is the receiver's own sequence number going into the data
	// phase: the SYN+ACK's SeqNum (always 0) plus one, the same way a
	// SYN consumes a sequence number in the client's numbering.
	LocalSeq uint32
}

// ServerHandshake runs the responder side of the three-way handshake: it
// waits on ep until a valid SYN arrives (returning an error if no datagram
// at all arrives within cfg.ReceiverIdle), replies with SYN+ACK, then
// waits for the client's final ACK. On corruption or absence of that
// final ACK it restarts from awaiting a SYN. rec may be nil.
func ServerHandshake(cfg Config, ep Endpoint, availableWindow int, rec metrics.Recorder) (*ServerHandshakeResult, error) {
	if rec == nil {
		rec = metrics.Noop()
	}

	for {
		buf, from, err := ep.Recv(cfg.ReceiverIdle)
		if err != nil {
			return nil, errors.Wrap(err, "awaiting SYN")
		}
		syn, ok := Deserialize(buf)
		if !ok {
			rec.ChecksumRejected()
			continue // corrupt: silent drop, keep waiting
		}
		if !syn.HasFlag(FlagSYN) {
			continue // not a SYN: silent drop, keep waiting
		}
		logHandshake("prtp: received SYN from %v seq=%d", from, syn.SeqNum)

		synAck := Packet{
			SeqNum:     0,
			AckNum:     syn.SeqNum + 1,
			WindowSize: uint16(clampWindow(availableWindow)),
			Flags:      FlagSYN | FlagACK,
			Timestamp:  nowMillis(),
		}
		if err := ep.Send(from, synAck.Serialize()); err != nil {
			return nil, errors.Wrap(err, "send SYN+ACK")
		}
		logHandshake("prtp: sent SYN+ACK seq=0 ack=%d window=%d", synAck.AckNum, synAck.WindowSize)

		buf, _, err = ep.Recv(cfg.HandshakeTimeout)
		if err != nil {
			logHandshake("prtp: timed out awaiting final ACK, restarting handshake")
			continue
		}
		finalAck, ok := Deserialize(buf)
		if !ok {
			rec.ChecksumRejected()
			logHandshake("prtp: invalid final ACK, restarting handshake")
			continue
		}
		if !finalAck.HasFlag(FlagACK) {
			logHandshake("prtp: invalid final ACK, restarting handshake")
			continue
		}
		logHandshake("prtp: received final ACK seq=%d ack=%d", finalAck.SeqNum, finalAck.AckNum)

		return &ServerHandshakeResult{
			Peer:        from,
			ExpectedSeq: finalAck.AckNum,
			LocalSeq:    synAck.SeqNum + 1,
		}, nil
	}
}

func clampWindow(w int) int {
	if w < 0 {
		return 0
	}
	if w > 0xFFFF {
		return 0xFFFF
	}
	return w
}
