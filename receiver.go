package prtp

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/xtaci-labs/prtp/metrics"
)

// Receiver implements the Go-Back-N receiving side: in-order delivery
// into a byte buffer, cumulative ACK generation with an advertised
// window, silent discard of corrupt segments, and discard of out-of-order
// segments with a re-ACK of the last in-order one.
//
// Not safe for concurrent use from multiple goroutines; a Receiver is
// driven by a single receive loop (see Run).
type Receiver struct {
	cfg Config
	ep  Endpoint
	rec metrics.Recorder

	expectedSeq uint32
	delivered   []byte
	localSeq    uint32

	peer      net.Addr
	connected bool
}

// NewReceiver constructs a receiver whose first expected data sequence
// number is expectedSeq (the client's first data seq, established by the
// handshake), and whose own outbound ACKs carry localSeq as SeqNum (the
// receiver's sequence number coming out of the handshake).
func NewReceiver(cfg Config, ep Endpoint, peer net.Addr, expectedSeq, localSeq uint32, rec metrics.Recorder) *Receiver {
	if rec == nil {
		rec = metrics.Noop()
	}
	return &Receiver{
		cfg:         cfg,
		ep:          ep,
		rec:         rec,
		expectedSeq: expectedSeq,
		localSeq:    localSeq,
		peer:        peer,
		connected:   true,
	}
}

func (r *Receiver) available() int {
	free := r.cfg.MaxBuffer - len(r.delivered)
	if free < 0 {
		free = 0
	}
	return free
}

// HandleSegment processes one already-deserialized, checksum-valid
// segment. Corrupt/short datagrams must never reach this — the caller
// drops them at the codec boundary.
func (r *Receiver) HandleSegment(pkt *Packet) {
	switch {
	case pkt.SeqNum == r.expectedSeq:
		r.delivered = append(r.delivered, pkt.Data...)
		r.rec.BytesDelivered(len(pkt.Data))
		r.sendAck(r.expectedSeq)
		r.expectedSeq++

	case pkt.SeqNum < r.expectedSeq:
		// Duplicate: re-ACK the duplicate's own seq, not expected-1.
		// This is the source's observed behavior (the protocol description Open
		// Question 1) and is harmless — the sender treats it as a
		// stale ACK and ignores it.
		r.sendAck(pkt.SeqNum)

	default: // pkt.SeqNum > r.expectedSeq: gap
		if r.expectedSeq > 0 {
			r.sendAck(r.expectedSeq - 1)
		}
	}
}

func (r *Receiver) sendAck(ackNum uint32) {
	ack := Packet{
		SeqNum:     r.localSeq,
		AckNum:     ackNum,
		WindowSize: uint16(r.available()),
		Flags:      FlagACK,
		Timestamp:  nowMillis(),
	}
	if err := r.ep.Send(r.peer, ack.Serialize()); err != nil {
		logRetransmit("prtp: send ack %d failed: %v", ackNum, err)
	}
}

// Run drives the receive loop until cfg.ReceiverIdle passes with no valid
// datagram, or the socket fails. It returns the bytes delivered in order;
// if the buffer is empty at idle timeout it returns ErrNoData instead.
func (r *Receiver) Run() ([]byte, error) {
	deadline := time.Now().Add(r.cfg.ReceiverIdle)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		poll := r.cfg.RecvPoll
		if poll > remaining {
			poll = remaining
		}

		buf, from, err := r.ep.Recv(poll)
		if err != nil {
			if err == ErrTimeout {
				continue
			}
			r.rec.SessionEnded(string(OutcomeSocketErr))
			return nil, err
		}

		pkt, ok := Deserialize(buf)
		if !ok {
			r.rec.ChecksumRejected()
			continue // corrupt or short: silent drop
		}
		if pkt.HasFlag(FlagSYN) {
			continue // unexpected flags during data phase: silent drop
		}

		r.peer = from
		r.HandleSegment(&pkt)
		deadline = time.Now().Add(r.cfg.ReceiverIdle)
	}

	if len(r.delivered) == 0 {
		r.rec.SessionEnded(string(OutcomeIdleEmpty))
		return nil, ErrNoData
	}
	r.rec.SessionEnded(string(OutcomeComplete))
	return r.delivered, nil
}

// ErrNoData is returned by Receiver.Run when the idle timeout elapses
// before any segment was ever delivered.
var ErrNoData = errors.New("prtp: receiver idle timeout with no data")
