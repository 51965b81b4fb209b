package prtp

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci-labs/prtp/metrics"
)

// outstandingSegment is one entry of the sender's retransmission buffer.
type outstandingSegment struct {
	pkt      Packet
	lastSent time.Time
	valid    bool
}

// Sender drives the Go-Back-N sliding window: it splits application bytes
// into MSS-sized segments, keeps them in a ring buffer indexed by
// seq-base until cumulatively acknowledged, and retransmits the whole
// window on a single timer's timeout. All fields below are guarded by mu;
// the progress loop (Send) and the ACK-receive loop (run via
// HandleAck, driven by the caller's recv loop) both acquire it for
// every read-modify-write burst, matching the two-context model in
// the protocol description.
type Sender struct {
	cfg  Config
	ep   Endpoint
	peer net.Addr
	rec  metrics.Recorder

	mu sync.Mutex

	base    uint32
	nextSeq uint32
	total   uint32 // one past the last sequence number of this transfer

	buf      []outstandingSegment // ring buffer, index = (seq - bufBase) % len(buf)
	bufBase  uint32

	cwndCtl   *aimd
	rwndBytes int

	timerRunning bool
	timerStart   time.Time

	running bool
}

// NewSender constructs a sender bound to an already-handshaken peer.
// base is the first data sequence number to use (see handshake §4.C).
func NewSender(cfg Config, ep Endpoint, peer net.Addr, base uint32, rec metrics.Recorder) *Sender {
	if rec == nil {
		rec = metrics.Noop()
	}
	maxInFlight := cfg.MaxWindowSegs
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Sender{
		cfg:       cfg,
		ep:        ep,
		peer:      peer,
		rec:       rec,
		base:      base,
		nextSeq:   base,
		bufBase:   base,
		buf:       make([]outstandingSegment, maxInFlight*4),
		cwndCtl:   newAIMD(cfg),
		rwndBytes: defaultWindowOnZero,
		running:   true,
	}
}

func (s *Sender) slot(seq uint32) *outstandingSegment {
	idx := int(seq-s.bufBase) % len(s.buf)
	return &s.buf[idx]
}

// effectiveWindow returns min(floor(cwnd), floor(rwnd/MSS), maxWindowSegs).
func (s *Sender) effectiveWindow() int {
	w := s.cwndCtl.window()
	if byMSS := s.rwndBytes / s.cfg.MSS; byMSS < w {
		w = byMSS
	}
	if s.cfg.MaxWindowSegs < w {
		w = s.cfg.MaxWindowSegs
	}
	if w < 0 {
		w = 0
	}
	return w
}

// Send transmits data as a sequence of segments using Go-Back-N, blocking
// until every segment has been cumulatively acknowledged. The caller must
// be running HandleAck (typically in its own goroutine) concurrently to
// drain incoming ACKs for the duration of this call.
func (s *Sender) Send(data []byte) error {
	if s.ep == nil {
		return errNotConnected
	}
	chunks := chunk(data, s.cfg.MSS)

	s.mu.Lock()
	s.total = s.base + uint32(len(chunks))
	s.mu.Unlock()

	if len(chunks) == 0 {
		return nil
	}

	for {
		s.mu.Lock()
		done := s.base >= s.total
		if done {
			s.mu.Unlock()
			return nil
		}

		s.fillWindowLocked(chunks)
		s.checkTimeoutLocked()
		s.mu.Unlock()

		time.Sleep(s.cfg.SendPoll)
	}
}

// fillWindowLocked emits fresh segments while next_seq < N and
// next_seq < base + W. Caller holds mu.
func (s *Sender) fillWindowLocked(chunks [][]byte) {
	w := s.effectiveWindow()
	for s.nextSeq < s.total && s.nextSeq < s.base+uint32(w) {
		idx := s.nextSeq - (s.total - uint32(len(chunks)))
		pkt := Packet{
			SeqNum:    s.nextSeq,
			AckNum:    0,
			Flags:     FlagACK,
			Timestamp: nowMillis(),
			Data:      chunks[idx],
		}

		wasFirstInFlight := s.base == s.nextSeq

		wire := pkt.Serialize()
		if err := s.ep.Send(s.peer, wire); err != nil {
			logRetransmit("prtp: send segment %d failed: %v", pkt.SeqNum, err)
		}
		s.rec.SegmentSent()

		*s.slot(s.nextSeq) = outstandingSegment{pkt: pkt, lastSent: time.Now(), valid: true}
		s.nextSeq++

		if wasFirstInFlight {
			s.startTimerLocked()
		}
	}
	s.rec.SegmentsInFlight(int(s.nextSeq - s.base))
	s.rec.Cwnd(s.cwndCtl.cwnd)
}

// checkTimeoutLocked triggers a Go-Back-N retransmission if the single
// retransmission timer has expired. Caller holds mu.
func (s *Sender) checkTimeoutLocked() {
	if !s.timerRunning || s.base >= s.nextSeq {
		return
	}
	if time.Since(s.timerStart) < s.cfg.RTO {
		return
	}

	logRetransmit("prtp: RTO fired, retransmitting [%d, %d)", s.base, s.nextSeq)
	n := 0
	for seq := s.base; seq < s.nextSeq; seq++ {
		slot := s.slot(seq)
		if !slot.valid {
			continue
		}
		slot.pkt.Timestamp = nowMillis()
		wire := slot.pkt.Serialize()
		if err := s.ep.Send(s.peer, wire); err != nil {
			logRetransmit("prtp: retransmit segment %d failed: %v", seq, err)
		}
		s.rec.SegmentSent()
		slot.lastSent = time.Now()
		n++
	}
	s.rec.SegmentRetransmitted(n)

	s.cwndCtl.onTimeout()
	logCongestion("prtp: congestion timeout: cwnd=%.2f ssthresh=%.2f state=%s",
		s.cwndCtl.cwnd, s.cwndCtl.ssthresh, s.cwndCtl.state)

	s.startTimerLocked()
}

func (s *Sender) startTimerLocked() {
	s.timerRunning = true
	s.timerStart = time.Now()
}

func (s *Sender) stopTimerLocked() {
	s.timerRunning = false
}

// HandleAck processes one received ACK packet. It must be called for
// every datagram the caller receives that carries FlagACK, concurrently
// with Send.
func (s *Sender) HandleAck(ack *Packet) {
	if !ack.HasFlag(FlagACK) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ack.AckNum < s.base {
		return // stale, covered by an earlier cumulative ACK
	}

	newlyAcked := int(ack.AckNum-s.base) + 1

	for seq := s.base; seq <= ack.AckNum; seq++ {
		s.slot(seq).valid = false
	}

	s.rwndBytes = effectiveRwnd(ack.WindowSize)

	s.cwndCtl.onAck(newlyAcked)
	logCongestion("prtp: ack %d (+%d new): cwnd=%.2f state=%s", ack.AckNum, newlyAcked,
		s.cwndCtl.cwnd, s.cwndCtl.state)

	s.base = ack.AckNum + 1
	s.bufBase = s.base

	if s.base < s.nextSeq {
		s.startTimerLocked()
	} else {
		s.stopTimerLocked()
	}

	s.rec.SegmentsInFlight(int(s.nextSeq - s.base))
	s.rec.Cwnd(s.cwndCtl.cwnd)
}

// Stop signals the sender's owner that no further ACKs will be delivered
// (e.g. the caller's recv loop is shutting down). It does not itself stop
// any goroutine — Sender has none of its own — it only flips the flag a
// caller-owned ACK-receive loop is expected to check.
func (s *Sender) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Running reports whether Stop has been called.
func (s *Sender) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CongestionSnapshot is a point-in-time read of the sender's AIMD state,
// for callers that want to log or display it (e.g. a client's final
// transfer summary) without reaching into the congestion controller
// directly.
type CongestionSnapshot struct {
	Cwnd     float64
	Ssthresh float64
	State    string
}

// Congestion returns the current congestion-control state.
func (s *Sender) Congestion() CongestionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CongestionSnapshot{
		Cwnd:     s.cwndCtl.cwnd,
		Ssthresh: s.cwndCtl.ssthresh,
		State:    s.cwndCtl.state.String(),
	}
}

// chunk splits data into pieces of at most size bytes.
func chunk(data []byte, size int) [][]byte {
	if size <= 0 {
		return nil
	}
	var out [][]byte
	for i := 0; i < len(data); i += size {
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[i:end])
	}
	return out
}

var errNotConnected = errors.New("prtp: sender not connected")
