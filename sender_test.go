package prtp

import (
	"testing"
	"time"
)

func TestSenderSlidesWindowOnCumulativeAck(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWindowSegs = 4
	ep, _ := newFakeLink(0)
	s := NewSender(cfg, ep, fakeAddr("server"), 10, nil)

	go func() {
		_ = s.Send(make([]byte, cfg.MSS*3)) // three full segments: seq 10,11,12
	}()

	time.Sleep(20 * time.Millisecond)

	ack := Packet{SeqNum: 0, AckNum: 11, WindowSize: 65535, Flags: FlagACK, Timestamp: nowMillis()}
	s.HandleAck(&ack)

	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	if base != 12 {
		t.Fatalf("base = %d, want 12 after cumulative ack of 11", base)
	}
}

func TestSenderIgnoresStaleAck(t *testing.T) {
	cfg := testConfig()
	ep, _ := newFakeLink(0)
	s := NewSender(cfg, ep, fakeAddr("server"), 10, nil)
	s.base = 15
	s.nextSeq = 15

	ack := Packet{AckNum: 12, Flags: FlagACK}
	s.HandleAck(&ack)

	if s.base != 15 {
		t.Fatalf("base = %d, want unchanged 15 for stale ack", s.base)
	}
}

func TestSenderRetransmitsWholeWindowOnTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWindowSegs = 4
	cfg.RTO = 15 * time.Millisecond
	ep, peer := newFakeLink(0)
	s := NewSender(cfg, ep, fakeAddr("server"), 0, nil)
	s.cwndCtl.cwnd = 2 // open the window to both segments from the start

	go func() {
		_ = s.Send(make([]byte, cfg.MSS*2))
	}()

	// drain the first transmission of both segments
	for i := 0; i < 2; i++ {
		if _, _, err := peer.Recv(500 * time.Millisecond); err != nil {
			t.Fatalf("recv initial segment %d: %v", i, err)
		}
	}

	// after RTO with no ack, both should be retransmitted
	for i := 0; i < 2; i++ {
		if _, _, err := peer.Recv(500 * time.Millisecond); err != nil {
			t.Fatalf("recv retransmitted segment %d: %v", i, err)
		}
	}

	s.mu.Lock()
	ssthresh := s.cwndCtl.ssthresh
	cwnd := s.cwndCtl.cwnd
	s.mu.Unlock()
	if cwnd != 1.0 {
		t.Fatalf("cwnd after timeout = %.2f, want 1.0", cwnd)
	}
	if ssthresh < 2.0 {
		t.Fatalf("ssthresh after timeout = %.2f, want >= 2.0", ssthresh)
	}
}

func TestEffectiveWindowRespectsAllThreeLimits(t *testing.T) {
	cfg := testConfig()
	cfg.MSS = 100
	cfg.MaxWindowSegs = 3
	ep, _ := newFakeLink(0)
	s := NewSender(cfg, ep, fakeAddr("server"), 0, nil)

	s.cwndCtl.cwnd = 100 // huge cwnd
	s.rwndBytes = 250    // only enough for 2 segments of 100 bytes
	if w := s.effectiveWindow(); w != 2 {
		t.Fatalf("effectiveWindow = %d, want 2 (bound by rwnd/MSS)", w)
	}

	s.rwndBytes = 100000 // huge rwnd
	if w := s.effectiveWindow(); w != 3 {
		t.Fatalf("effectiveWindow = %d, want 3 (bound by MaxWindowSegs)", w)
	}

	s.cwndCtl.cwnd = 1.5 // small cwnd, rwnd still huge
	if w := s.effectiveWindow(); w != 1 {
		t.Fatalf("effectiveWindow = %d, want 1 (bound by floor(cwnd))", w)
	}
}
