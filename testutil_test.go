package prtp

import (
	"math/rand"
	"net"
	"time"
)

// fakeAddr is a trivial net.Addr for in-memory endpoints.
type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

type datagram struct {
	data []byte
	from net.Addr
}

// fakeEndpoint is an in-memory Endpoint backed by a channel, used to drive
// sender/receiver/handshake tests without real sockets. Use newFakeLink to
// build a connected pair, optionally dropping datagrams to exercise
// retransmission.
type fakeEndpoint struct {
	addr fakeAddr
	in   chan datagram
	peer *fakeEndpoint // set once linked
	loss float64
	rng  *rand.Rand
}

func newFakeLink(lossProb float64) (a, b *fakeEndpoint) {
	a = &fakeEndpoint{addr: "client", in: make(chan datagram, 256), loss: lossProb, rng: rand.New(rand.NewSource(1))}
	b = &fakeEndpoint{addr: "server", in: make(chan datagram, 256), loss: lossProb, rng: rand.New(rand.NewSource(2))}
	a.peer = b
	b.peer = a
	return a, b
}

func (e *fakeEndpoint) Send(to net.Addr, data []byte) error {
	if e.loss > 0 && e.rng.Float64() < e.loss {
		return nil // simulate loss: datagram never arrives
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	e.peer.in <- datagram{data: cp, from: e.addr}
	return nil
}

func (e *fakeEndpoint) Recv(timeout time.Duration) ([]byte, net.Addr, error) {
	select {
	case dg := <-e.in:
		return dg.data, dg.from, nil
	case <-time.After(timeout):
		return nil, nil, ErrTimeout
	}
}

func (e *fakeEndpoint) LocalAddr() net.Addr { return e.addr }

func (e *fakeEndpoint) Close() error { return nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 200 * time.Millisecond
	cfg.ReceiverIdle = 300 * time.Millisecond
	cfg.RecvPoll = 5 * time.Millisecond
	cfg.SendPoll = 2 * time.Millisecond
	cfg.RTO = 50 * time.Millisecond
	return cfg
}
