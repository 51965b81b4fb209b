package prtp

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned by Endpoint.Recv when no datagram arrived before
// the requested deadline. It is not a fatal socket error.
var ErrTimeout = errors.New("prtp: recv timeout")

// Endpoint is the datagram-socket collaborator PRTP's engines are built
// against: send a datagram, receive one with a bounded wait, and close.
// The concrete implementation is a thin wrapper over net.PacketConn,
// mirroring the UDPSession/Listener split in kcp-go.v2/sess.go.
type Endpoint interface {
	Send(to net.Addr, b []byte) error
	Recv(timeout time.Duration) (b []byte, from net.Addr, err error)
	LocalAddr() net.Addr
	Close() error
}

type setReadBuffer interface {
	SetReadBuffer(bytes int) error
}

type setWriteBuffer interface {
	SetWriteBuffer(bytes int) error
}

// udpEndpoint is the default Endpoint, backed by a bound or connected
// net.PacketConn.
type udpEndpoint struct {
	conn net.PacketConn
}

// Bind opens a UDP endpoint listening on the given local address
// ("host:port", or ":port" to listen on all interfaces).
func Bind(laddr string) (Endpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve local address")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen udp")
	}
	return &udpEndpoint{conn: conn}, nil
}

// Dial opens a UDP endpoint pre-connected to a single remote peer. Using a
// connected socket lets the kernel filter unrelated datagrams and makes
// Send cheaper, the same rationale kcp-go.v2's ConnectedUDPConn documents.
func Dial(raddr string) (Endpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", raddr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve remote address")
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial udp")
	}
	return &udpEndpoint{conn: conn}, nil
}

func (e *udpEndpoint) Send(to net.Addr, b []byte) error {
	var err error
	if uc, ok := e.conn.(*net.UDPConn); ok && uc.RemoteAddr() != nil {
		// A connected socket (see Dial) rejects WriteTo; it always sends to
		// its one peer.
		_, err = uc.Write(b)
	} else {
		_, err = e.conn.WriteTo(b, to)
	}
	if err != nil {
		return errors.Wrap(err, "send datagram")
	}
	return nil
}

func (e *udpEndpoint) Recv(timeout time.Duration) ([]byte, net.Addr, error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, errors.Wrap(err, "set read deadline")
	}
	buf := make([]byte, MaxPacketSize)
	n, from, err := e.conn.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, ErrTimeout
		}
		return nil, nil, errors.Wrap(err, "recv datagram")
	}
	return buf[:n], from, nil
}

func (e *udpEndpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

func (e *udpEndpoint) Close() error {
	return errors.Wrap(e.conn.Close(), "close endpoint")
}

// SetReadBuffer sets the socket's OS-level receive buffer, if the
// underlying connection supports it.
func SetReadBuffer(e Endpoint, bytes int) error {
	ue, ok := e.(*udpEndpoint)
	if !ok {
		return nil
	}
	if c, ok := ue.conn.(setReadBuffer); ok {
		return c.SetReadBuffer(bytes)
	}
	return nil
}

// SetWriteBuffer sets the socket's OS-level send buffer, if the underlying
// connection supports it.
func SetWriteBuffer(e Endpoint, bytes int) error {
	ue, ok := e.(*udpEndpoint)
	if !ok {
		return nil
	}
	if c, ok := ue.conn.(setWriteBuffer); ok {
		return c.SetWriteBuffer(bytes)
	}
	return nil
}
