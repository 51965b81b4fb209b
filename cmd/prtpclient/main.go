// Command prtpclient sends one line of stdin to a prtpserver and exits.
//
// Usage:
//
//	prtpclient [-config path] [-v level] <host> <port> [max_window_segs]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/xtaci-labs/prtp"
	"github.com/xtaci-labs/prtp/metrics"
)

func main() {
	if err := run(); err != nil {
		defer os.Exit(1)

		var st errors.StackTrace
		type stackTracer interface {
			StackTrace() errors.StackTrace
		}
		if e, ok := err.(stackTracer); ok {
			st = e.StackTrace()
		}
		glog.Errorf("%s%+v\n", err, st)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a TOML config file overriding protocol defaults")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		return errors.New("usage: prtpclient [-config path] [-v level] <host> <port> [max_window_segs]")
	}
	host := args[0]
	port := args[1]

	cfg, err := prtp.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if len(args) >= 3 {
		var segs int
		if _, err := fmt.Sscanf(args[2], "%d", &segs); err != nil || segs <= 0 {
			return errors.Errorf("invalid max_window_segs %q", args[2])
		}
		cfg.MaxWindowSegs = segs
	}

	line, err := readOneLine(os.Stdin)
	if err != nil {
		return err
	}

	// Bind an ephemeral local socket: every send in this package addresses
	// its peer explicitly (Endpoint.Send(to, ...)), so the socket need not
	// be connected.
	ep, err := prtp.Bind(":0")
	if err != nil {
		return err
	}
	defer ep.Close()

	// The client is too short-lived to usefully scrape; it records to its
	// own in-process registry and logs a final summary instead.
	prom := metrics.NewPrometheus()

	sess, err := prtp.DialSession(cfg, ep, net.JoinHostPort(host, port), prom)
	if err != nil {
		return errors.Wrap(err, "establish session")
	}
	defer sess.Close()

	go sess.RunAckPump(cfg)

	if err := sess.Sender.Send(line); err != nil {
		return errors.Wrap(err, "send")
	}

	cong := sess.Sender.Congestion()
	glog.Infof("prtp: session %s delivered %d bytes, final cwnd=%.2f ssthresh=%.2f state=%s",
		sess.ID, len(line), cong.Cwnd, cong.Ssthresh, cong.State)
	return nil
}

func readOneLine(f *os.File) ([]byte, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "read stdin")
		}
		return nil, errors.New("no input on stdin")
	}
	return scanner.Bytes(), nil
}
