// Command prtpserver accepts prtp sessions one at a time and uppercases
// whatever each client sends.
//
// Usage:
//
//	prtpserver [-config path] [-metrics-addr host:port] [-v level] [port]
package main

import (
	"flag"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtaci-labs/prtp"
	"github.com/xtaci-labs/prtp/metrics"
)

const defaultPort = "12000"

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
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (host:port)")
	flag.Parse()

	port := defaultPort
	if args := flag.Args(); len(args) >= 1 {
		port = args[0]
	}

	cfg, err := prtp.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	var rec metrics.Recorder = metrics.Noop()
	if *metricsAddr != "" {
		prom := metrics.NewPrometheus()
		rec = prom
		go serveMetrics(*metricsAddr, prom)
	}

	cache := prtp.NewSessionCache()

	ep, err := prtp.Bind(net.JoinHostPort("", port))
	if err != nil {
		return errors.Wrap(err, "bind")
	}
	defer ep.Close()

	glog.Infof("prtp: listening on %v", ep.LocalAddr())

	for {
		if err := acceptOne(cfg, ep, rec, cache); err != nil {
			glog.Warningf("prtp: session failed: %v", err)
		}
	}
}

func acceptOne(cfg prtp.Config, ep prtp.Endpoint, rec metrics.Recorder, cache *prtp.SessionCache) error {
	sess, err := prtp.AcceptSession(cfg, ep, rec)
	if err != nil {
		return errors.Wrap(err, "accept session")
	}

	started := time.Now()
	data, runErr := sess.Receiver.Run()
	outcome := prtp.OutcomeComplete
	switch {
	case runErr == prtp.ErrNoData:
		outcome = prtp.OutcomeIdleEmpty
	case runErr != nil:
		outcome = prtp.OutcomeSocketErr
	}

	cache.Put(sess.ID, prtp.SessionSummary{
		Peer:          sess.Peer,
		BytesReceived: len(data),
		Duration:      time.Since(started),
		Outcome:       outcome,
	})

	if runErr != nil {
		return runErr
	}

	reply := strings.ToUpper(string(data))
	glog.Infof("prtp: session %s received %d bytes, replying %q", sess.ID, len(data), reply)
	return nil
}

func serveMetrics(addr string, prom *metrics.Prometheus) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prom.Registry, promhttp.HandlerOpts{}))
	glog.Infof("prtp: serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		glog.Errorf("prtp: metrics server failed: %v", err)
	}
}
