package prtp

import "github.com/golang/glog"

// logHandshake, logRetransmit, logCongestion, and logSessionEnd are the
// only points in the engines that talk to glog directly, kept separate from the hot
// per-segment send/recv path so V(2) tracing there (if ever enabled)
// doesn't need its own guard everywhere.

func logHandshake(format string, args ...interface{}) {
	if glog.V(1) {
		glog.Infof(format, args...)
	}
}

func logRetransmit(format string, args ...interface{}) {
	glog.Warningf(format, args...)
}

func logCongestion(format string, args ...interface{}) {
	if glog.V(1) {
		glog.Infof(format, args...)
	}
}

func logSessionEnd(format string, args ...interface{}) {
	glog.Infof(format, args...)
}
