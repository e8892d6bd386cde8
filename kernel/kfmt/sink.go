package kfmt

import (
	"io"

	"gvisor.dev/gvisor/pkg/log"
)

// EarlySink is an io.Writer that captures output in a ring buffer until a
// real output sink is attached via SetOutputSink. At that point any buffered
// output is flushed to the new sink and subsequent writes go straight to it.
type EarlySink struct {
	buf  ringBuffer
	sink io.Writer
}

// Write implements io.Writer.
func (s *EarlySink) Write(p []byte) (int, error) {
	if s.sink != nil {
		return s.sink.Write(p)
	}

	return s.buf.Write(p)
}

// SetOutputSink attaches w to the sink and flushes any buffered output to it.
// Passing a nil writer reverts to buffering.
func (s *EarlySink) SetOutputSink(w io.Writer) {
	s.sink = w
	if w != nil {
		io.Copy(w, &s.buf)
	}
}

// Buffered returns the number of bytes waiting for an output sink.
func (s *EarlySink) Buffered() int {
	return s.buf.Len()
}

var earlySink EarlySink

// InitLogging routes the log package through the early sink. Debug output is
// only emitted if debug is set.
func InitLogging(debug bool) {
	log.SetTarget(log.GoogleEmitter{Writer: &log.Writer{Next: &earlySink}})
	if debug {
		log.SetLevel(log.Debug)
	} else {
		log.SetLevel(log.Info)
	}
}

// SetOutputSink attaches w to the early log sink installed by InitLogging.
func SetOutputSink(w io.Writer) {
	earlySink.SetOutputSink(w)
}
