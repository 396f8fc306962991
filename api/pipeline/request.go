package pipeline

import (
	"fmt"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
)

// Options are flags that modify how a pipeline evaluation is carried out.
type Options uint8

const (
	// OptionInteractive marks an evaluation requested by an interactive consumer.  Stages
	// may trade accuracy for latency when it is set: a remote source answers with a
	// Pending stand-in rather than waiting for a frame to load.
	OptionInteractive Options = 1 << iota
	// OptionContinueOnError keeps applying downstream modifiers after a stage reported an
	// error instead of halting the chain.
	OptionContinueOnError
)

// Request describes an evaluation of the pipeline at one animation time.  It is
// immutable; stages derive modified copies with the With* methods.
type Request struct {
	time    anim.TimePoint
	options Options
}

// NewRequest creates a request for the given time.
func NewRequest(t anim.TimePoint, options ...Options) Request {
	r := Request{time: t}
	for _, o := range options {
		r.options |= o
	}
	return r
}

// Time returns the requested animation time.
func (r Request) Time() anim.TimePoint {
	return r.time
}

// Options returns the request flags.
func (r Request) Options() Options {
	return r.options
}

// Interactive reports whether the request comes from an interactive consumer.
func (r Request) Interactive() bool {
	return r.options&OptionInteractive != 0
}

// ContinueOnError reports whether modifiers are applied after an upstream error.
func (r Request) ContinueOnError() bool {
	return r.options&OptionContinueOnError != 0
}

// WithTime derives a request for a different time.
func (r Request) WithTime(t anim.TimePoint) Request {
	r.time = t
	return r
}

// WithOptions derives a request with a different set of flags.
func (r Request) WithOptions(options Options) Request {
	r.options = options
	return r
}

// cacheOptions are the flags that change a complete result.  Interactive requests only
// differ while data is still Pending, and Pending states are never cached.
func (r Request) cacheOptions() Options {
	return r.options &^ OptionInteractive
}

// key identifies requests that produce identical results.
func (r Request) key() string {
	return fmt.Sprintf("%d/%d", r.time, r.options)
}

func (r Request) String() string {
	return fmt.Sprintf("request(time=%d, options=%#x)", r.time, uint8(r.options))
}
