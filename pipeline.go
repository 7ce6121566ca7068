package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dudk/flow/metric"
)

// Logger is a global interface for pipeline loggers.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
	Warn(...interface{})
}

// Pipeline is the top-level bin. It owns the clock and schedules the
// processing of all elements it contains.
type Pipeline struct {
	*Bin
	clock   clock.Clock
	timeout time.Duration
	log     Logger

	// running time accounting.
	started time.Time
	elapsed time.Duration

	meters     map[*Element]metric.MeasureFunc
	terminated error

	// cached order of scheduling.
	order      []*Element
	generation uint64
	scheduled  bool
}

// Option provides a way to set functional parameters to pipeline.
type Option func(p *Pipeline) error

// NewPipeline creates a new pipeline and applies provided options.
// Returned pipeline is in Null state.
func NewPipeline(name string, options ...Option) (*Pipeline, error) {
	if name == "" {
		name = uniqueName("pipeline")
	}
	p := &Pipeline{
		Bin:     NewBin(name),
		clock:   clock.New(),
		timeout: DefaultStateTimeout,
		log:     defaultLogger,
	}
	p.Bin.factory = "pipeline"
	p.Bin.pipeline = p
	p.Bin.impl = p
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// WithLogger sets logger to Pipeline. If this option is not provided,
// silent logger is used.
func WithLogger(logger Logger) Option {
	return func(p *Pipeline) error {
		p.log = logger
		return nil
	}
}

// WithClock sets the clock of pipeline.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) error {
		p.clock = c
		return nil
	}
}

// WithStateTimeout bounds the duration of every state transition hook.
func WithStateTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("invalid state timeout: %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithMetric enables metrics for all elements of the pipeline.
func WithMetric() Option {
	return func(p *Pipeline) error {
		p.meters = make(map[*Element]metric.MeasureFunc)
		return nil
	}
}

// Clock returns the clock of the pipeline.
func (p *Pipeline) Clock() clock.Clock {
	return p.clock
}

// RunningTime returns the time spent by pipeline in Playing state since
// it was started.
func (p *Pipeline) RunningTime() time.Duration {
	if p.Element.state == Playing {
		return p.elapsed + p.clock.Since(p.started)
	}
	return p.elapsed
}

// ChangeState implements StateChanger for the pipeline itself.
func (p *Pipeline) ChangeState(_ context.Context, t Transition) error {
	switch t {
	case Transition{From: Paused, To: Playing}:
		p.started = p.clock.Now()
	case Transition{From: Playing, To: Paused}:
		p.elapsed += p.clock.Since(p.started)
	case Transition{From: Paused, To: Ready}:
		p.elapsed = 0
	case Transition{From: Ready, To: Null}:
		p.terminated = nil
	}
	return nil
}

// Terminated returns the unrecoverable failure which stopped the pipeline.
func (p *Pipeline) Terminated() error {
	return p.terminated
}

func (p *Pipeline) terminate(err error) {
	if p.terminated == nil {
		p.log.Warn(fmt.Sprintf("%v terminated: %v", p, err))
		p.terminated = err
	}
}

// Run iterates the pipeline until there is no more work, error occurred
// or context is done. Pipeline must be in Playing state.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		more, err := p.Iterate()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Flush drops all data queued in the pipeline.
func (p *Pipeline) Flush() {
	for _, e := range p.Elements() {
		for _, pad := range e.pads {
			pad.queue, pad.held = nil, nil
		}
	}
}

func (p *Pipeline) meter(e *Element) metric.MeasureFunc {
	if p.meters == nil || e.impl == nil {
		return nil
	}
	m, ok := p.meters[e]
	if !ok {
		m = metric.Meter(e.impl)()
		p.meters[e] = m
	}
	return m
}

// isTerminal reports whether error should stop the pipeline.
func isTerminal(err error) bool {
	return errors.Is(err, ErrUnrecoverable)
}

type silentLogger struct{}

func (silentLogger) Debug(args ...interface{}) {}

func (silentLogger) Info(args ...interface{}) {}

func (silentLogger) Warn(args ...interface{}) {}

var defaultLogger silentLogger
