// Package metric exposes expvar counters of element types.
package metric

import (
	"expvar"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

const elementsLabel = "flow.elements"

const (
	// BufferCounter measures number of pushed buffers.
	BufferCounter = "Buffers"
	// ByteCounter measures number of pushed bytes.
	ByteCounter = "Bytes"
	// LatencyCounter measures latency between pushes.
	LatencyCounter = "Latency"
	// ElementCounter counts number of measured elements.
	ElementCounter = "Elements"
)

var (
	elements = metrics{
		m: make(map[string]metric),
	}

	counters = []string{
		BufferCounter,
		ByteCounter,
		LatencyCounter,
		ElementCounter,
	}
)

// Get metrics values for provided behaviour type.
func Get(component interface{}) map[string]string {
	return getCounters(TypeOf(component))
}

// GetAll returns counters for all measured types.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	elements.Lock()
	defer elements.Unlock()
	for typ := range elements.m {
		m[typ] = getCounters(typ)
	}
	return m
}

func getCounters(typ string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		if v := expvar.Get(key(typ, counter)); v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// ResetFunc returns new Measure closure. This closure is needed to postpone metrics
// capture until element is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when buffer is pushed.
type MeasureFunc func(size int64)

// Meter creates new meter closure to capture counters of the behaviour
// type.
func Meter(component interface{}) ResetFunc {
	m := elements.get(TypeOf(component))
	m.elements.Add(1)
	return func() MeasureFunc {
		calledAt := time.Now()
		return func(size int64) {
			m.latency.set(time.Since(calledAt))
			m.buffers.Add(1)
			m.bytes.Add(size)
			calledAt = time.Now()
		}
	}
}

type metrics struct {
	sync.Mutex
	m map[string]metric
}

func (m *metrics) get(typ string) metric {
	m.Lock()
	defer m.Unlock()
	if existing, ok := m.m[typ]; ok {
		return existing
	}
	created := newMetric(typ)
	m.m[typ] = created
	return created
}

type metric struct {
	elements *expvar.Int
	buffers  *expvar.Int
	bytes    *expvar.Int
	latency  *duration
}

func newMetric(typ string) metric {
	m := metric{
		elements: expvar.NewInt(key(typ, ElementCounter)),
		buffers:  expvar.NewInt(key(typ, BufferCounter)),
		bytes:    expvar.NewInt(key(typ, ByteCounter)),
		latency:  &duration{},
	}
	expvar.Publish(key(typ, LatencyCounter), m.latency)
	return m
}

func key(typ, counter string) string {
	return fmt.Sprintf("%s.%s.%s", elementsLabel, typ, counter)
}

// TypeOf returns the name of dereferenced type of value.
func TypeOf(component interface{}) string {
	rv := reflect.ValueOf(component)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	return rv.Type().String()
}

// duration allows to format time.Duration metric values.
type duration struct {
	d atomic.Int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(v.d.Load()).String())
}

func (v *duration) set(value time.Duration) {
	v.d.Store(int64(value))
}
