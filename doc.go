/*
Package flow allows to build and step media pipelines.

Concept

A pipeline is a graph of elements. Every element owns pads, typed
connection points which are either sources or sinks of data. Pads of
different elements are linked when their capabilities intersect:

    src ! filter ! sink

Elements are grouped into bins. Pipeline is the top-level bin, it owns
the clock and the scheduler.

Lifecycle

Every element moves through four states:

    Null - initial state, no resources allocated;
    Ready - resources allocated, no data is flowing;
    Paused - streams are opened, data is accepted but not processed;
    Playing - data is flowing.

SetState walks all intermediate states in order. Bins change the state
of their children first and then their own.

Scheduling

Pipeline doesn't run any goroutines. Iterate performs exactly one pass
over the graph, sources first, and reports whether there is more work to
do. The caller owns the loop:

    for {
        more, err := p.Iterate()
        if err != nil || !more {
            break
        }
    }

This allows to drive the pipeline from any external event loop.

Elements

Behaviour of an element is defined by the interfaces it implements:
Producer for sources, Chainer for elements which accept buffers on sink
pads, StateChanger for state transition hooks and EOSHandler to handle
the end of stream. Element types are registered in a Registry and
created by name with Make.
*/
package flow
