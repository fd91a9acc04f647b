package exec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	st "github.com/streamrt/streamrt"
	"github.com/streamrt/streamrt/exec"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

// TestLinearPipelineDeliversFramesInOrder is scenario S1.
func TestLinearPipelineDeliversFramesInOrder(t *testing.T) {
	source := newSourceProcessor(100)
	transform := newPassthroughProcessor()
	sink := newRecordingSinkProcessor()

	factories := st.NewFactoryRegistry()
	factories.Register(&stubFactory{class: "source", desc: source.Descriptor(), build: func() st.Processor { return source }})
	factories.Register(&stubFactory{class: "transform", desc: transform.Descriptor(), build: func() st.Processor { return transform }})
	factories.Register(&stubFactory{class: "sink", desc: sink.Descriptor(), build: func() st.Processor { return sink }})

	graph := st.NewGraph()
	require.NoError(t, graph.AddProcessor("A", "source", nil, nil, source.Descriptor().Ports))
	require.NoError(t, graph.AddProcessor("B", "transform", nil, []st.Port{videoInPort("in")}, []st.Port{videoOutPort("out")}))
	require.NoError(t, graph.AddProcessor("C", "sink", nil, sink.Descriptor().Ports, nil))
	_, err := graph.AddLink(st.Address{ProcessorId: "A", PortName: "out"}, st.Address{ProcessorId: "B", PortName: "in"})
	require.NoError(t, err)
	_, err = graph.AddLink(st.Address{ProcessorId: "B", PortName: "out"}, st.Address{ProcessorId: "C", PortName: "in"})
	require.NoError(t, err)

	ex := exec.NewExecutor(factories, st.NewEventBus(), st.DefaultRuntimeOptions())
	require.NoError(t, ex.Compile(graph, "rt1", nil))
	require.NoError(t, ex.Start())

	waitFor(t, 2*time.Second, func() bool { return len(sink.Frames()) == 100 })

	frames := sink.Frames()
	require.Len(t, frames, 100)
	for i, f := range frames {
		assert.Equal(t, uint64(i), f.SequenceNumber)
	}

	require.NoError(t, ex.Stop())
}

// TestPauseStopsProcessingUntilResumed is scenario S3.
func TestPauseStopsProcessingUntilResumed(t *testing.T) {
	source := newSourceProcessor(1_000_000)
	sink := newRecordingSinkProcessor()

	factories := st.NewFactoryRegistry()
	factories.Register(&stubFactory{class: "source", desc: source.Descriptor(), build: func() st.Processor { return source }})
	factories.Register(&stubFactory{class: "sink", desc: sink.Descriptor(), build: func() st.Processor { return sink }})

	graph := st.NewGraph()
	require.NoError(t, graph.AddProcessor("A", "source", nil, nil, source.Descriptor().Ports))
	require.NoError(t, graph.AddProcessor("B", "sink", nil, sink.Descriptor().Ports, nil))
	_, err := graph.AddLink(st.Address{ProcessorId: "A", PortName: "out"}, st.Address{ProcessorId: "B", PortName: "in"})
	require.NoError(t, err)

	ex := exec.NewExecutor(factories, st.NewEventBus(), st.DefaultRuntimeOptions())
	require.NoError(t, ex.Compile(graph, "rt1", nil))
	require.NoError(t, ex.Start())

	waitFor(t, time.Second, func() bool { return len(sink.Frames()) >= 10 })
	require.NoError(t, ex.Pause())

	countAtPause := len(sink.Frames())
	time.Sleep(200 * time.Millisecond)
	countAfterWait := len(sink.Frames())
	assert.LessOrEqual(t, countAfterWait, countAtPause+2)

	require.NoError(t, ex.Resume())
	waitFor(t, 200*time.Millisecond, func() bool { return len(sink.Frames()) > countAfterWait })

	require.NoError(t, ex.Stop())
}

// TestSetupFailureStopsOnlyThatProcessor is scenario S6.
func TestSetupFailureStopsOnlyThatProcessor(t *testing.T) {
	source := newSourceProcessor(10)
	failing := newFailingSetupProcessor()

	factories := st.NewFactoryRegistry()
	factories.Register(&stubFactory{class: "source", desc: source.Descriptor(), build: func() st.Processor { return source }})
	factories.Register(&stubFactory{class: "failing", desc: failing.Descriptor(), build: func() st.Processor { return failing }})

	graph := st.NewGraph()
	require.NoError(t, graph.AddProcessor("A", "source", nil, nil, source.Descriptor().Ports))
	require.NoError(t, graph.AddProcessor("F", "failing", nil, failing.Descriptor().Ports, nil))
	_, err := graph.AddLink(st.Address{ProcessorId: "A", PortName: "out"}, st.Address{ProcessorId: "F", PortName: "in"})
	require.NoError(t, err)

	bus := st.NewEventBus()
	var published []interface{}
	bus.On(st.ProcessorTopic("F"), "SetupFailed", func(args ...interface{}) {
		published = append(published, args...)
	})

	ex := exec.NewExecutor(factories, bus, st.DefaultRuntimeOptions())
	require.NoError(t, ex.Compile(graph, "rt1", nil))
	require.NoError(t, ex.Start())

	status := ex.Status()
	require.Contains(t, status.ProcessorStates, st.ProcessorId("F"))
	assert.Equal(t, exec.ProcessorStopped, status.ProcessorStates[st.ProcessorId("F")])
	require.Len(t, published, 1)

	require.NoError(t, ex.Stop())
}

func TestCompileIsIdempotentForUnchangedChecksum(t *testing.T) {
	graph := st.NewGraph()
	require.NoError(t, graph.AddProcessor("A", "source", nil, nil, nil))

	ex := exec.NewExecutor(st.NewFactoryRegistry(), st.NewEventBus(), st.DefaultRuntimeOptions())
	require.NoError(t, ex.Compile(graph, "rt1", nil))
	firstStatus := ex.Status()

	require.NoError(t, ex.Compile(graph, "rt1", nil))
	secondStatus := ex.Status()

	assert.Equal(t, firstStatus, secondStatus)
}
