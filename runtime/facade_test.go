package runtime_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	st "github.com/streamrt/streamrt"
	"github.com/streamrt/streamrt/link"
	"github.com/streamrt/streamrt/runtime"
)

func videoOutPort(name string) st.Port {
	return st.Port{Name: name, Direction: st.DirectionOutput, Kind: st.KindVideo}
}

func videoInPort(name string) st.Port {
	return st.Port{Name: name, Direction: st.DirectionInput, Kind: st.KindVideo}
}

type fanSourceProcessor struct {
	*st.BaseProcessor
	mu   sync.Mutex
	next uint64
}

func newFanSourceProcessor() *fanSourceProcessor {
	return &fanSourceProcessor{BaseProcessor: st.NewBaseProcessor([]st.Port{videoOutPort("out1"), videoOutPort("out2")})}
}

func (p *fanSourceProcessor) Descriptor() st.Descriptor {
	return st.Descriptor{
		Ports:      []st.Port{videoOutPort("out1"), videoOutPort("out2")},
		Scheduling: st.SchedulingConfig{Mode: st.SchedulingLoop},
	}
}
func (p *fanSourceProcessor) Setup(*st.ProcessorContext) error { return nil }
func (p *fanSourceProcessor) Teardown() error                   { return nil }
func (p *fanSourceProcessor) Process() error {
	p.mu.Lock()
	seq := p.next
	p.next++
	p.mu.Unlock()

	frame := st.VideoFrame{Frame: st.Frame{SequenceNumber: seq}}
	if out1, ok := p.Producer("out1").(*link.Producer[st.VideoFrame]); ok {
		out1.PushOverwrite(frame)
	}
	if out2, ok := p.Producer("out2").(*link.Producer[st.VideoFrame]); ok {
		out2.PushOverwrite(frame)
	}
	return nil
}

type countingSinkProcessor struct {
	*st.BaseProcessor
	port string
	mu   sync.Mutex
	seen int
}

func newCountingSinkProcessor(port string) *countingSinkProcessor {
	return &countingSinkProcessor{BaseProcessor: st.NewBaseProcessor([]st.Port{videoInPort(port)}), port: port}
}

func (p *countingSinkProcessor) Descriptor() st.Descriptor {
	return st.Descriptor{
		Ports:      []st.Port{videoInPort(p.port)},
		Scheduling: st.SchedulingConfig{Mode: st.SchedulingPush},
	}
}
func (p *countingSinkProcessor) Setup(*st.ProcessorContext) error { return nil }
func (p *countingSinkProcessor) Teardown() error                   { return nil }
func (p *countingSinkProcessor) Process() error {
	consumer, ok := p.Consumer(p.port).(*link.Consumer[st.VideoFrame])
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if _, ok := consumer.TryPop(); !ok {
			return nil
		}
		p.seen++
	}
}

func (p *countingSinkProcessor) Seen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen
}

type stubFactory struct {
	class string
	desc  st.Descriptor
	build func() st.Processor
}

func (f *stubFactory) ClassName() string        { return f.class }
func (f *stubFactory) Descriptor() st.Descriptor { return f.desc }
func (f *stubFactory) Create(node *st.ProcessorNode) (st.Processor, error) {
	return f.build(), nil
}

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

// TestHotAddDoesNotLoseTrafficOnExistingLink is scenario S2.
func TestHotAddDoesNotLoseTrafficOnExistingLink(t *testing.T) {
	source := newFanSourceProcessor()
	sinkC := newCountingSinkProcessor("in1")
	sinkB := newCountingSinkProcessor("in")

	rt := runtime.New("rt1", nil)
	rt.RegisterFactory(&stubFactory{class: "source", desc: source.Descriptor(), build: func() st.Processor { return source }})
	rt.RegisterFactory(&stubFactory{class: "sinkC", desc: sinkC.Descriptor(), build: func() st.Processor { return sinkC }})
	rt.RegisterFactory(&stubFactory{class: "sinkB", desc: sinkB.Descriptor(), build: func() st.Processor { return sinkB }})

	aId, err := rt.AddProcessor("source", nil)
	require.NoError(t, err)
	cId, err := rt.AddProcessor("sinkC", nil)
	require.NoError(t, err)
	_, err = rt.ConnectByID(aId, "out1", cId, "in1")
	require.NoError(t, err)

	require.NoError(t, rt.Start())
	waitFor(t, time.Second, func() bool { return sinkC.Seen() > 0 })

	bId, err := rt.AddProcessor("sinkB", nil)
	require.NoError(t, err)
	_, err = rt.ConnectByID(aId, "out2", bId, "in")
	require.NoError(t, err)

	waitFor(t, 200*time.Millisecond, func() bool { return sinkB.Seen() > 0 })
	assert.Greater(t, sinkB.Seen(), 0)

	countAtHotAdd := sinkC.Seen()
	waitFor(t, 200*time.Millisecond, func() bool { return sinkC.Seen() > countAtHotAdd })

	require.NoError(t, rt.Stop())
}

func TestStatusReportsProcessorAndLinkCounts(t *testing.T) {
	source := newFanSourceProcessor()
	sink := newCountingSinkProcessor("in1")

	rt := runtime.New("rt1", nil)
	rt.RegisterFactory(&stubFactory{class: "source", desc: source.Descriptor(), build: func() st.Processor { return source }})
	rt.RegisterFactory(&stubFactory{class: "sink", desc: sink.Descriptor(), build: func() st.Processor { return sink }})

	aId, err := rt.AddProcessor("source", nil)
	require.NoError(t, err)
	cId, err := rt.AddProcessor("sink", nil)
	require.NoError(t, err)
	_, err = rt.ConnectByID(aId, "out1", cId, "in1")
	require.NoError(t, err)

	require.NoError(t, rt.Start())
	defer rt.Stop()

	status := rt.Status()
	assert.Equal(t, st.RuntimeRunning, status.State)
	assert.Equal(t, 2, status.ProcessorCount)
	assert.Equal(t, 1, status.LinkCount)
}

func TestMutationAcceptedOnceRestartCompletes(t *testing.T) {
	rt := runtime.New("rt1", nil)
	rt.RegisterFactory(&stubFactory{
		class: "sink",
		desc:  newCountingSinkProcessor("in1").Descriptor(),
		build: func() st.Processor { return newCountingSinkProcessor("in1") },
	})
	_, err := rt.AddProcessor("sink", nil)
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	defer rt.Stop()

	unsub := rt.EventBus().On(st.RuntimeGlobalTopic, "probe", func(args ...interface{}) {})
	defer unsub()

	require.NoError(t, rt.Restart())

	_, err = rt.AddProcessor("sink", nil)
	assert.NoError(t, err) // restart already completed synchronously; runtime is Running again
}
