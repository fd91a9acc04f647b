package exec_test

import (
	"fmt"
	"sync"
	"time"

	st "github.com/streamrt/streamrt"
	"github.com/streamrt/streamrt/link"
)

// videoOutPort/videoInPort build the single-port descriptors the test
// processors below declare.
func videoOutPort(name string) st.Port {
	return st.Port{Name: name, Direction: st.DirectionOutput, Kind: st.KindVideo}
}

func videoInPort(name string) st.Port {
	return st.Port{Name: name, Direction: st.DirectionInput, Kind: st.KindVideo}
}

// sourceProcessor emits frames 0..count-1 on its "out" port in Loop mode,
// then goes idle. Grounds scenario S1's producer side.
type sourceProcessor struct {
	*st.BaseProcessor
	count int

	mu   sync.Mutex
	next uint64
}

func newSourceProcessor(count int) *sourceProcessor {
	return &sourceProcessor{
		BaseProcessor: st.NewBaseProcessor([]st.Port{videoOutPort("out")}),
		count:         count,
	}
}

func (p *sourceProcessor) Descriptor() st.Descriptor {
	return st.Descriptor{
		Ports:      []st.Port{videoOutPort("out")},
		Scheduling: st.SchedulingConfig{Mode: st.SchedulingLoop},
	}
}

func (p *sourceProcessor) Setup(ctx *st.ProcessorContext) error { return nil }
func (p *sourceProcessor) Teardown() error                      { return nil }

func (p *sourceProcessor) Process() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= uint64(p.count) {
		return nil
	}
	producer, ok := p.Producer("out").(*link.Producer[st.VideoFrame])
	if !ok {
		return nil
	}
	frame := st.VideoFrame{Frame: st.Frame{SequenceNumber: p.next}}
	if ok, _ := producer.TryPush(frame); ok {
		p.next++
	}
	return nil
}

// passthroughProcessor forwards every frame from "in" to "out" unchanged,
// in Push mode. Grounds scenario S1's transform stage.
type passthroughProcessor struct {
	*st.BaseProcessor
}

func newPassthroughProcessor() *passthroughProcessor {
	return &passthroughProcessor{BaseProcessor: st.NewBaseProcessor([]st.Port{videoInPort("in"), videoOutPort("out")})}
}

func (p *passthroughProcessor) Descriptor() st.Descriptor {
	return st.Descriptor{
		Ports:      []st.Port{videoInPort("in"), videoOutPort("out")},
		Scheduling: st.SchedulingConfig{Mode: st.SchedulingPush},
	}
}

func (p *passthroughProcessor) Setup(ctx *st.ProcessorContext) error { return nil }
func (p *passthroughProcessor) Teardown() error                      { return nil }

func (p *passthroughProcessor) Process() error {
	consumer, ok := p.Consumer("in").(*link.Consumer[st.VideoFrame])
	if !ok {
		return nil
	}
	producer, ok := p.Producer("out").(*link.Producer[st.VideoFrame])
	if !ok {
		return nil
	}
	for {
		frame, ok := consumer.TryPop()
		if !ok {
			return nil
		}
		for {
			if ok, _ := producer.TryPush(frame); ok {
				break
			}
			time.Sleep(50 * time.Microsecond)
		}
	}
}

// recordingSinkProcessor appends every frame it receives on "in" to an
// internal slice, in Push mode. Grounds scenario S1/S3's consumer side.
type recordingSinkProcessor struct {
	*st.BaseProcessor

	mu     sync.Mutex
	frames []st.VideoFrame
	ticks  int
}

func newRecordingSinkProcessor() *recordingSinkProcessor {
	return &recordingSinkProcessor{BaseProcessor: st.NewBaseProcessor([]st.Port{videoInPort("in")})}
}

func (p *recordingSinkProcessor) Descriptor() st.Descriptor {
	return st.Descriptor{
		Ports:      []st.Port{videoInPort("in")},
		Scheduling: st.SchedulingConfig{Mode: st.SchedulingPush},
	}
}

func (p *recordingSinkProcessor) Setup(ctx *st.ProcessorContext) error { return nil }
func (p *recordingSinkProcessor) Teardown() error                      { return nil }

func (p *recordingSinkProcessor) Process() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks++
	consumer, ok := p.Consumer("in").(*link.Consumer[st.VideoFrame])
	if !ok {
		return nil
	}
	for {
		frame, ok := consumer.TryPop()
		if !ok {
			return nil
		}
		p.frames = append(p.frames, frame)
	}
}

func (p *recordingSinkProcessor) Frames() []st.VideoFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]st.VideoFrame, len(p.frames))
	copy(out, p.frames)
	return out
}

func (p *recordingSinkProcessor) Ticks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks
}

// failingSetupProcessor always fails Setup, grounding scenario S6.
type failingSetupProcessor struct {
	*st.BaseProcessor
}

func newFailingSetupProcessor() *failingSetupProcessor {
	return &failingSetupProcessor{BaseProcessor: st.NewBaseProcessor([]st.Port{videoInPort("in")})}
}

func (p *failingSetupProcessor) Descriptor() st.Descriptor {
	return st.Descriptor{
		Ports:      []st.Port{videoInPort("in")},
		Scheduling: st.SchedulingConfig{Mode: st.SchedulingPush},
	}
}

func (p *failingSetupProcessor) Setup(ctx *st.ProcessorContext) error {
	return fmt.Errorf("boom")
}
func (p *failingSetupProcessor) Teardown() error { return nil }
func (p *failingSetupProcessor) Process() error  { return nil }

// stubFactory adapts a constructor function into a st.ProcessorFactory for
// tests, the way the real factory.go registry expects one factory per
// class name.
type stubFactory struct {
	class string
	desc  st.Descriptor
	build func() st.Processor
}

func (f *stubFactory) ClassName() string      { return f.class }
func (f *stubFactory) Descriptor() st.Descriptor { return f.desc }
func (f *stubFactory) Create(node *st.ProcessorNode) (st.Processor, error) {
	return f.build(), nil
}
