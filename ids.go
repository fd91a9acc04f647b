package streamrt

import uuid "github.com/satori/go.uuid"

// ProcessorId stably identifies a processor node within a single runtime.
// It is opaque to callers beyond equality comparison.
type ProcessorId string

// LinkId stably identifies a link within a single runtime.
type LinkId string

// newProcessorId mints a fresh processor id the same way a Router mints
// RouterId in Worker.CreateRouter.
func newProcessorId() ProcessorId {
	return ProcessorId(uuid.NewV4().String())
}

// NewProcessorId is the exported form of newProcessorId, for callers
// outside this package (the runtime facade) that need to mint ids for
// add_processor.
func NewProcessorId() ProcessorId {
	return newProcessorId()
}

// newLinkId mints a fresh link id the same way a PipeTransport mints ConsumerId
// in PipeTransport.Consume.
func newLinkId() LinkId {
	return LinkId(uuid.NewV4().String())
}
