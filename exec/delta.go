package exec

import st "github.com/streamrt/streamrt"

// Delta is the four ordered sets computed by diffing the graph's declared
// ids against the execution graph's current ids.
type Delta struct {
	ProcessorsToAdd    []st.ProcessorId
	ProcessorsToRemove []st.ProcessorId
	LinksToAdd         []st.LinkId
	LinksToRemove      []st.LinkId
}

// Empty reports whether the delta has nothing to apply.
func (d Delta) Empty() bool {
	return len(d.ProcessorsToAdd) == 0 && len(d.ProcessorsToRemove) == 0 &&
		len(d.LinksToAdd) == 0 && len(d.LinksToRemove) == 0
}

// diffProcessorIds and diffLinkIds compute a set difference between desired
// (graph) and current (execution graph) id lists. Config changes to an
// existing processor or link are not detected here: they are modelled as
// remove+add by the caller re-declaring the id under a fresh id.
func diffProcessorIds(desired, running []st.ProcessorId) (toAdd, toRemove []st.ProcessorId) {
	desiredSet := make(map[st.ProcessorId]bool, len(desired))
	for _, id := range desired {
		desiredSet[id] = true
	}
	runningSet := make(map[st.ProcessorId]bool, len(running))
	for _, id := range running {
		runningSet[id] = true
	}
	for id := range desiredSet {
		if !runningSet[id] {
			toAdd = append(toAdd, id)
		}
	}
	for id := range runningSet {
		if !desiredSet[id] {
			toRemove = append(toRemove, id)
		}
	}
	return toAdd, toRemove
}

func diffLinkIds(desired, wired []st.LinkId) (toAdd, toRemove []st.LinkId) {
	desiredSet := make(map[st.LinkId]bool, len(desired))
	for _, id := range desired {
		desiredSet[id] = true
	}
	wiredSet := make(map[st.LinkId]bool, len(wired))
	for _, id := range wired {
		wiredSet[id] = true
	}
	for id := range desiredSet {
		if !wiredSet[id] {
			toAdd = append(toAdd, id)
		}
	}
	for id := range wiredSet {
		if !desiredSet[id] {
			toRemove = append(toRemove, id)
		}
	}
	return toAdd, toRemove
}
