package transform

import (
	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/rid"
	"github.com/rerun-go/rerun/store"
)

// sourceFrameState is the per-(timeline, source frame) triple of
// independent ordered maps (spec.md §4.6 data model): frame_transforms
// always present, pose_transforms/pinhole_projections lazily allocated
// only once something actually populates them — the recovered addition
// from the original's three-way split (see DESIGN.md).
type sourceFrameState struct {
	frame   *orderedIndex[Mat4]
	pose    *orderedIndex[PoseTransforms]
	pinhole *orderedIndex[ResolvedPinholeProjection]
}

func newSourceFrameState() *sourceFrameState {
	return &sourceFrameState{frame: newOrderedIndex[Mat4]()}
}

func (s *sourceFrameState) isEmpty() bool {
	return s.frame.IsEmpty() &&
		(s.pose == nil || s.pose.IsEmpty()) &&
		(s.pinhole == nil || s.pinhole.IsEmpty())
}

// timelineIndex is CachedTransformsForTimeline: every source frame's
// state for one timeline (or for the static "timeline").
type timelineIndex struct {
	perSourceFrame map[FrameId]*sourceFrameState
}

func newTimelineIndex() *timelineIndex {
	return &timelineIndex{perSourceFrame: make(map[FrameId]*sourceFrameState)}
}

func (t *timelineIndex) get(frame FrameId) *sourceFrameState {
	s, ok := t.perSourceFrame[frame]
	if !ok {
		s = newSourceFrameState()
		t.perSourceFrame[frame] = s
	}
	return s
}

// chunkContribution records exactly what one chunk added to the cache,
// so remove_chunk can undo exactly that (spec.md §4.6 step 3) without
// the original's separate per-entity aggregation bookkeeping — a
// chunk-id-indexed ledger is simpler and loses nothing since GC always
// removes one whole chunk at a time (see DESIGN.md).
type chunkContribution struct {
	timeline rid.TimelineName // empty for a static chunk
	frame    FrameId
	aspects  Aspect
	times    []int64
}

// Cache is TransformResolutionCache (spec.md §4.6). It is not
// internally synchronized: per spec.md §5, callers are expected to
// drive process_store_events from a single thread (typically once per
// frame). store.Store notifies subscribers synchronously from whichever
// goroutine calls InsertChunk or GC, so callers that insert from several
// goroutines must serialize those calls themselves.
type Cache struct {
	store *store.Store

	static      *timelineIndex
	perTimeline map[rid.TimelineName]*timelineIndex

	contributions map[rid.ChunkId][]chunkContribution
	recursiveClearTimes map[string][]int64 // entity path string -> clear times, across all timelines
}

// NewCache builds an empty cache bound to s. Call s.Subscribe(cache) to
// keep it live, or drive ProcessStoreEvents manually from captured
// batches.
func NewCache(s *store.Store) *Cache {
	return &Cache{
		store:               s,
		static:               newTimelineIndex(),
		perTimeline:          make(map[rid.TimelineName]*timelineIndex),
		contributions:        make(map[rid.ChunkId][]chunkContribution),
		recursiveClearTimes: make(map[string][]int64),
	}
}

// OnEvents implements store.Subscriber, so Cache can be wired directly
// via store.Store.Subscribe (spec.md §4.6's "after process_store_events,
// no previously-reachable (entity, time) transform is stale").
func (c *Cache) OnEvents(events []store.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case store.EventAdd:
			c.AddChunk(ev.Chunk)
		case store.EventDeletion:
			c.RemoveChunk(ev.Chunk)
		}
	}
}

// AddChunk indexes one newly-inserted chunk, dispatching to
// add_temporal_chunk or add_static_chunk per spec.md §4.6 step 1/2.
func (c *Cache) AddChunk(ch *chunk.Chunk) {
	aspects := AspectsOf(ch)
	if aspects == 0 {
		return
	}
	if ch.IsStatic() {
		c.addStaticChunk(ch, aspects)
		return
	}
	c.addTemporalChunk(ch, aspects)
}

func (c *Cache) addTemporalChunk(ch *chunk.Chunk, aspects Aspect) {
	entity := ch.EntityPath()
	frame := FrameForEntity(entity)

	for timeline, tc := range ch.Timelines() {
		minTime, _ := ch.MinTime(timeline)
		times := make([]int64, tc.Len())
		for i := 0; i < tc.Len(); i++ {
			times[i] = tc.At(i)
		}

		idx := c.timelineFor(timeline)
		sf := idx.get(frame)
		if aspects.Has(AspectFrame) {
			sf.frame.InvalidateFrom(minTime)
			for _, t := range times {
				sf.frame.Set(t, Entry[Mat4]{State: Invalidated, Source: entity})
			}
		}
		if aspects.Has(AspectPose) {
			if sf.pose == nil {
				sf.pose = newOrderedIndex[PoseTransforms]()
			}
			sf.pose.InvalidateFrom(minTime)
			for _, t := range times {
				sf.pose.Set(t, Entry[PoseTransforms]{State: Invalidated, Source: entity})
			}
		}
		if aspects.Has(AspectPinholeOrViewCoordinates) {
			if sf.pinhole == nil {
				sf.pinhole = newOrderedIndex[ResolvedPinholeProjection]()
			}
			sf.pinhole.InvalidateFrom(minTime)
			for _, t := range times {
				sf.pinhole.Set(t, Entry[ResolvedPinholeProjection]{State: Invalidated, Source: entity})
			}
		}
		if aspects.Has(AspectClear) {
			c.addRecursiveClear(entity, times)
		}

		c.contributions[ch.Id()] = append(c.contributions[ch.Id()], chunkContribution{timeline: timeline, frame: frame, aspects: aspects, times: times})
	}
}

func (c *Cache) addStaticChunk(ch *chunk.Chunk, aspects Aspect) {
	entity := ch.EntityPath()
	frame := FrameForEntity(entity)

	sf := c.static.get(frame)
	if aspects.Has(AspectFrame) {
		sf.frame.InvalidateAll()
		sf.frame.Set(staticTime, Entry[Mat4]{State: Invalidated, Source: entity})
	}
	if aspects.Has(AspectPose) {
		if sf.pose == nil {
			sf.pose = newOrderedIndex[PoseTransforms]()
		}
		sf.pose.InvalidateAll()
		sf.pose.Set(staticTime, Entry[PoseTransforms]{State: Invalidated, Source: entity})
	}
	if aspects.Has(AspectPinholeOrViewCoordinates) {
		if sf.pinhole == nil {
			sf.pinhole = newOrderedIndex[ResolvedPinholeProjection]()
		}
		sf.pinhole.InvalidateAll()
		sf.pinhole.Set(staticTime, Entry[ResolvedPinholeProjection]{State: Invalidated, Source: entity})
	}
	// A static chunk shadows every known timeline too (spec.md §4.6 step 2).
	for _, idx := range c.perTimeline {
		tsf := idx.get(frame)
		if aspects.Has(AspectFrame) {
			tsf.frame.InvalidateAll()
		}
		if aspects.Has(AspectPose) && tsf.pose != nil {
			tsf.pose.InvalidateAll()
		}
		if aspects.Has(AspectPinholeOrViewCoordinates) && tsf.pinhole != nil {
			tsf.pinhole.InvalidateAll()
		}
	}

	c.contributions[ch.Id()] = []chunkContribution{{frame: frame, aspects: aspects, times: []int64{staticTime}}}
}

// staticTime is the key static contributions occupy in a per-source-
// frame index — any fixed sentinel works since a static chunk always
// contributes exactly one logical row regardless of how many component
// rows it physically carries.
const staticTime = 0

func (c *Cache) addRecursiveClear(entity rid.EntityPath, times []int64) {
	key := entity.String()
	c.recursiveClearTimes[key] = append(c.recursiveClearTimes[key], times...)

	for _, idx := range c.perTimeline {
		for descPath, sf := range idx.perSourceFrame {
			if !descPath.isDescendantString(key) {
				continue
			}
			sf.frame.SetClearAt(times, entity)
			if sf.pose != nil {
				sf.pose.SetClearAt(times, entity)
			}
			if sf.pinhole != nil {
				sf.pinhole.SetClearAt(times, entity)
			}
		}
	}
}

// isDescendantString reports whether f (an entity path string used as a
// FrameId) names a strict descendant of ancestor.
func (f FrameId) isDescendantString(ancestor string) bool {
	return rid.NewEntityPath(string(f)).IsDescendantOf(rid.NewEntityPath(ancestor))
}

// RemoveChunk undoes exactly what AddChunk did for this chunk (spec.md
// §4.6 step 3), dropping the source frame entry if its contribution set
// becomes empty and the timeline entirely if it has no sources left.
func (c *Cache) RemoveChunk(ch *chunk.Chunk) {
	contribs, ok := c.contributions[ch.Id()]
	if !ok {
		return
	}
	delete(c.contributions, ch.Id())

	for _, contrib := range contribs {
		c.removeContribution(contrib)
	}
}

func (c *Cache) removeContribution(contrib chunkContribution) {
	idx := c.static
	if contrib.timeline != "" {
		idx = c.perTimeline[contrib.timeline]
		if idx == nil {
			return
		}
	}
	sf, ok := idx.perSourceFrame[contrib.frame]
	if !ok {
		return
	}
	if contrib.aspects.Has(AspectFrame) {
		sf.frame.RemoveAt(contrib.times)
	}
	if contrib.aspects.Has(AspectPose) && sf.pose != nil {
		sf.pose.RemoveAt(contrib.times)
	}
	if contrib.aspects.Has(AspectPinholeOrViewCoordinates) && sf.pinhole != nil {
		sf.pinhole.RemoveAt(contrib.times)
	}
	if sf.isEmpty() {
		delete(idx.perSourceFrame, contrib.frame)
	}
	if contrib.timeline != "" && len(idx.perSourceFrame) == 0 {
		delete(c.perTimeline, contrib.timeline)
	}
}

func (c *Cache) timelineFor(timeline rid.TimelineName) *timelineIndex {
	idx, ok := c.perTimeline[timeline]
	if !ok {
		idx = newTimelineIndex()
		c.perTimeline[timeline] = idx
	}
	return idx
}

// LatestAtFrameTransform resolves the source-to-target frame transform
// for frame on timeline at or before at (spec.md §4.6 resolution),
// preferring the timeline's own index and falling back to static.
func (c *Cache) LatestAtFrameTransform(timeline rid.TimelineName, frame FrameId, at int64) (Mat4, bool) {
	if idx, ok := c.perTimeline[timeline]; ok {
		if sf, ok := idx.perSourceFrame[frame]; ok {
			if t, e, found := sf.frame.LatestAtOrBefore(at); found {
				return c.resolveFrameEntry(sf.frame, t, e, timeline, frame, at)
			}
		}
	}
	if sf, ok := c.static.perSourceFrame[frame]; ok {
		if t, e, found := sf.frame.LatestAtOrBefore(staticTime); found && t == staticTime {
			return c.resolveFrameEntry(sf.frame, t, e, "", frame, at)
		}
	}
	return Mat4{}, false
}

func (c *Cache) resolveFrameEntry(idx *orderedIndex[Mat4], t int64, e Entry[Mat4], timeline rid.TimelineName, frame FrameId, at int64) (Mat4, bool) {
	switch e.State {
	case Cleared:
		return Mat4{}, false
	case Resident:
		return e.Value, true
	default:
		resolveAt := at
		if timeline == "" {
			resolveAt = staticTime
		}
		m, ok := resolveFrameTransform(c.store, rid.NewEntityPath(string(frame)), timeline, resolveAt)
		if !ok {
			idx.Put(t, Entry[Mat4]{State: Cleared, Source: e.Source})
			return Mat4{}, false
		}
		idx.Put(t, Entry[Mat4]{State: Resident, Value: m, Source: e.Source})
		return m, true
	}
}

// LatestAtPoseTransforms resolves instance poses the same way
// LatestAtFrameTransform resolves frame transforms.
func (c *Cache) LatestAtPoseTransforms(timeline rid.TimelineName, frame FrameId, at int64) (PoseTransforms, bool) {
	idx, ok := c.perTimeline[timeline]
	if !ok {
		return nil, false
	}
	sf, ok := idx.perSourceFrame[frame]
	if !ok || sf.pose == nil {
		return nil, false
	}
	t, e, found := sf.pose.LatestAtOrBefore(at)
	if !found {
		return nil, false
	}
	switch e.State {
	case Cleared:
		return nil, false
	case Resident:
		return e.Value, true
	default:
		v, ok := resolvePoseTransforms(c.store, rid.NewEntityPath(string(frame)), timeline, at)
		if !ok {
			sf.pose.Put(t, Entry[PoseTransforms]{State: Cleared, Source: e.Source})
			return nil, false
		}
		sf.pose.Put(t, Entry[PoseTransforms]{State: Resident, Value: v, Source: e.Source})
		return v, true
	}
}

// LatestAtPinholeProjection resolves a camera's pinhole projection the
// same way LatestAtFrameTransform resolves frame transforms.
func (c *Cache) LatestAtPinholeProjection(timeline rid.TimelineName, frame FrameId, at int64) (ResolvedPinholeProjection, bool) {
	idx, ok := c.perTimeline[timeline]
	if !ok {
		return ResolvedPinholeProjection{}, false
	}
	sf, ok := idx.perSourceFrame[frame]
	if !ok || sf.pinhole == nil {
		return ResolvedPinholeProjection{}, false
	}
	t, e, found := sf.pinhole.LatestAtOrBefore(at)
	if !found {
		return ResolvedPinholeProjection{}, false
	}
	switch e.State {
	case Cleared:
		return ResolvedPinholeProjection{}, false
	case Resident:
		return e.Value, true
	default:
		v, ok := resolvePinholeProjection(c.store, rid.NewEntityPath(string(frame)), timeline, at)
		if !ok {
			sf.pinhole.Put(t, Entry[ResolvedPinholeProjection]{State: Cleared, Source: e.Source})
			return ResolvedPinholeProjection{}, false
		}
		sf.pinhole.Put(t, Entry[ResolvedPinholeProjection]{State: Resident, Value: v, Source: e.Source})
		return v, true
	}
}
