package stream

import (
	"time"

	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/rid"
)

// propertiesEntityPath is the reserved entity every recording's own
// RecordingInfo properties are logged to (recovered from
// crates/top/re_sdk/src/recording_stream.rs's send_recording_name /
// send_recording_start_time, absent from spec.md's own §4.1 listing).
var propertiesEntityPath = rid.EntityPathFromParts("__properties")

func recordingInfoComponent(field string) rid.ComponentDescriptor {
	return rid.ComponentDescriptor{ArchetypeName: "RecordingInfo", ArchetypeFieldName: field, ComponentName: field}
}

// SendRecordingName logs name as a static RecordingInfo.name property and
// updates the name carried by every future SetStoreInfo (e.g. on a sink
// swap).
func (rs *RecordingStream) SendRecordingName(name string) error {
	if rs.IsDisabled() {
		return nil
	}
	rs.inner.setRecordingName(name)
	return rs.LogStatic(propertiesEntityPath, map[rid.ComponentDescriptor][]any{
		recordingInfoComponent("name"): {name},
	})
}

// SendRecordingStartTime logs startTime as a static
// RecordingInfo.start_time property.
func (rs *RecordingStream) SendRecordingStartTime(startTime time.Time) error {
	if rs.IsDisabled() {
		return nil
	}
	return rs.LogStatic(propertiesEntityPath, map[rid.ComponentDescriptor][]any{
		recordingInfoComponent("start_time"): {startTime.UnixNano()},
	})
}

// ActivateBlueprint sends a BlueprintActivationCommand for blueprintId.
// Per spec.md §4.8 the forwarding thread drops this (with a deduplicated
// warning) if blueprintId's chunks have never been observed.
func (rs *RecordingStream) ActivateBlueprint(blueprintId rid.StoreId, makeActive, makeDefault bool) {
	if rs.IsDisabled() {
		return
	}
	rs.inner.cmds <- command{kind: cmdRecord, msg: logmsg.NewBlueprintActivation(blueprintId, makeActive, makeDefault)}
}
