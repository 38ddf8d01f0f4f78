package sink

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/rid"
)

// envelope is the on-disk/on-wire JSON projection of one logmsg.LogMsg.
// Chunk and rid types keep their fields unexported (spec.md §3's
// immutable-after-publication invariant), so this is built through their
// public accessors rather than reflecting over the struct directly —
// the same "RRD envelope" role spec.md §4.7 assigns to FileSink's
// stream, scoped down from real Arrow IPC (out of scope per DESIGN.md)
// to the JSON codec this module standardizes on for wire encoding
// (shared with the grpcproxy service).
type envelope struct {
	Kind Kind `json:"kind"`

	RowId         *rowIdWire    `json:"row_id,omitempty"`
	StoreId       *storeIdWire  `json:"store_id,omitempty"`
	RecordingName string        `json:"recording_name,omitempty"`
	StoreSource   string        `json:"store_source,omitempty"`

	Chunk *chunkWire `json:"chunk,omitempty"`

	BlueprintId *storeIdWire `json:"blueprint_id,omitempty"`
	MakeActive  bool         `json:"make_active,omitempty"`
	MakeDefault bool         `json:"make_default,omitempty"`
}

type Kind = logmsg.Kind

type rowIdWire struct {
	TimestampNanos int64  `json:"t"`
	Counter        uint64 `json:"c"`
}

type storeIdWire struct {
	ApplicationId string `json:"app_id"`
	RecordingId   string `json:"recording_id"`
	Kind          int    `json:"kind"`
}

type chunkWire struct {
	EntityPath string                     `json:"entity_path"`
	RowIds     []rowIdWire                `json:"row_ids"`
	Timelines  map[string][]int64         `json:"timelines,omitempty"`
	Components map[string][][]any         `json:"components,omitempty"`
}

func toRowIdWire(r rid.RowId) rowIdWire {
	return rowIdWire{TimestampNanos: r.TimestampNanos, Counter: r.Counter}
}

func fromRowIdWire(w rowIdWire) rid.RowId {
	return rid.RowId{TimestampNanos: w.TimestampNanos, Counter: w.Counter}
}

func toStoreIdWire(s rid.StoreId) *storeIdWire {
	return &storeIdWire{ApplicationId: s.ApplicationId, RecordingId: s.RecordingId, Kind: int(s.Kind)}
}

func fromStoreIdWire(w *storeIdWire) rid.StoreId {
	if w == nil {
		return rid.StoreId{}
	}
	return rid.StoreId{ApplicationId: w.ApplicationId, RecordingId: w.RecordingId, Kind: rid.StoreKind(w.Kind)}
}

func toChunkWire(c *chunk.Chunk) *chunkWire {
	if c == nil {
		return nil
	}
	w := &chunkWire{
		EntityPath: c.EntityPath().String(),
		Timelines:  make(map[string][]int64, len(c.Timelines())),
		Components: make(map[string][][]any, len(c.Components())),
	}
	for _, r := range c.RowIds() {
		w.RowIds = append(w.RowIds, toRowIdWire(r))
	}
	for name, tc := range c.Timelines() {
		w.Timelines[string(name)] = append([]int64(nil), tc.TimesRaw()...)
	}
	for desc, arr := range c.Components() {
		rows := make([][]any, arr.Len())
		for i := 0; i < arr.Len(); i++ {
			rows[i] = arr.At(i)
		}
		w.Components[componentKey(desc)] = rows
	}
	return w
}

// componentKey flattens a ComponentDescriptor to one delimited string so
// it can be a JSON object key; rid.ComponentDescriptor itself has no
// canonical string form, so this is scoped to the envelope alone.
func componentKey(d rid.ComponentDescriptor) string {
	return fmt.Sprintf("%s|%s|%s", d.ArchetypeName, d.ArchetypeFieldName, d.ComponentName)
}

// EncodeLogMsg writes one envelope-encoded LogMsg to w, the encode
// counterpart to DecodeLogMsg. Exported for callers (cmd/rerun, tests)
// that need to produce the same newline-delimited JSON format
// FileSink/NewStdoutFileSink write.
func EncodeLogMsg(w io.Writer, msg logmsg.LogMsg) error {
	return encodeLogMsg(w, msg)
}

func encodeLogMsg(w io.Writer, msg logmsg.LogMsg) error {
	env := envelope{Kind: msg.Kind}
	switch msg.Kind {
	case logmsg.KindSetStoreInfo:
		rowId := toRowIdWire(msg.RowId)
		env.RowId = &rowId
		env.StoreId = toStoreIdWire(msg.Info.StoreId)
		env.RecordingName = msg.Info.RecordingName
		env.StoreSource = msg.Info.StoreSource
	case logmsg.KindArrowMsg:
		env.StoreId = toStoreIdWire(msg.StoreId)
		env.Chunk = toChunkWire(msg.Chunk)
	case logmsg.KindBlueprintActivation:
		env.BlueprintId = toStoreIdWire(msg.BlueprintId)
		env.MakeActive = msg.MakeActive
		env.MakeDefault = msg.MakeDefault
	}
	enc := json.NewEncoder(w)
	return enc.Encode(env)
}

// DecodeLogMsg reads one envelope-encoded LogMsg from dec, the decode
// counterpart to encodeLogMsg's writer side. Exported so cmd/rerun can
// read the same newline-delimited JSON format FileSink/NewStdoutFileSink
// write, without depending on this package's unexported wire types.
func DecodeLogMsg(dec *json.Decoder) (logmsg.LogMsg, error) {
	return decodeLogMsg(dec)
}

func decodeLogMsg(dec *json.Decoder) (logmsg.LogMsg, error) {
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return logmsg.LogMsg{}, err
	}
	switch env.Kind {
	case logmsg.KindSetStoreInfo:
		info := logmsg.StoreInfo{
			StoreId:       fromStoreIdWire(env.StoreId),
			StoreSource:   env.StoreSource,
			RecordingName: env.RecordingName,
		}
		msg := logmsg.NewSetStoreInfo(info)
		if env.RowId != nil {
			msg.RowId = fromRowIdWire(*env.RowId)
		}
		return msg, nil
	case logmsg.KindBlueprintActivation:
		return logmsg.NewBlueprintActivation(fromStoreIdWire(env.BlueprintId), env.MakeActive, env.MakeDefault), nil
	default:
		return logmsg.LogMsg{Kind: logmsg.KindArrowMsg, StoreId: fromStoreIdWire(env.StoreId)}, nil
	}
}
