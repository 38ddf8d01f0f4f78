package grpcproxy

import (
	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/rid"
)

// storeIdWire is the JSON projection of a rid.StoreId, shared by every
// message kind below that needs to carry one.
type storeIdWire struct {
	ApplicationId string `json:"application_id"`
	RecordingId   string `json:"recording_id"`
	Kind          int    `json:"kind"`
}

func toStoreIdWire(id rid.StoreId) storeIdWire {
	return storeIdWire{ApplicationId: id.ApplicationId, RecordingId: id.RecordingId, Kind: int(id.Kind)}
}

func fromStoreIdWire(w storeIdWire) rid.StoreId {
	return rid.StoreId{ApplicationId: w.ApplicationId, RecordingId: w.RecordingId, Kind: rid.StoreKind(w.Kind)}
}

type storeInfoWire struct {
	StoreId       storeIdWire `json:"store_id"`
	StoreSource   string      `json:"store_source,omitempty"`
	RecordingName string      `json:"recording_name,omitempty"`
}

func toStoreInfoWire(info logmsg.StoreInfo) storeInfoWire {
	return storeInfoWire{
		StoreId:       toStoreIdWire(info.StoreId),
		StoreSource:   info.StoreSource,
		RecordingName: info.RecordingName,
	}
}

func fromStoreInfoWire(w storeInfoWire) logmsg.StoreInfo {
	return logmsg.StoreInfo{
		StoreId:       fromStoreIdWire(w.StoreId),
		StoreSource:   w.StoreSource,
		RecordingName: w.RecordingName,
	}
}

// logMsgWire is the JSON-over-gRPC projection of one logmsg.LogMsg,
// grounded on sink/envelope.go's envelope type. An ArrowMsg carries
// across only its StoreId and its chunk's entity path, not the column
// data (sink/envelope.go does encode row ids, timelines and components),
// and fromLogMsgWire restores only the StoreId, leaving Chunk nil —
// full chunk wire (de)serialization stays out of scope until a
// real columnar encoding replaces arrowshim.
type logMsgWire struct {
	Kind int `json:"kind"`

	Info *storeInfoWire `json:"info,omitempty"`

	StoreId    *storeIdWire `json:"store_id,omitempty"`
	EntityPath string       `json:"entity_path,omitempty"`

	BlueprintId *storeIdWire `json:"blueprint_id,omitempty"`
	MakeActive  bool         `json:"make_active,omitempty"`
	MakeDefault bool         `json:"make_default,omitempty"`
}

func toLogMsgWire(msg logmsg.LogMsg) logMsgWire {
	w := logMsgWire{Kind: int(msg.Kind)}
	switch msg.Kind {
	case logmsg.KindSetStoreInfo:
		info := toStoreInfoWire(msg.Info)
		w.Info = &info
	case logmsg.KindArrowMsg:
		id := toStoreIdWire(msg.StoreId)
		w.StoreId = &id
		if msg.Chunk != nil {
			w.EntityPath = msg.Chunk.EntityPath().String()
		}
	case logmsg.KindBlueprintActivation:
		id := toStoreIdWire(msg.BlueprintId)
		w.BlueprintId = &id
		w.MakeActive = msg.MakeActive
		w.MakeDefault = msg.MakeDefault
	}
	return w
}

func fromLogMsgWire(w logMsgWire) logmsg.LogMsg {
	switch logmsg.Kind(w.Kind) {
	case logmsg.KindSetStoreInfo:
		var info logmsg.StoreInfo
		if w.Info != nil {
			info = fromStoreInfoWire(*w.Info)
		}
		return logmsg.NewSetStoreInfo(info)
	case logmsg.KindBlueprintActivation:
		var id rid.StoreId
		if w.BlueprintId != nil {
			id = fromStoreIdWire(*w.BlueprintId)
		}
		return logmsg.NewBlueprintActivation(id, w.MakeActive, w.MakeDefault)
	default:
		var id rid.StoreId
		if w.StoreId != nil {
			id = fromStoreIdWire(*w.StoreId)
		}
		return logmsg.LogMsg{Kind: logmsg.KindArrowMsg, StoreId: id}
	}
}
