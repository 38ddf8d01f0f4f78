// Package urlscheme parses the recording-stream URL scheme from spec.md
// §6: rerun+http proxy/catalog/entry/dataset endpoints, the
// recording://-scheme intra-recording link, and the three fragment
// encodings (selection, when, time_selection). Grounded on the
// teacher's query-parameter-struct style in assets/inventory.go, built
// on net/url the same way.
package urlscheme

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rerun-go/rerun/rerunerr"
	"github.com/rerun-go/rerun/rid"
)

// EndpointKind tags which of spec.md §6's four rerun+http paths (or the
// recording:// scheme) an Endpoint describes.
type EndpointKind int

const (
	EndpointProxy EndpointKind = iota
	EndpointCatalog
	EndpointEntry
	EndpointDataset
	EndpointRecording
)

func (k EndpointKind) String() string {
	switch k {
	case EndpointProxy:
		return "proxy"
	case EndpointCatalog:
		return "catalog"
	case EndpointEntry:
		return "entry"
	case EndpointDataset:
		return "dataset"
	default:
		return "recording"
	}
}

// Endpoint is a parsed recording-stream URL.
type Endpoint struct {
	Kind EndpointKind

	Host string
	Port string

	// EntryId is populated for EndpointEntry and EndpointDataset.
	EntryId string
	// SegmentId is populated for EndpointDataset from the segment_id
	// query parameter.
	SegmentId string

	// EntityPath is populated for EndpointRecording, the path component
	// of a recording://path/to/entity link.
	EntityPath rid.EntityPath

	Fragment Fragment
}

// Fragment is the parsed '#...' suffix spec.md §6 defines: an optional
// data-path selection, an optional single-cell "when", and an optional
// range "time_selection".
type Fragment struct {
	Selection     rid.EntityPath
	HasSelection  bool
	When          TimeSelector
	HasWhen       bool
	TimeSelection TimeRangeSelector
	HasTimeRange  bool
}

// TimeSelector is one `<timeline>@<cell>` fragment term.
type TimeSelector struct {
	Timeline rid.TimelineName
	Cell     rid.TimeCell
}

// TimeRangeSelector is one `<timeline>@<cell>..<cell>` fragment term.
type TimeRangeSelector struct {
	Timeline rid.TimelineName
	From     rid.TimeCell
	To       rid.TimeCell
}

// Parse parses one recording-stream URL (spec.md §6).
func Parse(raw string) (*Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, rerunerr.Wrap(rerunerr.KindUri, "parse url", err)
	}

	switch u.Scheme {
	case "rerun+http", "rerun+https":
		return parseProxyFamily(u)
	case "recording":
		return parseRecording(u)
	default:
		return nil, rerunerr.New(rerunerr.KindUri, fmt.Sprintf("unrecognized scheme %q", u.Scheme))
	}
}

func parseProxyFamily(u *url.URL) (*Endpoint, error) {
	ep := &Endpoint{Host: u.Hostname(), Port: u.Port()}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil, rerunerr.New(rerunerr.KindUri, "rerun+http url has no path")
	}

	switch parts[0] {
	case "proxy":
		ep.Kind = EndpointProxy
	case "catalog":
		ep.Kind = EndpointCatalog
	case "entry":
		if len(parts) < 2 {
			return nil, rerunerr.New(rerunerr.KindUri, "entry url is missing its id")
		}
		ep.Kind = EndpointEntry
		ep.EntryId = parts[1]
	case "dataset":
		if len(parts) < 2 {
			return nil, rerunerr.New(rerunerr.KindUri, "dataset url is missing its id")
		}
		ep.Kind = EndpointDataset
		ep.EntryId = parts[1]
		ep.SegmentId = u.Query().Get("segment_id")
	default:
		return nil, rerunerr.New(rerunerr.KindUri, fmt.Sprintf("unrecognized rerun+http path %q", u.Path))
	}

	frag, err := ParseFragment(u.Fragment)
	if err != nil {
		return nil, err
	}
	ep.Fragment = frag
	return ep, nil
}

func parseRecording(u *url.URL) (*Endpoint, error) {
	path := u.Opaque
	if path == "" {
		path = strings.TrimPrefix(u.Host+u.Path, "")
	}
	ep := &Endpoint{
		Kind:       EndpointRecording,
		EntityPath: rid.NewEntityPath(path),
	}
	frag, err := ParseFragment(u.Fragment)
	if err != nil {
		return nil, err
	}
	ep.Fragment = frag
	return ep, nil
}

// ParseFragment parses a raw '#...' suffix (without the leading '#')
// into its selection/when/time_selection terms (spec.md §6). Unknown
// terms are ignored, matching the viewer's own forward-compatible
// fragment handling.
func ParseFragment(raw string) (Fragment, error) {
	var frag Fragment
	if raw == "" {
		return frag, nil
	}
	for _, term := range strings.Split(raw, "&") {
		key, value, ok := strings.Cut(term, "=")
		if !ok {
			continue
		}
		switch key {
		case "selection":
			frag.Selection = rid.NewEntityPath(value)
			frag.HasSelection = true
		case "when":
			sel, err := parseTimeSelector(value)
			if err != nil {
				return frag, err
			}
			frag.When = sel
			frag.HasWhen = true
		case "time_selection":
			sel, err := parseTimeRangeSelector(value)
			if err != nil {
				return frag, err
			}
			frag.TimeSelection = sel
			frag.HasTimeRange = true
		}
	}
	return frag, nil
}

func parseTimeSelector(value string) (TimeSelector, error) {
	timeline, cellStr, ok := strings.Cut(value, "@")
	if !ok {
		return TimeSelector{}, rerunerr.New(rerunerr.KindUri, fmt.Sprintf("malformed when= term %q", value))
	}
	cell, err := parseCell(cellStr)
	if err != nil {
		return TimeSelector{}, err
	}
	return TimeSelector{Timeline: rid.TimelineName(timeline), Cell: cell}, nil
}

func parseTimeRangeSelector(value string) (TimeRangeSelector, error) {
	timeline, rangeStr, ok := strings.Cut(value, "@")
	if !ok {
		return TimeRangeSelector{}, rerunerr.New(rerunerr.KindUri, fmt.Sprintf("malformed time_selection= term %q", value))
	}
	fromStr, toStr, ok := strings.Cut(rangeStr, "..")
	if !ok {
		return TimeRangeSelector{}, rerunerr.New(rerunerr.KindUri, fmt.Sprintf("malformed time_selection= range %q", rangeStr))
	}
	from, err := parseCell(fromStr)
	if err != nil {
		return TimeRangeSelector{}, err
	}
	to, err := parseCell(toStr)
	if err != nil {
		return TimeRangeSelector{}, err
	}
	return TimeRangeSelector{Timeline: rid.TimelineName(timeline), From: from, To: to}, nil
}

// parseCell interprets a raw fragment cell value as a Sequence, the
// common case for viewer deep-links ("frame_nr@120"); the URL scheme
// carries no type tag to distinguish Sequence/Duration/Timestamp, so
// this is the one reasonable default absent further context.
func parseCell(raw string) (rid.TimeCell, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return rid.TimeCell{}, rerunerr.Wrap(rerunerr.KindUri, fmt.Sprintf("malformed time cell %q", raw), err)
	}
	return rid.Sequence(v), nil
}

func (e *Endpoint) String() string {
	switch e.Kind {
	case EndpointRecording:
		return fmt.Sprintf("recording://%s", e.EntityPath.String())
	case EndpointEntry:
		return fmt.Sprintf("rerun+http://%s:%s/entry/%s", e.Host, e.Port, e.EntryId)
	case EndpointDataset:
		return fmt.Sprintf("rerun+http://%s:%s/dataset/%s?segment_id=%s", e.Host, e.Port, e.EntryId, e.SegmentId)
	default:
		return fmt.Sprintf("rerun+http://%s:%s/%s", e.Host, e.Port, e.Kind)
	}
}
