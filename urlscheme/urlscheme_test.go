package urlscheme

import (
	"testing"

	"github.com/rerun-go/rerun/rid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProxyEndpoint(t *testing.T) {
	ep, err := Parse("rerun+http://localhost:9876/proxy")
	require.NoError(t, err)
	assert.Equal(t, EndpointProxy, ep.Kind)
	assert.Equal(t, "localhost", ep.Host)
	assert.Equal(t, "9876", ep.Port)
}

func TestParseCatalogEndpoint(t *testing.T) {
	ep, err := Parse("rerun+http://example.com:1234/catalog")
	require.NoError(t, err)
	assert.Equal(t, EndpointCatalog, ep.Kind)
}

func TestParseEntryEndpoint(t *testing.T) {
	ep, err := Parse("rerun+http://host:80/entry/abc-123")
	require.NoError(t, err)
	assert.Equal(t, EndpointEntry, ep.Kind)
	assert.Equal(t, "abc-123", ep.EntryId)
}

func TestParseDatasetEndpointWithSegment(t *testing.T) {
	ep, err := Parse("rerun+http://host:80/dataset/ds1?segment_id=seg9")
	require.NoError(t, err)
	assert.Equal(t, EndpointDataset, ep.Kind)
	assert.Equal(t, "ds1", ep.EntryId)
	assert.Equal(t, "seg9", ep.SegmentId)
}

func TestParseDatasetEndpointWithFragment(t *testing.T) {
	ep, err := Parse("rerun+http://host:80/dataset/ds1?segment_id=seg9#selection=world/points&when=frame_nr@42")
	require.NoError(t, err)
	require.True(t, ep.Fragment.HasSelection)
	assert.Equal(t, rid.NewEntityPath("world/points").String(), ep.Fragment.Selection.String())
	require.True(t, ep.Fragment.HasWhen)
	assert.Equal(t, rid.TimelineName("frame_nr"), ep.Fragment.When.Timeline)
	assert.Equal(t, rid.Sequence(42), ep.Fragment.When.Cell)
}

func TestParseTimeSelectionRange(t *testing.T) {
	frag, err := ParseFragment("time_selection=frame_nr@10..20")
	require.NoError(t, err)
	require.True(t, frag.HasTimeRange)
	assert.Equal(t, rid.TimelineName("frame_nr"), frag.TimeSelection.Timeline)
	assert.Equal(t, rid.Sequence(10), frag.TimeSelection.From)
	assert.Equal(t, rid.Sequence(20), frag.TimeSelection.To)
}

func TestParseRecordingLink(t *testing.T) {
	ep, err := Parse("recording://world/camera/lens")
	require.NoError(t, err)
	assert.Equal(t, EndpointRecording, ep.Kind)
	assert.Equal(t, "world/camera/lens", ep.EntityPath.String()[1:])
}

func TestParseRejectsUnknownScheme(t *testing.T) {
	_, err := Parse("ftp://host/path")
	assert.Error(t, err)
}

func TestParseRejectsUnknownPath(t *testing.T) {
	_, err := Parse("rerun+http://host:80/bogus")
	assert.Error(t, err)
}

func TestParseFragmentEmpty(t *testing.T) {
	frag, err := ParseFragment("")
	require.NoError(t, err)
	assert.False(t, frag.HasSelection)
	assert.False(t, frag.HasWhen)
	assert.False(t, frag.HasTimeRange)
}
