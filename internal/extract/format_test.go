package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "1.56 GiB", HumanSize(1675037245))
	assert.Equal(t, "45.7 MiB", HumanSize(47919923))
	assert.Equal(t, "N/A", HumanSize(0))
	assert.Equal(t, "999.0 MiB", HumanSize(999*1024*1024))
	assert.Equal(t, "0.98 GiB", HumanSize(1000*1024*1024))
}

const sampleDocument = `{
  "id": "abc",
  "title": "Sample clip",
  "thumbnail": "https://i.example.com/t.jpg",
  "duration": 120,
  "formats": [
    {"format_id": "sb0", "ext": "mhtml", "vcodec": "none", "acodec": "none"},
    {"format_id": "sb1", "ext": "webp", "vcodec": "images", "acodec": "none"},
    {"ext": "mp4", "vcodec": "avc1"},
    {"format_id": "140", "ext": "m4a", "resolution": "audio only", "filesize": 47919923, "format_note": "medium", "vcodec": "none", "acodec": "mp4a.40.2"},
    {"format_id": "248", "ext": "webm", "height": 1080, "filesize_approx": 1675037245, "vcodec": "vp9", "acodec": "none"},
    {"format_id": "18", "ext": "mp4", "width": 640, "height": 360, "tbr": 500, "vcodec": "avc1.42001E", "acodec": "mp4a.40.2"},
    {"format_id": "hls", "ext": "mp4", "filesize": null}
  ]
}`

func TestParseMediaInfo(t *testing.T) {
	info, err := ParseMediaInfo([]byte(sampleDocument))
	require.NoError(t, err)

	assert.Equal(t, "Sample clip", info.Title)
	assert.Equal(t, "https://i.example.com/t.jpg", info.Thumbnail)
	assert.Equal(t, 120.0, info.Duration)
	require.Len(t, info.Formats, 4)

	audio := info.Formats[0]
	assert.Equal(t, "140", audio.FormatID)
	assert.Equal(t, "audio only", audio.Resolution)
	assert.Equal(t, "45.7 MiB", audio.Filesize)
	assert.Equal(t, "medium", audio.Note)
	assert.Equal(t, "none", audio.VCodec)

	video := info.Formats[1]
	assert.Equal(t, "1080p", video.Resolution)
	assert.Equal(t, "1.56 GiB", video.Filesize)
	assert.True(t, video.IsVideoOnly())

	// 500 kbit/s over 120s.
	muxed := info.Formats[2]
	assert.Equal(t, int64(7500000), muxed.FilesizeBytes)
	assert.Equal(t, "7.2 MiB", muxed.Filesize)

	unknown := info.Formats[3]
	assert.Equal(t, "N/A", unknown.Filesize)
	assert.Equal(t, "audio only", unknown.Resolution)
	assert.Equal(t, "none", unknown.VCodec)
	assert.Equal(t, "none", unknown.ACodec)
}

func TestParseMediaInfo_DurationDefaultsToZero(t *testing.T) {
	info, err := ParseMediaInfo([]byte(`{"title":"t","formats":[{"format_id":"1","ext":"mp4","tbr":100}]}`))
	require.NoError(t, err)
	assert.Zero(t, info.Duration)
	require.Len(t, info.Formats, 1)
	assert.Equal(t, "N/A", info.Formats[0].Filesize)
	assert.NotNil(t, info.Formats)
}

func TestParseMediaInfo_Rejects(t *testing.T) {
	_, err := ParseMediaInfo([]byte(`{"duration": 10, "formats": []}`))
	assert.ErrorIs(t, err, errMissingTitle)

	_, err = ParseMediaInfo([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseMediaInfo([]byte(`{"title": 42}`))
	assert.Error(t, err)
}
