package ffmpegcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgv(t *testing.T) {
	argv := BuildArgv(&Stream{Input: "vid.mp4", IngestKey: "abc123"})

	assert.Equal(t, []string{
		"ffmpeg", "-re", "-stream_loop", "-1", "-i", "vid.mp4",
		"-c:v", "libx264", "-preset", "veryfast",
		"-b:v", "2500k", "-maxrate", "2500k", "-bufsize", "5000k",
		"-g", "60", "-keyint_min", "60",
		"-c:a", "aac", "-b:a", "128k", "-f", "flv",
		"rtmp://a.rtmp.youtube.com/live2/abc123",
	}, argv)
}

func TestBuildArgvShorts(t *testing.T) {
	argv := BuildArgv(&Stream{Binary: "/usr/bin/ffmpeg", Input: "v.mp4", IngestKey: "k", Shorts: true})

	assert.Equal(t, "/usr/bin/ffmpeg", argv[0])
	n := len(argv)
	assert.Equal(t, []string{"-vf", "scale=720:1280", "rtmp://a.rtmp.youtube.com/live2/k"}, argv[n-3:])
}

func TestTarget(t *testing.T) {
	assert.Equal(t, "rtmp://custom/app/key", (&Stream{IngestKey: "ignored", Override: "rtmp://custom/app/key"}).Target())
	assert.Equal(t, "rtmp://host/live/k", (&Stream{IngestBase: "rtmp://host/live/", IngestKey: "k"}).Target())
}

func TestBuildStringQuotes(t *testing.T) {
	s := FromStream(&Stream{Input: "it's.mp4", IngestKey: "k"}).BuildString()
	assert.Contains(t, s, `'it'\''s.mp4'`)
	assert.Equal(t, "''", shQuote(""))
}
