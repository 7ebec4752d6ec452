package ffmpegcmd

import "strings"

const (
	DefaultBinary     = "ffmpeg"
	DefaultIngestBase = "rtmp://a.rtmp.youtube.com/live2"

	VideoBitrate = "2500k"
	BufferSize   = "5000k"
	AudioBitrate = "128k"
	GOP          = 60

	// ShortsScale produces a 720x1280 vertical frame.
	ShortsScale = "scale=720:1280"
)

// Stream describes one push of a local file to an ingest endpoint.
type Stream struct {
	Binary     string
	Input      string
	IngestBase string // used with IngestKey when Override is empty
	IngestKey  string
	Override   string // full target URL, wins over IngestBase/IngestKey
	Shorts     bool
}

// Target returns the output URL.
func (s *Stream) Target() string {
	if s.Override != "" {
		return s.Override
	}
	base := s.IngestBase
	if base == "" {
		base = DefaultIngestBase
	}
	return strings.TrimRight(base, "/") + "/" + s.IngestKey
}

// FromStream returns a Builder for the canonical invocation:
//
//	ffmpeg -re -stream_loop -1 -i <input>
//	  -c:v libx264 -preset veryfast -b:v 2500k -maxrate 2500k -bufsize 5000k
//	  -g 60 -keyint_min 60 -c:a aac -b:a 128k -f flv [-vf scale=720:1280] <target>
func FromStream(s *Stream) *Builder {
	b := NewBuilder(s.Binary).
		WithSwitch("-re").
		WithIntFlag("-stream_loop", -1).
		WithFlag("-i", s.Input).
		WithFlag("-c:v", "libx264").
		WithFlag("-preset", "veryfast").
		WithFlag("-b:v", VideoBitrate).
		WithFlag("-maxrate", VideoBitrate).
		WithFlag("-bufsize", BufferSize).
		WithIntFlag("-g", GOP).
		WithIntFlag("-keyint_min", GOP).
		WithFlag("-c:a", "aac").
		WithFlag("-b:a", AudioBitrate).
		WithFlag("-f", "flv")
	if s.Shorts {
		b.WithFlag("-vf", ShortsScale)
	}
	return b.WithString(s.Target())
}

// BuildArgv is a convenience over FromStream(s).BuildArgv().
func BuildArgv(s *Stream) []string {
	return FromStream(s).BuildArgv()
}
