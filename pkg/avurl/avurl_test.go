package avurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitJoinRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"rtmp://a.rtmp.youtube.com/live2/abc-123",
		"rtmps://[2001:db8::1]:443/live2",
		"srt://10.0.0.1:9000?streamid=x",
		"rtmp://user:pw@host/app",
		"/videos/a.mp4",
		"file:",
		"rtmp://[::1]junk/x",
	} {
		u, l := split(raw)
		assert.Equal(t, raw, join(u, l), raw)
	}
}

func TestSplit(t *testing.T) {
	u, _ := split("rtmps://[2001:db8::1]:443/live2/key")
	assert.Equal(t, URL{Scheme: "rtmps", Host: "2001:db8::1", Port: "443", Path: "/live2/key"}, u)

	u, _ = split("rtmp://a@b@host:1935/app")
	assert.Equal(t, "a@b", u.Userinfo)
	assert.Equal(t, "host", u.Host)
	assert.Equal(t, "1935", u.Port)

	u, _ = split("/videos/a.mp4")
	assert.Equal(t, URL{Path: "/videos/a.mp4"}, u)
}

func TestParseIngest(t *testing.T) {
	u, err := ParseIngest("rtmp://a.rtmp.youtube.com/live2")
	require.NoError(t, err)
	assert.Equal(t, "a.rtmp.youtube.com", u.Host)
	assert.Equal(t, "/live2", u.Path)

	_, err = ParseIngest("RTMPS://live.example.com:443/app/key")
	assert.NoError(t, err)

	for raw, msg := range map[string]string{
		"http://example.com/live":       "unsupported scheme",
		"rtmp:///live2":                 "missing host",
		"rtmp://u:p@example.com/live":   "userinfo",
		"rtmp://example.com:70000/live": "bad port",
		"rtmp://exa_mple.com/live":      "bad hostname",
		"rtmp://300.1.1.1/live":         "bad IP",
		"rtmp://[::1]junk/live":         "invalid URL",
		"/videos/a.mp4":                 "unsupported scheme",
	} {
		_, err := ParseIngest(raw)
		if assert.Error(t, err, raw) {
			assert.Contains(t, err.Error(), msg, raw)
		}
	}
}

func TestValidateHost(t *testing.T) {
	assert.NoError(t, ValidateHost("a.rtmp.youtube.com"))
	assert.NoError(t, ValidateHost("127.0.0.1"))
	assert.NoError(t, ValidateHost("fe80::1"))
	assert.Error(t, ValidateHost("-bad.example"))
	assert.Error(t, ValidateHost("1.2.3.256"))
	assert.Error(t, ValidateHost("::ffff:zz"))
}

func TestIsPort(t *testing.T) {
	assert.True(t, isPort("0"))
	assert.True(t, isPort("65535"))
	assert.False(t, isPort("065"))
	assert.False(t, isPort("+42"))
	assert.False(t, isPort(""))
	assert.False(t, isPort("123abc"))
}
