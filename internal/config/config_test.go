package config

import (
	"encoding/base64"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("YTM_DEST", "/music")
	t.Setenv("YTM_WORKERS", "3")
	t.Setenv("YTM_LOG_LEVEL", "debug")
	t.Setenv("YTM_WEB_READ_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/music", cfg.Dest)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, time.Hour, cfg.PartialMaxAge)
	assert.Equal(t, 5*time.Second, cfg.Web.ReadTimeout)
}

func TestConfig_Validate(t *testing.T) {
	ok := Config{StreamDir: "/cache"}
	require.NoError(t, ok.Validate())

	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{StreamDir: "/c", Workers: -1}).Validate())
	assert.Error(t, (&Config{IndexPath: "/c/i.exi", IVPrefix: 17}).Validate())
}

func TestDecodeKey(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0xfe}

	for name, enc := range map[string]*base64.Encoding{
		"std":     base64.StdEncoding,
		"raw std": base64.RawStdEncoding,
		"url":     base64.URLEncoding,
		"raw url": base64.RawURLEncoding,
	} {
		t.Run(name, func(t *testing.T) {
			key, err := DecodeKey(enc.EncodeToString(raw))
			require.NoError(t, err)
			assert.Equal(t, raw, key)
		})
	}

	_, err := DecodeKey(base64.StdEncoding.EncodeToString(raw[:10]))
	assert.Error(t, err, "wrong size")

	_, err = DecodeKey("!!!")
	assert.Error(t, err)

	_, err = DecodeKey("")
	assert.Error(t, err)
}

func TestParseSince(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, loc)

	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "", want: time.Time{}},
		{in: "24h", want: now.Add(-24 * time.Hour)},
		{in: "90m", want: now.Add(-90 * time.Minute)},
		{in: "3d", want: now.Add(-72 * time.Hour)},
		{in: "today", want: time.Date(2024, 3, 10, 0, 0, 0, 0, loc)},
		{in: "Yesterday", want: time.Date(2024, 3, 9, 0, 0, 0, 0, loc)},
		{in: "2024-01-05", want: time.Date(2024, 1, 5, 0, 0, 0, 0, loc)},
		{in: "2024-01-05T10:00:00Z", want: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)},
		{in: "Jan 2", want: time.Date(2024, 1, 2, 0, 0, 0, 0, loc)},
		{in: "Dec 25", want: time.Date(2023, 12, 25, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSince(tt.in, now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}

	for _, bad := range []string{"last week", "-1h", "xd"} {
		_, err := ParseSince(bad, now)
		assert.Error(t, err, bad)
	}
}
