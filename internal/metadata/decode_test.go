package metadata

import (
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/italolelis/ytm_dumper/internal/protowalk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestDecodeEntityKey(t *testing.T) {
	var msg []byte
	msg = protowire.AppendTag(msg, 1, protowire.VarintType)
	msg = protowire.AppendVarint(msg, 198)
	msg = protowire.AppendTag(msg, 2, protowire.BytesType)
	msg = protowire.AppendString(msg, "dQw4w9WgXcQ")

	for name, raw := range map[string]string{
		"std escaped": url.QueryEscape(base64.StdEncoding.EncodeToString(msg)),
		"raw url":     base64.RawURLEncoding.EncodeToString(msg),
	} {
		t.Run(name, func(t *testing.T) {
			id, err := decodeEntityKey(raw)
			require.NoError(t, err)
			assert.Equal(t, "dQw4w9WgXcQ", id)
		})
	}

	_, err := decodeEntityKey(base64.StdEncoding.EncodeToString(protowire.AppendVarint(protowire.AppendTag(nil, 1, protowire.VarintType), 1)))
	assert.Error(t, err)
}

func TestLargestThumbnail(t *testing.T) {
	thumb := func(u string, h uint64) []byte {
		var b []byte
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, u)
		b = protowire.AppendTag(b, 2, protowire.VarintType)

		return protowire.AppendVarint(b, h)
	}

	var b []byte
	for _, th := range [][]byte{thumb("small", 90), thumb("big", 720), thumb("", 1080), thumb("mid", 360)} {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, th)
	}

	msg, err := protowalk.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "big", largestThumbnail(msg))
}
