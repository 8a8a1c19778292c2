package output

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	token := []byte{0xd2, 0x84, 0x43, 0xa1, 0x01, 0x26, 0xa0}

	enc, err := Render(token)
	require.NoError(t, err)

	assert.Equal(t, "d28443a10126a0", enc.Hex)
	assert.Equal(t, base64.StdEncoding.EncodeToString(token), enc.Base64)
	assert.Equal(t, 7, enc.Size)
	assert.Equal(t, 12, enc.Base64Length)
	assert.Equal(t, len(enc.CompressedBase64), enc.CompressedBase64Length)

	raw, err := base64.StdEncoding.DecodeString(enc.CompressedBase64)
	require.NoError(t, err)
	// zlib header, default compression
	assert.Equal(t, byte(0x78), raw[0])

	inflated, err := Decompress(enc.CompressedBase64)
	require.NoError(t, err)
	assert.Equal(t, token, inflated)
}

func TestRenderEmpty(t *testing.T) {
	enc, err := Render(nil)
	assert.ErrorIs(t, err, ErrEmptyToken)
	assert.Nil(t, enc)
}

func TestCompressShrinksRepetitiveTokens(t *testing.T) {
	token := bytes.Repeat([]byte("https://elixir-europe.org/"), 20)
	enc, err := Render(token)
	require.NoError(t, err)
	assert.Less(t, enc.CompressedBase64Length, enc.Base64Length)
}

func TestDecompressErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "not base64", input: "!!!", want: "invalid base64"},
		{name: "not zlib", input: base64.StdEncoding.EncodeToString([]byte("plain")), want: "invalid zlib stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.input)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestWriteText(t *testing.T) {
	enc, err := Render([]byte{0xa0})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, enc))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "CWT hex: a0", lines[0])
	assert.Equal(t, "CWT base64: oA==", lines[1])
	assert.Equal(t, "CWT base64 character length: 4", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "CWT compressed base64 character length: "))
}
