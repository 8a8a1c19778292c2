// Package output renders an encoded token in the textual forms handed back
// to callers: hex, standard base64 and zlib compressed base64.
package output

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// maxInflatedSize bounds Decompress output.
const maxInflatedSize = 1 << 20

var ErrEmptyToken = errors.New("output: empty token")

// Encodings holds every rendering of one token.
type Encodings struct {
	Hex                    string `json:"cwt_hex"`
	Base64                 string `json:"cwt_base64"`
	CompressedBase64       string `json:"cwt_compressed_base64"`
	Size                   int    `json:"size"`
	Base64Length           int    `json:"base64_length"`
	CompressedBase64Length int    `json:"compressed_base64_length"`
}

// Render builds all encodings of token.
func Render(token []byte) (*Encodings, error) {
	if len(token) == 0 {
		return nil, ErrEmptyToken
	}

	compressed, err := Compress(token)
	if err != nil {
		return nil, err
	}

	b64 := base64.StdEncoding.EncodeToString(token)
	zb64 := base64.StdEncoding.EncodeToString(compressed)
	return &Encodings{
		Hex:                    hex.EncodeToString(token),
		Base64:                 b64,
		CompressedBase64:       zb64,
		Size:                   len(token),
		Base64Length:           len(b64),
		CompressedBase64Length: len(zb64),
	}, nil
}

// Compress returns the zlib stream of data at the default level.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress token: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress token: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a base64 encoded zlib stream back to the token bytes.
func Decompress(compressedBase64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(compressedBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid zlib stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxInflatedSize+1))
	if err != nil {
		return nil, fmt.Errorf("invalid zlib stream: %w", err)
	}
	if len(out) > maxInflatedSize {
		return nil, errors.New("inflated token too large")
	}
	return out, nil
}

// WriteText prints the renderings the way the command line tool reports them.
func WriteText(w io.Writer, enc *Encodings) error {
	_, err := fmt.Fprintf(w,
		"CWT hex: %s\nCWT base64: %s\nCWT base64 character length: %d\nCWT compressed base64 character length: %d\n",
		enc.Hex, enc.Base64, enc.Base64Length, enc.CompressedBase64Length,
	)
	return err
}
