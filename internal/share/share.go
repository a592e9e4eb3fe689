// Package share turns a document into a compact URL-safe token and back.
//
// A token is the unpadded URL-safe Base64 encoding of one codec tag byte
// followed by the compressed document.
package share

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	DefaultBaseURL   = "https://example.com/?json="
	DefaultMaxLength = 2000

	// maxDecoded bounds decompressed output so a crafted token cannot
	// expand without limit.
	maxDecoded = 10 << 20
)

// Codec is the tag byte at the front of every token. The values are part
// of the token format.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
)

var (
	ErrEmptyToken     = errors.New("empty share token")
	errIncompressible = errors.New("data is incompressible")
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd", "":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("unknown share codec: %q", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		panic("share: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded))
	if err != nil {
		panic("share: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode compresses text with codec. Input the codec cannot shrink is
// stored with CodecNone instead.
func Encode(text string, codec Codec) (string, error) {
	data := []byte(text)
	var body []byte
	var err error
	switch codec {
	case CodecNone:
		body = data
	case CodecLZ4:
		body, err = compressLZ4(data)
	case CodecZstd:
		body, err = compressZstd(data)
	default:
		return "", fmt.Errorf("unsupported share codec: %d", codec)
	}
	if errors.Is(err, errIncompressible) {
		codec, body, err = CodecNone, data, nil
	}
	if err != nil {
		return "", err
	}
	buf := make([]byte, 0, len(body)+1)
	buf = append(buf, byte(codec))
	buf = append(buf, body...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Decode reverses Encode. The codec is read from the token.
func Decode(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decode share token: %w", err)
	}
	if len(raw) == 0 {
		return "", ErrEmptyToken
	}
	codec, body := Codec(raw[0]), raw[1:]
	var out []byte
	switch codec {
	case CodecNone:
		out = body
	case CodecLZ4:
		out, err = decompressLZ4(body)
	case CodecZstd:
		out, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			err = fmt.Errorf("zstd decompress: %w", err)
		}
	default:
		return "", fmt.Errorf("unsupported share codec: %d", codec)
	}
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Link builds share URLs against a base URL.
type Link struct {
	BaseURL   string
	MaxLength int
	Codec     Codec
}

func DefaultLink() Link {
	return Link{BaseURL: DefaultBaseURL, MaxLength: DefaultMaxLength, Codec: CodecZstd}
}

// URL returns BaseURL followed by the token for text.
func (l Link) URL(text string) (string, error) {
	token, err := Encode(text, l.Codec)
	if err != nil {
		return "", err
	}
	return l.BaseURL + token, nil
}

// TooLong reports whether the URL for text would exceed MaxLength.
func (l Link) TooLong(text string) (bool, error) {
	u, err := l.URL(text)
	if err != nil {
		return false, err
	}
	limit := l.MaxLength
	if limit <= 0 {
		limit = DefaultMaxLength
	}
	return len(u) > limit, nil
}

// TokenFromURL extracts the token from a share URL produced for baseURL, or
// returns s unchanged when it is not such a URL.
func TokenFromURL(s, baseURL string) string {
	if baseURL != "" && strings.HasPrefix(s, baseURL) {
		return strings.TrimPrefix(s, baseURL)
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return s
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return s
	}
	for key := range base.Query() {
		if v := u.Query().Get(key); v != "" {
			return v
		}
	}
	if v := u.Query().Get("json"); v != "" {
		return v
	}
	return s
}

func compressLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errIncompressible
	}
	destination := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(data)))
	n := binary.PutUvarint(destination, uint64(len(data)))
	written, err := lz4.CompressBlock(data, destination[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || n+written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:n+written], nil
}

func decompressLZ4(body []byte) ([]byte, error) {
	size, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, fmt.Errorf("lz4 decompress: bad length header")
	}
	if size > maxDecoded {
		return nil, fmt.Errorf("lz4 decompress: declared size %d exceeds limit", size)
	}
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(body[n:], destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != int(size) {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}
