package tiled

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Encoding of a layer's tile data
type Encoding string

// Compression of a layer's (base64) tile data
type Compression string

const (
	EncodingCSV    Encoding = "csv"
	EncodingBase64 Encoding = "base64"

	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
	CompressionZlib Compression = "zlib"
	CompressionZstd Compression = "zstd" // recognised, but we can't inflate it
)

// Decode turns a layer payload into tile IDs.
//
// CSV payloads are comma separated decimals (whitespace is ignored).
// Base64 payloads are decoded, inflated if `comp` is set, then read as little
// endian uint32s. Decoded data that isn't a whole number of IDs is an error;
// we never pad or truncate.
func Decode(payload []byte, enc Encoding, comp Compression) ([]uint32, error) {
	switch enc {
	case EncodingCSV, "":
		if comp != CompressionNone {
			return nil, &CompressionError{Format: comp, Cause: CauseUnsupported, InputSize: len(payload)}
		}
		return decodeCSV(payload)
	case EncodingBase64:
		return decodeBase64(payload, comp)
	}
	return nil, &SchemaError{Field: "encoding", Value: enc, Reason: "unsupported encoding"}
}

// decodeCSV reads csv encoded tile data. A single trailing empty token
// (ie. "1,2,3,") is tolerated.
func decodeCSV(payload []byte) ([]uint32, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return []uint32{}, nil
	}

	tokens := bytes.Split(payload, []byte{','})
	ids := make([]uint32, 0, len(tokens))

	offset := 0
	for i, raw := range tokens {
		lead := len(raw) - len(bytes.TrimLeft(raw, " \t\r\n"))
		start := offset + lead
		offset += len(raw) + 1

		tok := strings.TrimSpace(string(raw))
		if tok == "" && i > 0 && i == len(tokens)-1 {
			break
		}

		id, err := strconv.ParseUint(tok, 10, 32)
		if err != nil {
			return nil, &InvalidTokenError{Token: tok, Index: i, Offset: start, Err: err}
		}
		ids = append(ids, uint32(id))
	}

	return ids, nil
}

func decodeBase64(payload []byte, comp Compression) ([]uint32, error) {
	raw := bytes.TrimSpace(payload)

	buf := make([]byte, base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(buf, raw)
	if err != nil {
		var corrupt base64.CorruptInputError
		if errors.As(err, &corrupt) {
			return nil, &Base64Error{Offset: int64(corrupt), Err: err}
		}
		return nil, &Base64Error{Err: err}
	}

	data, err := inflate(buf[:n], comp)
	if err != nil {
		return nil, err
	}

	return bytesToIDs(data)
}

// inflate decompresses `data` according to `comp`
func inflate(data []byte, comp Compression) ([]byte, error) {
	var (
		reader io.ReadCloser
		err    error
	)

	switch comp {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		reader, err = gzip.NewReader(bytes.NewReader(data))
	case CompressionZlib:
		reader, err = zlib.NewReader(bytes.NewReader(data))
	default:
		return nil, &CompressionError{Format: comp, Cause: CauseUnsupported, InputSize: len(data)}
	}
	if err != nil {
		return nil, newCompressionError(comp, len(data), err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, newCompressionError(comp, len(data), err)
	}
	return out, nil
}

// newCompressionError sorts an inflate error into truncated or corrupt.
func newCompressionError(comp Compression, size int, err error) *CompressionError {
	cause := CauseCorrupt
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		cause = CauseTruncated
	}
	return &CompressionError{Format: comp, Cause: cause, InputSize: size, Err: err}
}

// bytesToIDs reads little endian uint32s
func bytesToIDs(data []byte) ([]uint32, error) {
	if rem := len(data) % 4; rem != 0 {
		return nil, &MalformedDataError{Length: len(data), Extra: rem, Missing: 4 - rem}
	}

	ids := make([]uint32, len(data)/4)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return ids, nil
}

// Encode is the reverse of Decode. For CSV data `width` sets the number of
// IDs written per line (0 writes a single line).
func Encode(ids []uint32, width int, enc Encoding, comp Compression) ([]byte, error) {
	switch enc {
	case EncodingCSV, "":
		if comp != CompressionNone {
			return nil, &CompressionError{Format: comp, Cause: CauseUnsupported}
		}
		return encodeCSV(ids, width), nil
	case EncodingBase64:
		return encodeBase64(ids, comp)
	}
	return nil, &SchemaError{Field: "encoding", Value: enc, Reason: "unsupported encoding"}
}

// encodeCSV turns our list of tile ids into csv format
func encodeCSV(ids []uint32, width int) []byte {
	if width <= 0 {
		width = len(ids)
	}

	rows := []string{}
	for start := 0; start < len(ids); start += width {
		end := start + width
		if end > len(ids) {
			end = len(ids)
		}

		csvrow := make([]string, end-start)
		for i, id := range ids[start:end] {
			csvrow[i] = strconv.FormatUint(uint64(id), 10)
		}
		rows = append(rows, strings.Join(csvrow, ","))
	}

	return []byte(strings.Join(rows, ",\n"))
}

func encodeBase64(ids []uint32, comp Compression) ([]byte, error) {
	data := make([]byte, len(ids)*4)
	for i, id := range ids {
		binary.LittleEndian.PutUint32(data[i*4:], id)
	}

	buf := bytes.Buffer{}
	var w io.WriteCloser
	switch comp {
	case CompressionNone:
		buf.Write(data)
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	case CompressionZlib:
		w = zlib.NewWriter(&buf)
	default:
		return nil, &CompressionError{Format: comp, Cause: CauseUnsupported, InputSize: len(data)}
	}

	if w != nil {
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(buf.Len()))
	base64.StdEncoding.Encode(out, buf.Bytes())
	return out, nil
}
