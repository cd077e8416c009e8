package controller

import (
	"fmt"
	"io"

	"github.com/downfa11-org/xstream/util"
)

// WriteMessage encodes v as one frame: the length prefix, a codec id byte,
// then the CBOR body compressed with codec.
func WriteMessage(w io.Writer, codec string, v any) error {
	body, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	id := util.CompressionID(codec)
	if id != 0 {
		if body, err = util.CompressMessage(body, codec); err != nil {
			return fmt.Errorf("compress message: %w", err)
		}
	}
	frame := make([]byte, 1+len(body))
	frame[0] = id
	copy(frame[1:], body)
	return util.WriteWithLength(w, frame)
}

// ReadMessage reads one frame written by WriteMessage into v. The peer's
// codec is taken from the frame itself.
func ReadMessage(r io.Reader, v any) error {
	frame, err := util.ReadWithLength(r)
	if err != nil {
		return err
	}
	if len(frame) == 0 {
		return fmt.Errorf("%w: empty frame", errBadRequest)
	}
	codec, ok := util.CompressionByID(frame[0])
	if !ok {
		return fmt.Errorf("%w: unknown codec id %d", errBadRequest, frame[0])
	}
	body := frame[1:]
	if frame[0] != 0 {
		if body, err = util.DecompressMessage(body, codec); err != nil {
			return fmt.Errorf("%w: decompress: %w", errBadRequest, err)
		}
	}
	if err := Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decode: %w", errBadRequest, err)
	}
	return nil
}
