package recorder

import (
	"encoding/binary"
	"io"

	"marketfeed/internal/model"
)

// Writer frames events as journal records onto any stream: a journal file or a
// socket. It is not safe for concurrent use.
type Writer struct {
	w           io.Writer
	headerBuf   []byte
	checksumBuf [recordChecksumSize]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, headerBuf: make([]byte, recordHeaderSize)}
}

// Write encodes ev and writes header, payload and checksum.
func (w *Writer) Write(ev model.Event) error {
	payload, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	rec := recordOf(ev, payload)

	encodeHeader(w.headerBuf, rec, len(payload))
	binary.LittleEndian.PutUint32(w.checksumBuf[:], checksum(w.headerBuf, payload))
	if _, err := w.w.Write(w.headerBuf); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	_, err = w.w.Write(w.checksumBuf[:])
	return err
}
