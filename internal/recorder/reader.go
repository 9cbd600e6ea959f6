package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrChecksumMismatch = errors.New("journal checksum mismatch")
	ErrPayloadTooLarge  = errors.New("journal payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes journal records sequentially.
type Reader struct {
	r         *bufio.Reader
	opts      ReaderOptions
	headerBuf []byte
	payload   []byte
}

func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:         bufio.NewReader(r),
		opts:      opts,
		headerBuf: make([]byte, recordHeaderSize),
	}
}

// Next returns the next record, or io.EOF at a clean end of input. A record cut
// short by a crash is reported as io.ErrUnexpectedEOF.
// The payload is only valid until the next call to Next.
func (r *Reader) Next() (Record, error) {
	if _, err := io.ReadFull(r.r, r.headerBuf); err != nil {
		return Record{}, err
	}

	rec, payloadLen, err := decodeRecordHeader(r.headerBuf)
	if err != nil {
		return Record{}, err
	}
	if r.opts.MaxPayloadSize > 0 && payloadLen > uint32(r.opts.MaxPayloadSize) {
		return Record{}, ErrPayloadTooLarge
	}

	if cap(r.payload) < int(payloadLen) {
		r.payload = make([]byte, payloadLen)
	}
	r.payload = r.payload[:payloadLen]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return Record{}, truncated(err)
	}

	var checksumBuf [recordChecksumSize]byte
	if _, err := io.ReadFull(r.r, checksumBuf[:]); err != nil {
		return Record{}, truncated(err)
	}
	if !r.opts.DisableChecksum {
		if sum := checksum(r.headerBuf, r.payload); sum != binary.LittleEndian.Uint32(checksumBuf[:]) {
			return Record{}, ErrChecksumMismatch
		}
	}

	rec.Payload = r.payload
	return rec, nil
}

// truncated reports a clean EOF inside a record as io.ErrUnexpectedEOF.
func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
