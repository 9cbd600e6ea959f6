package recorder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"

	"marketfeed/internal/model/enum"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 32
	recordChecksumSize        = 4
)

var (
	recordMagic = [4]byte{'M', 'F', 'J', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("journal invalid magic")
	ErrUnsupportedRecordVer    = errors.New("journal unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("journal invalid header size")
	ErrInvalidTopic            = errors.New("journal invalid topic")
)

// Record is one journaled event. Payload is the JSON body of the topic.
type Record struct {
	Topic    enum.Topic
	Sequence uint64
	Time     time.Time
	Payload  []byte
}

// header layout, little endian:
//
//	0  magic [4]
//	4  version u16
//	6  header size u16
//	8  topic u8
//	9  reserved [3]
//	12 payload length u32
//	16 sequence u64
//	24 time unix nanos i64
func encodeHeader(dst []byte, r Record, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	dst[8] = byte(r.Topic)
	dst[9], dst[10], dst[11] = 0, 0, 0
	binary.LittleEndian.PutUint32(dst[12:16], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[16:24], r.Sequence)
	var nanos int64
	if !r.Time.IsZero() {
		nanos = r.Time.UnixNano()
	}
	binary.LittleEndian.PutUint64(dst[24:32], uint64(nanos))
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeRecordHeader(src []byte) (Record, uint32, error) {
	if len(src) < recordHeaderSize {
		return Record{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return Record{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return Record{}, 0, ErrUnsupportedRecordVer
	}
	if headerSize := binary.LittleEndian.Uint16(src[6:8]); headerSize != recordHeaderSize {
		return Record{}, 0, ErrInvalidRecordHeaderSize
	}
	topic := enum.Topic(src[8])
	if !topic.IsAvailable() {
		return Record{}, 0, ErrInvalidTopic
	}
	r := Record{
		Topic:    topic,
		Sequence: binary.LittleEndian.Uint64(src[16:24]),
	}
	if nanos := int64(binary.LittleEndian.Uint64(src[24:32])); nanos != 0 {
		r.Time = time.Unix(0, nanos).UTC()
	}
	return r, binary.LittleEndian.Uint32(src[12:16]), nil
}
