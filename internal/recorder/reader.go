package recorder

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"

	"main/internal/schema"
)

// Record is one decoded WAL entry.
type Record struct {
	Header  schema.EventHeader
	Payload []byte
}

// Segments lists the WAL segment files under dir in write order.
func Segments(dir, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = defaultFilePrefix
	}
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"-*.seg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Reader iterates records across one segment file.
type Reader struct {
	file *os.File
	buf  *bufio.Reader
	head [recordHeaderSize]byte
	crc  [recordChecksumSize]byte
}

// Open opens a segment for reading.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: file, buf: bufio.NewReader(file)}, nil
}

// Next returns the next record, io.EOF at the end of the segment.
func (r *Reader) Next() (Record, error) {
	if _, err := io.ReadFull(r.buf, r.head[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	header, payloadLen, err := decodeRecordHeader(r.head[:])
	if err != nil {
		return Record{}, err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r.buf, payload); err != nil {
		return Record{}, err
	}
	if _, err := io.ReadFull(r.buf, r.crc[:]); err != nil {
		return Record{}, err
	}
	if binary.LittleEndian.Uint32(r.crc[:]) != checksum(r.head[:], payload) {
		return Record{}, ErrChecksumMismatch
	}
	return Record{Header: header, Payload: payload}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
