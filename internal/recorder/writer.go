package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/schema"
)

var (
	ErrClosed          = errors.New("wal writer closed")
	ErrPayloadTooLarge = errors.New("wal payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

// Writer drains a stream tap into WAL segments. Segments rotate by size
// and age; the writer never blocks the emitting side because the tap is
// the bounded buffer.
type Writer struct {
	cfg Config
	tap *bus.Queue[obs.Envelope]

	seg       *segment
	segID     uint64
	headerBuf [recordHeaderSize]byte
	crcBuf    [recordChecksumSize]byte
}

type segment struct {
	file    *os.File
	buf     *bufio.Writer
	written int64
	opened  time.Time
}

// NewWriter creates a WAL writer over a stream tap and ensures the target
// directory exists.
func NewWriter(cfg Config, tap *bus.Queue[obs.Envelope]) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{cfg: cfg, tap: tap}, nil
}

// Run drains the stream until the context is cancelled or the stream
// closes, then flushes and closes the open segment.
func (w *Writer) Run(ctx context.Context) error {
	var flushC, syncC <-chan time.Time
	if w.cfg.FlushInterval > 0 {
		t := time.NewTicker(w.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if w.cfg.SyncInterval > 0 {
		t := time.NewTicker(w.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}
	defer func() {
		if err := w.closeSegment(); err != nil {
			logs.Errorf("recorder: close segment: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-w.tap.C():
			if !ok {
				return nil
			}
			if err := w.append(env.Header, env.Payload); err != nil {
				return errors.Wrap(err, "wal append")
			}
		case <-flushC:
			if w.seg != nil {
				if err := w.seg.buf.Flush(); err != nil {
					return errors.Wrap(err, "wal flush")
				}
			}
		case <-syncC:
			if w.seg != nil {
				if err := w.seg.buf.Flush(); err != nil {
					return errors.Wrap(err, "wal flush")
				}
				if err := w.seg.file.Sync(); err != nil {
					return errors.Wrap(err, "wal sync")
				}
			}
		}
	}
}

func (w *Writer) append(header schema.EventHeader, payload []byte) error {
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	if err := w.rotateIfNeeded(len(payload)); err != nil {
		return err
	}

	encodeHeader(w.headerBuf[:], header, len(payload))
	crc := checksum(w.headerBuf[:], payload)
	binary.LittleEndian.PutUint32(w.crcBuf[:], crc)

	for _, chunk := range [][]byte{w.headerBuf[:], payload, w.crcBuf[:]} {
		n, err := w.seg.buf.Write(chunk)
		w.seg.written += int64(n)
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) rotateIfNeeded(payloadLen int) error {
	recordLen := int64(recordHeaderSize + payloadLen + recordChecksumSize)
	if w.seg != nil {
		rotate := w.seg.written+recordLen > w.cfg.SegmentMaxBytes ||
			(w.cfg.SegmentMaxDuration > 0 && time.Since(w.seg.opened) > w.cfg.SegmentMaxDuration)
		if !rotate {
			return nil
		}
		if err := w.closeSegment(); err != nil {
			return err
		}
	}
	w.segID++
	name := fmt.Sprintf("%s-%06d.%d.seg", w.cfg.FilePrefix, w.segID, time.Now().UnixNano())
	file, err := os.OpenFile(filepath.Join(w.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	w.seg = &segment{
		file:   file,
		buf:    bufio.NewWriterSize(file, w.cfg.BufferSize),
		opened: time.Now(),
	}
	return nil
}

func (w *Writer) closeSegment() error {
	if w.seg == nil {
		return nil
	}
	seg := w.seg
	w.seg = nil
	if err := seg.buf.Flush(); err != nil {
		seg.file.Close()
		return err
	}
	if err := seg.file.Sync(); err != nil {
		seg.file.Close()
		return err
	}
	return seg.file.Close()
}
