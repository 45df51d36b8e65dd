// Package record captures raw inbound backend events to disk so a
// problematic session can be replayed offline. This is a debug aid;
// recognition results themselves are persisted server-side.
package record

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const magic = "KIOSKRAW1"

// Writer appends timestamped event payloads to a binary log file.
// Safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func NewWriter(dir string, prefix string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if _, err := w.WriteString(magic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: w}, nil
}

// Record appends one event: the name, then the raw payload bytes.
func (r *Writer) Record(event string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("recorder is closed")
	}
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(1+len(event)+len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if err := r.w.WriteByte(byte(len(event))); err != nil {
		return err
	}
	if _, err := r.w.WriteString(event); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	return r.w.Flush()
}

func (r *Writer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		r.w = nil
		return err
	}
	err := r.f.Close()
	r.w = nil
	return err
}

// Entry is one recorded event read back from a log file.
type Entry struct {
	Timestamp time.Time
	Event     string
	Payload   []byte
}

// Reader iterates over a recorded log file.
type Reader struct {
	f *os.File
	r *bufio.Reader
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReader(f)
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		_ = f.Close()
		return nil, err
	}
	if string(header) != magic {
		_ = f.Close()
		return nil, fmt.Errorf("unexpected record magic %q", string(header))
	}
	return &Reader{f: f, r: r}, nil
}

// Next returns the next entry, or io.EOF at the end of the log.
func (rd *Reader) Next() (Entry, error) {
	var header [12]byte
	if _, err := io.ReadFull(rd.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Entry{}, io.EOF
		}
		return Entry{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(header[:8]))
	size := binary.LittleEndian.Uint32(header[8:12])
	if size < 1 {
		return Entry{}, fmt.Errorf("corrupt record: empty body")
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(rd.r, body); err != nil {
		return Entry{}, err
	}
	nameLen := int(body[0])
	if 1+nameLen > len(body) {
		return Entry{}, fmt.Errorf("corrupt record: bad event name length")
	}
	return Entry{
		Timestamp: time.Unix(0, ts),
		Event:     string(body[1 : 1+nameLen]),
		Payload:   body[1+nameLen:],
	}, nil
}

func (rd *Reader) Close() error {
	return rd.f.Close()
}
