package monitor

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
)

// maxPendingBytes bounds an unterminated line kept between reads.
const maxPendingBytes = 1 << 20

// Tailer reads lines appended to a single file, tracking the read offset.
// A file that shrinks or is replaced by a new inode is reread from the start.
type Tailer struct {
	Path    string   // File path being tailed
	file    *os.File // Open file handle
	info    os.FileInfo
	offset  int64  // Current read position
	pending []byte // Buffered incomplete line
	started bool   // Whether the initial open (or a failed attempt) happened
	fromBeg bool   // Read existing content on first open
}

// NewTailer creates a new Tailer for the given path.
// If fromBeginning is false, content present at the first open is skipped.
// A file that does not exist yet is read from the beginning once it appears.
func NewTailer(path string, fromBeginning bool) *Tailer {
	return &Tailer{
		Path:    path,
		fromBeg: fromBeginning,
	}
}

// ensureFile opens the file if not already open.
func (t *Tailer) ensureFile() error {
	if t.file != nil {
		return nil
	}

	f, err := os.Open(t.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			t.started = true
		}
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	t.file = f
	t.info = info
	t.offset = 0
	t.pending = t.pending[:0]

	if !t.fromBeg && !t.started {
		t.offset = info.Size()
	}
	t.started = true
	return nil
}

// reopen drops the handle so the next read starts at offset zero of
// whatever file now lives at Path.
func (t *Tailer) reopen() {
	if t.file != nil {
		t.file.Close()
	}
	t.file = nil
	t.info = nil
	t.offset = 0
	t.pending = t.pending[:0]
	t.started = true
}

// Reset closes the file and forgets all position state.
func (t *Tailer) Reset() {
	t.reopen()
	t.started = false
}

// Offset returns the byte offset of the next read.
func (t *Tailer) Offset() int64 {
	return t.offset
}

// Close closes the tailer.
func (t *Tailer) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// ReadNewLines returns the complete lines appended since the last call.
// An unterminated trailing line is held back until its newline arrives.
// Blank lines are dropped and a trailing carriage return is trimmed.
func (t *Tailer) ReadNewLines() ([]string, error) {
	if err := t.ensureFile(); err != nil {
		return nil, err
	}

	// Replaced (rename rotation) or truncated files restart at zero.
	if cur, err := os.Stat(t.Path); err == nil && !os.SameFile(cur, t.info) {
		t.reopen()
		if err := t.ensureFile(); err != nil {
			return nil, err
		}
	}
	info, err := t.file.Stat()
	if err != nil {
		t.Reset()
		return nil, err
	}
	if info.Size() < t.offset {
		t.reopen()
		if err := t.ensureFile(); err != nil {
			return nil, err
		}
		info = t.info
	}

	if info.Size() == t.offset {
		return nil, nil
	}

	if _, err := t.file.Seek(t.offset, io.SeekStart); err != nil {
		t.Reset()
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(t.file, info.Size()-t.offset))
	t.offset += int64(len(data))
	if err != nil {
		return nil, err
	}

	return t.split(data), nil
}

func (t *Tailer) split(data []byte) []string {
	buf := append(t.pending, data...)
	var lines []string
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(buf[:idx]), "\r")
		buf = buf[idx+1:]
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(buf) > maxPendingBytes {
		buf = buf[:0]
	}
	t.pending = append(t.pending[:0], buf...)
	return lines
}
