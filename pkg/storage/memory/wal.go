package memory

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

const frameHeaderSize = 8

// logRecord is one committed transaction in the commit log.
type logRecord struct {
	LSN       uint64     `msgpack:"lsn"`
	Timestamp int64      `msgpack:"ts"`
	Removed   []string   `msgpack:"removed,omitempty"`
	Created   []string   `msgpack:"created,omitempty"`
	Writes    []logWrite `msgpack:"writes,omitempty"`
}

type logWrite struct {
	Collection string `msgpack:"c"`
	Key        []byte `msgpack:"k"`
	Value      []byte `msgpack:"v,omitempty"`
	Deleted    bool   `msgpack:"d,omitempty"`
}

func (r *logRecord) empty() bool {
	return len(r.Removed) == 0 && len(r.Created) == 0 && len(r.Writes) == 0
}

// commitLog appends framed records to wal_<first lsn>.log files. A frame is
// a big-endian length, a crc32 of the body and the msgpack body.
type commitLog struct {
	dir        string
	durability DurabilityLevel
	file       *os.File
	path       string
}

func newCommitLog(dir string, durability DurabilityLevel) *commitLog {
	return &commitLog{dir: dir, durability: durability}
}

func logFileName(firstLSN uint64) string {
	return fmt.Sprintf("wal_%020d.log", firstLSN)
}

func (l *commitLog) append(rec *logRecord) error {
	if l.file == nil {
		if err := l.open(rec.LSN); err != nil {
			return err
		}
	}

	body, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal commit record: %w", err)
	}
	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(body)))
	binary.BigEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(body))
	frame = append(frame, body...)

	if _, err := l.file.Write(frame); err != nil {
		return fmt.Errorf("failed to write to commit log: %w", err)
	}
	if l.durability == DurabilityFull {
		return l.file.Sync()
	}
	return nil
}

func (l *commitLog) open(firstLSN uint64) error {
	path := filepath.Join(l.dir, logFileName(firstLSN))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create commit log: %w", err)
	}
	l.file = file
	l.path = path
	return nil
}

// rotate closes the current file and deletes every log file. Callers have
// just written a snapshot covering everything in them. The next append
// starts a new file.
func (l *commitLog) rotate() error {
	if err := l.close(); err != nil {
		return err
	}
	files, err := listLogFiles(l.dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove commit log %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

func (l *commitLog) close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.path = ""
	return err
}

// listLogFiles returns the log files in dir in LSN order.
func listLogFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "wal_*.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to list commit logs: %w", err)
	}
	slices.Sort(files)
	return files, nil
}

// errTornTail reports a record cut short at the end of a log file, which
// happens when the process dies mid-append.
var errTornTail = errors.New("torn record at end of commit log")

// readLog reads every complete record of a log file. A torn final record is
// reported with errTornTail alongside the records before it.
func readLog(path string) ([]*logRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open commit log: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var records []*logRecord
	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF {
				return records, nil
			}
			if err == io.ErrUnexpectedEOF {
				return records, errTornTail
			}
			return records, fmt.Errorf("failed to read commit log: %w", err)
		}
		size := binary.BigEndian.Uint32(header[0:4])
		sum := binary.BigEndian.Uint32(header[4:8])

		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return records, errTornTail
			}
			return records, fmt.Errorf("failed to read commit log: %w", err)
		}
		if crc32.ChecksumIEEE(body) != sum {
			return records, fmt.Errorf("checksum mismatch in %s after %d records", filepath.Base(path), len(records))
		}

		var rec logRecord
		if err := msgpack.Unmarshal(body, &rec); err != nil {
			return records, fmt.Errorf("failed to unmarshal commit record: %w", err)
		}
		records = append(records, &rec)
	}
}
