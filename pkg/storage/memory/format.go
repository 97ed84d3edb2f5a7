package memory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// Magic bytes to identify snapshot files
	MagicBytes = "IDXS"
	// Current version
	FormatVersion = 1
	// SnapshotFile is the snapshot file name inside the data dir
	SnapshotFile = "snapshot.idxs"

	flagCompressed uint8 = 1 << 0
)

// FileHeader is the fixed-size header in front of a snapshot body.
type FileHeader struct {
	Magic    [4]byte // "IDXS"
	Version  uint8   // Format version
	Flags    uint8   // flagCompressed when the body is an lz4 block
	Reserved [2]byte // Reserved for future use
	Length   uint32  // Uncompressed body length
}

// WriteHeader writes a snapshot header to w.
func WriteHeader(w io.Writer, flags uint8, length uint32) error {
	header := FileHeader{
		Magic:   [4]byte{'I', 'D', 'X', 'S'},
		Version: FormatVersion,
		Flags:   flags,
		Length:  length,
	}
	return binary.Write(w, binary.LittleEndian, header)
}

// ReadHeader reads and validates a snapshot header.
func ReadHeader(r io.Reader) (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if string(header.Magic[:]) != MagicBytes {
		return nil, fmt.Errorf("invalid file format: expected %s, got %s", MagicBytes, string(header.Magic[:]))
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported file version: %d", header.Version)
	}
	return &header, nil
}

// SnapshotData is the content of a snapshot: every committed collection and
// the last commit log sequence number it includes.
type SnapshotData struct {
	LSN         uint64                       `msgpack:"lsn"`
	Collections map[string]map[string][]byte `msgpack:"collections"`
}

// EncodeSnapshot serializes data as header + lz4 block of msgpack. Bodies
// lz4 cannot shrink are stored uncompressed.
func EncodeSnapshot(data *SnapshotData) ([]byte, error) {
	msgpackData, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode MessagePack: %w", err)
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(msgpackData)))
	var hashTable [1 << 16]int
	n, err := lz4.CompressBlock(msgpackData, compressed, hashTable[:])
	if err != nil {
		return nil, fmt.Errorf("failed to compress data: %w", err)
	}

	var flags uint8
	body := msgpackData
	if n > 0 && n < len(msgpackData) {
		flags = flagCompressed
		body = compressed[:n]
	}

	var buf bytes.Buffer
	if err := WriteHeader(&buf, flags, uint32(len(msgpackData))); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// DecodeSnapshot parses a snapshot written by EncodeSnapshot.
func DecodeSnapshot(r io.Reader) (*SnapshotData, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid file header: %w", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot body: %w", err)
	}

	if header.Flags&flagCompressed != 0 {
		decompressed := make([]byte, header.Length)
		n, err := lz4.UncompressBlock(body, decompressed)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress data: %w", err)
		}
		body = decompressed[:n]
	}
	if uint32(len(body)) != header.Length {
		return nil, fmt.Errorf("snapshot body is %d bytes, header says %d", len(body), header.Length)
	}

	var data SnapshotData
	if err := msgpack.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode MessagePack: %w", err)
	}
	if data.Collections == nil {
		data.Collections = make(map[string]map[string][]byte)
	}
	return &data, nil
}
