package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// Record is a single journal entry.
type Record struct {
	Seq     uint64
	Payload []byte
}

// Journal is a binary append log. Appends are synchronous: by the time
// Append returns, the record is flushed and synced.
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	filePath string
	lastSeq  uint64
}

// OpenJournal opens (or creates) the journal in dir and scans it to recover
// the last written sequence number.
func OpenJournal(dir string) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty journal dir")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	filePath := filepath.Join(dir, "journal.log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	j := &Journal{
		file:     file,
		writer:   bufio.NewWriter(file),
		filePath: filePath,
	}

	if err := j.Replay(func(rec Record) error {
		if rec.Seq > j.lastSeq {
			j.lastSeq = rec.Seq
		}
		return nil
	}); err != nil {
		_ = file.Close()
		return nil, err
	}

	return j, nil
}

// Append writes payload as the next record and syncs it to disk.
func (j *Journal) Append(payload []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.writer == nil {
		return fmt.Errorf("journal is closed")
	}

	j.lastSeq++
	if err := j.writeRecord(Record{Seq: j.lastSeq, Payload: payload}); err != nil {
		j.lastSeq--
		return fmt.Errorf("failed to write journal record: %w", err)
	}

	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush journal: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	return nil
}

// Replay reads every record in write order and passes it to callback.
func (j *Journal) Replay(callback func(Record) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.writer != nil {
		if err := j.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush journal before replay: %w", err)
		}
	}

	file, err := os.Open(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to open journal for reading: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		rec, err := readRecord(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read journal record: %w", err)
		}
		if err := callback(rec); err != nil {
			return fmt.Errorf("journal replay callback failed: %w", err)
		}
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.writer != nil {
		if err := j.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush journal on close: %w", err)
		}
		j.writer = nil
	}
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close journal file: %w", err)
		}
		j.file = nil
	}
	return nil
}

// writeRecord frames one record: seq (8 bytes), payload length (4 bytes),
// payload.
func (j *Journal) writeRecord(rec Record) error {
	if err := binary.Write(j.writer, binary.LittleEndian, rec.Seq); err != nil {
		return err
	}
	if len(rec.Payload) > math.MaxUint32 {
		return fmt.Errorf("payload too large: %d", len(rec.Payload))
	}
	if err := binary.Write(j.writer, binary.LittleEndian, uint32(len(rec.Payload))); err != nil {
		return err
	}
	_, err := j.writer.Write(rec.Payload)
	return err
}

func readRecord(reader *bufio.Reader) (Record, error) {
	var rec Record

	if err := binary.Read(reader, binary.LittleEndian, &rec.Seq); err != nil {
		return rec, err
	}

	var payloadLen uint32
	if err := binary.Read(reader, binary.LittleEndian, &payloadLen); err != nil {
		return rec, err
	}

	rec.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(reader, rec.Payload); err != nil {
		return rec, err
	}
	return rec, nil
}
