package persistence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sanonone/kompaktdb/pkg/graph"
)

// Journal is the append-only log of deletion batches applied since the last
// snapshot. On startup the journal is replayed on top of the snapshot;
// saving a fresh snapshot truncates it.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string
}

// OpenJournal opens or creates the journal file at the given path.
func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	return &Journal{
		file: file,
		buf:  bufio.NewWriter(file),
		path: path,
	}, nil
}

// Append writes one deletion batch as a single frame.
func (j *Journal) Append(batch []graph.Triple) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	fw := NewFrameWriter(j.buf)
	return fw.WriteFrame(OpCodeDeletion, encodeDeletionBatch(batch))
}

// Sync flushes the buffer and forces an fsync.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.buf.Flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

// Replay reads the journal from the start and hands every recorded batch to
// fn in append order. A batch that fn rejects stops the replay.
func (j *Journal) Replay(fn func(batch []graph.Triple) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.buf.Flush(); err != nil {
		return err
	}
	file, err := os.Open(j.path)
	if err != nil {
		return fmt.Errorf("failed to open journal for replay: %w", err)
	}
	defer file.Close()

	br := bufio.NewReader(file)
	for {
		opCode, payload, err := ReadFrame(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read journal frame: %w", err)
		}
		if opCode != OpCodeDeletion {
			return fmt.Errorf("journal: %w: 0x%02x", ErrUnknownOpCode, opCode)
		}
		batch, err := decodeDeletionBatch(payload)
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}

// Truncate clears the journal. Used after a successful snapshot.
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.buf.Reset(j.file)
	if err := j.file.Truncate(0); err != nil {
		return err
	}
	_, err := j.file.Seek(0, 0)
	return err
}

// Close flushes and closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.buf.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Deletion payload: count(4) (sub,pred,obj)(12)*count.
func encodeDeletionBatch(batch []graph.Triple) []byte {
	buf := make([]byte, 0, 4+12*len(batch))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(batch)))
	for _, t := range batch {
		buf = binary.LittleEndian.AppendUint32(buf, t.Sub)
		buf = binary.LittleEndian.AppendUint32(buf, t.Pred)
		buf = binary.LittleEndian.AppendUint32(buf, t.Obj)
	}
	return buf
}

func decodeDeletionBatch(payload []byte) ([]graph.Triple, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("deletion frame: %w", ErrIncompleteFrame)
	}
	count := binary.LittleEndian.Uint32(payload[0:4])
	if uint32(len(payload)) != 4+12*count {
		return nil, fmt.Errorf("deletion frame: %w", ErrIncompleteFrame)
	}
	batch := make([]graph.Triple, count)
	for i := range batch {
		off := 4 + 12*i
		batch[i] = graph.Triple{
			Sub:  binary.LittleEndian.Uint32(payload[off:]),
			Pred: binary.LittleEndian.Uint32(payload[off+4:]),
			Obj:  binary.LittleEndian.Uint32(payload[off+8:]),
		}
	}
	return batch, nil
}
