package persistence

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Constants for the on-disk binary framing.
const (
	// MagicByte is the marker used to identify the start of a valid frame.
	// It helps in scanning for recovery if the file is heavily corrupted.
	MagicByte = 0xA7

	// HeaderSize is the fixed size of the frame metadata:
	// 1 byte (Magic) + 1 byte (OpCode) + 4 bytes (Length) + 4 bytes (CRC32) = 10 bytes.
	HeaderSize = 10

	// OpCodeSupernode frames carry one supernode record of a snapshot.
	OpCodeSupernode = 0x01
	// OpCodeNode frames carry one node record of a snapshot.
	OpCodeNode = 0x02
	// OpCodeDeletion frames carry one batch of deleted triples in the journal.
	OpCodeDeletion = 0x03
)

var (
	// ErrInvalidMagic indicates the file stream lost synchronization or is not a valid snapshot/journal.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch indicates data corruption within the frame payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the file ended abruptly (e.g., power loss during write).
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrUnknownOpCode indicates a frame kind this version does not understand.
	ErrUnknownOpCode = errors.New("unknown frame opcode")
)

// FrameWriter handles the safe writing of binary frames to an io.Writer.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter creates a writer that wraps an underlying io.Writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes the payload into a binary frame and writes it.
// Frame Format: [Magic(1)][OpCode(1)][Length(4)][CRC(4)][Payload(N)]
func (fw *FrameWriter) WriteFrame(opCode byte, payload []byte) error {
	header := make([]byte, HeaderSize)

	header[0] = MagicByte
	header[1] = opCode

	length := uint32(len(payload))
	binary.LittleEndian.PutUint32(header[2:6], length)

	checksum := crc32.ChecksumIEEE(payload)
	binary.LittleEndian.PutUint32(header[6:10], checksum)

	// Header and payload are written sequentially; wrapping fw.w in a
	// bufio.Writer turns them into a single syscall.
	if _, err := fw.w.Write(header); err != nil {
		return err
	}
	if _, err := fw.w.Write(payload); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads the next frame from the reader.
// It validates the Magic Byte and the CRC32 checksum.
// Returns the opcode and the payload; io.EOF marks a clean end of stream.
func ReadFrame(r io.Reader) (byte, []byte, error) {
	header := make([]byte, HeaderSize)

	// ReadFull ensures we get exactly HeaderSize bytes or an error. EOF at
	// a frame boundary is a clean exit; a partial header is corruption.
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, ErrIncompleteFrame
	}

	if header[0] != MagicByte {
		return 0, nil, ErrInvalidMagic
	}
	opCode := header[1]

	length := binary.LittleEndian.Uint32(header[2:6])
	expectedCRC := binary.LittleEndian.Uint32(header[6:10])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		// Even a clean EOF here is an error: we expected 'length' bytes.
		return opCode, nil, ErrIncompleteFrame
	}

	if crc32.ChecksumIEEE(payload) != expectedCRC {
		return opCode, nil, ErrChecksumMismatch
	}
	return opCode, payload, nil
}
