package authmux

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame type discriminants for client->server request frames.
const (
	frameTypeNew      byte = 1
	frameTypeContinue byte = 2
)

// Result codes for server->client reply frames.
const (
	ResultContinue byte = 0
	ResultOK       byte = 1
	ResultFail     byte = 2
)

// maxReplyPayload bounds a single reply frame's payload. A worker
// that claims a larger data_size is misbehaving; the connection is
// torn down rather than risking an unbounded allocation.
const maxReplyPayload = 50 * 1024

const (
	handshakeInputSize  = 4 // pid uint32
	handshakeOutputSize = 8 // pid uint32, mechanisms uint32
	requestNewSize      = 1 + 4 + 1 + 4
	requestContinueHdr  = 1 + 4 + 4
	replyHdrSize        = 4 + 1 + 4
)

func encodeHandshakeInput(pid uint32) []byte {
	buf := make([]byte, handshakeInputSize)
	binary.LittleEndian.PutUint32(buf, pid)
	return buf
}

func decodeHandshakeInput(p []byte) (pid uint32, err error) {
	if len(p) != handshakeInputSize {
		return 0, fmt.Errorf("authmux: handshake_input size %d, want %d: %w", len(p), handshakeInputSize, errProtocolViolation)
	}
	return binary.LittleEndian.Uint32(p), nil
}

func encodeHandshakeOutput(pid, mechanisms uint32) []byte {
	buf := make([]byte, handshakeOutputSize)
	binary.LittleEndian.PutUint32(buf[0:4], pid)
	binary.LittleEndian.PutUint32(buf[4:8], mechanisms)
	return buf
}

func decodeHandshakeOutput(p []byte) (pid, mechanisms uint32, err error) {
	if len(p) != handshakeOutputSize {
		return 0, 0, fmt.Errorf("authmux: handshake_output size %d, want %d: %w", len(p), handshakeOutputSize, errProtocolViolation)
	}
	return binary.LittleEndian.Uint32(p[0:4]), binary.LittleEndian.Uint32(p[4:8]), nil
}

// encodeRequestNew renders request_new { type=NEW, id, protocol, mech }.
func encodeRequestNew(id uint32, protocol byte, mech uint32) []byte {
	buf := make([]byte, requestNewSize)
	buf[0] = frameTypeNew
	binary.LittleEndian.PutUint32(buf[1:5], id)
	buf[5] = protocol
	binary.LittleEndian.PutUint32(buf[6:10], mech)
	return buf
}

// encodeRequestContinue renders request_continue { type=CONTINUE, id,
// data_size } followed by data.
func encodeRequestContinue(id uint32, data []byte) []byte {
	buf := make([]byte, requestContinueHdr+len(data))
	buf[0] = frameTypeContinue
	binary.LittleEndian.PutUint32(buf[1:5], id)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(data)))
	copy(buf[requestContinueHdr:], data)
	return buf
}

// replyHeader is the decoded fixed portion of a reply frame; the
// payload (data_size bytes) is read separately once the header is
// known, since data_size determines how much more to read.
type replyHeader struct {
	ID       uint32
	Result   byte
	DataSize uint32
}

func decodeReplyHeader(p []byte) (replyHeader, error) {
	if len(p) != replyHdrSize {
		return replyHeader{}, fmt.Errorf("authmux: reply header size %d, want %d: %w", len(p), replyHdrSize, errProtocolViolation)
	}
	h := replyHeader{
		ID:       binary.LittleEndian.Uint32(p[0:4]),
		Result:   p[4],
		DataSize: binary.LittleEndian.Uint32(p[5:9]),
	}
	if h.DataSize > maxReplyPayload {
		return replyHeader{}, fmt.Errorf("authmux: reply data_size %d exceeds %d byte cap: %w", h.DataSize, maxReplyPayload, errProtocolViolation)
	}
	return h, nil
}

func encodeReply(id uint32, result byte, data []byte) []byte {
	buf := make([]byte, replyHdrSize+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = result
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(data)))
	copy(buf[replyHdrSize:], data)
	return buf
}

// readFull reads exactly len(buf) bytes. io.ReadFull already
// distinguishes a clean close between frames (io.EOF) from one
// mid-frame (io.ErrUnexpectedEOF); callers that only care about "the
// connection is gone" can test for either with errors.Is against
// io.EOF after also checking io.ErrUnexpectedEOF, or just treat any
// error here as fatal to the connection.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
