package base

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/rotisserie/eris"
)

const headerSize = 20

// MaxFrameSize is the largest payload a frame may carry. Larger length
// fields are treated as a corrupt stream.
const MaxFrameSize = 64 << 20

// writeFrame writes one frame:
//   - 8 bytes: shardID (uint64, big endian)
//   - 8 bytes: requestID (uint64, big endian)
//   - 4 bytes: payload length (uint32, big endian)
//   - N bytes: payload
//
// Header and payload go out in a single writev where the writer supports it.
func writeFrame(w io.Writer, shardID, requestID uint64, data []byte) error {
	if len(data) > MaxFrameSize {
		return eris.Errorf("frame of %d bytes exceeds the limit of %d bytes", len(data), MaxFrameSize)
	}

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint64(header[:8], shardID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(w)
	return err
}

// readFrame reads one frame. The payload is read into buf if it has the
// capacity, otherwise into a new slice; the returned data may alias buf.
func readFrame(r io.Reader, buf []byte) (shardID, requestID uint64, data []byte, err error) {
	var header [headerSize]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return 0, 0, nil, err
	}

	shardID = binary.BigEndian.Uint64(header[:8])
	requestID = binary.BigEndian.Uint64(header[8:16])
	length := int(binary.BigEndian.Uint32(header[16:20]))

	if length > MaxFrameSize {
		return 0, 0, nil, eris.Errorf("frame of %d bytes exceeds the limit of %d bytes", length, MaxFrameSize)
	}
	if length == 0 {
		return shardID, requestID, []byte{}, nil
	}

	if cap(buf) >= length {
		data = buf[:length]
	} else {
		data = make([]byte, length)
	}
	if _, err = io.ReadFull(r, data); err != nil {
		return 0, 0, nil, err
	}
	return shardID, requestID, data, nil
}
