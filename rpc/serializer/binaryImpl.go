package serializer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/wbKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte MsgType, 1 byte flags, followed by the present fields in
// flag order. Strings and byte slices are prefixed with a 4 byte big endian
// length, lists with a 4 byte big endian count. A nil value inside Entries
// is written with the length nilLen.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey     byte = 1 << 0
	hasValue   byte = 1 << 1
	hasKeys    byte = 1 << 2
	hasEntries byte = 1 << 3
	hasOk      byte = 1 << 4
	hasErr     byte = 1 << 5
	hasCode    byte = 1 << 6
)

const nilLen = math.MaxUint32

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	w := &binWriter{buf: make([]byte, 2, b.sizeBytes(msg))}
	w.buf[0] = byte(msg.MsgType)

	var flags byte
	if msg.Key != "" {
		flags |= hasKey
		w.putString(msg.Key)
	}
	if msg.Value != nil {
		flags |= hasValue
		w.putBytes(msg.Value)
	}
	if msg.Keys != nil {
		flags |= hasKeys
		w.putUint32(uint32(len(msg.Keys)))
		for _, k := range msg.Keys {
			w.putString(k)
		}
	}
	if msg.Entries != nil {
		flags |= hasEntries
		w.putUint32(uint32(len(msg.Entries)))
		for _, e := range msg.Entries {
			w.putString(e.Key)
			if e.Value == nil {
				w.putUint32(nilLen)
			} else {
				w.putBytes(e.Value)
			}
		}
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Err != "" {
		flags |= hasErr
		w.putString(msg.Err)
	}
	if msg.Code != 0 {
		flags |= hasCode
		w.buf = binary.BigEndian.AppendUint64(w.buf, msg.Code)
	}

	// Set flags byte after knowing which fields are present
	w.buf[1] = flags
	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	r := &binReader{data: data, pos: 2}

	if flags&hasKey != 0 {
		key, err := r.chunk("key")
		if err != nil {
			return err
		}
		msg.Key = string(key)
	}

	if flags&hasValue != 0 {
		value, err := r.chunk("value")
		if err != nil {
			return err
		}
		msg.Value = make([]byte, len(value))
		copy(msg.Value, value)
	}

	if flags&hasKeys != 0 {
		n, err := r.count("keys", 4)
		if err != nil {
			return err
		}
		msg.Keys = make([]string, n)
		for i := range msg.Keys {
			key, err := r.chunk("keys")
			if err != nil {
				return err
			}
			msg.Keys[i] = string(key)
		}
	}

	if flags&hasEntries != 0 {
		n, err := r.count("entries", 8)
		if err != nil {
			return err
		}
		msg.Entries = make([]common.KV, n)
		for i := range msg.Entries {
			key, err := r.chunk("entry key")
			if err != nil {
				return err
			}
			msg.Entries[i].Key = string(key)

			if r.peekNil() {
				r.pos += 4
				continue
			}
			value, err := r.chunk("entry value")
			if err != nil {
				return err
			}
			msg.Entries[i].Value = make([]byte, len(value))
			copy(msg.Entries[i].Value, value)
		}
	}

	msg.Ok = flags&hasOk != 0

	if flags&hasErr != 0 {
		errMsg, err := r.chunk("error")
		if err != nil {
			return err
		}
		msg.Err = string(errMsg)
	}

	if flags&hasCode != 0 {
		if r.pos+8 > len(data) {
			return fmt.Errorf("data too short for code")
		}
		msg.Code = binary.BigEndian.Uint64(data[r.pos : r.pos+8])
		r.pos += 8
	}

	if r.pos != len(data) {
		return fmt.Errorf("%d trailing bytes after message", len(data)-r.pos)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Keys != nil {
		size += 4
		for _, k := range msg.Keys {
			size += 4 + len(k)
		}
	}
	if msg.Entries != nil {
		size += 4
		for _, e := range msg.Entries {
			size += 4 + len(e.Key) + 4 + len(e.Value)
		}
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Code != 0 {
		size += 8
	}
	return size
}

type binWriter struct {
	buf []byte
}

func (w *binWriter) putUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *binWriter) putString(s string) {
	w.putUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *binWriter) putBytes(b []byte) {
	w.putUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

type binReader struct {
	data []byte
	pos  int
}

// chunk reads a length prefixed chunk. The result aliases data.
func (r *binReader) chunk(field string) ([]byte, error) {
	if r.pos+4 > len(r.data) {
		return nil, fmt.Errorf("data too short for %s length", field)
	}
	n := uint64(binary.BigEndian.Uint32(r.data[r.pos : r.pos+4]))
	r.pos += 4
	if uint64(r.pos)+n > uint64(len(r.data)) {
		return nil, fmt.Errorf("data too short for %s data", field)
	}
	chunk := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return chunk, nil
}

// count reads a list length and checks it against the remaining data,
// given the minimum encoded size of one element.
func (r *binReader) count(field string, minElemSize int) (int, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s count", field)
	}
	n := uint64(binary.BigEndian.Uint32(r.data[r.pos : r.pos+4]))
	r.pos += 4
	if n*uint64(minElemSize) > uint64(len(r.data)-r.pos) {
		return 0, fmt.Errorf("%s count %d exceeds data length", field, n)
	}
	return int(n), nil
}

func (r *binReader) peekNil() bool {
	return r.pos+4 <= len(r.data) && binary.BigEndian.Uint32(r.data[r.pos:r.pos+4]) == nilLen
}
