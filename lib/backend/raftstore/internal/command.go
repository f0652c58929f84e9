package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTWrite  CommandType = iota // Insert or update all entries of the command.
	CommandTDelete                    // Delete all keys of the command.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTWrite:
		return "Write"
	case CommandTDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// KV is a single key of a command. Value is ignored for deletes.
type KV struct {
	Key   string
	Value []byte
}

// Command represents a command to be executed by the state machine (a single
// entry in the raft log). A command carries one or more keys, so a bulk
// write is replicated as a single log entry and applied atomically.
type Command struct {
	Type    CommandType
	Entries []KV
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := 1 + 4 // Type + entry count
	for _, e := range command.Entries {
		size += 4 + len(e.Key) // KeyLen + Key
		if command.Type == CommandTWrite {
			size += 4 + len(e.Value) // ValueLen + Value
		}
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for the number of entries (big endian),
// per entry: 4 bytes key length, key data,
// and for writes 4 bytes value length, value data
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:5], uint32(len(command.Entries)))

	pos := 5
	for _, e := range command.Entries {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(e.Key)))
		pos += 4
		pos += copy(result[pos:], e.Key)

		if command.Type == CommandTWrite {
			binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(e.Value)))
			pos += 4
			pos += copy(result[pos:], e.Value)
		}
	}
	return result
}

// Deserialize extracts all Command fields from a byte array.
// Values are copied, data may be reused by the caller afterwards.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	count := binary.BigEndian.Uint32(data[1:5])

	// every entry needs at least its key length
	if uint64(count)*4 > uint64(len(data)-5) {
		return fmt.Errorf("entry count %d exceeds data length", count)
	}

	command.Entries = make([]KV, 0, count)
	pos := 5
	for i := uint32(0); i < count; i++ {
		key, next, err := readChunk(data, pos)
		if err != nil {
			return fmt.Errorf("entry %d key: %w", i, err)
		}
		pos = next

		e := KV{Key: string(key)}
		if command.Type == CommandTWrite {
			value, next, err := readChunk(data, pos)
			if err != nil {
				return fmt.Errorf("entry %d value: %w", i, err)
			}
			pos = next
			e.Value = make([]byte, len(value))
			copy(e.Value, value)
		}
		command.Entries = append(command.Entries, e)
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-pos)
	}
	return nil
}

// readChunk reads a length prefixed byte chunk starting at pos
func readChunk(data []byte, pos int) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for length")
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n < 0 || pos+n > len(data) {
		return nil, pos, fmt.Errorf("data too short for chunk of length %d", n)
	}
	return data[pos : pos+n], pos + n, nil
}
