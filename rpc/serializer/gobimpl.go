package serializer

import (
	"bytes"
	"encoding/gob"

	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/rotisserie/eris"
)

// NewGOBSerializer creates a serializer using Go's gob format. Every message
// is encoded with a fresh encoder, so each payload carries its own type info.
func NewGOBSerializer() IRPCSerializer {
	return gobSerializerImpl{}
}

type gobSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, eris.Wrapf(err, "could not encode %s message as gob", msg.MsgType)
	}
	return buf.Bytes(), nil
}

func (gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// gob skips zero values, they would not overwrite stale fields
	*msg = common.Message{}
	return eris.Wrap(gob.NewDecoder(bytes.NewReader(b)).Decode(msg), "could not decode gob message")
}
