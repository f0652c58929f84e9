package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/rotisserie/eris"
)

// NewJSONSerializer creates a serializer writing human readable json.
// Message types are encoded by name (see common.MessageType).
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	return b, eris.Wrapf(err, "could not encode %s message as json", msg.MsgType)
}

func (jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// json leaves fields missing from the input untouched
	*msg = common.Message{}
	return eris.Wrap(json.Unmarshal(b, msg), "could not decode json message")
}
