package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same receipt always
// produces the same bytes. Leaf digests depend on that.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: cbor encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: cbor decoder: " + err.Error())
	}
}

func MarshalCBOR(v any) ([]byte, error) { return encMode.Marshal(v) }

func DecodeCBOR(b []byte, out any) error { return decMode.Unmarshal(b, out) }

// NewCBORDecoder reads a sequence of CBOR items from r, one per Decode.
func NewCBORDecoder(r io.Reader) *cbor.Decoder { return decMode.NewDecoder(r) }
