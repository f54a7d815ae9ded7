package ensemble

import (
	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ msgpack.CustomEncoder = Vector{}
	_ msgpack.CustomDecoder = (*Vector)(nil)
)

// EncodeMsgpack encodes the outcomes as an array; the scalar 0 encodes as nil.
func (v Vector) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(v.data)
}

// DecodeMsgpack decodes an array written by EncodeMsgpack.
func (v *Vector) DecodeMsgpack(dec *msgpack.Decoder) error {
	var data []float64
	if err := dec.Decode(&data); err != nil {
		return err
	}
	*v = New(data...)
	return nil
}
