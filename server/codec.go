package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CodecName is the content subtype the evaluation service speaks
// ("application/cbor" for unary Connect calls).
const CodecName = "cbor"

// cborCodec implements connect.Codec with canonical CBOR so identical
// messages always encode to identical bytes.
type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var defaultCodec = mustCodec()

func mustCodec() *cborCodec {
	c, err := newCBORCodec()
	if err != nil {
		panic(err)
	}
	return c
}

func newCBORCodec() (*cborCodec, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor: creating encoder: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor: creating decoder: %w", err)
	}
	return &cborCodec{enc: enc, dec: dec}, nil
}

func (c *cborCodec) Name() string {
	return CodecName
}

func (c *cborCodec) Marshal(msg any) ([]byte, error) {
	return c.enc.Marshal(msg)
}

func (c *cborCodec) Unmarshal(data []byte, msg any) error {
	return c.dec.Unmarshal(data, msg)
}
