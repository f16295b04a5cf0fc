// Package encoding packs region cell layers for the wire.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeCells run-length encodes a row-major cell layer as base64 varint
// pairs (value, run).
func EncodeCells(cells []uint8) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(cells); {
		v := cells[i]
		run := 1
		for i+run < len(cells) && cells[i+run] == v {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// EncodeFlags encodes a boolean layer such as fog or fire. An all-false layer
// encodes to the empty string.
func EncodeFlags(flags []bool) string {
	set := false
	cells := make([]uint8, len(flags))
	for i, f := range flags {
		if f {
			cells[i] = 1
			set = true
		}
	}
	if !set {
		return ""
	}
	return EncodeCells(cells)
}

// DecodeCells reverses EncodeCells. The decoded layer must hold exactly n
// cells.
func DecodeCells(b64 string, n int) ([]uint8, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint8, 0, n)
	for i := 0; i < len(raw); {
		v, k := binary.Uvarint(raw[i:])
		if k <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += k
		run, k := binary.Uvarint(raw[i:])
		if k <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += k
		if v > 0xFF {
			return nil, fmt.Errorf("cell value too large: %d", v)
		}
		if run == 0 || run > uint64(n-len(out)) {
			return nil, fmt.Errorf("run of %d overflows %d cells", run, n)
		}
		for j := uint64(0); j < run; j++ {
			out = append(out, uint8(v))
		}
	}
	if len(out) != n {
		return nil, fmt.Errorf("decoded %d cells, want %d", len(out), n)
	}
	return out, nil
}

// DecodeFlags reverses EncodeFlags.
func DecodeFlags(b64 string, n int) ([]bool, error) {
	out := make([]bool, n)
	if b64 == "" {
		return out, nil
	}
	cells, err := DecodeCells(b64, n)
	if err != nil {
		return nil, err
	}
	for i, c := range cells {
		out[i] = c != 0
	}
	return out, nil
}
