package encoding

import "testing"

func TestCells_RoundTrip(t *testing.T) {
	in := []uint8{1, 1, 1, 2, 2, 3}
	for i := 0; i < 300; i++ {
		in = append(in, 0)
	}
	in = append(in, 5, 4, 4, 4)

	enc := EncodeCells(in)
	out, err := DecodeCells(enc, len(in))
	if err != nil {
		t.Fatalf("DecodeCells: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}

	if _, err := DecodeCells(enc, len(in)-1); err == nil {
		t.Fatalf("expected error for a short layer")
	}
	if _, err := DecodeCells(enc, len(in)+1); err == nil {
		t.Fatalf("expected error for a long layer")
	}
	if _, err := DecodeCells("%%%", 1); err == nil {
		t.Fatalf("expected base64 error")
	}
}

func TestFlags_EmptyLayer(t *testing.T) {
	if got := EncodeFlags(make([]bool, 49)); got != "" {
		t.Fatalf("all-false layer encoded to %q", got)
	}
	flags := make([]bool, 49)
	flags[3], flags[48] = true, true
	out, err := DecodeFlags(EncodeFlags(flags), 49)
	if err != nil {
		t.Fatalf("DecodeFlags: %v", err)
	}
	if !out[3] || !out[48] || out[4] {
		t.Fatalf("flags = %v", out)
	}
	empty, err := DecodeFlags("", 4)
	if err != nil || len(empty) != 4 {
		t.Fatalf("empty decode = %v, %v", empty, err)
	}
}
