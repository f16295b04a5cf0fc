package protocol_test

import (
	"testing"

	"haulplan.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	if got := len(v.Types()); got != 7 {
		t.Fatalf("types=%d want 7", got)
	}

	valid := []string{
		`{"type":"HELLO","protocol_version":"1.0","client_name":"ops"}`,
		`{"type":"SELECT","protocol_version":"1.0","request_id":"r1","region":1,"items":["a","b"]}`,
		`{"type":"PREVIEW","protocol_version":"1.0","request_id":"r2","ref":"x","cursor":[4.5,4.5]}`,
		`{"type":"COMMIT","protocol_version":"1.0","request_id":"r3","ref":"x","cursor":[0,12]}`,
		`{"type":"DISCARD","protocol_version":"1.0","request_id":"r4","ref":"x"}`,
		`{"type":"CANCEL_ITEM","protocol_version":"1.0","request_id":"r5","item":"a"}`,
		`{"type":"SET_QUANTITY","protocol_version":"1.0","request_id":"r6","posting_id":1,"item":"a","quantity":0}`,
	}
	for _, raw := range valid {
		base, err := v.Validate([]byte(raw))
		if err != nil {
			t.Fatalf("validate %s: %v", raw, err)
		}
		if base.Type == "" {
			t.Fatalf("missing type for %s", raw)
		}
	}
}

func TestSchemas_RejectBadMessages(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	cases := map[string]string{
		"unknown type":       `{"type":"OBS","protocol_version":"1.0"}`,
		"not json":           `{"type":`,
		"hello no name":      `{"type":"HELLO","protocol_version":"1.0"}`,
		"select empty":       `{"type":"SELECT","protocol_version":"1.0","request_id":"r1","region":1,"items":[]}`,
		"select dup items":   `{"type":"SELECT","protocol_version":"1.0","request_id":"r1","region":1,"items":["a","a"]}`,
		"select neg region":  `{"type":"SELECT","protocol_version":"1.0","request_id":"r1","region":-1,"items":["a"]}`,
		"preview short":      `{"type":"PREVIEW","protocol_version":"1.0","request_id":"r2","ref":"x","cursor":[1]}`,
		"commit extra field": `{"type":"COMMIT","protocol_version":"1.0","request_id":"r3","ref":"x","cursor":[0,0],"force":true}`,
		"set negative":       `{"type":"SET_QUANTITY","protocol_version":"1.0","request_id":"r6","posting_id":1,"item":"a","quantity":-2}`,
		"set fractional":     `{"type":"SET_QUANTITY","protocol_version":"1.0","request_id":"r6","posting_id":1,"item":"a","quantity":1.5}`,
		"posting zero":       `{"type":"SET_QUANTITY","protocol_version":"1.0","request_id":"r6","posting_id":0,"item":"a","quantity":1}`,
	}
	for name, raw := range cases {
		if _, err := v.Validate([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
