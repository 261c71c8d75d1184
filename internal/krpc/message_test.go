package krpc

import (
	"bytes"
	"testing"
)

func TestQueryRoundTrip(t *testing.T) {
	localID := bytes.Repeat([]byte{0x11}, 20)
	target := bytes.Repeat([]byte{0x22}, 20)

	encoded, err := EncodeQuery("aa", FindNode, map[string]interface{}{
		"id":     string(localID),
		"target": string(target),
	})
	if err != nil {
		t.Fatalf("EncodeQuery: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != TypeQuery || decoded.Query != FindNode || decoded.TID != "aa" {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
	gotID, ok := GetBytes(decoded.Args, "id")
	if !ok || !bytes.Equal(gotID, localID) {
		t.Fatalf("id round trip failed: %v", gotID)
	}
	gotTarget, ok := GetBytes(decoded.Args, "target")
	if !ok || !bytes.Equal(gotTarget, target) {
		t.Fatalf("target round trip failed: %v", gotTarget)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	id := bytes.Repeat([]byte{0x33}, 20)
	encoded, err := EncodeResponse("zz", map[string]interface{}{"id": string(id)})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != TypeResponse || decoded.TID != "zz" {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
	got, ok := GetBytes(decoded.R, "id")
	if !ok || !bytes.Equal(got, id) {
		t.Fatalf("id round trip failed: %v", got)
	}
}

func TestErrorRoundTrip(t *testing.T) {
	encoded, err := EncodeError("q1", ErrProtocol, "bad token")
	if err != nil {
		t.Fatalf("EncodeError: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != TypeError || decoded.ErrorCode != ErrProtocol || decoded.ErrorMsg != "bad token" {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
}

func TestDecodeRejectsMissingTransactionID(t *testing.T) {
	raw, _ := marshal(map[string]interface{}{"y": "q", "q": "ping", "a": map[string]interface{}{}})
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for missing t")
	}
}

func TestDecodeRejectsMissingType(t *testing.T) {
	raw, _ := marshal(map[string]interface{}{"t": "aa"})
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for missing y")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not bencode")); err == nil {
		t.Fatal("expected decode error for garbage input")
	}
}
