package drm

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"
)

func widevineEntry(payload []byte) ProtectionData {
	return ProtectionData{
		KeyFormat: string(KeySystemWidevine),
		URI:       "base64," + base64.StdEncoding.EncodeToString(payload),
	}
}

func TestExtractInitData_widevine_wrapsPsshBox(t *testing.T) {
	payload := []byte("widevine-pssh-payload")
	ext, err := ExtractInitData(KeySystemWidevine, []ProtectionData{widevineEntry(payload)})
	if err != nil {
		t.Fatalf("ExtractInitData: %v", err)
	}

	if ext.Type != InitDataTypeCenc {
		t.Errorf("init data type: got %q want %q", ext.Type, InitDataTypeCenc)
	}
	box := ext.Data
	if len(box) != 32+len(payload) {
		t.Fatalf("box length: got %d want %d", len(box), 32+len(payload))
	}
	if binary.BigEndian.Uint32(box[0:4]) != uint32(len(box)) {
		t.Errorf("box size field: got %d want %d", binary.BigEndian.Uint32(box[0:4]), len(box))
	}
	if string(box[4:8]) != "pssh" {
		t.Errorf("box type: got %q", box[4:8])
	}
	if !bytes.Equal(box[8:12], []byte{0, 0, 0, 0}) {
		t.Errorf("version/flags: got %x want zero", box[8:12])
	}
	if !bytes.Equal(box[12:28], widevineSystemID[:]) {
		t.Errorf("system id: got %x", box[12:28])
	}
	if binary.BigEndian.Uint32(box[28:32]) != uint32(len(payload)) {
		t.Errorf("data size: got %d want %d", binary.BigEndian.Uint32(box[28:32]), len(payload))
	}
	if !bytes.Equal(box[32:], payload) {
		t.Error("payload mismatch")
	}
}

func TestExtractInitData_playReady_passesPayloadThrough(t *testing.T) {
	payload := []byte("playready-object")
	entry := ProtectionData{
		KeyFormat: string(KeySystemPlayReady),
		URI:       "base64," + base64.StdEncoding.EncodeToString(payload),
	}
	ext, err := ExtractInitData(KeySystemPlayReady, []ProtectionData{entry})
	if err != nil {
		t.Fatalf("ExtractInitData: %v", err)
	}
	if !bytes.Equal(ext.Data, payload) {
		t.Errorf("init data: got %x want %x", ext.Data, payload)
	}
	if ext.Type != InitDataTypeCenc {
		t.Errorf("init data type: got %q want %q", ext.Type, InitDataTypeCenc)
	}
}

func TestExtractInitData_firstMatchingEntryWins(t *testing.T) {
	first := widevineEntry([]byte("first"))
	second := widevineEntry([]byte("second"))
	other := ProtectionData{KeyFormat: string(KeySystemPlayReady), URI: "base64,AAAA"}

	ext, err := ExtractInitData(KeySystemWidevine, []ProtectionData{other, first, second})
	if err != nil {
		t.Fatalf("ExtractInitData: %v", err)
	}
	if ext.Fingerprint != base64.StdEncoding.EncodeToString([]byte("first")) {
		t.Errorf("fingerprint: got %q, want the first widevine entry", ext.Fingerprint)
	}
}

func TestExtractInitData_noMatchingKeyFormat(t *testing.T) {
	entries := []ProtectionData{{KeyFormat: "com.example.other", URI: "base64,AAAA"}}
	if _, err := ExtractInitData(KeySystemWidevine, entries); err == nil {
		t.Error("expected error when no entry matches the key system")
	}
}

func TestExtractInitData_malformedURI(t *testing.T) {
	entries := []ProtectionData{{KeyFormat: string(KeySystemWidevine), URI: "no-separator"}}
	if _, err := ExtractInitData(KeySystemWidevine, entries); err == nil {
		t.Error("expected error for URI without encoding separator")
	}
}

func TestExtractInitData_badBase64(t *testing.T) {
	entries := []ProtectionData{{KeyFormat: string(KeySystemWidevine), URI: "base64,!!!not-base64!!!"}}
	if _, err := ExtractInitData(KeySystemWidevine, entries); err == nil {
		t.Error("expected error for undecodable payload")
	}
}
