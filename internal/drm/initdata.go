package drm

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
)

// widevineSystemID is the DASH/CENC system identifier for Widevine
// (edef8ba9-79d6-4ace-a3c8-27dcd51d21ed).
var widevineSystemID = [16]byte{
	0xed, 0xef, 0x8b, 0xa9, 0x79, 0xd6, 0x4a, 0xce,
	0xa3, 0xc8, 0x27, 0xdc, 0xd5, 0x1d, 0x21, 0xed,
}

// ExtractedInitData is the canonical initialization data derived from a
// protection-metadata entry, plus the raw PSSH fingerprint used for
// duplicate suppression. The fingerprint comparison is the caller's job:
// extraction itself is stateless.
type ExtractedInitData struct {
	Type        string
	Data        []byte
	Fingerprint string
}

// ExtractInitData turns a protection-metadata list into initialization data
// for the given key system. Entries whose key format does not match the key
// system are skipped; the first match wins. Upstream guarantees a match is
// present when this is invoked, so absence is reported as a plain error.
func ExtractInitData(keySystem KeySystem, entries []ProtectionData) (ExtractedInitData, error) {
	var entry *ProtectionData
	for i := range entries {
		if entries[i].KeyFormat == string(keySystem) {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return ExtractedInitData{}, fmt.Errorf("no protection data for key system %q", keySystem)
	}

	_, pssh, err := splitProtectionURI(entry.URI)
	if err != nil {
		return ExtractedInitData{}, err
	}

	payload, err := base64.StdEncoding.DecodeString(pssh)
	if err != nil {
		return ExtractedInitData{}, fmt.Errorf("decode protection payload: %w", err)
	}

	data := payload
	if keySystem == KeySystemWidevine {
		// Widevine init data is the payload wrapped in a version-0
		// PSSH box; PlayReady takes the payload verbatim.
		data = wrapPsshBox(widevineSystemID, payload)
	}

	return ExtractedInitData{
		Type:        InitDataTypeCenc,
		Data:        data,
		Fingerprint: pssh,
	}, nil
}

// splitProtectionURI parses the comma-joined relative URI carried by a
// protection-metadata entry into its encoding tag and payload.
func splitProtectionURI(uri string) (encoding, payload string, err error) {
	idx := strings.Index(uri, ",")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed protection URI %q: missing encoding separator", uri)
	}
	return uri[:idx], uri[idx+1:], nil
}

// wrapPsshBox builds a version-0 PSSH box around payload:
// size (4) + "pssh" (4) + version/flags (4) + system ID (16) + data size (4) + data.
func wrapPsshBox(systemID [16]byte, payload []byte) []byte {
	size := 32 + len(payload)
	box := make([]byte, 0, size)

	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(size))
	box = append(box, u32[:]...)
	box = append(box, 'p', 's', 's', 'h')
	box = append(box, 0, 0, 0, 0) // version 0, flags 0
	box = append(box, systemID[:]...)
	binary.BigEndian.PutUint32(u32[:], uint32(len(payload)))
	box = append(box, u32[:]...)
	box = append(box, payload...)

	return box
}
