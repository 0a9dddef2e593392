package testsupport

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// RecordingSampleRate is the rate of WAV fixtures written by WriteRecording.
const RecordingSampleRate = 16000

// WriteRecording writes a silent mono 16-bit PCM WAV of the given length to
// path and returns its size in bytes. Tests use it wherever a meeting
// recording is expected, whatever the file extension.
func WriteRecording(t testing.TB, path string, seconds float64) int64 {
	t.Helper()
	samples := int(seconds * RecordingSampleRate)
	if samples < 1 {
		samples = 1
	}
	dataLen := uint32(samples * 2)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	for _, v := range []any{
		uint32(16),                      // fmt chunk size
		uint16(1),                       // PCM
		uint16(1),                       // mono
		uint32(RecordingSampleRate),     // sample rate
		uint32(RecordingSampleRate * 2), // byte rate
		uint16(2),                       // block align
		uint16(16),                      // bits per sample
	} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(make([]byte, dataLen))

	writeBytes(t, path, buf.Bytes())
	return int64(buf.Len())
}

// WriteFile writes size filler bytes to path, creating parent directories.
// Use it for non-audio fixtures such as notes, logs and stale uploads.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	writeBytes(t, path, bytes.Repeat([]byte{'x'}, int(max(size, 1))))
}

func writeBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
