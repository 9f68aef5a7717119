package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/speechkit/pkg/audio"
)

func TestEncode_Header(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 320)
	out := Encode(pcm, audio.DefaultFormat)

	if len(out) != headerSize+len(pcm) {
		t.Fatalf("len = %d, want %d", len(out), headerSize+len(pcm))
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Errorf("bad magic: %q %q", out[0:4], out[8:12])
	}
	if got := binary.LittleEndian.Uint32(out[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != 320 {
		t.Errorf("data size = %d, want 320", got)
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	format := audio.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	pcm := audio.EncodeInt16([]int16{1, -1, 2, -2, 3, -3})

	got, gotFormat, err := Decode(bytes.NewReader(Encode(pcm, format)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotFormat != format {
		t.Errorf("format = %+v, want %+v", gotFormat, format)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
}

func TestDecode_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 0, 2, 0}
	encoded := Encode(pcm, audio.DefaultFormat)

	// Splice a LIST chunk with an odd size between fmt and data.
	var buf bytes.Buffer
	buf.Write(encoded[:36])
	buf.WriteString("LIST")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0})
	buf.Write(encoded[36:])

	got, _, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	t.Run("not wav", func(t *testing.T) {
		t.Parallel()
		_, _, err := Decode(bytes.NewReader([]byte("OggS0000000000000000")))
		if !errors.Is(err, ErrNotWAV) {
			t.Errorf("err = %v, want ErrNotWAV", err)
		}
	})

	t.Run("non pcm", func(t *testing.T) {
		t.Parallel()
		encoded := Encode(nil, audio.DefaultFormat)
		binary.LittleEndian.PutUint16(encoded[20:22], 3) // IEEE float
		_, _, err := Decode(bytes.NewReader(encoded))
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		_, _, err := Decode(bytes.NewReader([]byte("RIFF")))
		if err == nil {
			t.Error("expected error for truncated header")
		}
	})
}
