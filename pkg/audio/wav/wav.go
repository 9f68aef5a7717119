// Package wav reads and writes the canonical RIFF/WAVE container around raw
// PCM audio. Only uncompressed PCM (format tag 1) is supported, which is what
// recognition servers accept and what capture tools produce.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/speechkit/pkg/audio"
)

// headerSize is the size of the canonical 44-byte header written by [Encode].
const headerSize = 44

var (
	// ErrNotWAV is returned when the input does not start with a RIFF/WAVE header.
	ErrNotWAV = errors.New("wav: not a RIFF/WAVE stream")

	// ErrUnsupported is returned for non-PCM encodings.
	ErrUnsupported = errors.New("wav: unsupported encoding")
)

// Encode wraps pcm in a RIFF/WAVE container described by f.
func Encode(pcm []byte, f audio.Format) []byte {
	blockAlign := f.Channels * f.BitDepth / 8
	buf := make([]byte, headerSize+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(f.BitDepth))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[headerSize:], pcm)
	return buf
}

// Decode reads a WAV stream and returns its PCM payload and format. Unknown
// sub-chunks (LIST, fact, ...) are skipped.
func Decode(r io.Reader) ([]byte, audio.Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, audio.Format{}, fmt.Errorf("wav: read header: %w", err)
	}
	if !bytes.Equal(riff[0:4], []byte("RIFF")) || !bytes.Equal(riff[8:12], []byte("WAVE")) {
		return nil, audio.Format{}, ErrNotWAV
	}

	var (
		format  audio.Format
		haveFmt bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, audio.Format{}, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, audio.Format{}, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, audio.Format{}, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != 1 {
				return nil, audio.Format{}, fmt.Errorf("%w: format tag %d", ErrUnsupported, tag)
			}
			format = audio.Format{
				Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
				BitDepth:   int(binary.LittleEndian.Uint16(body[14:16])),
			}
			haveFmt = true
			if size%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return nil, audio.Format{}, fmt.Errorf("wav: skip padding: %w", err)
				}
			}
		case "data":
			if !haveFmt {
				return nil, audio.Format{}, errors.New("wav: data chunk before fmt chunk")
			}
			pcm := make([]byte, size)
			n, err := io.ReadFull(r, pcm)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
				return nil, audio.Format{}, fmt.Errorf("wav: read data chunk: %w", err)
			}
			// Streaming writers often leave the data size unset; keep what arrived.
			return pcm[:n], format, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, audio.Format{}, fmt.Errorf("wav: skip %q chunk: %w", id, err)
			}
		}
	}
}
