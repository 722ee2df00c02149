// Package audio joins synthesized speech into chapter WAVs and assembles
// chapter WAVs into a chaptered M4B with ffmpeg.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1

	pcmFormat   = 1
	headerBytes = 44
)

var (
	ErrNotWAV            = errors.New("not a WAV file")
	ErrUnsupportedFormat = errors.New("unsupported WAV encoding")
	ErrFormatMismatch    = errors.New("WAV formats differ")
	ErrNoSegments        = errors.New("no audio segments")
)

// Format describes PCM sample layout.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitsPerSample)
}

func (f Format) frameBytes() int {
	return f.Channels * f.BitsPerSample / 8
}

// WAV is a decoded PCM WAV file.
type WAV struct {
	Format
	Data []byte
}

// Duration is the playback length of the sample data.
func (w *WAV) Duration() time.Duration {
	fb := w.frameBytes()
	if fb == 0 || w.SampleRate == 0 {
		return 0
	}
	frames := len(w.Data) / fb
	return time.Duration(frames) * time.Second / time.Duration(w.SampleRate)
}

// ParseWAV decodes a RIFF/WAVE buffer. A data chunk whose declared size
// exceeds the buffer (streamed responses) is clamped to what is present.
func ParseWAV(b []byte) (*WAV, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		w       WAV
		haveFmt bool
		format  uint16
	)
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		pos += 8

		switch id {
		case "fmt ":
			if size < 16 || pos+16 > len(b) {
				return nil, fmt.Errorf("invalid fmt chunk: %w", ErrNotWAV)
			}
			format = binary.LittleEndian.Uint16(b[pos : pos+2])
			w.Channels = int(binary.LittleEndian.Uint16(b[pos+2 : pos+4]))
			w.SampleRate = int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
			w.BitsPerSample = int(binary.LittleEndian.Uint16(b[pos+14 : pos+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("data before fmt chunk: %w", ErrNotWAV)
			}
			end := pos + size
			if size < 0 || end > len(b) {
				end = len(b)
			}
			w.Data = b[pos:end]
			if fb := w.frameBytes(); fb > 0 {
				w.Data = w.Data[:len(w.Data)/fb*fb]
			}
			if format != pcmFormat && format != 0xFFFE {
				return &w, fmt.Errorf("format tag %d: %w", format, ErrUnsupportedFormat)
			}
			if w.Channels == 0 || w.SampleRate == 0 || w.BitsPerSample == 0 {
				return nil, errors.New("missing audio format information")
			}
			return &w, nil
		}
		if size%2 == 1 {
			size++
		}
		pos += size
	}
	return nil, fmt.Errorf("no data chunk: %w", ErrNotWAV)
}

// ReadWAVFile parses a WAV file from disk.
func ReadWAVFile(path string) (*WAV, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	w, err := ParseWAV(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Bytes encodes w as a canonical 44-byte-header WAV.
func (w *WAV) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(headerBytes + len(w.Data))

	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(36+len(w.Data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16))
	_ = binary.Write(&buf, le, uint16(pcmFormat))
	_ = binary.Write(&buf, le, uint16(w.Channels))
	_ = binary.Write(&buf, le, uint32(w.SampleRate))
	_ = binary.Write(&buf, le, uint32(w.SampleRate*w.frameBytes()))
	_ = binary.Write(&buf, le, uint16(w.frameBytes()))
	_ = binary.Write(&buf, le, uint16(w.BitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, le, uint32(len(w.Data)))
	buf.Write(w.Data)
	return buf.Bytes()
}

// WriteFile writes w to path.
func (w *WAV) WriteFile(path string) error {
	return os.WriteFile(path, w.Bytes(), 0o644)
}

// Silence returns d of 16-bit silence.
func Silence(d time.Duration, f Format) *WAV {
	if f.SampleRate <= 0 {
		f.SampleRate = DefaultSampleRate
	}
	if f.Channels <= 0 {
		f.Channels = DefaultChannels
	}
	f.BitsPerSample = 16
	frames := int(d * time.Duration(f.SampleRate) / time.Second)
	return &WAV{Format: f, Data: make([]byte, frames*f.frameBytes())}
}

// Crossfade joins 16-bit PCM segments, overlapping each boundary by a
// linear fade of the given length. The overlap is capped at the shorter
// neighbour.
func Crossfade(segments []*WAV, fade time.Duration) (*WAV, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	f := segments[0].Format
	for _, s := range segments {
		if s.Format != f {
			return nil, fmt.Errorf("%s vs %s: %w", f, s.Format, ErrFormatMismatch)
		}
	}
	if f.BitsPerSample != 16 {
		return nil, fmt.Errorf("%d-bit samples: %w", f.BitsPerSample, ErrUnsupportedFormat)
	}

	fb := f.frameBytes()
	fadeFrames := int(fade * time.Duration(f.SampleRate) / time.Second)

	out := append([]byte(nil), segments[0].Data...)
	for _, s := range segments[1:] {
		n := min(fadeFrames, len(out)/fb, len(s.Data)/fb)
		if n <= 0 {
			out = append(out, s.Data...)
			continue
		}
		tail := out[len(out)-n*fb:]
		head := s.Data[:n*fb]
		samples := n * f.Channels
		for i := 0; i < samples; i++ {
			frame := i / f.Channels
			t := float64(frame+1) / float64(n+1)
			a := float64(int16(binary.LittleEndian.Uint16(tail[i*2:])))
			b := float64(int16(binary.LittleEndian.Uint16(head[i*2:])))
			binary.LittleEndian.PutUint16(tail[i*2:], uint16(clamp16(a*(1-t)+b*t)))
		}
		out = append(out, s.Data[n*fb:]...)
	}
	return &WAV{Format: f, Data: out}, nil
}

func clamp16(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
