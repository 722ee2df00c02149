// Package audiotest provides an in-process audio toolchain and WAV
// generators for tests that must not depend on ffmpeg.
package audiotest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/narrator/internal/audio"
)

// Tone returns a 440 Hz 16-bit mono WAV of length d.
func Tone(d time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	frames := int(d * time.Duration(sampleRate) / time.Second)
	data := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	w := audio.WAV{Format: audio.Format{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}, Data: data}
	return w.Bytes()
}

// Toolchain is an audio.Toolchain that treats every intermediate as a WAV:
// transcoding copies, concatenation joins samples, and muxing appends the
// metadata file so chapter markers can be counted back.
type Toolchain struct {
	mu sync.Mutex

	Transcoded []string
	Muxed      []audio.MuxRequest
	Joined     int

	// ExtraChapters is added to the counted markers to force a mismatch.
	ExtraChapters int
	MuxErr        error
}

var _ audio.Toolchain = (*Toolchain)(nil)

const metadataMarker = "\n--FFMETADATA--\n"

func (t *Toolchain) Transcode(_ context.Context, in, out, _ string) error {
	t.mu.Lock()
	t.Transcoded = append(t.Transcoded, in)
	t.mu.Unlock()

	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	if _, err := audio.ParseWAV(b); err != nil {
		return fmt.Errorf("transcode %s: %w", in, err)
	}
	return os.WriteFile(out, b, 0o644)
}

func (t *Toolchain) Concat(_ context.Context, inputs []string, out string) error {
	return joinFiles(inputs, out, false)
}

func (t *Toolchain) JoinWAV(_ context.Context, inputs []string, out string, f audio.Format) error {
	t.mu.Lock()
	t.Joined++
	t.mu.Unlock()
	return joinFiles(inputs, out, true)
}

func joinFiles(inputs []string, out string, relaxed bool) error {
	if len(inputs) == 0 {
		return audio.ErrNoSegments
	}
	var joined *audio.WAV
	for _, in := range inputs {
		w, err := audio.ReadWAVFile(in)
		if err != nil {
			return err
		}
		if joined == nil {
			joined = &audio.WAV{Format: w.Format}
		} else if w.Format != joined.Format && !relaxed {
			return fmt.Errorf("concat %s: %w", in, audio.ErrFormatMismatch)
		}
		if w.Format != joined.Format {
			// Rescale frame count so durations add up.
			frames := int(w.Duration() * time.Duration(joined.SampleRate) / time.Second)
			w = &audio.WAV{Format: joined.Format, Data: make([]byte, frames*joined.Channels*joined.BitsPerSample/8)}
		}
		joined.Data = append(joined.Data, w.Data...)
	}
	return joined.WriteFile(out)
}

func (t *Toolchain) Mux(_ context.Context, req audio.MuxRequest) error {
	t.mu.Lock()
	t.Muxed = append(t.Muxed, req)
	muxErr := t.MuxErr
	t.mu.Unlock()
	if muxErr != nil {
		return muxErr
	}

	a, err := os.ReadFile(req.Audio)
	if err != nil {
		return err
	}
	m, err := os.ReadFile(req.Metadata)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.Write(a)
	buf.WriteString(metadataMarker)
	buf.Write(m)
	return os.WriteFile(req.Out, buf.Bytes(), 0o644)
}

func (t *Toolchain) Duration(_ context.Context, path string) (time.Duration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if i := bytes.Index(b, []byte(metadataMarker)); i >= 0 {
		b = b[:i]
	}
	w, err := audio.ParseWAV(b)
	if err != nil {
		return 0, err
	}
	return w.Duration(), nil
}

func (t *Toolchain) Chapters(_ context.Context, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	i := bytes.Index(b, []byte(metadataMarker))
	if i < 0 {
		return 0, nil
	}
	t.mu.Lock()
	extra := t.ExtraChapters
	t.mu.Unlock()
	return strings.Count(string(b[i:]), "[CHAPTER]") + extra, nil
}

// Metadata returns the FFMETADATA document embedded in a muxed file.
func Metadata(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	i := bytes.Index(b, []byte(metadataMarker))
	if i < 0 {
		return "", fmt.Errorf("%s carries no metadata", path)
	}
	return string(b[i+len(metadataMarker):]), nil
}
