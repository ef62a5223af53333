// Package audioconv moves captured PCM between the in-memory float32 form the
// microphone produces and the 16-bit WAV files the external speech tools eat.
package audioconv

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes mono float32 samples in [-1, 1] to path as 16-bit PCM WAV
// at the given sample rate.
func WriteWAV(path string, pcm []float32, sampleRate int) error {
	if len(pcm) == 0 {
		return errors.New("no samples to write")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           float32ToInt16(pcm),
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

// ReadWAV decodes a WAV file back to mono float32 samples, downmixing
// interleaved channels when needed. Sample rate is returned as-is.
func ReadWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav")
	}

	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, 0, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}

	x := intToFloat32(pb.Data, bd)

	ch, sr := 1, 16000
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	if ch > 1 {
		x = downmix(x, ch)
	}
	return x, sr, nil
}

// FrameRMS returns the root-mean-square level of one frame of samples.
func FrameRMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var s float64
	for _, x := range frame {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(frame)))
}

func float32ToInt16(in []float32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		x := float64(v)
		if x > 1 {
			x = 1
		} else if x < -1 {
			x = -1
		}
		out[i] = int(math.Round(x * 32767))
	}
	return out
}

func intToFloat32(in []int, bitDepth int) []float32 {
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	out := make([]float32, len(in))
	for i, v := range in {
		x := float64(v) * scale
		if x > 1 {
			x = 1
		} else if x < -1 {
			x = -1
		}
		out[i] = float32(x)
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	n := len(in) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}
