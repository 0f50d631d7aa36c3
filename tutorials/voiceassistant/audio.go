package voiceassistant

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// PCM format of live audio: 16-bit little endian mono.
const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
)

// PCMToInt16 decodes little endian 16-bit samples. A trailing odd byte is
// ignored.
func PCMToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return samples
}

// Int16ToPCM encodes samples as little endian bytes.
func Int16ToPCM(samples []int16) []byte {
	pcm := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}
	return pcm
}

// AdjustVolume scales every sample by factor and clips to the int16 range.
func AdjustVolume(pcm []byte, factor float64) []byte {
	samples := PCMToInt16(pcm)
	for i, s := range samples {
		v := math.Round(float64(s) * factor)
		samples[i] = int16(max(math.MinInt16, min(math.MaxInt16, v)))
	}
	return Int16ToPCM(samples)
}

// Duration returns the playback length of pcm in seconds.
func Duration(pcm []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(pcm)/2) / float64(sampleRate)
}

// WriteWAV writes pcm as a mono 16-bit RIFF/WAVE stream.
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	const headerSize = 36

	byteRate := sampleRate * Channels * BitsPerSample / 8
	blockAlign := Channels * BitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(headerSize + 8 + len(pcm))

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(headerSize+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(Channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(BitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write wav: %w", err)
	}
	return nil
}

// SaveWAV writes pcm to path as a WAV file.
func SaveWAV(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteWAV(f, pcm, sampleRate); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadWAV returns the PCM payload and sample rate of a mono 16-bit WAV
// stream written by WriteWAV.
func ReadWAV(r io.Reader) ([]byte, int, error) {
	var header struct {
		RIFF          [4]byte
		Size          uint32
		WAVE          [4]byte
		FmtID         [4]byte
		FmtSize       uint32
		Format        uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		DataID        [4]byte
		DataSize      uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("failed to read wav header: %w", err)
	}
	if string(header.RIFF[:]) != "RIFF" || string(header.WAVE[:]) != "WAVE" || string(header.DataID[:]) != "data" {
		return nil, 0, fmt.Errorf("unsupported wav layout")
	}
	if header.Channels != Channels || header.BitsPerSample != BitsPerSample {
		return nil, 0, fmt.Errorf("unsupported wav format: %d channels, %d bits", header.Channels, header.BitsPerSample)
	}

	pcm := make([]byte, header.DataSize)
	if _, err := io.ReadFull(r, pcm); err != nil {
		return nil, 0, fmt.Errorf("failed to read wav data: %w", err)
	}
	return pcm, int(header.SampleRate), nil
}
