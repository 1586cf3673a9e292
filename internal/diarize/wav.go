package diarize

import (
	"encoding/binary"
	"fmt"
	"os"
)

// readWAV loads a 16-bit PCM WAV file and returns normalized samples in
// [-1, 1] plus the sample rate. Only the canonical recognizer input format
// is supported; anything else went through the extractor first.
func readWAV(path string) ([]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file: %s", path)
	}

	audioFormat := binary.LittleEndian.Uint16(data[20:22])
	channels := int(binary.LittleEndian.Uint16(data[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])
	if audioFormat != 1 || bitsPerSample != 16 || channels != 1 {
		return nil, 0, fmt.Errorf("unsupported WAV layout (format=%d bits=%d channels=%d)",
			audioFormat, bitsPerSample, channels)
	}

	// Walk chunks to find "data"; some encoders insert LIST or fact chunks
	// before it.
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if id == "data" {
			end := body + size
			if end > len(data) {
				end = len(data)
			}
			pcm := data[body:end]
			samples := make([]float32, len(pcm)/2)
			for i := range samples {
				s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
				samples[i] = float32(s) / 32768.0
			}
			return samples, sampleRate, nil
		}
		pos = body + size
		if size%2 == 1 {
			pos++ // chunk bodies are word-aligned
		}
	}
	return nil, 0, fmt.Errorf("no data chunk in WAV file: %s", path)
}
