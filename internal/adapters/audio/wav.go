// Package audio holds the PCM16 WAV gain stage, tone synthesis and the
// command-line capture/playback devices used by the walkie-talkie client.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// DefaultGain is the amplification applied to incoming broadcasts.
const DefaultGain = 2.0

// DefaultSampleRate is used for recordings and synthesized tones.
const DefaultSampleRate = 16000

// ErrNotPCM16WAV is returned for payloads the gain stage cannot process.
var ErrNotPCM16WAV = errors.New("audio is not 16-bit PCM WAV")

// Format is the subset of a WAV fmt chunk the gain stage needs.
type Format struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// wavLayout locates the fmt and data chunks inside a RIFF/WAVE payload.
type wavLayout struct {
	format     Format
	dataOffset int
	dataLen    int
}

func parseWAV(data []byte) (wavLayout, error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return wavLayout{}, ErrNotPCM16WAV
	}
	var layout wavLayout
	var haveFmt bool
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// Streaming writers (arecord to a pipe) leave the data size unset.
			if id == "data" {
				size = len(data) - body
			} else {
				return wavLayout{}, ErrNotPCM16WAV
			}
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return wavLayout{}, ErrNotPCM16WAV
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			layout.format = Format{
				Channels:      int(binary.LittleEndian.Uint16(data[body+2 : body+4])),
				SampleRate:    int(binary.LittleEndian.Uint32(data[body+4 : body+8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(data[body+14 : body+16])),
			}
			// 1 = PCM, 0xFFFE = WAVE_FORMAT_EXTENSIBLE
			if (audioFormat != 1 && audioFormat != 0xFFFE) || layout.format.BitsPerSample != 16 {
				return wavLayout{}, ErrNotPCM16WAV
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return wavLayout{}, ErrNotPCM16WAV
			}
			layout.dataOffset = body
			layout.dataLen = size &^ 1
			return layout, nil
		}
		pos = body + size + size%2
	}
	return wavLayout{}, ErrNotPCM16WAV
}

// Amplify returns a copy of a PCM16 WAV payload with every sample multiplied
// by gain and clipped to the int16 range. The input is not modified.
// PRE: gain >= 0
// POST: header bytes are unchanged; len(result) == len(data)
func Amplify(data []byte, gain float64) ([]byte, error) {
	layout, err := parseWAV(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	samples := out[layout.dataOffset : layout.dataOffset+layout.dataLen]
	for i := 0; i+1 < len(samples); i += 2 {
		s := int16(binary.LittleEndian.Uint16(samples[i:]))
		binary.LittleEndian.PutUint16(samples[i:], uint16(clip(float64(s)*gain)))
	}
	return out, nil
}

func clip(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}

// EncodeWAV wraps mono PCM16 samples in a canonical 44-byte WAV header.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const headerLen = 44
	dataLen := len(samples) * 2
	buf := make([]byte, headerLen+dataLen)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(headerLen-8+dataLen))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataLen))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[headerLen+2*i:], uint16(s))
	}
	return buf
}

// Tone synthesizes a sine beep at freqHz with short linear fades to avoid clicks.
func Tone(freqHz float64, d time.Duration, sampleRate int) []byte {
	n := int(d.Seconds() * float64(sampleRate))
	fade := sampleRate / 100 // 10ms
	samples := make([]int16, n)
	const amplitude = 0.3 * math.MaxInt16
	for i := range samples {
		env := 1.0
		if i < fade {
			env = float64(i) / float64(fade)
		} else if n-i < fade {
			env = float64(n-i) / float64(fade)
		}
		samples[i] = int16(amplitude * env * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate)))
	}
	return EncodeWAV(samples, sampleRate)
}

// Start and end tones bracketing an incoming broadcast.
var (
	StartTone = Tone(880, 120*time.Millisecond, DefaultSampleRate)
	EndTone   = Tone(440, 120*time.Millisecond, DefaultSampleRate)
)
