package engine

import (
    "encoding/binary"
    "errors"
    "time"
)

var errNotWAV = errors.New("output is not a RIFF/WAVE file")

// probeWAV reads the RIFF header of generated audio and fills in the
// sample rate and playback duration. Synthesizers emit PCM WAV, so a full
// decoder is unnecessary; only fmt and data chunk metadata is inspected.
func probeWAV(data []byte) (sampleRate int, duration time.Duration, err error) {
    if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
        return 0, 0, errNotWAV
    }

    var byteRate uint32
    var dataLen uint32

    // Walk the chunk list; chunks are 8-byte headers plus payload.
    off := 12
    for off+8 <= len(data) {
        id := string(data[off : off+4])
        size := binary.LittleEndian.Uint32(data[off+4 : off+8])
        body := off + 8

        switch id {
        case "fmt ":
            if body+16 > len(data) {
                return 0, 0, errNotWAV
            }
            sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
            byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
        case "data":
            dataLen = size
        }

        off = body + int(size)
        if size%2 == 1 {
            off++ // chunks are word-aligned
        }
    }

    if sampleRate == 0 || byteRate == 0 {
        return 0, 0, errNotWAV
    }
    duration = time.Duration(float64(dataLen) / float64(byteRate) * float64(time.Second))
    return sampleRate, duration, nil
}
