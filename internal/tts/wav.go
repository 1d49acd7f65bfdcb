// SPDX-License-Identifier: MIT

package tts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// wavDuration reads the RIFF header of a WAV file and derives its playback
// duration from the fmt byte rate and the data chunk length.
func wavDuration(path string) (float64, error) {
	f, err := os.Open(path) // #nosec G304 - path is produced by the synthesizer
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return 0, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, errors.New("not a RIFF/WAVE file")
	}

	var byteRate uint32
	var dataSize uint32
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			var fmtBody [16]byte
			if _, err := io.ReadFull(f, fmtBody[:]); err != nil {
				return 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(fmtBody[8:12])
			if rest := int64(size) - 16; rest > 0 {
				if _, err := f.Seek(rest, io.SeekCurrent); err != nil {
					return 0, err
				}
			}
		case "data":
			dataSize = size
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return 0, err
			}
		}

		if byteRate > 0 && dataSize > 0 {
			break
		}
		// Chunks are word-aligned.
		if size%2 == 1 {
			if _, err := f.Seek(1, io.SeekCurrent); err != nil {
				return 0, err
			}
		}
	}

	if byteRate == 0 || dataSize == 0 {
		return 0, errors.New("wav missing fmt or data chunk")
	}
	return float64(dataSize) / float64(byteRate), nil
}
