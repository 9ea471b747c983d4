package oto

import (
	"encoding/binary"

	"github.com/sinatra-studio/sinatra"
)

// FloatBufferTo16BitLE appends the stereo frames of buff to dst as interleaved
// 16-bit little-endian integers and returns the number of bytes written. dst
// must have capacity for 4 bytes per frame.
func FloatBufferTo16BitLE(buff sinatra.AudioBuffer, dst []byte) int {
	dst = dst[:len(buff)*4]
	for i, frame := range buff {
		binary.LittleEndian.PutUint16(dst[i*4:], uint16(sinatra.PCM16(frame[0])))
		binary.LittleEndian.PutUint16(dst[i*4+2:], uint16(sinatra.PCM16(frame[1])))
	}
	return len(dst)
}
