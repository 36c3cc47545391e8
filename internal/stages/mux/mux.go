// Package mux wraps bluenviron/mediacommon MPEG-TS writing for the
// recorder and the HTTP streamer.
package mux

import (
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

// MPEG-TS constants.
const (
	// TSPacketSize is the standard MPEG-TS packet size.
	TSPacketSize = 188
	// TSSyncByte is the MPEG-TS sync byte.
	TSSyncByte = 0x47

	tsVideoPID = 0x0100
)

// TSWriter muxes a single H.264 elementary stream into MPEG-TS using
// mediacommon. PAT/PMT are emitted on initialization and periodically
// by the underlying writer.
type TSWriter struct {
	muxer *mpegts.Writer
	track *mpegts.Track
}

// NewTSWriter creates a TS writer emitting packets to w.
func NewTSWriter(w io.Writer) (*TSWriter, error) {
	track := &mpegts.Track{
		PID:   tsVideoPID,
		Codec: &mpegts.CodecH264{},
	}
	muxer := &mpegts.Writer{
		W:      w,
		Tracks: []*mpegts.Track{track},
	}
	if err := muxer.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing mpegts writer: %w", err)
	}
	return &TSWriter{muxer: muxer, track: track}, nil
}

// WriteAccessUnit muxes one H.264 access unit. pts and dts are in
// 90 kHz units; a zero dts falls back to pts for streams without
// B-frames.
func (t *TSWriter) WriteAccessUnit(pts, dts int64, data []byte) error {
	au := splitAccessUnit(data)
	if len(au) == 0 {
		return nil
	}
	if dts == 0 {
		dts = pts
	}
	return t.muxer.WriteH264(t.track, pts, dts, au)
}

// splitAccessUnit converts raw video data to a slice of NAL units.
// It handles both Annex B data (with start codes) and a raw NAL unit.
func splitAccessUnit(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if len(data) >= 4 && data[0] == 0x00 && data[1] == 0x00 {
		if data[2] == 0x01 || (data[2] == 0x00 && data[3] == 0x01) {
			var au h264.AnnexB
			if err := au.Unmarshal(data); err != nil {
				return [][]byte{data}
			}
			return au
		}
	}
	return [][]byte{data}
}
