// Package encode turns raw video frames into compressed bitstream
// frames, and annotates bitstreams that arrive pre-encoded from
// hardware.
package encode

import (
	"bytes"
	"image"
	"image/jpeg"
	"log/slog"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/jmylchreest/framewire/internal/pipeline"
)

// MJPEGEncoder returns a stage compressing planar 4:2:0 frames into
// JPEG images at the given quality (1-100). Every output frame is a
// keyframe: JPEG has no inter-frame prediction.
func MJPEGEncoder[G pipeline.Geometry](logger *slog.Logger, quality int) *pipeline.FuncStage[pipeline.YUV420P, G, pipeline.MJPEG, G] {
	opts := &jpeg.Options{Quality: quality}
	return pipeline.NewFuncStage("mjpeg-encode", logger,
		func(in *pipeline.Frame[pipeline.YUV420P, G]) (*pipeline.Frame[pipeline.MJPEG, G], error) {
			w := in.Width()
			h := in.Height()
			d := in.Data()
			cs := (w / 2) * (h / 2)

			// The image aliases the input planes; jpeg.Encode only
			// reads, so no copy is needed before the encode.
			img := &image.YCbCr{
				Y:              d[:w*h],
				Cb:             d[w*h : w*h+cs],
				Cr:             d[w*h+cs : w*h+2*cs],
				YStride:        w,
				CStride:        w / 2,
				SubsampleRatio: image.YCbCrSubsampleRatio420,
				Rect:           image.Rect(0, 0, w, h),
			}

			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, img, opts); err != nil {
				return nil, err
			}

			out := pipeline.NewBitstreamFrame[pipeline.MJPEG, G](buf.Bytes())
			out.PTS = in.PTS
			out.DTS = in.DTS
			out.Seq = in.Seq
			out.Keyframe = true
			return out, nil
		})
}

var annexBStartCode = []byte{0x00, 0x00, 0x01}

// H264Passthrough returns a stage forwarding hardware-encoded H.264
// access units while flagging random-access points. Cameras usually
// deliver one complete Annex B access unit per buffer, but some split
// units across reads or emit junk before the first start code; input
// accumulates until it parses as an access unit, reporting Buffering
// in between.
func H264Passthrough[G pipeline.Geometry](logger *slog.Logger) *pipeline.FuncStage[pipeline.H264, G, pipeline.H264, G] {
	var pending []byte
	return pipeline.NewFuncStage("h264-passthrough", logger,
		func(in *pipeline.Frame[pipeline.H264, G]) (*pipeline.Frame[pipeline.H264, G], error) {
			if len(pending) == 0 {
				i := bytes.Index(in.Data(), annexBStartCode)
				if i < 0 {
					return nil, nil
				}
				// Keep the zero byte of a four-byte start code.
				if i > 0 && in.Data()[i-1] == 0x00 {
					i--
				}
				pending = append(pending, in.Data()[i:]...)
			} else {
				pending = append(pending, in.Data()...)
			}

			var au h264.AnnexB
			if err := au.Unmarshal(pending); err != nil {
				return nil, nil
			}

			out := pipeline.NewBitstreamFrame[pipeline.H264, G](pending)
			pending = nil
			out.PTS = in.PTS
			out.DTS = in.DTS
			out.Seq = in.Seq
			out.Keyframe = h264.IsRandomAccess(au)
			return out, nil
		})
}
