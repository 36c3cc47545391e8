// Package convert provides software pixel-format and geometry
// conversion stages. Conversions always produce a new frame; the input
// stays untouched for its other consumers.
package convert

import (
	"log/slog"

	"github.com/jmylchreest/framewire/internal/pipeline"
)

// YUYVToYUV420P returns a stage converting packed 4:2:2 into planar
// 4:2:0 at the same geometry. Chroma is taken from even rows, which is
// what cheap capture hardware does as well.
func YUYVToYUV420P[G pipeline.Geometry](logger *slog.Logger) *pipeline.FuncStage[pipeline.YUYV422, G, pipeline.YUV420P, G] {
	return pipeline.NewFuncStage("yuyv422-to-yuv420p", logger,
		func(in *pipeline.Frame[pipeline.YUYV422, G]) (*pipeline.Frame[pipeline.YUV420P, G], error) {
			out := pipeline.NewFrame[pipeline.YUV420P, G]()
			w := in.Width()
			h := in.Height()
			src := in.Data()
			dst := out.Data()

			luma := w * h
			chroma := (w / 2) * (h / 2)
			for y := 0; y < h; y++ {
				row := y * w * 2
				for x := 0; x < w; x++ {
					dst[y*w+x] = src[row+x*2]
				}
				if y%2 != 0 {
					continue
				}
				cRow := (y / 2) * (w / 2)
				for x := 0; x < w/2; x++ {
					dst[luma+cRow+x] = src[row+x*4+1]
					dst[luma+chroma+cRow+x] = src[row+x*4+3]
				}
			}

			out.PTS = in.PTS
			out.DTS = in.DTS
			out.Seq = in.Seq
			out.Keyframe = in.Keyframe
			return out, nil
		})
}
