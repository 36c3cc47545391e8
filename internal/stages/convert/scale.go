package convert

import (
	"image"
	"log/slog"

	"golang.org/x/image/draw"

	"github.com/jmylchreest/framewire/internal/pipeline"
)

// Scale returns a stage resampling planar 4:2:0 frames from geometry
// GI to geometry GO. Luma and both chroma planes are scaled
// independently as grayscale planes with a bilinear kernel.
func Scale[GI, GO pipeline.Geometry](logger *slog.Logger) *pipeline.FuncStage[pipeline.YUV420P, GI, pipeline.YUV420P, GO] {
	return pipeline.NewFuncStage("scale", logger,
		func(in *pipeline.Frame[pipeline.YUV420P, GI]) (*pipeline.Frame[pipeline.YUV420P, GO], error) {
			out := pipeline.NewFrame[pipeline.YUV420P, GO]()

			sw := in.Width()
			sh := in.Height()
			dw := out.Width()
			dh := out.Height()

			scalePlane(out.Data()[:dw*dh], dw, dh, in.Data()[:sw*sh], sw, sh)

			scs := (sw / 2) * (sh / 2)
			dcs := (dw / 2) * (dh / 2)
			srcCb := in.Data()[sw*sh : sw*sh+scs]
			srcCr := in.Data()[sw*sh+scs:]
			dstCb := out.Data()[dw*dh : dw*dh+dcs]
			dstCr := out.Data()[dw*dh+dcs:]
			scalePlane(dstCb, dw/2, dh/2, srcCb, sw/2, sh/2)
			scalePlane(dstCr, dw/2, dh/2, srcCr, sw/2, sh/2)

			out.PTS = in.PTS
			out.DTS = in.DTS
			out.Seq = in.Seq
			out.Keyframe = in.Keyframe
			return out, nil
		})
}

// scalePlane resamples one plane, treating it as grayscale.
func scalePlane(dst []byte, dw, dh int, src []byte, sw, sh int) {
	srcImg := &image.Gray{Pix: src, Stride: sw, Rect: image.Rect(0, 0, sw, sh)}
	dstImg := &image.Gray{Pix: dst, Stride: dw, Rect: image.Rect(0, 0, dw, dh)}
	draw.BiLinear.Scale(dstImg, dstImg.Rect, srcImg, srcImg.Rect, draw.Src, nil)
}
