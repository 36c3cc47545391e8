package convert

import (
	"log/slog"

	"github.com/jmylchreest/framewire/internal/pipeline"
)

// Overlay returns a stage drawing a rectangle outline onto each frame,
// inset by a quarter of the geometry on every side. The input frame is
// cloned first; pushed frames are sealed and shared, so drawing in
// place would corrupt other consumers.
func Overlay[F pipeline.Format, G pipeline.Geometry](logger *slog.Logger, color pipeline.Pixel) *pipeline.FuncStage[F, G, F, G] {
	return pipeline.NewFuncStage("overlay", logger,
		func(in *pipeline.Frame[F, G]) (*pipeline.Frame[F, G], error) {
			out := in.Clone()
			w := out.Width()
			h := out.Height()

			for x := w / 4; x < w-w/4; x++ {
				if err := out.SetPixelAt(x, h/4, color); err != nil {
					out.Release()
					return nil, err
				}
				if err := out.SetPixelAt(x, h-h/4, color); err != nil {
					out.Release()
					return nil, err
				}
			}
			for y := h / 4; y < h-h/4; y++ {
				if err := out.SetPixelAt(w/4, y, color); err != nil {
					out.Release()
					return nil, err
				}
				if err := out.SetPixelAt(w-w/4, y, color); err != nil {
					out.Release()
					return nil, err
				}
			}
			return out, nil
		})
}
