package convert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/framewire/internal/pipeline"
)

func TestYUYVToYUV420P(t *testing.T) {
	stage := YUYVToYUV420P[pipeline.Dim32x32](nil)
	defer stage.Close()

	in := pipeline.NewFrame[pipeline.YUYV422, pipeline.Dim32x32]()
	defer in.Release()
	want := pipeline.Pixel{Y: 180, Cb: 90, Cr: 200}
	// Paint an even-row 2x2 block so chroma survives subsampling.
	for _, pt := range [][2]int{{10, 10}, {11, 10}, {10, 11}, {11, 11}} {
		require.NoError(t, in.SetPixelAt(pt[0], pt[1], want))
	}
	in.Seq = 3
	in.PTS = 9000

	stage.Push(in)
	out, st := stage.Get()
	require.Equal(t, pipeline.StatusReady, st)

	got, err := out.PixelAt(10, 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(3), out.Seq, "sequence carries through conversion")
	assert.Equal(t, int64(9000), out.PTS, "timestamps carry through conversion")
	assert.Equal(t, "yuv420p", out.FormatName())
}

func TestScale_DownToQuarter(t *testing.T) {
	stage := Scale[pipeline.Dim640x480, pipeline.Dim320x240](nil)
	defer stage.Close()

	in := pipeline.NewFrame[pipeline.YUV420P, pipeline.Dim640x480]()
	defer in.Release()
	// Uniform mid-grey scales to mid-grey regardless of kernel.
	for i := range in.Data()[:640*480] {
		in.Data()[i] = 128
	}

	stage.Push(in)
	out, st := stage.Get()
	require.Equal(t, pipeline.StatusReady, st)
	assert.Equal(t, 320, out.Width())
	assert.Equal(t, 240, out.Height())

	got, err := out.PixelAt(160, 120)
	require.NoError(t, err)
	assert.Equal(t, uint8(128), got.Y)
}

func TestOverlay_DrawsRectangle(t *testing.T) {
	green := pipeline.Pixel{Y: 149, Cb: 43, Cr: 21}
	stage := Overlay[pipeline.YUYV422, pipeline.Dim32x32](nil, green)
	defer stage.Close()

	in := pipeline.NewFrame[pipeline.YUYV422, pipeline.Dim32x32]()
	defer in.Release()

	stage.Push(in)
	out, st := stage.Get()
	require.Equal(t, pipeline.StatusReady, st)

	onEdge, err := out.PixelAt(16, 8) // top edge at h/4
	require.NoError(t, err)
	assert.Equal(t, green.Y, onEdge.Y)

	inside, err := out.PixelAt(16, 16)
	require.NoError(t, err)
	assert.NotEqual(t, green.Y, inside.Y)

	// The input frame is untouched: overlays clone before drawing.
	orig, err := in.PixelAt(16, 8)
	require.NoError(t, err)
	assert.Zero(t, orig.Y)
}

func TestOverlay_CompressedFormatIsFault(t *testing.T) {
	stage := Overlay[pipeline.H264, pipeline.Dim640x480](nil, pipeline.Pixel{})
	defer stage.Close()

	fr := pipeline.NewBitstreamFrame[pipeline.H264, pipeline.Dim640x480](make([]byte, 16))
	defer fr.Release()
	stage.Push(fr)

	require.Error(t, stage.Err())
	assert.True(t, errors.Is(stage.Err(), pipeline.ErrUnsupportedPixelOp))
}
