package pipeline

// Pixel is a single YCbCr sample. Raw formats expose bounds-checked
// access to it; compressed formats reject per-pixel access outright.
type Pixel struct {
	Y  uint8
	Cb uint8
	Cr uint8
}

// Format is the compile-time discriminant of a frame's data layout.
// Implementations are stateless marker types: a Frame[F, G] carries F
// in its type, and the pipe operator only connects identical F.
type Format interface {
	// Name returns the canonical format name (e.g. "yuyv422").
	Name() string

	// FrameBytes returns the buffer size for a w×h frame, or 0 when
	// the format has no fixed per-geometry size (compressed formats).
	FrameBytes(w, h int) int

	// Compressed reports whether the format is an encoded bitstream.
	Compressed() bool

	// PixelAt reads the pixel at (x, y). Returns ErrOutOfBounds for
	// coordinates outside w×h and ErrUnsupportedPixelOp for formats
	// without per-pixel access.
	PixelAt(data []byte, w, h, x, y int) (Pixel, error)

	// SetPixelAt writes the pixel at (x, y), same contract as PixelAt.
	SetPixelAt(data []byte, w, h, x, y int, p Pixel) error
}

// Geometry is the compile-time width/height tag of a frame. Two
// geometries that differ only in orientation (640×480 vs 480×640) are
// distinct types and never pipe-compatible.
type Geometry interface {
	// Dims returns width and height in pixels.
	Dims() (w, h int)
}

// Supported geometries. The daemon selects one of these at startup;
// everything downstream is then typed by it.
type (
	// Dim32x32 is a small geometry used by tests and thumbnails.
	Dim32x32 struct{}
	// Dim320x240 is QVGA, the default scale target.
	Dim320x240 struct{}
	// Dim640x480 is VGA.
	Dim640x480 struct{}
	// Dim480x640 is VGA rotated a quarter turn.
	Dim480x640 struct{}
	// Dim1280x720 is 720p.
	Dim1280x720 struct{}
	// Dim1920x1080 is 1080p.
	Dim1920x1080 struct{}
)

// Dims implements Geometry.
func (Dim32x32) Dims() (int, int) { return 32, 32 }

// Dims implements Geometry.
func (Dim320x240) Dims() (int, int) { return 320, 240 }

// Dims implements Geometry.
func (Dim640x480) Dims() (int, int) { return 640, 480 }

// Dims implements Geometry.
func (Dim480x640) Dims() (int, int) { return 480, 640 }

// Dims implements Geometry.
func (Dim1280x720) Dims() (int, int) { return 1280, 720 }

// Dims implements Geometry.
func (Dim1920x1080) Dims() (int, int) { return 1920, 1080 }

// YUYV422 is packed 4:2:2 YCbCr, the common V4L2 webcam format.
// Layout is [Y0 Cb Y1 Cr] with two horizontal pixels sharing chroma.
type YUYV422 struct{}

// Name implements Format.
func (YUYV422) Name() string { return "yuyv422" }

// FrameBytes implements Format.
func (YUYV422) FrameBytes(w, h int) int { return w * h * 2 }

// Compressed implements Format.
func (YUYV422) Compressed() bool { return false }

// PixelAt implements Format.
func (YUYV422) PixelAt(data []byte, w, h, x, y int) (Pixel, error) {
	if err := boundsCheck(x, y, w, h); err != nil {
		return Pixel{}, err
	}
	// Chroma lives on the even pixel of each horizontal pair.
	base := (y*w + x) * 2
	pair := ((y*w + x) &^ 1) * 2
	return Pixel{Y: data[base], Cb: data[pair+1], Cr: data[pair+3]}, nil
}

// SetPixelAt implements Format.
func (YUYV422) SetPixelAt(data []byte, w, h, x, y int, p Pixel) error {
	if err := boundsCheck(x, y, w, h); err != nil {
		return err
	}
	base := (y*w + x) * 2
	pair := ((y*w + x) &^ 1) * 2
	data[base] = p.Y
	data[pair+1] = p.Cb
	data[pair+3] = p.Cr
	return nil
}

// YUV420P is planar 4:2:0 YCbCr: a full-resolution luma plane followed
// by quarter-resolution Cb and Cr planes.
type YUV420P struct{}

// Name implements Format.
func (YUV420P) Name() string { return "yuv420p" }

// FrameBytes implements Format.
func (YUV420P) FrameBytes(w, h int) int { return w*h + 2*((w/2)*(h/2)) }

// Compressed implements Format.
func (YUV420P) Compressed() bool { return false }

// PixelAt implements Format.
func (YUV420P) PixelAt(data []byte, w, h, x, y int) (Pixel, error) {
	if err := boundsCheck(x, y, w, h); err != nil {
		return Pixel{}, err
	}
	luma := w * h
	chroma := (w / 2) * (h / 2)
	c := (y/2)*(w/2) + x/2
	return Pixel{Y: data[y*w+x], Cb: data[luma+c], Cr: data[luma+chroma+c]}, nil
}

// SetPixelAt implements Format.
func (YUV420P) SetPixelAt(data []byte, w, h, x, y int, p Pixel) error {
	if err := boundsCheck(x, y, w, h); err != nil {
		return err
	}
	luma := w * h
	chroma := (w / 2) * (h / 2)
	c := (y/2)*(w/2) + x/2
	data[y*w+x] = p.Y
	data[luma+c] = p.Cb
	data[luma+chroma+c] = p.Cr
	return nil
}

// H264 is an encoded H.264 access unit in Annex B byte-stream form.
type H264 struct{}

// Name implements Format.
func (H264) Name() string { return "h264" }

// FrameBytes implements Format.
func (H264) FrameBytes(int, int) int { return 0 }

// Compressed implements Format.
func (H264) Compressed() bool { return true }

// PixelAt implements Format. H.264 frames have no per-pixel access.
func (H264) PixelAt([]byte, int, int, int, int) (Pixel, error) {
	return Pixel{}, ErrUnsupportedPixelOp
}

// SetPixelAt implements Format.
func (H264) SetPixelAt([]byte, int, int, int, int, Pixel) error {
	return ErrUnsupportedPixelOp
}

// MJPEG is a single JPEG-compressed image per frame.
type MJPEG struct{}

// Name implements Format.
func (MJPEG) Name() string { return "mjpeg" }

// FrameBytes implements Format.
func (MJPEG) FrameBytes(int, int) int { return 0 }

// Compressed implements Format.
func (MJPEG) Compressed() bool { return true }

// PixelAt implements Format.
func (MJPEG) PixelAt([]byte, int, int, int, int) (Pixel, error) {
	return Pixel{}, ErrUnsupportedPixelOp
}

// SetPixelAt implements Format.
func (MJPEG) SetPixelAt([]byte, int, int, int, int, Pixel) error {
	return ErrUnsupportedPixelOp
}
