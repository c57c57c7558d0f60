package processing

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/sight-analyzer/pkg/types"
)

// FaceOverlayOptions selects what DrawFaceDetection paints
type FaceOverlayOptions struct {
	DrawBoundingBox bool
	DrawLandmarks   bool
	DrawLabels      bool
	BoxColor        color.NRGBA
	LandmarkColor   color.NRGBA
	LabelColor      color.NRGBA
}

// DefaultFaceOverlayOptions draws everything in the app's blue/white palette
func DefaultFaceOverlayOptions() FaceOverlayOptions {
	return FaceOverlayOptions{
		DrawBoundingBox: true,
		DrawLandmarks:   true,
		DrawLabels:      true,
		BoxColor:        color.NRGBA{0x00, 0x56, 0xb3, 255},
		LandmarkColor:   color.NRGBA{255, 255, 255, 178},
		LabelColor:      color.NRGBA{255, 255, 255, 255},
	}
}

var labelBackground = color.NRGBA{0x00, 0x56, 0xb3, 178}

// DrawFaceDetection returns a copy of img with face boxes, "Face N" labels and landmark dots
func (p *Processor) DrawFaceDetection(img image.Image, faces []types.FaceDetectionResult, opts FaceOverlayOptions) image.Image {
	nrgba := imaging.Clone(img)

	for i, face := range faces {
		box := face.BoundingBox.Box()
		if opts.DrawBoundingBox && box.W > 0 && box.H > 0 {
			drawBox(nrgba, box, opts.BoxColor, 3)
			if opts.DrawLabels {
				drawLabel(nrgba, box, fmt.Sprintf("Face %d", i+1), opts.LabelColor)
			}
		}
		if opts.DrawLandmarks {
			for _, pt := range face.Landmarks {
				drawDot(nrgba, int(pt.X+0.5), int(pt.Y+0.5), 1, opts.LandmarkColor)
			}
		}
	}
	return nrgba
}

// DrawObjectDetection returns a copy of img with one labeled box per object ("class NN%")
func (p *Processor) DrawObjectDetection(img image.Image, objects []types.DetectedObject) image.Image {
	nrgba := imaging.Clone(img)
	stroke := int(math.Max(2, 0.004*float64(minInt(nrgba.Bounds().Dx(), nrgba.Bounds().Dy()))))

	for _, obj := range objects {
		drawBox(nrgba, obj.BoundingBox, color.NRGBA{0x00, 0x56, 0xb3, 255}, stroke)
		label := fmt.Sprintf("%s %d%%", obj.ClassName, int(math.Floor(obj.Score*100+0.5)))
		drawLabel(nrgba, obj.BoundingBox, label, color.NRGBA{255, 255, 255, 255})
	}
	return nrgba
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// boxToPixels snaps a pixel-space box to integer corners inside a w*h image
func boxToPixels(box types.Box, w, h int) (int, int, int, int) {
	x0 := int(clamp(box.X, 0, float64(w)) + 0.5)
	y0 := int(clamp(box.Y, 0, float64(h)) + 0.5)
	x1 := int(clamp(box.X+box.W, 0, float64(w)) + 0.5)
	y1 := int(clamp(box.Y+box.H, 0, float64(h)) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

func drawBox(img *image.NRGBA, box types.Box, c color.NRGBA, stroke int) {
	x0, y0, x1, y1 := boxToPixels(box, img.Bounds().Dx(), img.Bounds().Dy())
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

// drawLabel paints a 30px band above the box (inside it when the box touches the top edge)
func drawLabel(img *image.NRGBA, box types.Box, text string, c color.NRGBA) {
	x0, y0, x1, _ := boxToPixels(box, img.Bounds().Dx(), img.Bounds().Dy())
	top := y0 - 30
	if top < 0 {
		top = y0
	}
	for y := top; y < top+30; y++ {
		blendHLine(img, y, x0, x1, labelBackground)
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x0+5, top+20),
	}
	d.DrawString(text)
}

func drawDot(img *image.NRGBA, cx, cy, r int, c color.NRGBA) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) > r*r {
				continue
			}
			if image.Pt(x, y).In(img.Bounds()) {
				img.SetNRGBA(x, y, over(img.NRGBAAt(x, y), c))
			}
		}
	}
}

func blendHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	for x := max(x0, 0); x < min(x1, img.Bounds().Dx()); x++ {
		img.SetNRGBA(x, y, over(img.NRGBAAt(x, y), c))
	}
}

// over composites src onto an opaque dst
func over(dst, src color.NRGBA) color.NRGBA {
	a := uint32(src.A)
	mix := func(d, s uint8) uint8 {
		return uint8((uint32(s)*a + uint32(d)*(255-a)) / 255)
	}
	return color.NRGBA{mix(dst.R, src.R), mix(dst.G, src.G), mix(dst.B, src.B), 255}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
