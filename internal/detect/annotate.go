package detect

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const boxBorder = 3

var palette = []color.RGBA{
	{230, 57, 70, 255},
	{42, 157, 143, 255},
	{69, 123, 157, 255},
	{244, 162, 97, 255},
	{142, 68, 173, 255},
	{38, 70, 83, 255},
}

// Annotate draws every detection box and label onto a copy of the image and
// writes it to outPath in the source encoding. The file appears via
// temp-write plus rename, so a failure leaves nothing at outPath.
func Annotate(imageData []byte, detections []Detection, outPath string) error {
	src, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return fmt.Errorf("%w: decoding image: %v", ErrDetectionFailed, err)
	}

	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, d := range detections {
		if len(d.Box) < 4 {
			continue
		}
		c := labelColor(d.Label)
		x1, y1 := int(d.Box[0]), int(d.Box[1])
		x2, y2 := int(d.Box[2]), int(d.Box[3])
		drawBox(canvas, x1, y1, x2, y2, c)
		drawLabel(canvas, x1+boxBorder+1, y1+basicfont.Face7x13.Height+1, fmt.Sprintf("%s %.2f", d.Label, d.Score), c)
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".annotate-*")
	if err != nil {
		return fmt.Errorf("creating annotated image: %w", err)
	}

	switch format {
	case "png":
		err = png.Encode(tmp, canvas)
	default:
		err = jpeg.Encode(tmp, canvas, &jpeg.Options{Quality: 90})
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("encoding annotated image: %w", err)
	}

	if err := os.Rename(tmp.Name(), outPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing annotated image: %w", err)
	}
	return nil
}

func drawBox(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	bounds := img.Bounds()
	for t := 0; t < boxBorder; t++ {
		for x := x1; x <= x2; x++ {
			setPixel(img, bounds, x, y1+t, c)
			setPixel(img, bounds, x, y2-t, c)
		}
		for y := y1; y <= y2; y++ {
			setPixel(img, bounds, x1+t, y, c)
			setPixel(img, bounds, x2-t, y, c)
		}
	}
}

func setPixel(img *image.RGBA, bounds image.Rectangle, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(bounds) {
		img.SetRGBA(x, y, c)
	}
}

func drawLabel(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func labelColor(label string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(label))
	return palette[h.Sum32()%uint32(len(palette))]
}
