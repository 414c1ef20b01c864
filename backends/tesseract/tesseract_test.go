//go:build ocr

package tesseract

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os/exec"
	"strings"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pagetrans/geom"
	"github.com/wudi/pagetrans/stage"
)

func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func renderText(text string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 240, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 45),
	}
	d.DrawString(text)
	return img
}

func TestRecognizerRun(t *testing.T) {
	ensureTesseractAvailable(t)
	rec, err := NewRecognizer(map[string]string{"lang": "eng"})
	if err != nil {
		t.Fatal(err)
	}
	img := renderText("Hello Page")
	res, err := rec.Run(context.Background(), stage.RecognizeInput{
		Image: img,
		Boxes: []geom.Quad{geom.QuadFromRect(geom.Rect{X: 0, Y: 20, Width: 240, Height: 40})},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Texts) != 1 || !strings.Contains(strings.ToLower(res.Texts[0]), "hello") {
		t.Fatalf("texts = %q", res.Texts)
	}
}

func TestDetectorRun(t *testing.T) {
	ensureTesseractAvailable(t)
	det, err := NewDetector(map[string]string{"lang": "eng"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := det.Run(context.Background(), stage.DetectInput{Image: renderText("Hello Page")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Regions) == 0 {
		t.Fatal("no regions detected")
	}
	if res.Mask == nil {
		t.Fatal("no mask")
	}
}
