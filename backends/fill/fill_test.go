package fill

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/wudi/pagetrans/geom"
	"github.com/wudi/pagetrans/stage"
)

func page() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 200, G: 100, B: 50, A: 255}}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(10, 10, 20, 20), image.Black, image.Point{}, draw.Src)
	return img
}

func TestFillUsesSurroundingColor(t *testing.T) {
	p, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	mask := image.NewGray(image.Rect(0, 0, 40, 40))
	draw.Draw(mask, image.Rect(10, 10, 20, 20), image.White, image.Point{}, draw.Src)

	res, err := p.Run(context.Background(), stage.InpaintInput{
		Image: page(),
		Mask:  mask,
		Boxes: []geom.Rect{{X: 10, Y: 10, Width: 10, Height: 10}},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := color.RGBAModel.Convert(res.Image.At(15, 15)).(color.RGBA)
	if got != (color.RGBA{R: 200, G: 100, B: 50, A: 255}) {
		t.Fatalf("pixel = %+v", got)
	}
}

func TestFillWithoutBoxesUsesMaskBounds(t *testing.T) {
	p, _ := New(map[string]string{"ring": "2"})
	mask := image.NewGray(image.Rect(0, 0, 20, 20))
	draw.Draw(mask, image.Rect(5, 5, 10, 10), image.White, image.Point{}, draw.Src)

	res, err := p.Run(context.Background(), stage.InpaintInput{Image: page(), Mask: mask})
	if err != nil {
		t.Fatal(err)
	}
	if c := color.RGBAModel.Convert(res.Image.At(15, 15)).(color.RGBA); c.R != 200 {
		t.Fatalf("scaled mask not applied: %+v", c)
	}
}

func TestNoImage(t *testing.T) {
	p, _ := New(nil)
	if _, err := p.Run(context.Background(), stage.InpaintInput{}); err != stage.ErrNoImage {
		t.Fatalf("got %v", err)
	}
	if _, err := New(map[string]string{"ring": "0"}); err == nil {
		t.Fatal("expected invalid ring error")
	}
}
