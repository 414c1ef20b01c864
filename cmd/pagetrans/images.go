package main

import (
	"context"
	"errors"
	"image"

	"github.com/wudi/pagetrans/document"
)

// noImages serves commands that never run a stage.
type noImages struct{}

func (noImages) Image(context.Context, *document.Page) (image.Image, error) {
	return nil, errors.New("images are not loaded by this command")
}
