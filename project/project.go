// Package project saves and loads projects, imports image folders and
// serves page images from disk.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/keyword"
	"github.com/wudi/pagetrans/stage"
	"github.com/wudi/pagetrans/styles"
)

const (
	formatVersion = 1

	maskDir      = "mask"
	inpaintedDir = "inpainted"
)

var (
	ErrNoPath             = errors.New("project has no file path")
	ErrUnsupportedVersion = errors.New("unsupported project file version")
)

// PersistenceError reports a failed save or load.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string { return e.Op + " " + e.Path + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// FilePath returns the project file path for an image directory.
func FilePath(dir string) string {
	return filepath.Join(dir, "pagetrans_"+filepath.Base(filepath.Clean(dir))+".json")
}

// Extras is state saved alongside the pages. Styles is set only when style
// presets are kept per project.
type Extras struct {
	Styles   *styles.File   `json:"styles,omitempty"`
	Keywords *keyword.Lists `json:"keywords,omitempty"`
}

type fileJSON struct {
	Version int        `json:"version"`
	ID      string     `json:"id"`
	Pages   []pageJSON `json:"pages"`
	Extras
}

type pageJSON struct {
	document.PageData
	Mask      string `json:"mask,omitempty"`
	Inpainted string `json:"inpainted,omitempty"`
}

// Save writes the project file and its mask and inpainted images next to
// it. The project file is replaced atomically and the project is marked
// saved on success.
func Save(p *document.Project, extras Extras) error {
	if p.Path == "" {
		return &PersistenceError{Op: "save", Path: p.Path, Err: ErrNoPath}
	}
	dir := filepath.Dir(p.Path)
	f := fileJSON{Version: formatVersion, ID: p.ID, Extras: extras}
	for _, pg := range p.Pages() {
		pj := pageJSON{PageData: pg.Data()}
		var err error
		if pj.Mask, err = saveImage(dir, maskDir, pj.Name, pg.Mask()); err != nil {
			return &PersistenceError{Op: "save", Path: p.Path, Err: err}
		}
		if pj.Inpainted, err = saveImage(dir, inpaintedDir, pj.Name, pg.Inpainted()); err != nil {
			return &PersistenceError{Op: "save", Path: p.Path, Err: err}
		}
		f.Pages = append(f.Pages, pj)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Path: p.Path, Err: err}
	}
	if err := writeAtomic(p.Path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return &PersistenceError{Op: "save", Path: p.Path, Err: err}
	}
	p.MarkSaved()
	return nil
}

// saveImage writes img as sub/name.png below dir and returns the relative
// path. A nil image removes any stale file.
func saveImage(dir, sub, name string, img image.Image) (string, error) {
	rel := filepath.Join(sub, name+".png")
	abs := filepath.Join(dir, rel)
	if isNil(img) {
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := writeAtomic(abs, func(w io.Writer) error { return png.Encode(w, img) }); err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func isNil(img image.Image) bool {
	if img == nil {
		return true
	}
	g, ok := img.(*image.Gray)
	return ok && g == nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pagetrans-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Loaded is the result of Load.
type Loaded struct {
	Project *document.Project
	Extras
	// Changed lists pages whose source image no longer matches the stored
	// fingerprint; MissingImages lists pages whose image file is gone.
	Changed       []string
	MissingImages []string
}

// Load reads a project file. On failure nothing is returned, so the
// caller's current project stays untouched.
func Load(path string) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: path, Err: err}
	}
	var f fileJSON
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &PersistenceError{Op: "load", Path: path, Err: err}
	}
	if f.Version < 1 || f.Version > formatVersion {
		return nil, &PersistenceError{Op: "load", Path: path, Err: fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)}
	}

	dir := filepath.Dir(path)
	proj := document.NewProject(path)
	if f.ID != "" {
		proj.ID = f.ID
	}
	out := &Loaded{Project: proj, Extras: f.Extras}
	for _, pj := range f.Pages {
		for i := range pj.Progress {
			if pj.Progress[i].State == stage.Running {
				pj.Progress[i] = stage.Status{}
			}
		}
		pg := document.NewPageFromData(pj.PageData)
		if pj.Mask != "" {
			img, err := loadImage(filepath.Join(dir, filepath.FromSlash(pj.Mask)))
			if err != nil {
				return nil, &PersistenceError{Op: "load", Path: path, Err: err}
			}
			pg.SetMask(toGray(img))
		}
		if pj.Inpainted != "" {
			img, err := loadImage(filepath.Join(dir, filepath.FromSlash(pj.Inpainted)))
			if err != nil {
				return nil, &PersistenceError{Op: "load", Path: path, Err: err}
			}
			pg.SetInpainted(img)
		}
		proj.AddPage(pg)

		switch sum, err := Fingerprint(imagePath(dir, pj.Image.Path)); {
		case errors.Is(err, os.ErrNotExist):
			out.MissingImages = append(out.MissingImages, pj.Name)
		case err != nil:
			return nil, &PersistenceError{Op: "load", Path: path, Err: err}
		case pj.Image.Fingerprint != "" && sum != pj.Image.Fingerprint:
			out.Changed = append(out.Changed, pj.Name)
		}
	}
	proj.MarkSaved()
	return out, nil
}

func imagePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, filepath.FromSlash(p))
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	g := image.NewGray(img.Bounds())
	draw.Draw(g, g.Bounds(), img, img.Bounds().Min, draw.Src)
	return g
}
