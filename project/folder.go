package project

import (
	"context"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/crypto/blake2b"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/wudi/pagetrans/document"
)

// ImageExts are the file extensions accepted by ImportFolder.
var ImageExts = []string{".bmp", ".jpg", ".jpeg", ".png", ".webp"}

// IsImage reports whether name has an accepted image extension.
func IsImage(name string) bool {
	return slices.Contains(ImageExts, strings.ToLower(filepath.Ext(name)))
}

// ImportFolder creates a project with one empty page per image in dir, in
// natural name order. The project file path is FilePath(dir); nothing is
// written.
func ImportFolder(dir string) (*document.Project, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &PersistenceError{Op: "import", Path: dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.SortFunc(names, naturalCompare)

	proj := document.NewProject(FilePath(dir))
	for _, name := range names {
		ref, err := describe(filepath.Join(dir, name))
		if err != nil {
			return nil, &PersistenceError{Op: "import", Path: dir, Err: err}
		}
		ref.Path = name
		proj.AddPage(document.NewPage(name, ref))
	}
	proj.MarkSaved()
	return proj, nil
}

func describe(path string) (document.ImageRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return document.ImageRef{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return document.ImageRef{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return document.ImageRef{}, err
	}
	sum, err := fingerprint(f)
	if err != nil {
		return document.ImageRef{}, err
	}
	return document.ImageRef{Width: cfg.Width, Height: cfg.Height, Fingerprint: sum}, nil
}

// Fingerprint returns the BLAKE2b-256 digest of the file at path, hex
// encoded.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return fingerprint(f)
}

func fingerprint(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// naturalCompare orders names so that digit runs compare by value:
// "2.png" sorts before "10.png".
func naturalCompare(a, b string) int {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		switch {
		case da && db:
			na, ra := digitRun(a)
			nb, rb := digitRun(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) - len(tb)
			}
			if c := strings.Compare(ta, tb); c != 0 {
				return c
			}
			if len(na) != len(nb) {
				return len(nb) - len(na)
			}
			a, b = ra, rb
		default:
			ca, cb := strings.ToLower(a[:1]), strings.ToLower(b[:1])
			if c := strings.Compare(ca, cb); c != 0 {
				return c
			}
			a, b = a[1:], b[1:]
		}
	}
	return len(a) - len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func digitRun(s string) (run, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// FileImages loads page images from disk. Relative image paths resolve
// against Dir.
type FileImages struct {
	Dir string
}

func (f FileImages) Image(ctx context.Context, p *document.Page) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return loadImage(imagePath(f.Dir, p.Image.Path))
}
