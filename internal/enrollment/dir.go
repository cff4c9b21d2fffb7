package enrollment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirReport summarizes a bulk enrollment.
type DirReport struct {
	Enrolled []string
	Skipped  map[string]string // file -> reason
}

// DirImage is one candidate photo of a person.
type DirImage struct {
	Person string
	Path   string
}

// ScanDir lists the photos of a known faces directory. Both layouts are
// accepted: <dir>/<person>/*.jpg and <dir>/<person>.jpg.
func ScanDir(dir string) ([]DirImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var images []DirImage
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			if isImage(e.Name()) {
				images = append(images, DirImage{
					Person: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
					Path:   path,
				})
			}
			continue
		}
		files, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, f := range files {
			if !f.IsDir() && isImage(f.Name()) {
				images = append(images, DirImage{Person: e.Name(), Path: filepath.Join(path, f.Name())})
			}
		}
	}
	sort.SliceStable(images, func(i, j int) bool {
		if images[i].Person != images[j].Person {
			return images[i].Person < images[j].Person
		}
		return images[i].Path < images[j].Path
	})
	return images, nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// EnrollDir encodes the photos found by ScanDir. Each person keeps the
// encoding of their first usable photo. The collection is saved once at the
// end; profiles are not touched. progress, if set, is called after each file.
func (p *Pipeline) EnrollDir(ctx context.Context, images []DirImage, progress func()) (*DirReport, error) {
	report := &DirReport{Skipped: make(map[string]string)}
	done := make(map[string]bool)

	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if progress != nil {
			progress()
		}
		if done[img.Person] {
			continue
		}

		data, err := os.ReadFile(img.Path)
		if err != nil {
			report.Skipped[img.Path] = err.Error()
			continue
		}
		encoding, err := p.Encode(ctx, data)
		if err != nil {
			report.Skipped[img.Path] = err.Error()
			continue
		}
		if err := p.identities.Upsert(img.Person, encoding); err != nil {
			report.Skipped[img.Path] = err.Error()
			continue
		}
		done[img.Person] = true
		report.Enrolled = append(report.Enrolled, img.Person)
	}

	if len(report.Enrolled) == 0 {
		return report, nil
	}
	if err := p.identities.Save(ctx); err != nil {
		return report, &StageError{Stage: StageSave, Err: err}
	}
	p.log.Info("bulk enrollment finished", "enrolled", len(report.Enrolled), "skipped", len(report.Skipped))
	return report, nil
}
