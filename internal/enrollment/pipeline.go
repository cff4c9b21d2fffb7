// Package enrollment adds people to the set of recognized identities.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/facematch"
	"github.com/kozaktomas/carecam/internal/identity"
	"github.com/kozaktomas/carecam/internal/logger"
	"github.com/kozaktomas/carecam/internal/profile"
)

var (
	ErrNameRequired   = errors.New("name is required")
	ErrNoFaceDetected = errors.New("no face detected")
	ErrEncodingFailed = errors.New("encoding failed")
)

// Commit stages, in the order they run.
const (
	StageUpsert  = "upsert"
	StageSave    = "save"
	StagePhoto   = "photo"
	StageProfile = "profile"
	StagePeople  = "known_people"
)

// StageError names the commit stage that failed. Enroll keeps going after a
// failed stage, so one call can return several of these joined together.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStages lists the stages named by the StageErrors in err.
func FailedStages(err error) []string {
	var stages []string
	var walk func(error)
	walk = func(e error) {
		switch x := e.(type) {
		case nil:
		case *StageError:
			stages = append(stages, x.Stage)
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(x.Unwrap())
		}
	}
	walk(err)
	return stages
}

// Identities is satisfied by *identity.Store.
type Identities interface {
	Upsert(name string, encoding []float32) error
	Save(ctx context.Context) error
	UpsertAndSave(ctx context.Context, name string, encoding []float32) error
}

// ProfileTarget is a profile store written after the identity is committed.
type ProfileTarget struct {
	Stage  string
	Writer profile.Writer
}

type Request struct {
	Name           string
	Relation       string
	Age            string
	MedicalHistory string
	Notes          string
	// Image is the encoded frame, JPEG or PNG.
	Image []byte
}

type Result struct {
	Name      string `json:"name"`
	PhotoPath string `json:"photo_path,omitempty"`
}

type Options struct {
	// KnownFacesDir receives a reference photo per person when set.
	KnownFacesDir string
	Profiles      []ProfileTarget
	Now           func() time.Time
}

type Pipeline struct {
	detector   facematch.Detector
	identities Identities
	opts       Options
	log        *logger.Logger
}

func NewPipeline(detector facematch.Detector, identities Identities, opts Options, log *logger.Logger) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		detector:   detector,
		identities: identities,
		opts:       opts,
		log:        log.With("component", "enrollment"),
	}
}

// Encode detects faces in the full resolution image and returns the encoding
// of the first one.
func (p *Pipeline) Encode(ctx context.Context, img []byte) ([]float32, error) {
	faces, err := p.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	if len(faces) == 0 {
		return nil, ErrNoFaceDetected
	}
	if len(faces[0].Encoding) == 0 {
		return nil, ErrEncodingFailed
	}
	return faces[0].Encoding, nil
}

// Enroll validates the request, then commits the identity, the reference
// photo and the profile. Validation failures change nothing. Commit stages
// are not rolled back; every failed one is reported as a StageError.
func (p *Pipeline) Enroll(ctx context.Context, req Request) (*Result, error) {
	name := facematch.CleanName(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	encoding, err := p.Encode(ctx, req.Image)
	if err != nil {
		return nil, err
	}

	res := &Result{Name: name}
	var failed []error

	if err := p.identities.UpsertAndSave(ctx, name, encoding); err != nil {
		stage := StageUpsert
		if errors.Is(err, identity.ErrSave) {
			stage = StageSave
		}
		failed = append(failed, &StageError{Stage: stage, Err: err})
	}

	if p.opts.KnownFacesDir != "" {
		path, err := p.savePhoto(name, req.Image)
		if err != nil {
			failed = append(failed, &StageError{Stage: StagePhoto, Err: err})
		} else {
			res.PhotoPath = path
		}
	}

	now := p.opts.Now()
	prof := profile.Profile{
		Name:           name,
		Relation:       strings.TrimSpace(req.Relation),
		Age:            strings.TrimSpace(req.Age),
		MedicalHistory: strings.TrimSpace(req.MedicalHistory),
		LastVisit:      now.Format(database.DayLayout),
		Notes:          strings.TrimSpace(req.Notes),
	}
	for _, target := range p.opts.Profiles {
		if err := target.Writer.Upsert(ctx, prof); err != nil {
			failed = append(failed, &StageError{Stage: target.Stage, Err: err})
		}
	}

	if len(failed) > 0 {
		err := errors.Join(failed...)
		p.log.Error("enrollment partially failed", "name", name, "stages", FailedStages(err), "error", err)
		return res, err
	}
	p.log.Info("person enrolled", "name", name)
	return res, nil
}

func (p *Pipeline) savePhoto(name string, img []byte) (string, error) {
	if err := os.MkdirAll(p.opts.KnownFacesDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.opts.KnownFacesDir, photoFileName(name))
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// photoFileName keeps names usable as file names without leaving the directory.
func photoFileName(name string) string {
	r := strings.NewReplacer("/", "_", `\`, "_", "..", "_")
	return r.Replace(name) + ".jpg"
}
