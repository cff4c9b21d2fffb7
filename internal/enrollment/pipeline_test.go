package enrollment

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/carecam/internal/database/mock"
	"github.com/kozaktomas/carecam/internal/facematch"
	"github.com/kozaktomas/carecam/internal/identity"
	"github.com/kozaktomas/carecam/internal/profile"
)

type fakeDetector struct {
	faces []facematch.Face
	err   error
	calls int
}

func (d *fakeDetector) Detect(context.Context, []byte) ([]facematch.Face, error) {
	d.calls++
	return d.faces, d.err
}

type memPersister struct {
	saved   []identity.Entry
	saveErr error
}

func (m *memPersister) Load(context.Context) ([]identity.Entry, error) { return m.saved, nil }

func (m *memPersister) Save(_ context.Context, entries []identity.Entry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append([]identity.Entry(nil), entries...)
	return nil
}

type failingWriter struct{}

func (failingWriter) Upsert(context.Context, profile.Profile) error {
	return errors.New("disk full")
}

type fixture struct {
	detector  *fakeDetector
	persister *memPersister
	store     *identity.Store
	csv       *profile.CSVSource
	people    *mock.MockPeopleStore
	dir       string
	pipeline  *Pipeline
}

func newFixture(t *testing.T, faces ...facematch.Face) *fixture {
	t.Helper()
	f := &fixture{
		detector:  &fakeDetector{faces: faces},
		persister: &memPersister{},
		people:    mock.NewMockPeopleStore(),
		dir:       t.TempDir(),
	}
	f.store = identity.NewStore(f.persister, nil)
	f.csv = profile.NewCSVSource(filepath.Join(f.dir, "people_data.csv"), nil)
	f.pipeline = NewPipeline(f.detector, f.store, Options{
		KnownFacesDir: filepath.Join(f.dir, "known_faces"),
		Profiles: []ProfileTarget{
			{Stage: StageProfile, Writer: f.csv},
			{Stage: StagePeople, Writer: profile.NewDBSource(f.people)},
		},
		Now: func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local) },
	}, nil)
	return f
}

func face(enc ...float32) facematch.Face {
	return facematch.Face{Box: facematch.BBox{X2: 10, Y2: 10}, Encoding: enc}
}

func TestEnroll(t *testing.T) {
	f := newFixture(t, face(0.1, 0.2), face(0.9, 0.9))

	res, err := f.pipeline.Enroll(context.Background(), Request{
		Name:     "  Alice ",
		Relation: "daughter",
		Age:      "40",
		Image:    []byte("jpeg"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.Name)

	entries, _ := f.store.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, []float32{0.1, 0.2}, entries[0].Encoding, "first face wins")
	assert.Len(t, f.persister.saved, 1)

	p, err := f.csv.Lookup(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "daughter", p.Relation)
	assert.Equal(t, "2024-03-01", p.LastVisit)

	person, err := f.people.GetPerson(context.Background(), "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "daughter", person.Relation)

	photo, err := os.ReadFile(res.PhotoPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), photo)
	assert.Equal(t, "Alice.jpg", filepath.Base(res.PhotoPath))
}

func TestEnroll_ValidationChangesNothing(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		faces   []facematch.Face
		detErr  error
		wantErr error
	}{
		{"empty name", Request{Name: "   "}, []facematch.Face{face(1)}, nil, ErrNameRequired},
		{"no face", Request{Name: "Bob"}, nil, nil, ErrNoFaceDetected},
		{"face without encoding", Request{Name: "Bob"}, []facematch.Face{face()}, nil, ErrEncodingFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.faces...)
			f.detector.err = tt.detErr

			res, err := f.pipeline.Enroll(context.Background(), tt.req)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Zero(t, f.store.Len())
			assert.Empty(t, f.persister.saved)
			assert.Empty(t, f.csv.All())
			people, _ := f.people.ListPeople(context.Background())
			assert.Empty(t, people)
			_, statErr := os.Stat(filepath.Join(f.dir, "known_faces"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestEnroll_NoFaceMessage(t *testing.T) {
	assert.Equal(t, "no face detected", ErrNoFaceDetected.Error())
	assert.Equal(t, "encoding failed", ErrEncodingFailed.Error())
}

func TestEnroll_ReEnrollmentReplaces(t *testing.T) {
	f := newFixture(t, face(0.1, 0.1))
	ctx := context.Background()
	_, err := f.pipeline.Enroll(ctx, Request{Name: "Alice", Relation: "friend", Image: []byte("a")})
	require.NoError(t, err)

	f.detector.faces = []facematch.Face{face(0.7, 0.7)}
	_, err = f.pipeline.Enroll(ctx, Request{Name: "Alice", Relation: "daughter", Image: []byte("b")})
	require.NoError(t, err)

	entries, _ := f.store.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, []float32{0.7, 0.7}, entries[0].Encoding)
	assert.Len(t, f.csv.All(), 1)
	p, err := f.csv.Lookup(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "daughter", p.Relation)
}

func TestEnroll_PartialFailureNamesStages(t *testing.T) {
	f := newFixture(t, face(0.3, 0.3))
	f.persister.saveErr = errors.New("read-only fs")
	f.pipeline.opts.Profiles[0].Writer = failingWriter{}

	res, err := f.pipeline.Enroll(context.Background(), Request{Name: "Carol", Image: []byte("c")})

	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{StageSave, StageProfile}, FailedStages(err))
	assert.ErrorIs(t, err, identity.ErrSave)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSave, stageErr.Stage)

	assert.Equal(t, 1, f.store.Len(), "no rollback: the identity stays in memory")
	person, err := f.people.GetPerson(context.Background(), "Carol")
	require.NoError(t, err, "later stages still run")
	assert.Equal(t, "Unknown", person.Relation)
}

func TestEnroll_DetectorError(t *testing.T) {
	f := newFixture(t)
	f.detector.err = errors.New("connection refused")

	_, err := f.pipeline.Enroll(context.Background(), Request{Name: "Dan", Image: []byte("d")})

	require.Error(t, err)
	assert.Empty(t, FailedStages(err))
	assert.Zero(t, f.store.Len())
}

func TestPhotoFileName(t *testing.T) {
	assert.Equal(t, "Alice.jpg", photoFileName("Alice"))
	assert.Equal(t, "__etc_passwd.jpg", photoFileName("../etc/passwd"))
}

type stillFrame struct{ img image.Image }

func (s stillFrame) LatestFrame() (image.Image, bool) { return s.img, s.img != nil }

func TestCapturer(t *testing.T) {
	f := newFixture(t, face(0.5, 0.5))
	dir := filepath.Join(f.dir, "captures")
	c := NewCapturer(stillFrame{img: image.NewRGBA(image.Rect(0, 0, 8, 8))}, dir)
	ctx := context.Background()

	path, err := c.Capture(ctx)
	require.NoError(t, err)
	assert.Regexp(t, `capture_[0-9a-f-]{36}\.jpg$`, path)

	res, err := c.EnrollCapture(ctx, f.pipeline, path, Request{Name: "Eve"})
	require.NoError(t, err)
	assert.Equal(t, "Eve", res.Name)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "capture is consumed")
	_, err = os.Stat(res.PhotoPath)
	assert.NoError(t, err)
}

func TestCapturer_NoFrame(t *testing.T) {
	c := NewCapturer(stillFrame{}, t.TempDir())

	_, err := c.Capture(context.Background())

	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestCapturer_ResolveStaysInside(t *testing.T) {
	dir := t.TempDir()
	c := NewCapturer(stillFrame{}, filepath.Join(dir, "captures"))
	outside := filepath.Join(dir, "secret.jpg")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	_, err := c.Resolve(outside)
	assert.ErrorIs(t, err, ErrImageNotFound)

	_, err = c.Resolve(filepath.Join(dir, "captures", "..", "secret.jpg"))
	assert.ErrorIs(t, err, ErrImageNotFound)

	_, err = c.Resolve(filepath.Join(dir, "captures", "missing.jpg"))
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestEnrollDir(t *testing.T) {
	f := newFixture(t, face(0.2, 0.4))
	root := filepath.Join(f.dir, "faces")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Alice"), 0o755))
	for _, p := range []string{"Alice/1.jpg", "Alice/2.png", "Bob.jpg", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, p), []byte("img"), 0o644))
	}

	images, err := ScanDir(root)
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, "Alice", images[0].Person)
	assert.Equal(t, "Bob", images[2].Person)

	ticks := 0
	report, err := f.pipeline.EnrollDir(context.Background(), images, func() { ticks++ })
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice", "Bob"}, report.Enrolled)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 3, ticks)
	assert.Equal(t, 2, f.detector.calls, "a person's later photos are not encoded")
	assert.Len(t, f.persister.saved, 2)
}

func TestEnrollDir_SkipsPhotosWithoutFaces(t *testing.T) {
	f := newFixture(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Ghost.jpg"), []byte("img"), 0o644))
	images, err := ScanDir(root)
	require.NoError(t, err)

	report, err := f.pipeline.EnrollDir(context.Background(), images, nil)

	require.NoError(t, err)
	assert.Empty(t, report.Enrolled)
	assert.Contains(t, report.Skipped[filepath.Join(root, "Ghost.jpg")], "no face detected")
	assert.Empty(t, f.persister.saved)
}
