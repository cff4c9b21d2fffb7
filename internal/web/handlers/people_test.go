package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/carecam/internal/database/mock"
	"github.com/kozaktomas/carecam/internal/enrollment"
	"github.com/kozaktomas/carecam/internal/facematch"
	"github.com/kozaktomas/carecam/internal/identity"
	"github.com/kozaktomas/carecam/internal/profile"
)

type stubDetector struct {
	faces []facematch.Face
	err   error
}

func (d *stubDetector) Detect(context.Context, []byte) ([]facematch.Face, error) {
	return d.faces, d.err
}

type stubFrames struct {
	frame image.Image
}

func (s *stubFrames) LatestFrame() (image.Image, bool) {
	return s.frame, s.frame != nil
}

type peopleFixture struct {
	handler  *PeopleHandler
	people   *mock.MockPeopleStore
	csv      *profile.CSVSource
	store    *identity.Store
	detector *stubDetector
	frames   *stubFrames
	dir      string
}

func newPeopleFixture(t *testing.T, gobPath string) *peopleFixture {
	t.Helper()
	dir := t.TempDir()
	if gobPath == "" {
		gobPath = filepath.Join(dir, "face_encodings.gob")
	}
	f := &peopleFixture{
		people:   mock.NewMockPeopleStore(),
		csv:      profile.NewCSVSource(filepath.Join(dir, "people_data.csv"), nil),
		store:    identity.NewStore(identity.NewFilePersister(gobPath), nil),
		detector: &stubDetector{faces: []facematch.Face{{Box: facematch.BBox{X2: 4, Y2: 4}, Encoding: []float32{0.1, 0.2}}}},
		frames:   &stubFrames{},
		dir:      dir,
	}
	pipeline := enrollment.NewPipeline(f.detector, f.store, enrollment.Options{
		Profiles: []enrollment.ProfileTarget{
			{Stage: enrollment.StageProfile, Writer: f.csv},
			{Stage: enrollment.StagePeople, Writer: profile.NewDBSource(f.people)},
		},
		Now: fixedNow,
	}, nil)
	capturer := enrollment.NewCapturer(f.frames, filepath.Join(dir, "captures"))
	chain := profile.Chain{f.csv, profile.NewDBSource(f.people)}
	f.handler = NewPeopleHandler(chain, f.people, capturer, pipeline, testLogger())
	return f
}

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		img.Set(x, x, color.White)
	}
	return img
}

func (f *peopleFixture) capture(t *testing.T) string {
	t.Helper()
	f.frames.frame = testFrame()
	recorder := httptest.NewRecorder()
	f.handler.Capture(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/capture", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	return result["image_path"]
}

func TestPeopleHandler_GetDetails(t *testing.T) {
	f := newPeopleFixture(t, "")
	if err := f.csv.Upsert(context.Background(), profile.Profile{Name: "Alice", Relation: "daughter", Notes: "Visits on Sundays"}); err != nil {
		t.Fatal(err)
	}
	if err := f.people.RecordVisit(context.Background(), "Bob", "neighbor", testNow); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		body     string
		status   int
		relation string
		errMsg   string
	}{
		{"csv first", `{"name":"alice"}`, http.StatusOK, "daughter", ""},
		{"known_people second", `{"name":"BOB"}`, http.StatusOK, "neighbor", ""},
		{"nobody", `{"name":"Carol"}`, http.StatusNotFound, "", errNoDetails},
		{"missing name", `{}`, http.StatusBadRequest, "", "name is required"},
		{"invalid json", `name=alice`, http.StatusBadRequest, "", errInvalidRequestBody},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			f.handler.GetDetails(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/details", strings.NewReader(tc.body)))

			assertStatusCode(t, recorder, tc.status)
			if tc.errMsg != "" {
				assertJSONError(t, recorder, tc.errMsg)
				return
			}
			var p profile.Profile
			parseJSONResponse(t, recorder, &p)
			if p.Relation != tc.relation {
				t.Errorf("expected relation %q, got %q", tc.relation, p.Relation)
			}
		})
	}
}

func TestPeopleHandler_GetByURL(t *testing.T) {
	f := newPeopleFixture(t, "")
	if err := f.people.RecordVisit(context.Background(), "Bob", "neighbor", testNow); err != nil {
		t.Fatal(err)
	}

	recorder := httptest.NewRecorder()
	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/people/Bob", nil), map[string]string{"name": "Bob"})
	f.handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
}

func TestPeopleHandler_ListAndVisits(t *testing.T) {
	f := newPeopleFixture(t, "")
	ctx := context.Background()
	for i := range 3 {
		if err := f.people.RecordVisit(ctx, "Bob", "neighbor", testNow.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	recorder := httptest.NewRecorder()
	f.handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/people", nil))
	var list struct {
		People []personDTO `json:"people"`
	}
	parseJSONResponse(t, recorder, &list)
	if len(list.People) != 1 || list.People[0].Name != "Bob" {
		t.Fatalf("expected Bob, got %+v", list.People)
	}
	if list.People[0].LastVisit == nil || *list.People[0].LastVisit != "2024-03-04 11:15:00" {
		t.Errorf("expected last visit to be the newest visit, got %v", list.People[0].LastVisit)
	}

	recorder = httptest.NewRecorder()
	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/people/Bob/visits?limit=2", nil), map[string]string{"name": "Bob"})
	f.handler.Visits(recorder, req)
	var visits struct {
		Visits []visitDTO `json:"visits"`
	}
	parseJSONResponse(t, recorder, &visits)
	if len(visits.Visits) != 2 {
		t.Fatalf("expected 2 visits, got %d", len(visits.Visits))
	}
	if visits.Visits[0].VisitDate != "2024-03-04 11:15:00" {
		t.Errorf("expected newest visit first, got %s", visits.Visits[0].VisitDate)
	}

	recorder = httptest.NewRecorder()
	req = requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/people/Bob/visits?limit=zero", nil), map[string]string{"name": "Bob"})
	f.handler.Visits(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestPeopleHandler_CaptureWithoutFrame(t *testing.T) {
	f := newPeopleFixture(t, "")

	recorder := httptest.NewRecorder()
	f.handler.Capture(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/capture", nil))

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
}

func TestPeopleHandler_CaptureThenAdd(t *testing.T) {
	f := newPeopleFixture(t, "")
	path := f.capture(t)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("capture not written: %v", err)
	}

	body := `{"name":"Alice","relation":"daughter","age":"40","image_path":"` + filepath.ToSlash(path) + `"}`
	recorder := httptest.NewRecorder()
	f.handler.AddPerson(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/people", strings.NewReader(body)))

	assertStatusCode(t, recorder, http.StatusCreated)
	if names := f.store.Names(); len(names) != 1 || names[0] != "Alice" {
		t.Errorf("expected Alice enrolled, got %v", names)
	}
	if _, err := f.csv.Lookup(context.Background(), "alice"); err != nil {
		t.Errorf("expected CSV profile: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected capture to be removed, stat err = %v", err)
	}
}

func TestPeopleHandler_AddPersonErrors(t *testing.T) {
	tests := []struct {
		name    string
		faces   []facematch.Face
		body    func(path string) string
		status  int
		message string
	}{
		{
			name:    "missing name",
			body:    func(path string) string { return `{"image_path":"` + path + `"}` },
			status:  http.StatusBadRequest,
			message: "name is required",
		},
		{
			name:    "missing image path",
			body:    func(string) string { return `{"name":"Alice"}` },
			status:  http.StatusBadRequest,
			message: "image_path is required",
		},
		{
			name:    "no face",
			faces:   []facematch.Face{},
			body:    func(path string) string { return `{"name":"Alice","image_path":"` + path + `"}` },
			status:  http.StatusBadRequest,
			message: "no face detected",
		},
		{
			name:    "face without encoding",
			faces:   []facematch.Face{{Box: facematch.BBox{X2: 4, Y2: 4}}},
			body:    func(path string) string { return `{"name":"Alice","image_path":"` + path + `"}` },
			status:  http.StatusBadRequest,
			message: "encoding failed",
		},
		{
			name:    "outside capture dir",
			body:    func(string) string { return `{"name":"Alice","image_path":"/etc/passwd"}` },
			status:  http.StatusNotFound,
			message: "image not found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newPeopleFixture(t, "")
			if tc.faces != nil {
				f.detector.faces = tc.faces
			}
			path := filepath.ToSlash(f.capture(t))

			recorder := httptest.NewRecorder()
			f.handler.AddPerson(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/people", strings.NewReader(tc.body(path))))

			assertStatusCode(t, recorder, tc.status)
			assertJSONError(t, recorder, tc.message)
			if f.store.Len() != 0 {
				t.Errorf("expected no enrollment, store has %d entries", f.store.Len())
			}
		})
	}
}

func TestPeopleHandler_AddPersonPartialFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newPeopleFixture(t, filepath.Join(blocker, "face_encodings.gob"))
	path := filepath.ToSlash(f.capture(t))

	recorder := httptest.NewRecorder()
	body := `{"name":"Alice","image_path":"` + path + `"}`
	f.handler.AddPerson(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/people", strings.NewReader(body)))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	var result struct {
		Error        string   `json:"error"`
		FailedStages []string `json:"failed_stages"`
		Name         string   `json:"name"`
	}
	parseJSONResponse(t, recorder, &result)
	if len(result.FailedStages) != 1 || result.FailedStages[0] != enrollment.StageSave {
		t.Errorf("expected only the save stage to fail, got %v", result.FailedStages)
	}
	if result.Name != "Alice" {
		t.Errorf("expected name in partial failure, got %q", result.Name)
	}
	// Later stages still ran.
	if _, err := f.csv.Lookup(context.Background(), "Alice"); err != nil {
		t.Errorf("expected CSV profile despite failed save: %v", err)
	}
}

func TestPeopleHandler_Upload(t *testing.T) {
	f := newPeopleFixture(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "Bob")
	_ = mw.WriteField("relation", "neighbor")
	part, _ := mw.CreateFormFile("image", "bob.jpg")
	data, err := facematch.EncodeJPEG(testFrame())
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/people/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	recorder := httptest.NewRecorder()
	f.handler.Upload(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	person, err := f.people.GetPerson(context.Background(), "bob")
	if err != nil {
		t.Fatalf("expected known_people row: %v", err)
	}
	if person.Relation != "neighbor" {
		t.Errorf("expected relation neighbor, got %q", person.Relation)
	}
}

func TestPeopleHandler_UploadWithoutImage(t *testing.T) {
	f := newPeopleFixture(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "Bob")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/people/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	recorder := httptest.NewRecorder()
	f.handler.Upload(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "image is required")
}
