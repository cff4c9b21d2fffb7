package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/carecam/internal/constants"
	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/enrollment"
	"github.com/kozaktomas/carecam/internal/logger"
	"github.com/kozaktomas/carecam/internal/profile"
)

const errNoDetails = "No details found!"

// PeopleHandler serves visitor profiles, visit history and enrollment.
type PeopleHandler struct {
	profiles profile.Source
	people   database.PeopleReader
	capturer *enrollment.Capturer
	pipeline *enrollment.Pipeline
	log      *logger.Logger
}

func NewPeopleHandler(profiles profile.Source, people database.PeopleReader, capturer *enrollment.Capturer, pipeline *enrollment.Pipeline, log *logger.Logger) *PeopleHandler {
	return &PeopleHandler{
		profiles: profiles,
		people:   people,
		capturer: capturer,
		pipeline: pipeline,
		log:      log,
	}
}

type personDTO struct {
	Name      string  `json:"name"`
	Relation  string  `json:"relation"`
	LastVisit *string `json:"last_visit,omitempty"`
}

type visitDTO struct {
	PersonName string `json:"person_name"`
	VisitDate  string `json:"visit_date"`
}

type addPersonRequest struct {
	Name           string `json:"name"`
	Relation       string `json:"relation"`
	Age            string `json:"age"`
	MedicalHistory string `json:"medical_history"`
	Notes          string `json:"notes"`
	ImagePath      string `json:"image_path"`
}

func (req addPersonRequest) enrollment() enrollment.Request {
	return enrollment.Request{
		Name:           req.Name,
		Relation:       req.Relation,
		Age:            req.Age,
		MedicalHistory: req.MedicalHistory,
		Notes:          req.Notes,
	}
}

// GetDetails looks a person up by the posted name: the CSV profile table
// first, known_people second.
func (h *PeopleHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	h.details(w, r, req.Name)
}

// Get is the REST form of GetDetails.
func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.details(w, r, chi.URLParam(r, "name"))
}

func (h *PeopleHandler) details(w http.ResponseWriter, r *http.Request, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	p, err := h.profiles.Lookup(r.Context(), name)
	if errors.Is(err, profile.ErrNotFound) {
		respondError(w, http.StatusNotFound, errNoDetails)
		return
	}
	if err != nil {
		h.log.Error("looking up profile", "name", sanitizeForLog(name), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get details")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// List returns every row of known_people.
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	people, err := h.people.ListPeople(r.Context())
	if err != nil {
		h.log.Error("listing people", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list people")
		return
	}
	out := make([]personDTO, 0, len(people))
	for _, p := range people {
		dto := personDTO{Name: p.Name, Relation: p.Relation}
		if p.LastVisit != nil {
			s := database.FormatTime(*p.LastVisit)
			dto.LastVisit = &s
		}
		out = append(out, dto)
	}
	respondJSON(w, http.StatusOK, map[string]any{"people": out})
}

// Visits returns a person's visit history, newest first.
func (h *PeopleHandler) Visits(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	limit := constants.DefaultVisitLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, constants.MaxVisitLimit)
	}
	visits, err := h.people.Visits(r.Context(), name, limit)
	if err != nil {
		h.log.Error("listing visits", "name", sanitizeForLog(name), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list visits")
		return
	}
	out := make([]visitDTO, 0, len(visits))
	for _, v := range visits {
		out = append(out, visitDTO{PersonName: v.PersonName, VisitDate: database.FormatTime(v.VisitDate)})
	}
	respondJSON(w, http.StatusOK, map[string]any{"visits": out})
}

// Capture stores the latest camera frame for a following AddPerson call.
func (h *PeopleHandler) Capture(w http.ResponseWriter, r *http.Request) {
	path, err := h.capturer.Capture(r.Context())
	if errors.Is(err, enrollment.ErrNoFrame) {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.log.Error("capturing frame", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to capture image")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"image_path": path})
}

// AddPerson enrolls a previously captured frame.
func (h *PeopleHandler) AddPerson(w http.ResponseWriter, r *http.Request) {
	var req addPersonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if strings.TrimSpace(req.ImagePath) == "" {
		respondError(w, http.StatusBadRequest, "image_path is required")
		return
	}
	res, err := h.capturer.EnrollCapture(r.Context(), h.pipeline, req.ImagePath, req.enrollment())
	h.respondEnrollment(w, res, err)
}

// Upload enrolls a photo sent as multipart form data in the "image" field,
// with the profile in the remaining form fields.
func (h *PeopleHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	req := addPersonRequest{
		Name:           r.FormValue("name"),
		Relation:       r.FormValue("relation"),
		Age:            r.FormValue("age"),
		MedicalHistory: r.FormValue("medical_history"),
		Notes:          r.FormValue("notes"),
	}.enrollment()
	req.Image = data

	res, err := h.pipeline.Enroll(r.Context(), req)
	h.respondEnrollment(w, res, err)
}

func (h *PeopleHandler) respondEnrollment(w http.ResponseWriter, res *enrollment.Result, err error) {
	if err == nil {
		respondJSON(w, http.StatusCreated, map[string]any{
			"message": "Person added successfully",
			"name":    res.Name,
		})
		return
	}

	switch {
	case errors.Is(err, enrollment.ErrNameRequired),
		errors.Is(err, enrollment.ErrNoFaceDetected),
		errors.Is(err, enrollment.ErrEncodingFailed):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, enrollment.ErrImageNotFound):
		respondError(w, http.StatusNotFound, "image not found")
	default:
		if stages := enrollment.FailedStages(err); len(stages) > 0 {
			body := map[string]any{
				"error":         "enrollment partially failed",
				"failed_stages": stages,
			}
			if res != nil {
				body["name"] = res.Name
			}
			respondJSON(w, http.StatusInternalServerError, body)
			return
		}
		h.log.Error("enrolling person", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to add person")
	}
}
