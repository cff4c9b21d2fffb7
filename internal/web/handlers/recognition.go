package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kozaktomas/carecam/internal/constants"
	"github.com/kozaktomas/carecam/internal/logger"
	"github.com/kozaktomas/carecam/internal/recognition"
)

// RecognitionView is the read side of *recognition.Service.
type RecognitionView interface {
	Current() recognition.Identity
	Status() recognition.Status
	Frames() *recognition.Broadcaster
}

// RecognitionHandler exposes the live identity and the annotated video feed.
type RecognitionHandler struct {
	svc RecognitionView
	log *logger.Logger
}

func NewRecognitionHandler(svc RecognitionView, log *logger.Logger) *RecognitionHandler {
	return &RecognitionHandler{svc: svc, log: log}
}

type identityResponse struct {
	Name      string    `json:"name"`
	Known     bool      `json:"known"`
	Distance  float64   `json:"distance,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DetectedName returns the identity published by the last recognition cycle.
func (h *RecognitionHandler) DetectedName(w http.ResponseWriter, r *http.Request) {
	cur := h.svc.Current()
	respondJSON(w, http.StatusOK, identityResponse{
		Name:      cur.Name,
		Known:     cur.Known(),
		Distance:  cur.Distance,
		UpdatedAt: cur.UpdatedAt,
	})
}

// Status reports whether the recognition loop is still running.
func (h *RecognitionHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status()
	respondJSON(w, http.StatusOK, map[string]any{
		"recognition": st.State(),
		"cycles":      st.Cycles,
		"error":       st.Error,
	})
}

// VideoFeed streams annotated frames as multipart/x-mixed-replace until the
// client goes away.
func (h *RecognitionHandler) VideoFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	// The server write timeout would cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+constants.MJPEGBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	frames := h.svc.Frames()
	var seq uint64
	for {
		frame, next, err := frames.Next(r.Context(), seq)
		if err != nil {
			return
		}
		seq = next
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
			constants.MJPEGBoundary, len(frame)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			h.log.Debug("video feed client gone", "error", err)
			return
		}
		flusher.Flush()
	}
}
