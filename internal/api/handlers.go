package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/accessibility"
	"github.com/p-n-ai/pai-lesson/internal/evaluation"
	"github.com/p-n-ai/pai-lesson/internal/presentation"
	"github.com/p-n-ai/pai-lesson/internal/report"
	"github.com/p-n-ai/pai-lesson/internal/session"
)

const maxBodyBytes = 1 << 20

// sessionView is the response body of every session operation.
type sessionView struct {
	Session  session.Snapshot         `json:"session"`
	Plan     *presentation.RenderPlan `json:"plan,omitempty"`
	Notice   *accessibility.Notice    `json:"notice,omitempty"`
	Feedback *evaluation.Feedback     `json:"feedback,omitempty"`
	Media    *presentation.MediaState `json:"media,omitempty"`
	Complete *session.Completion      `json:"completion,omitempty"`
	Sentence *int                     `json:"sentence,omitempty"`
}

func view(s *session.Session) sessionView {
	v := sessionView{Session: s.Snapshot()}
	if plan, err := s.Plan(); err == nil {
		v.Plan = &plan
	}
	return v
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}

	sess, err := s.manager.Start(r.Context(), req)
	if err != nil {
		slog.Warn("session start failed", "lesson_id", req.LessonID, "error", err)
		writeError(w, err, nil)
		return
	}

	v := view(sess)
	if n, ok := sess.TakeNotice(); ok {
		v.Notice = &n
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view(sess))
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.End(id); err != nil {
		writeError(w, err, nil)
		return
	}
	s.hub.CloseSession(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Advance(r.Context()); err != nil {
		writeError(w, err, sess)
		return
	}
	v := view(sess)
	v.Complete = v.Session.Completion
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleRetreat(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Retreat(r.Context()); err != nil {
		writeError(w, err, sess)
		return
	}
	writeJSON(w, http.StatusOK, view(sess))
}

type answerRequest struct {
	StepID string `json:"stepId" validate:"required"`
	Answer string `json:"answer"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, sess)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), sess)
		return
	}

	fb, err := sess.SubmitAnswer(r.Context(), req.StepID, req.Answer)
	if err != nil {
		writeError(w, err, sess)
		return
	}
	v := view(sess)
	v.Feedback = &fb
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxAudioBytes+maxBodyBytes)
	if err := r.ParseMultipartForm(MaxAudioBytes); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), sess)
		return
	}
	stepID := r.FormValue("stepId")
	if stepID == "" {
		writeError(w, fmt.Errorf("%w: stepId is required", errBadRequest), sess)
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, fmt.Errorf("%w: audio file is required", errBadRequest), sess)
		return
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("%w: reading audio: %v", errBadRequest, err), sess)
		return
	}

	fb, err := sess.SubmitSpeech(r.Context(), stepID, audio)
	if err != nil {
		writeError(w, err, sess)
		return
	}
	v := view(sess)
	v.Feedback = &fb
	writeJSON(w, http.StatusOK, v)
}

type sentenceRequest struct {
	Action string `json:"action" validate:"required,oneof=next prev goto"`
	Index  int    `json:"index"`
}

func (s *Server) handleSentence(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req sentenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, sess)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), sess)
		return
	}

	var (
		idx int
		err error
	)
	switch req.Action {
	case "next":
		idx, err = sess.NextSentence()
	case "prev":
		idx, err = sess.PrevSentence()
	default:
		idx, err = sess.GoToSentence(req.Index)
	}
	if err != nil {
		writeError(w, err, sess)
		return
	}
	v := view(sess)
	v.Sentence = &idx
	writeJSON(w, http.StatusOK, v)
}

type highlightRequest struct {
	Offset *int `json:"offset"`
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req highlightRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, sess)
		return
	}
	if err := sess.SetHighlight(req.Offset); err != nil {
		writeError(w, err, sess)
		return
	}
	writeJSON(w, http.StatusOK, view(sess))
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var ev session.MediaEvent
	if err := decodeJSON(r, &ev); err != nil {
		writeError(w, err, sess)
		return
	}
	if ev.Kind == "" {
		writeError(w, fmt.Errorf("%w: kind is required", errBadRequest), sess)
		return
	}

	state, err := sess.HandleMediaEvent(r.Context(), ev)
	if err != nil {
		writeError(w, err, sess)
		return
	}
	v := view(sess)
	v.Media = state
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	c, err := sess.Complete(r.Context())
	if err != nil {
		writeError(w, err, sess)
		return
	}
	v := view(sess)
	v.Complete = &c
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sum := report.FromSession(sess.Snapshot(), sess.Lesson())
	data, err := report.Workbook(sum)
	if err != nil {
		writeError(w, fmt.Errorf("building report: %w", err), nil)
		return
	}

	name := strings.NewReplacer("/", "-", "\"", "").Replace(sum.LessonID)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "lesson-"+name+".xlsx"))
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}
