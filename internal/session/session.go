// Package session runs one learner's attempt at one lesson: step sequencing,
// answer evaluation, the elapsed timer, autosave and completion.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/accessibility"
	"github.com/p-n-ai/pai-lesson/internal/evaluation"
	"github.com/p-n-ai/pai-lesson/internal/events"
	"github.com/p-n-ai/pai-lesson/internal/lesson"
	"github.com/p-n-ai/pai-lesson/internal/presentation"
	"github.com/p-n-ai/pai-lesson/internal/progress"
)

// State is the sequencer state.
type State string

const (
	StateIdle       State = "idle"
	StateInStep     State = "in_step"
	StateCompleting State = "completing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Config holds the collaborators and timing of a session.
type Config struct {
	Evaluator        *evaluation.Evaluator
	Sink             progress.Sink
	Publisher        events.Publisher
	Telemetry        EventLogger
	Media            MediaController
	Notifier         Notifier
	Microphone       Microphone
	Clock            Clock
	AutosaveInterval time.Duration // default: 30s
	TickInterval     time.Duration // default: 1s
}

func (c Config) withDefaults() Config {
	if c.Evaluator == nil {
		c.Evaluator = evaluation.NewEvaluator(nil)
	}
	if c.Sink == nil {
		c.Sink = progress.NewMemorySink()
	}
	if c.Publisher == nil {
		c.Publisher = events.NopPublisher{}
	}
	if c.Telemetry == nil {
		c.Telemetry = discardEvents{}
	}
	if c.Media == nil {
		c.Media = nopMedia{}
	}
	if c.Notifier == nil {
		c.Notifier = nopNotifier{}
	}
	if c.Microphone == nil {
		c.Microphone = NewClientMicrophone()
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = 30 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// Completion is what survives a finished lesson.
type Completion struct {
	Score             int               `json:"score"`
	DurationSeconds   int               `json:"durationSeconds"`
	SectionsCompleted int               `json:"sectionsCompleted"`
	Passed            bool              `json:"passed"`
	Message           string            `json:"message"`
	NewAchievements   []json.RawMessage `json:"newAchievements,omitempty"`
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	ID               string                             `json:"id"`
	LessonID         string                             `json:"lessonId"`
	LessonTitle      string                             `json:"lessonTitle"`
	LearnerID        string                             `json:"learnerId,omitempty"`
	State            State                              `json:"state"`
	CurrentStepIndex int                                `json:"currentStepIndex"`
	TotalSteps       int                                `json:"totalSteps"`
	ElapsedSeconds   int                                `json:"elapsedSeconds"`
	RunningScore     int                                `json:"runningScore"`
	ScorableSteps    int                                `json:"scorableSteps"`
	Answers          map[string]string                  `json:"answers"`
	Feedback         map[string]evaluation.Feedback     `json:"feedback"`
	Speech           map[string]evaluation.SpeechResult `json:"speech,omitempty"`
	Modes            []accessibility.Mode               `json:"modes"`
	Sub              presentation.SubState              `json:"subState"`
	Media            *presentation.MediaState           `json:"media,omitempty"`
	Recording        bool                               `json:"recording"`
	Status           string                             `json:"status,omitempty"`
	Message          string                             `json:"message,omitempty"`
	LastSavedAt      *time.Time                         `json:"lastSavedAt,omitempty"`
	Completion       *Completion                        `json:"completion,omitempty"`
	LoadError        string                             `json:"loadError,omitempty"`
}

// Session is one learner attempt at one lesson. All methods are safe for
// concurrent use; calls to external collaborators happen outside the state lock.
type Session struct {
	id        string
	learnerID string
	prefs     *accessibility.Preferences
	cfg       Config
	recorder  *Recorder
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	saveMu     sync.Mutex // serializes autosaves
	completeMu sync.Mutex // one completion attempt at a time

	mu           sync.Mutex
	state        State
	lesson       *lesson.Lesson
	modes        accessibility.EffectiveModes
	notice       *accessibility.Notice
	index        int
	stepGen      uint64 // bumped on every step entry
	sub          presentation.SubState
	media        *presentation.MediaState
	answers      map[string]string
	feedback     map[string]evaluation.Feedback
	speech       map[string]evaluation.SpeechResult
	elapsed      time.Duration
	sinceSave    time.Duration
	timerStopped bool
	status       string
	message      string
	lastSavedAt  time.Time
	completion   *Completion
	loadErr      error
	closed       bool
}

// New creates an idle session. prefs may be nil.
func New(id, learnerID string, prefs *accessibility.Preferences, cfg Config) *Session {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		learnerID: learnerID,
		prefs:     prefs,
		cfg:       cfg,
		recorder:  NewRecorder(cfg.Microphone),
		logger:    slog.Default().With("session_id", id),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		answers:   make(map[string]string),
		feedback:  make(map[string]evaluation.Feedback),
		speech:    make(map[string]evaluation.SpeechResult),
	}
}

func (s *Session) ID() string { return s.id }

// Lesson returns the loaded lesson, or nil before Load succeeds.
func (s *Session) Lesson() *lesson.Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lesson
}

// State returns the sequencer state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load fetches the lesson and enters the first step. Any fetch or structure
// failure is fatal for the session.
func (s *Session) Load(ctx context.Context, src lesson.Source, lessonID string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("load lesson %s: session is %s", lessonID, s.state)
	}
	s.mu.Unlock()

	l, err := src.Lesson(ctx, lessonID)
	if err == nil && (l == nil || len(l.Steps) == 0) {
		err = fmt.Errorf("lesson %s: %w", lessonID, lesson.ErrMalformed)
	}
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.loadErr = err
		s.mu.Unlock()
		s.logger.Error("lesson load failed", "lesson_id", lessonID, "error", err)
		return fmt.Errorf("%w: %w", ErrSessionFailed, err)
	}

	modes := accessibility.Resolve(l.AccessibilityTags, s.prefs)

	s.mu.Lock()
	s.lesson = l
	s.modes = modes
	if n, ok := accessibility.NoticeFor(modes); ok {
		s.notice = &n
	}
	s.state = StateInStep
	s.index = 0
	s.enterStepLocked()
	s.mu.Unlock()

	s.logger = s.logger.With("lesson_id", l.ID)
	s.logger.Info("lesson session started",
		"steps", len(l.Steps),
		"modes", fmt.Sprint(modes.List()),
	)
	s.telemetry(EventSessionStarted, map[string]any{"steps": len(l.Steps), "modes": modes.List()})
	s.pushPlan()
	return nil
}

// TakeNotice returns the lesson-triggered mode notice once.
func (s *Session) TakeNotice() (accessibility.Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice == nil {
		return accessibility.Notice{}, false
	}
	n := *s.notice
	s.notice = nil
	return n, true
}

// Advance moves to the next step. Advancing from the last step starts
// completion; advancing again while completion is pending retries it.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateInStep:
	case StateCompleting:
		s.mu.Unlock()
		_, err := s.Complete(ctx)
		return err
	default:
		err := s.stateErrLocked()
		s.mu.Unlock()
		return err
	}

	if s.index+1 < len(s.lesson.Steps) {
		outgoing := s.lesson.Steps[s.index]
		s.index++
		s.enterStepLocked()
		incoming := s.lesson.Steps[s.index]
		s.mu.Unlock()
		s.afterStepChange(ctx, outgoing, incoming)
		return nil
	}

	outgoing := s.lesson.Steps[s.index]
	s.state = StateCompleting
	s.timerStopped = true
	s.mu.Unlock()

	s.releaseStep(ctx, outgoing)
	s.notify(UpdateState, s.Snapshot())
	_, err := s.Complete(ctx)
	return err
}

// Retreat moves back one step. Answers and feedback are kept.
func (s *Session) Retreat(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateInStep {
		err := s.stateErrLocked()
		s.mu.Unlock()
		return err
	}
	if s.index == 0 {
		s.mu.Unlock()
		return ErrNoPreviousStep
	}
	outgoing := s.lesson.Steps[s.index]
	s.index--
	s.enterStepLocked()
	incoming := s.lesson.Steps[s.index]
	s.mu.Unlock()

	s.afterStepChange(ctx, outgoing, incoming)
	return nil
}

// enterStepLocked resets the per-step state for s.index.
func (s *Session) enterStepLocked() {
	s.stepGen++
	s.sub = presentation.SubState{}
	s.media = nil
	s.status = ""
	s.message = ""
	if s.lesson.Steps[s.index].Type.Media() {
		ms := presentation.NewMediaState(s.modes.Has(accessibility.ModeADHD))
		s.media = &ms
	}
}

func (s *Session) afterStepChange(ctx context.Context, outgoing, incoming lesson.Step) {
	s.releaseStep(ctx, outgoing)
	s.telemetry(EventStepChanged, map[string]any{"from": outgoing.ID, "to": incoming.ID})
	s.autosaveAsync()
	s.pushPlan()
}

// releaseStep frees the devices held by a step being left.
func (s *Session) releaseStep(ctx context.Context, step lesson.Step) {
	if step.Type.Media() {
		if err := s.cfg.Media.Stop(ctx, s.id, step.ID); err != nil {
			s.logger.Warn("stop media failed", "step_id", step.ID, "error", err)
		}
	}
	if s.recorder.Release() {
		s.logger.Debug("microphone released on step change", "step_id", step.ID)
	}
}

func (s *Session) stateErrLocked() error {
	switch s.state {
	case StateCompleting:
		return ErrCompletionPending
	case StateCompleted:
		return ErrAlreadyCompleted
	case StateFailed:
		return ErrSessionFailed
	}
	return ErrNotActive
}

// stepLocked finds a step of the loaded lesson while the session is in a step.
func (s *Session) stepLocked(stepID string) (lesson.Step, int, error) {
	if s.state != StateInStep {
		return lesson.Step{}, -1, s.stateErrLocked()
	}
	step, i, ok := s.lesson.StepByID(stepID)
	if !ok {
		return lesson.Step{}, -1, fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}
	return step, i, nil
}

// SubmitAnswer grades an exercise answer. The latest attempt replaces any
// earlier feedback for the step.
func (s *Session) SubmitAnswer(ctx context.Context, stepID, answer string) (evaluation.Feedback, error) {
	s.mu.Lock()
	step, _, err := s.stepLocked(stepID)
	if err != nil {
		s.mu.Unlock()
		return evaluation.Feedback{}, err
	}
	fb, err := s.cfg.Evaluator.Exercise(step, answer)
	if err != nil {
		s.mu.Unlock()
		return evaluation.Feedback{}, err
	}
	s.answers[stepID] = answer
	s.feedback[stepID] = fb
	score := s.runningScoreLocked()
	s.mu.Unlock()

	s.logger.Debug("answer evaluated", "step_id", stepID, "correct", fb.Correct, "running_score", score)
	s.telemetry(EventAnswerSubmitted, map[string]any{"step_id": stepID, "correct": fb.Correct})
	s.notify(UpdateState, s.Snapshot())
	return fb, nil
}

// SubmitSpeech sends a recording for pronunciation scoring. A service failure
// records nothing and returns a TransientError.
func (s *Session) SubmitSpeech(ctx context.Context, stepID string, audio []byte) (evaluation.Feedback, error) {
	s.mu.Lock()
	step, _, err := s.stepLocked(stepID)
	if err != nil {
		s.mu.Unlock()
		return evaluation.Feedback{}, err
	}
	lang := presentation.SpeechLanguage(step, s.prefs)
	s.status = MsgProcessing
	s.message = ""
	s.mu.Unlock()

	// The capture device never outlives an evaluation.
	s.recorder.Release()

	fb, res, err := s.cfg.Evaluator.Speech(ctx, step, audio, lang)
	if errors.Is(err, evaluation.ErrNotGradable) {
		s.setStatus("", "")
		return evaluation.Feedback{}, err
	}
	if err != nil {
		s.logger.Warn("speech evaluation failed", "step_id", stepID, "error", err)
		s.telemetry(EventSpeechFailed, map[string]any{
			"step_id":     stepID,
			"audio_bytes": len(audio),
			"audio_hash":  AudioFingerprint(audio),
		})
		s.setStatus("", MsgSpeechFailed)
		s.notify(UpdateMessage, map[string]string{"message": MsgSpeechFailed})
		return evaluation.Feedback{}, &TransientError{Op: "evaluate speech", Message: MsgSpeechFailed, Err: err}
	}

	s.mu.Lock()
	if s.state != StateInStep {
		stateErr := s.stateErrLocked()
		s.status = ""
		s.mu.Unlock()
		s.logger.Info("speech result dropped, lesson no longer in progress", "step_id", stepID, "score", res.Score)
		return evaluation.Feedback{}, fmt.Errorf("%w: %w", ErrNotActive, stateErr)
	}
	s.answers[stepID] = res.SpokenText
	s.feedback[stepID] = fb
	s.speech[stepID] = res
	s.status = ""
	s.message = ""
	s.mu.Unlock()

	s.telemetry(EventSpeechEvaluated, map[string]any{
		"step_id":    stepID,
		"score":      res.Score,
		"band":       string(evaluation.Band(res.Score)),
		"correct":    fb.Correct,
		"audio_hash": AudioFingerprint(audio),
	})
	s.notify(UpdateState, s.Snapshot())
	return fb, nil
}

// StartRecording acquires the microphone for the current speech step.
func (s *Session) StartRecording(ctx context.Context, stepID string) error {
	s.mu.Lock()
	step, i, err := s.stepLocked(stepID)
	if err == nil && i != s.index {
		err = fmt.Errorf("%w: %s", ErrWrongStep, stepID)
	}
	if err == nil && step.Type != lesson.StepSpeech {
		err = fmt.Errorf("%w: step %s is %s", evaluation.ErrNotGradable, stepID, step.Type)
	}
	gen := s.stepGen
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.recorder.Start(ctx, stepID); err != nil {
		s.logger.Warn("microphone unavailable", "step_id", stepID, "error", err)
		if errors.Is(err, ErrPermissionDenied) {
			s.telemetry(EventMicrophoneDenied, map[string]any{"step_id": stepID})
		}
		s.setStatus("", MsgMicrophoneDenied)
		return &TransientError{Op: "start recording", Message: MsgMicrophoneDenied, Err: err}
	}

	// The learner may have left the step while the device was opening.
	s.mu.Lock()
	stale := s.state != StateInStep || s.stepGen != gen
	if !stale {
		s.status = MsgListening
		s.message = ""
	}
	s.mu.Unlock()
	if stale {
		s.recorder.Release()
		s.logger.Debug("microphone released, step changed while opening", "step_id", stepID)
		return fmt.Errorf("%w: %s", ErrWrongStep, stepID)
	}
	return nil
}

// WriteAudio appends a captured audio frame to the active recording.
func (s *Session) WriteAudio(frame []byte) error {
	return s.recorder.Write(frame)
}

// StopRecording releases the microphone and evaluates what was captured.
func (s *Session) StopRecording(ctx context.Context) (evaluation.Feedback, error) {
	stepID, audio, err := s.recorder.Stop()
	if err != nil {
		s.setStatus("", "")
		return evaluation.Feedback{}, err
	}
	return s.SubmitSpeech(ctx, stepID, audio)
}

// Recording reports whether the microphone is held.
func (s *Session) Recording() bool {
	_, ok := s.recorder.Active()
	return ok
}

// NextSentence shows the following sentence of the current text step.
func (s *Session) NextSentence() (int, error) {
	return s.moveSentence(func(i int) int { return i + 1 })
}

// PrevSentence shows the preceding sentence of the current text step.
func (s *Session) PrevSentence() (int, error) {
	return s.moveSentence(func(i int) int { return i - 1 })
}

// GoToSentence jumps to a sentence, clamped to the valid range.
func (s *Session) GoToSentence(i int) (int, error) {
	return s.moveSentence(func(int) int { return i })
}

func (s *Session) moveSentence(next func(int) int) (int, error) {
	s.mu.Lock()
	if s.state != StateInStep {
		err := s.stateErrLocked()
		s.mu.Unlock()
		return 0, err
	}
	step := s.lesson.Steps[s.index]
	n := 0
	if step.Type == lesson.StepText {
		n = len(presentation.SplitSentences(step.Body()))
	}
	s.sub.SentenceIndex = presentation.ClampSentence(next(s.sub.SentenceIndex), n)
	i := s.sub.SentenceIndex
	s.mu.Unlock()

	s.pushPlan()
	return i, nil
}

// SetHighlight moves the read-along highlight. A nil offset clears it.
func (s *Session) SetHighlight(offset *int) error {
	s.mu.Lock()
	if s.state != StateInStep {
		err := s.stateErrLocked()
		s.mu.Unlock()
		return err
	}
	if offset != nil {
		v := *offset
		offset = &v
	}
	s.sub.HighlightOffset = offset
	s.mu.Unlock()

	s.pushPlan()
	return nil
}

// HandleMediaEvent applies a player or capture callback. Events for a step
// other than the current one are stale and ignored.
func (s *Session) HandleMediaEvent(ctx context.Context, ev MediaEvent) (*presentation.MediaState, error) {
	if ev.Kind == MediaMicPermission {
		s.recorder.SetPermission(ev.Granted)
		if !ev.Granted {
			s.recorder.Release()
			s.telemetry(EventMicrophoneDenied, map[string]any{"step_id": ev.StepID})
			s.setStatus("", MsgMicrophoneDenied)
		} else {
			s.setStatus("", "")
		}
		return nil, nil
	}

	s.mu.Lock()
	if s.state != StateInStep {
		err := s.stateErrLocked()
		s.mu.Unlock()
		return nil, err
	}
	step := s.lesson.Steps[s.index]
	if ev.StepID != step.ID || s.media == nil {
		s.mu.Unlock()
		s.logger.Debug("stale media event ignored", "step_id", ev.StepID, "kind", ev.Kind)
		return nil, nil
	}

	m := s.media
	switch ev.Kind {
	case MediaStarted:
		m.Playing, m.Ended, m.Error = true, false, ""
	case MediaPaused:
		m.Playing = false
	case MediaEnded:
		m.Playing, m.Ended = false, true
		if m.Duration > 0 {
			m.Position = m.Duration
		}
	case MediaError:
		m.Playing = false
		m.Error = ev.Message
		if m.Error == "" {
			m.Error = "media could not be played"
		}
	case MediaProgress:
		if ev.Duration > 0 {
			m.Duration = ev.Duration
		}
		m.Position = ev.Position
	case MediaSpeed:
		m.NextSpeed()
	case MediaSeek:
		delta := ev.Delta
		if delta == 0 {
			delta = presentation.SeekStep
		}
		m.Seek(delta)
	case MediaMute:
		m.ToggleMute()
	case MediaTranscript:
		m.ToggleTranscript()
	default:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownMediaEvent, ev.Kind)
	}
	out := *m
	s.mu.Unlock()

	if ev.Kind != MediaProgress {
		s.telemetry(EventMediaEvent, map[string]any{"step_id": step.ID, "kind": ev.Kind})
	}
	if ev.Kind == MediaError {
		s.logger.Warn("media playback failed", "step_id", step.ID, "error", out.Error)
	}
	return &out, nil
}

// Tick advances the elapsed counter by one tick and fires the interval
// autosave when due. It reports false once the timer has stopped.
func (s *Session) Tick() bool {
	s.mu.Lock()
	if s.timerStopped || s.state == StateFailed || s.closed {
		s.mu.Unlock()
		return false
	}
	if s.state != StateInStep {
		s.mu.Unlock()
		return true
	}
	s.elapsed += s.cfg.TickInterval
	s.sinceSave += s.cfg.TickInterval
	due := s.sinceSave >= s.cfg.AutosaveInterval
	elapsed := s.elapsedSecondsLocked()
	s.mu.Unlock()

	s.notify(UpdateTick, map[string]any{
		"elapsedSeconds": elapsed,
		"clock":          presentation.FormatClock(elapsed),
	})
	if due {
		s.autosaveAsync()
	}
	return true
}

// Run drives Tick from the session clock until ctx ends or the timer stops.
func (s *Session) Run(ctx context.Context) {
	t := s.cfg.Clock.NewTicker(s.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-t.C():
			if !s.Tick() {
				return
			}
		}
	}
}

// Autosave persists a progress snapshot. Calls are serialized and each one
// reads the state only once its turn comes, so a later save never loses to an
// earlier one.
func (s *Session) Autosave(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.lesson == nil {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.sinceSave = 0
	rec := progress.ProgressRecord{
		SessionID:        s.id,
		LessonID:         s.lesson.ID,
		LearnerID:        s.learnerID,
		CurrentStepIndex: s.index,
		TotalSteps:       len(s.lesson.Steps),
		ElapsedSeconds:   s.elapsedSecondsLocked(),
		Score:            s.runningScoreLocked(),
		Answers:          copyMap(s.answers),
	}
	s.mu.Unlock()

	if err := s.cfg.Sink.SaveProgress(ctx, rec); err != nil {
		s.logger.Warn("autosave failed",
			"step_index", rec.CurrentStepIndex,
			"error", err,
		)
		s.telemetry(EventAutosaveFailed, map[string]any{"step_index": rec.CurrentStepIndex})
		return &TransientError{Op: "autosave", Err: fmt.Errorf("%w: %w", ErrAutosaveFailed, err)}
	}

	s.mu.Lock()
	s.lastSavedAt = s.cfg.Clock.Now()
	s.mu.Unlock()
	s.logger.Debug("progress saved", "step_index", rec.CurrentStepIndex, "elapsed_seconds", rec.ElapsedSeconds)
	return nil
}

func (s *Session) autosaveAsync() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		_ = s.Autosave(s.ctx)
	}()
}

// Flush waits for background autosaves to settle.
func (s *Session) Flush() {
	s.wg.Wait()
}

// Complete submits the completion record. It saves progress once more first,
// so the progress and completion records agree on the step count. A failed
// submission keeps the session in Completing for a retry.
func (s *Session) Complete(ctx context.Context) (Completion, error) {
	s.completeMu.Lock()
	defer s.completeMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateCompleting:
	case StateCompleted:
		c := *s.completion
		s.mu.Unlock()
		return c, nil
	default:
		s.mu.Unlock()
		return Completion{}, ErrNotActive
	}
	s.mu.Unlock()

	_ = s.Autosave(ctx)

	s.mu.Lock()
	correct := s.runningScoreLocked()
	scorable := s.lesson.ScorableSteps()
	rec := progress.CompletionRecord{
		SessionID:         s.id,
		LessonID:          s.lesson.ID,
		LearnerID:         s.learnerID,
		Score:             progress.FinalScorePercent(correct, scorable),
		DurationSeconds:   s.elapsedSecondsLocked(),
		SectionsCompleted: len(s.lesson.Steps),
	}
	s.mu.Unlock()

	res, err := s.cfg.Sink.SubmitCompletion(ctx, rec)
	if err != nil {
		s.logger.Error("completion submission failed", "score", rec.Score, "error", err)
		s.telemetry(EventCompletionFailed, map[string]any{"score": rec.Score})
		s.setStatus("", MsgCompletionFailed)
		s.notify(UpdateMessage, map[string]string{"message": MsgCompletionFailed})
		return Completion{}, &TransientError{
			Op:      "complete lesson",
			Message: MsgCompletionFailed,
			Err:     fmt.Errorf("%w: %w", ErrCompletionFailed, err),
		}
	}

	c := Completion{
		Score:             rec.Score,
		DurationSeconds:   rec.DurationSeconds,
		SectionsCompleted: rec.SectionsCompleted,
		Passed:            progress.Passed(rec.Score),
		Message:           progress.CompletionMessage(rec.Score, rec.DurationSeconds),
		NewAchievements:   res.NewAchievements,
	}

	s.mu.Lock()
	s.state = StateCompleted
	s.completion = &c
	s.status = ""
	s.message = ""
	s.mu.Unlock()

	s.logger.Info("lesson completed",
		"score", c.Score,
		"duration_seconds", c.DurationSeconds,
		"sections_completed", c.SectionsCompleted,
	)
	if err := s.cfg.Publisher.PublishCompleted(ctx, events.LessonCompleted{
		SessionID:         s.id,
		LessonID:          rec.LessonID,
		LearnerID:         s.learnerID,
		Score:             c.Score,
		Passed:            c.Passed,
		DurationSeconds:   c.DurationSeconds,
		SectionsCompleted: c.SectionsCompleted,
		OccurredAt:        s.cfg.Clock.Now().UTC(),
	}); err != nil {
		s.logger.Warn("publish completion event failed", "error", err)
	}
	s.telemetry(EventLessonCompleted, map[string]any{"score": c.Score, "passed": c.Passed})
	s.notify(UpdateState, s.Snapshot())
	return c, nil
}

// Plan renders the current step.
func (s *Session) Plan() (presentation.RenderPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lesson == nil {
		return presentation.RenderPlan{}, s.stateErrLocked()
	}
	return s.planLocked(), nil
}

func (s *Session) planLocked() presentation.RenderPlan {
	var media *presentation.MediaState
	if s.media != nil {
		m := *s.media
		media = &m
	}
	return presentation.Plan(s.lesson.Steps[s.index], s.modes, s.sub, presentation.ScheduleInput{
		Steps:                    s.lesson.Steps,
		CurrentIndex:             s.index,
		ElapsedSeconds:           s.elapsedSecondsLocked(),
		EstimatedDurationMinutes: s.lesson.EstimatedDurationMinutes,
		Preferences:              s.prefs,
		Media:                    media,
	})
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	_, recording := s.recorder.Active()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:               s.id,
		LearnerID:        s.learnerID,
		State:            s.state,
		CurrentStepIndex: s.index,
		ElapsedSeconds:   s.elapsedSecondsLocked(),
		RunningScore:     s.runningScoreLocked(),
		Answers:          copyMap(s.answers),
		Feedback:         copyMap(s.feedback),
		Speech:           copyMap(s.speech),
		Modes:            s.modes.List(),
		Sub:              s.sub,
		Recording:        recording,
		Status:           s.status,
		Message:          s.message,
	}
	if s.lesson != nil {
		snap.LessonID = s.lesson.ID
		snap.LessonTitle = s.lesson.Title
		snap.TotalSteps = len(s.lesson.Steps)
		snap.ScorableSteps = s.lesson.ScorableSteps()
	}
	if s.media != nil {
		m := *s.media
		snap.Media = &m
	}
	if !s.lastSavedAt.IsZero() {
		t := s.lastSavedAt
		snap.LastSavedAt = &t
	}
	if s.completion != nil {
		c := *s.completion
		snap.Completion = &c
	}
	if s.loadErr != nil {
		snap.LoadError = s.loadErr.Error()
	}
	return snap
}

// Close stops the timer, releases devices and waits for pending autosaves.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.timerStopped = true
	s.mu.Unlock()

	s.recorder.Release()
	s.cancel()
	s.wg.Wait()
}

// elapsedSecondsLocked returns the whole seconds the timer has run.
func (s *Session) elapsedSecondsLocked() int {
	return int(s.elapsed / time.Second)
}

// runningScoreLocked counts the steps whose latest feedback is correct.
func (s *Session) runningScoreLocked() int {
	n := 0
	for _, fb := range s.feedback {
		if fb.Correct {
			n++
		}
	}
	return n
}

func (s *Session) setStatus(status, message string) {
	s.mu.Lock()
	s.status = status
	s.message = message
	s.mu.Unlock()
}

func (s *Session) pushPlan() {
	s.mu.Lock()
	if s.lesson == nil || s.state != StateInStep {
		s.mu.Unlock()
		return
	}
	p := s.planLocked()
	s.mu.Unlock()
	s.notify(UpdatePlan, p)
}

func (s *Session) notify(kind string, data any) {
	s.cfg.Notifier.Notify(Update{Type: kind, SessionID: s.id, Data: data})
}

func (s *Session) telemetry(eventType string, data map[string]any) {
	s.mu.Lock()
	lessonID := ""
	if s.lesson != nil {
		lessonID = s.lesson.ID
	}
	s.mu.Unlock()

	if err := s.cfg.Telemetry.LogEvent(Event{
		SessionID: s.id,
		LessonID:  lessonID,
		LearnerID: s.learnerID,
		EventType: eventType,
		Data:      data,
		CreatedAt: s.cfg.Clock.Now(),
	}); err != nil {
		s.logger.Warn("failed to log telemetry event", "event_type", eventType, "error", err)
	}
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
