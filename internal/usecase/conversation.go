package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"k8s.io/utils/clock"

	"inclutalk/internal/domain"
	"inclutalk/internal/ports"
)

var errCameraLost = errors.New("camera stopped delivering frames")

// Dependencies groups the capabilities the orchestrator drives.
type Dependencies struct {
	Audio       ports.AudioCapture
	Provider    ports.TranscriptionProvider
	Tracker     ports.HandTracker
	Classifier  ports.SignClassifier
	Synthesizer ports.SpeechSynthesizer
	Player      ports.AudioPlayer
	Lexicon     ports.Lexicon
	Events      ports.EventSink
	Clock       clock.WithDelayedExecution
	Logger      *slog.Logger
}

// Config controls capture, gesture pacing and playback.
type Config struct {
	Capture  CaptureConfig
	Gesture  GestureConfig
	Playback PlaybackConfig
}

// Orchestrator owns one operator/user conversation. Every action and every
// asynchronous capability result is applied on a single event loop, so
// observers always see one consistent state.
//
// Actions return false when they are not valid in the current state and
// leave the state untouched.
type Orchestrator struct {
	loop    *eventLoop
	events  ports.EventSink
	log     *slog.Logger
	speech  *speechCapture
	gesture *gesturePipeline
	voice   *speaker

	turn         domain.ConversationTurn
	capture      domain.CaptureState
	operatorText string
	phrase       []string
	candidate    *domain.Classification
	draft        string
	payload      string
	playback     domain.PlaybackState
	notice       *domain.Notice
	cameraSeq    uint64
	acquiring    bool
	stopAcquire  context.CancelFunc
	closed       bool
}

func NewOrchestrator(deps Dependencies, cfg Config) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	events := deps.Events
	if events == nil {
		events = discardSink{}
	}

	o := &Orchestrator{
		loop:     newEventLoop(0),
		events:   events,
		log:      logger.With("component", "conversation"),
		turn:     domain.TurnOperatorSpeaking,
		capture:  domain.CaptureIdle,
		playback: domain.PlaybackIdle,
	}
	o.speech = newSpeechCapture(deps.Audio, deps.Provider, cfg.Capture, o.loop, o, logger)
	o.gesture = newGesturePipeline(o.loop, deps.Tracker, deps.Classifier, clk, cfg.Gesture, o, logger)
	o.voice = newSpeaker(deps.Synthesizer, deps.Player, deps.Lexicon, cfg.Playback, o.loop, o, logger)
	return o
}

// Start begins a fresh conversation with the operator speaking. Calling it
// on a running conversation resets it.
func (o *Orchestrator) Start() bool {
	return o.apply(func() bool {
		o.teardown()
		o.clearData()
		o.setTurn(domain.TurnOperatorSpeaking, domain.TurnReasonSessionStarted)
		return true
	})
}

// Close releases every device and stops the event loop.
func (o *Orchestrator) Close() {
	o.loop.call(func() {
		if o.closed {
			return
		}
		o.closed = true
		o.teardown()
		o.events.TurnChanged(o.turn, domain.TurnReasonSessionEnded)
	})
	o.loop.stop()
}

// ToggleOperatorCapture starts listening when idle and stops when listening.
// Opening the microphone blocks the caller, never the conversation.
func (o *Orchestrator) ToggleOperatorCapture(ctx context.Context) bool {
	var (
		generation uint64
		starting   bool
	)
	applied := o.apply(func() bool {
		if !o.canToggleCapture() {
			return false
		}
		switch o.capture {
		case domain.CaptureListening:
			if !o.speech.finish() {
				return false
			}
			o.setCapture(domain.CaptureStopping)
		case domain.CaptureIdle:
			generation = o.speech.reserve()
			starting = true
			o.setCapture(domain.CaptureStarting)
		}
		return true
	})
	if !applied || !starting {
		return applied
	}

	opened, err := o.speech.open(ctx)
	delivered := o.loop.call(func() {
		o.captureOpened(generation, opened, err)
	})
	if !delivered && opened != nil {
		go discardCapture(opened)
	}
	return true
}

func (o *Orchestrator) captureOpened(generation uint64, opened *activeCapture, err error) {
	if !o.speech.pending(generation) || o.turn != domain.TurnOperatorSpeaking || o.capture != domain.CaptureStarting {
		if opened != nil {
			go discardCapture(opened)
		}
		return
	}
	if err != nil {
		o.setCapture(domain.CaptureIdle)
		o.fail(captureOpenCode(err), err)
		return
	}
	o.speech.attach(opened)
	o.setCapture(domain.CaptureListening)
}

// ClearOperatorUtterance discards the transcript and any capture in progress.
func (o *Orchestrator) ClearOperatorUtterance() bool {
	return o.apply(func() bool {
		if !o.canClearUtterance() {
			return false
		}
		o.stopCapture()
		o.operatorText = ""
		o.events.OperatorTranscript("", true)
		return true
	})
}

// ConfirmOperatorUtterance hands the turn to the user.
func (o *Orchestrator) ConfirmOperatorUtterance() bool {
	return o.apply(func() bool {
		if !o.canConfirmUtterance() {
			return false
		}
		o.stopCapture()
		o.setTurn(domain.TurnUserChoosingModality, domain.TurnReasonUtteranceConfirmed)
		return true
	})
}

// ChooseSigning enters sign mode and acquires the camera. It reports
// whether the camera was attached; when it cannot be acquired the user is
// returned to the modality choice.
func (o *Orchestrator) ChooseSigning(ctx context.Context) bool {
	var (
		seq        uint64
		acquireCtx context.Context
	)
	applied := o.apply(func() bool {
		if o.turn != domain.TurnUserChoosingModality {
			return false
		}
		o.phrase = nil
		o.candidate = nil
		o.setTurn(domain.TurnUserSigning, domain.TurnReasonSigningChosen)
		o.events.PhraseChanged([]string{})
		seq, acquireCtx = o.beginAcquire(ctx)
		return true
	})
	if !applied {
		return false
	}
	return o.acquireCamera(acquireCtx, seq, true)
}

// ReconnectCamera retries camera acquisition after it was lost while signing.
// The phrase built so far is kept.
func (o *Orchestrator) ReconnectCamera(ctx context.Context) bool {
	var (
		seq        uint64
		acquireCtx context.Context
	)
	applied := o.apply(func() bool {
		if !o.canReconnectCamera() {
			return false
		}
		seq, acquireCtx = o.beginAcquire(ctx)
		return true
	})
	if !applied {
		return false
	}
	return o.acquireCamera(acquireCtx, seq, false)
}

// beginAcquire starts a camera acquisition that releaseCamera can abort.
func (o *Orchestrator) beginAcquire(ctx context.Context) (uint64, context.Context) {
	o.cancelAcquire()
	o.cameraSeq++
	o.acquiring = true
	acquireCtx, cancel := context.WithCancel(ctx)
	o.stopAcquire = cancel
	return o.cameraSeq, acquireCtx
}

func (o *Orchestrator) cancelAcquire() {
	if o.stopAcquire != nil {
		o.stopAcquire()
		o.stopAcquire = nil
	}
}

func (o *Orchestrator) acquireCamera(ctx context.Context, seq uint64, leaveOnFailure bool) bool {
	session, err := o.gesture.open(ctx)

	attached := false
	delivered := o.loop.call(func() {
		if seq != o.cameraSeq || o.turn != domain.TurnUserSigning {
			if session != nil {
				_ = session.Close()
			}
			return
		}
		o.acquiring = false
		o.cancelAcquire()
		if err != nil {
			if leaveOnFailure {
				o.phrase = nil
				o.candidate = nil
				o.setTurn(domain.TurnUserChoosingModality, domain.TurnReasonCameraUnavailable)
			}
			o.fail(cameraOpenCode(err), err)
			return
		}
		o.gesture.attach(session)
		attached = true
	})
	if !delivered && session != nil {
		_ = session.Close()
	}
	return attached
}

// ChooseTyping enters text mode with an empty draft.
func (o *Orchestrator) ChooseTyping() bool {
	return o.apply(func() bool {
		if o.turn != domain.TurnUserChoosingModality {
			return false
		}
		o.draft = ""
		o.setTurn(domain.TurnUserTyping, domain.TurnReasonTypingChosen)
		return true
	})
}

// SetTypedText replaces the text draft.
func (o *Orchestrator) SetTypedText(text string) bool {
	applied := false
	o.loop.call(func() {
		if o.turn != domain.TurnUserTyping {
			return
		}
		o.draft = text
		applied = true
	})
	return applied
}

// AcceptWord appends the classified candidate to the phrase and arms the
// next gesture cycle.
func (o *Orchestrator) AcceptWord() bool {
	return o.apply(func() bool {
		if !o.canDecideCandidate() {
			return false
		}
		o.phrase = append(o.phrase, o.candidate.Label)
		o.candidate = nil
		o.events.PhraseChanged(o.phraseCopy())
		o.gesture.nextCycle()
		return true
	})
}

// RejectWord discards the candidate and arms the next gesture cycle.
func (o *Orchestrator) RejectWord() bool {
	return o.apply(func() bool {
		if !o.canDecideCandidate() {
			return false
		}
		o.candidate = nil
		o.gesture.nextCycle()
		return true
	})
}

// UndoLastWord removes the last phrase word.
func (o *Orchestrator) UndoLastWord() bool {
	return o.apply(func() bool {
		if o.turn != domain.TurnUserSigning || len(o.phrase) == 0 {
			return false
		}
		o.phrase = o.phrase[:len(o.phrase)-1]
		o.events.PhraseChanged(o.phraseCopy())
		return true
	})
}

// ConfirmPhrase speaks the signed phrase.
func (o *Orchestrator) ConfirmPhrase() bool {
	return o.apply(func() bool {
		if o.turn != domain.TurnUserSigning || len(o.phrase) == 0 {
			return false
		}
		o.releaseCamera()
		o.candidate = nil
		o.startPlayback(strings.Join(o.phrase, " "), domain.TurnReasonPhraseConfirmed)
		return true
	})
}

// ConfirmTypedText speaks the typed draft.
func (o *Orchestrator) ConfirmTypedText() bool {
	return o.apply(func() bool {
		if !o.canConfirmText() {
			return false
		}
		o.startPlayback(strings.TrimSpace(o.draft), domain.TurnReasonTextConfirmed)
		return true
	})
}

// RepeatPlayback speaks the payload again. It does nothing while speaking.
func (o *Orchestrator) RepeatPlayback() bool {
	return o.apply(func() bool {
		if !o.canRepeatPlayback() {
			return false
		}
		o.voice.speak(o.payload)
		o.setPlayback(domain.PlaybackSpeaking)
		return true
	})
}

// ContinueConversation starts a new operator turn with every buffer empty.
func (o *Orchestrator) ContinueConversation() bool {
	return o.apply(func() bool {
		if !o.canContinue() {
			return false
		}
		o.voice.stop()
		o.clearData()
		o.setTurn(domain.TurnOperatorSpeaking, domain.TurnReasonConversationContinued)
		return true
	})
}

// BackToModalityChoice leaves sign or text mode without speaking.
func (o *Orchestrator) BackToModalityChoice() bool {
	return o.apply(func() bool {
		switch o.turn {
		case domain.TurnUserSigning:
			o.releaseCamera()
			o.phrase = nil
			o.candidate = nil
			o.events.PhraseChanged([]string{})
		case domain.TurnUserTyping:
			o.draft = ""
		default:
			return false
		}
		o.setTurn(domain.TurnUserChoosingModality, domain.TurnReasonBackToModality)
		return true
	})
}

// DismissNotice hides the current inline error.
func (o *Orchestrator) DismissNotice() bool {
	applied := false
	o.loop.call(func() {
		applied = o.notice != nil
		o.notice = nil
	})
	return applied
}

// Status returns a consistent snapshot of the conversation.
func (o *Orchestrator) Status() domain.ConversationStatus {
	var status domain.ConversationStatus
	o.loop.call(func() {
		status = o.snapshot()
	})
	return status
}

func (o *Orchestrator) CanToggleOperatorCapture() bool  { return o.Status().Actions.ToggleCapture }
func (o *Orchestrator) CanClearOperatorUtterance() bool { return o.Status().Actions.ClearUtterance }
func (o *Orchestrator) CanConfirmOperatorUtterance() bool {
	return o.Status().Actions.ConfirmUtterance
}
func (o *Orchestrator) CanChooseModality() bool       { return o.Status().Actions.ChooseModality }
func (o *Orchestrator) CanAcceptWord() bool           { return o.Status().Actions.AcceptWord }
func (o *Orchestrator) CanUndoLastWord() bool         { return o.Status().Actions.UndoWord }
func (o *Orchestrator) CanConfirmPhrase() bool        { return o.Status().Actions.ConfirmPhrase }
func (o *Orchestrator) CanConfirmTypedText() bool     { return o.Status().Actions.ConfirmText }
func (o *Orchestrator) CanRepeatPlayback() bool       { return o.Status().Actions.RepeatPlayback }
func (o *Orchestrator) CanContinueConversation() bool { return o.Status().Actions.Continue }
func (o *Orchestrator) CanGoBack() bool               { return o.Status().Actions.Back }
func (o *Orchestrator) CanReconnectCamera() bool      { return o.Status().Actions.ReconnectCamera }

// apply runs a guarded action on the loop. An applied action clears the notice.
func (o *Orchestrator) apply(action func() bool) bool {
	applied := false
	o.loop.call(func() {
		if o.closed {
			return
		}
		applied = action()
		if applied {
			o.notice = nil
		}
	})
	return applied
}

func (o *Orchestrator) snapshot() domain.ConversationStatus {
	status := domain.ConversationStatus{
		Turn:         o.turn,
		Capture:      o.capture,
		OperatorText: o.operatorText,
		Phrase:       o.phraseCopy(),
		Draft:        o.draft,
		Payload:      o.payload,
		Playback:     o.playback,
		Gesture:      o.gesture.status(),
		Actions: domain.Actions{
			ToggleCapture:    o.canToggleCapture(),
			ClearUtterance:   o.canClearUtterance(),
			ConfirmUtterance: o.canConfirmUtterance(),
			ChooseModality:   o.turn == domain.TurnUserChoosingModality,
			AcceptWord:       o.canDecideCandidate(),
			RejectWord:       o.canDecideCandidate(),
			UndoWord:         o.turn == domain.TurnUserSigning && len(o.phrase) > 0,
			ConfirmPhrase:    o.turn == domain.TurnUserSigning && len(o.phrase) > 0,
			ConfirmText:      o.canConfirmText(),
			RepeatPlayback:   o.canRepeatPlayback(),
			Continue:         o.canContinue(),
			Back:             o.turn == domain.TurnUserSigning || o.turn == domain.TurnUserTyping,
			ReconnectCamera:  o.canReconnectCamera(),
		},
	}
	if o.candidate != nil {
		candidate := *o.candidate
		status.Candidate = &candidate
	}
	if o.notice != nil {
		notice := *o.notice
		status.Notice = &notice
	}
	return status
}

func (o *Orchestrator) canToggleCapture() bool {
	return o.turn == domain.TurnOperatorSpeaking &&
		(o.capture == domain.CaptureIdle || o.capture == domain.CaptureListening)
}

func (o *Orchestrator) canClearUtterance() bool {
	return o.turn == domain.TurnOperatorSpeaking &&
		(o.operatorText != "" || o.capture != domain.CaptureIdle)
}

func (o *Orchestrator) canConfirmUtterance() bool {
	return o.turn == domain.TurnOperatorSpeaking && strings.TrimSpace(o.operatorText) != ""
}

func (o *Orchestrator) canDecideCandidate() bool {
	return o.turn == domain.TurnUserSigning && o.candidate != nil
}

func (o *Orchestrator) canConfirmText() bool {
	return o.turn == domain.TurnUserTyping && strings.TrimSpace(o.draft) != ""
}

func (o *Orchestrator) canRepeatPlayback() bool {
	return o.turn == domain.TurnPlayback && o.payload != "" && !o.voice.active()
}

func (o *Orchestrator) canContinue() bool {
	return o.turn == domain.TurnPlayback &&
		(o.playback == domain.PlaybackFinished || o.playback == domain.PlaybackFailed)
}

func (o *Orchestrator) canReconnectCamera() bool {
	return o.turn == domain.TurnUserSigning && !o.gesture.active() && !o.acquiring
}

func (o *Orchestrator) startPlayback(payload string, reason domain.TurnReason) {
	o.payload = payload
	o.setTurn(domain.TurnPlayback, reason)
	o.voice.speak(payload)
	o.setPlayback(domain.PlaybackSpeaking)
}

// stopCapture tears the microphone down without waiting for it.
func (o *Orchestrator) stopCapture() {
	o.speech.abort()
	o.setCapture(domain.CaptureIdle)
}

func (o *Orchestrator) releaseCamera() {
	o.cameraSeq++
	o.acquiring = false
	o.cancelAcquire()
	o.gesture.release()
}

func (o *Orchestrator) teardown() {
	o.stopCapture()
	o.releaseCamera()
	o.voice.stop()
}

func (o *Orchestrator) clearData() {
	o.operatorText = ""
	o.phrase = nil
	o.candidate = nil
	o.draft = ""
	o.payload = ""
	o.playback = domain.PlaybackIdle
	o.notice = nil
}

func (o *Orchestrator) setTurn(turn domain.ConversationTurn, reason domain.TurnReason) {
	o.turn = turn
	o.log.Info("turn changed", "turn", turn, "reason", reason)
	o.events.TurnChanged(turn, reason)
}

func (o *Orchestrator) setCapture(state domain.CaptureState) {
	if o.capture == state {
		return
	}
	o.capture = state
	o.events.CaptureChanged(state)
}

func (o *Orchestrator) setPlayback(state domain.PlaybackState) {
	o.playback = state
	o.events.PlaybackChanged(state, o.payload)
}

func (o *Orchestrator) fail(code domain.ErrorCode, err error) {
	detail := string(code)
	if err != nil {
		detail = err.Error()
	}
	o.notice = &domain.Notice{Code: code, Message: detail}
	o.log.Warn("session error", "code", code, "error", err)
	o.events.SessionError(code, detail)
}

func (o *Orchestrator) phraseCopy() []string {
	out := make([]string, len(o.phrase))
	copy(out, o.phrase)
	return out
}

func (o *Orchestrator) transcriptUpdated(text string, final bool) {
	if o.turn != domain.TurnOperatorSpeaking {
		return
	}
	o.operatorText = text
	o.events.OperatorTranscript(text, final)
}

func (o *Orchestrator) captureFailed(code domain.ErrorCode, err error) {
	o.setCapture(domain.CaptureIdle)
	o.fail(code, err)
}

func (o *Orchestrator) captureEnded() {
	o.setCapture(domain.CaptureIdle)
}

func (o *Orchestrator) gestureChanged(status domain.GestureStatus) {
	o.events.GestureChanged(status)
}

func (o *Orchestrator) gestureClassified(result domain.Classification) {
	if o.turn != domain.TurnUserSigning {
		return
	}
	o.candidate = &result
}

func (o *Orchestrator) gestureFailed(err error) {
	if o.turn != domain.TurnUserSigning {
		return
	}
	o.fail(domain.ErrorCodeClassification, err)
}

func (o *Orchestrator) cameraLost(err error) {
	if o.turn != domain.TurnUserSigning {
		return
	}
	o.candidate = nil
	o.fail(domain.ErrorCodeCameraLost, err)
}

func (o *Orchestrator) playbackFinished(err error) {
	if o.turn != domain.TurnPlayback {
		return
	}
	if err != nil {
		o.setPlayback(domain.PlaybackFailed)
		o.fail(domain.ErrorCodePlayback, err)
		return
	}
	o.setPlayback(domain.PlaybackFinished)
}

func (o *Orchestrator) lexiconFailed(err error) {
	o.fail(domain.ErrorCodeLexicon, err)
}

// cameraOpenCode maps an acquisition failure to the user-facing error state.
func cameraOpenCode(err error) domain.ErrorCode {
	if errors.Is(err, ports.ErrPermissionDenied) {
		return domain.ErrorCodeCameraDenied
	}
	return domain.ErrorCodeCameraUnavailable
}

type discardSink struct{}

func (discardSink) TurnChanged(domain.ConversationTurn, domain.TurnReason) {}
func (discardSink) CaptureChanged(domain.CaptureState)                      {}
func (discardSink) OperatorTranscript(string, bool)                         {}
func (discardSink) GestureChanged(domain.GestureStatus)                     {}
func (discardSink) PhraseChanged([]string)                                  {}
func (discardSink) PlaybackChanged(domain.PlaybackState, string)            {}
func (discardSink) SessionError(domain.ErrorCode, string)                   {}
