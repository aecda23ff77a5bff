package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"inclutalk/internal/bootstrap"
	"inclutalk/internal/camera"
	"inclutalk/internal/config"
	"inclutalk/internal/domain"
	"inclutalk/internal/events"
	"inclutalk/internal/ports"
)

const (
	eventTurn       = "inclutalk:turn"
	eventCapture    = "inclutalk:capture"
	eventTranscript = "inclutalk:transcript"
	eventGesture    = "inclutalk:gesture"
	eventPhrase     = "inclutalk:phrase"
	eventPlayback   = "inclutalk:playback"
	eventError      = "inclutalk:error"
	eventCamera     = "inclutalk:camera"
)

type emitFunc func(ctx context.Context, name string, data ...interface{})

// ActionResult reports whether an action applied and the state after it.
type ActionResult struct {
	Applied bool                      `json:"applied"`
	Status  domain.ConversationStatus `json:"status"`
}

// App is the Wails application root.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	emit   emitFunc

	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(nil)
	if err != nil {
		a.bootErr = err
		a.emitError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services

	if err := a.subscribe(services.Bus); err != nil {
		a.bootErr = err
		a.emitError(domain.ErrorCodeStartup, err.Error())
		return
	}
	if services.Camera != nil {
		services.Camera.SetRequester(camera.RequesterFunc(a.requestCamera))
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go func() {
		if err := services.Run(runCtx); err != nil {
			services.Logger.Error("background services stopped", "error", err)
		}
	}()

	services.Orchestrator.Start()
}

func (a *App) shutdown(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.services != nil {
		if err := a.services.Close(); err != nil {
			a.services.Logger.Warn("shutdown incomplete", "error", err)
		}
	}
}

func (a *App) subscribe(bus *events.Bus) error {
	subscriptions := map[string]any{
		events.TopicTurn:       a.onTurn,
		events.TopicCapture:    a.onCapture,
		events.TopicTranscript: a.onTranscript,
		events.TopicGesture:    a.onGesture,
		events.TopicPhrase:     a.onPhrase,
		events.TopicPlayback:   a.onPlayback,
		events.TopicError:      a.onError,
	}
	for topic, fn := range subscriptions {
		if err := bus.SubscribeAsync(topic, fn); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	return nil
}

// StartConversation resets the kiosk to a fresh operator turn.
func (a *App) StartConversation() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.Start() })
}

// ToggleOperatorCapture starts or stops the operator microphone.
func (a *App) ToggleOperatorCapture() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.ToggleOperatorCapture(a.ctx) })
}

func (a *App) ClearOperatorUtterance() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.ClearOperatorUtterance() })
}

func (a *App) ConfirmOperatorUtterance() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.ConfirmOperatorUtterance() })
}

// ChooseSigning opens the camera. It blocks until the camera answers.
func (a *App) ChooseSigning() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.ChooseSigning(a.ctx) })
}

func (a *App) ChooseTyping() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.ChooseTyping() })
}

func (a *App) SetTypedText(text string) (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.SetTypedText(text) })
}

func (a *App) AcceptWord() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.AcceptWord() })
}

func (a *App) RejectWord() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.RejectWord() })
}

func (a *App) UndoLastWord() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.UndoLastWord() })
}

func (a *App) ConfirmPhrase() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.ConfirmPhrase() })
}

func (a *App) ConfirmTypedText() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.ConfirmTypedText() })
}

func (a *App) RepeatPlayback() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.RepeatPlayback() })
}

func (a *App) ContinueConversation() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.ContinueConversation() })
}

func (a *App) BackToModalityChoice() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.BackToModalityChoice() })
}

func (a *App) ReconnectCamera() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.ReconnectCamera(a.ctx) })
}

func (a *App) DismissNotice() (ActionResult, error) {
	return a.act(func() bool { return a.services.Orchestrator.DismissNotice() })
}

// GetStatus returns the current conversation snapshot.
func (a *App) GetStatus() domain.ConversationStatus {
	if a.services == nil {
		status := domain.ConversationStatus{
			Turn:     domain.TurnOperatorSpeaking,
			Capture:  domain.CaptureIdle,
			Playback: domain.PlaybackIdle,
			Phrase:   []string{},
		}
		if a.bootErr != nil {
			status.Notice = &domain.Notice{Code: domain.ErrorCodeStartup, Message: a.bootErr.Error()}
		}
		return status
	}
	return a.services.Orchestrator.Status()
}

// PushHandFrame receives one landmark result from the front-end detector.
func (a *App) PushHandFrame(frame domain.HandFrame) bool {
	if a.services == nil || a.services.Camera == nil {
		return false
	}
	return a.services.Camera.Push(frame)
}

// ReportCamera answers a camera request: ready, denied, unavailable or lost.
func (a *App) ReportCamera(status string, detail string) bool {
	if a.services == nil || a.services.Camera == nil {
		return false
	}
	return a.services.Camera.Report(camera.Status(strings.ToLower(strings.TrimSpace(status))), detail)
}

// requestCamera asks the front end to start or stop the webcam.
func (a *App) requestCamera(open bool, cfg ports.CameraConfig) {
	a.emitEvent(eventCamera, map[string]interface{}{
		"open":      open,
		"device":    cfg.Device,
		"width":     cfg.Width,
		"height":    cfg.Height,
		"maxHands":  cfg.MaxHands,
		"frameRate": cfg.FrameRate,
	})
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}
	return runtimeInfo(a.services.Config)
}

func runtimeInfo(cfg config.Config) map[string]string {
	info := map[string]string{
		"speechProvider":   "Deepgram",
		"speechModel":      cfg.Deepgram.Model,
		"speechLanguage":   cfg.Deepgram.Language,
		"speechConfigured": fmt.Sprintf("%t", cfg.Deepgram.APIKey != ""),
		"voice":            cfg.Playback.Voice,
		"audioInput":       cfg.Audio.InputDevice,
		"cameraMode":       cfg.Camera.Mode,
		"classifier":       cfg.Classifier.BaseURL,
		"lexicon":          cfg.Lexicon.Path,
	}
	if cfg.HTTP.Enabled {
		info["opsAddr"] = cfg.HTTP.Addr
	}
	return info
}

func (a *App) act(action func() bool) (ActionResult, error) {
	if err := a.requireReady(); err != nil {
		return ActionResult{}, err
	}
	applied := action()
	return ActionResult{Applied: applied, Status: a.services.Orchestrator.Status()}, nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) emitEvent(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

func (a *App) emitError(code domain.ErrorCode, detail string) {
	a.emitEvent(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) onTurn(e events.TurnEvent) {
	a.emitEvent(eventTurn, map[string]string{
		"turn":    string(e.Turn),
		"reason":  string(e.Reason),
		"message": turnReasonMessage(e.Reason),
	})
}

func (a *App) onCapture(e events.CaptureEvent) {
	a.emitEvent(eventCapture, map[string]string{"state": string(e.State)})
}

func (a *App) onTranscript(e events.TranscriptEvent) {
	a.emitEvent(eventTranscript, e)
}

func (a *App) onGesture(e events.GestureEvent) {
	a.emitEvent(eventGesture, e.Status)
}

func (a *App) onPhrase(e events.PhraseEvent) {
	a.emitEvent(eventPhrase, e)
}

func (a *App) onPlayback(e events.PlaybackEvent) {
	a.emitEvent(eventPlayback, e)
}

func (a *App) onError(e events.ErrorEvent) {
	a.emitError(e.Code, e.Detail)
}

func turnReasonMessage(reason domain.TurnReason) string {
	switch reason {
	case domain.TurnReasonSessionStarted:
		return "Nueva conversación"
	case domain.TurnReasonUtteranceConfirmed:
		return "¿Cómo desea responder?"
	case domain.TurnReasonSigningChosen:
		return "Muestre sus manos a la cámara"
	case domain.TurnReasonTypingChosen:
		return "Escriba su respuesta"
	case domain.TurnReasonCameraUnavailable:
		return "No se pudo usar la cámara"
	case domain.TurnReasonPhraseConfirmed, domain.TurnReasonTextConfirmed:
		return "Reproduciendo respuesta"
	case domain.TurnReasonConversationContinued:
		return "Turno del operador"
	case domain.TurnReasonBackToModality:
		return "Elija otra forma de responder"
	case domain.TurnReasonSessionEnded:
		return "Conversación finalizada"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "No se pudo iniciar la aplicación"
	case domain.ErrorCodeSpeechUnavailable:
		return "El reconocimiento de voz no está disponible"
	case domain.ErrorCodeMicrophoneDenied:
		return "Se denegó el acceso al micrófono"
	case domain.ErrorCodeTranscription:
		return "Error de transcripción"
	case domain.ErrorCodeAudioStream:
		return "Problema con el audio del micrófono"
	case domain.ErrorCodeCameraUnavailable:
		return "La cámara no está disponible"
	case domain.ErrorCodeCameraDenied:
		return "Se denegó el acceso a la cámara"
	case domain.ErrorCodeCameraLost:
		return "Se perdió la conexión con la cámara"
	case domain.ErrorCodeClassification:
		return "No se reconoció la seña, intente de nuevo"
	case domain.ErrorCodePlayback:
		return "No se pudo reproducir la respuesta"
	case domain.ErrorCodeLexicon:
		return "Se leerá el texto sin ajustes de pronunciación"
	default:
		if detail == "" {
			return "Error desconocido"
		}
		return detail
	}
}
