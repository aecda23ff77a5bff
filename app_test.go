package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"inclutalk/internal/config"
	"inclutalk/internal/domain"
	"inclutalk/internal/events"
	"inclutalk/internal/ports"
)

type emitted struct {
	name string
	data interface{}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) emit(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var payload interface{}
	if len(data) > 0 {
		payload = data[0]
	}
	r.events = append(r.events, emitted{name: name, data: payload})
}

func (r *recordingEmitter) last() emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newTestApp() (*App, *recordingEmitter) {
	recorder := &recordingEmitter{}
	return &App{ctx: context.Background(), emit: recorder.emit}, recorder
}

func TestTurnReasonMessage(t *testing.T) {
	t.Parallel()

	reasons := []domain.TurnReason{
		domain.TurnReasonSessionStarted,
		domain.TurnReasonUtteranceConfirmed,
		domain.TurnReasonSigningChosen,
		domain.TurnReasonTypingChosen,
		domain.TurnReasonCameraUnavailable,
		domain.TurnReasonPhraseConfirmed,
		domain.TurnReasonTextConfirmed,
		domain.TurnReasonConversationContinued,
		domain.TurnReasonBackToModality,
		domain.TurnReasonSessionEnded,
	}
	for _, reason := range reasons {
		reason := reason
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if turnReasonMessage(reason) == "" {
				t.Fatalf("missing message for %s", reason)
			}
		})
	}

	if got := turnReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:           "No se pudo iniciar la aplicación",
		domain.ErrorCodeMicrophoneDenied:  "Se denegó el acceso al micrófono",
		domain.ErrorCodeCameraUnavailable: "La cámara no está disponible",
		domain.ErrorCodeCameraLost:        "Se perdió la conexión con la cámara",
		domain.ErrorCodeClassification:    "No se reconoció la seña, intente de nuevo",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Error desconocido" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}
	if _, err := app.ConfirmPhrase(); err == nil {
		t.Fatalf("expected actions to fail before startup")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("expected boot error in runtime info, got %v", info)
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	if status.Turn != domain.TurnOperatorSpeaking || status.Notice != nil {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.Notice == nil || status.Notice.Code != domain.ErrorCodeStartup || status.Notice.Message != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
}

func TestCameraInputsIgnoredBeforeStartup(t *testing.T) {
	t.Parallel()

	app := &App{}
	if app.PushHandFrame(domain.HandFrame{}) {
		t.Fatalf("frame should be dropped without a camera bridge")
	}
	if app.ReportCamera("ready", "") {
		t.Fatalf("report should be ignored without a camera bridge")
	}
}

func TestRequestCameraEmitsEvent(t *testing.T) {
	t.Parallel()

	app, recorder := newTestApp()
	app.requestCamera(true, ports.CameraConfig{Device: "0", Width: 640, Height: 480, MaxHands: 2, FrameRate: 30})

	got := recorder.last()
	if got.name != eventCamera {
		t.Fatalf("unexpected event: %s", got.name)
	}
	payload := got.data.(map[string]interface{})
	if payload["open"] != true || payload["width"] != 640 || payload["maxHands"] != 2 {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestBusEventsAreForwarded(t *testing.T) {
	t.Parallel()

	app, recorder := newTestApp()

	app.onTurn(events.TurnEvent{Turn: domain.TurnUserTyping, Reason: domain.TurnReasonTypingChosen})
	turn := recorder.last()
	if turn.name != eventTurn || turn.data.(map[string]string)["message"] != "Escriba su respuesta" {
		t.Fatalf("unexpected turn event: %+v", turn)
	}

	app.onError(events.ErrorEvent{Code: domain.ErrorCodeCameraDenied, Detail: "NotAllowedError"})
	errEvent := recorder.last()
	payload := errEvent.data.(map[string]string)
	if errEvent.name != eventError || payload["code"] != "camera_denied" || payload["detail"] != "NotAllowedError" {
		t.Fatalf("unexpected error event: %+v", errEvent)
	}

	app.onPhrase(events.PhraseEvent{Words: []string{"RENOVAR"}})
	if recorder.last().name != eventPhrase {
		t.Fatalf("expected phrase event")
	}
}

func TestSubscribeForwardsFromBus(t *testing.T) {
	t.Parallel()

	app, recorder := newTestApp()
	bus := events.NewBus()
	if err := app.subscribe(bus); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	bus.PlaybackChanged(domain.PlaybackSpeaking, "RENOVAR HOY")
	bus.Wait()

	got := recorder.last()
	if got.name != eventPlayback {
		t.Fatalf("unexpected event: %s", got.name)
	}
	if payload := got.data.(events.PlaybackEvent); payload.Text != "RENOVAR HOY" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestEmitWithoutContextIsSilent(t *testing.T) {
	t.Parallel()

	recorder := &recordingEmitter{}
	app := &App{emit: recorder.emit}
	app.onCapture(events.CaptureEvent{State: domain.CaptureListening})
	if len(recorder.events) != 0 {
		t.Fatalf("expected no events before startup")
	}
}

func TestRuntimeInfo(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults(t.TempDir())
	info := runtimeInfo(cfg)
	if info["speechConfigured"] != "false" || info["cameraMode"] != "bridge" || info["opsAddr"] == "" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
	if _, leaked := info["apiKey"]; leaked {
		t.Fatalf("runtime info must not expose secrets")
	}
}
