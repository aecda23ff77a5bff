package domain

import "time"

// ConversationTurn is the active phase of the operator/user exchange.
type ConversationTurn string

const (
	TurnOperatorSpeaking     ConversationTurn = "operator_speaking"
	TurnUserChoosingModality ConversationTurn = "user_choosing_modality"
	TurnUserSigning          ConversationTurn = "user_signing"
	TurnUserTyping           ConversationTurn = "user_typing"
	TurnPlayback             ConversationTurn = "playback"
)

// TurnReason explains why the conversation moved to a turn.
type TurnReason string

const (
	TurnReasonSessionStarted        TurnReason = "session_started"
	TurnReasonUtteranceConfirmed    TurnReason = "utterance_confirmed"
	TurnReasonSigningChosen         TurnReason = "signing_chosen"
	TurnReasonTypingChosen          TurnReason = "typing_chosen"
	TurnReasonCameraUnavailable     TurnReason = "camera_unavailable"
	TurnReasonPhraseConfirmed       TurnReason = "phrase_confirmed"
	TurnReasonTextConfirmed         TurnReason = "text_confirmed"
	TurnReasonConversationContinued TurnReason = "conversation_continued"
	TurnReasonBackToModality        TurnReason = "back_to_modality"
	TurnReasonSessionEnded          TurnReason = "session_ended"
)

// CaptureState models the operator microphone lifecycle inside OperatorSpeaking.
type CaptureState string

const (
	CaptureIdle      CaptureState = "idle"
	CaptureStarting  CaptureState = "starting"
	CaptureListening CaptureState = "listening"
	CaptureStopping  CaptureState = "stopping"
)

// GesturePhase is the sub-phase of one gesture cycle.
type GesturePhase string

const (
	GestureIdle        GesturePhase = "idle"
	GestureDetected    GesturePhase = "detected"
	GestureRecording   GesturePhase = "recording"
	GestureClassifying GesturePhase = "classifying"
	GestureDone        GesturePhase = "done"
)

// PlaybackState tracks the text-to-speech handoff.
type PlaybackState string

const (
	PlaybackIdle     PlaybackState = "idle"
	PlaybackSpeaking PlaybackState = "speaking"
	PlaybackFinished PlaybackState = "finished"
	PlaybackFailed   PlaybackState = "failed"
)

// ErrorCode identifies the closed set of user-facing error states.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeSpeechUnavailable ErrorCode = "speech_unavailable"
	ErrorCodeMicrophoneDenied  ErrorCode = "microphone_denied"
	ErrorCodeTranscription     ErrorCode = "transcription"
	ErrorCodeAudioStream       ErrorCode = "audio_stream"
	ErrorCodeCameraUnavailable ErrorCode = "camera_unavailable"
	ErrorCodeCameraDenied      ErrorCode = "camera_denied"
	ErrorCodeCameraLost        ErrorCode = "camera_lost"
	ErrorCodeClassification    ErrorCode = "classification"
	ErrorCodePlayback          ErrorCode = "playback"
	ErrorCodeLexicon           ErrorCode = "lexicon"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// Landmark is one normalized hand keypoint.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandednessLeft and HandednessRight label a detected hand.
const (
	HandednessLeft  = "left"
	HandednessRight = "right"
)

// LandmarksPerHand is the fixed size of a hand landmark set.
const LandmarksPerHand = 21

// Hand is one detected hand's landmark set.
type Hand struct {
	Handedness string     `json:"handedness"`
	Landmarks  []Landmark `json:"landmarks"`
}

// HandFrame is one detector result. A frame with no hands means nothing was detected.
type HandFrame struct {
	Timestamp time.Time `json:"timestamp"`
	Hands     []Hand    `json:"hands"`
}

// HasHands reports whether at least one hand with landmarks is present.
func (f HandFrame) HasHands() bool {
	for _, hand := range f.Hands {
		if len(hand.Landmarks) > 0 {
			return true
		}
	}
	return false
}

// Alternative is a lower-ranked classifier guess.
type Alternative struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classification is the sign classifier output. Confidence is in [0,100].
type Classification struct {
	Label        string        `json:"label"`
	Confidence   float64       `json:"confidence"`
	Confident    bool          `json:"confident"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Notice is an inline, retriable error shown to the user.
type Notice struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// GestureStatus is the read-only view of the gesture pipeline.
type GestureStatus struct {
	Phase        GesturePhase    `json:"phase"`
	Cycle        uint64          `json:"cycle"`
	Countdown    int             `json:"countdown"`
	CameraActive bool            `json:"cameraActive"`
	Armed        bool            `json:"armed"`
	Result       *Classification `json:"result,omitempty"`
	LastError    string          `json:"lastError,omitempty"`
}

// Actions lists which orchestrator actions are currently valid.
type Actions struct {
	ToggleCapture    bool `json:"toggleCapture"`
	ClearUtterance   bool `json:"clearUtterance"`
	ConfirmUtterance bool `json:"confirmUtterance"`
	ChooseModality   bool `json:"chooseModality"`
	AcceptWord       bool `json:"acceptWord"`
	RejectWord       bool `json:"rejectWord"`
	UndoWord         bool `json:"undoWord"`
	ConfirmPhrase    bool `json:"confirmPhrase"`
	ConfirmText      bool `json:"confirmText"`
	RepeatPlayback   bool `json:"repeatPlayback"`
	Continue         bool `json:"continue"`
	Back             bool `json:"back"`
	ReconnectCamera  bool `json:"reconnectCamera"`
}

// ConversationStatus is the read-only snapshot the presentation layer binds to.
type ConversationStatus struct {
	Turn         ConversationTurn `json:"turn"`
	Capture      CaptureState     `json:"capture"`
	OperatorText string           `json:"operatorText"`
	Phrase       []string         `json:"phrase"`
	Candidate    *Classification  `json:"candidate,omitempty"`
	Draft        string           `json:"draft"`
	Payload      string           `json:"payload"`
	Playback     PlaybackState    `json:"playback"`
	Gesture      GestureStatus    `json:"gesture"`
	Notice       *Notice          `json:"notice,omitempty"`
	Actions      Actions          `json:"actions"`
}
