package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"inclutalk/internal/domain"
	"inclutalk/internal/ports"
)

const (
	defaultCountdown = 3
	defaultHold      = 2 * time.Second
	defaultFrameRate = 30
	countdownTick    = time.Second
)

// GestureConfig paces the detect, countdown, hold and classify cycle.
type GestureConfig struct {
	Countdown int
	Hold      time.Duration
	FrameRate float64
	Camera    ports.CameraConfig
}

func (c GestureConfig) withDefaults() GestureConfig {
	if c.Countdown <= 0 {
		c.Countdown = defaultCountdown
	}
	if c.Hold <= 0 {
		c.Hold = defaultHold
	}
	if c.FrameRate <= 0 {
		c.FrameRate = defaultFrameRate
	}
	return c
}

// gestureListener receives the pipeline's terminal events on the event loop.
type gestureListener interface {
	gestureChanged(status domain.GestureStatus)
	gestureClassified(result domain.Classification)
	gestureFailed(err error)
	cameraLost(err error)
}

type trackingDevice struct {
	id      uint64
	session ports.HandTrackingSession
	cancel  context.CancelFunc
	slot    *frameSlot
}

// gesturePipeline turns the per-frame hand signal into at most one word per cycle.
// All fields below the collaborators are owned by the event loop.
type gesturePipeline struct {
	loop       *eventLoop
	tracker    ports.HandTracker
	classifier ports.SignClassifier
	clock      clock.WithDelayedExecution
	cfg        GestureConfig
	listener   gestureListener
	log        *slog.Logger

	device    *trackingDevice
	deviceSeq uint64

	cycle          uint64
	phase          domain.GesturePhase
	armed          bool
	countdown      int
	present        bool
	latest         domain.HandFrame
	result         *domain.Classification
	lastErr        string
	timer          clock.Timer
	classifyCancel context.CancelFunc
}

func newGesturePipeline(
	loop *eventLoop,
	tracker ports.HandTracker,
	classifier ports.SignClassifier,
	clk clock.WithDelayedExecution,
	cfg GestureConfig,
	listener gestureListener,
	log *slog.Logger,
) *gesturePipeline {
	return &gesturePipeline{
		loop:       loop,
		tracker:    tracker,
		classifier: classifier,
		clock:      clk,
		cfg:        cfg.withDefaults(),
		listener:   listener,
		log:        log.With("component", "gesture"),
		phase:      domain.GestureIdle,
	}
}

// open acquires the camera. It blocks and must be called off the event loop.
func (p *gesturePipeline) open(ctx context.Context) (ports.HandTrackingSession, error) {
	if p.tracker == nil || p.classifier == nil {
		return nil, ports.ErrCapabilityUnavailable
	}
	return p.tracker.Open(ctx, p.cfg.Camera)
}

// attach installs an acquired session and arms the first cycle.
func (p *gesturePipeline) attach(session ports.HandTrackingSession) {
	p.releaseDevice()

	p.deviceSeq++
	ctx, cancel := context.WithCancel(context.Background())
	device := &trackingDevice{
		id:      p.deviceSeq,
		session: session,
		cancel:  cancel,
		slot:    newFrameSlot(),
	}
	p.device = device

	go p.receiveFrames(ctx, device)
	go p.deliverFrames(ctx, device)

	p.resetCycle(true)
	p.lastErr = ""
	p.log.Info("camera attached", "device", device.id)
	p.publish()
}

// release cancels the cycle, its timers and the device synchronously.
func (p *gesturePipeline) release() {
	hadDevice := p.device != nil
	p.resetCycle(false)
	p.lastErr = ""
	p.releaseDevice()
	if hadDevice {
		p.log.Info("camera released")
	}
	p.publish()
}

// nextCycle discards any result and arms a fresh attempt.
func (p *gesturePipeline) nextCycle() bool {
	if p.device == nil {
		return false
	}
	p.resetCycle(true)
	p.publish()
	return true
}

func (p *gesturePipeline) active() bool {
	return p.device != nil
}

func (p *gesturePipeline) status() domain.GestureStatus {
	status := domain.GestureStatus{
		Phase:        p.phase,
		Cycle:        p.cycle,
		Countdown:    p.countdown,
		CameraActive: p.device != nil,
		Armed:        p.armed,
		LastError:    p.lastErr,
	}
	if p.result != nil {
		result := *p.result
		status.Result = &result
	}
	return status
}

func (p *gesturePipeline) publish() {
	p.listener.gestureChanged(p.status())
}

func (p *gesturePipeline) handleFrame(deviceID uint64, frame domain.HandFrame) {
	if p.device == nil || p.device.id != deviceID {
		return
	}

	present := frame.HasHands()
	p.present = present

	switch p.phase {
	case domain.GestureIdle:
		if !p.armed || !present {
			return
		}
		p.cycle++
		p.phase = domain.GestureDetected
		p.countdown = p.cfg.Countdown
		p.latest = frame
		p.lastErr = ""
		p.schedule(countdownTick, p.tick)
		p.publish()
	case domain.GestureDetected, domain.GestureRecording:
		if !present {
			p.log.Debug("hands lost, cycle cancelled", "cycle", p.cycle, "phase", p.phase)
			p.resetCycle(true)
			p.publish()
			return
		}
		p.latest = frame
	}
}

func (p *gesturePipeline) tick() {
	if p.phase != domain.GestureDetected {
		return
	}
	p.countdown--
	if p.countdown > 0 {
		p.schedule(countdownTick, p.tick)
		p.publish()
		return
	}
	if !p.present {
		p.resetCycle(true)
		p.publish()
		return
	}

	p.countdown = 0
	p.phase = domain.GestureRecording
	p.schedule(p.cfg.Hold, p.holdElapsed)
	p.publish()
}

func (p *gesturePipeline) holdElapsed() {
	if p.phase != domain.GestureRecording {
		return
	}
	p.timer = nil
	p.phase = domain.GestureClassifying

	snapshot := p.latest
	cycle := p.cycle
	ctx, cancel := context.WithCancel(context.Background())
	p.classifyCancel = cancel

	go func() {
		result, err := p.classifier.Classify(ctx, snapshot)
		p.loop.post(func() {
			p.classified(cycle, result, err)
		})
	}()
	p.publish()
}

func (p *gesturePipeline) classified(cycle uint64, result domain.Classification, err error) {
	if p.cycle != cycle || p.phase != domain.GestureClassifying {
		return
	}
	if p.classifyCancel != nil {
		p.classifyCancel()
		p.classifyCancel = nil
	}

	if err != nil {
		p.log.Warn("classification failed", "cycle", cycle, "error", err)
		p.resetCycle(true)
		p.lastErr = err.Error()
		p.publish()
		p.listener.gestureFailed(err)
		return
	}

	p.phase = domain.GestureDone
	p.armed = false
	p.result = &result
	p.log.Info("sign classified", "cycle", cycle, "label", result.Label, "confidence", result.Confidence)
	p.publish()
	p.listener.gestureClassified(result)
}

// schedule arms a one-shot timer bound to the current cycle. A timer that
// fires after the cycle moved on is dropped.
func (p *gesturePipeline) schedule(d time.Duration, fire func()) {
	p.stopTimer()
	cycle := p.cycle
	p.timer = p.clock.AfterFunc(d, func() {
		p.loop.post(func() {
			if p.cycle != cycle {
				return
			}
			fire()
		})
	})
}

func (p *gesturePipeline) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *gesturePipeline) resetCycle(armed bool) {
	p.stopTimer()
	if p.classifyCancel != nil {
		p.classifyCancel()
		p.classifyCancel = nil
	}
	p.cycle++
	p.phase = domain.GestureIdle
	p.countdown = 0
	p.latest = domain.HandFrame{}
	p.result = nil
	p.armed = armed && p.device != nil
}

func (p *gesturePipeline) releaseDevice() {
	if p.device == nil {
		return
	}
	device := p.device
	p.device = nil
	p.present = false
	device.cancel()
	if err := device.session.Close(); err != nil {
		p.log.Warn("camera close failed", "error", err)
	}
	if dropped := device.slot.droppedFrames(); dropped > 0 {
		p.log.Debug("frames superseded before delivery", "dropped", dropped)
	}
}

func (p *gesturePipeline) deviceLost(deviceID uint64) {
	if p.device == nil || p.device.id != deviceID {
		return
	}
	p.resetCycle(false)
	p.releaseDevice()
	p.lastErr = errCameraLost.Error()
	p.publish()
	p.listener.cameraLost(errCameraLost)
}

// receiveFrames copies detector output into the single-slot buffer.
func (p *gesturePipeline) receiveFrames(ctx context.Context, device *trackingDevice) {
	frames := device.session.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				if ctx.Err() == nil {
					p.loop.post(func() {
						p.deviceLost(device.id)
					})
				}
				return
			}
			device.slot.put(frame)
		}
	}
}

// deliverFrames hands the newest frame to the loop at a bounded rate.
func (p *gesturePipeline) deliverFrames(ctx context.Context, device *trackingDevice) {
	limiter := rate.NewLimiter(rate.Limit(p.cfg.FrameRate), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		frame, ok := device.slot.take(ctx)
		if !ok {
			return
		}
		if !p.loop.call(func() {
			p.handleFrame(device.id, frame)
		}) {
			return
		}
	}
}
