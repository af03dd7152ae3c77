package capture

import (
	"errors"
	"fmt"
	"image"

	"cardscan/internal/entity"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// Camera acquires a video stream. Open may block until the user grants
// access and fails when permission is denied or no device exists.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

type CameraState string

const (
	CameraOff      CameraState = "off"
	CameraStarting CameraState = "starting"
	CameraActive   CameraState = "active"
	CameraFailed   CameraState = "failed"
)

// Status is what the host screen renders for a session.
type Status struct {
	SessionID     string
	Phase         Phase
	Instruction   string
	ScanMode      ScanMode
	BackMode      BackMode
	HasSharedBack bool
	PendingFront  bool
	ScannedCount  int
	Detected      bool
	Progress      float64
	CaptureLocked bool
	Camera        CameraState
	Error         string
}

// Observer receives session output on the session loop goroutine.
type Observer interface {
	StatusChanged(Status)
	Completed(importedCount int)
}

type nopObserver struct{}

func (nopObserver) StatusChanged(Status) {}
func (nopObserver) Completed(int)        {}

// Session is one opening of the card scanner. Every method, and every
// callback it registers, must run on the goroutine that owns its scheduler
// and dispatcher.
type Session struct {
	id         string
	gameID     string
	categoryID string
	ctx        context.Context

	phase        Phase
	scanMode     ScanMode
	backMode     BackMode
	sharedBackID string
	currentFront *entity.CardImage
	scannedCount int
	lastErr      error
	closed       bool
	inFlight     bool

	// back already stored for currentFront by a pair whose front upload failed
	pendingBackID string

	camera    Camera
	stream    Stream
	camState  CameraState
	cameraGen uint64

	detectorCfg  DetectorConfig
	stableFrames int
	quality      int
	maxWidth     int
	uploader     Uploader

	loop       *AcquisitionLoop
	pipeline   *Pipeline
	scheduler  FrameScheduler
	dispatcher Dispatcher
	async      func(fn func())
	observer   Observer
	log        *logrus.Entry

	signal    Signal
	published Signal
}

type SessionOption func(*Session) error

func WithCamera(camera Camera) SessionOption {
	return func(s *Session) error {
		s.camera = camera
		return nil
	}
}

func WithUploader(uploader Uploader) SessionOption {
	return func(s *Session) error {
		s.uploader = uploader
		return nil
	}
}

// WithEventLoop binds the session to the goroutine that runs sched and disp.
func WithEventLoop(sched FrameScheduler, disp Dispatcher) SessionOption {
	return func(s *Session) error {
		s.scheduler = sched
		s.dispatcher = disp
		return nil
	}
}

func WithObserver(observer Observer) SessionOption {
	return func(s *Session) error {
		if observer == nil {
			return errors.New("observer is nil")
		}
		s.observer = observer
		return nil
	}
}

func WithDetectorConfig(cfg DetectorConfig) SessionOption {
	return func(s *Session) error {
		if cfg.MinVariance >= cfg.MaxVariance {
			return fmt.Errorf("variance bounds inverted: %v >= %v", cfg.MinVariance, cfg.MaxVariance)
		}
		s.detectorCfg = cfg
		return nil
	}
}

func WithStableFrames(n int) SessionOption {
	return func(s *Session) error {
		if n < 1 {
			return fmt.Errorf("stable frames must be positive, got %d", n)
		}
		s.stableFrames = n
		return nil
	}
}

func WithEncoding(quality, maxWidth int) SessionOption {
	return func(s *Session) error {
		s.quality = quality
		s.maxWidth = maxWidth
		return nil
	}
}

// WithAsync replaces how camera acquisition and uploads are run off the
// session loop. The default starts a goroutine.
func WithAsync(run func(fn func())) SessionOption {
	return func(s *Session) error {
		s.async = run
		return nil
	}
}

func WithLogger(entry *logrus.Entry) SessionOption {
	return func(s *Session) error {
		s.log = entry
		return nil
	}
}

func NewSession(ctx context.Context, id, gameID, categoryID string, opts ...SessionOption) (*Session, error) {
	s := &Session{
		id:           id,
		gameID:       gameID,
		categoryID:   categoryID,
		ctx:          ctx,
		phase:        PhaseOrientationHint,
		camState:     CameraOff,
		detectorCfg:  DefaultDetectorConfig(),
		stableFrames: StableFramesNeeded,
		quality:      DefaultJPEGQuality,
		async:        func(fn func()) { go fn() },
		observer:     nopObserver{},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply session option: %w", err)
		}
	}

	if gameID == "" {
		return nil, errors.New("game id is required")
	}
	if s.camera == nil {
		return nil, errors.New("camera is required")
	}
	if s.uploader == nil {
		return nil, errors.New("uploader is required")
	}
	if s.scheduler == nil || s.dispatcher == nil {
		return nil, errors.New("event loop is required")
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithFields(logrus.Fields{
		"session_id": id,
		"game_id":    gameID,
	})

	s.pipeline = NewPipeline(s.uploader, s.quality, s.maxWidth)
	s.loop = NewAcquisitionLoop(NewDetector(s.detectorCfg), NewStabilizer(s.stableFrames), s.scheduler)
	s.loop.OnSignal(s.onSignal)
	s.loop.OnTrigger(s.onTrigger)

	return s, nil
}

// Start announces the session in its orientation-hint phase.
func (s *Session) Start() {
	s.log.Info("Scan session opened")
	s.publish(true)
}

func (s *Session) ID() string               { return s.id }
func (s *Session) GameID() string           { return s.gameID }
func (s *Session) CategoryID() string       { return s.categoryID }
func (s *Session) Phase() Phase             { return s.phase }
func (s *Session) ScanMode() ScanMode       { return s.scanMode }
func (s *Session) BackMode() BackMode       { return s.backMode }
func (s *Session) SharedBackID() string     { return s.sharedBackID }
func (s *Session) ScannedCount() int        { return s.scannedCount }
func (s *Session) CaptureLocked() bool      { return s.loop.Locked() }
func (s *Session) CameraState() CameraState { return s.camState }
func (s *Session) Closed() bool             { return s.closed }
func (s *Session) LastError() error         { return s.lastErr }

// CurrentFront is the captured front waiting for its individual back.
func (s *Session) CurrentFront() *entity.CardImage {
	return s.currentFront
}

func (s *Session) AcknowledgeOrientation() error {
	if err := s.expect(PhaseOrientationHint); err != nil {
		return err
	}
	s.transition(PhaseModeSelect)
	return nil
}

func (s *Session) SelectMode(mode ScanMode) error {
	if err := s.expect(PhaseModeSelect); err != nil {
		return err
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	s.scanMode = mode
	if mode == ScanModeFrontOnly {
		s.transition(PhaseScanFront)
	} else {
		s.transition(PhaseBackModeSelect)
	}
	return nil
}

func (s *Session) SelectBackMode(mode BackMode) error {
	if err := s.expect(PhaseBackModeSelect); err != nil {
		return err
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	s.backMode = mode
	if mode == BackModeShared {
		s.transition(PhaseScanSharedBack)
	} else {
		s.transition(PhaseScanFront)
	}
	return nil
}

func (s *Session) AcknowledgeFlip() error {
	if err := s.expect(PhaseFlipHint); err != nil {
		return err
	}
	s.transition(PhaseScanBackIndividual)
	return nil
}

// RetryCamera reacquires the camera after an acquisition failure.
func (s *Session) RetryCamera() error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.phase.RequiresCamera() {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, s.phase)
	}
	if s.camState != CameraFailed {
		return ErrCameraNotFailed
	}
	s.lastErr = nil
	s.startCamera()
	s.publish(true)
	return nil
}

// Finish ends the session and always reports the imported count.
func (s *Session) Finish() int {
	return s.close(true)
}

// Close ends the session, reporting the imported count only when at least
// one card made it to the card service.
func (s *Session) Close() int {
	return s.close(false)
}

func (s *Session) close(explicit bool) int {
	if s.closed {
		return s.scannedCount
	}
	s.closed = true
	s.loop.Stop()
	s.stopCamera()
	s.phase = PhaseDone
	s.currentFront = nil
	s.pendingBackID = ""
	s.publish(true)

	s.log.WithFields(logrus.Fields{
		"imported_count": s.scannedCount,
		"upload_pending": s.inFlight,
	}).Info("Scan session closed")

	if explicit || s.scannedCount > 0 {
		s.observer.Completed(s.scannedCount)
	}
	return s.scannedCount
}

func (s *Session) expect(p Phase) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.phase != p {
		return fmt.Errorf("%w: in %s, want %s", ErrInvalidTransition, s.phase, p)
	}
	s.lastErr = nil
	return nil
}

// transition moves to next and applies the phase table: the loop and camera
// always stop, and a camera phase restarts both from scratch. The capture
// lock survives only into importing.
func (s *Session) transition(next Phase) {
	prev := s.phase
	s.phase = next

	s.loop.Stop()
	if next != PhaseImporting {
		s.loop.ReleaseLock()
	}
	s.stopCamera()
	s.signal = Signal{}
	if next.RequiresCamera() {
		s.startCamera()
	}

	s.log.WithFields(logrus.Fields{
		"from":          prev,
		"to":            next,
		"scanned_count": s.scannedCount,
	}).Debug("Scan phase changed")
	s.publish(true)
}

func (s *Session) startCamera() {
	s.stopCamera()
	s.camState = CameraStarting
	gen := s.cameraGen
	ctx := s.ctx
	s.async(func() {
		stream, err := s.camera.Open(ctx)
		s.dispatcher.Dispatch(func() {
			s.cameraOpened(gen, stream, err)
		})
	})
}

func (s *Session) cameraOpened(gen uint64, stream Stream, err error) {
	if s.closed || gen != s.cameraGen || !s.phase.RequiresCamera() {
		if stream != nil {
			stream.Stop()
		}
		return
	}
	if err != nil {
		s.camState = CameraFailed
		s.lastErr = fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
		s.log.WithFields(logrus.Fields{
			"phase": s.phase,
			"error": err.Error(),
		}).Warn("Camera acquisition failed")
		s.publish(true)
		return
	}

	s.stream = stream
	s.camState = CameraActive
	s.loop.Start(stream)
	s.publish(true)
}

// stopCamera releases the stream and invalidates any pending acquisition.
func (s *Session) stopCamera() {
	s.cameraGen++
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
	s.camState = CameraOff
}

func (s *Session) onSignal(sig Signal) {
	s.signal = sig
	s.publish(false)
}

func (s *Session) onTrigger(frame *image.RGBA) {
	phase := s.phase
	side := entity.CardSideFront
	if phase == PhaseScanSharedBack || phase == PhaseScanBackIndividual {
		side = entity.CardSideBack
	}

	img, err := s.pipeline.Capture(frame, side)
	if err != nil {
		s.recoverFrom(phase, err)
		return
	}
	s.lastErr = nil

	s.log.WithFields(logrus.Fields{
		"phase": phase,
		"bytes": img.Size(),
	}).Info("Card captured")

	s.handleCapture(CaptureResult{Image: img, Phase: phase})
}

func (s *Session) handleCapture(res CaptureResult) {
	switch res.Phase {
	case PhaseScanSharedBack:
		back := res.Image
		s.upload(res.Phase, func(ctx context.Context) (entity.UploadedCard, error) {
			return s.pipeline.UploadBack(ctx, s.gameID, back)
		}, func(card entity.UploadedCard) {
			s.sharedBackID = card.ID
			s.transition(PhaseScanFront)
		}, nil)

	case PhaseScanFront:
		if s.scanMode == ScanModeFrontBack && s.backMode == BackModeIndividual {
			front := res.Image
			s.currentFront = &front
			s.pendingBackID = ""
			s.transition(PhaseFlipHint)
			return
		}
		req := s.frontRequest(res.Image)
		if s.scanMode == ScanModeFrontBack && s.backMode == BackModeShared {
			if s.sharedBackID == "" {
				s.recoverFrom(PhaseScanSharedBack, ErrMissingSharedBack)
				return
			}
			req.CardBackID = s.sharedBackID
		}
		s.upload(res.Phase, func(ctx context.Context) (entity.UploadedCard, error) {
			return s.pipeline.UploadFront(ctx, req)
		}, s.cardImported, nil)

	case PhaseScanBackIndividual:
		if s.currentFront == nil {
			s.recoverFrom(PhaseScanFront, ErrMissingFront)
			return
		}
		req := s.frontRequest(*s.currentFront)
		req.CardBackID = s.pendingBackID
		back := res.Image
		var backID string
		s.upload(res.Phase, func(ctx context.Context) (entity.UploadedCard, error) {
			card, id, err := s.pipeline.UploadPair(ctx, req, back)
			backID = id
			return card, err
		}, s.cardImported, func() {
			s.pendingBackID = backID
		})
	}
}

func (s *Session) frontRequest(img entity.CardImage) entity.FrontUpload {
	return entity.FrontUpload{
		GameID:        s.gameID,
		Image:         img,
		SuggestedName: fmt.Sprintf("Card %d", s.scannedCount+1),
		CategoryID:    s.categoryID,
	}
}

func (s *Session) cardImported(card entity.UploadedCard) {
	s.scannedCount++
	s.currentFront = nil
	s.pendingBackID = ""
	s.log.WithFields(logrus.Fields{
		"card_id":       card.ID,
		"scanned_count": s.scannedCount,
	}).Info("Card imported")
	s.transition(PhaseScanFront)
}

// upload enters importing and runs job off the loop. Its result is applied
// back on the loop unless the session has been closed meanwhile. failed, when
// set, runs on the loop before the session recovers from an error.
func (s *Session) upload(from Phase, job func(ctx context.Context) (entity.UploadedCard, error), done func(entity.UploadedCard), failed func()) {
	s.transition(PhaseImporting)
	s.inFlight = true
	ctx := s.ctx
	s.async(func() {
		card, err := job(ctx)
		s.dispatcher.Dispatch(func() {
			s.inFlight = false
			if s.closed {
				s.log.WithField("phase_at_capture", from).Debug("Dropping upload result for closed session")
				return
			}
			if err != nil {
				if failed != nil {
					failed()
				}
				s.recoverFrom(from, err)
				return
			}
			done(card)
		})
	})
}

// recoverFrom returns to a scannable phase with the camera restarted and the
// capture lock cleared.
func (s *Session) recoverFrom(p Phase, err error) {
	s.log.WithFields(logrus.Fields{
		"phase":         p,
		"scanned_count": s.scannedCount,
		"error":         err.Error(),
	}).Warn("Capture failed, returning to scan")
	s.lastErr = err
	s.transition(p)
}

func (s *Session) Status() Status {
	st := Status{
		SessionID:     s.id,
		Phase:         s.phase,
		Instruction:   s.instruction(),
		ScanMode:      s.scanMode,
		BackMode:      s.backMode,
		HasSharedBack: s.sharedBackID != "",
		PendingFront:  s.currentFront != nil,
		ScannedCount:  s.scannedCount,
		Detected:      s.signal.Detected,
		Progress:      s.signal.Progress,
		CaptureLocked: s.loop.Locked(),
		Camera:        s.camState,
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

func (s *Session) instruction() string {
	if s.phase.RequiresCamera() && !s.closed {
		switch {
		case s.camState == CameraFailed:
			return "Camera unavailable. Allow camera access and retry."
		case s.camState == CameraStarting:
			return "Starting camera..."
		case s.signal.Detected:
			return "Hold steady..."
		}
	}
	return s.phase.Instruction()
}

// publish emits the status. Unforced calls only emit when the detection
// flag or the positive count changed since the last emission.
func (s *Session) publish(force bool) {
	if !force && s.signal == s.published {
		return
	}
	s.published = s.signal
	s.observer.StatusChanged(s.Status())
}
