package scannerService

import (
	"fmt"
	"sync"
	"time"

	"cardscan/internal/api/scanner"
	"cardscan/internal/capture"
	"cardscan/internal/entity"
	contextPkg "cardscan/pkg/context"
	"cardscan/pkg/log"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"golang.org/x/time/rate"
)

// ScanSession binds one capture session to its websocket. The capture
// session itself only ever runs on loop.
type ScanSession struct {
	id      string
	params  OpenSessionParams
	service *scannerService

	session *capture.Session
	loop    *capture.EventLoop
	camera  *remoteCamera
	limiter *rate.Limiter
	sender  Sender
	log     *logrus.Entry

	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
	imported  int
}

func (s *scannerService) OpenSession(ctx context.Context, req OpenSessionParams, sender Sender) (*ScanSession, error) {
	id, err := s.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	entry := log.WithSession(id, req.GameID).WithField("request_id", req.RequestID)

	sessionCtx, cancel := context.WithCancel(ctx)
	sessionCtx = contextPkg.WithSessionID(sessionCtx, id)
	sessionCtx = contextPkg.WithRequestID(sessionCtx, req.RequestID)
	sessionCtx = contextPkg.WithAccessToken(sessionCtx, req.User.AccessToken)

	ingest := s.cfg.MaxIngestFPS
	if ingest <= 0 {
		ingest = capture.DefaultFPS
	}

	ss := &ScanSession{
		id:      id,
		params:  req,
		service: s,
		loop:    capture.NewEventLoop(s.cfg.FPS),
		camera:  newRemoteCamera(sender, s.cfg.CameraStartTimeout, entry),
		limiter: rate.NewLimiter(rate.Limit(ingest), 2),
		sender:  sender,
		log:     entry,
		cancel:  cancel,
		closed:  make(chan struct{}),
	}

	session, err := capture.NewSession(sessionCtx, id, req.GameID, req.CategoryID,
		capture.WithCamera(ss.camera),
		capture.WithUploader(s.uploader),
		capture.WithEventLoop(ss.loop, ss.loop),
		capture.WithObserver(ss),
		capture.WithDetectorConfig(s.cfg.Detector),
		capture.WithStableFrames(s.cfg.StableFrames),
		capture.WithEncoding(s.cfg.JPEGQuality, s.cfg.MaxUploadWidth),
		capture.WithLogger(entry),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	ss.session = session

	go ss.loop.Run(sessionCtx)
	s.register(ss)

	if err := ss.call(func() error {
		session.Start()
		return nil
	}); err != nil {
		ss.Close()
		return nil, err
	}

	return ss, nil
}

func (ss *ScanSession) ID() string {
	return ss.id
}

// Done is closed once the session has shut down.
func (ss *ScanSession) Done() <-chan struct{} {
	return ss.closed
}

// call runs fn on the session loop and waits for its result.
func (ss *ScanSession) call(fn func() error) error {
	res := make(chan error, 1)
	ss.loop.Dispatch(func() {
		res <- fn()
	})
	select {
	case err := <-res:
		return err
	case <-ss.loop.Done():
		return capture.ErrSessionClosed
	}
}

// HandleControl applies one control message. Finish and close end the
// session; the returned error is meant for the client.
func (ss *ScanSession) HandleControl(msg scanner.ControlMessage) error {
	switch msg.Type {
	case scanner.MessageCameraReady:
		ss.camera.Ready(msg.Width, msg.Height)
		return nil
	case scanner.MessageCameraError:
		ss.camera.Failed(msg.Reason)
		return nil
	case scanner.MessageFinish:
		ss.finish(true)
		return nil
	case scanner.MessageClose:
		ss.finish(false)
		return nil
	}

	return ss.call(func() error {
		switch msg.Type {
		case scanner.MessageAcknowledgeOrientation:
			return ss.session.AcknowledgeOrientation()
		case scanner.MessageSelectMode:
			return ss.session.SelectMode(capture.ScanMode(msg.Mode))
		case scanner.MessageSelectBackMode:
			return ss.session.SelectBackMode(capture.BackMode(msg.Mode))
		case scanner.MessageAcknowledgeFlip:
			return ss.session.AcknowledgeFlip()
		case scanner.MessageRetryCamera:
			return ss.session.RetryCamera()
		}
		return fmt.Errorf("%w: %s", scanner.ErrInvalidMessage, msg.Type)
	})
}

// HandleFrame decodes one encoded video frame for the camera track. Frames
// above the ingest rate are dropped.
func (ss *ScanSession) HandleFrame(data []byte) error {
	if !ss.limiter.Allow() {
		return scanner.ErrTooManyFrames
	}
	frame, err := ss.service.utils.DecodeFrame(data)
	if err != nil {
		return fmt.Errorf("%w: %w", scanner.ErrInvalidFrame, err)
	}
	if !ss.camera.PushFrame(frame) {
		ss.log.Debug("Frame received with no active camera track")
	}
	return nil
}

// Close ends the session as if the scanner was dismissed.
func (ss *ScanSession) Close() int {
	return ss.finish(false)
}

func (ss *ScanSession) finish(explicit bool) int {
	ss.closeOnce.Do(func() {
		ss.call(func() error {
			if explicit {
				ss.imported = ss.session.Finish()
			} else {
				ss.imported = ss.session.Close()
			}
			return nil
		})
		ss.camera.Shutdown()
		ss.loop.Close()
		ss.cancel()
		ss.service.unregister(ss.id)
		close(ss.closed)
	})
	return ss.imported
}

// StatusChanged and Completed run on the session loop.
func (ss *ScanSession) StatusChanged(st capture.Status) {
	if err := ss.sender.Send(scanner.OutboundMessage{
		Type:   scanner.MessageStatus,
		Status: statusPayload(st),
	}); err != nil {
		ss.log.WithError(err).Debug("Failed to push status")
	}
}

func (ss *ScanSession) Completed(importedCount int) {
	n := importedCount
	if err := ss.sender.Send(scanner.OutboundMessage{
		Type:          scanner.MessageCompleted,
		ImportedCount: &n,
	}); err != nil {
		ss.log.WithError(err).Debug("Failed to push completion")
	}

	event := entity.ScanCompletedEvent{
		SessionID:     ss.id,
		GameID:        ss.params.GameID,
		CategoryID:    ss.params.CategoryID,
		UserID:        ss.params.User.ID,
		ImportedCount: importedCount,
		CompletedAt:   time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ss.service.notifier.PublishScanCompleted(ctx, event); err != nil {
			ss.log.WithError(err).Warn("Failed to publish scan completion")
		}
	}()
}

func statusPayload(st capture.Status) *scanner.StatusPayload {
	return &scanner.StatusPayload{
		SessionID:     st.SessionID,
		Phase:         string(st.Phase),
		Instruction:   st.Instruction,
		ScanMode:      string(st.ScanMode),
		BackMode:      string(st.BackMode),
		HasSharedBack: st.HasSharedBack,
		PendingFront:  st.PendingFront,
		ScannedCount:  st.ScannedCount,
		Detected:      st.Detected,
		Progress:      st.Progress,
		CaptureLocked: st.CaptureLocked,
		Camera:        string(st.Camera),
		Error:         st.Error,
	}
}
