package scannerService

import (
	"sync"
	"time"

	"cardscan/internal/api/scanner"
	"cardscan/internal/capture"
	"cardscan/internal/entity"
	"cardscan/pkg/redis"
	"cardscan/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// Sender delivers one message to the host screen. It must be safe for
// concurrent use.
type Sender interface {
	Send(msg scanner.OutboundMessage) error
}

type IScannerService interface {
	OpenSession(ctx context.Context, req OpenSessionParams, sender Sender) (*ScanSession, error)
	ActiveSessions() int
	Shutdown()
}

type OpenSessionParams struct {
	GameID     string
	CategoryID string
	User       entity.UserLoginData
	RequestID  string
}

type Config struct {
	FPS                int
	MaxIngestFPS       int
	JPEGQuality        int
	MaxUploadWidth     int
	CameraStartTimeout time.Duration
	StableFrames       int
	Detector           capture.DetectorConfig
}

func DefaultConfig() Config {
	return Config{
		FPS:                capture.DefaultFPS,
		MaxIngestFPS:       capture.DefaultFPS,
		JPEGQuality:        capture.DefaultJPEGQuality,
		CameraStartTimeout: DefaultCameraStartTimeout,
		StableFrames:       capture.StableFramesNeeded,
		Detector:           capture.DefaultDetectorConfig(),
	}
}

type scannerService struct {
	log      *logrus.Logger
	uploader capture.Uploader
	notifier redis.INotifier
	utils    utils.IUtils
	cfg      Config

	mu       sync.RWMutex
	sessions map[string]*ScanSession
}

func New(
	log *logrus.Logger,
	uploader capture.Uploader,
	notifier redis.INotifier,
	utils utils.IUtils,
	cfg Config,
) IScannerService {
	return &scannerService{
		log:      log,
		uploader: uploader,
		notifier: notifier,
		utils:    utils,
		cfg:      cfg,
		sessions: make(map[string]*ScanSession),
	}
}

func (s *scannerService) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *scannerService) register(ss *ScanSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[ss.id] = ss
}

func (s *scannerService) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Shutdown closes every open session without marking it finished.
func (s *scannerService) Shutdown() {
	s.mu.RLock()
	open := make([]*ScanSession, 0, len(s.sessions))
	for _, ss := range s.sessions {
		open = append(open, ss)
	}
	s.mu.RUnlock()

	for _, ss := range open {
		ss.Close()
	}
}
