package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"time"

	"cardscan/internal/api/scanner"
	"cardscan/internal/capture"
	jwtPkg "cardscan/pkg/jwt"
	"cardscan/pkg/log"
	websocketPkg "cardscan/pkg/websocket"
	"github.com/joho/godotenv"
	_ "golang.org/x/image/webp"
)

func main() {
	var (
		server   = flag.String("server", "ws://localhost:3000/api/v1/scanner/ws", "scanner websocket URL")
		dir      = flag.String("dir", "", "directory of card images, streamed in name order")
		gameID   = flag.String("game", "", "game id to import into")
		category = flag.String("category", "", "optional category id")
		mode     = flag.String("mode", string(capture.ScanModeFrontOnly), "front_only or front_back")
		backMode = flag.String("back-mode", string(capture.BackModeIndividual), "individual or shared")
		fps      = flag.Int("fps", 15, "frames per second sent while scanning")
		token    = flag.String("token", "", "access token; signed from JWT_ACCESS_TOKEN_SECRET when empty")
	)
	flag.Parse()

	_ = godotenv.Load()
	logger := log.NewLogger()

	if *dir == "" || *gameID == "" {
		flag.Usage()
		os.Exit(2)
	}

	frames, err := loadFrames(*dir)
	if err != nil {
		logger.Fatal(err)
	}
	width, height, err := frameSize(frames[0])
	if err != nil {
		logger.Fatal(err)
	}

	accessToken := *token
	if accessToken == "" {
		accessToken, _, err = jwtPkg.Sign(map[string]interface{}{
			"id":       "replay",
			"email":    "replay@localhost",
			"username": "replay",
		}, time.Hour)
		if err != nil {
			logger.Fatalf("Failed to sign access token: %v", err)
		}
	}

	query := url.Values{"game_id": {*gameID}}
	if *category != "" {
		query.Set("category_id", *category)
	}
	client := websocketPkg.NewScannerClient(logger)
	if err := client.Connect(*server+"?"+query.Encode(), accessToken); err != nil {
		logger.Fatal(err)
	}
	defer client.Close()

	d := newDirector(capture.ScanMode(*mode), capture.BackMode(*backMode), len(frames))
	ticker := time.NewTicker(time.Second / time.Duration(max(*fps, 1)))
	defer ticker.Stop()
	messages := client.Messages()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				logger.Info("Connection closed")
				return
			}
			switch msg.Type {
			case scanner.MessageStatus:
				logger.WithField("phase", msg.Status.Phase).Debug(msg.Status.Instruction)
				for _, reply := range d.Observe(*msg.Status) {
					if err := client.SendControl(reply); err != nil {
						logger.Fatalf("Failed to send %s: %v", reply.Type, err)
					}
				}
			case scanner.MessageCameraStart:
				if err := client.SendControl(scanner.ControlMessage{
					Type:   scanner.MessageCameraReady,
					Width:  width,
					Height: height,
				}); err != nil {
					logger.Fatalf("Failed to acknowledge camera: %v", err)
				}
			case scanner.MessageCompleted:
				logger.Infof("Imported %d cards", *msg.ImportedCount)
				return
			case scanner.MessageError:
				logger.Warnf("Server error: %s", msg.Message)
			}

		case <-ticker.C:
			if !d.Streaming() {
				continue
			}
			if err := client.SendFrame(frames[d.Frame()]); err != nil {
				logger.Fatalf("Failed to send frame: %v", err)
			}
		}
	}
}

func frameSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode first image: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
