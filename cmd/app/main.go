package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardscan/internal/config"
	"cardscan/pkg/log"
	"cardscan/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// bootstrap loads the env files before the logger is built, so LOG_LEVEL,
// LOG_DIR and APP_ENV from .env reach it.
func bootstrap(files ...string) (*logrus.Logger, error) {
	err := godotenv.Load(files...)
	return log.NewLogger(), err
}

func main() {
	logger, envErr := bootstrap()
	if envErr != nil {
		logger.Warnf("No .env file loaded: %v", envErr)
	}

	validator := config.NewValidator()
	env, err := config.LoadEnv(validator)
	if err != nil {
		logger.Fatal(err)
	}

	fiberApp := config.NewFiber(logger)
	notifier := redis.New()

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithEnv(env),
		config.WithValidator(validator),
		config.WithMiddleware(),
		config.WithUtils(),
		config.WithCardAPI(),
		config.WithNotifier(notifier),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")
	if err := server.Shutdown(10 * time.Second); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}
