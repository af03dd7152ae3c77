package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestBootstrapAppliesEnvFileToLogger(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "APP_ENV"} {
		if prev, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, prev) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LOG_LEVEL=warn\nAPP_ENV=test\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger, err := bootstrap(path)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %s, want warning from the env file", logger.GetLevel())
	}
}
