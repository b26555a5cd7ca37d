package supervisor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSignalsPauseTracksFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "control")
	sig, err := WatchSignals(dir)
	if err != nil {
		t.Fatalf("watch signals: %v", err)
	}
	defer sig.Close()

	if sig.ShouldPause() {
		t.Error("should not be paused before the file exists")
	}

	pausePath := filepath.Join(dir, pauseSignalFile)
	if err := os.WriteFile(pausePath, nil, 0644); err != nil {
		t.Fatalf("write pause file: %v", err)
	}
	if !sig.ShouldPause() {
		t.Error("should be paused while the file exists")
	}

	if err := os.Remove(pausePath); err != nil {
		t.Fatalf("remove pause file: %v", err)
	}
	if sig.ShouldPause() {
		t.Error("removing the file should resume")
	}
}

func TestSignalsStopIsSticky(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "control")
	sig, err := WatchSignals(dir)
	if err != nil {
		t.Fatalf("watch signals: %v", err)
	}
	defer sig.Close()

	if sig.ShouldStop() {
		t.Error("should not stop before the file exists")
	}

	stopPath := filepath.Join(dir, stopSignalFile)
	if err := os.WriteFile(stopPath, nil, 0644); err != nil {
		t.Fatalf("write stop file: %v", err)
	}
	if !sig.ShouldStop() {
		t.Error("should stop once the file exists")
	}

	// Stop persists even after the file is gone.
	if err := os.Remove(stopPath); err != nil {
		t.Fatalf("remove stop file: %v", err)
	}
	if !sig.ShouldStop() {
		t.Error("stop signal must be sticky")
	}

	sig.Clear()
	if sig.ShouldStop() {
		t.Error("clear should reset the stop signal")
	}
}
