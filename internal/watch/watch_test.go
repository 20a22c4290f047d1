package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

type chanApplier struct {
	got chan models.Thresholds
	err error
}

func (a *chanApplier) UpdateThresholds(ctx context.Context, th models.Thresholds) (models.Thresholds, error) {
	if a.err != nil {
		return models.Thresholds{}, a.err
	}
	a.got <- th
	return th, nil
}

const baseConfig = `server:
  address: ":8080"
thresholds:
  temperature: {min: 18, max: 30}
  humidity: {min: 30, max: 60}
  sound: {max: 50}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestReadThresholds(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    models.Thresholds
		wantErr error
	}{
		{
			name:    "full section",
			content: baseConfig,
			want:    models.DefaultThresholds(),
		},
		{
			name:    "missing section",
			content: "server:\n  address: \":8080\"\n",
			wantErr: ErrNoThresholds,
		},
		{
			name:    "invalid yaml",
			content: "thresholds: [",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "config"+string(rune('a'+i))+".yaml")
			writeFile(t, path, tt.content)

			got, err := ReadThresholds(path)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.name == "invalid yaml":
				if err == nil {
					t.Error("expected parse error")
				}
			default:
				if err != nil {
					t.Fatalf("ReadThresholds() error = %v", err)
				}
				if got != tt.want {
					t.Errorf("thresholds = %+v, want %+v", got, tt.want)
				}
			}
		})
	}

	if _, err := ReadThresholds(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWatcherAppliesChangedThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nurserywatch.yaml")
	writeFile(t, path, baseConfig)

	applier := &chanApplier{got: make(chan models.Thresholds, 4)}
	w, err := New(path, applier, &Options{Debounce: 20 * time.Millisecond, PollInterval: 50 * time.Millisecond}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	// Ensure a distinct modification time for the polling fallback.
	time.Sleep(20 * time.Millisecond)
	writeFile(t, path, `thresholds:
  temperature: {min: 20, max: 26}
  humidity: {min: 35, max: 55}
  sound: {max: 45}
`)

	select {
	case th := <-applier.got:
		if th.Temperature.Min != 20 || th.Sound.Max != 45 {
			t.Errorf("applied thresholds = %+v", th)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("thresholds were not reapplied")
	}

	w.Stop()
	w.Stop()
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nurserywatch.yaml")
	writeFile(t, path, baseConfig)

	applier := &chanApplier{got: make(chan models.Thresholds, 4)}
	w, err := New(path, applier, &Options{Debounce: 10 * time.Millisecond, PollInterval: time.Hour}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "other.yaml"), baseConfig)

	select {
	case th := <-applier.got:
		t.Errorf("unexpected reload: %+v", th)
	case <-time.After(200 * time.Millisecond):
	}
}
