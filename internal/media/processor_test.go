package media

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"moviemaker/internal/domain"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	run   func(ctx context.Context, name string, args []string) ([]byte, []byte, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: append([]string(nil), args...)})
	f.mu.Unlock()
	if f.run == nil {
		return nil, nil, nil
	}
	return f.run(ctx, name, args)
}

func (f *fakeRunner) callsTo(name string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// writeOutput mimics ffmpeg producing the file named by its last argument.
func writeOutput(args []string) error {
	return os.WriteFile(args[len(args)-1], []byte("media"), 0o644)
}

func probeJSON(duration string, audio bool) []byte {
	streams := `{"codec_type":"video","width":1280,"height":720}`
	if audio {
		streams += `,{"codec_type":"audio"}`
	}
	return []byte(`{"format":{"duration":"` + duration + `"},"streams":[` + streams + `]}`)
}

func newTestProcessor(t *testing.T, runner Runner) *Processor {
	t.Helper()
	return NewProcessor(Options{WorkDir: t.TempDir(), Runner: runner, Timeout: time.Second})
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestProbeParsesStreams(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		return probeJSON("8.042", true), nil, nil
	}}
	p := newTestProcessor(t, runner)

	info, err := p.Probe(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if info.Duration != 8.042 || !info.HasAudio || !info.HasVideo || info.Width != 1280 {
		t.Fatalf("unexpected probe info: %#v", info)
	}
}

func TestDurationFallsBackToBanner(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		if name == "ffprobe" {
			return nil, nil, exec.ErrNotFound
		}
		return nil, []byte("Input #0, mov,mp4\n  Duration: 00:01:02.50, start: 0.000000, bitrate: 1200 kb/s"), errors.New("exit status 1")
	}}
	p := newTestProcessor(t, runner)

	d, err := p.Duration(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("Duration returned error: %v", err)
	}
	if d != 62.5 {
		t.Fatalf("Duration = %v, want 62.5", d)
	}
}

func TestExtractFinalFrameSeeksNearEnd(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		if name == "ffprobe" {
			return probeJSON("8.0", true), nil, nil
		}
		return nil, nil, writeOutput(args)
	}}
	p := newTestProcessor(t, runner)
	out := filepath.Join(t.TempDir(), "frames", "final.jpg")

	if err := p.ExtractFinalFrame(context.Background(), "clip.mp4", out); err != nil {
		t.Fatalf("ExtractFinalFrame returned error: %v", err)
	}
	calls := runner.callsTo("ffmpeg")
	if len(calls) != 1 {
		t.Fatalf("ffmpeg calls = %d, want 1", len(calls))
	}
	if got := argValue(calls[0].args, "-ss"); got != "7.900" {
		t.Fatalf("seek = %q, want 7.900", got)
	}
	if got := argValue(calls[0].args, "-frames:v"); got != "1" {
		t.Fatalf("frames = %q, want 1", got)
	}
}

func TestExtractFinalFrameFailsWithoutDuration(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		if name == "ffprobe" {
			return []byte(`{"format":{},"streams":[]}`), nil, nil
		}
		return nil, []byte("garbage"), errors.New("exit status 1")
	}}
	p := newTestProcessor(t, runner)

	err := p.ExtractFinalFrame(context.Background(), "clip.mp4", filepath.Join(t.TempDir(), "f.jpg"))
	if !errors.Is(err, ErrProcessing) {
		t.Fatalf("error = %v, want ErrProcessing", err)
	}
}

func TestApplyStyleFallsBackToCopy(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		return nil, []byte("No such filter"), errors.New("exit status 1")
	}}
	p := newTestProcessor(t, runner)
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(frame, []byte("original"), 0o644); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out := filepath.Join(dir, "styled.jpg")

	styled, err := p.ApplyStyle(context.Background(), frame, "bogus=1", out)
	if err != nil {
		t.Fatalf("ApplyStyle returned error: %v", err)
	}
	if styled {
		t.Fatalf("styled should be false after fallback")
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "original" {
		t.Fatalf("fallback copy = %q, %v", data, err)
	}
}

func TestApplyStyleWithoutFilterSkipsFFmpeg(t *testing.T) {
	runner := &fakeRunner{}
	p := newTestProcessor(t, runner)
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(frame, []byte("original"), 0o644); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	styled, err := p.ApplyStyle(context.Background(), frame, "", filepath.Join(dir, "out.jpg"))
	if err != nil || styled {
		t.Fatalf("ApplyStyle = %t, %v", styled, err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("unexpected ffmpeg invocation: %#v", runner.calls)
	}
}

func TestApplyStyleRunsFilter(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		return nil, nil, writeOutput(args)
	}}
	p := newTestProcessor(t, runner)
	dir := t.TempDir()

	styled, err := p.ApplyStyle(context.Background(), filepath.Join(dir, "frame.jpg"), "eq=saturation=1.3", filepath.Join(dir, "out.jpg"))
	if err != nil || !styled {
		t.Fatalf("ApplyStyle = %t, %v", styled, err)
	}
	if got := argValue(runner.calls[0].args, "-vf"); got != "eq=saturation=1.3" {
		t.Fatalf("filter = %q", got)
	}
}

func TestCrossfadeFilter(t *testing.T) {
	got := crossfadeFilter([]float64{8, 8, 6}, true)
	want := "[0:v][1:v]xfade=transition=fade:duration=0.500:offset=7.500[v1];" +
		"[v1][2:v]xfade=transition=fade:duration=0.500:offset=15.000[vout];" +
		"[0:a][1:a][2:a]concat=n=3:v=0:a=1[outa]"
	if got != want {
		t.Fatalf("crossfadeFilter =\n%s\nwant\n%s", got, want)
	}

	videoOnly := crossfadeFilter([]float64{8, 8}, false)
	if strings.Contains(videoOnly, "[outa]") {
		t.Fatalf("video-only filter should not concat audio: %s", videoOnly)
	}
	if !strings.HasSuffix(videoOnly, "[vout]") {
		t.Fatalf("video-only filter should end with [vout]: %s", videoOnly)
	}
}

func TestConcatenateWithTransitionsMapsAudioOnlyWhenPresent(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		if name == "ffprobe" {
			return probeJSON("8.0", args[len(args)-1] != "b.mp4"), nil, nil
		}
		return nil, nil, writeOutput(args)
	}}
	p := newTestProcessor(t, runner)
	out := filepath.Join(t.TempDir(), "movie.mp4")

	if err := p.Concatenate(context.Background(), []string{"a.mp4", "b.mp4"}, out, true); err != nil {
		t.Fatalf("Concatenate returned error: %v", err)
	}
	calls := runner.callsTo("ffmpeg")
	if len(calls) != 1 {
		t.Fatalf("ffmpeg calls = %d, want 1", len(calls))
	}
	joined := strings.Join(calls[0].args, " ")
	if strings.Contains(joined, "[outa]") {
		t.Fatalf("audio should not be mapped when a clip lacks audio: %s", joined)
	}
	if !strings.Contains(joined, "-map [vout]") {
		t.Fatalf("missing video map: %s", joined)
	}
}

func TestConcatenateStreamCopyUsesListFile(t *testing.T) {
	var listContent string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		data, err := os.ReadFile(argValue(args, "-i"))
		if err != nil {
			return nil, nil, err
		}
		listContent = string(data)
		return nil, nil, writeOutput(args)
	}}
	p := newTestProcessor(t, runner)
	out := filepath.Join(t.TempDir(), "movie.mp4")

	if err := p.Concatenate(context.Background(), []string{"/clips/a.mp4", "/clips/it's.mp4"}, out, false); err != nil {
		t.Fatalf("Concatenate returned error: %v", err)
	}
	if !strings.Contains(listContent, "file '/clips/a.mp4'") {
		t.Fatalf("list missing first clip: %q", listContent)
	}
	if !strings.Contains(listContent, `file '/clips/it'\''s.mp4'`) {
		t.Fatalf("list did not escape quote: %q", listContent)
	}
	if argValue(runner.calls[0].args, "-c") != "copy" {
		t.Fatalf("expected stream copy: %v", runner.calls[0].args)
	}
	entries, _ := os.ReadDir(p.workDir)
	if len(entries) != 0 {
		t.Fatalf("concat list not removed: %v", entries)
	}
}

func TestConcatenateRejectsEmptyInput(t *testing.T) {
	p := newTestProcessor(t, &fakeRunner{})
	if err := p.Concatenate(context.Background(), nil, "out.mp4", true); !errors.Is(err, ErrProcessing) {
		t.Fatalf("error = %v, want ErrProcessing", err)
	}
}

func TestConcatenateFailureIsProcessingError(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		if name == "ffprobe" {
			return probeJSON("8.0", true), nil, nil
		}
		return nil, []byte("Conversion failed!"), errors.New("exit status 1")
	}}
	p := newTestProcessor(t, runner)

	err := p.Concatenate(context.Background(), []string{"a.mp4", "b.mp4"}, filepath.Join(t.TempDir(), "m.mp4"), true)
	if !errors.Is(err, ErrProcessing) || !strings.Contains(err.Error(), "Conversion failed!") {
		t.Fatalf("error = %v, want ErrProcessing with stderr", err)
	}
}

func TestCreateThumbnailClampsOffsetForShortVideos(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		if name == "ffprobe" {
			return probeJSON("3.0", true), nil, nil
		}
		return nil, nil, writeOutput(args)
	}}
	p := newTestProcessor(t, runner)

	if err := p.CreateThumbnail(context.Background(), "movie.mp4", filepath.Join(t.TempDir(), "thumb.jpg")); err != nil {
		t.Fatalf("CreateThumbnail returned error: %v", err)
	}
	args := runner.callsTo("ffmpeg")[0].args
	if got := argValue(args, "-ss"); got != "1.500" {
		t.Fatalf("offset = %q, want 1.500", got)
	}
	if got := argValue(args, "-vf"); got != thumbnailScale {
		t.Fatalf("scale = %q, want %q", got, thumbnailScale)
	}
}

func TestRunMapsDeadlineToTimeout(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}}
	p := NewProcessor(Options{Runner: runner, Timeout: 20 * time.Millisecond, WorkDir: t.TempDir()})

	_, err := p.Probe(context.Background(), "clip.mp4")
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestRunPropagatesParentCancellation(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}}
	p := NewProcessor(Options{Runner: runner, Timeout: time.Minute, WorkDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Probe(ctx, "clip.mp4")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestMissingBinaryIsProcessingError(t *testing.T) {
	p := NewProcessor(Options{FFmpegPath: "definitely-not-ffmpeg-binary", WorkDir: t.TempDir()})
	if p.Available(context.Background()) {
		t.Fatalf("Available should be false for a missing binary")
	}
	err := p.RenderPlaceholder(context.Background(), filepath.Join(t.TempDir(), "x.mp4"), Placeholder{})
	if !errors.Is(err, ErrProcessing) || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("error = %v, want ErrProcessing naming the missing binary", err)
	}
}

func TestRenderPlaceholderWithRealFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	p := NewProcessor(Options{WorkDir: t.TempDir(), Timeout: time.Minute})
	dir := t.TempDir()
	ctx := context.Background()

	clips := []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mp4")}
	for i, clip := range clips {
		if err := p.RenderPlaceholder(ctx, clip, Placeholder{Seconds: 2, Width: 320, Height: 240, Hue: i * 90}); err != nil {
			t.Fatalf("RenderPlaceholder returned error: %v", err)
		}
	}
	frame := filepath.Join(dir, "frame.jpg")
	if err := p.ExtractFinalFrame(ctx, clips[0], frame); err != nil {
		t.Fatalf("ExtractFinalFrame returned error: %v", err)
	}
	movie := filepath.Join(dir, "movie.mp4")
	if err := p.Concatenate(ctx, clips, movie, true); err != nil {
		t.Fatalf("Concatenate returned error: %v", err)
	}
	d, err := p.Duration(ctx, movie)
	if err != nil {
		t.Fatalf("Duration returned error: %v", err)
	}
	if d < 3 || d > 4.2 {
		t.Fatalf("movie duration = %v, want about 3.5", d)
	}
}
