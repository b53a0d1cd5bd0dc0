// Package media wraps ffmpeg and ffprobe for the production pipeline: frame
// extraction, continuity-frame stylization, clip assembly and thumbnails.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"moviemaker/internal/domain"
	"moviemaker/internal/infra"
)

// ErrProcessing marks failures of the media toolkit itself.
var ErrProcessing = errors.New("media processing failed")

const (
	defaultTimeout       = 5 * time.Minute
	defaultClipDuration  = 8.0
	transitionDuration   = 0.5
	finalFrameLead       = 0.1
	thumbnailOffset      = 4.0
	thumbnailScale       = "scale=320:240"
	stderrTailBytes      = 600
	placeholderFrameRate = 24
)

// Options configures a Processor.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	// WorkDir holds scratch files such as concat lists.
	WorkDir string
	// Timeout bounds every subprocess invocation.
	Timeout time.Duration
	Logger  *infra.Logger
	Runner  Runner
}

// Processor drives ffmpeg subprocesses. It is safe for concurrent use.
type Processor struct {
	ffmpeg  string
	ffprobe string
	workDir string
	timeout time.Duration
	logger  zerolog.Logger
	runner  Runner
}

// ProbeInfo is the subset of ffprobe output the pipeline needs.
type ProbeInfo struct {
	Duration float64
	HasVideo bool
	HasAudio bool
	Width    int
	Height   int
}

func NewProcessor(opts Options) *Processor {
	p := &Processor{
		ffmpeg:  strings.TrimSpace(opts.FFmpegPath),
		ffprobe: strings.TrimSpace(opts.FFprobePath),
		workDir: strings.TrimSpace(opts.WorkDir),
		timeout: opts.Timeout,
		runner:  opts.Runner,
		logger:  zerolog.Nop(),
	}
	if p.ffmpeg == "" {
		p.ffmpeg = "ffmpeg"
	}
	if p.ffprobe == "" {
		p.ffprobe = "ffprobe"
	}
	if p.workDir == "" {
		p.workDir = os.TempDir()
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.runner == nil {
		p.runner = ExecRunner{}
	}
	if opts.Logger != nil {
		p.logger = opts.Logger.With().Str("component", "media").Logger()
	}
	return p
}

// Available reports whether the ffmpeg binary can be executed.
func (p *Processor) Available(ctx context.Context) bool {
	_, _, err := p.run(ctx, p.ffmpeg, "-hide_banner", "-version")
	return err == nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe reads stream and container metadata with ffprobe.
func (p *Processor) Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	stdout, _, err := p.run(ctx, p.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, err
	}
	var out probeOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, fmt.Errorf("%w: decode ffprobe output: %v", ErrProcessing, err)
	}
	info := &ProbeInfo{}
	if d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); err == nil {
		info.Duration = d
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			info.HasVideo = true
			if info.Width == 0 {
				info.Width, info.Height = s.Width, s.Height
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

var durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// Duration returns the media length in seconds. When ffprobe is unavailable
// or reports nothing it parses the banner ffmpeg prints for the input.
func (p *Processor) Duration(ctx context.Context, path string) (float64, error) {
	info, err := p.Probe(ctx, path)
	if err == nil && info.Duration > 0 {
		return info.Duration, nil
	}
	if isContextError(err) {
		return 0, err
	}
	// ffmpeg exits non-zero without an output file; the banner is still on stderr.
	_, stderr, runErr := p.run(ctx, p.ffmpeg, "-hide_banner", "-i", path)
	if isContextError(runErr) {
		return 0, runErr
	}
	if d, ok := parseBannerDuration(string(stderr)); ok {
		return d, nil
	}
	return 0, fmt.Errorf("%w: could not determine duration of %s", ErrProcessing, filepath.Base(path))
}

func parseBannerDuration(text string) (float64, bool) {
	m := durationPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	s, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	d := float64(h*3600+mm*60) + s
	return d, d > 0
}

// ExtractFinalFrame writes the last frame of clip to out as a JPEG.
func (p *Processor) ExtractFinalFrame(ctx context.Context, clip, out string) error {
	duration, err := p.Duration(ctx, clip)
	if err != nil {
		return err
	}
	seek := duration - finalFrameLead
	if seek < 0 {
		seek = 0
	}
	if err := ensureDir(out); err != nil {
		return err
	}
	if _, _, err := p.run(ctx, p.ffmpeg,
		"-y",
		"-ss", formatSeconds(seek),
		"-i", clip,
		"-frames:v", "1",
		"-q:v", "2",
		out,
	); err != nil {
		return err
	}
	return requireFile(out)
}

// ApplyStyle runs filter over frame and writes the result to out. An empty
// filter, or any ffmpeg failure, copies the frame unchanged instead; styled
// reports whether the filter was applied.
func (p *Processor) ApplyStyle(ctx context.Context, frame, filter, out string) (styled bool, err error) {
	if err := ensureDir(out); err != nil {
		return false, err
	}
	filter = strings.TrimSpace(filter)
	if filter != "" {
		_, _, runErr := p.run(ctx, p.ffmpeg, "-y", "-i", frame, "-vf", filter, "-q:v", "2", out)
		if runErr == nil && requireFile(out) == nil {
			return true, nil
		}
		if isContextError(runErr) {
			return false, runErr
		}
		p.logger.Warn().Err(runErr).Str("frame", filepath.Base(frame)).Msg("style filter failed, using original frame")
	}
	if err := copyFile(frame, out); err != nil {
		return false, fmt.Errorf("%w: copy frame: %v", ErrProcessing, err)
	}
	return false, nil
}

// Concatenate joins clips into out. With transitions and more than one clip
// it cross-fades consecutive clips and concatenates their audio; otherwise it
// stream-copies through the concat demuxer.
func (p *Processor) Concatenate(ctx context.Context, clips []string, out string, withTransitions bool) error {
	if len(clips) == 0 {
		return fmt.Errorf("%w: no clips to concatenate", ErrProcessing)
	}
	if err := ensureDir(out); err != nil {
		return err
	}
	if withTransitions && len(clips) > 1 {
		return p.concatWithTransitions(ctx, clips, out)
	}
	return p.concatStreamCopy(ctx, clips, out)
}

func (p *Processor) concatWithTransitions(ctx context.Context, clips []string, out string) error {
	durations := make([]float64, len(clips))
	allAudio := true
	for i, clip := range clips {
		durations[i] = defaultClipDuration
		info, err := p.Probe(ctx, clip)
		if isContextError(err) {
			return err
		}
		if err != nil {
			p.logger.Debug().Err(err).Str("clip", filepath.Base(clip)).Msg("probe failed, assuming default duration")
			allAudio = false
			continue
		}
		if info.Duration > 0 {
			durations[i] = info.Duration
		}
		if !info.HasAudio {
			allAudio = false
		}
	}

	args := []string{"-y"}
	for _, clip := range clips {
		args = append(args, "-i", clip)
	}
	args = append(args, "-filter_complex", crossfadeFilter(durations, allAudio), "-map", "[vout]")
	if allAudio {
		args = append(args, "-map", "[outa]", "-c:a", "aac")
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		out,
	)
	if _, _, err := p.run(ctx, p.ffmpeg, args...); err != nil {
		return err
	}
	return requireFile(out)
}

// crossfadeFilter chains xfade between consecutive inputs. Each offset is the
// running output length minus one transition, so fades land at clip ends.
func crossfadeFilter(durations []float64, withAudio bool) string {
	var sb strings.Builder
	prev := "[0:v]"
	elapsed := 0.0
	for i := 1; i < len(durations); i++ {
		elapsed += durations[i-1]
		offset := elapsed - float64(i)*transitionDuration
		if offset < 0 {
			offset = 0
		}
		label := fmt.Sprintf("[v%d]", i)
		if i == len(durations)-1 {
			label = "[vout]"
		}
		fmt.Fprintf(&sb, "%s[%d:v]xfade=transition=fade:duration=%s:offset=%s%s;",
			prev, i, formatSeconds(transitionDuration), formatSeconds(offset), label)
		prev = label
	}
	if withAudio {
		for i := range durations {
			fmt.Fprintf(&sb, "[%d:a]", i)
		}
		fmt.Fprintf(&sb, "concat=n=%d:v=0:a=1[outa]", len(durations))
	}
	return strings.TrimSuffix(sb.String(), ";")
}

func (p *Processor) concatStreamCopy(ctx context.Context, clips []string, out string) error {
	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return fmt.Errorf("%w: ensure work dir: %v", ErrProcessing, err)
	}
	listPath := filepath.Join(p.workDir, "concat_"+uuid.NewString()+".txt")
	var sb strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			abs = clip
		}
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("%w: write concat list: %v", ErrProcessing, err)
	}
	defer os.Remove(listPath)

	if _, _, err := p.run(ctx, p.ffmpeg, "-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", out); err != nil {
		return err
	}
	return requireFile(out)
}

// CreateThumbnail grabs one downscaled frame from video, four seconds in or
// halfway through shorter inputs.
func (p *Processor) CreateThumbnail(ctx context.Context, video, out string) error {
	offset := thumbnailOffset
	if d, err := p.Duration(ctx, video); err == nil && d/2 < offset {
		offset = d / 2
	} else if isContextError(err) {
		return err
	}
	if err := ensureDir(out); err != nil {
		return err
	}
	if _, _, err := p.run(ctx, p.ffmpeg,
		"-y",
		"-ss", formatSeconds(offset),
		"-i", video,
		"-vframes", "1",
		"-vf", thumbnailScale,
		"-q:v", "2",
		out,
	); err != nil {
		return err
	}
	return requireFile(out)
}

// Placeholder describes a locally rendered stand-in clip.
type Placeholder struct {
	Seconds int
	Width   int
	Height  int
	// Hue rotates the test pattern so consecutive scenes are distinguishable.
	Hue int
	// Reference, when set, is an image shown instead of the test pattern.
	Reference string
}

// RenderPlaceholder renders a silent-audio clip without any remote model.
func (p *Processor) RenderPlaceholder(ctx context.Context, out string, ph Placeholder) error {
	if ph.Seconds <= 0 {
		ph.Seconds = domain.SceneDuration
	}
	if ph.Width <= 0 || ph.Height <= 0 {
		ph.Width, ph.Height = 1280, 720
	}
	if err := ensureDir(out); err != nil {
		return err
	}
	size := fmt.Sprintf("%dx%d", ph.Width, ph.Height)
	seconds := strconv.Itoa(ph.Seconds)

	args := []string{"-y"}
	var vf string
	if ph.Reference != "" {
		args = append(args, "-loop", "1", "-t", seconds, "-i", ph.Reference)
		vf = fmt.Sprintf("scale=%d:%d,hue=h=%d,format=yuv420p", ph.Width, ph.Height, ph.Hue%360)
	} else {
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("testsrc2=size=%s:rate=%d:duration=%s", size, placeholderFrameRate, seconds))
		vf = fmt.Sprintf("hue=h=%d,format=yuv420p", ph.Hue%360)
	}
	args = append(args,
		"-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-vf", vf,
		"-r", strconv.Itoa(placeholderFrameRate),
		"-t", seconds,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		out,
	)
	if _, _, err := p.run(ctx, p.ffmpeg, args...); err != nil {
		return err
	}
	return requireFile(out)
}

// run executes one subprocess under the processor deadline. Deadline expiry
// maps to domain.ErrTimeout, cancellation of the parent context is returned
// as is, and everything else becomes ErrProcessing with the stderr tail.
func (p *Processor) run(parent context.Context, bin string, args ...string) ([]byte, []byte, error) {
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, err := p.runner.Run(ctx, bin, args...)
	if err == nil {
		p.logger.Debug().Str("bin", filepath.Base(bin)).Dur("elapsed", time.Since(start)).Msg("media command ok")
		return stdout, stderr, nil
	}
	if perr := parent.Err(); perr != nil {
		return stdout, stderr, perr
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout, stderr, fmt.Errorf("%w: %s exceeded %s", domain.ErrTimeout, filepath.Base(bin), p.timeout)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return stdout, stderr, fmt.Errorf("%w: %s not found on PATH", ErrProcessing, bin)
	}
	return stdout, stderr, fmt.Errorf("%w: %s: %v: %s", ErrProcessing, filepath.Base(bin), err, stderrTail(stderr))
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func stderrTail(stderr []byte) string {
	text := strings.TrimSpace(string(stderr))
	if len(text) > stderrTailBytes {
		text = text[len(text)-stderrTailBytes:]
	}
	return text
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: ensure directory: %v", ErrProcessing, err)
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: expected output %s: %v", ErrProcessing, filepath.Base(path), err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: output %s is empty", ErrProcessing, filepath.Base(path))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
