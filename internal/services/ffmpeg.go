package services

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/reelami/reelads/internal/models"
)

// ---------------------------------------------------------------------------
// Motion effect types — each product image gets one so the montage never
// shows a static frame
// ---------------------------------------------------------------------------

// ClipEffect defines the type of Ken Burns / motion effect applied to a still image
type ClipEffect string

const (
	EffectZoomIn   ClipEffect = "zoom_in"   // Push toward center
	EffectZoomOut  ClipEffect = "zoom_out"  // Starts zoomed, pulls back wide
	EffectPanDown  ClipEffect = "pan_down"  // Drifts top to bottom
	EffectPanUp    ClipEffect = "pan_up"    // Drifts bottom to top
	EffectPanLeft  ClipEffect = "pan_left"  // Drifts right to left
	EffectPanRight ClipEffect = "pan_right" // Drifts left to right
)

// allEffects is the pool from which a random effect is chosen per image
var allEffects = []ClipEffect{
	EffectZoomIn,
	EffectZoomOut,
	EffectPanDown,
	EffectPanUp,
	EffectPanLeft,
	EffectPanRight,
}

// RandomEffect picks a random motion effect for an image segment
func RandomEffect() ClipEffect {
	return allEffects[rand.Intn(len(allEffects))]
}

// Output / rendering constants — 1080x1920 portrait at 30fps. In the split
// layout each half (actor, montage) occupies 1080x960 before stacking.
const (
	outputWidth  = 1080
	outputHeight = 1920
	halfHeight   = outputHeight / 2
	videoFPS     = 30
)

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	workDir string
}

func NewFFmpegService(workDir string) *FFmpegService {
	// Create work directory if it doesn't exist
	if err := os.MkdirAll(workDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create work dir: %v", err))
	}

	return &FFmpegService{
		workDir: workDir,
	}
}

// ProjectDir returns (and creates) the scratch directory for one project.
// All intermediate files for a project live under it so cache eviction can
// remove everything in one call.
func (s *FFmpegService) ProjectDir(projectID string) (string, error) {
	dir := filepath.Join(s.workDir, projectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create project dir: %w", err)
	}
	return dir, nil
}

// RenderAssetMontage turns the project's uploaded product assets into a single
// silent montage video of targetDurationSec. Screen time is split evenly
// across assets; images get a random motion effect, video assets are trimmed
// or looped to fill their slot. Asset paths must be local files.
func (s *FFmpegService) RenderAssetMontage(ctx context.Context, projectDir string, assets []models.Asset, localPaths []string, targetDurationSec float64) (string, error) {
	if len(assets) == 0 {
		return "", fmt.Errorf("no assets to render")
	}
	if len(assets) != len(localPaths) {
		return "", fmt.Errorf("asset/path count mismatch: %d vs %d", len(assets), len(localPaths))
	}

	segmentDur := targetDurationSec / float64(len(assets))
	log.Printf("[FFmpeg] Rendering montage: %d assets, %.1fs each (total %.1fs)",
		len(assets), segmentDur, targetDurationSec)

	// Render segments in parallel — each is an independent ffmpeg invocation
	segmentPaths := make([]string, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	for i, asset := range assets {
		i, asset := i, asset
		segPath := filepath.Join(projectDir, fmt.Sprintf("segment_%02d.mp4", i))
		segmentPaths[i] = segPath

		g.Go(func() error {
			var err error
			switch asset.Type {
			case models.AssetTypeImage:
				err = s.renderImageSegment(gctx, localPaths[i], segPath, RandomEffect(), segmentDur)
			case models.AssetTypeVideo:
				err = s.renderVideoSegment(gctx, localPaths[i], segPath, segmentDur)
			default:
				err = fmt.Errorf("unsupported asset type %q", asset.Type)
			}
			if err != nil {
				return fmt.Errorf("segment %d failed: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.Cleanup(segmentPaths...)
		return "", err
	}

	montagePath := filepath.Join(projectDir, "assets_montage.mp4")
	if err := s.concatenateSegments(ctx, projectDir, segmentPaths, montagePath); err != nil {
		return "", err
	}

	s.Cleanup(segmentPaths...)

	log.Printf("[FFmpeg] Montage rendered to %s", montagePath)

	return montagePath, nil
}

// renderImageSegment creates a video segment from a still image with a
// Ken Burns motion effect, sized for the montage half of the split layout.
func (s *FFmpegService) renderImageSegment(ctx context.Context, imagePath, outputPath string, effect ClipEffect, durationSec float64) error {
	vf := buildMotionFilter(effect, durationSec)

	log.Printf("[FFmpeg] Rendering image segment (effect=%s, duration=%.1fs)", effect, durationSec)

	args := []string{
		"-i", imagePath, // Single image input (zoompan handles duration)
		"-vf", vf,
		"-t", fmt.Sprintf("%.3f", durationSec),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-an", // Montage is silent; narration comes from the actor half
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg image segment failed (effect=%s): %w", effect, err)
	}

	return nil
}

// renderVideoSegment normalizes a video asset to the montage resolution and
// exactly durationSec. Shorter sources loop, longer sources are trimmed.
func (s *FFmpegService) renderVideoSegment(ctx context.Context, videoPath, outputPath string, durationSec float64) error {
	// Scale to cover the montage half, then center-crop to exact size
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d",
		outputWidth, halfHeight, outputWidth, halfHeight, videoFPS,
	)

	log.Printf("[FFmpeg] Rendering video segment (duration=%.1fs)", durationSec)

	args := []string{
		"-stream_loop", "-1", // Loop the source if shorter than the slot
		"-i", videoPath,
		"-vf", vf,
		"-t", fmt.Sprintf("%.3f", durationSec),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-an",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg video segment failed: %w", err)
	}

	return nil
}

// concatenateSegments combines the per-asset segments into the montage
func (s *FFmpegService) concatenateSegments(ctx context.Context, projectDir string, segmentPaths []string, outputPath string) error {
	if len(segmentPaths) == 0 {
		return fmt.Errorf("no segments to concatenate")
	}

	// Create a concat list file
	listPath := filepath.Join(projectDir, "concat_list.txt")
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}

	for _, path := range segmentPaths {
		// Write in FFmpeg concat format
		fmt.Fprintf(f, "file '%s'\n", path)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy", // Segments share codec settings, no re-encoding
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}

	return nil
}

// CombineVertically stacks the asset montage on top of the lip-synced actor
// video into the final 1080x1920 frame. Audio comes from the actor half; the
// montage is silent. If the montage runs longer than the actor read,
// -shortest trims the tail.
func (s *FFmpegService) CombineVertically(ctx context.Context, actorVideoPath, montagePath, outputPath string) error {
	log.Printf("[FFmpeg] Combining actor video with asset montage")

	// [0:v] montage → top half, [1:v] actor → bottom half, vstack to full frame
	filterComplex := fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d[top];"+
			"[1:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d[bottom];"+
			"[top][bottom]vstack=inputs=2[v]",
		outputWidth, halfHeight, outputWidth, halfHeight, videoFPS,
		outputWidth, halfHeight, outputWidth, halfHeight, videoFPS,
	)

	args := []string{
		"-i", montagePath,    // Input 0: silent asset montage
		"-i", actorVideoPath, // Input 1: lip-synced actor with narration audio
		"-filter_complex", filterComplex,
		"-map", "[v]",
		"-map", "1:a", // Narration audio from the actor video
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg vertical combine failed: %w", err)
	}

	return nil
}

// BurnCaptions burns an ASS subtitle file into the combined video.
func (s *FFmpegService) BurnCaptions(ctx context.Context, videoPath, subtitlePath, outputPath string) error {
	escapedPath := escapeFFmpegFilterPath(subtitlePath)
	vf := fmt.Sprintf("ass='%s'", escapedPath)

	log.Printf("[FFmpeg] Burning in captions from %s", subtitlePath)

	args := []string{
		"-i", videoPath,
		"-vf", vf,
		"-c:v", "libx264",
		"-c:a", "copy", // Audio unchanged
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg caption burn failed: %w", err)
	}

	return nil
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg filter syntax.
// FFmpeg filter strings treat colons, backslashes, and single quotes specially.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// buildMotionFilter constructs the FFmpeg -vf filter chain for a given effect.
// Pipeline: image → zoompan (motion baked into z/x/y expressions) → montage half size.
func buildMotionFilter(effect ClipEffect, durationSec float64) string {
	totalFrames := int(durationSec*videoFPS) + videoFPS // 1s buffer, -t trims
	if totalFrames < videoFPS {
		totalFrames = videoFPS // minimum 1 second
	}

	// Center expressions (reused):
	//   cx = "iw/2-(iw/zoom/2)"  — horizontally centered
	//   cy = "ih/2-(ih/zoom/2)"  — vertically centered
	var zExpr, xExpr, yExpr string

	switch effect {

	case EffectZoomIn:
		// Zoom from 1.0 → 1.4 centered
		zExpr = fmt.Sprintf("1.0+0.4*on/%d", totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectZoomOut:
		// Zoom from 1.4 → 1.0 centered
		zExpr = fmt.Sprintf("1.4-0.4*on/%d", totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectPanDown:
		// Fixed 1.3x zoom, camera drifts from top to bottom
		zExpr = "1.3"
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("(ih-ih/zoom)*on/%d", totalFrames)

	case EffectPanUp:
		// Fixed 1.3x zoom, camera drifts from bottom to top
		zExpr = "1.3"
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("(ih-ih/zoom)*(1-on/%d)", totalFrames)

	case EffectPanRight:
		// Fixed 1.3x zoom, camera drifts from left to right
		zExpr = "1.3"
		xExpr = fmt.Sprintf("(iw-iw/zoom)*on/%d", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectPanLeft:
		// Fixed 1.3x zoom, camera drifts from right to left
		zExpr = "1.3"
		xExpr = fmt.Sprintf("(iw-iw/zoom)*(1-on/%d)", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	default:
		// Fallback: zoom in centered
		zExpr = fmt.Sprintf("1.0+0.4*on/%d", totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"
	}

	zoompan := fmt.Sprintf(
		"zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		zExpr, xExpr, yExpr,
		totalFrames,
		outputWidth, halfHeight,
		videoFPS,
	)

	return zoompan
}

// GetAudioDuration returns the duration of an audio file in seconds
func (s *FFmpegService) GetAudioDuration(ctx context.Context, audioPath string) (float64, error) {
	// Use ffprobe to get duration
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return durationSec, nil
}

// GetVideoDuration returns the duration of a video file in seconds using ffprobe.
func (s *FFmpegService) GetVideoDuration(ctx context.Context, videoPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe video duration failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse video duration: %w", err)
	}

	return durationSec, nil
}

// Cleanup removes temporary files
func (s *FFmpegService) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}
