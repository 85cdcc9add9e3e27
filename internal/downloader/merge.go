package downloader

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ffmpegAvailable checks if ffmpeg is installed and accessible
func ffmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// mergeStreams muxes the separately downloaded video and audio tracks into
// one file, copying both codecs. Temp files are removed on success.
func mergeStreams(title, videoPath, audioPath, outDir string) (string, error) {
	if !ffmpegAvailable() {
		return "", wrapCategory(CategoryFilesystem, fmt.Errorf("ffmpeg not found in PATH"))
	}
	if outDir == "" {
		outDir = "output"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", wrapCategory(CategoryFilesystem, fmt.Errorf("creating output directory: %w", err))
	}
	outPath := filepath.Join(outDir, sanitize(title)+".mp4")

	video := ffmpeg.Input(videoPath)
	audio := ffmpeg.Input(audioPath)
	err := ffmpeg.Output(
		[]*ffmpeg.Stream{video, audio},
		outPath,
		ffmpeg.KwArgs{"c:v": "copy", "c:a": "copy"},
	).OverWriteOutput().Silent(true).Run()
	if err != nil {
		return "", wrapCategory(CategoryFilesystem, fmt.Errorf("ffmpeg merge failed: %w", err))
	}

	os.Remove(videoPath)
	os.Remove(audioPath)
	return outPath, nil
}
