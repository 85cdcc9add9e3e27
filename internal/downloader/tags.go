package downloader

import (
	"fmt"
	"path/filepath"
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"
)

// embedAudioTags writes title and uploader tags into an audio-only
// download. Only mp3 containers are tagged; anything else is skipped.
func embedAudioTags(media *ResolvedMedia, outputPath string, printer *Printer) {
	if outputPath == "" {
		return
	}
	if strings.ToLower(filepath.Ext(outputPath)) != ".mp3" {
		return
	}
	if err := embedID3Tags(media, outputPath); err != nil && printer != nil {
		printer.Log(LogWarn, fmt.Sprintf("metadata tag embedding failed: %v", err))
	}
}

func embedID3Tags(media *ResolvedMedia, outputPath string) error {
	tag, err := id3v2.Open(outputPath, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	if media.Title != "" {
		tag.SetTitle(media.Title)
	}
	if media.Owner != "" {
		tag.SetArtist(media.Owner)
	}
	return tag.Save()
}
