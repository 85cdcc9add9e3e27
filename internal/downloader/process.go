package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lvcoi/bvget/internal/history"
)

// Options describes CLI behavior for a download run.
type Options struct {
	OutputDir       string
	TempDir         string
	CredentialsFile string
	HistoryFile     string
	AudioOnly       bool
	InfoOnly        bool
	ListQualities   bool
	Quiet           bool
	PollInterval    time.Duration
	LoginWindow     time.Duration
}

func (o Options) credentialsFile() string {
	if o.CredentialsFile == "" {
		return filepath.Join("data", "login_info.json")
	}
	return o.CredentialsFile
}

// Process runs the full pipeline for one video: login (cached or QR),
// resolve, download both tracks, merge.
func Process(ctx context.Context, rawURL string, opts Options) error {
	printer := newPrinter(opts)

	if _, err := validateInputURL(rawURL); err != nil {
		return err
	}
	bvid, err := extractBV(rawURL)
	if err != nil {
		return err
	}

	session := NewSession()
	creds, err := ensureLogin(ctx, session, opts, printer)
	if err != nil {
		return err
	}

	resolver := newResolver(session)

	if opts.ListQualities {
		qualities, err := resolver.EnumerateQualities(ctx, bvid, creds)
		if err != nil {
			return err
		}
		return showQualities(qualities, printer)
	}

	media, err := resolver.Resolve(ctx, bvid, creds)
	if err != nil {
		return err
	}

	if opts.InfoOnly {
		return printInfo(media)
	}

	var outPath string
	if opts.AudioOnly {
		outPath, err = downloadAudioOnly(ctx, session, media, opts, printer)
	} else {
		outPath, err = downloadAndMerge(ctx, session, media, opts, printer)
	}
	if err != nil {
		return reportFatal(printer, err)
	}

	var bytes int64
	if fi, statErr := os.Stat(outPath); statErr == nil {
		bytes = fi.Size()
	}
	recordHistory(media, outPath, bytes, opts, printer)
	printer.Result(bvid, bytes, outPath)
	return nil
}

// reportFatal prints the error through the printer so it lands below any
// open progress line, and marks it so main does not print it a second time.
func reportFatal(printer *Printer, err error) error {
	printer.Log(LogError, err.Error())
	return markReported(err)
}

// ensureLogin loads cached credentials when they are still usable,
// otherwise drives the QR flow and persists the fresh set.
func ensureLogin(ctx context.Context, session *Session, opts Options, printer *Printer) (CredentialSet, error) {
	path := opts.credentialsFile()

	set, ok, err := loadCredentials(path)
	if err != nil {
		return CredentialSet{}, wrapCategory(CategoryFilesystem, err)
	}
	if ok && set.Usable(time.Now()) {
		printer.Log(LogInfo, "using cached login session")
		return set, nil
	}
	if ok {
		printer.Log(LogWarn, "cached login session expired, starting QR login")
	}

	set, err = newLoginClient(session, printer, opts).Login(ctx)
	if err != nil {
		return CredentialSet{}, err
	}
	if err := saveCredentials(path, set); err != nil {
		return CredentialSet{}, wrapCategory(CategoryFilesystem, err)
	}
	return set, nil
}

func downloadAndMerge(ctx context.Context, session *Session, media *ResolvedMedia, opts Options, printer *Printer) (string, error) {
	videoPath, err := downloadStream(ctx, session, media.VideoDownloadArgs(), "_video_only.mp4", opts, printer)
	if err != nil {
		return "", err
	}
	audioPath, err := downloadStream(ctx, session, media.AudioDownloadArgs(), "_audio_only.mp3", opts, printer)
	if err != nil {
		return "", err
	}
	return mergeStreams(media.Title, videoPath, audioPath, opts.OutputDir)
}

func downloadAudioOnly(ctx context.Context, session *Session, media *ResolvedMedia, opts Options, printer *Printer) (string, error) {
	audioPath, err := downloadStream(ctx, session, media.AudioDownloadArgs(), "_audio_only.mp3", opts, printer)
	if err != nil {
		return "", err
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "output"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", wrapCategory(CategoryFilesystem, fmt.Errorf("creating output directory: %w", err))
	}
	outPath := filepath.Join(outDir, sanitize(media.Title)+".mp3")
	if err := os.Rename(audioPath, outPath); err != nil {
		return "", wrapCategory(CategoryFilesystem, fmt.Errorf("moving audio output: %w", err))
	}
	embedAudioTags(media, outPath, printer)
	return outPath, nil
}

func printInfo(media *ResolvedMedia) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(media)
}

// ShowHistory prints the most recent download records to stdout, newest
// first.
func ShowHistory(opts Options, limit int) error {
	if opts.HistoryFile == "" {
		return wrapCategory(CategoryFilesystem, fmt.Errorf("history is disabled"))
	}
	store, err := history.Open(opts.HistoryFile)
	if err != nil {
		return wrapCategory(CategoryFilesystem, err)
	}
	defer store.Close()

	records, err := store.Recent(limit)
	if err != nil {
		return wrapCategory(CategoryFilesystem, err)
	}
	if len(records) == 0 {
		newPrinter(opts).Log(LogInfo, "no downloads recorded")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s  %s  %9s  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04"), r.BVID, humanBytes(r.Bytes), r.Title)
	}
	return nil
}

func recordHistory(media *ResolvedMedia, outPath string, bytes int64, opts Options, printer *Printer) {
	if opts.HistoryFile == "" {
		return
	}
	store, err := history.Open(opts.HistoryFile)
	if err != nil {
		printer.Log(LogWarn, fmt.Sprintf("history unavailable: %v", err))
		return
	}
	defer store.Close()

	qualities := make([]string, len(media.AvailableQualities))
	for i, q := range media.AvailableQualities {
		qualities[i] = fmt.Sprint(q)
	}
	err = store.Insert(history.Record{
		BVID:      media.BVID,
		Aid:       media.Aid,
		Cid:       media.Cid,
		Title:     media.Title,
		Owner:     media.Owner,
		Output:    outPath,
		Bytes:     bytes,
		Qualities: strings.Join(qualities, ","),
	})
	if err != nil {
		printer.Log(LogWarn, fmt.Sprintf("recording history: %v", err))
	}
}
