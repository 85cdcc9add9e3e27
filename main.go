package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lvcoi/bvget/internal/downloader"
)

func main() {
	var opts downloader.Options

	flag.StringVar(&opts.OutputDir, "o", "output", "output directory for merged files")
	flag.StringVar(&opts.TempDir, "temp", "temp", "directory for partially downloaded tracks")
	flag.StringVar(&opts.CredentialsFile, "credentials", filepath.Join("data", "login_info.json"), "path to the persisted login session")
	flag.StringVar(&opts.HistoryFile, "history", filepath.Join("data", "history.db"), "download history database (empty to disable)")
	flag.BoolVar(&opts.AudioOnly, "audio", false, "download the audio track only")
	flag.BoolVar(&opts.InfoOnly, "info", false, "print resolved media as JSON without downloading")
	flag.BoolVar(&opts.ListQualities, "list-qualities", false, "list quality levels available to this login and exit")
	flag.BoolVar(&opts.Quiet, "quiet", false, "suppress progress output (errors still shown)")
	flag.DurationVar(&opts.PollInterval, "poll-interval", 2*time.Second, "QR login poll interval")
	flag.DurationVar(&opts.LoginWindow, "login-timeout", 180*time.Second, "QR login window before a new code is requested")
	recent := flag.Int("recent", 0, "list the N most recent downloads and exit")
	flag.Parse()

	if *recent > 0 {
		if err := downloader.ShowHistory(opts, *recent); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(downloader.ExitCode(err))
		}
		return
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [options] <url-or-BV-id>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	defer downloader.CloseIdleConnections()

	if err := downloader.Process(context.Background(), args[0], opts); err != nil {
		if !downloader.IsReported(err) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(downloader.ExitCode(err))
	}
}
