// Command maildeliver is a one-shot LDA that stages a single message
// from standard input and commits it into a maildir mailbox.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/infodancer/mailcore/internal/config"
	"github.com/infodancer/mailcore/internal/logging"
	"github.com/infodancer/mailcore/internal/metrics"
	"github.com/infodancer/mailcore/maildir"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		user      = flag.String("user", "", "Mailbox owner, appended to the configured maildir root")
		destFlags = flag.String("flags", "", "Initial message flags (letters: S,R,F,T,D; empty means new/)")
		inputPath = flag.String("input", "", "Path to the message to deliver (default: stdin)")
		received  = flag.String("received", "", "Received timestamp, RFC3339 (default: now)")
	)
	cfgFlags := config.ParseFlags("./mailcore.toml")

	cfg, err := config.LoadWithFlags(cfgFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Maildeliver.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
		metricsServer := metrics.NewPrometheusServer(cfg.Maildeliver.Metrics.Address, cfg.Maildeliver.Metrics.Path)
		go func() {
			if err := metricsServer.Start(context.Background()); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	root := cfg.Maildeliver.Maildir
	if root == "" {
		root = cfg.Maildir
	}
	if *user != "" {
		root = filepath.Join(root, *user)
	}

	mailbox, err := maildir.Open(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening maildir %s: %v\n", root, err)
		os.Exit(1)
	}

	input := io.Reader(os.Stdin)
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening input %s: %v\n", *inputPath, err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}

	flags, err := parseFlagLetters(*destFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -flags: %v\n", err)
		os.Exit(1)
	}

	receivedAt := time.Now()
	haveReceived := false
	if *received != "" {
		t, err := time.Parse(time.RFC3339, *received)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -received: %v\n", err)
			os.Exit(1)
		}
		receivedAt = t
		haveReceived = true
	}

	uidlist := maildir.NewFileUidList(filepath.Join(root, "uidlist"))
	index := maildir.NewArrayIndexTransaction(maildir.NewIndexArray(128))

	txn := maildir.NewTransaction(maildir.TransactionConfig{
		Mailbox:     mailbox,
		UidList:     uidlist,
		Index:       index,
		Logger:      logger,
		LockTimeout: cfg.Maildeliver.LockTimeout(),
	})

	handle, err := txn.SaveInit(flags, receivedAt, haveReceived, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initiating save: %v\n", err)
		os.Exit(1)
	}
	collector.MessageStaged()

	for {
		done, err := handle.Continue()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error streaming message body: %v\n", err)
			_ = txn.Rollback()
			os.Exit(1)
		}
		if done {
			break
		}
	}

	if _, err := handle.Finish(); err != nil {
		fmt.Fprintf(os.Stderr, "error finishing save: %v\n", err)
		_ = txn.Rollback()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Maildeliver.LockTimeout()+5*time.Second)
	defer cancel()

	first, last, err := txn.Commit(ctx)
	if err != nil {
		collector.CommitRolledBack()
		fmt.Fprintf(os.Stderr, "error committing delivery: %v\n", err)
		os.Exit(75) // EX_TEMPFAIL, matching sendmail LDA conventions
	}

	collector.CommitSucceeded(int(last-first) + 1)
	logger.Info("message delivered",
		slog.String("mailbox", root),
		slog.Uint64("first_uid", uint64(first)),
		slog.Uint64("last_uid", uint64(last)))
}

// parseFlagLetters translates a maildir flag-letter string (e.g. "FS")
// into the corresponding Flags bitmask.
func parseFlagLetters(s string) (maildir.Flags, error) {
	if s == "" {
		return maildir.FlagRecent, nil
	}
	var f maildir.Flags
	for _, r := range s {
		switch r {
		case 'S':
			f |= maildir.FlagSeen
		case 'R':
			f |= maildir.FlagAnswered
		case 'F':
			f |= maildir.FlagFlagged
		case 'T':
			f |= maildir.FlagDeleted
		case 'D':
			f |= maildir.FlagDraft
		default:
			return 0, fmt.Errorf("unknown flag letter %q", r)
		}
	}
	return f, nil
}
