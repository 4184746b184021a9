package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"pkai/internal/store"
)

type documentStore interface {
	GetDocument(ctx context.Context, relPath string) (store.Document, error)
	ReplaceDocument(ctx context.Context, doc store.Document, chunks []string) error
	DeleteDocument(ctx context.Context, relPath string) error
	ListPaths(ctx context.Context, prefix string) ([]string, error)
}

type Options struct {
	// Force re-chunks files whose content hash did not change.
	Force bool
	// Prune deletes stored documents that were not seen during the run.
	Prune        bool
	Exclude      []string
	MaxSizeBytes int64
	ChunkChars   int
}

type Report struct {
	Scanned int
	Indexed int
	Skipped int
	Deleted int
	Errors  int
	Chunks  int
}

// Message summarizes the run for the operator.
func (r Report) Message() string {
	if r.Scanned == 0 {
		return "No documents found. Add .txt or .md files to the directory."
	}
	msg := fmt.Sprintf("Ingested %d document(s) into %d chunks", r.Indexed, r.Chunks)
	if r.Skipped > 0 {
		msg += fmt.Sprintf("; %d unchanged", r.Skipped)
	}
	if r.Deleted > 0 {
		msg += fmt.Sprintf("; %d removed", r.Deleted)
	}
	if r.Errors > 0 {
		msg += fmt.Sprintf("; %d failed", r.Errors)
	}
	return msg + "."
}

type Service struct {
	store  documentStore
	opts   Options
	logger *slog.Logger
}

func NewService(st documentStore, opts Options, logger *slog.Logger) *Service {
	if opts.ChunkChars <= 0 {
		opts.ChunkChars = DefaultChunkChars
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: st, opts: opts, logger: logger.With("component", "ingest")}
}

// Run ingests every supported file under dir. Per-file failures are counted
// and logged; only discovery and store failures abort the run.
func (s *Service) Run(ctx context.Context, dir string) (Report, error) {
	files, err := DiscoverFiles(ctx, dir, s.opts.MaxSizeBytes, s.opts.Exclude)
	if err != nil {
		return Report{}, err
	}

	var report Report
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		seen[f.RelPath] = struct{}{}

		chunks, changed, err := s.processFile(ctx, f)
		switch {
		case err != nil:
			report.Errors++
			s.logger.Warn("ingest file failed", "path", f.RelPath, "error", err)
		case !changed:
			report.Skipped++
		default:
			report.Indexed++
			report.Chunks += chunks
		}
	}

	if s.opts.Prune {
		deleted, err := s.prune(ctx, seen)
		report.Deleted = deleted
		if err != nil {
			return report, err
		}
	}

	s.logger.Info("ingest done",
		"dir", dir,
		"scanned", report.Scanned,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"deleted", report.Deleted,
		"errors", report.Errors,
	)
	return report, nil
}

func (s *Service) processFile(ctx context.Context, f DiscoveredFile) (int, bool, error) {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return 0, false, err
	}
	hash := contentHash(content)

	existing, err := s.store.GetDocument(ctx, f.RelPath)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, false, err
	}
	if !needsReprocessing(existing.ContentHash, hash, s.opts.Force) {
		return 0, false, nil
	}

	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	chunks := SplitChunks(text, s.opts.ChunkChars)
	doc := store.Document{
		RelPath:     f.RelPath,
		ContentHash: hash,
		SizeBytes:   f.SizeBytes,
		MTimeUnix:   f.MTimeUnix,
	}
	if err := s.store.ReplaceDocument(ctx, doc, chunks); err != nil {
		return 0, false, err
	}
	return len(chunks), true, nil
}

func (s *Service) prune(ctx context.Context, seen map[string]struct{}) (int, error) {
	paths, err := s.store.ListPaths(ctx, "")
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		if err := s.store.DeleteDocument(ctx, p); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
