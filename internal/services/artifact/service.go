// Package artifact persists files produced by assistant runs (generated
// images, code-interpreter outputs) into local storage so clients can fetch
// them after the run ends.
package artifact

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/loom-ai/loom/internal/store"
	"github.com/loom-ai/loom/internal/stream"
)

// Fetcher is the slice of the provider client the materializer needs.
type Fetcher interface {
	GetFileInfo(ctx context.Context, fileID string) (openai.File, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Service downloads remote files and stores them as local artifacts.
type Service struct {
	store *store.Store
	sup   *Supervisor
}

// NewService creates an artifact service backed by the given store and
// supervisor.
func NewService(st *store.Store, sup *Supervisor) *Service {
	return &Service{store: st, sup: sup}
}

// Scheduler returns a callback bound to one user's provider client. The
// callback enqueues materialization and returns immediately; failures are
// logged by the supervisor, never surfaced to the run stream.
func (s *Service) Scheduler(fetcher Fetcher, ownerID string) stream.ArtifactFunc {
	return func(fileID string, isImage bool) {
		s.sup.Submit("materialize "+fileID, func(ctx context.Context) error {
			return s.Materialize(ctx, fetcher, ownerID, fileID, isImage)
		})
	}
}

// Materialize fetches the remote file's metadata and content, normalizes the
// filename, sniffs the content type and upserts the artifact keyed by
// (file id, owner). Re-running for the same file overwrites the prior copy.
func (s *Service) Materialize(ctx context.Context, fetcher Fetcher, ownerID, fileID string, isImage bool) error {
	info, err := fetcher.GetFileInfo(ctx, fileID)
	if err != nil {
		return fmt.Errorf("fetch file info %s: %w", fileID, err)
	}

	data, err := fetcher.DownloadFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("download file %s: %w", fileID, err)
	}

	name := sanitizeFilename(info.FileName)
	if name == "" {
		name = fileID
	}

	detected := mimetype.Detect(data)

	purpose := store.PurposeContent
	if isImage && strings.HasPrefix(detected.String(), "image/") {
		purpose = store.PurposeImage
		name = withExtension(name, detected.Extension())
	} else if filepath.Ext(name) == "" {
		ext := detected.Extension()
		if ext == "" {
			ext = ".bin"
		}
		name += ext
	}

	artifact := store.Artifact{
		FileID:      fileID,
		OwnerID:     ownerID,
		Filename:    name,
		ContentType: detected.String(),
		Purpose:     purpose,
		Data:        data,
	}
	if err := s.store.UpsertArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("store artifact %s: %w", fileID, err)
	}

	log.Debug().
		Str("file_id", fileID).
		Str("filename", name).
		Str("content_type", detected.String()).
		Msg("Materialized artifact")
	return nil
}

// List returns the artifact metadata for one owner, without content.
func (s *Service) List(ctx context.Context, ownerID string) ([]store.Artifact, error) {
	return s.store.ListArtifacts(ctx, ownerID)
}

// Get returns one artifact, content included.
func (s *Service) Get(ctx context.Context, ownerID, fileID string) (*store.Artifact, error) {
	return s.store.GetArtifact(ctx, fileID, ownerID)
}

// sanitizeFilename strips any directory components from an upstream filename.
// Remote names are untrusted; "../../etc/passwd" must come out as "passwd".
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}

// withExtension replaces the filename's extension when it disagrees with the
// sniffed one, so an image reported as "chart.jpg" but containing PNG bytes
// is stored as "chart.png".
func withExtension(name, ext string) string {
	if ext == "" {
		return name
	}
	current := filepath.Ext(name)
	if strings.EqualFold(current, ext) {
		return name
	}
	return strings.TrimSuffix(name, current) + ext
}
