package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/parity-metrics/internal/errors"
	"github.com/kurihiro0119/parity-metrics/internal/storage"
)

// Source supplies period snapshots
type Source interface {
	// Load returns up to limit snapshots, newest first. limit <= 0 means all.
	Load(ctx context.Context, limit int) ([]*domain.Snapshot, error)
}

// FileSource loads snapshots from explicit files
type FileSource struct {
	Paths []string
}

// NewFileSource creates a source over the given files
func NewFileSource(paths ...string) *FileSource {
	return &FileSource{Paths: paths}
}

// Load reads every file
func (s *FileSource) Load(ctx context.Context, limit int) ([]*domain.Snapshot, error) {
	snapshots := make([]*domain.Snapshot, 0, len(s.Paths))
	for _, path := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return newestFirst(snapshots, limit), nil
}

// LoadFile reads and parses one snapshot file
func LoadFile(path string) (*domain.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(path)
		}
		return nil, apperrors.NewInternalError("failed to open snapshot", err)
	}
	defer f.Close()

	snap, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// DirSource loads every *.json snapshot of a directory
type DirSource struct {
	Dir string
}

// NewDirSource creates a source over a directory of weekly snapshots
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// Load reads the directory
func (s *DirSource) Load(ctx context.Context, limit int) ([]*domain.Snapshot, error) {
	if _, err := os.Stat(s.Dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(s.Dir)
		}
		return nil, apperrors.NewInternalError("failed to read snapshot directory", err)
	}

	paths, err := filepath.Glob(filepath.Join(s.Dir, "*.json"))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list snapshot directory", err)
	}
	sort.Strings(paths)

	return NewFileSource(paths...).Load(ctx, limit)
}

// URLSource fetches one snapshot per URL. Failures are returned as is,
// without retries.
type URLSource struct {
	URLs       []string
	httpClient *http.Client
}

// NewURLSource creates a source over static JSON resources
func NewURLSource(urls ...string) *URLSource {
	return &URLSource{
		URLs: urls,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient replaces the HTTP client used for fetching
func (s *URLSource) WithHTTPClient(c *http.Client) *URLSource {
	s.httpClient = c
	return s
}

// Load fetches every URL
func (s *URLSource) Load(ctx context.Context, limit int) ([]*domain.Snapshot, error) {
	snapshots := make([]*domain.Snapshot, 0, len(s.URLs))
	for _, u := range s.URLs {
		snap, err := s.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return newestFirst(snapshots, limit), nil
}

func (s *URLSource) fetch(ctx context.Context, u string) (*domain.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.NewBadRequestError("invalid snapshot URL", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to fetch "+u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NewNotFoundError(u)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.NewInternalError(
			fmt.Sprintf("unexpected status fetching %s: %s", u, resp.Status),
			errors.New(string(body)),
		)
	}

	snap, err := Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u, err)
	}
	return snap, nil
}

// StoreSource loads snapshots from the archive
type StoreSource struct {
	store storage.Storage
}

// NewStoreSource creates a source backed by store
func NewStoreSource(store storage.Storage) *StoreSource {
	return &StoreSource{store: store}
}

// Load returns the newest archived snapshots
func (s *StoreSource) Load(ctx context.Context, limit int) ([]*domain.Snapshot, error) {
	return s.store.LatestSnapshots(ctx, limit)
}

// newestFirst sorts and truncates; the input order is not relied upon
func newestFirst(snapshots []*domain.Snapshot, limit int) []*domain.Snapshot {
	domain.SortNewestFirst(snapshots)
	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	return snapshots
}

// Selection names where snapshots come from. The first non-empty field wins:
// files, then a directory, then URLs, then the archive.
type Selection struct {
	Files []string
	Dir   string
	URLs  []string
}

// NewSource builds the source for sel. store may be nil when sel names a
// file-based source.
func NewSource(sel Selection, store storage.Storage) (Source, error) {
	switch {
	case len(sel.Files) > 0:
		return NewFileSource(sel.Files...), nil
	case sel.Dir != "":
		return NewDirSource(sel.Dir), nil
	case len(sel.URLs) > 0:
		return NewURLSource(sel.URLs...), nil
	case store != nil:
		return NewStoreSource(store), nil
	}
	return nil, apperrors.NewBadRequestError("no snapshot source configured", nil)
}

// UsesStore reports whether sel falls through to the archive
func (sel Selection) UsesStore() bool {
	return len(sel.Files) == 0 && sel.Dir == "" && len(sel.URLs) == 0
}
