// Package feed mirrors the external CVE record source with go-git and
// normalizes raw record documents into the canonical domain model.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
)

const (
	recordDir     = "cves"
	kevFile       = "enrichment/kev.json"
	epssFile      = "enrichment/epss.json"
	recordPrefix  = "CVE-"
	recordSuffix  = ".json"
	revisionState = ".revision"
)

// GitSource implements ports.FeedSource over a local git mirror of the
// upstream record repository.
type GitSource struct {
	url    string
	mirror string
}

// NewGitSource creates a feed source mirroring url into mirror.
// The last successfully ingested revision is kept in a sibling state file so
// it survives a partial or re-created clone.
func NewGitSource(url, mirror string) *GitSource {
	return &GitSource{url: url, mirror: mirror}
}

func (s *GitSource) revisionPath() string {
	return s.mirror + revisionState
}

// Sync clones or updates the mirror and reports the record files that
// changed since the last committed revision. In bulk mode, or when no
// committed revision exists, every tracked record file is reported as added.
func (s *GitSource) Sync(ctx context.Context, bulk bool) (*ports.SyncResult, error) {
	repo, err := s.ensureMirror(ctx)
	if err != nil {
		return nil, fmt.Errorf("mirror sync failed: %w", err)
	}

	headRef, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mirror HEAD: %w", err)
	}
	head, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD commit: %w", err)
	}

	lastRev := s.lastRevision()

	var changes []domain.Change
	if bulk || lastRev == "" {
		changes, err = allRecords(head)
	} else if lastRev == head.Hash.String() {
		changes = nil
	} else {
		changes, err = s.diffRecords(repo, lastRev, head)
	}
	if err != nil {
		return nil, err
	}

	enrich, err := s.loadEnrichment()
	if err != nil {
		return nil, err
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	return &ports.SyncResult{
		Changes:    changes,
		Revision:   head.Hash.String(),
		Enrichment: enrich,
	}, nil
}

// ensureMirror clones on first run, otherwise fetches and fast-forwards the
// worktree. A half-finished previous clone is simply retried.
func (s *GitSource) ensureMirror(ctx context.Context) (*git.Repository, error) {
	if fi, err := os.Stat(filepath.Join(s.mirror, ".git")); err == nil && fi.IsDir() {
		repo, err := git.PlainOpen(s.mirror)
		if err != nil {
			return nil, err
		}
		wt, err := repo.Worktree()
		if err != nil {
			return nil, err
		}
		err = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Force: true})
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return nil, fmt.Errorf("git pull: %w", err)
		}
		return repo, nil
	}

	// A directory without .git is a partial mirror; clear it and re-clone.
	if err := os.RemoveAll(s.mirror); err != nil {
		return nil, err
	}
	repo, err := git.PlainCloneContext(ctx, s.mirror, false, &git.CloneOptions{URL: s.url})
	if err != nil {
		return nil, fmt.Errorf("git clone %s: %w", s.url, err)
	}
	return repo, nil
}

// allRecords walks the full commit tree, reporting every record file.
func allRecords(commit *object.Commit) ([]domain.Change, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	var changes []domain.Change
	err = tree.Files().ForEach(func(f *object.File) error {
		if id, ok := recordID(f.Name); ok {
			changes = append(changes, domain.Change{RecordID: id, Kind: domain.ChangeAdded, Path: f.Name})
		}
		return nil
	})
	return changes, err
}

// diffRecords uses git's native tree diff between the last ingested commit
// and HEAD. If the old commit is no longer reachable (history rewrite), the
// full tree is replayed as additions rather than silently skipping changes.
func (s *GitSource) diffRecords(repo *git.Repository, lastRev string, head *object.Commit) ([]domain.Change, error) {
	oldCommit, err := repo.CommitObject(plumbing.NewHash(lastRev))
	if err != nil {
		return allRecords(head)
	}
	oldTree, err := oldCommit.Tree()
	if err != nil {
		return nil, err
	}
	newTree, err := head.Tree()
	if err != nil {
		return nil, err
	}

	treeChanges, err := oldTree.Diff(newTree)
	if err != nil {
		return nil, fmt.Errorf("git diff: %w", err)
	}

	var changes []domain.Change
	for _, tc := range treeChanges {
		action, err := tc.Action()
		if err != nil {
			return nil, err
		}
		switch action {
		case merkletrie.Insert:
			if id, ok := recordID(tc.To.Name); ok {
				changes = append(changes, domain.Change{RecordID: id, Kind: domain.ChangeAdded, Path: tc.To.Name})
			}
		case merkletrie.Delete:
			if id, ok := recordID(tc.From.Name); ok {
				changes = append(changes, domain.Change{RecordID: id, Kind: domain.ChangeRemoved, Path: tc.From.Name})
			}
		case merkletrie.Modify:
			if id, ok := recordID(tc.To.Name); ok {
				changes = append(changes, domain.Change{RecordID: id, Kind: domain.ChangeModified, Path: tc.To.Name})
			}
		}
	}
	return changes, nil
}

// recordID extracts the CVE id from a record file path inside the mirror,
// e.g. "cves/2024/CVE-2024-3094.json" -> "CVE-2024-3094".
func recordID(path string) (string, bool) {
	if !strings.HasPrefix(path, recordDir+"/") {
		return "", false
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, recordPrefix) || !strings.HasSuffix(base, recordSuffix) {
		return "", false
	}
	return strings.TrimSuffix(base, recordSuffix), true
}

// ReadRecord returns the raw bytes of a record file inside the mirror.
func (s *GitSource) ReadRecord(path string) ([]byte, error) {
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("record path escapes mirror: %s", path)
	}
	return os.ReadFile(filepath.Join(s.mirror, clean))
}

// Commit persists the ingested revision atomically once a pass succeeds.
func (s *GitSource) Commit(revision string) error {
	tmp := s.revisionPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(revision), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.revisionPath())
}

func (s *GitSource) lastRevision() string {
	data, err := os.ReadFile(s.revisionPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// loadEnrichment reads the KEV catalog and EPSS scores shipped alongside the
// record files. Both are optional; a missing file yields an empty map.
func (s *GitSource) loadEnrichment() (ports.Enrichment, error) {
	enrich := ports.Enrichment{
		KEV:  make(map[string]bool),
		EPSS: make(map[string]float64),
	}

	if data, err := os.ReadFile(filepath.Join(s.mirror, kevFile)); err == nil {
		var catalog struct {
			Vulnerabilities []struct {
				CVEID string `json:"cveID"`
			} `json:"vulnerabilities"`
		}
		if err := json.Unmarshal(data, &catalog); err != nil {
			return enrich, fmt.Errorf("malformed KEV catalog: %w", err)
		}
		for _, v := range catalog.Vulnerabilities {
			enrich.KEV[v.CVEID] = true
		}
	}

	if data, err := os.ReadFile(filepath.Join(s.mirror, epssFile)); err == nil {
		var scores struct {
			Scores map[string]float64 `json:"scores"`
		}
		if err := json.Unmarshal(data, &scores); err != nil {
			return enrich, fmt.Errorf("malformed EPSS scores: %w", err)
		}
		enrich.EPSS = scores.Scores
	}

	return enrich, nil
}
