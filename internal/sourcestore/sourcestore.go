// Package sourcestore implements the SourceStore external collaborator from
// spec §6: given (gamespace, project, commit), return the ordered list of
// (filename, source_text) pairs a Build compiles (spec §3 "Source
// snapshot"). The core only depends on the SourceStore interface; GitStore
// is the default implementation, backing it with an actual git checkout.
package sourcestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
)

// File is one entry of a source snapshot.
type File struct {
	Name string
	Text string
}

// SourceStore resolves a (gamespace, project, commit) triple to its ordered
// source snapshot.
type SourceStore interface {
	GetSnapshot(ctx context.Context, gamespace, project, commit string) ([]File, error)
}

// GitStore is the default SourceStore: a local clone per (gamespace,
// project) under RootDir, fetched and checked out to the requested commit on
// every call. Concurrent requests for the same repo are serialized with a
// per-repo mutex so two callers don't race a checkout against each other.
type GitStore struct {
	RootDir string
	RepoURL func(gamespace, project string) string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGitStore returns a GitStore rooted at dir, resolving repo URLs with
// urlFn.
func NewGitStore(dir string, urlFn func(gamespace, project string) string) *GitStore {
	return &GitStore{RootDir: dir, RepoURL: urlFn, locks: map[string]*sync.Mutex{}}
}

func (g *GitStore) repoLock(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

// GetSnapshot clones (or reuses) the repository for (gamespace, project),
// checks out commit, and returns every *.js file under the worktree in
// lexical listing order — the stable, deterministic evaluation order spec §3
// requires.
func (g *GitStore) GetSnapshot(ctx context.Context, gamespace, project, commit string) ([]File, error) {
	key := gamespace + "/" + project
	lock := g.repoLock(key)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(g.RootDir, gamespace, project)
	repo, err := git.PlainOpen(dir)
	if err != nil {
		repo, err = git.PlainCloneContext(ctx, dir, &git.CloneOptions{URL: g.RepoURL(gamespace, project)})
		if err != nil {
			return nil, fmt.Errorf("sourcestore: cloning %s/%s: %w", gamespace, project, err)
		}
	} else {
		remote, rerr := repo.Remote("origin")
		if rerr == nil {
			_ = remote.FetchContext(ctx, &git.FetchOptions{})
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("sourcestore: opening worktree for %s/%s: %w", gamespace, project, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(commit)}); err != nil {
		return nil, fmt.Errorf("sourcestore: checking out %s: %w", commit, err)
	}

	var files []File
	err = filepath.WalkDir(wt.Filesystem.Root(), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".js") {
			return nil
		}
		b, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		rel, rerr := filepath.Rel(wt.Filesystem.Root(), path)
		if rerr != nil {
			rel = path
		}
		files = append(files, File{Name: rel, Text: string(b)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sourcestore: walking worktree: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
