package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

const remoteName = "origin"

// Publisher deploys a finished build.
type Publisher interface {
	Publish(ctx context.Context, outputDir, buildID string) (*Result, error)
}

// Result describes a publish.
type Result struct {
	Commit  string
	Changed bool
	Pushed  bool
}

// GitPublisher mirrors the output directory into a checkout and commits it
// with the build id as message.
type GitPublisher struct {
	cfg config.GitPublishConfig
	now func() time.Time
}

// NewGitPublisher creates a publisher for cfg.
func NewGitPublisher(cfg config.GitPublishConfig) *GitPublisher {
	return &GitPublisher{cfg: cfg, now: time.Now}
}

// Publish syncs outputDir into the checkout, commits when anything changed and
// pushes the branch when a remote is configured.
func (p *GitPublisher) Publish(ctx context.Context, outputDir, buildID string) (*Result, error) {
	branch := plumbing.NewBranchReferenceName(p.cfg.Branch)

	repo, err := p.openOrInit(branch)
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, classify(err, "worktree")
	}
	if err := checkoutBranch(repo, wt, branch); err != nil {
		return nil, err
	}

	if err := syncTree(outputDir, p.cfg.RepoDir); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryPublish, "sync output into publish checkout").
			WithContext("output_dir", outputDir).Build()
	}

	changed, err := stageAll(wt)
	if err != nil {
		return nil, err
	}

	res := &Result{Changed: changed}
	if changed {
		hash, err := wt.Commit(buildID, &git.CommitOptions{
			Author: &object.Signature{Name: p.cfg.AuthorName, Email: p.cfg.AuthorEmail, When: p.now()},
		})
		if err != nil {
			return nil, classify(err, "commit")
		}
		res.Commit = hash.String()
		slog.Info("Published build", logfields.BuildID(buildID), slog.String("commit", hash.String()[:8]))
	} else if head, err := repo.Head(); err == nil {
		res.Commit = head.Hash().String()
		slog.Info("Publish skipped, output unchanged", logfields.BuildID(buildID))
	}

	if p.cfg.Remote == "" || res.Commit == "" {
		return res, nil
	}
	if err := p.push(ctx, repo, branch); err != nil {
		return res, err
	}
	res.Pushed = true
	return res, nil
}

func (p *GitPublisher) openOrInit(branch plumbing.ReferenceName) (*git.Repository, error) {
	repo, err := git.PlainOpen(p.cfg.RepoDir)
	switch {
	case err == nil:
	case errors.Is(err, git.ErrRepositoryNotExists):
		if mkErr := os.MkdirAll(p.cfg.RepoDir, 0o755); mkErr != nil {
			return nil, ferrors.WrapError(mkErr, ferrors.CategoryFileSystem, "create publish checkout").
				WithContext("path", p.cfg.RepoDir).Build()
		}
		repo, err = git.PlainInitWithOptions(p.cfg.RepoDir, &git.PlainInitOptions{
			InitOptions: git.InitOptions{DefaultBranch: branch},
		})
		if err != nil {
			return nil, classify(err, "init")
		}
		slog.Info("Initialized publish checkout", logfields.Path(p.cfg.RepoDir))
	default:
		return nil, classify(err, "open")
	}

	if p.cfg.Remote == "" {
		return repo, nil
	}
	remote, err := repo.Remote(remoteName)
	switch {
	case errors.Is(err, git.ErrRemoteNotFound):
		_, err = repo.CreateRemote(&gitcfg.RemoteConfig{Name: remoteName, URLs: []string{p.cfg.Remote}})
		if err != nil {
			return nil, classify(err, "create remote")
		}
	case err != nil:
		return nil, classify(err, "remote")
	case len(remote.Config().URLs) == 0 || remote.Config().URLs[0] != p.cfg.Remote:
		if err := repo.DeleteRemote(remoteName); err != nil {
			return nil, classify(err, "replace remote")
		}
		if _, err := repo.CreateRemote(&gitcfg.RemoteConfig{Name: remoteName, URLs: []string{p.cfg.Remote}}); err != nil {
			return nil, classify(err, "replace remote")
		}
	}
	return repo, nil
}

// checkoutBranch moves HEAD to branch. An unborn HEAD is pointed at the branch
// so the first commit creates it.
func checkoutBranch(repo *git.Repository, wt *git.Worktree, branch plumbing.ReferenceName) error {
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branch)); err != nil {
			return classify(err, "set head")
		}
		return nil
	}
	if err != nil {
		return classify(err, "head")
	}
	if head.Name() == branch {
		return nil
	}
	_, refErr := repo.Reference(branch, true)
	opts := &git.CheckoutOptions{Branch: branch, Force: true, Create: errors.Is(refErr, plumbing.ErrReferenceNotFound)}
	if err := wt.Checkout(opts); err != nil {
		return classify(err, "checkout")
	}
	return nil
}

// stageAll stages every worktree change and reports whether there was any.
func stageAll(wt *git.Worktree) (bool, error) {
	status, err := wt.Status()
	if err != nil {
		return false, classify(err, "status")
	}
	changed := false
	for path, st := range status {
		switch st.Worktree {
		case git.Unmodified:
			if st.Staging != git.Unmodified {
				changed = true
			}
			continue
		case git.Deleted:
			if _, err := wt.Remove(path); err != nil {
				return false, classify(err, "remove")
			}
		default:
			if _, err := wt.Add(path); err != nil {
				return false, classify(err, "add")
			}
		}
		changed = true
	}
	return changed, nil
}

func (p *GitPublisher) push(ctx context.Context, repo *git.Repository, branch plumbing.ReferenceName) error {
	spec := gitcfg.RefSpec(fmt.Sprintf("+%s:%s", branch, branch))
	err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitcfg.RefSpec{spec},
		Auth:       p.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classify(err, "push")
	}
	slog.Info("Pushed publish branch", slog.String("branch", branch.Short()), logfields.URL(p.cfg.Remote))
	return nil
}

func (p *GitPublisher) auth() transport.AuthMethod {
	if p.cfg.Token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "token", Password: p.cfg.Token}
}

// syncTree makes dst mirror src, leaving dst/.git untouched.
func syncTree(src, dst string) error {
	entries, err := os.ReadDir(dst)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
