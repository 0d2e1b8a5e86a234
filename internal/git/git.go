// Package git shells out to the git CLI for the repository operations the
// pipeline needs: validation, triple-dot diffs, changed-file listing, and
// checking out the head ref before tools run.
package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// refPattern rejects ref arguments that could be mistaken for flags or
// carry shell metacharacters
var refPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/~^-]*$`)

// Repository runs git commands inside one working tree
type Repository struct {
	path   string
	logger *slog.Logger
}

// Open validates that path is a git working tree and returns a handle.
// Validation failures are input errors; the pipeline must not start on them.
func Open(path string) (*Repository, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("invalid repo path %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repo path %s is not a directory", path)
	}

	r := &Repository{
		path:   path,
		logger: slog.Default().With("component", "git"),
	}
	if _, err := r.run(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", path, err)
	}
	return r, nil
}

// Path returns the working tree root
func (r *Repository) Path() string { return r.path }

func validateRef(ref string) error {
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("invalid git ref %q", ref)
	}
	return nil
}

func (r *Repository) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// ResolveRef verifies a ref exists and returns its commit hash
func (r *Repository) ResolveRef(ctx context.Context, ref string) (string, error) {
	if err := validateRef(ref); err != nil {
		return "", err
	}
	out, err := r.run(ctx, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("unknown ref %q: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// Diff returns the triple-dot unified diff between base and head
func (r *Repository) Diff(ctx context.Context, base, head string) (string, error) {
	if err := validateRef(base); err != nil {
		return "", err
	}
	if err := validateRef(head); err != nil {
		return "", err
	}
	out, err := r.run(ctx, "diff", base+"..."+head)
	if err != nil {
		return "", err
	}
	r.logger.Debug("diff computed", "base", base, "head", head, "chars", len(out))
	return out, nil
}

// ListChangedFiles returns the files changed between base and head
func (r *Repository) ListChangedFiles(ctx context.Context, base, head string) ([]string, error) {
	if err := validateRef(base); err != nil {
		return nil, err
	}
	if err := validateRef(head); err != nil {
		return nil, err
	}
	out, err := r.run(ctx, "diff", "--name-only", base+"..."+head)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// Checkout switches the working tree to ref so tools read head content
func (r *Repository) Checkout(ctx context.Context, ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if _, err := r.run(ctx, "checkout", "--quiet", ref); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", ref, err)
	}
	r.logger.Info("checked out ref", "ref", ref)
	return nil
}
