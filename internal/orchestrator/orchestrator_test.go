package orchestrator_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	gh "github.com/rancher/api-commit-action/internal/github"
	"github.com/rancher/api-commit-action/internal/intent"
	"github.com/rancher/api-commit-action/internal/orchestrator"
)

type createdTree struct {
	repo    string
	base    string
	entries []gh.TreeEntry
}

type createdCommit struct {
	repo  string
	input gh.CreateCommitOptions
}

type createdBranch struct {
	repo   string
	branch string
	sha    string
}

// fakeGHClient keeps just enough remote state for successive runs to build on
// each other: branch tips per repository and the tree behind each commit.
type fakeGHClient struct {
	calls []string

	blobs      map[string]string
	trees      []createdTree
	commits    []createdCommit
	created    []createdBranch
	updated    []createdBranch
	prInputs   []gh.CreatePROptions
	branches   map[string]string
	commitTree map[string]string

	blobErr   error
	updateErr error
}

func newFakeGHClient() *fakeGHClient {
	return &fakeGHClient{
		blobs:      map[string]string{},
		branches:   map[string]string{},
		commitTree: map[string]string{},
	}
}

func (f *fakeGHClient) seedBranch(repo, branch, commit, tree string) {
	f.branches[repo+"@"+branch] = commit
	f.commitTree[commit] = tree
}

func (f *fakeGHClient) CreateBlob(_ context.Context, owner, repo, content, encoding string) (string, error) {
	f.calls = append(f.calls, "CreateBlob")
	if f.blobErr != nil {
		return "", f.blobErr
	}
	if encoding != gh.BlobEncodingBase64 {
		return "", fmt.Errorf("unexpected encoding %q", encoding)
	}
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", err
	}
	sha := fmt.Sprintf("blob-%d", len(f.blobs)+1)
	f.blobs[sha] = string(decoded)
	return sha, nil
}

func (f *fakeGHClient) CreateTree(_ context.Context, owner, repo, baseTree string, entries []gh.TreeEntry) (string, error) {
	f.calls = append(f.calls, "CreateTree")
	f.trees = append(f.trees, createdTree{repo: owner + "/" + repo, base: baseTree, entries: entries})
	return fmt.Sprintf("tree-%d", len(f.trees)), nil
}

func (f *fakeGHClient) CreateCommit(_ context.Context, owner, repo string, input gh.CreateCommitOptions) (string, error) {
	f.calls = append(f.calls, "CreateCommit")
	f.commits = append(f.commits, createdCommit{repo: owner + "/" + repo, input: input})
	sha := fmt.Sprintf("commit-%d", len(f.commits))
	f.commitTree[sha] = input.Tree
	return sha, nil
}

func (f *fakeGHClient) GetBranchSHA(_ context.Context, owner, repo, branch string) (string, error) {
	f.calls = append(f.calls, "GetBranchSHA")
	sha, ok := f.branches[owner+"/"+repo+"@"+branch]
	if !ok {
		return "", gh.ErrBranchNotFound
	}
	return sha, nil
}

func (f *fakeGHClient) GetCommitTree(_ context.Context, owner, repo, commitSHA string) (string, error) {
	f.calls = append(f.calls, "GetCommitTree")
	tree, ok := f.commitTree[commitSHA]
	if !ok {
		return "", fmt.Errorf("unknown commit %s", commitSHA)
	}
	return tree, nil
}

func (f *fakeGHClient) CreateBranch(_ context.Context, owner, repo, branch, fromSHA string) error {
	f.calls = append(f.calls, "CreateBranch")
	key := owner + "/" + repo + "@" + branch
	if _, exists := f.branches[key]; exists {
		return errors.New("Reference already exists")
	}
	f.branches[key] = fromSHA
	f.created = append(f.created, createdBranch{repo: owner + "/" + repo, branch: branch, sha: fromSHA})
	return nil
}

func (f *fakeGHClient) UpdateBranch(_ context.Context, owner, repo, branch, toSHA string) error {
	f.calls = append(f.calls, "UpdateBranch")
	if f.updateErr != nil {
		return f.updateErr
	}
	f.branches[owner+"/"+repo+"@"+branch] = toSHA
	f.updated = append(f.updated, createdBranch{repo: owner + "/" + repo, branch: branch, sha: toSHA})
	return nil
}

func (f *fakeGHClient) CreatePullRequest(_ context.Context, owner, repo string, input gh.CreatePROptions) (gh.PullRequest, error) {
	f.calls = append(f.calls, "CreatePullRequest")
	f.prInputs = append(f.prInputs, input)
	number := len(f.prInputs) + 41
	return gh.PullRequest{
		URL:     fmt.Sprintf("https://api.github.com/repos/%s/%s/pulls/%d", owner, repo, number),
		HTMLURL: fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repo, number),
		Number:  number,
		Head:    input.Head,
		Base:    input.Base,
	}, nil
}

// fakeReader serves changed paths from a temporary directory standing in for the
// repository root.
type fakeReader struct {
	root  string
	paths []string
	head  string
	tree  string
	err   error
}

func (r *fakeReader) TopLevel(context.Context) (string, error) { return r.root, r.err }

func (r *fakeReader) ChangedPaths(context.Context) ([]string, error) { return r.paths, r.err }

func (r *fakeReader) HeadCommit(context.Context) (string, error) { return r.head, r.err }

func (r *fakeReader) HeadTree(context.Context) (string, error) { return r.tree, r.err }

func (r *fakeReader) write(path, content string, mode os.FileMode) {
	full := filepath.Join(r.root, filepath.FromSlash(path))
	Expect(os.MkdirAll(filepath.Dir(full), 0o755)).To(Succeed())
	Expect(os.WriteFile(full, []byte(content), mode)).To(Succeed())
	Expect(os.Chmod(full, mode)).To(Succeed())
	r.paths = append(r.paths, path)
}

func (r *fakeReader) symlink(path, target string) {
	full := filepath.Join(r.root, filepath.FromSlash(path))
	Expect(os.MkdirAll(filepath.Dir(full), 0o755)).To(Succeed())
	Expect(os.Symlink(target, full)).To(Succeed())
	r.paths = append(r.paths, path)
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx    context.Context
		client *fakeGHClient
		reader *fakeReader
		cfg    orchestrator.Config
		repo   intent.Repository
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = newFakeGHClient()
		reader = &fakeReader{root: GinkgoT().TempDir(), head: "C0", tree: "T0"}
		cfg = orchestrator.Config{}
		repo = intent.Repository{Owner: "octo", Name: "repo"}
	})

	newPRIntent := func() intent.NewPullRequest {
		return intent.NewPullRequest{
			Title:        "Update",
			Body:         intent.DefaultPullRequestBody,
			BaseBranch:   "main",
			SourceBranch: intent.SourceBranchName("auto/", time.Date(2024, time.March, 1, 14, 5, 9, 123456000, time.UTC)),
			Repo:         repo,
		}
	}

	It("creates a blob and tree entry per changed file with the right modes", func() {
		reader.write("src/a.py", "print('a')\n", 0o644)
		reader.write("bin/run.sh", "#!/bin/sh\necho run\n", 0o755)

		result, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, newPRIntent())
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Plan.Entries).To(Equal([]gh.TreeEntry{
			{Path: "src/a.py", Mode: gh.ModeFile, Type: gh.TypeBlob, SHA: "blob-1"},
			{Path: "bin/run.sh", Mode: gh.ModeExecutable, Type: gh.TypeBlob, SHA: "blob-2"},
		}))
		Expect(client.blobs).To(HaveKeyWithValue("blob-1", "print('a')\n"))
		Expect(client.blobs).To(HaveKeyWithValue("blob-2", "#!/bin/sh\necho run\n"))
		Expect(client.trees).To(HaveLen(1))
		Expect(client.trees[0].entries).To(Equal(result.Plan.Entries))
	})

	It("uploads symlinks as their target path instead of following them", func() {
		reader.write("bin/run.sh", "#!/bin/sh\n", 0o755)
		reader.symlink("run", "bin/run.sh")
		reader.symlink("tools", "bin")

		result, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, newPRIntent())
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Plan.Entries).To(Equal([]gh.TreeEntry{
			{Path: "bin/run.sh", Mode: gh.ModeExecutable, Type: gh.TypeBlob, SHA: "blob-1"},
			{Path: "run", Mode: gh.ModeSymlink, Type: gh.TypeBlob, SHA: "blob-2"},
			{Path: "tools", Mode: gh.ModeSymlink, Type: gh.TypeBlob, SHA: "blob-3"},
		}))
		Expect(client.blobs).To(HaveKeyWithValue("blob-2", "bin/run.sh"))
		Expect(client.blobs).To(HaveKeyWithValue("blob-3", "bin"))
	})

	It("makes no remote calls when nothing changed", func() {
		result, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, newPRIntent())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.NoChanges).To(BeTrue())
		Expect(result.Published()).To(BeFalse())
		Expect(client.calls).To(BeEmpty())
	})

	It("makes no remote calls in dry run mode", func() {
		reader.write("README.md", "hello\n", 0o644)
		cfg.DryRun = true

		result, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, newPRIntent())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.DryRun).To(BeTrue())
		Expect(result.Files).To(HaveLen(1))
		Expect(result.Branch).To(Equal("auto/2024_03_01-14_05_09_123456"))
		Expect(client.calls).To(BeEmpty())
	})

	It("opens a pull request from a new branch based on local HEAD", func() {
		reader.write("src/a.py", "print('a')\n", 0o644)
		reader.write("bin/run.sh", "#!/bin/sh\n", 0o755)
		target := newPRIntent()

		result, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, target)
		Expect(err).NotTo(HaveOccurred())

		Expect(client.calls).To(Equal([]string{
			"CreateBlob", "CreateBlob", "CreateTree", "CreateCommit", "CreateBranch", "CreatePullRequest",
		}))
		Expect(client.trees[0].base).To(Equal("T0"))
		Expect(client.commits[0].input).To(Equal(gh.CreateCommitOptions{
			Message: orchestrator.DefaultCommitMessage,
			Tree:    "tree-1",
			Parents: []string{"C0"},
		}))
		Expect(client.created).To(Equal([]createdBranch{{repo: "octo/repo", branch: "auto/2024_03_01-14_05_09_123456", sha: "commit-1"}}))
		Expect(client.prInputs).To(Equal([]gh.CreatePROptions{{
			Title:               "Update",
			Body:                intent.DefaultPullRequestBody,
			Head:                "auto/2024_03_01-14_05_09_123456",
			Base:                "main",
			MaintainerCanModify: true,
		}}))

		Expect(result.Mode).To(Equal(intent.ModeNewPullRequest))
		Expect(result.Published()).To(BeTrue())
		Expect(result.Plan.ParentSHA).To(Equal("C0"))
		Expect(result.Plan.BaseTreeSHA).To(Equal("T0"))
		Expect(result.Plan.CommitSHA).To(Equal("commit-1"))
		Expect(result.PullRequest).NotTo(BeNil())
		Expect(result.PullRequest.Number).To(Equal(42))
		Expect(result.PullRequest.HTMLURL).To(Equal("https://github.com/octo/repo/pull/42"))
	})

	It("uses the configured commit message", func() {
		reader.write("a.txt", "a", 0o644)
		cfg.CommitMessage = "chore: regenerate"

		_, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, newPRIntent())
		Expect(err).NotTo(HaveOccurred())
		Expect(client.commits[0].input.Message).To(Equal("chore: regenerate"))
	})

	It("fails when the source branch already exists", func() {
		reader.write("a.txt", "a", 0o644)
		target := newPRIntent()
		client.seedBranch("octo/repo", target.SourceBranch, "C9", "T9")

		_, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, target)
		Expect(err).To(MatchError(ContainSubstring("Reference already exists")))
		Expect(client.prInputs).To(BeEmpty())
	})

	Context("pushing to an existing branch", func() {
		var target intent.ExistingBranch

		BeforeEach(func() {
			target = intent.ExistingBranch{
				TargetBranch: "gh-pages",
				TargetRepo:   intent.Repository{Owner: "octo", Name: "site"},
			}
			client.seedBranch("octo/site", "gh-pages", "R1", "RT1")
		})

		It("builds on the remote tip and advances the ref in the target repository", func() {
			reader.write("index.html", "<html></html>", 0o644)

			result, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, target)
			Expect(err).NotTo(HaveOccurred())

			Expect(client.calls).To(Equal([]string{
				"CreateBlob", "GetBranchSHA", "GetCommitTree", "CreateTree", "CreateCommit", "UpdateBranch",
			}))
			Expect(client.trees[0].repo).To(Equal("octo/site"))
			Expect(client.trees[0].base).To(Equal("RT1"))
			Expect(client.commits[0].repo).To(Equal("octo/site"))
			Expect(client.commits[0].input.Parents).To(Equal([]string{"R1"}))
			Expect(client.updated).To(Equal([]createdBranch{{repo: "octo/site", branch: "gh-pages", sha: "commit-1"}}))

			Expect(result.Mode).To(Equal(intent.ModeExistingBranch))
			Expect(result.PullRequest).To(BeNil())
			Expect(result.Branch).To(Equal("gh-pages"))
			Expect(result.Plan.ParentSHA).To(Equal("R1"))
		})

		It("chains sequential runs onto the previous commit", func() {
			reader.write("a.txt", "one", 0o644)
			orch := orchestrator.New(cfg, client, reader, nil)

			first, err := orch.Publish(ctx, target)
			Expect(err).NotTo(HaveOccurred())

			Expect(os.WriteFile(filepath.Join(reader.root, "a.txt"), []byte("two"), 0o644)).To(Succeed())
			second, err := orch.Publish(ctx, target)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Plan.ParentSHA).To(Equal(first.Plan.CommitSHA))
			Expect(second.Plan.BaseTreeSHA).To(Equal(first.Plan.TreeSHA))
			Expect(client.branches).To(HaveKeyWithValue("octo/site@gh-pages", second.Plan.CommitSHA))
		})

		It("fails when the target branch is missing", func() {
			reader.write("a.txt", "a", 0o644)
			target.TargetBranch = "missing"

			_, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, target)
			Expect(errors.Is(err, gh.ErrBranchNotFound)).To(BeTrue())
			Expect(client.calls).NotTo(ContainElement("CreateTree"))
		})

		It("surfaces a rejected ref update", func() {
			reader.write("a.txt", "a", 0o644)
			client.updateErr = errors.New("Update is not a fast forward")

			result, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, target)
			Expect(err).To(MatchError(ContainSubstring("not a fast forward")))
			Expect(result.Plan.CommitSHA).To(Equal("commit-1"))
		})
	})

	It("stops at the first blob failure", func() {
		reader.write("a.txt", "a", 0o644)
		reader.write("b.txt", "b", 0o644)
		client.blobErr = errors.New("boom")

		_, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, newPRIntent())
		Expect(err).To(MatchError(ContainSubstring("create blob for a.txt")))
		Expect(client.calls).To(Equal([]string{"CreateBlob"}))
	})

	It("reports a changed file that cannot be read", func() {
		reader.paths = []string{"gone.txt"}

		_, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, newPRIntent())
		Expect(err).To(MatchError(ContainSubstring("gone.txt")))
		Expect(client.calls).To(BeEmpty())
	})

	It("propagates local git failures", func() {
		reader.err = errors.New("not a git repository")

		_, err := orchestrator.New(cfg, client, reader, nil).Publish(ctx, newPRIntent())
		Expect(err).To(MatchError(ContainSubstring("detect changes")))
	})
})
