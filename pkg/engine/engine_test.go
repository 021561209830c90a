package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"pixelgardenlabs.io/pgl-publish/pkg/config"
	"pixelgardenlabs.io/pgl-publish/pkg/metafile"
	"pixelgardenlabs.io/pgl-publish/pkg/preflight"
	"pixelgardenlabs.io/pgl-publish/pkg/remotesync"
	"pixelgardenlabs.io/pgl-publish/pkg/sitearchive"
)

// ---- fakes ----

type fakeValidator struct {
	report preflight.Report
	err    error
	tasks  []preflight.ValidateTask
}

func (f *fakeValidator) Run(_ context.Context, task preflight.ValidateTask) (preflight.Report, error) {
	f.tasks = append(f.tasks, task)
	return f.report, f.err
}

type fakeSyncer struct {
	mu      sync.Mutex
	tasks   []remotesync.SyncTask
	pushErr error
	pullErr error
	outcome remotesync.SyncOutcome
}

func (f *fakeSyncer) Synchronize(_ context.Context, task remotesync.SyncTask) (remotesync.SyncOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	if task.Direction == remotesync.DirectionPush && f.pushErr != nil {
		return remotesync.SyncOutcome{}, f.pushErr
	}
	if task.Direction == remotesync.DirectionPull && f.pullErr != nil {
		return remotesync.SyncOutcome{}, f.pullErr
	}
	return f.outcome, nil
}

type fakeArchiver struct {
	tasks []sitearchive.ArchiveTask
	err   error
}

func (f *fakeArchiver) Create(_ context.Context, task sitearchive.ArchiveTask) (sitearchive.ArchiveResult, error) {
	f.tasks = append(f.tasks, task)
	if f.err != nil {
		return sitearchive.ArchiveResult{}, f.err
	}
	return sitearchive.ArchiveResult{Path: "/archives/blog/blog_2026-08-31.zip", FileCount: 7}, nil
}

type fakeReconciler struct {
	calls []string
	errs  map[string]error
}

func (f *fakeReconciler) call(name string) error {
	f.calls = append(f.calls, name)
	return f.errs[name]
}

func (f *fakeReconciler) Seed(context.Context, string, string) error   { return f.call("seed") }
func (f *fakeReconciler) UpdateSnapshot(context.Context, string, string) error {
	return f.call("updateSnapshot")
}
func (f *fakeReconciler) PrepareFresh(string) error { return f.call("prepareFresh") }
func (f *fakeReconciler) AdoptFolder(context.Context, string, string) error {
	return f.call("adopt")
}

type noopLock struct{}

func (noopLock) Release() {}

type harness struct {
	runner     *Runner
	validator  *fakeValidator
	syncer     *fakeSyncer
	archiver   *fakeArchiver
	reconciler *fakeReconciler
	receipts   []metafile.Receipt
}

func newHarness() *harness {
	h := &harness{
		validator:  &fakeValidator{},
		syncer:     &fakeSyncer{outcome: remotesync.SyncOutcome{FilesTransferred: 5}},
		archiver:   &fakeArchiver{},
		reconciler: &fakeReconciler{errs: map[string]error{}},
	}
	h.runner = NewRunner(h.validator, h.syncer, h.archiver, h.reconciler)
	h.runner.writeReceipt = func(_ string, receipt metafile.Receipt) error {
		h.receipts = append(h.receipts, receipt)
		return nil
	}
	h.runner.acquireLock = func(context.Context, string, string) (releaser, error) {
		return noopLock{}, nil
	}
	return h
}

func wikiProfile() config.SiteProfile {
	return config.SiteProfile{
		Name:            "blog",
		ExportDir:       "/exports/blog",
		HasWiki:         true,
		WikiSnapshotDir: "/snapshots/blog_wiki",
		WikiRemotePath:  "/wiki",
		Endpoint:        config.EndpointConfig{Host: "example.com", Username: "deploy", Password: "pw", RemotePath: "/"},
		Archive:         config.ArchivePolicyConfig{Dir: "/archives", Format: "zip", Collision: "overwrite"},
	}
}

func plainProfile() config.SiteProfile {
	p := wikiProfile()
	p.Name = "landing"
	p.HasWiki = false
	p.WikiSnapshotDir = ""
	p.WikiRemotePath = ""
	return p
}

func statuses(run *WorkflowRun) []StepStatus {
	out := make([]StepStatus, len(run.Steps))
	for i, s := range run.Steps {
		out[i] = s.Status
	}
	return out
}

// ---- tests ----

func TestRunWithWikiSucceeds(t *testing.T) {
	h := newHarness()

	run, err := h.runner.Run(context.Background(), PublishTask{Profile: wikiProfile()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Outcome != RunSucceeded {
		t.Errorf("expected succeeded outcome, got %v", run.Outcome)
	}
	if len(run.Steps) != 6 {
		t.Fatalf("expected 6 step results, got %d", len(run.Steps))
	}
	for _, s := range run.Steps {
		if s.Status != StatusSucceeded {
			t.Errorf("expected step %v to succeed, got %v", s.Kind, s.Status)
		}
	}
	if !run.LivePublished {
		t.Error("expected live publish flag after successful push")
	}

	// Seeding runs before the push; the pull mirrors with deletion.
	if got := h.reconciler.calls; len(got) < 1 || got[0] != "seed" {
		t.Errorf("expected seed call first, got %v", got)
	}
	if len(h.syncer.tasks) != 2 {
		t.Fatalf("expected push and pull, got %d sync calls", len(h.syncer.tasks))
	}
	push := h.syncer.tasks[0]
	if push.Direction != remotesync.DirectionPush || len(push.Excludes) == 0 || push.Excludes[0] != "wiki/" {
		t.Errorf("expected push excluding wiki/, got %+v", push)
	}
	if !push.DeleteExtraneous {
		t.Errorf("expected mirroring push removing stale remote files, got %+v", push)
	}
	pull := h.syncer.tasks[1]
	if pull.Direction != remotesync.DirectionPull || !pull.DeleteExtraneous {
		t.Errorf("expected mirroring pull, got %+v", pull)
	}

	if len(h.receipts) != 1 {
		t.Fatalf("expected one receipt, got %d", len(h.receipts))
	}
	if h.receipts[0].RunID != run.ID || !h.receipts[0].WikiSynced {
		t.Errorf("unexpected receipt: %+v", h.receipts[0])
	}
}

func TestRunWithoutWikiSkipsWikiSteps(t *testing.T) {
	h := newHarness()

	run, err := h.runner.Run(context.Background(), PublishTask{Profile: plainProfile()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(run.Steps) != 3 {
		t.Fatalf("expected 3 step results, got %d", len(run.Steps))
	}
	wantKinds := []StepKind{StepValidate, StepPush, StepArchive}
	for i, want := range wantKinds {
		if run.Steps[i].Kind != want {
			t.Errorf("step %d: expected %v, got %v", i, want, run.Steps[i].Kind)
		}
	}
	if len(h.reconciler.calls) != 0 {
		t.Errorf("expected no reconciler calls, got %v", h.reconciler.calls)
	}
	if len(h.syncer.tasks) != 1 {
		t.Fatalf("expected single push, got %d sync calls", len(h.syncer.tasks))
	}
	for _, pattern := range h.syncer.tasks[0].Excludes {
		if pattern == "wiki/" {
			t.Error("plain sites must not exclude wiki/ from the push")
		}
	}
}

func TestRunFatalValidationTouchesNothing(t *testing.T) {
	h := newHarness()
	h.validator.report = preflight.Report{Findings: []preflight.Finding{{
		Severity: preflight.SeverityFatal,
		Category: "export",
		Message:  "export directory missing",
	}}}

	run, err := h.runner.Run(context.Background(), PublishTask{Profile: wikiProfile()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Outcome != RunFailed {
		t.Errorf("expected failed outcome, got %v", run.Outcome)
	}
	want := []StepStatus{StatusFailed, StatusSkipped, StatusSkipped, StatusSkipped, StatusSkipped, StatusSkipped}
	got := statuses(run)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if len(h.syncer.tasks) != 0 || len(h.archiver.tasks) != 0 || len(h.reconciler.calls) != 0 {
		t.Error("expected no mutating calls after fatal validation")
	}
	if run.LivePublished {
		t.Error("expected no live publish")
	}
}

func TestRunMissingSnapshotReportedAsActionRequired(t *testing.T) {
	h := newHarness()
	h.validator.report = preflight.Report{Findings: []preflight.Finding{{
		Severity: preflight.SeverityActionRequired,
		Category: "wiki",
		Message:  "wiki snapshot directory missing",
		Remedy:   "run publish with --wiki-init=remote",
	}}}

	run, err := h.runner.Run(context.Background(), PublishTask{Profile: wikiProfile()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// First-time setup is a pause for the operator, not a failure.
	if run.Outcome != RunActionRequired {
		t.Errorf("expected action-required outcome, got %v", run.Outcome)
	}
	if !strings.Contains(run.Steps[0].Diagnostic, "--wiki-init") {
		t.Errorf("expected remedy in diagnostic, got %q", run.Steps[0].Diagnostic)
	}
	if len(h.syncer.tasks) != 0 || len(h.archiver.tasks) != 0 || len(h.reconciler.calls) != 0 {
		t.Error("expected no mutating calls while paused")
	}
	for _, s := range run.Steps[1:] {
		if s.Status != StatusSkipped {
			t.Errorf("expected remaining steps skipped, got %v for %v", s.Status, s.Kind)
		}
	}
}

func TestRunPartialPullFailsAndPreservesSnapshot(t *testing.T) {
	h := newHarness()
	h.syncer.pullErr = fmt.Errorf("%w after 3 file(s)", remotesync.ErrPartialTransfer)

	run, err := h.runner.Run(context.Background(), PublishTask{Profile: wikiProfile()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Outcome != RunFailed {
		t.Errorf("expected failed outcome, got %v", run.Outcome)
	}
	want := []StepStatus{StatusSucceeded, StatusSucceeded, StatusSucceeded, StatusFailed, StatusSkipped, StatusSkipped}
	got := statuses(run)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	for _, call := range h.reconciler.calls {
		if call == "updateSnapshot" {
			t.Error("snapshot must not be updated after a failed pull")
		}
	}
	if len(h.archiver.tasks) != 0 {
		t.Error("expected no archive after failed pull")
	}
	// The push went through before the pull failed.
	if !run.LivePublished {
		t.Error("expected live publish flag to disclose the partial publish")
	}
}

func TestRunPartialPushSetsLivePublished(t *testing.T) {
	h := newHarness()
	h.syncer.pushErr = fmt.Errorf("%w after 1 file(s)", remotesync.ErrPartialTransfer)

	run, err := h.runner.Run(context.Background(), PublishTask{Profile: plainProfile()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Outcome != RunFailed {
		t.Errorf("expected failed outcome, got %v", run.Outcome)
	}
	if !run.LivePublished {
		t.Error("a partial push already changed the live site")
	}
}

func TestRunConnectionFailedPushLeavesLiveUntouched(t *testing.T) {
	h := newHarness()
	h.syncer.pushErr = remotesync.ErrConnectionFailed

	run, err := h.runner.Run(context.Background(), PublishTask{Profile: plainProfile()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.LivePublished {
		t.Error("expected no live publish after connection failure")
	}
}

func TestRunArchiveFailure(t *testing.T) {
	h := newHarness()
	h.archiver.err = sitearchive.ErrInsufficientDiskSpace

	run, err := h.runner.Run(context.Background(), PublishTask{Profile: plainProfile()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Outcome != RunFailed {
		t.Errorf("expected failed outcome, got %v", run.Outcome)
	}
	// The push succeeded; the live site did change even though the run failed.
	if !run.LivePublished {
		t.Error("expected live publish flag")
	}
	if len(h.receipts) != 0 {
		t.Error("expected no receipt for failed archive")
	}
}

func TestRunCancellationBetweenSteps(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())

	task := PublishTask{
		Profile: wikiProfile(),
		Observer: Observer{
			OnStepDone: func(_ int, result StepResult) {
				if result.Kind == StepPush {
					cancel()
				}
			},
		},
	}

	run, err := h.runner.Run(ctx, task)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Outcome != RunAborted {
		t.Errorf("expected aborted outcome, got %v", run.Outcome)
	}
	want := []StepStatus{StatusSucceeded, StatusSucceeded, StatusSucceeded, StatusAborted, StatusAborted, StatusAborted}
	got := statuses(run)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestRunDryRunValidatesOnly(t *testing.T) {
	h := newHarness()

	run, err := h.runner.Run(context.Background(), PublishTask{Profile: wikiProfile(), DryRun: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Outcome != RunSucceeded {
		t.Errorf("expected succeeded outcome, got %v", run.Outcome)
	}
	if run.Steps[0].Status != StatusSucceeded {
		t.Errorf("expected validation to run, got %v", run.Steps[0].Status)
	}
	for _, s := range run.Steps[1:] {
		if s.Status != StatusSkipped {
			t.Errorf("expected step %v skipped in dry run, got %v", s.Kind, s.Status)
		}
	}
	if len(h.syncer.tasks) != 0 || len(h.archiver.tasks) != 0 {
		t.Error("dry run must not touch the server or the archive")
	}
}

func TestRunRejectsConcurrentSameSite(t *testing.T) {
	h := newHarness()

	if !h.runner.claimSite("blog") {
		t.Fatal("could not claim site for test setup")
	}
	defer h.runner.releaseSite("blog")

	_, err := h.runner.Run(context.Background(), PublishTask{Profile: wikiProfile()})
	if !errors.Is(err, ErrRunActive) {
		t.Errorf("expected ErrRunActive, got %v", err)
	}
}

func TestRunMissingExportDirReachesValidation(t *testing.T) {
	h := newHarness()
	h.runner.acquireLock = func(context.Context, string, string) (releaser, error) {
		return nil, fmt.Errorf("failed to access lock file: %w", os.ErrNotExist)
	}
	h.validator.report = preflight.Report{Findings: []preflight.Finding{{
		Severity: preflight.SeverityFatal,
		Category: "export",
		Message:  "export directory missing",
	}}}

	run, err := h.runner.Run(context.Background(), PublishTask{Profile: wikiProfile()})
	if err != nil {
		t.Fatalf("expected the run to proceed to validation, got %v", err)
	}
	if run.Outcome != RunFailed {
		t.Errorf("expected failed outcome, got %v", run.Outcome)
	}
	if got := statuses(run); got[0] != StatusFailed {
		t.Errorf("expected validation step to fail, got %v", got[0])
	}
}

func TestRunWikiInitRemotePreparesFreshSnapshot(t *testing.T) {
	h := newHarness()

	run, err := h.runner.Run(context.Background(), PublishTask{
		Profile:  wikiProfile(),
		WikiInit: WikiInitRemote,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Outcome != RunSucceeded {
		t.Fatalf("expected succeeded outcome, got %v", run.Outcome)
	}

	if len(h.reconciler.calls) < 2 || h.reconciler.calls[0] != "prepareFresh" || h.reconciler.calls[1] != "seed" {
		t.Errorf("expected prepareFresh then seed, got %v", h.reconciler.calls)
	}
	if len(h.validator.tasks) != 1 || !h.validator.tasks[0].AllowMissingWikiSnapshot {
		t.Error("expected validator to allow a missing snapshot in init mode")
	}
}

func TestRunWikiInitAdoptUsesSourceFolder(t *testing.T) {
	h := newHarness()

	run, err := h.runner.Run(context.Background(), PublishTask{
		Profile:        wikiProfile(),
		WikiInit:       WikiInitAdopt,
		WikiInitSource: "/old/wiki-backup",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Outcome != RunSucceeded {
		t.Fatalf("expected succeeded outcome, got %v", run.Outcome)
	}
	if len(h.reconciler.calls) < 2 || h.reconciler.calls[0] != "adopt" {
		t.Errorf("expected adopt call first, got %v", h.reconciler.calls)
	}
}

func TestRunObserverSeesWholePlan(t *testing.T) {
	h := newHarness()
	h.syncer.pushErr = remotesync.ErrConnectionFailed

	var done []StepResult
	_, err := h.runner.Run(context.Background(), PublishTask{
		Profile: wikiProfile(),
		Observer: Observer{
			OnStepDone: func(_ int, result StepResult) { done = append(done, result) },
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(done) != 6 {
		t.Errorf("expected observer to see all 6 steps, got %d", len(done))
	}
}

func TestPlanFor(t *testing.T) {
	if got := PlanFor(true); len(got) != 6 {
		t.Errorf("expected 6 steps with wiki, got %d", len(got))
	}
	if got := PlanFor(false); len(got) != 3 {
		t.Errorf("expected 3 steps without wiki, got %d", len(got))
	}
}
