// Package engine orchestrates publish runs. A run executes a fixed step
// plan derived from the site profile; the first failing step aborts the run
// and every step behind it is recorded as skipped, so the transcript always
// accounts for the whole plan. Steps themselves are carried out by small
// capability interfaces, which keeps the engine testable against fakes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pixelgardenlabs.io/pgl-publish/pkg/config"
	"pixelgardenlabs.io/pgl-publish/pkg/hints"
	"pixelgardenlabs.io/pgl-publish/pkg/lockfile"
	"pixelgardenlabs.io/pgl-publish/pkg/metafile"
	"pixelgardenlabs.io/pgl-publish/pkg/plog"
	"pixelgardenlabs.io/pgl-publish/pkg/preflight"
	"pixelgardenlabs.io/pgl-publish/pkg/remotesync"
	"pixelgardenlabs.io/pgl-publish/pkg/sitearchive"
	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// ErrRunActive is returned when a publish for the same site is already in
// flight, either in this process or evidenced by a live lock file.
var ErrRunActive = errors.New("a publish for this site is already running")

// Synchronizer mirrors trees between the local filesystem and the server.
type Synchronizer interface {
	Synchronize(ctx context.Context, task remotesync.SyncTask) (remotesync.SyncOutcome, error)
}

// Archiver writes the dated artifact of a published export.
type Archiver interface {
	Create(ctx context.Context, task sitearchive.ArchiveTask) (sitearchive.ArchiveResult, error)
}

// WikiReconciler moves wiki content between the snapshot and the export tree.
type WikiReconciler interface {
	Seed(ctx context.Context, snapshotDir, exportWikiDir string) error
	UpdateSnapshot(ctx context.Context, exportWikiDir, snapshotDir string) error
	PrepareFresh(snapshotDir string) error
	AdoptFolder(ctx context.Context, sourceDir, snapshotDir string) error
}

// Validator runs the preflight checks.
type Validator interface {
	Run(ctx context.Context, task preflight.ValidateTask) (preflight.Report, error)
}

// Observer streams run progress to a frontend. All callbacks are optional.
type Observer struct {
	OnStepStart func(index int, kind StepKind)
	OnStepDone  func(index int, result StepResult)
}

// WikiInitMode selects how a missing wiki snapshot is initialized.
type WikiInitMode int

const (
	// WikiInitNone requires the snapshot to exist already.
	WikiInitNone WikiInitMode = iota
	// WikiInitRemote starts from an empty snapshot and lets the pull step
	// populate it from the server.
	WikiInitRemote
	// WikiInitAdopt seeds the snapshot from an existing local folder.
	WikiInitAdopt
)

// PublishTask carries everything one publish run needs.
type PublishTask struct {
	Profile config.SiteProfile
	Hooks   config.HooksConfig
	// LocateClient is handed to the preflight validator so the validation
	// step exercises the same discovery the transfer itself relies on.
	LocateClient preflight.ClientLocator
	DryRun       bool
	WikiInit     WikiInitMode
	// WikiInitSource is the folder adopted as the first snapshot when
	// WikiInit is WikiInitAdopt.
	WikiInitSource string
	Observer       Observer
}

// Runner executes publish runs. It is safe for concurrent use; concurrent
// runs for distinct sites proceed, a second run for the same site is
// rejected with ErrRunActive.
type Runner struct {
	validator  Validator
	syncer     Synchronizer
	archiver   Archiver
	reconciler WikiReconciler

	mu     sync.Mutex
	active map[string]bool

	// Seams for tests.
	writeReceipt func(dir string, receipt metafile.Receipt) error
	acquireLock  func(ctx context.Context, dir, site string) (releaser, error)
	now          func() time.Time
}

type releaser interface {
	Release()
}

// noRunLock stands in when the export dir does not exist yet, so the run can
// still reach validation and report the missing directory.
type noRunLock struct{}

func (noRunLock) Release() {}

func NewRunner(validator Validator, syncer Synchronizer, archiver Archiver, reconciler WikiReconciler) *Runner {
	return &Runner{
		validator:    validator,
		syncer:       syncer,
		archiver:     archiver,
		reconciler:   reconciler,
		active:       map[string]bool{},
		writeReceipt: metafile.Write,
		acquireLock: func(ctx context.Context, dir, site string) (releaser, error) {
			return lockfile.Acquire(ctx, dir, site)
		},
		now: time.Now,
	}
}

// Run executes one publish. Step failures are reported through the returned
// WorkflowRun; the error return is reserved for runs that could not start
// at all, such as a concurrent publish holding the site.
func (r *Runner) Run(ctx context.Context, task PublishTask) (*WorkflowRun, error) {
	profile := task.Profile

	if !r.claimSite(profile.Name) {
		return nil, fmt.Errorf("%w: site %s", ErrRunActive, profile.Name)
	}
	defer r.releaseSite(profile.Name)

	lock, err := r.acquireLock(ctx, profile.ExportDir, profile.Name)
	if err != nil {
		var active *lockfile.ErrLockActive
		if errors.As(err, &active) {
			return nil, fmt.Errorf("%w: %v", ErrRunActive, err)
		}
		// A missing export dir cannot hold a lock file; let the validation
		// step report it as a proper finding instead of failing opaquely.
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		lock = noRunLock{}
	}
	defer lock.Release()

	run := &WorkflowRun{
		ID:        uuid.NewString(),
		Site:      profile.Name,
		DryRun:    task.DryRun,
		StartedAt: r.now(),
	}
	plog.Info("Publish run starting", "site", profile.Name, "runId", run.ID, "dryRun", task.DryRun)

	if !task.DryRun {
		if err := runHooks(ctx, "pre-publish", task.Hooks.PrePublish, profile.Name, profile.ExportDir); err != nil {
			return nil, err
		}
	}

	r.executePlan(ctx, run, task)

	run.FinishedAt = r.now()

	// Post hooks run regardless of the outcome so cleanup commands always
	// get a chance; their failure never changes the run result.
	if !task.DryRun {
		if err := runHooks(ctx, "post-publish", task.Hooks.PostPublish, profile.Name, profile.ExportDir); err != nil {
			plog.Warn("Post-publish hook failed", "error", err)
			run.Diagnostic = appendDiagnostic(run.Diagnostic, err.Error())
		}
	}

	plog.Info("Publish run finished",
		"site", profile.Name,
		"runId", run.ID,
		"outcome", run.Outcome.String(),
		"livePublished", run.LivePublished,
	)
	return run, nil
}

func (r *Runner) executePlan(ctx context.Context, run *WorkflowRun, task PublishTask) {
	plan := PlanFor(task.Profile.HasWiki)

	for i, kind := range plan {
		if err := ctx.Err(); err != nil {
			r.backfill(run, plan[i:], StatusAborted, task.Observer)
			run.Outcome = RunAborted
			run.Diagnostic = appendDiagnostic(run.Diagnostic, "cancelled between steps")
			return
		}

		if task.DryRun && kind != StepValidate {
			r.backfill(run, plan[i:], StatusSkipped, task.Observer)
			run.Outcome = RunSucceeded
			return
		}

		if task.Observer.OnStepStart != nil {
			task.Observer.OnStepStart(i, kind)
		}
		plog.Info("Step starting", "step", kind.Label(), "site", task.Profile.Name)

		started := r.now()
		diagnostic, err := r.executeStep(ctx, run, task, kind)
		result := StepResult{
			Kind:       kind,
			StartedAt:  started,
			Duration:   r.now().Sub(started),
			Diagnostic: diagnostic,
		}

		if err != nil {
			result.Status = StatusFailed
			result.Diagnostic = appendDiagnostic(diagnostic, err.Error())
			run.Steps = append(run.Steps, result)
			if task.Observer.OnStepDone != nil {
				task.Observer.OnStepDone(i, result)
			}

			// A hint means the step stopped on a condition the operator must
			// resolve, not on a defect; the run ends paused rather than failed.
			if hints.IsHint(err) {
				plog.Warn("Step needs operator action", "step", kind.Label(), "error", err)
				run.Outcome = RunActionRequired
			} else {
				plog.Error("Step failed", "step", kind.Label(), "error", err)
				run.Outcome = RunFailed
			}

			r.backfill(run, plan[i+1:], StatusSkipped, task.Observer)
			run.Diagnostic = appendDiagnostic(run.Diagnostic, fmt.Sprintf("%s: %v", kind.Label(), err))
			return
		}

		result.Status = StatusSucceeded
		run.Steps = append(run.Steps, result)
		if task.Observer.OnStepDone != nil {
			task.Observer.OnStepDone(i, result)
		}
		plog.Info("Step finished", "step", kind.Label(), "duration", result.Duration.String())
	}

	run.Outcome = RunSucceeded
}

// backfill records the remaining plan steps with the given terminal status.
func (r *Runner) backfill(run *WorkflowRun, remaining []StepKind, status StepStatus, obs Observer) {
	base := len(run.Steps)
	for j, kind := range remaining {
		result := StepResult{Kind: kind, Status: status}
		run.Steps = append(run.Steps, result)
		if obs.OnStepDone != nil {
			obs.OnStepDone(base+j, result)
		}
	}
}

// executeStep dispatches one step. The returned diagnostic is informational
// and recorded even on success.
func (r *Runner) executeStep(ctx context.Context, run *WorkflowRun, task PublishTask, kind StepKind) (string, error) {
	profile := task.Profile

	switch kind {
	case StepValidate:
		report, err := r.validator.Run(ctx, preflight.ValidateTask{
			Profile:                  profile,
			LocateClient:             task.LocateClient,
			AllowMissingWikiSnapshot: task.WikiInit != WikiInitNone,
		})
		if err != nil {
			return "", err
		}
		if !report.OK() {
			msgs := make([]string, 0, len(report.Findings))
			for _, f := range report.Findings {
				msgs = append(msgs, f.String())
			}
			err := errors.New(strings.Join(msgs, "; "))
			if report.ActionRequired() {
				return "", hints.Wrap(err)
			}
			return "", err
		}
		return "", nil

	case StepSeedWiki:
		switch task.WikiInit {
		case WikiInitRemote:
			if err := r.reconciler.PrepareFresh(profile.WikiSnapshotDir); err != nil {
				return "", err
			}
		case WikiInitAdopt:
			if err := r.reconciler.AdoptFolder(ctx, task.WikiInitSource, profile.WikiSnapshotDir); err != nil {
				return "", err
			}
		}
		return "", r.reconciler.Seed(ctx, profile.WikiSnapshotDir, profile.ExportWikiDir())

	case StepPush:
		// The run's own lock file lives inside the export dir and must
		// never reach the server.
		excludes := []string{lockfile.LockFileName}
		if profile.HasWiki {
			excludes = util.MergeAndDeduplicate([]string{"wiki/"}, excludes)
		}
		// Push mirrors the export: stale remote files are removed, with the
		// excludes shielding the wiki subtree and the lock file.
		outcome, err := r.syncer.Synchronize(ctx, remotesync.SyncTask{
			Direction:        remotesync.DirectionPush,
			LocalPath:        profile.ExportDir,
			RemotePath:       profile.Endpoint.RemotePath,
			Excludes:         excludes,
			DeleteExtraneous: true,
		})
		if err != nil {
			// A partial push already changed the live site.
			if errors.Is(err, remotesync.ErrPartialTransfer) {
				run.LivePublished = true
			}
			return "", err
		}
		run.LivePublished = true
		run.FilesTransferred += outcome.FilesTransferred
		return fmt.Sprintf("%d file(s) transferred", outcome.FilesTransferred), nil

	case StepPullWiki:
		outcome, err := r.syncer.Synchronize(ctx, remotesync.SyncTask{
			Direction:        remotesync.DirectionPull,
			LocalPath:        profile.ExportWikiDir(),
			RemotePath:       profile.WikiRemotePath,
			DeleteExtraneous: true,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d file(s) transferred", outcome.FilesTransferred), nil

	case StepUpdateSnapshot:
		return "", r.reconciler.UpdateSnapshot(ctx, profile.ExportWikiDir(), profile.WikiSnapshotDir)

	case StepArchive:
		format, err := sitearchive.ParseFormat(profile.Archive.Format)
		if err != nil {
			return "", err
		}
		collision, err := sitearchive.ParseCollisionPolicy(profile.Archive.Collision)
		if err != nil {
			return "", err
		}

		result, err := r.archiver.Create(ctx, sitearchive.ArchiveTask{
			Site:      profile.Name,
			SourceDir: profile.ExportDir,
			DestDir:   profile.ArchiveSiteDir(),
			Format:    format,
			Collision: collision,
			Keep:      profile.Archive.Keep,
		})
		if err != nil {
			return "", err
		}

		receipt := metafile.Receipt{
			RunID:            run.ID,
			Site:             profile.Name,
			StartedAt:        run.StartedAt,
			FinishedAt:       r.now(),
			ArchivePath:      result.Path,
			ArchiveFormat:    format.String(),
			FilesTransferred: run.FilesTransferred,
			WikiSynced:       profile.HasWiki,
		}
		if err := r.writeReceipt(profile.ArchiveSiteDir(), receipt); err != nil {
			plog.Warn("Could not write publish receipt", "error", err)
		}
		return fmt.Sprintf("archived %d file(s) to %s", result.FileCount, result.Path), nil

	default:
		return "", fmt.Errorf("unknown step kind: %s", kind)
	}
}

func (r *Runner) claimSite(site string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[site] {
		return false
	}
	r.active[site] = true
	return true
}

func (r *Runner) releaseSite(site string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, site)
}

func appendDiagnostic(existing, addition string) string {
	if existing == "" {
		return addition
	}
	return existing + "; " + addition
}
