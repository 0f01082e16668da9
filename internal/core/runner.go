package core

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"releasegate/internal/ledger"
	"releasegate/internal/security"
	"releasegate/internal/storage"
	"releasegate/pkg/utils"
)

var logger = logrus.WithField("package", "core")

// Observer is told about finished steps and runs. It receives copies.
type Observer interface {
	StepFinished(run Run, step StepResult)
	RunFinished(run Run)
}

// SecretSource resolves secret values by name.
type SecretSource interface {
	Lookup(name string) (string, bool)
}

// Runner ties together Scheduler + Executor + actions + secrets + log
// storage + ledger for one run at a time.
type Runner struct {
	Scheduler  *Scheduler
	Executor   Executor
	Actions    ActionRegistry
	Secrets    SecretSource
	LogStorage *storage.LogStorage // optional
	Ledger     *ledger.Ledger      // optional; needs SigningKey
	SigningKey ed25519.PrivateKey
	AgentID    string

	WorkspaceRoot string // parent of per-run workspaces; "" uses the OS temp dir
	KeepWorkspace bool
	StepTimeout   time.Duration // applied to steps without their own timeout; 0 = none

	BaseEnv   func() []string
	Observers []Observer
	Now       func() time.Time
}

func NewRunner() *Runner {
	return &Runner{
		Scheduler: NewScheduler(),
		Executor:  NewShellExecutor(),
		Actions:   DefaultActions(),
		Secrets:   security.NewEnvSecretStore(),
		AgentID:   "local-agent",
		BaseEnv:   os.Environ,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes every step of wf for ev, strictly in order, and stops at the
// first failing step. The returned Run is finished and is not touched again
// by the runner. A failed run comes back together with a *StepError.
// Events the workflow does not subscribe to yield ErrNoMatch and no Run.
func (r *Runner) Run(ctx context.Context, wf *Workflow, ev Event) (*Run, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if !wf.Matches(ev) {
		return nil, ErrNoMatch
	}
	plan, err := r.Scheduler.Plan(wf)
	if err != nil {
		return nil, err
	}

	run := NewRun(wf, ev, r.now())
	log := logger.WithFields(logrus.Fields{"run_id": run.ID, "ref": ev.Ref, "commit": ev.Commit})
	if run.Tag != "" && !IsVersionTag(run.Tag) {
		log.Warnf("tag %q is not a semantic version, publishing anyway", run.Tag)
	}
	run.Status = RunRunning
	log.Infof("starting %s with %d steps", wf.Name, len(plan))

	workspace, err := r.allocateWorkspace(run.ID)
	if err != nil {
		return r.fail(run, -1, FailureInfrastructure, 0, fmt.Errorf("allocate workspace: %w", err))
	}
	defer r.releaseWorkspace(workspace, log)

	secrets := make(map[string]string, len(wf.Secrets))
	masker := security.NewMasker()
	for _, name := range wf.Secrets {
		if r.Secrets == nil {
			break
		}
		if v, ok := r.Secrets.Lookup(name); ok {
			secrets[name] = v
			masker.Add(v)
		}
	}

	var tc toolchain
	for _, ps := range plan {
		res := &run.Steps[ps.Index]
		res.Status = StepRunning
		res.StartedAt = r.now()
		stepLog := log.WithFields(logrus.Fields{"step": ps.Name, "phase": ps.Phase})
		stepLog.Infof("running: %s", firstLine(res.Command))

		cmd, nextTC, err := r.prepare(ps, wf, run, workspace, secrets, tc)
		if err != nil {
			res.Status = StepFailure
			res.FinishedAt = r.now()
			stepLog.WithError(err).Error("step could not start")
			r.stepFinished(run, res)
			return r.fail(run, ps.Index, failureKindFor(ps.Phase), 0, err)
		}

		result, execErr := r.Executor.Execute(ctx, cmd)
		output := masker.Mask(result.Output)
		res.ExitCode = result.ExitCode
		res.Duration = result.Duration
		res.FinishedAt = r.now()
		res.LogPath = r.saveLog(run, ps, output, stepLog)
		if execErr != nil {
			res.Status = StepFailure
		} else {
			res.Status = StepSuccess
		}
		r.record(run, res, output, stepLog)
		r.stepFinished(run, res)

		if execErr != nil {
			stepLog.WithError(execErr).Error("step failed")
			return r.fail(run, ps.Index, failureKindFor(ps.Phase), result.ExitCode, execErr)
		}
		stepLog.WithField("duration", result.Duration).Info("step completed")
		tc = nextTC
	}

	run.Status = RunSuccess
	run.FinishedAt = r.now()
	log.Info("run finished successfully")
	r.runFinished(run)
	return run, nil
}

// toolchain is what provisioning actions hand to later steps.
type toolchain struct {
	path []string
	env  map[string]string
}

func (tc toolchain) with(plan ActionPlan) toolchain {
	next := toolchain{
		path: append(append([]string{}, plan.PathPrepend...), tc.path...),
		env:  make(map[string]string, len(tc.env)+len(plan.Env)),
	}
	for k, v := range tc.env {
		next.env[k] = v
	}
	for k, v := range plan.Env {
		next.env[k] = v
	}
	return next
}

// prepare resolves a planned step into a Command. It also returns the
// toolchain that later steps should see.
func (r *Runner) prepare(ps PlannedStep, wf *Workflow, run *Run, workspace string, secrets map[string]string, tc toolchain) (Command, toolchain, error) {
	step := ps.Step
	script := step.Run
	next := tc

	if step.Uses != "" {
		action, ok := r.Actions.Lookup(step.Uses)
		if !ok {
			return Command{}, tc, fmt.Errorf("unknown action %q", step.Uses)
		}
		plan, err := action(ActionContext{Event: run.Event, Workspace: workspace, With: step.With})
		if err != nil {
			return Command{}, tc, err
		}
		script = plan.Script
		next = tc.with(plan)
	}

	env := r.environment(wf, step, run, tc)
	for _, name := range SecretRefs(script) {
		v, ok := secrets[name]
		if !ok {
			return Command{}, tc, fmt.Errorf("%w: %s", ErrMissingSecret, name)
		}
		env = append(env, SecretEnvPrefix+name+"="+v)
	}

	timeout := step.Timeout
	if timeout == 0 {
		timeout = r.StepTimeout
	}
	return Command{Script: bindSecrets(script), Dir: workspace, Env: env, Timeout: timeout}, next, nil
}

// environment builds the child environment: host variables minus secrets,
// then toolchain env, workflow env, step env and release metadata. Secret
// values are added by prepare only for the steps that reference them.
func (r *Runner) environment(wf *Workflow, step Step, run *Run, tc toolchain) []string {
	hidden := make(map[string]bool, len(wf.Secrets))
	for _, s := range wf.Secrets {
		hidden[s] = true
	}

	vars := map[string]string{}
	if r.BaseEnv != nil {
		for _, kv := range r.BaseEnv() {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || hidden[k] || strings.HasPrefix(k, SecretEnvPrefix) {
				continue
			}
			vars[k] = v
		}
	}
	for k, v := range tc.env {
		vars[k] = v
	}
	for k, v := range wf.Env {
		vars[k] = v
	}
	for k, v := range step.Env {
		vars[k] = v
	}
	vars["RELEASE_REF"] = run.Event.Ref
	vars["RELEASE_TAG"] = run.Tag
	vars["RELEASE_VERSION"] = run.Version
	vars["RELEASE_COMMIT"] = run.Event.Commit
	vars["RELEASE_REPOSITORY"] = run.Event.Repository
	vars["RELEASEGATE_RUN_ID"] = run.ID
	vars["RELEASEGATE_PERMISSIONS"] = strings.Join(run.Permissions, ",")
	if len(tc.path) > 0 {
		parts := append(append([]string{}, tc.path...), vars["PATH"])
		vars["PATH"] = strings.TrimSuffix(strings.Join(parts, string(os.PathListSeparator)), string(os.PathListSeparator))
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// fail terminates the run at index: later steps are marked skipped and
// never execute.
func (r *Runner) fail(run *Run, index int, kind FailureKind, exitCode int, cause error) (*Run, error) {
	for i := index + 1; i < len(run.Steps); i++ {
		run.Steps[i].Status = StepSkipped
	}
	stepErr := &StepError{Index: index, Kind: kind, ExitCode: exitCode, Err: cause}
	if index >= 0 {
		stepErr.Step = run.Steps[index].Name
	}
	run.Status = RunFailure
	run.FailureKind = kind
	run.Error = stepErr.Error()
	run.FinishedAt = r.now()
	logger.WithFields(logrus.Fields{"run_id": run.ID, "failure": kind}).Error(run.Error)
	r.runFinished(run)
	return run, stepErr
}

func (r *Runner) allocateWorkspace(runID string) (string, error) {
	if r.WorkspaceRoot != "" {
		if err := os.MkdirAll(r.WorkspaceRoot, 0o755); err != nil {
			return "", err
		}
	}
	return os.MkdirTemp(r.WorkspaceRoot, "run-"+utils.Short(strings.ReplaceAll(runID, "-", ""))+"-")
}

func (r *Runner) releaseWorkspace(dir string, log *logrus.Entry) {
	if r.KeepWorkspace {
		log.Infof("workspace kept at %s", dir)
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.WithError(err).Warn("cannot remove workspace")
	}
}

func (r *Runner) saveLog(run *Run, ps PlannedStep, output string, log *logrus.Entry) string {
	if r.LogStorage == nil {
		return ""
	}
	path, err := r.LogStorage.SaveLog(run.ID, ps.Index, ps.Name, output)
	if err != nil {
		log.WithError(err).Warn("failed to save step log")
		return ""
	}
	return path
}

// record appends the step to the ledger. Best effort: a ledger problem is
// logged and never changes the outcome of the run.
func (r *Runner) record(run *Run, res *StepResult, output string, log *logrus.Entry) {
	if r.Ledger == nil || len(r.SigningKey) == 0 {
		return
	}
	logHash := utils.HashString(output)
	if res.LogPath != "" {
		if h, err := utils.HashFile(res.LogPath); err == nil {
			logHash = h
		}
	}
	e, err := r.Ledger.AppendRecord(ledger.Record{
		RunID:   run.ID,
		Tag:     run.Tag,
		Step:    res.Name,
		Status:  string(res.Status),
		LogPath: res.LogPath,
		LogHash: logHash,
		AgentID: r.AgentID,
	}, r.SigningKey)
	if err != nil {
		log.WithError(err).Warn("cannot append ledger entry")
		return
	}
	log.Debugf("ledger entry %d (hash=%s)", e.Index, utils.Short(e.Hash))
}

func (r *Runner) stepFinished(run *Run, res *StepResult) {
	if len(r.Observers) == 0 {
		return
	}
	snap := run.Snapshot()
	for _, o := range r.Observers {
		o.StepFinished(snap, *res)
	}
}

func (r *Runner) runFinished(run *Run) {
	for _, o := range r.Observers {
		o.RunFinished(run.Snapshot())
	}
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
