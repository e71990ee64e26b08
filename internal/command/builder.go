package command

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/ping15/ShortPlayGenerator/internal/task"
)

// Config holds the fixed parts of every invocation.
type Config struct {
	// WorkDir is the generation program's checkout; results land under WorkDir/result
	WorkDir string
	// EnvFile is sourced before anything else when set
	EnvFile string
	// Python defaults to WorkDir/env/bin/python
	Python string
	// Script defaults to generate_video.py
	Script          string
	DefaultModelID  string
	HFHome          string
	ModelScopeCache string
	CUDAArchList    string
	// NotifyLog receives a sentinel line when a shell invocation finishes
	NotifyLog string
}

// EnvVar is an environment variable exported before the program starts.
type EnvVar struct {
	Name  string
	Value string
}

// Arg is one program argument. Quoted arguments carry caller-supplied text
// and are always single-quoted in the shell rendering.
type Arg struct {
	Value  string
	Quoted bool
}

// Invocation is the structured form of a generation command.
type Invocation struct {
	Source  string
	Dir     string
	Env     []EnvVar
	Program string
	Args    []Arg
}

// Builder maps tasks to invocations.
type Builder struct {
	cfg Config
}

// NewBuilder creates a Builder, filling in defaults derived from WorkDir.
func NewBuilder(cfg Config) *Builder {
	cfg.WorkDir = strings.TrimRight(cfg.WorkDir, "/")
	if cfg.Python == "" {
		cfg.Python = cfg.WorkDir + "/env/bin/python"
	}
	if cfg.Script == "" {
		cfg.Script = "generate_video.py"
	}
	return &Builder{cfg: cfg}
}

// WorkDir returns the program's working directory.
func (b *Builder) WorkDir() string {
	return b.cfg.WorkDir
}

// Build renders the invocation for t. It fails when t is invalid, which also
// guarantees exactly one of images or input video is passed.
func (b *Builder) Build(t task.Task) (Invocation, error) {
	if err := t.Validate(); err != nil {
		return Invocation{}, err
	}

	modelID := t.ModelID
	if modelID == "" {
		modelID = b.cfg.DefaultModelID
	}
	if modelID == "" {
		return Invocation{}, fmt.Errorf("%w: no model id configured", task.ErrInvalidTask)
	}

	args := []Arg{
		{Value: "--model_id"}, {Value: modelID, Quoted: true},
		{Value: "--task_type"}, {Value: string(t.Kind)},
		{Value: "--prompt"}, {Value: t.Prompt, Quoted: true},
		{Value: "--duration"}, {Value: strconv.Itoa(t.Duration)},
		{Value: "--output_file"}, {Value: t.ID + ".mp4", Quoted: true},
	}
	switch t.Kind {
	case task.KindReferenceToVideo:
		args = append(args, Arg{Value: "--ref_imgs"}, Arg{Value: strings.Join(t.Images, ","), Quoted: true})
	case task.KindSingleShotExtension:
		args = append(args, Arg{Value: "--input_video"}, Arg{Value: t.InputVideo, Quoted: true})
	}
	if t.Offload {
		args = append(args, Arg{Value: "--offload"})
	}

	return Invocation{
		Source:  b.cfg.EnvFile,
		Dir:     b.cfg.WorkDir,
		Env:     b.env(),
		Program: b.cfg.Python,
		Args:    append([]Arg{{Value: b.cfg.Script}}, args...),
	}, nil
}

// NotifyTail is appended to a shell invocation so a sentinel line reaches the
// notify log once the program exits. The program's exit code is preserved.
func (b *Builder) NotifyTail(taskID string) string {
	if b.cfg.NotifyLog == "" {
		return ""
	}
	return fmt.Sprintf(`; rc=$?; echo "[NOTIFY] video_generate_done taskId="%s" rc=$rc" >> %s; exit $rc`,
		Quote(taskID), word(b.cfg.NotifyLog))
}

func (b *Builder) env() []EnvVar {
	env := []EnvVar{{Name: "PATH", Value: b.cfg.WorkDir + "/env/bin:$PATH"}}
	for _, v := range []EnvVar{
		{Name: "HF_HOME", Value: b.cfg.HFHome},
		{Name: "MODELSCOPE_CACHE", Value: b.cfg.ModelScopeCache},
		{Name: "TORCH_CUDA_ARCH_LIST", Value: b.cfg.CUDAArchList},
	} {
		if v.Value != "" {
			env = append(env, v)
		}
	}
	return env
}

// Argv returns the program and its arguments for a direct exec.
func (inv Invocation) Argv() []string {
	argv := make([]string, 0, len(inv.Args)+1)
	argv = append(argv, inv.Program)
	for _, a := range inv.Args {
		argv = append(argv, a.Value)
	}
	return argv
}

// Environ returns the exports as NAME=VALUE pairs with $VAR references
// expanded through lookup.
func (inv Invocation) Environ(lookup func(string) string) []string {
	out := make([]string, 0, len(inv.Env))
	for _, v := range inv.Env {
		out = append(out, v.Name+"="+os.Expand(v.Value, lookup))
	}
	return out
}

// NeedsShell reports whether the invocation can only run through a shell.
func (inv Invocation) NeedsShell() bool {
	return inv.Source != ""
}

// Script renders the invocation as a single shell line.
func (inv Invocation) Script() string {
	var steps []string
	if inv.Source != "" {
		steps = append(steps, "source "+word(inv.Source))
	}
	if inv.Dir != "" {
		steps = append(steps, "cd "+word(inv.Dir))
	}
	for _, v := range inv.Env {
		steps = append(steps, fmt.Sprintf(`export %s="%s"`, v.Name, v.Value))
	}

	parts := []string{word(inv.Program)}
	for _, a := range inv.Args {
		if a.Quoted {
			parts = append(parts, Quote(a.Value))
		} else {
			parts = append(parts, word(a.Value))
		}
	}
	steps = append(steps, strings.Join(parts, " "))

	return strings.Join(steps, " && ")
}

// Quote wraps s in single quotes, escaping backslashes and embedded single quotes.
func Quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `'\''`)
	return "'" + s + "'"
}

var safeWord = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// word leaves shell-safe tokens bare and quotes anything else.
func word(s string) string {
	if safeWord.MatchString(s) {
		return s
	}
	return Quote(s)
}
