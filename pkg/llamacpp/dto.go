package llamacpp

import (
	"encoding/json"
	"fmt"
	"slices"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/maiserv/llamagate/pkg/process"
)

// RunConfigDTO is the wire shape of a run configuration: the argument block
// flattened together with env, parallel and threads, all kebab-case, with
// unset fields omitted.
type RunConfigDTO struct {
	Env map[string]string `json:"env,omitempty"`

	Alias      string `json:"alias"`
	ModelPath  string `json:"model-path"`
	MmprojPath string `json:"mmproj-path,omitempty"`

	Prio       *int         `json:"prio,omitempty"`
	Threads    *int         `json:"threads,omitempty"`
	NGPULayers *int         `json:"n-gpu-layers,omitempty"`
	CtxSize    *ContextSize `json:"ctx-size,omitempty"`
	FlashAttn  *OnOffValue  `json:"flash-attn,omitempty"`
	Fit        *OnOffValue  `json:"fit,omitempty"`
	BatchSize  *int         `json:"batch-size,omitempty"`
	UBatchSize *int         `json:"ubatch-size,omitempty"`
	CacheTypeK string       `json:"cache-type-k,omitempty"`
	CacheTypeV string       `json:"cache-type-v,omitempty"`
	Parallel   *int         `json:"parallel,omitempty"`

	Temp            *float64 `json:"temp,omitempty"`
	TopK            *int     `json:"top-k,omitempty"`
	TopP            *float64 `json:"top-p,omitempty"`
	MinP            *float64 `json:"min-p,omitempty"`
	RepeatPenalty   *float64 `json:"repeat-penalty,omitempty"`
	PresencePenalty *float64 `json:"presence-penalty,omitempty"`
	Seed            *uint64  `json:"seed,omitempty"`

	Jinja          bool `json:"jinja,omitempty"`
	NoMmap         bool `json:"no-mmap,omitempty"`
	NoContextShift bool `json:"no-context-shift,omitempty"`
	NoContBatching bool `json:"no-cont-batching,omitempty"`

	// RuntimeFlags are free-form llama-server flags; RawRuntimeFlags is the
	// same as a single shell-style string, used when the array form is empty.
	RuntimeFlags    []string `json:"runtime-flags,omitempty"`
	RawRuntimeFlags string   `json:"raw-runtime-flags,omitempty"`
}

// ToRunConfig maps the DTO into a run configuration, injecting the runtime
// API key. Absent parallel defaults to 1; absent threads to the server
// default. Raw runtime flags are split shell-style.
func (d RunConfigDTO) ToRunConfig(apiKey string) (RunConfig, error) {
	runtimeFlags := slices.Clone(d.RuntimeFlags)
	if len(runtimeFlags) == 0 && d.RawRuntimeFlags != "" {
		parsed, err := shellwords.Parse(d.RawRuntimeFlags)
		if err != nil {
			return RunConfig{}, fmt.Errorf("invalid runtime flags: %w", err)
		}
		runtimeFlags = parsed
	}

	args := &RunArgs{
		Alias:           d.Alias,
		ModelPath:       d.ModelPath,
		MmprojPath:      d.MmprojPath,
		APIKey:          apiKey,
		Prio:            clonePtr(d.Prio),
		NGPULayers:      clonePtr(d.NGPULayers),
		CtxSize:         clonePtr(d.CtxSize),
		FlashAttn:       clonePtr(d.FlashAttn),
		Fit:             clonePtr(d.Fit),
		BatchSize:       clonePtr(d.BatchSize),
		UBatchSize:      clonePtr(d.UBatchSize),
		CacheTypeK:      d.CacheTypeK,
		CacheTypeV:      d.CacheTypeV,
		Temp:            clonePtr(d.Temp),
		TopK:            clonePtr(d.TopK),
		TopP:            clonePtr(d.TopP),
		MinP:            clonePtr(d.MinP),
		RepeatPenalty:   clonePtr(d.RepeatPenalty),
		PresencePenalty: clonePtr(d.PresencePenalty),
		Seed:            clonePtr(d.Seed),
		Jinja:           d.Jinja,
		NoMmap:          d.NoMmap,
		NoContextShift:  d.NoContextShift,
		NoContBatching:  d.NoContBatching,
		RuntimeFlags:    runtimeFlags,
	}

	config := RunConfig{
		Env:      d.Env,
		Args:     args,
		Parallel: 1,
		Threads:  ThreadsDefault,
	}
	if d.Parallel != nil {
		config.Parallel = *d.Parallel
	}
	if d.Threads != nil {
		config.Threads = *d.Threads
	}
	return config, nil
}

// DTOFromRunConfig maps a run configuration to its wire shape. The API key is
// deliberately not exposed.
func DTOFromRunConfig(config RunConfig) RunConfigDTO {
	a := config.Args
	dto := RunConfigDTO{
		Env:             config.Env,
		Alias:           a.Alias,
		ModelPath:       a.ModelPath,
		MmprojPath:      a.MmprojPath,
		Prio:            clonePtr(a.Prio),
		NGPULayers:      clonePtr(a.NGPULayers),
		CtxSize:         clonePtr(a.CtxSize),
		FlashAttn:       clonePtr(a.FlashAttn),
		Fit:             clonePtr(a.Fit),
		BatchSize:       clonePtr(a.BatchSize),
		UBatchSize:      clonePtr(a.UBatchSize),
		CacheTypeK:      a.CacheTypeK,
		CacheTypeV:      a.CacheTypeV,
		Temp:            clonePtr(a.Temp),
		TopK:            clonePtr(a.TopK),
		TopP:            clonePtr(a.TopP),
		MinP:            clonePtr(a.MinP),
		RepeatPenalty:   clonePtr(a.RepeatPenalty),
		PresencePenalty: clonePtr(a.PresencePenalty),
		Seed:            clonePtr(a.Seed),
		Jinja:           a.Jinja,
		NoMmap:          a.NoMmap,
		NoContextShift:  a.NoContextShift,
		NoContBatching:  a.NoContBatching,
		RuntimeFlags:    slices.Clone(a.RuntimeFlags),
	}
	if config.Parallel != 0 {
		parallel := config.Parallel
		dto.Parallel = &parallel
	}
	if config.Threads != ThreadsDefault {
		threads := config.Threads
		dto.Threads = &threads
	}
	return dto
}

// StateDTO is the wire shape of the process state as served by the admin
// endpoint: "Stopped", {"Starting": config}, {"Running": config} or
// "Stopping". A stop-with-pending is reported as Starting(pending) so that
// clients see where the manager is headed rather than the internal slot.
type StateDTO struct {
	State State
}

// MarshalJSON implements json.Marshaler.MarshalJSON.
func (d StateDTO) MarshalJSON() ([]byte, error) {
	switch d.State.Phase {
	case process.Stopped:
		return json.Marshal("Stopped")
	case process.Starting:
		return json.Marshal(map[string]RunConfigDTO{"Starting": DTOFromRunConfig(d.State.Config)})
	case process.Running:
		return json.Marshal(map[string]RunConfigDTO{"Running": DTOFromRunConfig(d.State.Config)})
	case process.Stopping:
		if d.State.Pending != nil {
			return json.Marshal(map[string]RunConfigDTO{"Starting": DTOFromRunConfig(*d.State.Pending)})
		}
		return json.Marshal("Stopping")
	}
	return json.Marshal("Stopped")
}
