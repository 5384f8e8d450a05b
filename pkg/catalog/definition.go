package catalog

import (
	"github.com/maiserv/llamagate/pkg/llamacpp"
)

// ModelDefinition is one immutable catalog entry, loaded from a JSON document
// at startup. It carries everything a run configuration needs except the
// runtime-supplied env, parallel/threads settings and API key.
type ModelDefinition struct {
	Alias      string               `json:"alias"`
	ModelPath  string               `json:"model-path"`
	MaxCtxSize llamacpp.ContextSize `json:"max-ctx-size"`
	MmprojPath string               `json:"mmproj-path,omitempty"`

	// Published metadata, surfaced verbatim by the models endpoint.
	VocabType    int      `json:"vocab-type"`
	NVocab       uint64   `json:"n-vocab"`
	NCtxTrain    uint64   `json:"n-ctx-train"`
	NEmbd        uint64   `json:"n-embd"`
	NParams      uint64   `json:"n-params"`
	Size         uint64   `json:"size"`
	Capabilities []string `json:"capabilities"`

	// Tunables, forwarded into the run configuration.
	Prio       *int                 `json:"prio,omitempty"`
	NGPULayers *int                 `json:"n-gpu-layers,omitempty"`
	FlashAttn  *llamacpp.OnOffValue `json:"flash-attn,omitempty"`
	Fit        *llamacpp.OnOffValue `json:"fit,omitempty"`
	BatchSize  *int                 `json:"batch-size,omitempty"`
	UBatchSize *int                 `json:"ubatch-size,omitempty"`
	CacheTypeK string               `json:"cache-type-k,omitempty"`
	CacheTypeV string               `json:"cache-type-v,omitempty"`

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
}

// runArgs builds the argument block for the definition under the given wire
// alias and optional context-size override.
func (d *ModelDefinition) runArgs(alias string, ctxSize *llamacpp.ContextSize) *llamacpp.RunArgs {
	args := &llamacpp.RunArgs{
		Alias:           alias,
		ModelPath:       d.ModelPath,
		MmprojPath:      d.MmprojPath,
		Prio:            d.Prio,
		NGPULayers:      d.NGPULayers,
		CtxSize:         ctxSize,
		FlashAttn:       d.FlashAttn,
		Fit:             d.Fit,
		BatchSize:       d.BatchSize,
		UBatchSize:      d.UBatchSize,
		CacheTypeK:      d.CacheTypeK,
		CacheTypeV:      d.CacheTypeV,
		Temp:            d.Temp,
		TopK:            d.TopK,
		TopP:            d.TopP,
		MinP:            d.MinP,
		RepeatPenalty:   d.RepeatPenalty,
		PresencePenalty: d.PresencePenalty,
		Seed:            d.Seed,
		Jinja:           d.Jinja,
		NoMmap:          d.NoMmap,
		NoContextShift:  d.NoContextShift,
		NoContBatching:  d.NoContBatching,
	}
	return args.Clone()
}
