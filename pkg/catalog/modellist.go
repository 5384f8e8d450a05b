package catalog

import (
	"strings"
	"time"
)

const owner = "llamagate"

// ModelList is the JSON document served by the models endpoint. It carries
// both an ollama-style "models" array and an OpenAI-style "data" array so
// that either kind of client finds the shape it expects.
type ModelList struct {
	Models []ModelEntry `json:"models"`
	Object string       `json:"object"`
	Data   []DataEntry  `json:"data"`
}

// NewModelList creates an empty list.
func NewModelList() *ModelList {
	return &ModelList{Object: "list"}
}

// Add appends one expanded entry for alias, publishing the definition's
// metadata and capabilities.
func (l *ModelList) Add(alias string, definition *ModelDefinition) {
	l.Models = append(l.Models, ModelEntry{
		Name:         alias,
		Model:        alias,
		Type:         "model",
		Tags:         []string{""},
		Capabilities: definition.Capabilities,
		Details: ModelDetails{
			Format:   "gguf",
			Families: []string{""},
		},
	})
	l.Data = append(l.Data, DataEntry{
		ID:      alias,
		Object:  "model",
		Created: time.Now().Unix(),
		OwnedBy: owner,
		Meta: DataMeta{
			VocabType: definition.VocabType,
			NVocab:    definition.NVocab,
			NCtxTrain: definition.NCtxTrain,
			NEmbd:     definition.NEmbd,
			NParams:   definition.NParams,
			Size:      definition.Size,
		},
	})
}

// Names returns the comma-joined entry names.
func (l *ModelList) Names() string {
	names := make([]string, len(l.Models))
	for i, model := range l.Models {
		names[i] = model.Name
	}
	return strings.Join(names, ",")
}

// ModelEntry is the ollama-style half of a list entry.
type ModelEntry struct {
	Name         string       `json:"name"`
	Model        string       `json:"model"`
	ModifiedAt   string       `json:"modified_at"`
	Size         string       `json:"size"`
	Digest       string       `json:"digest"`
	Type         string       `json:"type"`
	Description  string       `json:"description"`
	Tags         []string     `json:"tags"`
	Capabilities []string     `json:"capabilities"`
	Parameters   string       `json:"parameters"`
	Details      ModelDetails `json:"details"`
}

// ModelDetails describes the published model file.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model"`
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// DataEntry is the OpenAI-style half of a list entry.
type DataEntry struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	OwnedBy string   `json:"owned_by"`
	Meta    DataMeta `json:"meta"`
}

// DataMeta is the extended metadata block published per entry.
type DataMeta struct {
	VocabType int    `json:"vocab_type"`
	NVocab    uint64 `json:"n_vocab"`
	NCtxTrain uint64 `json:"n_ctx_train"`
	NEmbd     uint64 `json:"n_embd"`
	NParams   uint64 `json:"n_params"`
	Size      uint64 `json:"size"`
}
