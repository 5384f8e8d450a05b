package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/maiserv/llamagate/pkg/llamacpp"
)

// ErrUnknownModel indicates that a requested alias matches no catalog entry.
var ErrUnknownModel = errors.New("unknown model alias")

// Resolution is the outcome of an alias lookup: the argument block to launch
// the model with. The caller supplies the runtime-level pieces (env,
// parallel, threads, API key).
type Resolution struct {
	Args *llamacpp.RunArgs
}

// Catalog holds the immutable model definitions loaded at startup. The
// expanded model list is built lazily and cached; all methods are safe for
// concurrent use.
type Catalog struct {
	definitions []ModelDefinition

	expandOnce sync.Once
	expanded   *ModelList
}

// New creates a catalog from in-memory definitions.
func New(definitions []ModelDefinition) *Catalog {
	return &Catalog{definitions: definitions}
}

// Load reads every *.json file under dir into a model definition.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read model configuration directory %s", dir)
	}

	var definitions []ModelDefinition
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read model configuration %s", path)
		}
		var definition ModelDefinition
		if err := json.Unmarshal(data, &definition); err != nil {
			return nil, errors.Wrapf(err, "unable to decode model configuration %s", path)
		}
		definitions = append(definitions, definition)
	}

	return New(definitions), nil
}

// Definitions returns the loaded definitions.
func (c *Catalog) Definitions() []ModelDefinition {
	return c.definitions
}

// ModelList returns the expanded catalog view: one entry per definition per
// context-size tier up to the definition's maximum, under the tier-suffixed
// alias. The list is built once and cached.
func (c *Catalog) ModelList() *ModelList {
	c.expandOnce.Do(func() {
		list := NewModelList()
		for i := range c.definitions {
			definition := &c.definitions[i]
			for _, tier := range llamacpp.ContextSizes {
				if tier > definition.MaxCtxSize {
					break
				}
				alias := ContextSizeAwareAlias{Model: definition.Alias, ContextSize: tier}.Alias()
				list.Add(alias, definition)
			}
		}
		c.expanded = list
	})
	return c.expanded
}

// Names returns the comma-joined aliases of the expanded catalog.
func (c *Catalog) Names() string {
	return c.ModelList().Names()
}

// Resolve maps a requested alias to launch parameters. A tier-suffixed alias
// selects its base definition with the tier as context size; anything else is
// looked up literally with the context size left unset. A miss yields
// ErrUnknownModel.
func (c *Catalog) Resolve(alias string) (Resolution, error) {
	if aware, err := ParseContextSizeAwareAlias(alias); err == nil {
		if definition := c.lookup(aware.Model); definition != nil {
			if aware.ContextSize > definition.MaxCtxSize {
				return Resolution{}, errors.Wrapf(ErrUnknownModel, "context size %d exceeds maximum for %q", aware.ContextSize, aware.Model)
			}
			size := aware.ContextSize
			return Resolution{Args: definition.runArgs(alias, &size)}, nil
		}
	}

	if definition := c.lookup(alias); definition != nil {
		return Resolution{Args: definition.runArgs(alias, nil)}, nil
	}

	return Resolution{}, errors.Wrapf(ErrUnknownModel, "alias %q", alias)
}

func (c *Catalog) lookup(alias string) *ModelDefinition {
	for i := range c.definitions {
		if c.definitions[i].Alias == alias {
			return &c.definitions[i]
		}
	}
	return nil
}
