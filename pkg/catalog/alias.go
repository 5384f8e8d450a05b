package catalog

import (
	"fmt"
	"strings"

	"github.com/maiserv/llamagate/pkg/llamacpp"
)

// Context-size hints, appended to a base alias after a hyphen. The mapping is
// bidirectional and fixed.
const (
	hint256K = "max"
	hint128K = "large"
	hint64K  = "moderate"
	hint32K  = "small"
	hint16K  = "tiny"
	hint8K   = "min"
)

var hintByContextSize = map[llamacpp.ContextSize]string{
	llamacpp.Ctx256K: hint256K,
	llamacpp.Ctx128K: hint128K,
	llamacpp.Ctx64K:  hint64K,
	llamacpp.Ctx32K:  hint32K,
	llamacpp.Ctx16K:  hint16K,
	llamacpp.Ctx8K:   hint8K,
}

var contextSizeByHint = map[string]llamacpp.ContextSize{
	hint256K: llamacpp.Ctx256K,
	hint128K: llamacpp.Ctx128K,
	hint64K:  llamacpp.Ctx64K,
	hint32K:  llamacpp.Ctx32K,
	hint16K:  llamacpp.Ctx16K,
	hint8K:   llamacpp.Ctx8K,
}

// ContextSizeAwareAlias pairs a base model alias with a context-size tier.
// Its string form is "<alias>-<hint>".
type ContextSizeAwareAlias struct {
	Model       string
	ContextSize llamacpp.ContextSize
}

// Alias returns the hyphen-suffixed wire form.
func (a ContextSizeAwareAlias) Alias() string {
	return a.Model + "-" + hintByContextSize[a.ContextSize]
}

// ParseContextSizeAwareAlias splits value at its last hyphen and interprets
// the suffix as a context-size hint. Inputs without a recognisable hint fail;
// callers then treat the whole value as a bare alias.
func ParseContextSizeAwareAlias(value string) (ContextSizeAwareAlias, error) {
	idx := strings.LastIndex(value, "-")
	if idx < 0 {
		return ContextSizeAwareAlias{}, fmt.Errorf("alias %q carries no context-size hint", value)
	}
	model, hint := value[:idx], value[idx+1:]
	contextSize, ok := contextSizeByHint[hint]
	if !ok {
		return ContextSizeAwareAlias{}, fmt.Errorf("alias %q carries unknown context-size hint %q", value, hint)
	}
	return ContextSizeAwareAlias{Model: model, ContextSize: contextSize}, nil
}
