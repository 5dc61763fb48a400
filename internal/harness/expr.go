package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/quill/internal/ir"
)

// textPart is a literal run or a {expr} placeholder of a text node.
type textPart struct {
	text string
	expr bool
}

// parseText splits s into literal runs and placeholders. "{{" and "}}"
// are literal braces; an unterminated placeholder is kept as text.
func parseText(s string) []textPart {
	var parts []textPart
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, textPart{text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "{{"):
			lit.WriteByte('{')
			i++
		case strings.HasPrefix(s[i:], "}}"):
			lit.WriteByte('}')
			i++
		case s[i] == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				lit.WriteString(s[i:])
				i = len(s)
				continue
			}
			flush()
			parts = append(parts, textPart{text: strings.TrimSpace(s[i+1 : i+1+end]), expr: true})
			i += end + 1
		default:
			lit.WriteByte(s[i])
		}
	}
	flush()
	return parts
}

// scope resolves expressions. Cell reads go through read so the caller
// decides whether they are tracked.
type scope struct {
	vars ir.Object
	read func(cell string) ir.Value
}

// with returns a scope with name bound to v.
func (sc scope) with(name string, v ir.Value) scope {
	vars := make(ir.Object, len(sc.vars)+1)
	for k, val := range sc.vars {
		vars[k] = val
	}
	vars[name] = v
	return scope{vars: vars, read: sc.read}
}

// eval evaluates one expression.
func (sc scope) eval(expr string) ir.Value {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "true":
		return ir.Bool(true)
	case expr == "false":
		return ir.Bool(false)
	case len(expr) >= 2 && expr[0] == '\'' && expr[len(expr)-1] == '\'':
		return ir.String(expr[1 : len(expr)-1])
	}
	if n, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return ir.Int(n)
	}

	head, rest, _ := strings.Cut(expr, ".")
	var v ir.Value
	if strings.HasPrefix(head, "$") {
		if sc.read == nil {
			return ir.Null{}
		}
		v = sc.read(head[1:])
	} else {
		v = ir.Field(sc.vars, head)
	}
	if rest == "" {
		return v
	}
	for _, key := range strings.Split(rest, ".") {
		v = ir.Field(v, key)
	}
	return v
}

// interpolate renders a text node.
func (sc scope) interpolate(parts []textPart) string {
	var b strings.Builder
	for _, p := range parts {
		if p.expr {
			b.WriteString(ir.Display(sc.eval(p.text)))
		} else {
			b.WriteString(p.text)
		}
	}
	return b.String()
}

// toValues converts decoded YAML values for the cells they initialise.
func toValues(in map[string]any) (map[string]ir.Value, error) {
	out := make(map[string]ir.Value, len(in))
	for name, raw := range in {
		v, err := ir.FromGo(normalizeYAML(raw))
		if err != nil {
			return nil, fmt.Errorf("cell %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// normalizeYAML rewrites map[any]any (produced for non-string keys) into
// map[string]any so ir.FromGo accepts it.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = normalizeYAML(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeYAML(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeYAML(elem)
		}
		return out
	}
	return v
}
