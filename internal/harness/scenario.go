package harness

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a reconciliation test scenario.
// A scenario mounts a declarative view tree over named state cells, applies
// a script of state changes tick by tick, and asserts on the resulting
// lifecycle trace, pass results, journal rows and final node outline.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is the fixed journal run ID. Defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`

	// MaxDivergences overrides the scheduler's divergence limit.
	MaxDivergences int `yaml:"max_divergences,omitempty"`

	// DivergenceWindow overrides the scheduler's progress window.
	DivergenceWindow int `yaml:"divergence_window,omitempty"`

	// State declares the root cells and their initial values.
	State map[string]any `yaml:"state,omitempty"`

	// Templates declares named templates usable from any node.
	Templates map[string]TemplateDef `yaml:"templates,omitempty"`

	// Root is the tree mounted under the root entity. It is evaluated as
	// the body of an implicit template named App.
	Root Node `yaml:"root"`

	// Steps run in order after the initial mount.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the run.
	Assertions []Assertion `yaml:"assertions"`
}

// TemplateDef is a named template. Its props are bound as variables in
// the body.
type TemplateDef struct {
	Body Node `yaml:"body"`
}

// Node is one view in a scenario tree. Exactly one of the kind fields
// (element, text, when, switch, each, dynamic, template, feedback,
// fragment) is set.
//
// Expressions are written as:
//   - $cell or $cell.field: a tracked read of a state cell
//   - name or name.field: a template prop or loop variable
//   - 'text': a string literal
//   - 42, true, false: integer and boolean literals
//
// Text nodes interpolate {expr} placeholders.
type Node struct {
	Element  string `yaml:"element,omitempty"`
	Children []Node `yaml:"children,omitempty"`

	Text *string `yaml:"text,omitempty"`

	When string `yaml:"when,omitempty"`
	Then *Node  `yaml:"then,omitempty"`
	Else *Node  `yaml:"else,omitempty"`

	Switch  string          `yaml:"switch,omitempty"`
	Cases   map[string]Node `yaml:"cases,omitempty"`
	Default *Node           `yaml:"default,omitempty"`

	// Each iterates a list. With Key set, rows are keyed by that field;
	// without it, rows are keyed by position.
	Each     string `yaml:"each,omitempty"`
	Key      string `yaml:"key,omitempty"`
	As       string `yaml:"as,omitempty"`
	Do       *Node  `yaml:"do,omitempty"`
	Fallback *Node  `yaml:"fallback,omitempty"`

	Dynamic *Node `yaml:"dynamic,omitempty"`

	Template string            `yaml:"template,omitempty"`
	Props    map[string]string `yaml:"props,omitempty"`

	Feedback *Feedback `yaml:"feedback,omitempty"`

	Fragment []Node `yaml:"fragment,omitempty"`
}

// Feedback is an effect that reads Cell and writes Cell+Step after every
// evaluation while the value is below Limit. A zero Limit never stops,
// which makes the enclosing template diverge.
type Feedback struct {
	Cell  string `yaml:"cell"`
	Step  int64  `yaml:"step,omitempty"`
	Limit int64  `yaml:"limit,omitempty"`
}

// Step is one entry of the scenario script.
type Step struct {
	// Set replaces cell values. The writes are enqueued as scheduler
	// commands and applied at the start of the next tick.
	Set map[string]any `yaml:"set,omitempty"`

	// Ticks is the number of passes to run after Set. Defaults to 1.
	Ticks int `yaml:"ticks,omitempty"`

	// Unmount razes the whole tree instead of ticking.
	Unmount bool `yaml:"unmount,omitempty"`
}

// Assertion validates the run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "outline": final node outline equals Lines
	// - "trace_contains": an event of Kind for Instance occurred
	// - "trace_order": Events ("kind Instance") occur in order
	// - "trace_count": events of Kind for Instance occurred exactly Count times
	// - "pass": the pass at Tick matches Converged, Iterations and DirtyTrace
	// - "error_count": instance or runtime errors with Code occurred Count times
	// - "live_instances": Count template instances are alive at the end
	// - "journal_row": one journal row in Table matches Where and Expect
	Type string `yaml:"type"`

	Kind     string   `yaml:"kind,omitempty"`
	Instance string   `yaml:"instance,omitempty"`
	Events   []string `yaml:"events,omitempty"`
	Count    int      `yaml:"count,omitempty"`

	Lines []string `yaml:"lines,omitempty"`

	Tick       int64 `yaml:"tick,omitempty"`
	Converged  *bool `yaml:"converged,omitempty"`
	Iterations *int  `yaml:"iterations,omitempty"`
	DirtyTrace []int `yaml:"dirty_trace,omitempty"`

	Code string `yaml:"code,omitempty"`

	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertOutline       = "outline"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertPass          = "pass"
	AssertErrorCount    = "error_count"
	AssertLiveInstances = "live_instances"
	AssertJournalRow    = "journal_row"
)

// AppTemplate names the implicit template wrapping the scenario root.
const AppTemplate = "App"

var (
	scenarioName = regexp.MustCompile(`^[a-z0-9][a-z0-9_]*$`)
	templateName = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
	cellName     = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML from memory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// name a node, step or assertion uses is declared.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !scenarioName.MatchString(s.Name) {
		return fmt.Errorf("name %q must be lower_snake_case", s.Name)
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.MaxDivergences < 0 {
		return fmt.Errorf("max_divergences must be positive")
	}
	if s.DivergenceWindow < 0 {
		return fmt.Errorf("divergence_window must be positive")
	}

	for name := range s.State {
		if !cellName.MatchString(name) {
			return fmt.Errorf("state: invalid cell name %q", name)
		}
	}

	for name, def := range s.Templates {
		if !templateName.MatchString(name) {
			return fmt.Errorf("templates: invalid template name %q", name)
		}
		if name == AppTemplate {
			return fmt.Errorf("templates: %q is reserved for the root", name)
		}
		if err := validateNode(s, &def.Body, "templates."+name+".body"); err != nil {
			return err
		}
	}

	if err := validateNode(s, &s.Root, "root"); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if step.Ticks < 0 {
			return fmt.Errorf("steps[%d]: ticks must be non-negative", i)
		}
		if step.Unmount && (len(step.Set) > 0 || step.Ticks > 0) {
			return fmt.Errorf("steps[%d]: unmount cannot be combined with set or ticks", i)
		}
		for name := range step.Set {
			if _, ok := s.State[name]; !ok {
				return fmt.Errorf("steps[%d]: unknown cell %q", i, name)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateNode checks one node and its subtree.
func validateNode(s *Scenario, n *Node, path string) error {
	kinds := n.kinds()
	switch len(kinds) {
	case 0:
		return fmt.Errorf("%s: node has no kind", path)
	case 1:
	default:
		return fmt.Errorf("%s: node mixes kinds %s", path, strings.Join(kinds, ", "))
	}

	for _, expr := range n.exprs() {
		if err := validateExpr(s, expr); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	switch kinds[0] {
	case "element":
		for i := range n.Children {
			if err := validateNode(s, &n.Children[i], fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
				return err
			}
		}
	case "fragment":
		for i := range n.Fragment {
			if err := validateNode(s, &n.Fragment[i], fmt.Sprintf("%s.fragment[%d]", path, i)); err != nil {
				return err
			}
		}
	case "when":
		if n.Then == nil && n.Else == nil {
			return fmt.Errorf("%s: when needs then or else", path)
		}
		for name, branch := range map[string]*Node{"then": n.Then, "else": n.Else} {
			if branch == nil {
				continue
			}
			if err := validateNode(s, branch, path+"."+name); err != nil {
				return err
			}
		}
	case "switch":
		if len(n.Cases) == 0 {
			return fmt.Errorf("%s: switch needs cases", path)
		}
		for key, arm := range n.Cases {
			if err := validateNode(s, &arm, path+".cases."+key); err != nil {
				return err
			}
		}
		if n.Default != nil {
			if err := validateNode(s, n.Default, path+".default"); err != nil {
				return err
			}
		}
	case "each":
		if n.Do == nil {
			return fmt.Errorf("%s: each needs do", path)
		}
		// Rows are built during reconciliation, after the enclosing
		// template has finished recording reads, so a row must be its own
		// template and its props may only use the row variable.
		if n.Do.Template == "" || len(n.Do.kinds()) != 1 {
			return fmt.Errorf("%s.do: each rows must be a template node", path)
		}
		for prop, expr := range n.Do.Props {
			if strings.HasPrefix(expr, "$") {
				return fmt.Errorf("%s.do.props.%s: row props cannot read state cells", path, prop)
			}
		}
		if err := validateNode(s, n.Do, path+".do"); err != nil {
			return err
		}
		if n.Fallback != nil {
			if err := validateNode(s, n.Fallback, path+".fallback"); err != nil {
				return err
			}
		}
	case "dynamic":
		if err := validateNode(s, n.Dynamic, path+".dynamic"); err != nil {
			return err
		}
	case "template":
		if _, ok := s.Templates[n.Template]; !ok {
			return fmt.Errorf("%s: unknown template %q", path, n.Template)
		}
	case "feedback":
		if _, ok := s.State[n.Feedback.Cell]; !ok {
			return fmt.Errorf("%s: feedback on unknown cell %q", path, n.Feedback.Cell)
		}
		if n.Feedback.Limit < 0 {
			return fmt.Errorf("%s: feedback limit must be non-negative", path)
		}
	}
	return nil
}

// kinds lists the kind fields set on n.
func (n *Node) kinds() []string {
	var out []string
	if n.Element != "" {
		out = append(out, "element")
	}
	if n.Text != nil {
		out = append(out, "text")
	}
	if n.When != "" {
		out = append(out, "when")
	}
	if n.Switch != "" {
		out = append(out, "switch")
	}
	if n.Each != "" {
		out = append(out, "each")
	}
	if n.Dynamic != nil {
		out = append(out, "dynamic")
	}
	if n.Template != "" {
		out = append(out, "template")
	}
	if n.Feedback != nil {
		out = append(out, "feedback")
	}
	if n.Fragment != nil {
		out = append(out, "fragment")
	}
	return out
}

// exprs lists the expressions n evaluates directly.
func (n *Node) exprs() []string {
	var out []string
	if n.Text != nil {
		for _, p := range parseText(*n.Text) {
			if p.expr {
				out = append(out, p.text)
			}
		}
	}
	for _, e := range []string{n.When, n.Switch, n.Each} {
		if e != "" {
			out = append(out, e)
		}
	}
	for _, e := range n.Props {
		out = append(out, e)
	}
	return out
}

// validateExpr checks that a cell read names a declared cell.
func validateExpr(s *Scenario, expr string) error {
	if expr == "" {
		return fmt.Errorf("empty expression")
	}
	if !strings.HasPrefix(expr, "$") {
		return nil
	}
	name, _, _ := strings.Cut(expr[1:], ".")
	if _, ok := s.State[name]; !ok {
		return fmt.Errorf("unknown cell %q", name)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutline:
		if a.Lines == nil {
			return fmt.Errorf("assertions[%d]: lines is required for outline (use [] for none)", index)
		}
	case AssertTraceContains:
		if a.Kind == "" || a.Instance == "" {
			return fmt.Errorf("assertions[%d]: kind and instance are required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" || a.Instance == "" {
			return fmt.Errorf("assertions[%d]: kind and instance are required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertPass:
		if a.Tick < 1 {
			return fmt.Errorf("assertions[%d]: tick must be at least 1 for pass", index)
		}
	case AssertErrorCount:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for error_count", index)
		}
	case AssertLiveInstances:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for live_instances", index)
		}
	case AssertJournalRow:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for journal_row", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for journal_row", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
