package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/depnotify/internal/update"
)

// Scenario is a scripted session against a fresh engine.
// Steps drive the public API; dependents may call back into the engine
// while they are being notified; assertions check the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is an optional fixed journal run ID.
	// If empty, defaults to "run-default" for deterministic output.
	RunID string `yaml:"run_id,omitempty"`

	// Engine overrides engine limits for this scenario.
	Engine *EngineSettings `yaml:"engine,omitempty"`

	// Dependents declares every dependent the scenario refers to.
	Dependents []DependentSpec `yaml:"dependents"`

	// Steps run in order on the calling goroutine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final engine state.
	Assertions []Assertion `yaml:"assertions"`
}

// EngineSettings mirrors the engine section of the config file.
type EngineSettings struct {
	Shards        int `yaml:"shards,omitempty"`
	MaxDependents int `yaml:"max_dependents,omitempty"`
}

// DependentSpec declares a named dependent and what it does when notified.
type DependentSpec struct {
	Name string `yaml:"name"`

	// OnUpdate runs in order inside the dependent's Update.
	OnUpdate []Action `yaml:"on_update,omitempty"`
}

// Target names the operands of a step or action. Empty fields mean "none":
// an empty subject on flush drains everything, an empty dependent on remove
// removes every dependent of the subject.
type Target struct {
	Subject   string          `yaml:"subject,omitempty"`
	Dependent string          `yaml:"dependent,omitempty"`
	Message   *update.Message `yaml:"message,omitempty"`
}

// subject returns the handle passed to the engine: nil when empty.
func (t *Target) subject() any {
	if t == nil || t.Subject == "" {
		return nil
	}
	return t.Subject
}

// Action is one thing a dependent does from inside Update.
// Exactly one operation field must be set.
type Action struct {
	Add     *Target `yaml:"add,omitempty"`
	Remove  *Target `yaml:"remove,omitempty"`
	Defer   *Target `yaml:"defer,omitempty"`
	Trigger *Target `yaml:"trigger,omitempty"`
	Flush   *Target `yaml:"flush,omitempty"`
	Cancel  *Target `yaml:"cancel,omitempty"`

	// Fail makes Update return an error with this text.
	Fail string `yaml:"fail,omitempty"`

	// When restricts the action to matching notifications.
	When *Target `yaml:"when,omitempty"`

	// Once limits the action to its first matching notification.
	Once bool `yaml:"once,omitempty"`
}

// Step is one engine call. Exactly one operation field must be set.
type Step struct {
	Add     *Target `yaml:"add,omitempty"`
	Remove  *Target `yaml:"remove,omitempty"`
	Trigger *Target `yaml:"trigger,omitempty"`
	Defer   *Target `yaml:"defer,omitempty"`
	Flush   *Target `yaml:"flush,omitempty"`
	Cancel  *Target `yaml:"cancel,omitempty"`
	Count   *Target `yaml:"count,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the return values of a step.
type Expect struct {
	Delivered *bool `yaml:"delivered,omitempty"` // trigger
	Removed   *int  `yaml:"removed,omitempty"`   // remove
	Cancelled *int  `yaml:"cancelled,omitempty"` // cancel
	Count     *int  `yaml:"count,omitempty"`     // count

	// Error is a substring the step's error must contain.
	// Without it any error fails the step.
	Error string `yaml:"error,omitempty"`
}

// Operation names used by steps and actions.
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpTrigger = "trigger"
	OpDefer   = "defer"
	OpFlush   = "flush"
	OpCancel  = "cancel"
	OpCount   = "count"
	OpFail    = "fail"
)

// op returns the step's operation and its target.
func (s *Step) op() (string, *Target, error) {
	return pickOp([]namedTarget{
		{OpAdd, s.Add},
		{OpRemove, s.Remove},
		{OpTrigger, s.Trigger},
		{OpDefer, s.Defer},
		{OpFlush, s.Flush},
		{OpCancel, s.Cancel},
		{OpCount, s.Count},
	})
}

// op returns the action's operation and its target. Fail has no target.
func (a *Action) op() (string, *Target, error) {
	candidates := []namedTarget{
		{OpAdd, a.Add},
		{OpRemove, a.Remove},
		{OpTrigger, a.Trigger},
		{OpDefer, a.Defer},
		{OpFlush, a.Flush},
		{OpCancel, a.Cancel},
	}
	if a.Fail != "" {
		candidates = append(candidates, namedTarget{OpFail, &Target{}})
	}
	return pickOp(candidates)
}

type namedTarget struct {
	name   string
	target *Target
}

func pickOp(candidates []namedTarget) (string, *Target, error) {
	var name string
	var target *Target
	for _, c := range candidates {
		if c.target == nil {
			continue
		}
		if name != "" {
			return "", nil, fmt.Errorf("both %s and %s set; exactly one operation allowed", name, c.name)
		}
		name, target = c.name, c.target
	}
	if name == "" {
		return "", nil, errors.New("no operation set")
	}
	return name, target, nil
}

// LoadError is returned when a scenario file cannot be read, parsed or
// validated.
type LoadError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("scenario %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadScenario reads and parses a scenario YAML file.
// Returns a *LoadError if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("failed to read scenario file: %w", err)}
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
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
// dependent referenced is declared.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}

	if s.Engine != nil {
		if s.Engine.Shards < 0 {
			return errors.New("engine.shards must be non-negative")
		}
		if s.Engine.MaxDependents < 0 {
			return errors.New("engine.max_dependents must be non-negative")
		}
	}

	declared := make(map[string]bool, len(s.Dependents))
	for i, d := range s.Dependents {
		if d.Name == "" {
			return fmt.Errorf("dependents[%d]: name is required", i)
		}
		if declared[d.Name] {
			return fmt.Errorf("dependents[%d]: duplicate name %q", i, d.Name)
		}
		declared[d.Name] = true
	}

	for i, d := range s.Dependents {
		for j := range d.OnUpdate {
			a := &d.OnUpdate[j]
			name, target, err := a.op()
			if err != nil {
				return fmt.Errorf("dependents[%d].on_update[%d]: %w", i, j, err)
			}
			if name == OpFail {
				continue
			}
			if err := validateTarget(name, target, declared); err != nil {
				return fmt.Errorf("dependents[%d].on_update[%d]: %w", i, j, err)
			}
		}
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		name, target, err := step.op()
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if err := validateTarget(name, target, declared); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if err := validateExpect(name, step.Expect); err != nil {
			return fmt.Errorf("steps[%d].expect: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], declared); err != nil {
			return err
		}
	}

	return nil
}

func validateTarget(op string, t *Target, declared map[string]bool) error {
	if t.Dependent != "" && !declared[t.Dependent] {
		return fmt.Errorf("%s: undeclared dependent %q", op, t.Dependent)
	}

	switch op {
	case OpAdd:
		if t.Subject == "" || t.Dependent == "" {
			return fmt.Errorf("%s: subject and dependent are required", op)
		}
	case OpTrigger, OpDefer:
		if t.Subject == "" {
			return fmt.Errorf("%s: subject is required", op)
		}
		if t.Message == nil {
			return fmt.Errorf("%s: message is required", op)
		}
	case OpCancel:
		if t.Subject == "" {
			return fmt.Errorf("%s: subject is required", op)
		}
	}
	// remove with neither subject nor dependent is legal: it exercises the
	// invalid-argument error.
	return nil
}

func validateExpect(op string, e *Expect) error {
	if e == nil {
		return nil
	}
	check := func(set bool, field, want string) error {
		if set && op != want {
			return fmt.Errorf("%s only applies to %s steps", field, want)
		}
		return nil
	}
	if err := check(e.Delivered != nil, "delivered", OpTrigger); err != nil {
		return err
	}
	if err := check(e.Removed != nil, "removed", OpRemove); err != nil {
		return err
	}
	if err := check(e.Cancelled != nil, "cancelled", OpCancel); err != nil {
		return err
	}
	return check(e.Count != nil, "count", OpCount)
}
