package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowkernel/kernel/internal/kernelerr"
)

var validate = validator.New()

var uuid4Pattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// Load parses raw into a Workflow and runs structural validation,
// returning a kernelerr.Validation error describing every problem found
// (not just the first) so a caller can report them all at once.
func Load(raw []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, kernelerr.Wrap(kernelerr.Validation, err, "workflow document is not valid JSON")
	}
	if err := Validate(&wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Validate checks wf for structural integrity: required fields, UUIDv4
// id shapes, dangling edge endpoints, missing role references, and
// malformed activity I/O slot schemas. All problems are accumulated and
// reported together.
func Validate(wf *Workflow) error {
	var problems []string

	if err := validate.Struct(wf); err != nil {
		problems = append(problems, fieldErrors(err)...)
	}
	if !uuid4Pattern.MatchString(wf.ID) {
		problems = append(problems, fmt.Sprintf("workflow id %q is not a UUIDv4", wf.ID))
	}

	nodeIDs := make(map[string]bool)
	roleIDs := make(map[string]bool)
	edgeIDs := make(map[string]bool)

	for _, r := range wf.Roles {
		roleIDs[r.ID] = true
	}
	for _, a := range wf.Activities {
		if nodeIDs[a.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", a.ID))
		}
		nodeIDs[a.ID] = true
		if !uuid4Pattern.MatchString(a.ID) {
			problems = append(problems, fmt.Sprintf("activity id %q is not a UUIDv4", a.ID))
		}
		if a.RoleID != "" && len(roleIDs) > 0 && !roleIDs[a.RoleID] {
			problems = append(problems, fmt.Sprintf("activity %q references undeclared role %q", a.ID, a.RoleID))
		}
		for i, in := range a.Inputs {
			if err := validateSlotSchema(in); err != nil {
				problems = append(problems, fmt.Sprintf("activity %q input[%d] %q: %v", a.ID, i, in.Name, err))
			}
		}
		for i, out := range a.Outputs {
			if err := validateSlotSchema(out); err != nil {
				problems = append(problems, fmt.Sprintf("activity %q output[%d] %q: %v", a.ID, i, out.Name, err))
			}
		}
	}
	for _, d := range wf.DecisionNodes {
		if nodeIDs[d.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", d.ID))
		}
		nodeIDs[d.ID] = true
		if d.DecisionTable.HitPolicy == "" {
			problems = append(problems, fmt.Sprintf("decision node %q declares no hit_policy", d.ID))
		}
	}
	for _, e := range wf.Events {
		nodeIDs[e.ID] = true
	}
	for _, e := range wf.Edges {
		edgeIDs[e.ID] = true
		if !nodeIDs[e.SourceID] {
			problems = append(problems, fmt.Sprintf("edge %q has dangling source_id %q", e.ID, e.SourceID))
		}
		if !nodeIDs[e.TargetID] {
			problems = append(problems, fmt.Sprintf("edge %q has dangling target_id %q", e.ID, e.TargetID))
		}
	}
	for _, d := range wf.DecisionNodes {
		for i, rule := range d.DecisionTable.Rules {
			if rule.OutputEdgeID != "" && !edgeIDs[rule.OutputEdgeID] {
				problems = append(problems, fmt.Sprintf("decision node %q rule[%d] references unknown edge %q", d.ID, i, rule.OutputEdgeID))
			}
		}
		if d.DefaultOutputEdgeID != "" && !edgeIDs[d.DefaultOutputEdgeID] {
			problems = append(problems, fmt.Sprintf("decision node %q default_output_edge_id %q is unknown", d.ID, d.DefaultOutputEdgeID))
		}
	}

	if len(problems) > 0 {
		return kernelerr.New(kernelerr.Validation, "workflow %q failed validation: %s", wf.ID, strings.Join(problems, "; "))
	}
	return nil
}

// validateSlotSchema compiles and sanity-checks a declared JSON Schema
// on a data slot, if present. It does not validate any payload here —
// that happens per-invocation in ValidatePayload.
func validateSlotSchema(slot DataSlot) error {
	if len(slot.Schema) == 0 {
		return nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(slot.Name+".json", slot.Schema); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	if _, err := c.Compile(slot.Name + ".json"); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return nil
}

// ValidatePayload validates a runtime JSON value against a data slot's
// declared schema, in best-effort mode: a slot with no schema always
// passes. Used before human-task creation so malformed actor payloads
// surface as validation-error rather than an opaque actor failure.
func ValidatePayload(slot DataSlot, payload any) error {
	if len(slot.Schema) == 0 {
		return nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(slot.Name+".json", slot.Schema); err != nil {
		return kernelerr.Wrap(kernelerr.Validation, err, "add schema resource for slot %q", slot.Name)
	}
	schema, err := c.Compile(slot.Name + ".json")
	if err != nil {
		return kernelerr.Wrap(kernelerr.Validation, err, "compile schema for slot %q", slot.Name)
	}
	if err := schema.Validate(payload); err != nil {
		return kernelerr.Wrap(kernelerr.Validation, err, "payload for slot %q failed schema validation", slot.Name)
	}
	return nil
}

func fieldErrors(err error) []string {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, fmt.Sprintf("field %q failed %q", fe.Namespace(), fe.Tag()))
	}
	return out
}
