package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"hr-suite/internal/workflow"
)

// policyFile is the TOML layout of WORKFLOW_POLICY_FILE:
//
//	[[class]]
//	name = "tax_rule"
//	delete = "rejected_locks_out"
//	reopen_on_edit = true
//	request_prefix = "TAX"
type policyFile struct {
	Class []classEntry `toml:"class"`
}

type classEntry struct {
	Name          string `toml:"name"`
	Delete        string `toml:"delete"`
	ReopenOnEdit  bool   `toml:"reopen_on_edit"`
	RequestPrefix string `toml:"request_prefix"`
}

// LoadPolicies returns the built-in class policies, overridden and extended
// by the file at path when path is set.
func LoadPolicies(path string) (workflow.Policies, error) {
	list := workflow.DefaultClassPolicies()
	if path == "" {
		return workflow.NewPolicies(list...)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return workflow.Policies{}, fmt.Errorf("read policy file: %w", err)
	}
	extra, err := ParsePolicies(raw)
	if err != nil {
		return workflow.Policies{}, err
	}
	return workflow.NewPolicies(append(list, extra...)...)
}

// ParsePolicies decodes policy entries. Unknown keys are rejected.
func ParsePolicies(raw []byte) ([]workflow.ClassPolicy, error) {
	var f policyFile
	dec := toml.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	out := make([]workflow.ClassPolicy, 0, len(f.Class))
	for _, e := range f.Class {
		del := workflow.DeletePolicy(e.Delete)
		if del == "" {
			del = workflow.DeleteRejectedLocksOut
		}
		out = append(out, workflow.ClassPolicy{
			Class:         workflow.SubjectClass(e.Name),
			Delete:        del,
			ReopenOnEdit:  e.ReopenOnEdit,
			RequestPrefix: e.RequestPrefix,
		})
	}
	return out, nil
}
