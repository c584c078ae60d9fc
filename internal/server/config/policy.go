package config

import (
	"fmt"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/infra/confloader"
)

// PolicyDocument is the on-disk trap policy.
//
//	trap_keys:
//	  - value: sk-live-4f9a...
//	    winning: true
//	    label: readme-snippet
//	trap_prompts:
//	  - id: tp-001
//	    real_resource_id: prompt-001
//	    title: ...
type PolicyDocument struct {
	TrapKeys    []domain.TrapKey    `koanf:"trap_keys"`
	TrapPrompts []domain.TrapPrompt `koanf:"trap_prompts"`
}

// LoadPolicyFile reads a policy document from a YAML file.
func LoadPolicyFile(path string) (*PolicyDocument, error) {
	l := confloader.NewLoader()
	if err := l.LoadFile(path); err != nil {
		return nil, err
	}
	var doc PolicyDocument
	if err := l.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("decode policy %s: %w", path, err)
	}
	return &doc, nil
}

// Policy freezes the trap keys into an immutable policy.
func (d *PolicyDocument) Policy() (*domain.TrapPolicy, error) {
	return domain.NewTrapPolicy(d.TrapKeys)
}

// VerifyPrompts checks the decoy table: ids present and unique, and at
// most one decoy per real resource.
func (d *PolicyDocument) VerifyPrompts() error {
	ids := make(map[string]struct{}, len(d.TrapPrompts))
	reals := make(map[string]string, len(d.TrapPrompts))
	for i, tp := range d.TrapPrompts {
		if tp.ID == "" || tp.RealResourceID == "" {
			return fmt.Errorf("trap_prompts[%d]: id and real_resource_id are required", i)
		}
		if _, dup := ids[tp.ID]; dup {
			return fmt.Errorf("trap_prompts[%d]: duplicate id %q", i, tp.ID)
		}
		ids[tp.ID] = struct{}{}
		if other, dup := reals[tp.RealResourceID]; dup {
			return fmt.Errorf("trap_prompts[%d]: real resource %q already mapped to %q", i, tp.RealResourceID, other)
		}
		reals[tp.RealResourceID] = tp.ID
	}
	return nil
}

// LoadPolicy reads the file and returns both the frozen policy and the
// decoy table.
func LoadPolicy(path string) (*domain.TrapPolicy, []domain.TrapPrompt, error) {
	doc, err := LoadPolicyFile(path)
	if err != nil {
		return nil, nil, err
	}
	p, err := doc.Policy()
	if err != nil {
		return nil, nil, err
	}
	if err := doc.VerifyPrompts(); err != nil {
		return nil, nil, err
	}
	return p, doc.TrapPrompts, nil
}
