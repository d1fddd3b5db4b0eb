package items

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// inventory file layout:
//
//	items:
//	  - org: acme
//	    repo: api
//	    kind: issue
//	    number: 12
//	    title: ...
type inventory struct {
	Items []domain.Item `yaml:"items"`
}

// Inventory is an ItemSource over a YAML file. The file is read on every
// Find so edits are picked up without a restart.
type Inventory struct {
	Path string
}

func (s *Inventory) load() ([]domain.Item, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var inv inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", s.Path, err)
	}
	for i, it := range inv.Items {
		if it.Kind == "" {
			inv.Items[i].Kind = domain.KindIssue
		}
		if !inv.Items[i].Kind.Valid() {
			return nil, fmt.Errorf("inventory item %d: unknown kind %q", i, it.Kind)
		}
		if strings.Contains(it.Org, "_") {
			return nil, fmt.Errorf("inventory item %d: org %q must not contain underscores", i, it.Org)
		}
		if it.Org == "" || it.Repo == "" || it.Number <= 0 {
			return nil, fmt.Errorf("inventory item %d: org, repo and a positive number are required", i)
		}
		if !domain.ValidRepo(it.Repo) {
			return nil, fmt.Errorf("inventory item %d: invalid repo name %q", i, it.Repo)
		}
	}
	return inv.Items, nil
}

// Find returns the items matching scope, ordered by org, repo, number.
// An empty result is a *NoItemsError.
func (s *Inventory) Find(ctx context.Context, scope domain.Scope) ([]domain.Item, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []domain.Item
	for _, it := range all {
		if scope.Org != "" && it.Org != scope.Org {
			continue
		}
		if scope.Repo != "" && it.Repo != scope.Repo {
			continue
		}
		if scope.Number != 0 && it.Number != scope.Number {
			continue
		}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil, &domain.NoItemsError{Scope: scope}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Org != b.Org {
			return a.Org < b.Org
		}
		if a.Repo != b.Repo {
			return a.Repo < b.Repo
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.Kind < b.Kind
	})
	return out, nil
}
