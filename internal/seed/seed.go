// Package seed loads reference data (assignees, statuses, unit models) from
// a YAML file into an empty catalog.
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"repair_tracker/internal/logger"
	"repair_tracker/internal/service"
)

type Data struct {
	Assignees  []Assignee  `yaml:"assignees"`
	Statuses   []Status    `yaml:"statuses"`
	UnitModels []UnitModel `yaml:"unit_models"`
}

type Assignee struct {
	Name     string `yaml:"name"`
	IsActive *bool  `yaml:"is_active"`
}

type Status struct {
	Status             string `yaml:"status"`
	Color              string `yaml:"color"`
	IsEnding           bool   `yaml:"is_ending_status"`
	CanUseForOrder     bool   `yaml:"can_use_for_order"`
	CanUseForMachine   bool   `yaml:"can_use_for_machine"`
	CanUseForHashboard bool   `yaml:"can_use_for_hashboard"`
}

type UnitModel struct {
	Name string `yaml:"name"`
}

// Load reads and decodes the seed file at path.
func Load(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var d Data
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	return &d, nil
}

// Apply inserts each section of d whose table is still empty. Sections that
// already hold data are left alone, so Apply is safe on every start.
func Apply(ctx context.Context, cat service.Catalog, d *Data, log *logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}

	assignees, err := cat.ListAssignees(ctx, false)
	if err != nil {
		return err
	}
	if len(assignees) == 0 {
		for _, a := range d.Assignees {
			name := a.Name
			if _, err := cat.SaveAssignee(ctx, service.AssigneeParams{Name: &name, IsActive: a.IsActive}); err != nil {
				return fmt.Errorf("seed assignee %q: %w", a.Name, err)
			}
		}
		log.Infow("seed_assignees", "count", len(d.Assignees))
	}

	statuses, err := cat.ListStatuses(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		for _, s := range d.Statuses {
			s := s
			p := service.StatusParams{
				Status:             &s.Status,
				Color:              &s.Color,
				IsEnding:           &s.IsEnding,
				CanUseForOrder:     &s.CanUseForOrder,
				CanUseForMachine:   &s.CanUseForMachine,
				CanUseForHashboard: &s.CanUseForHashboard,
			}
			if _, err := cat.SaveStatus(ctx, p); err != nil {
				return fmt.Errorf("seed status %q: %w", s.Status, err)
			}
		}
		log.Infow("seed_statuses", "count", len(d.Statuses))
	}

	unitModels, err := cat.ListUnitModels(ctx)
	if err != nil {
		return err
	}
	if len(unitModels) == 0 {
		for _, m := range d.UnitModels {
			name := m.Name
			if _, err := cat.SaveUnitModel(ctx, service.UnitModelParams{Name: &name}); err != nil {
				return fmt.Errorf("seed unit model %q: %w", m.Name, err)
			}
		}
		log.Infow("seed_unit_models", "count", len(d.UnitModels))
	}
	return nil
}
