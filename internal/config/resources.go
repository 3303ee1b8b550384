package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"rentcal/internal/calendar"
	"rentcal/internal/models"
)

// ResourceConfig represents a single bookable resource.
type ResourceConfig struct {
	ID                  string   `yaml:"id"`
	Name                string   `yaml:"name"`
	Kind                string   `yaml:"kind"`
	RatePerDayCents     int64    `yaml:"rate_per_day_cents"`
	DepositCents        *int64   `yaml:"deposit_cents,omitempty"`
	PlatformFeeCents    *int64   `yaml:"platform_fee_cents,omitempty"`
	Timezone            string   `yaml:"timezone"`
	UnavailableWeekdays []string `yaml:"unavailable_weekdays"`
	IsActive            bool     `yaml:"is_active"`
}

// BlackoutConfig closes one date. An empty Resources list applies to every resource.
type BlackoutConfig struct {
	Date      string   `yaml:"date"` // "2026-01-01"
	Name      string   `yaml:"name"`
	Resources []string `yaml:"resources,omitempty"`
}

// ResourceDefaultsConfig is applied to resources that leave a field unset.
type ResourceDefaultsConfig struct {
	Timezone            string   `yaml:"timezone"`
	UnavailableWeekdays []string `yaml:"unavailable_weekdays"`
	DepositCents        int64    `yaml:"deposit_cents"`
	PlatformFeeCents    int64    `yaml:"platform_fee_cents"`
}

// ResourcesConfig is the root of resources.yaml.
type ResourcesConfig struct {
	Resources []ResourceConfig       `yaml:"resources"`
	Defaults  ResourceDefaultsConfig `yaml:"defaults"`
	Blackouts []BlackoutConfig       `yaml:"blackouts"`
}

// LoadResourcesConfig loads and validates the resource catalogue.
func LoadResourcesConfig(path string) (*ResourcesConfig, error) {
	if path == "" {
		path = "configs/resources.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources config: %w", err)
	}

	var cfg ResourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse resources config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate resources config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *ResourcesConfig) Validate() error {
	if len(c.Resources) == 0 {
		return fmt.Errorf("no resources defined")
	}

	ids := make(map[string]bool)
	for i, r := range c.Resources {
		if r.ID == "" {
			return fmt.Errorf("resource[%d]: id is required", i)
		}
		if ids[r.ID] {
			return fmt.Errorf("resource[%d]: duplicate id '%s'", i, r.ID)
		}
		ids[r.ID] = true

		if r.Name == "" {
			return fmt.Errorf("resource[%d]: name is required", i)
		}
		switch models.ResourceKind(r.Kind) {
		case models.KindItem, models.KindService:
		default:
			return fmt.Errorf("resource[%d]: unknown kind '%s'", i, r.Kind)
		}
		if r.RatePerDayCents < 0 {
			return fmt.Errorf("resource[%d]: rate_per_day_cents cannot be negative", i)
		}
		if r.DepositCents != nil && *r.DepositCents < 0 {
			return fmt.Errorf("resource[%d]: deposit_cents cannot be negative", i)
		}
		if r.PlatformFeeCents != nil && *r.PlatformFeeCents < 0 {
			return fmt.Errorf("resource[%d]: platform_fee_cents cannot be negative", i)
		}
		if _, err := time.LoadLocation(r.Timezone); err != nil || r.Timezone == "" {
			return fmt.Errorf("resource[%d]: invalid timezone '%s'", i, r.Timezone)
		}
		if _, err := calendar.ParseWeekdaySet(r.UnavailableWeekdays); err != nil {
			return fmt.Errorf("resource[%d].unavailable_weekdays: %w", i, err)
		}
	}

	for i, b := range c.Blackouts {
		if b.Date == "" {
			return fmt.Errorf("blackout[%d]: date is required", i)
		}
		if _, err := calendar.ParseDateKey(b.Date); err != nil {
			return fmt.Errorf("blackout[%d]: invalid date format '%s', expected YYYY-MM-DD", i, b.Date)
		}
		for _, id := range b.Resources {
			if !ids[id] {
				return fmt.Errorf("blackout[%d]: unknown resource '%s'", i, id)
			}
		}
	}

	return nil
}

func (c *ResourcesConfig) applyDefaults() {
	if c.Defaults.Timezone == "" {
		c.Defaults.Timezone = "UTC"
	}
	for i := range c.Resources {
		r := &c.Resources[i]
		if r.Kind == "" {
			r.Kind = string(models.KindItem)
		}
		if r.Timezone == "" {
			r.Timezone = c.Defaults.Timezone
		}
		if r.UnavailableWeekdays == nil {
			r.UnavailableWeekdays = c.Defaults.UnavailableWeekdays
		}
		if r.DepositCents == nil {
			d := c.Defaults.DepositCents
			r.DepositCents = &d
		}
		if r.PlatformFeeCents == nil {
			f := c.Defaults.PlatformFeeCents
			r.PlatformFeeCents = &f
		}
	}
}

// GetResourceByID returns resource config by ID.
func (c *ResourcesConfig) GetResourceByID(id string) *ResourceConfig {
	for i := range c.Resources {
		if c.Resources[i].ID == id {
			return &c.Resources[i]
		}
	}
	return nil
}

// Model converts the entry into a validated models.Resource.
func (r ResourceConfig) Model() (*models.Resource, error) {
	weekdays, err := calendar.ParseWeekdaySet(r.UnavailableWeekdays)
	if err != nil {
		return nil, err
	}
	var deposit, fee int64
	if r.DepositCents != nil {
		deposit = *r.DepositCents
	}
	if r.PlatformFeeCents != nil {
		fee = *r.PlatformFeeCents
	}
	res, err := models.NewResource(r.ID, r.Name, models.ResourceKind(r.Kind), r.RatePerDayCents, deposit, fee, r.Timezone, weekdays)
	if err != nil {
		return nil, err
	}
	res.IsActive = r.IsActive
	return res, nil
}

// BlackoutsFor returns the blackout dates that apply to resourceID.
func (c *ResourcesConfig) BlackoutsFor(resourceID string) []models.BlackoutDate {
	var out []models.BlackoutDate
	for _, b := range c.Blackouts {
		applies := len(b.Resources) == 0
		for _, id := range b.Resources {
			if id == resourceID {
				applies = true
				break
			}
		}
		if applies {
			out = append(out, models.BlackoutDate{
				ResourceID: resourceID,
				Date:       calendar.DateKey(b.Date),
				Reason:     b.Name,
			})
		}
	}
	return out
}

// String returns a summary of the configuration.
func (c *ResourcesConfig) String() string {
	active := 0
	for _, r := range c.Resources {
		if r.IsActive {
			active++
		}
	}
	return fmt.Sprintf("ResourcesConfig: %d resources (%d active), %d blackouts",
		len(c.Resources), active, len(c.Blackouts))
}
