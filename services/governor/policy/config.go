// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/strait/pkg/validation"
	"github.com/AleutianAI/strait/services/governor/teams"
)

// DefaultPolicyKey is the review_policies key consulted when neither
// the repository nor the owning team has a policy.
const DefaultPolicyKey = "default"

// DefaultDetectTimeoutSeconds bounds the breaking-change detector call.
const DefaultDetectTimeoutSeconds = 60

var configValidate = validator.New()

func init() {
	_ = configValidate.RegisterValidation("policyaction", func(fl validator.FieldLevel) bool {
		_, err := ParsePolicyAction(fl.Field().String())
		return err == nil
	})
}

// ReviewPolicy configures review requirements for a repository or team.
type ReviewPolicy struct {
	// RequiredReviewers lists individuals ("alice") and team references
	// ("@payments"). A team reference is satisfied by any current member
	// with the maintainer or admin role.
	RequiredReviewers []string `yaml:"required_reviewers" json:"required_reviewers"`

	// ApprovalCount is how many valid approvals are needed.
	ApprovalCount int `yaml:"approval_count" json:"approval_count" validate:"gte=0"`

	// AutoApproveMinor allows non-breaking changes through without
	// review.
	AutoApproveMinor bool `yaml:"auto_approve_minor" json:"auto_approve_minor"`
}

// TeamOverride is a per-team review policy plus team-wide settings. It
// applies to a change when the owning team matches and no exact
// repository policy exists.
type TeamOverride struct {
	ReviewPolicy `yaml:",inline"`

	// RequireReviewForAll mandates review for every change owned by the
	// team, regardless of impact.
	RequireReviewForAll bool `yaml:"require_review_for_all" json:"require_review_for_all"`
}

// NotificationSettings configures the notification dispatcher.
type NotificationSettings struct {
	// Enabled turns team notification delivery on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// WebhookURL is the default delivery endpoint.
	WebhookURL string `yaml:"webhook_url" json:"webhook_url" validate:"omitempty,url"`

	// Channels maps team names to per-team webhook overrides.
	Channels map[string]string `yaml:"channels" json:"channels,omitempty" validate:"omitempty,dive,url"`

	// MaxRetries bounds delivery attempts per notification.
	MaxRetries int `yaml:"max_retries" json:"max_retries" validate:"gte=0,lte=10"`

	// RatePerSecond throttles outbound deliveries. Zero means the
	// dispatcher default.
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second" validate:"gte=0"`

	// Burst is the throttle burst size. Zero means the dispatcher
	// default.
	Burst int `yaml:"burst" json:"burst" validate:"gte=0"`
}

// GlobalSettings carries engine-wide defaults.
type GlobalSettings struct {
	// DefaultBreakingChangePolicy applies to repositories without an
	// entry in breaking_change_policies. Defaults to warn.
	DefaultBreakingChangePolicy string `yaml:"default_breaking_change_policy" json:"default_breaking_change_policy" validate:"omitempty,policyaction"`

	// DetectTimeoutSeconds bounds the breaking-change detector call.
	DetectTimeoutSeconds int `yaml:"detect_timeout_seconds" json:"detect_timeout_seconds" validate:"gte=0"`

	// AuditRetentionDays is how long audit records stay in the live
	// store before the archiver may move them to cold storage. Zero
	// disables archival.
	AuditRetentionDays int `yaml:"audit_retention_days" json:"audit_retention_days" validate:"gte=0"`
}

// DetectTimeout returns the configured detector timeout as a duration.
func (g GlobalSettings) DetectTimeout() time.Duration {
	return time.Duration(g.DetectTimeoutSeconds) * time.Second
}

// Config is the governance configuration consumed by the policy
// enforcer, the change tracker, and the notification dispatcher.
//
// Loaded configs are immutable snapshots; reloading produces a new
// Config rather than mutating the old one.
type Config struct {
	// ReviewPolicies is keyed by exact repository, with "default" as
	// the fallback key.
	ReviewPolicies map[string]ReviewPolicy `yaml:"review_policies" json:"review_policies"`

	// BreakingChangePolicies maps repository to a policy action value.
	BreakingChangePolicies map[string]string `yaml:"breaking_change_policies" json:"breaking_change_policies" validate:"omitempty,dive,policyaction"`

	// TeamOverrides maps owning team to its review policy override.
	TeamOverrides map[string]TeamOverride `yaml:"team_overrides" json:"team_overrides"`

	NotificationSettings NotificationSettings `yaml:"notification_settings" json:"notification_settings"`
	GlobalSettings       GlobalSettings       `yaml:"global_settings" json:"global_settings"`
}

// applyDefaults fills zero-valued settings with engine defaults.
func (c *Config) applyDefaults() {
	if c.GlobalSettings.DefaultBreakingChangePolicy == "" {
		c.GlobalSettings.DefaultBreakingChangePolicy = string(ActionWarn)
	}
	if c.GlobalSettings.DetectTimeoutSeconds == 0 {
		c.GlobalSettings.DetectTimeoutSeconds = DefaultDetectTimeoutSeconds
	}
}

// Validate checks the configuration. All failures wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for key, pol := range c.ReviewPolicies {
		if _, err := teams.ParseReviewers(pol.RequiredReviewers); err != nil {
			return fmt.Errorf("%w: review_policies[%q]: %v", ErrInvalidConfig, key, err)
		}
	}
	for team, override := range c.TeamOverrides {
		if err := validation.ValidateName(team); err != nil {
			return fmt.Errorf("%w: team_overrides key: %v", ErrInvalidConfig, err)
		}
		if _, err := teams.ParseReviewers(override.RequiredReviewers); err != nil {
			return fmt.Errorf("%w: team_overrides[%q]: %v", ErrInvalidConfig, team, err)
		}
	}
	for team := range c.NotificationSettings.Channels {
		if err := validation.ValidateName(team); err != nil {
			return fmt.Errorf("%w: notification_settings.channels key: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// LoadConfig reads, defaults, and validates a governance configuration
// file. Unknown YAML fields are rejected so typos surface at load time
// instead of silently disabling a policy.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read governance config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates raw YAML configuration bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
