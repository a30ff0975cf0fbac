package models

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/errors"
)

// FieldRule is the weight and match threshold of one scored field
type FieldRule struct {
	Weight    float64 `json:"weight" validate:"gte=0,lte=1"`
	Threshold float64 `json:"threshold" validate:"gte=0,lte=1"`
}

// ResolutionConfig controls a single resolution run. It is a value object:
// runs take a private copy and never mutate it.
type ResolutionConfig struct {
	Fields                  map[FieldType]FieldRule `json:"fields" validate:"required,min=1,dive,keys,oneof=name email phone address organization,endkeys"`
	MinAutoMergeConfidence  float64                 `json:"min_auto_merge_confidence" validate:"gte=0,lte=1"`
	MinReviewConfidence     float64                 `json:"min_review_confidence" validate:"gte=0,lte=1,ltefield=MinAutoMergeConfidence"`
	MaxAutoMergeClusterSize int                     `json:"max_auto_merge_cluster_size" validate:"gte=2"`
	ExactEmailMatch         bool                    `json:"exact_email_match"`
	ExactOrgIDMatch         bool                    `json:"exact_org_id_match"`
	PrefixScale             float64                 `json:"prefix_scale" validate:"gte=0,lte=0.25"`
}

// DefaultResolutionConfig returns the default weights and thresholds
func DefaultResolutionConfig() ResolutionConfig {
	return ResolutionConfig{
		Fields: map[FieldType]FieldRule{
			FieldName:         {Weight: 0.35, Threshold: 0.85},
			FieldEmail:        {Weight: 0.30, Threshold: 0.90},
			FieldPhone:        {Weight: 0.15, Threshold: 0.90},
			FieldAddress:      {Weight: 0.10, Threshold: 0.80},
			FieldOrganization: {Weight: 0.10, Threshold: 0.85},
		},
		MinAutoMergeConfidence:  0.85,
		MaxAutoMergeClusterSize: 10,
		ExactEmailMatch:         true,
		ExactOrgIDMatch:         true,
		PrefixScale:             0.1,
	}
}

var configValidator = validator.New()

// NewResolutionConfig validates cfg and returns an independent copy of it
func NewResolutionConfig(cfg ResolutionConfig) (ResolutionConfig, error) {
	if err := cfg.Validate(); err != nil {
		return ResolutionConfig{}, err
	}
	return cfg.Clone(), nil
}

// Validate rejects out-of-range weights and thresholds before a run starts
func (c ResolutionConfig) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		for f, rule := range c.Fields {
			if rule.Weight < 0 || rule.Weight > 1 || rule.Threshold < 0 || rule.Threshold > 1 {
				return errors.NewConfigurationError("invalid resolution config: %s weight and threshold must lie in [0,1]", f)
			}
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.NewConfigurationError("invalid resolution config: %v", err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	sort.Strings(problems)
	return errors.NewConfigurationError("invalid resolution config: %s", strings.Join(problems, "; "))
}

// Clone returns a deep copy so callers can't mutate a running config
func (c ResolutionConfig) Clone() ResolutionConfig {
	out := c
	out.Fields = make(map[FieldType]FieldRule, len(c.Fields))
	for f, r := range c.Fields {
		out.Fields[f] = r
	}
	return out
}

// Rule returns the rule configured for a field
func (c *ResolutionConfig) Rule(f FieldType) (FieldRule, bool) {
	r, ok := c.Fields[f]
	return r, ok
}

// LowestThreshold is the smallest configured field threshold.
// Blocking uses it as its recall floor.
func (c *ResolutionConfig) LowestThreshold() float64 {
	lowest := 1.0
	for _, r := range c.Fields {
		if r.Threshold < lowest {
			lowest = r.Threshold
		}
	}
	return lowest
}

// ReviewBandEnabled reports whether sub-threshold pairs are kept as review edges
func (c *ResolutionConfig) ReviewBandEnabled() bool {
	return c.MinReviewConfidence > 0 && c.MinReviewConfidence < c.MinAutoMergeConfidence
}
