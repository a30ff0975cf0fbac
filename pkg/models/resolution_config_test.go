package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/errors"
)

func TestNewResolutionConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ResolutionConfig)
		wantErr bool
	}{
		{name: "default", mutate: func(c *ResolutionConfig) {}},
		{name: "weights need not sum to one", mutate: func(c *ResolutionConfig) {
			c.Fields[FieldName] = FieldRule{Weight: 1, Threshold: 0.9}
			c.Fields[FieldEmail] = FieldRule{Weight: 1, Threshold: 0.9}
		}},
		{name: "weight above one", wantErr: true, mutate: func(c *ResolutionConfig) {
			c.Fields[FieldPhone] = FieldRule{Weight: 1.2, Threshold: 0.9}
		}},
		{name: "negative threshold", wantErr: true, mutate: func(c *ResolutionConfig) {
			c.Fields[FieldAddress] = FieldRule{Weight: 0.1, Threshold: -0.1}
		}},
		{name: "organization id is not a scored field", wantErr: true, mutate: func(c *ResolutionConfig) {
			c.Fields[FieldOrganizationID] = FieldRule{Weight: 0.1, Threshold: 0.9}
		}},
		{name: "no fields", wantErr: true, mutate: func(c *ResolutionConfig) {
			c.Fields = map[FieldType]FieldRule{}
		}},
		{name: "auto merge confidence above one", wantErr: true, mutate: func(c *ResolutionConfig) {
			c.MinAutoMergeConfidence = 1.01
		}},
		{name: "review band above auto merge", wantErr: true, mutate: func(c *ResolutionConfig) {
			c.MinReviewConfidence = 0.9
		}},
		{name: "cluster cap too small", wantErr: true, mutate: func(c *ResolutionConfig) {
			c.MaxAutoMergeClusterSize = 1
		}},
		{name: "prefix scale above cap", wantErr: true, mutate: func(c *ResolutionConfig) {
			c.PrefixScale = 0.3
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultResolutionConfig()
			tt.mutate(&cfg)

			_, err := NewResolutionConfig(cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResolutionConfig_CloneIsIndependent(t *testing.T) {
	cfg := DefaultResolutionConfig()
	clone, err := NewResolutionConfig(cfg)
	require.NoError(t, err)

	cfg.Fields[FieldName] = FieldRule{Weight: 0, Threshold: 0}
	assert.Equal(t, 0.35, clone.Fields[FieldName].Weight)
}

func TestResolutionConfig_Helpers(t *testing.T) {
	cfg := DefaultResolutionConfig()
	assert.Equal(t, 0.80, cfg.LowestThreshold())
	assert.False(t, cfg.ReviewBandEnabled())

	cfg.MinReviewConfidence = 0.6
	assert.True(t, cfg.ReviewBandEnabled())

	_, ok := cfg.Rule(FieldOrganizationID)
	assert.False(t, ok)
}

func TestClusterStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to ClusterStatus
		want     bool
	}{
		{ClusterStatusCandidate, ClusterStatusAutoMerged, true},
		{ClusterStatusCandidate, ClusterStatusNeedsReview, true},
		{ClusterStatusCandidate, ClusterStatusMerged, false},
		{ClusterStatusAutoMerged, ClusterStatusMerged, true},
		{ClusterStatusAutoMerged, ClusterStatusSplit, false},
		{ClusterStatusNeedsReview, ClusterStatusMerged, true},
		{ClusterStatusNeedsReview, ClusterStatusSplit, true},
		{ClusterStatusMerged, ClusterStatusMerged, true},
		{ClusterStatusMerged, ClusterStatusSplit, true},
		{ClusterStatusSplit, ClusterStatusMerged, false},
		{ClusterStatusSplit, ClusterStatusNeedsReview, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestSourceRecord_Values(t *testing.T) {
	r := SourceRecord{ID: "r1", Name: "Ada", Phone: "  ", OrganizationID: "org-1"}
	assert.Equal(t, map[FieldType]string{FieldName: "Ada", FieldOrganizationID: "org-1"}, r.Values())
	assert.True(t, r.HasIdentifyingField())
	assert.False(t, SourceRecord{ID: "r2", Email: " "}.HasIdentifyingField())
}
