package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusConstructors(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		want    string
		healthy bool
	}{
		{"healthy", NewHealthy("ring", "ok"), StatusHealthy, true},
		{"degraded", NewDegraded("ring", "slow"), StatusDegraded, false},
		{"unhealthy", NewUnhealthy("ring", "full"), StatusUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "ring", tt.status.Component)
			assert.Equal(t, tt.want, tt.status.Status)
			assert.Equal(t, tt.healthy, tt.status.Healthy)
			assert.False(t, tt.status.Timestamp.IsZero())
			assert.Equal(t, tt.want == StatusHealthy, tt.status.IsHealthy())
			assert.Equal(t, tt.want == StatusDegraded, tt.status.IsDegraded())
			assert.Equal(t, tt.want == StatusUnhealthy, tt.status.IsUnhealthy())
		})
	}
}

func TestStatus_WithSubStatusIsolation(t *testing.T) {
	base := NewHealthy("system", "ok").WithSubStatus(NewHealthy("a", "ok"))

	left := base.WithSubStatus(NewDegraded("b", "slow"))
	right := base.WithSubStatus(NewUnhealthy("c", "full"))

	require.Len(t, base.SubStatuses, 1)
	require.Len(t, left.SubStatuses, 2)
	require.Len(t, right.SubStatuses, 2)
	assert.Equal(t, "b", left.SubStatuses[1].Component)
	assert.Equal(t, "c", right.SubStatuses[1].Component)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_DoesNotModifyInput(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	got := Aggregate("system", subs)
	got.SubStatuses[0].Message = "changed"
	assert.Equal(t, "", subs[0].Message)
}
