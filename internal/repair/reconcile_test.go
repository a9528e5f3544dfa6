package repair

import (
	"reflect"
	"testing"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name   string
		winner string
		obs    []Observation
		want   []string
	}{
		{
			name:   "all agree",
			winner: "v",
			obs: []Observation{
				{Mechanism: "cookie", Value: "v", Found: true},
				{Mechanism: "local_store", Value: "v", Found: true},
			},
			want: []string{},
		},
		{
			name:   "missing value is stale",
			winner: "v",
			obs: []Observation{
				{Mechanism: "cookie", Value: "v", Found: true},
				{Mechanism: "local_store"},
			},
			want: []string{"local_store"},
		},
		{
			name:   "disagreeing value is stale",
			winner: "v",
			obs: []Observation{
				{Mechanism: "cookie", Value: "old", Found: true},
				{Mechanism: "db_store", Value: "v", Found: true},
				{Mechanism: "session_store", Value: "v", Found: true},
			},
			want: []string{"cookie"},
		},
		{
			name:   "found empty string differs from winner",
			winner: "v",
			obs: []Observation{
				{Mechanism: "window_name", Value: "", Found: true},
			},
			want: []string{"window_name"},
		},
		{
			name:   "duplicate mechanism listed once",
			winner: "v",
			obs: []Observation{
				{Mechanism: "cookie"},
				{Mechanism: "cookie"},
			},
			want: []string{"cookie"},
		},
		{
			name:   "no observations",
			winner: "v",
			obs:    nil,
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.winner, tt.obs)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Reconcile() = %v, want %v", got, tt.want)
			}
		})
	}
}
