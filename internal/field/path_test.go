package field

import (
	"reflect"
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"snow_melt_mode", "snow_melt_mode"},
		{"dish_config/snow_melt_mode", "dish_config.snow_melt_mode"},
		{" /power_save_schedule/start_minutes/ ", "power_save_schedule.start_minutes"},
		{"..a.b..", "a.b"},
		{"a/b.c", "a.b.c"},
		{"", ""},
		{"  ", ""},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Canonical(tt.in); got != tt.want {
				t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSegments(t *testing.T) {
	if got := Segments("a/b.c"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Segments(a/b.c) = %v", got)
	}
	if got := Segments(" . "); got != nil {
		t.Errorf("Segments(empty) = %v, want nil", got)
	}
}

func TestTopicPath(t *testing.T) {
	if got := TopicPath("device_info.id"); got != "device_info/id" {
		t.Errorf("TopicPath() = %q, want device_info/id", got)
	}
}

func TestNewFilter(t *testing.T) {
	f := NewFilter("device_info, state", " device_state/uptime_s ", "state", "", ",")
	want := []string{"device_info", "state", "device_state.uptime_s"}
	if got := f.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
	if f.Empty() {
		t.Error("Empty() = true, want false")
	}
	if !NewFilter("", " , ").Empty() {
		t.Error("filter of blanks should be empty")
	}
}

func TestFilterAllows(t *testing.T) {
	f := NewFilter("device_info", "state")

	tests := []struct {
		path string
		want bool
	}{
		{"device_info", true},
		{"device_info.id", true},
		{"device_info_extra", false},
		{"state", true},
		{"states", false},
		{"device_state.uptime_s", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := f.Allows(tt.path); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	var empty Filter
	if !empty.Allows("anything.at.all") {
		t.Error("zero Filter should allow every path")
	}
}

func TestFilterUnmatched(t *testing.T) {
	f := NewFilter("zeta", "device_info", "alpha")
	got := f.Unmatched([]string{"device_info.id", "state"})
	want := []string{"zeta", "alpha"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unmatched() = %v, want %v (configuration order)", got, want)
	}
	if got := f.Unmatched([]string{"zeta", "device_info", "alpha.x"}); got != nil {
		t.Errorf("Unmatched() = %v, want none", got)
	}
}
