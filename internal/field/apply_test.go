package field

import (
	"context"
	"errors"
	"sync"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// mockSubmitter records partial updates and returns a configured error.
type mockSubmitter struct {
	mu        sync.Mutex
	submitted []protoreflect.Message
	err       error
	panicMsg  string
}

func (m *mockSubmitter) SubmitPartialUpdate(_ context.Context, partial protoreflect.Message) error {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, partial)
	return m.err
}

func (m *mockSubmitter) last(t *testing.T) protoreflect.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.submitted) == 0 {
		t.Fatal("nothing submitted")
	}
	return m.submitted[len(m.submitted)-1]
}

func newTestApplier(t *testing.T, sub Submitter) *Applier {
	t.Helper()
	a, err := NewApplier(ApplierOptions{
		Root:      descriptor("DishConfig"),
		RootAlias: "dish_config",
		Submitter: sub,
	})
	if err != nil {
		t.Fatalf("NewApplier() error: %v", err)
	}
	return a
}

func TestApplySuccess(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		raw         string
		wantApplied string
		check       func(t *testing.T, partial protoreflect.Message)
	}{
		{
			name:        "enum suffix with apply flag",
			path:        "dish_config.snow_melt_mode",
			raw:         "on",
			wantApplied: "on",
			check: func(t *testing.T, p protoreflect.Message) {
				if get(p, "snow_melt_mode").Enum() != 1 {
					t.Errorf("snow_melt_mode = %d, want 1", get(p, "snow_melt_mode").Enum())
				}
				if !get(p, "apply_snow_melt_mode").Bool() {
					t.Error("apply_snow_melt_mode not set")
				}
			},
		},
		{
			name:        "path without alias",
			path:        "snow_melt_mode",
			raw:         "ALWAYS_OFF",
			wantApplied: "off",
			check: func(t *testing.T, p protoreflect.Message) {
				if get(p, "snow_melt_mode").Enum() != 2 {
					t.Errorf("snow_melt_mode = %d, want 2", get(p, "snow_melt_mode").Enum())
				}
			},
		},
		{
			name:        "nested field sets top level flag",
			path:        "dish_config/power_save_schedule/start_minutes",
			raw:         " 90 ",
			wantApplied: "90",
			check: func(t *testing.T, p protoreflect.Message) {
				sched := get(p, "power_save_schedule").Message()
				if get(sched, "start_minutes").Uint() != 90 {
					t.Errorf("start_minutes = %d, want 90", get(sched, "start_minutes").Uint())
				}
				if !get(p, "apply_power_save_schedule").Bool() {
					t.Error("apply_power_save_schedule not set")
				}
				if has(p, "apply_snow_melt_mode") {
					t.Error("unrelated apply flag set")
				}
			},
		},
		{
			name:        "bool",
			path:        "power_save_mode",
			raw:         "YES",
			wantApplied: "true",
			check: func(t *testing.T, p protoreflect.Message) {
				if !get(p, "power_save_mode").Bool() || !get(p, "apply_power_save_mode").Bool() {
					t.Error("power_save_mode or its apply flag not set")
				}
			},
		},
		{
			name:        "field without apply flag",
			path:        "tilt_offset",
			raw:         "-3",
			wantApplied: "-3",
			check: func(t *testing.T, p protoreflect.Message) {
				if get(p, "tilt_offset").Int() != -3 {
					t.Errorf("tilt_offset = %d, want -3", get(p, "tilt_offset").Int())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &mockSubmitter{}
			res := newTestApplier(t, sub).Apply(context.Background(), tt.path, tt.raw)

			if !res.Success {
				t.Fatalf("Apply() failed: %v", *res.Message)
			}
			if res.Requested != tt.raw {
				t.Errorf("Requested = %q, want %q", res.Requested, tt.raw)
			}
			if res.Applied == nil || *res.Applied != tt.wantApplied {
				t.Errorf("Applied = %v, want %q", res.Applied, tt.wantApplied)
			}
			if res.Message != nil {
				t.Errorf("Message = %q, want nil", *res.Message)
			}
			tt.check(t, sub.last(t))
		})
	}
}

func TestApplyFailures(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		raw     string
		wantMsg string
	}{
		{"empty path", "", "on", "field path does not target a writable field"},
		{"alias only", "dish_config", "on", "field path does not target a writable field"},
		{"unknown field", "dish_config.warp_drive", "on", "unknown field: warp_drive"},
		{"scalar intermediate", "power_save_mode/x", "1", "field is not a message: power_save_mode"},
		{"repeated", "tags", "a", "repeated fields are not supported: tags"},
		{"bad bool", "power_save_mode", "maybe", "invalid boolean value for power_save_mode: maybe"},
		{"ambiguous enum", "channel_mode", "on", "ambiguous enum value for channel_mode: on"},
		{"unknown enum", "snow_melt_mode", "sometimes", "invalid enum value for snow_melt_mode: sometimes. Supported: AUTO, ALWAYS_ON, ALWAYS_OFF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &mockSubmitter{}
			res := newTestApplier(t, sub).Apply(context.Background(), tt.path, tt.raw)

			if res.Success {
				t.Fatal("Apply() succeeded, want failure")
			}
			if res.Applied != nil {
				t.Errorf("Applied = %q, want nil", *res.Applied)
			}
			if res.Message == nil || *res.Message != tt.wantMsg {
				t.Errorf("Message = %v, want %q", res.Message, tt.wantMsg)
			}
			if len(sub.submitted) != 0 {
				t.Error("failed command must not be submitted")
			}
		})
	}
}

func TestApplyTransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"grpc status with detail", status.Error(codes.Unavailable, " dish offline "), "UNAVAILABLE: dish offline"},
		{"grpc status without detail", status.Error(codes.DeadlineExceeded, ""), "DEADLINE_EXCEEDED"},
		{"plain error", errors.New("connection reset"), "connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestApplier(t, &mockSubmitter{err: tt.err}).Apply(context.Background(), "snow_melt_mode", "on")
			if res.Success {
				t.Fatal("Apply() succeeded, want transport failure")
			}
			if res.Message == nil || *res.Message != tt.wantMsg {
				t.Errorf("Message = %v, want %q", res.Message, tt.wantMsg)
			}
		})
	}
}

func TestApplyRecoversPanic(t *testing.T) {
	res := newTestApplier(t, &mockSubmitter{panicMsg: "boom"}).Apply(context.Background(), "snow_melt_mode", "on")
	if res.Success {
		t.Fatal("Apply() succeeded after panic")
	}
	if res.Message == nil || *res.Message != "applying snow_melt_mode: boom" {
		t.Errorf("Message = %v", res.Message)
	}
}

func TestNewApplierValidation(t *testing.T) {
	if _, err := NewApplier(ApplierOptions{Submitter: &mockSubmitter{}}); err == nil {
		t.Error("NewApplier() without root should fail")
	}
	if _, err := NewApplier(ApplierOptions{Root: descriptor("DishConfig")}); err == nil {
		t.Error("NewApplier() without submitter should fail")
	}
}

func TestCodeName(t *testing.T) {
	tests := map[string]string{
		"Unavailable":       "UNAVAILABLE",
		"DeadlineExceeded":  "DEADLINE_EXCEEDED",
		"PermissionDenied":  "PERMISSION_DENIED",
		"OK":                "OK",
		"ResourceExhausted": "RESOURCE_EXHAUSTED",
	}
	for in, want := range tests {
		if got := codeName(in); got != want {
			t.Errorf("codeName(%q) = %q, want %q", in, got, want)
		}
	}
}
