package tenancy

import (
	"context"
	"testing"
)

func TestStaffContextRoundTrip(t *testing.T) {
	ctx := WithStaff(context.Background(), Staff{UserID: "u1", ClinicID: "clinic-1", DoctorID: "doc-1", Role: "doctor"})

	staff, ok := StaffFromContext(ctx)
	if !ok || staff.DoctorID != "doc-1" {
		t.Fatalf("expected staff in context, got %+v ok=%v", staff, ok)
	}
	clinicID, ok := ClinicIDFromContext(ctx)
	if !ok || clinicID != "clinic-1" {
		t.Fatalf("expected clinic-1, got %q ok=%v", clinicID, ok)
	}
}

func TestMissingStaff(t *testing.T) {
	if _, ok := StaffFromContext(context.Background()); ok {
		t.Fatal("expected no staff in empty context")
	}
	if _, ok := ClinicIDFromContext(WithStaff(context.Background(), Staff{UserID: "u1"})); ok {
		t.Fatal("expected no clinic when scope has none")
	}
}

func TestCanActForDoctor(t *testing.T) {
	frontDesk := Staff{ClinicID: "clinic-1"}
	doctor := Staff{ClinicID: "clinic-1", DoctorID: "doc-1"}

	tests := []struct {
		name     string
		staff    Staff
		doctorID string
		clinicID string
		want     bool
	}{
		{"front desk, own clinic", frontDesk, "doc-2", "clinic-1", true},
		{"front desk, other clinic", frontDesk, "doc-9", "clinic-2", false},
		{"doctor, self", doctor, "doc-1", "clinic-1", true},
		{"doctor, colleague", doctor, "doc-2", "clinic-1", false},
		{"doctor id reused in other clinic", doctor, "doc-1", "clinic-2", false},
		{"no clinic on token", Staff{}, "doc-1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.staff.CanActForDoctor(tt.doctorID, tt.clinicID); got != tt.want {
				t.Fatalf("CanActForDoctor(%q, %q) = %v, want %v", tt.doctorID, tt.clinicID, got, tt.want)
			}
		})
	}
}
