package schema

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ExecutionTime_01LoadData", "01LoadData"},
		{"ExecutionTime_01_LoadData", "LoadData"},
		{"ExecutionTime_12-MeasureImageQuality", "MeasureImageQuality"},
		{"ExecutionTime_IdentifyPrimaryObjects", "IdentifyPrimaryObjects"},
		{"ExecutionTime_1_Foo", "Foo"},
		{"ExecutionTime_42", "42"},
		{"ExecutionTime_42_", "42_"},
		{"wall_clock_time", "wall_clock_time"},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			if got := Normalize(tc.raw, DefaultPrefix); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestDiscover_KeepsInputOrder(t *testing.T) {
	cols := []string{
		"dirname",
		"ExecutionTime_02_SaveImages",
		"batch",
		"ExecutionTime_01_LoadData",
		"wall_clock_time",
	}
	got := Discover(cols, "")
	want := []StageTimeColumn{
		{Raw: "ExecutionTime_02_SaveImages", Label: "SaveImages"},
		{Raw: "ExecutionTime_01_LoadData", Label: "LoadData"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Discover = %+v, want %+v", got, want)
	}
}

func TestDiscover_NoMatchIsEmpty(t *testing.T) {
	got := Discover([]string{"dirname", "wall_clock_time"}, "")
	if got == nil || len(got) != 0 {
		t.Errorf("Discover with no match = %#v, want empty non-nil slice", got)
	}
}

func TestDiscover_CustomPrefix(t *testing.T) {
	got := Discover([]string{"Time_1_A", "ExecutionTime_1_B"}, "Time_")
	if len(got) != 1 || got[0].Label != "A" {
		t.Errorf("Discover custom prefix = %+v", got)
	}
}

func TestLabelsAndCollisions(t *testing.T) {
	cols := Discover([]string{"ExecutionTime_1_Foo", "ExecutionTime_3_Bar", "ExecutionTime_2_Foo"}, "")

	if got, want := Labels(cols), []string{"Foo", "Bar"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Labels = %v, want %v", got, want)
	}

	coll := Collisions(cols)
	if len(coll) != 1 {
		t.Fatalf("Collisions = %v, want one label", coll)
	}
	if got, want := coll["Foo"], []string{"ExecutionTime_1_Foo", "ExecutionTime_2_Foo"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Collisions[Foo] = %v, want %v", got, want)
	}
}
