package clio

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRawRecordAccessors(t *testing.T) {
	// Decode through encoding/json so the value shapes match what the
	// client actually produces.
	var rec RawRecord
	payload := `{
		"id": 42,
		"name": "Haviland",
		"quantity": 3600.5,
		"enabled": true,
		"issued_at": "2020-03-01T10:30:00Z",
		"open_date": "2020-01-15",
		"matter": {"id": 21},
		"custom_fields": [{"id": 1}, {"id": 2}]
	}`
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := rec.ID(); got != 42 {
		t.Errorf("ID() = %d, want 42", got)
	}
	if got := rec.Str("name"); got != "Haviland" {
		t.Errorf("Str(name) = %q", got)
	}
	if got := rec.Str("missing"); got != "" {
		t.Errorf("Str(missing) = %q, want empty", got)
	}
	if got := rec.Int64("id"); got != 42 {
		t.Errorf("Int64(id) = %d, want 42", got)
	}
	if got := rec.Float64("quantity"); got != 3600.5 {
		t.Errorf("Float64(quantity) = %v, want 3600.5", got)
	}
	if !rec.Bool("enabled") {
		t.Error("Bool(enabled) = false, want true")
	}
	if rec.Bool("name") {
		t.Error("Bool(name) = true for a string value")
	}

	issued := rec.Time("issued_at")
	if issued != time.Date(2020, 3, 1, 10, 30, 0, 0, time.UTC) {
		t.Errorf("Time(issued_at) = %v", issued)
	}
	opened := rec.Time("open_date")
	if opened != time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Time(open_date) = %v, want date-only parse", opened)
	}
	if !rec.Time("name").IsZero() {
		t.Error("Time(name) is non-zero for unparseable value")
	}
	if !rec.Time("missing").IsZero() {
		t.Error("Time(missing) is non-zero")
	}

	matter := rec.Sub("matter")
	if matter == nil || matter.ID() != 21 {
		t.Errorf("Sub(matter) = %v, want nested id 21", matter)
	}
	if rec.Sub("name") != nil {
		t.Error("Sub(name) non-nil for a string value")
	}

	fields := rec.SubList("custom_fields")
	if len(fields) != 2 || fields[1].ID() != 2 {
		t.Errorf("SubList(custom_fields) = %v, want two entries", fields)
	}
	if rec.SubList("matter") != nil {
		t.Error("SubList(matter) non-nil for an object value")
	}
}

func TestRawRecordIntegerShapes(t *testing.T) {
	tests := []struct {
		name string
		rec  RawRecord
		want int64
	}{
		{name: "float64", rec: RawRecord{"id": float64(7)}, want: 7},
		{name: "int64", rec: RawRecord{"id": int64(7)}, want: 7},
		{name: "int", rec: RawRecord{"id": 7}, want: 7},
		{name: "absent", rec: RawRecord{}, want: 0},
		{name: "wrong type", rec: RawRecord{"id": "7"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.ID(); got != tt.want {
				t.Errorf("ID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAllKindsDependencyOrder(t *testing.T) {
	index := make(map[Kind]int, len(AllKinds))
	for i, k := range AllKinds {
		index[k] = i
	}

	// Parents must import before the kinds that reference them.
	deps := map[Kind][]Kind{
		KindMatter:        {KindContact, KindUser},
		KindActivity:      {KindMatter, KindUser},
		KindBill:          {KindMatter, KindContact},
		KindCalendarEntry: {KindMatter},
		KindNote:          {KindMatter, KindContact},
	}
	for kind, parents := range deps {
		for _, parent := range parents {
			if index[parent] >= index[kind] {
				t.Errorf("%s imports before its parent %s", kind, parent)
			}
		}
	}
}
