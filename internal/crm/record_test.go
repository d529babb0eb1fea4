package crm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFirstPresent(t *testing.T) {
	r := Record{"Phone": "", "Mobile": "9876543210", "Empty": nil}

	assert.Equal(t, "9876543210", r.Str("Phone", "Mobile"))
	assert.Equal(t, "", r.Str("Empty", "Missing"))
}

func TestNum(t *testing.T) {
	r := Record{
		"Call_Duration_in_seconds": float64(95),
		"Call_Duration":            "120",
		"Bad":                      "not a number",
	}

	assert.Equal(t, 95.0, r.Num(0, "Call_Duration_in_seconds"))
	assert.Equal(t, 120.0, r.Num(0, "Call_Duration"))
	assert.Equal(t, 7.0, r.Num(7, "Bad"))
	assert.Equal(t, 7.0, r.Num(7, "Missing"))
}

func TestTimeParsesZohoLayouts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"rfc3339", "2024-06-15T10:30:00+05:30", true},
		{"space separated", "2024-06-15 10:30:00", true},
		{"date only", "2024-06-15", true},
		{"garbage", "yesterday-ish", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{"Created_Time": tt.raw}
			got := r.Time("Created_Time")
			assert.Equal(t, tt.ok, !got.IsZero())
		})
	}
}

func TestOwnerName(t *testing.T) {
	assert.Equal(t, "Asha K", Record{"Owner": map[string]any{"name": "Asha K"}}.OwnerName())
	assert.Equal(t, "Asha K", Record{"Owner": "Asha K"}.OwnerName())
	assert.Equal(t, UnassignedOwner, Record{}.OwnerName())
	assert.Equal(t, UnassignedOwner, Record{"Owner": map[string]any{"id": "1"}}.OwnerName())
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "Cleaning, Plumbing", Stringify([]any{"Cleaning", nil, "Plumbing"}))
	assert.Equal(t, "Deal A", Stringify(map[string]any{"name": "Deal A", "id": "x"}))
	assert.Equal(t, "42", Stringify(float64(42)))
	assert.Equal(t, "", Stringify(nil))
}

func TestProjectLead(t *testing.T) {
	r := Record{
		"id":              "lead-1",
		"First_Name":      "Ravi",
		"Last_Name":       "Kumar",
		"Phone":           "+91 98765 43210",
		"Owner":           map[string]any{"name": "Asha K"},
		"Lead_Status":     "New",
		"Sub_Lead_Status": "NC1",
		"Created_Time":    "2024-06-15T09:00:00+05:30",
		"Modified_Time":   "2024-06-15T11:00:00+05:30",
	}
	normalize := func(raw string) string { return "9876543210" }

	l := ProjectLead(r, normalize, func(key string) bool { return key == "9876543210" })

	assert.Equal(t, "lead-1", l.ID)
	assert.Equal(t, "Ravi Kumar", l.Name)
	assert.Equal(t, "9876543210", l.NormalizedPhone)
	assert.Equal(t, "Asha K", l.Owner)
	assert.Equal(t, "NC1", l.LeadSubStatus)
	assert.True(t, l.Called)
	assert.Equal(t, 2*time.Hour, l.ModifiedAt.Sub(l.CreatedAt))
}

func TestProjectLeadNameFallbacks(t *testing.T) {
	normalize := func(string) string { return "" }
	notCalled := func(string) bool { return false }

	l := ProjectLead(Record{"Full_Name": "Priya S"}, normalize, notCalled)
	assert.Equal(t, "Priya S", l.Name)

	l = ProjectLead(Record{}, normalize, notCalled)
	assert.Equal(t, "Lead", l.Name)
	assert.False(t, l.Called)
	assert.Equal(t, UnassignedOwner, l.Owner)
}

func TestHasCallActivity(t *testing.T) {
	assert.True(t, HasCallActivity(Record{"Call_Count": float64(2)}))
	assert.True(t, HasCallActivity(Record{"Last_Call_Time": "2024-06-15T09:00:00+05:30"}))
	assert.True(t, HasCallActivity(Record{"Call_Duration": "45"}))
	assert.False(t, HasCallActivity(Record{}))
}

func TestProjectCall(t *testing.T) {
	c := ProjectCall(Record{
		"Owner":                    map[string]any{"name": "Asha K"},
		"Call_Duration_in_seconds": "95",
		"Call_Status":              "Completed",
		"Call_Type":                "Outbound",
		"Call_Start_Time":          "2024-06-15T10:00:00+05:30",
		"Dialled_Number":           "+919876543210",
		"Subject":                  "Follow up",
		"What_Id":                  map[string]any{"id": "lead-1"},
	})

	assert.Equal(t, 95.0, c.DurationSeconds)
	assert.Equal(t, "Asha K", c.Owner)
	assert.Equal(t, "+919876543210", c.DialedPhone)
	assert.Equal(t, "lead-1", c.RelatedID)
}

func TestProjectDealOriginalCreatedTime(t *testing.T) {
	d := ProjectDeal(Record{
		"Created_Time":            "2024-06-15T10:00:00+05:30",
		"Original_Created_Time_1": "2024-06-14T08:00:00+05:30",
		"Street":                  "12 Main Rd, Whitefield",
	})

	assert.False(t, d.OriginalCreatedAt.IsZero())
	assert.Equal(t, "12 Main Rd, Whitefield", d.Street)
}

func TestTaskCompleted(t *testing.T) {
	assert.True(t, Task{Status: "Completed"}.Completed())
	assert.True(t, Task{Status: "Closed - Won"}.Completed())
	assert.True(t, Task{Status: "done"}.Completed())
	assert.False(t, Task{Status: "In Progress"}.Completed())
	assert.False(t, Task{}.Completed())
}
