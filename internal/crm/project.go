package crm

import (
	"strings"
	"time"
)

// Field-name candidates for the record shapes Zoho exposes. The spellings
// differ per tenant, so these are prioritized lists, not single names.
var (
	leadPhoneFields   = []string{"Phone", "Mobile"}
	leadStatusFields  = []string{"Lead_Status", "Status"}
	leadSubFields     = []string{"Sub_Lead_Status", "Lead_Sub_Status"}
	callDurFields     = []string{"Call_Duration_in_seconds", "Call_Duration", "Duration_in_seconds", "Duration"}
	callStartFields   = []string{"Call_Start_Time", "Created_Time"}
	callPhoneFields   = []string{"Dialled_Number", "Caller_ID", "Phone", "Mobile"}
	dealPhoneFields   = []string{"Phone", "Mobile", "Contact_Phone"}
	dealNameFields    = []string{"Contact_Name", "Deal_Name", "Account_Name"}
	originalCreatedAt = []string{"Original_Created_Time_1", "Original_Created_Time"}
)

// Lead is the canonical projection of a raw CRM lead. Immutable after
// projection; Called is derived, everything else copied.
type Lead struct {
	ID              string    `json:"id,omitempty"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	NormalizedPhone string    `json:"-"`
	Owner           string    `json:"owner"`
	LeadStatus      string    `json:"leadStatus"`
	LeadSubStatus   string    `json:"leadSubStatus"`
	CreatedAt       time.Time `json:"createdTime"`
	ModifiedAt      time.Time `json:"modifiedTime"`
	Called          bool      `json:"called"`
}

// Call is the canonical projection of a raw call activity.
type Call struct {
	Owner           string
	DurationSeconds float64
	Status          string
	Type            string
	StartedAt       time.Time
	DialedPhone     string
	Subject         string
	RelatedID       string
}

// Deal is the canonical projection of a raw deal record.
type Deal struct {
	Owner             string
	CreatedAt         time.Time
	OriginalCreatedAt time.Time
	Status            string
	Street            string
	Phone             string
	ContactName       string
}

// Task is the canonical projection of a raw task record.
type Task struct {
	Owner     string
	CreatedAt time.Time
	Status    string
}

// ProjectLead maps a raw lead record to its canonical shape. The caller
// supplies the PhoneKey normalizer and the call-activity test so the
// projector stays free of matcher dependencies.
func ProjectLead(r Record, normalize func(string) string, calledByPhone func(string) bool) Lead {
	phone := r.Str(leadPhoneFields...)
	norm := normalize(phone)
	called := HasCallActivity(r) || (norm != "" && calledByPhone != nil && calledByPhone(norm))
	return Lead{
		ID:              r.ID(),
		Name:            leadName(r),
		Phone:           phone,
		NormalizedPhone: norm,
		Owner:           r.OwnerName(),
		LeadStatus:      defaulted(r.Str(leadStatusFields...)),
		LeadSubStatus:   defaulted(r.Str(leadSubFields...)),
		CreatedAt:       r.Time("Created_Time"),
		ModifiedAt:      r.Time("Modified_Time"),
		Called:          called,
	}
}

// ProjectCall maps a raw call record to its canonical shape.
func ProjectCall(r Record) Call {
	return Call{
		Owner:           r.OwnerName(),
		DurationSeconds: r.Num(0, callDurFields...),
		Status:          valueOr(r.Str("Call_Status"), "Unknown"),
		Type:            valueOr(r.Str("Call_Type"), "Unknown"),
		StartedAt:       r.Time(callStartFields...),
		DialedPhone:     r.Str(callPhoneFields...),
		Subject:         r.Str("Subject"),
		RelatedID:       r.RelatedID(),
	}
}

// ProjectDeal maps a raw deal record to its canonical shape.
func ProjectDeal(r Record) Deal {
	return Deal{
		Owner:             r.OwnerName(),
		CreatedAt:         r.Time("Created_Time"),
		OriginalCreatedAt: r.Time(originalCreatedAt...),
		Status:            r.Str("Stage", "Status"),
		Street:            r.Str("Street"),
		Phone:             r.Str(dealPhoneFields...),
		ContactName:       r.Str(dealNameFields...),
	}
}

// ProjectTask maps a raw task record to its canonical shape.
func ProjectTask(r Record) Task {
	return Task{
		Owner:     r.OwnerName(),
		CreatedAt: r.Time("Created_Time"),
		Status:    r.Str("Status", "Task_Status"),
	}
}

// HasCallActivity reports whether a lead record itself carries evidence of
// call activity (call count, last-call timestamp, or duration fields).
func HasCallActivity(r Record) bool {
	if r.Num(0, "Call_Count", "Number_of_Calls", "Calls") > 0 {
		return true
	}
	if r.FirstPresent("Last_Call_Time", "Last_Call", "Last_Activity_Time") != nil {
		return true
	}
	return r.Num(0, "Call_Duration", "Total_Call_Duration", "Last_Call_Duration") > 0
}

// Completed reports whether a task's status text marks it done.
func (t Task) Completed() bool {
	s := strings.ToLower(t.Status)
	return strings.Contains(s, "complete") || strings.Contains(s, "closed") || strings.Contains(s, "done")
}

func leadName(r Record) string {
	first := r.Str("First_Name")
	last := r.Str("Last_Name")
	if last == "" {
		last = r.Str("Full_Name")
	}
	if last == "" {
		last = "Lead"
	}
	return strings.TrimSpace(first + " " + last)
}

func defaulted(s string) string {
	return valueOr(s, UnassignedOwner)
}

func valueOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
