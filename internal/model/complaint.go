package model

import "time"

// Variant is the closed-set discriminator that selects which detail
// shape a complaint carries.  Values are the canonical lower case keys
// stored in complaints.variant.
type Variant string

const (
	VariantDelay         Variant = "delay"
	VariantMistreatment  Variant = "mistreatment"
	VariantInsecurity    Variant = "insecurity"
	VariantUnitCondition Variant = "unit_condition"
	VariantOther         Variant = "other"
)

// Variants lists every variant in display order.
var Variants = []Variant{
	VariantDelay,
	VariantMistreatment,
	VariantInsecurity,
	VariantUnitCondition,
	VariantOther,
}

// Status is the lifecycle state of a complaint.  Pending moves exactly
// once to Reviewed or Escalated; both are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewed  Status = "reviewed"
	StatusEscalated Status = "escalated"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusEscalated:
		return true
	}
	return false
}

// Terminal reports whether s is a resolution target.
func (s Status) Terminal() bool {
	return s == StatusReviewed || s == StatusEscalated
}

// Complaint mirrors the `complaints` header table.  Exactly one detail
// row in the variant's table references it.
type Complaint struct {
	ID              uint64    `json:"id"`
	Folio           string    `json:"folio"`
	EmployeeNumber  string    `json:"employee_number"`
	Company         string    `json:"company"`
	Route           *string   `json:"route,omitempty"`
	Neighborhood    *string   `json:"neighborhood,omitempty"`
	Shift           *string   `json:"shift,omitempty"`
	Latitude        *float64  `json:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty"`
	UnitNumber      *string   `json:"unit_number,omitempty"`
	Variant         Variant   `json:"type"`
	Status          Status    `json:"status"`
	OriginIP        string    `json:"origin_ip"`
	ClientSignature string    `json:"client_signature"`
	CreatedAt       time.Time `json:"created_at"`
}

// Detail is the variant-specific half of a complaint.  Each
// implementation knows its own columns so the store can route the insert
// without reflection.  Columns, Values and Targets are index aligned.
type Detail interface {
	Variant() Variant
	Columns() []string
	Values() []any
	Targets() []any
}

// DelayDetail is stored in complaint_delays.
type DelayDetail struct {
	ScheduledTime string `json:"scheduled_time" validate:"required,hhmm"`
	ActualTime    string `json:"actual_time" validate:"required,hhmm"`
	PickupAddress string `json:"pickup_address" validate:"required,min=5,max=200"`
}

func (d *DelayDetail) Variant() Variant { return VariantDelay }
func (d *DelayDetail) Columns() []string {
	return []string{"scheduled_time", "actual_time", "pickup_address"}
}
func (d *DelayDetail) Values() []any {
	return []any{d.ScheduledTime, d.ActualTime, d.PickupAddress}
}
func (d *DelayDetail) Targets() []any {
	return []any{&d.ScheduledTime, &d.ActualTime, &d.PickupAddress}
}

// MistreatmentDetail is stored in complaint_mistreatments.
type MistreatmentDetail struct {
	DriverID    string `json:"driver_id" validate:"required,driverid"`
	Description string `json:"description" validate:"required,min=10,max=1000"`
}

func (d *MistreatmentDetail) Variant() Variant { return VariantMistreatment }
func (d *MistreatmentDetail) Columns() []string {
	return []string{"driver_id", "description"}
}
func (d *MistreatmentDetail) Values() []any  { return []any{d.DriverID, d.Description} }
func (d *MistreatmentDetail) Targets() []any { return []any{&d.DriverID, &d.Description} }

// InsecurityDetail is stored in complaint_insecurities.
type InsecurityDetail struct {
	IncidentTime *string `json:"incident_time,omitempty" validate:"omitempty,hhmm"`
	Location     *string `json:"location,omitempty" validate:"omitempty,max=200"`
	Description  string  `json:"description" validate:"required,min=10,max=1000"`
}

func (d *InsecurityDetail) Variant() Variant { return VariantInsecurity }
func (d *InsecurityDetail) Columns() []string {
	return []string{"incident_time", "location", "description"}
}
func (d *InsecurityDetail) Values() []any {
	return []any{d.IncidentTime, d.Location, d.Description}
}
func (d *InsecurityDetail) Targets() []any {
	return []any{&d.IncidentTime, &d.Location, &d.Description}
}

// UnitConditionDetail is stored in complaint_unit_conditions.
type UnitConditionDetail struct {
	Condition   string `json:"condition" validate:"required,oneof=cleanliness mechanical air_conditioning seating lighting other"`
	Description string `json:"description" validate:"required,min=10,max=1000"`
}

func (d *UnitConditionDetail) Variant() Variant { return VariantUnitCondition }
func (d *UnitConditionDetail) Columns() []string {
	return []string{"condition_type", "description"}
}
func (d *UnitConditionDetail) Values() []any  { return []any{d.Condition, d.Description} }
func (d *UnitConditionDetail) Targets() []any { return []any{&d.Condition, &d.Description} }

// OtherDetail is stored in complaint_others.
type OtherDetail struct {
	Subject     string `json:"subject" validate:"required,min=3,max=120"`
	Description string `json:"description" validate:"required,min=10,max=1000"`
}

func (d *OtherDetail) Variant() Variant  { return VariantOther }
func (d *OtherDetail) Columns() []string { return []string{"subject", "description"} }
func (d *OtherDetail) Values() []any     { return []any{d.Subject, d.Description} }
func (d *OtherDetail) Targets() []any    { return []any{&d.Subject, &d.Description} }

// ComplaintView is a complaint read back together with its detail and,
// once resolved, its resolution.
type ComplaintView struct {
	Complaint
	Detail     Detail      `json:"detail"`
	Resolution *Resolution `json:"resolution,omitempty"`
}
