package vacancy

import (
	"time"

	"gorm.io/datatypes"
)

// Save action classification returned by Repository.Save.
const (
	ActionInserted = "inserted"
	ActionUpdated  = "updated"
)

// Vacancy is the canonical internship listing kept locally. Inactive rows
// are retained, never deleted.
type Vacancy struct {
	ID                   string                      `gorm:"primaryKey;size:64" json:"id"`
	Title                *string                     `json:"title"`
	Description          *string                     `json:"description"`
	Quota                *int                        `json:"quota"`
	RegisteredCount      *int                        `json:"registered_count"`
	FieldsOfStudy        datatypes.JSONSlice[string] `json:"fields_of_study"`
	Levels               datatypes.JSONSlice[string] `json:"levels"`
	CompanyName          *string                     `json:"company_name"`
	ProvinceCode         *string                     `json:"province_code"`
	ProvinceName         *string                     `json:"province_name"`
	RegencyCode          *string                     `json:"regency_code"`
	RegencyName          *string                     `json:"regency_name"`
	RegistrationOpensAt  *time.Time                  `json:"registration_opens_at"`
	RegistrationClosesAt *time.Time                  `json:"registration_closes_at"`
	StartsAt             *time.Time                  `json:"starts_at"`
	EndsAt               *time.Time                  `json:"ends_at"`
	Agency               *string                     `json:"agency"`
	SubAgency            *string                     `json:"sub_agency"`
	SourceCreatedAt      *time.Time                  `json:"source_created_at"`
	SourceUpdatedAt      *time.Time                  `gorm:"index" json:"source_updated_at"`
	RawPayload           datatypes.JSON              `json:"raw_payload"`
	FirstSeenAt          time.Time                   `json:"first_seen_at"`
	LastSyncedAt         time.Time                   `gorm:"index" json:"last_synced_at"`
	IsActive             bool                        `gorm:"index" json:"is_active"`
}

// SourceTimestamp is the cursor value a listing contributes to the
// watermark: updated_at when present, otherwise created_at.
func (v *Vacancy) SourceTimestamp() *time.Time {
	if v.SourceUpdatedAt != nil {
		return v.SourceUpdatedAt
	}
	return v.SourceCreatedAt
}

// SyncRun is one row per orchestrator invocation. Created in running:<kind>
// status at start, finished exactly once with a terminal status.
type SyncRun struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at"`
	Status           string     `json:"status"`
	PagesFetched     int        `json:"pages_fetched"`
	ItemsInserted    int        `json:"items_inserted"`
	ItemsUpdated     int        `json:"items_updated"`
	ItemsDeactivated int        `json:"items_deactivated"`
	Note             string     `json:"note,omitempty"`
}

// SyncState holds keyed cursor values; the only key today is the vacancy
// watermark.
type SyncState struct {
	Key   string    `gorm:"primaryKey;size:64"`
	Value time.Time
}

// NewVacancyEvent is appended when a vacancy is inserted for the first
// time. Collaborators use it to answer "recently new" queries.
type NewVacancyEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	VacancyID string    `gorm:"size:64;index" json:"vacancy_id"`
	SeenAt    time.Time `gorm:"index" json:"seen_at"`
}

// Province mirrors the upstream province catalog.
type Province struct {
	Code       string  `gorm:"primaryKey;size:8" json:"code"`
	Name       string  `json:"name"`
	UpstreamID *string `json:"upstream_id"`
}
