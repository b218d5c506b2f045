package vacancy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const watermarkKey = "vacancies_watermark"

var ErrRunNotFound = errors.New("sync run not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Vacancy{}, &SyncRun{}, &SyncState{}, &NewVacancyEvent{}, &Province{})
}

// Save inserts the vacancy, falling back to an update when the id already
// exists. The first successful insert also appends a NewVacancyEvent.
// first_seen_at is written once and never touched on updates.
func (r *Repository) Save(ctx context.Context, v *Vacancy) (string, error) {
	now := time.Now().UTC()
	v.FirstSeenAt = now
	v.LastSyncedAt = now
	v.IsActive = true

	err := r.db.WithContext(ctx).Create(v).Error
	if err == nil {
		if evErr := r.db.WithContext(ctx).Create(&NewVacancyEvent{VacancyID: v.ID, SeenAt: now}).Error; evErr != nil {
			return ActionInserted, evErr
		}
		return ActionInserted, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", err
	}

	updates := map[string]interface{}{
		"title":                  v.Title,
		"description":            v.Description,
		"quota":                  v.Quota,
		"registered_count":       v.RegisteredCount,
		"fields_of_study":        v.FieldsOfStudy,
		"levels":                 v.Levels,
		"company_name":           v.CompanyName,
		"province_code":          v.ProvinceCode,
		"province_name":          v.ProvinceName,
		"regency_code":           v.RegencyCode,
		"regency_name":           v.RegencyName,
		"registration_opens_at":  v.RegistrationOpensAt,
		"registration_closes_at": v.RegistrationClosesAt,
		"starts_at":              v.StartsAt,
		"ends_at":                v.EndsAt,
		"agency":                 v.Agency,
		"sub_agency":             v.SubAgency,
		"source_created_at":      v.SourceCreatedAt,
		"source_updated_at":      v.SourceUpdatedAt,
		"raw_payload":            v.RawPayload,
		"last_synced_at":         now,
		"is_active":              true,
	}
	if err := r.db.WithContext(ctx).Model(&Vacancy{}).Where("id = ?", v.ID).Updates(updates).Error; err != nil {
		return "", err
	}
	return ActionUpdated, nil
}

func (r *Repository) GetWatermark(ctx context.Context) (*time.Time, error) {
	var state SyncState
	result := r.db.WithContext(ctx).First(&state, "key = ?", watermarkKey)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &state.Value, nil
}

func (r *Repository) SetWatermark(ctx context.Context, value time.Time) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&SyncState{Key: watermarkKey, Value: value}).Error
}

// LatestSourceUpdatedAt returns the freshest source_updated_at currently in
// the store; nil when the store is empty.
func (r *Repository) LatestSourceUpdatedAt(ctx context.Context) (*time.Time, error) {
	var v Vacancy
	result := r.db.WithContext(ctx).
		Where("source_updated_at IS NOT NULL").
		Order("source_updated_at DESC").
		Select("source_updated_at").
		First(&v)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return v.SourceUpdatedAt, nil
}

func (r *Repository) StartRun(ctx context.Context, kind string) (*SyncRun, error) {
	run := &SyncRun{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Status:    "running:" + kind,
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *Repository) FinishRun(ctx context.Context, run *SyncRun) error {
	return r.db.WithContext(ctx).Model(&SyncRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"finished_at":       run.FinishedAt,
			"status":            run.Status,
			"note":              run.Note,
			"pages_fetched":     run.PagesFetched,
			"items_inserted":    run.ItemsInserted,
			"items_updated":     run.ItemsUpdated,
			"items_deactivated": run.ItemsDeactivated,
		}).Error
}

func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 5
	}
	var runs []SyncRun
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func (r *Repository) GetRun(ctx context.Context, id string) (*SyncRun, error) {
	var run SyncRun
	result := r.db.WithContext(ctx).First(&run, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	return &run, result.Error
}

func (r *Repository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Vacancy{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}

// DeactivationCandidates lists active vacancies not observed by the current
// full scan: last synced before the run started and absent from the
// processed id set.
func (r *Repository) DeactivationCandidates(ctx context.Context, before time.Time, processedIDs []string) ([]Vacancy, error) {
	query := r.db.WithContext(ctx).Model(&Vacancy{}).
		Select("id", "registration_closes_at", "last_synced_at").
		Where("is_active = ?", true).
		Where("last_synced_at < ?", before)
	if len(processedIDs) > 0 {
		query = query.Where("id NOT IN ?", processedIDs)
	}
	var candidates []Vacancy
	err := query.Find(&candidates).Error
	return candidates, err
}

func (r *Repository) Deactivate(ctx context.Context, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&Vacancy{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"is_active": false, "last_synced_at": now})
	return result.RowsAffected, result.Error
}

func (r *Repository) UpsertProvince(ctx context.Context, p *Province) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "upstream_id"}),
	}).Create(p).Error
}
