package syncer

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FieldMap lists, per canonical field, the upstream source keys to try in
// order. Entries may be dotted paths into nested objects
// ("jadwal.tanggal_mulai"). The defaults match the keys the MagangHub API
// has been observed to use; a YAML file can override individual fields when
// the upstream renames something again.
type FieldMap struct {
	ID                   []string `yaml:"id"`
	Title                []string `yaml:"title"`
	Description          []string `yaml:"description"`
	Quota                []string `yaml:"quota"`
	RegisteredCount      []string `yaml:"registered_count"`
	FieldsOfStudy        []string `yaml:"fields_of_study"`
	Levels               []string `yaml:"levels"`
	CompanyName          []string `yaml:"company_name"`
	ProvinceCode         []string `yaml:"province_code"`
	ProvinceName         []string `yaml:"province_name"`
	RegencyCode          []string `yaml:"regency_code"`
	RegencyName          []string `yaml:"regency_name"`
	RegistrationOpensAt  []string `yaml:"registration_opens_at"`
	RegistrationClosesAt []string `yaml:"registration_closes_at"`
	StartsAt             []string `yaml:"starts_at"`
	EndsAt               []string `yaml:"ends_at"`
	Agency               []string `yaml:"agency"`
	SubAgency            []string `yaml:"sub_agency"`
	SourceCreatedAt      []string `yaml:"source_created_at"`
	SourceUpdatedAt      []string `yaml:"source_updated_at"`
}

func DefaultFieldMap() FieldMap {
	return FieldMap{
		ID:              []string{"id_posisi", "id"},
		Title:           []string{"posisi", "judul"},
		Description:     []string{"deskripsi_posisi", "deskripsi"},
		Quota:           []string{"jumlah_kuota"},
		RegisteredCount: []string{"jumlah_terdaftar"},
		FieldsOfStudy:   []string{"program_studi"},
		Levels:          []string{"jenjang"},
		CompanyName:     []string{"nama_perusahaan", "perusahaan.nama_perusahaan"},
		ProvinceCode: []string{
			"kode_propinsi", "kode_provinsi",
			"perusahaan.kode_propinsi", "perusahaan.kode_provinsi",
		},
		ProvinceName: []string{
			"nama_propinsi", "nama_provinsi",
			"perusahaan.nama_propinsi", "perusahaan.nama_provinsi",
		},
		RegencyCode: []string{"kode_kabupaten", "perusahaan.kode_kabupaten"},
		RegencyName: []string{"nama_kabupaten", "perusahaan.nama_kabupaten"},
		RegistrationOpensAt: []string{
			"pendaftaran_awal", "tanggal_pendaftaran_awal",
			"jadwal.tanggal_pendaftaran_awal", "jadwal.tanggal_mulai",
			"jadwal.tanggal_rencana_mulai",
		},
		RegistrationClosesAt: []string{
			"pendaftaran_akhir", "tanggal_pendaftaran_akhir",
			"jadwal.tanggal_pendaftaran_akhir", "jadwal.tanggal_pengumuman_akhir",
		},
		StartsAt: []string{"mulai", "jadwal.tanggal_mulai", "jadwal.tanggal_rencana_mulai"},
		EndsAt:   []string{"selesai", "jadwal.tanggal_selesai", "jadwal.tanggal_rencana_akhir"},
		Agency: []string{
			"agency", "government_agency.government_agency_name", "government_agency_name",
		},
		SubAgency: []string{
			"sub_agency", "sub_government_agency.sub_government_agency_name",
			"sub_government_agency_name",
		},
		SourceCreatedAt: []string{"created_at"},
		SourceUpdatedAt: []string{"updated_at"},
	}
}

// LoadFieldMap reads an override file, falling back to the defaults for
// every field the file leaves empty. An empty path means defaults only.
func LoadFieldMap(path string) (FieldMap, error) {
	defaults := DefaultFieldMap()
	if path == "" {
		return defaults, nil
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return defaults, err
	}

	var overrides FieldMap
	if err := yaml.Unmarshal(content, &overrides); err != nil {
		return defaults, err
	}

	return mergeFieldMaps(defaults, overrides), nil
}

func mergeFieldMaps(base, overrides FieldMap) FieldMap {
	pick := func(override, def []string) []string {
		if len(override) > 0 {
			return override
		}
		return def
	}
	return FieldMap{
		ID:                   pick(overrides.ID, base.ID),
		Title:                pick(overrides.Title, base.Title),
		Description:          pick(overrides.Description, base.Description),
		Quota:                pick(overrides.Quota, base.Quota),
		RegisteredCount:      pick(overrides.RegisteredCount, base.RegisteredCount),
		FieldsOfStudy:        pick(overrides.FieldsOfStudy, base.FieldsOfStudy),
		Levels:               pick(overrides.Levels, base.Levels),
		CompanyName:          pick(overrides.CompanyName, base.CompanyName),
		ProvinceCode:         pick(overrides.ProvinceCode, base.ProvinceCode),
		ProvinceName:         pick(overrides.ProvinceName, base.ProvinceName),
		RegencyCode:          pick(overrides.RegencyCode, base.RegencyCode),
		RegencyName:          pick(overrides.RegencyName, base.RegencyName),
		RegistrationOpensAt:  pick(overrides.RegistrationOpensAt, base.RegistrationOpensAt),
		RegistrationClosesAt: pick(overrides.RegistrationClosesAt, base.RegistrationClosesAt),
		StartsAt:             pick(overrides.StartsAt, base.StartsAt),
		EndsAt:               pick(overrides.EndsAt, base.EndsAt),
		Agency:               pick(overrides.Agency, base.Agency),
		SubAgency:            pick(overrides.SubAgency, base.SubAgency),
		SourceCreatedAt:      pick(overrides.SourceCreatedAt, base.SourceCreatedAt),
		SourceUpdatedAt:      pick(overrides.SourceUpdatedAt, base.SourceUpdatedAt),
	}
}
