package syncer

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalizeRequiresIdentifier(t *testing.T) {
	n := NewNormalizer(DefaultFieldMap())

	if got := n.Normalize(map[string]interface{}{"posisi": "Intern"}); got != nil {
		t.Errorf("item without id should normalize to nil, got %+v", got)
	}
	if got := n.Normalize(map[string]interface{}{"id": "abc-1"}); got == nil || got.ID != "abc-1" {
		t.Errorf("fallback id field not honored, got %+v", got)
	}
	if got := n.Normalize(map[string]interface{}{"id_posisi": float64(12345)}); got == nil || got.ID != "12345" {
		t.Errorf("numeric id should be stringified, got %+v", got)
	}
}

func TestNormalizeListFallbacks(t *testing.T) {
	n := NewNormalizer(DefaultFieldMap())
	want := []string{"S1", "S2"}

	cases := map[string]interface{}{
		"comma separated": "S1, S2",
		"json array":      `["S1","S2"]`,
		"real array":      []interface{}{"S1", "S2"},
	}
	for name, raw := range cases {
		got := n.Normalize(map[string]interface{}{"id_posisi": "1", "jenjang": raw})
		if !reflect.DeepEqual([]string(got.Levels), want) {
			t.Errorf("%s: levels = %v, want %v", name, got.Levels, want)
		}
	}

	got := n.Normalize(map[string]interface{}{"id_posisi": "1", "jenjang": `"S1"`})
	if !reflect.DeepEqual([]string(got.Levels), []string{"S1"}) {
		t.Errorf("json single string: levels = %v, want [S1]", got.Levels)
	}

	got = n.Normalize(map[string]interface{}{
		"id_posisi": "1",
		"program_studi": []interface{}{
			map[string]interface{}{"nama": "Informatika"},
			map[string]interface{}{"program_studi": "Statistika"},
		},
	})
	if !reflect.DeepEqual([]string(got.FieldsOfStudy), []string{"Informatika", "Statistika"}) {
		t.Errorf("object entries: fields = %v", got.FieldsOfStudy)
	}

	got = n.Normalize(map[string]interface{}{"id_posisi": "1"})
	if got.Levels == nil || len(got.Levels) != 0 {
		t.Errorf("absent list should default to empty, got %v", got.Levels)
	}
}

func TestNormalizeNaiveTimestampsPinnedToUTC7(t *testing.T) {
	n := NewNormalizer(DefaultFieldMap())
	got := n.Normalize(map[string]interface{}{
		"id_posisi":  "1",
		"updated_at": "2025-01-10 08:00:00",
	})
	want := time.Date(2025, 1, 10, 1, 0, 0, 0, time.UTC)
	if got.SourceUpdatedAt == nil || !got.SourceUpdatedAt.Equal(want) {
		t.Errorf("SourceUpdatedAt = %v, want %v", got.SourceUpdatedAt, want)
	}

	got = n.Normalize(map[string]interface{}{
		"id_posisi":  "1",
		"updated_at": "2025-01-10T08:00:00Z",
	})
	want = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	if got.SourceUpdatedAt == nil || !got.SourceUpdatedAt.Equal(want) {
		t.Errorf("explicit zone must be preserved, got %v", got.SourceUpdatedAt)
	}

	got = n.Normalize(map[string]interface{}{
		"id_posisi": "1",
		"mulai":     "2025-01-10",
	})
	want = time.Date(2025, 1, 9, 17, 0, 0, 0, time.UTC)
	if got.StartsAt == nil || !got.StartsAt.Equal(want) {
		t.Errorf("date-only value = %v, want %v", got.StartsAt, want)
	}
}

func TestNormalizeDateCandidateOrder(t *testing.T) {
	n := NewNormalizer(DefaultFieldMap())
	got := n.Normalize(map[string]interface{}{
		"id_posisi":        "1",
		"pendaftaran_awal": "not-a-date",
		"jadwal": map[string]interface{}{
			"tanggal_pendaftaran_awal": "2025-02-01 00:00:00",
		},
	})
	if got.RegistrationOpensAt == nil {
		t.Fatal("invalid first candidate should fall through to nested schedule")
	}
	want := time.Date(2025, 1, 31, 17, 0, 0, 0, time.UTC)
	if !got.RegistrationOpensAt.Equal(want) {
		t.Errorf("RegistrationOpensAt = %v, want %v", got.RegistrationOpensAt, want)
	}

	got = n.Normalize(map[string]interface{}{"id_posisi": "1", "selesai": "garbage"})
	if got.EndsAt != nil {
		t.Errorf("all candidates invalid should yield nil, got %v", got.EndsAt)
	}
}

func TestNormalizeNestedLocationFallback(t *testing.T) {
	n := NewNormalizer(DefaultFieldMap())
	got := n.Normalize(map[string]interface{}{
		"id_posisi": "1",
		"perusahaan": map[string]interface{}{
			"nama_perusahaan": "PT Maju",
			"kode_provinsi":   "32",
			"nama_propinsi":   "JAWA BARAT",
		},
		"government_agency": map[string]interface{}{
			"government_agency_name": "Kemnaker",
		},
	})
	if got.CompanyName == nil || *got.CompanyName != "PT Maju" {
		t.Errorf("CompanyName = %v", got.CompanyName)
	}
	if got.ProvinceCode == nil || *got.ProvinceCode != "32" {
		t.Errorf("ProvinceCode = %v", got.ProvinceCode)
	}
	if got.Agency == nil || *got.Agency != "Kemnaker" {
		t.Errorf("Agency = %v", got.Agency)
	}

	// top level wins over nested
	got = n.Normalize(map[string]interface{}{
		"id_posisi":     "1",
		"kode_propinsi": "31",
		"perusahaan":    map[string]interface{}{"kode_propinsi": "32"},
	})
	if got.ProvinceCode == nil || *got.ProvinceCode != "31" {
		t.Errorf("top-level code should win, got %v", got.ProvinceCode)
	}
}

func TestNormalizeNumericCoercion(t *testing.T) {
	n := NewNormalizer(DefaultFieldMap())
	got := n.Normalize(map[string]interface{}{
		"id_posisi":        "1",
		"jumlah_kuota":     "12",
		"jumlah_terdaftar": float64(7),
	})
	if got.Quota == nil || *got.Quota != 12 {
		t.Errorf("Quota = %v, want 12", got.Quota)
	}
	if got.RegisteredCount == nil || *got.RegisteredCount != 7 {
		t.Errorf("RegisteredCount = %v, want 7", got.RegisteredCount)
	}

	got = n.Normalize(map[string]interface{}{"id_posisi": "1", "jumlah_kuota": "banyak"})
	if got.Quota != nil {
		t.Errorf("non-numeric quota should be nil, got %v", got.Quota)
	}
}

func TestNormalizeRetainsRawPayload(t *testing.T) {
	n := NewNormalizer(DefaultFieldMap())
	got := n.Normalize(map[string]interface{}{"id_posisi": "1", "extra": "kept"})
	if len(got.RawPayload) == 0 {
		t.Fatal("raw payload snapshot missing")
	}
}
