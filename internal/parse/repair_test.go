package parse

import (
	"testing"

	"polistep/internal/types"
)

func TestCleanRequiredDocuments(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "phone and address stripped",
			in:   []string{"신청서.pdf", "02-123-4567", "강원특별자치도 춘천시 중앙로 1"},
			want: []string{"신청서.pdf"},
		},
		{
			name: "document keyword kept despite digits",
			in:   []string{"주민등록등본 1부", "033-249-2000"},
			want: []string{"주민등록등본 1부"},
		},
		{
			name: "filename kept",
			in:   []string{"application_form.pdf", "사업계획서.hwp"},
			want: []string{"application_form.pdf", "사업계획서.hwp"},
		},
		{
			name: "service number stripped",
			in:   []string{"1345-6789"},
			want: []string{},
		},
		{
			name: "duplicates removed",
			in:   []string{"신청서", "신청서"},
			want: []string{"신청서"},
		},
		{
			name: "plain entries untouched",
			in:   []string{"재학증명서", "통장 사본"},
			want: []string{"재학증명서", "통장 사본"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := CleanRequiredDocuments(types.AgentRunResult{RequiredDocuments: tc.in})
			if len(r.RequiredDocuments) != len(tc.want) {
				t.Fatalf("got %v, want %v", r.RequiredDocuments, tc.want)
			}
			for i := range tc.want {
				if r.RequiredDocuments[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", r.RequiredDocuments, tc.want)
				}
			}
		})
	}
}

func TestMoveResidencyFromAge(t *testing.T) {
	cases := []struct {
		name       string
		age        string
		region     string
		wantAge    string
		wantRegion string
	}{
		{
			name:       "residency keyword moves to region",
			age:        "강원도 내 거주자",
			region:     "",
			wantAge:    types.NoRestriction,
			wantRegion: "강원도 내 거주자",
		},
		{
			name:       "residency keyword with filled region merges",
			age:        "주민등록상 관내 주소",
			region:     "춘천시",
			wantAge:    types.NoRestriction,
			wantRegion: "춘천시 / 주민등록상 관내 주소",
		},
		{
			name:       "real age rule untouched",
			age:        "만 19세 이상 34세 이하",
			region:     "",
			wantAge:    "만 19세 이상 34세 이하",
			wantRegion: "",
		},
		{
			name:       "age plus residency stays in age",
			age:        "만 19세 이상, 관내 거주",
			region:     "",
			wantAge:    "만 19세 이상, 관내 거주",
			wantRegion: "",
		},
		{
			name:       "empty age untouched",
			age:        "",
			region:     "춘천시",
			wantAge:    "",
			wantRegion: "춘천시",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := types.AgentRunResult{Criteria: types.Criteria{Age: tc.age, Region: tc.region}}
			out := MoveResidencyFromAge(in)
			if out.Criteria.Age != tc.wantAge {
				t.Errorf("age = %q, want %q", out.Criteria.Age, tc.wantAge)
			}
			if out.Criteria.Region != tc.wantRegion {
				t.Errorf("region = %q, want %q", out.Criteria.Region, tc.wantRegion)
			}

			// Re-running must not change the record further.
			again := MoveResidencyFromAge(out)
			if again.Criteria != out.Criteria {
				t.Errorf("rule not idempotent: %+v vs %+v", again.Criteria, out.Criteria)
			}
		})
	}
}

func TestFillAgeFromEvidence(t *testing.T) {
	cases := []struct {
		name     string
		age      string
		evidence string
		want     string
	}{
		{
			name:     "fills from range pattern",
			age:      "",
			evidence: "지원대상: 만 19세 ~ 39세 청년",
			want:     "만 19세 ~ 39세",
		},
		{
			name:     "fills from bound pattern",
			age:      "-",
			evidence: "만 65세 이상 도민",
			want:     "만 65세 이상",
		},
		{
			name:     "explicit no-restriction not overwritten",
			age:      types.NoRestriction,
			evidence: "만 19세 이상",
			want:     types.NoRestriction,
		},
		{
			name:     "existing rule not overwritten",
			age:      "만 24세 이하",
			evidence: "만 19세 이상",
			want:     "만 24세 이하",
		},
		{
			name:     "no pattern leaves empty",
			age:      "",
			evidence: "소득 기준 중위 150% 이하",
			want:     "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := types.AgentRunResult{
				Criteria:     types.Criteria{Age: tc.age},
				EvidenceText: tc.evidence,
			}
			out := FillAgeFromEvidence(in)
			if out.Criteria.Age != tc.want {
				t.Errorf("age = %q, want %q", out.Criteria.Age, tc.want)
			}
		})
	}
}

func TestMergeRegionFromEvidence(t *testing.T) {
	t.Run("evidence with alternatives wins", func(t *testing.T) {
		in := types.AgentRunResult{
			Criteria:     types.Criteria{Region: "춘천시"},
			EvidenceText: "신청자격\n춘천시 또는 원주시 거주자\n기타",
		}
		out := MergeRegionFromEvidence(in)
		if out.Criteria.Region != "춘천시 또는 원주시 거주자" {
			t.Fatalf("region = %q", out.Criteria.Region)
		}
	})

	t.Run("plain structured region kept", func(t *testing.T) {
		in := types.AgentRunResult{
			Criteria:     types.Criteria{Region: "강원도 거주"},
			EvidenceText: "강원도 거주 청년",
		}
		out := MergeRegionFromEvidence(in)
		if out.Criteria.Region != "강원도 거주" {
			t.Fatalf("region = %q", out.Criteria.Region)
		}
	})

	t.Run("empty region filled from evidence", func(t *testing.T) {
		in := types.AgentRunResult{
			EvidenceText: "- 공고일 기준 관내 거주 청년",
		}
		out := MergeRegionFromEvidence(in)
		if out.Criteria.Region != "공고일 기준 관내 거주 청년" {
			t.Fatalf("region = %q", out.Criteria.Region)
		}
	})
}

func TestNormalizeNoneSynonyms(t *testing.T) {
	in := types.AgentRunResult{
		Criteria: types.Criteria{
			Age:        "",
			Region:     "해당없음",
			Income:     "-",
			Employment: "제한없음",
			Other:      "",
		},
	}
	out := NormalizeNoneSynonyms(in)

	if out.Criteria.Age != types.NoRestriction {
		t.Errorf("age = %q", out.Criteria.Age)
	}
	if out.Criteria.Region != types.NoRestriction {
		t.Errorf("region = %q", out.Criteria.Region)
	}
	if out.Criteria.Income != types.NoRestriction {
		t.Errorf("income = %q", out.Criteria.Income)
	}
	if out.Criteria.Employment != types.NoRestriction {
		t.Errorf("employment = %q", out.Criteria.Employment)
	}
	if out.Criteria.Other != types.None {
		t.Errorf("other = %q", out.Criteria.Other)
	}

	// Idempotency over every criterion field.
	again := NormalizeNoneSynonyms(out)
	if again.Criteria != out.Criteria {
		t.Fatalf("not idempotent: %+v vs %+v", again.Criteria, out.Criteria)
	}
}

func TestNormalizeNoneSynonyms_RealRulesUntouched(t *testing.T) {
	in := types.AgentRunResult{
		Criteria: types.Criteria{
			Age:    "만 19세 이상",
			Region: "강원도 거주",
			Other:  "군 복무자 제외",
		},
	}
	out := NormalizeNoneSynonyms(in)
	if out.Criteria.Age != "만 19세 이상" || out.Criteria.Region != "강원도 거주" || out.Criteria.Other != "군 복무자 제외" {
		t.Fatalf("real rules changed: %+v", out.Criteria)
	}
}

func TestNormalizeChannel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"온라인 신청", string(types.ChannelOnline)},
		{"주민센터 방문 접수", string(types.ChannelInPerson)},
		{"우편 접수", string(types.ChannelMail)},
		{"온라인 또는 방문 신청", string(types.ChannelMixed)},
		{"온라인, 방문, 우편", string(types.ChannelMixed)},
		{"혼합", string(types.ChannelMixed)},
		{"문의 후 안내", ""},
		{"", ""},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			out := NormalizeChannel(types.AgentRunResult{ApplyChannel: tc.in})
			if out.ApplyChannel != tc.want {
				t.Errorf("channel(%q) = %q, want %q", tc.in, out.ApplyChannel, tc.want)
			}
		})
	}
}

func TestFillContactPhone(t *testing.T) {
	t.Run("fills from evidence", func(t *testing.T) {
		in := types.AgentRunResult{
			EvidenceText: "문의: 춘천시청 청년정책과 033-250-3000",
		}
		out := FillContactPhone(in)
		if out.Contact.Phone != "033-250-3000" {
			t.Fatalf("phone = %q", out.Contact.Phone)
		}
	})

	t.Run("existing phone kept", func(t *testing.T) {
		in := types.AgentRunResult{
			Contact:      types.Contact{Phone: "02-120"},
			EvidenceText: "033-250-3000",
		}
		out := FillContactPhone(in)
		if out.Contact.Phone != "02-120" {
			t.Fatalf("phone = %q", out.Contact.Phone)
		}
	})
}

func TestRepair_Composition(t *testing.T) {
	in := types.AgentRunResult{
		Matched: types.MatchedTrue,
		Criteria: types.Criteria{
			Age:    "강원도 내 거주자",
			Region: "",
			Income: "-",
			Other:  "",
		},
		RequiredDocuments: []string{"신청서.pdf", "02-123-4567"},
		ApplyChannel:      "온라인 또는 방문",
		EvidenceText:      "지원대상: 만 19세 ~ 34세\n문의 033-250-3000",
	}

	out := Repair(in)

	if out.Criteria.Region != "강원도 내 거주자" {
		t.Errorf("region = %q", out.Criteria.Region)
	}
	if out.Criteria.Age != types.NoRestriction {
		t.Errorf("age = %q", out.Criteria.Age)
	}
	if out.Criteria.Income != types.NoRestriction {
		t.Errorf("income = %q", out.Criteria.Income)
	}
	if out.Criteria.Other != types.None {
		t.Errorf("other = %q", out.Criteria.Other)
	}
	if len(out.RequiredDocuments) != 1 || out.RequiredDocuments[0] != "신청서.pdf" {
		t.Errorf("documents = %v", out.RequiredDocuments)
	}
	if out.ApplyChannel != string(types.ChannelMixed) {
		t.Errorf("channel = %q", out.ApplyChannel)
	}
	if out.Contact.Phone != "033-250-3000" {
		t.Errorf("phone = %q", out.Contact.Phone)
	}

	// The whole pipeline must be safe to re-run.
	again := Repair(out)
	if again.Criteria != out.Criteria || again.ApplyChannel != out.ApplyChannel {
		t.Fatalf("pipeline not idempotent")
	}
}
