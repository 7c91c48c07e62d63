package localdata

import (
	"context"
	"strings"
	"testing"
)

const rentCSVFixture = `"국토교통부 실거래가 공개시스템"
"시군구 : 전체"

NO,시군구,번지,본번,부번,건물명,전용/연면적(㎡),계약년월,계약일,거래금액(만원)
1,서울특별시 용산구 한강로2가,1,1,0,어딘가,50,202603,14,"10,000"
2,서울특별시 용산구 한강로3가,2,2,0,어딘가,100,202601,5,"30,000"
3,서울특별시 성동구 성수동1가,3,3,0,건물,40,202512,20,"8,000"
4,서울특별시 마포구 연남동,4,4,0,건물,80,202511,1,"16,000"
메모,깨진 줄은 건너뛴다,,,,,,,,
`

func loadFixture(t *testing.T) *RentTable {
	t.Helper()
	table, err := parseRentCSV(strings.NewReader(rentCSVFixture))
	if err != nil {
		t.Fatalf("parseRentCSV: %v", err)
	}
	return table
}

func TestParseRentCSV_Aggregates(t *testing.T) {
	table := loadFixture(t)

	if table.Len() != 3 {
		t.Fatalf("dong count = %d, want 3", table.Len())
	}

	// 한강로2가 and 한강로3가 both collapse into the 한강로동 bucket.
	s, err := table.SummaryByDong(context.Background(), "한강로")
	if err != nil {
		t.Fatalf("SummaryByDong: %v", err)
	}
	if s == nil {
		t.Fatal("expected summary for 한강로")
	}
	if s.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", s.SampleCount)
	}
	if s.MinPrice == nil || *s.MinPrice != 10000 {
		t.Errorf("MinPrice = %v, want 10000", s.MinPrice)
	}
	if s.MaxPrice == nil || *s.MaxPrice != 30000 {
		t.Errorf("MaxPrice = %v, want 30000", s.MaxPrice)
	}
	// (10000/50 + 30000/100) / 2 = 250 만원/㎡
	if s.AvgPricePerM2 == nil || *s.AvgPricePerM2 != 250 {
		t.Errorf("AvgPricePerM2 = %v, want 250", s.AvgPricePerM2)
	}
	if s.AvgPricePerM2Won == nil || *s.AvgPricePerM2Won != 2500000 {
		t.Errorf("AvgPricePerM2Won = %v, want 2500000", s.AvgPricePerM2Won)
	}
	if s.RecentContractDate != "2026-03-14" {
		t.Errorf("RecentContractDate = %q, want %q", s.RecentContractDate, "2026-03-14")
	}
}

func TestSummaryByDong_CanonicalLookup(t *testing.T) {
	table := loadFixture(t)

	// 성수동1가 in the CSV is reachable as 성수동.
	s, err := table.SummaryByDong(context.Background(), "성수동")
	if err != nil {
		t.Fatalf("SummaryByDong: %v", err)
	}
	if s == nil || s.SampleCount != 1 {
		t.Fatalf("summary = %+v, want one 성수동 record", s)
	}

	// Numbered input collapses onto the same key.
	s2, err := table.SummaryByDong(context.Background(), "연남1동")
	if err != nil {
		t.Fatalf("SummaryByDong: %v", err)
	}
	if s2 == nil || s2.DongName != "연남동" {
		t.Fatalf("summary = %+v, want 연남동", s2)
	}
}

func TestSummaryByDong_Unknown(t *testing.T) {
	table := loadFixture(t)

	s, err := table.SummaryByDong(context.Background(), "없는동")
	if err != nil {
		t.Fatalf("SummaryByDong: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil for unknown dong, got %+v", s)
	}
}

func TestParseRentCSV_ByteOrderMark(t *testing.T) {
	table, err := parseRentCSV(strings.NewReader("\ufeff" + rentCSVFixture))
	if err != nil {
		t.Fatalf("parseRentCSV: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("dong count = %d, want 3", table.Len())
	}
}

func TestParseRentCSV_NoHeader(t *testing.T) {
	_, err := parseRentCSV(strings.NewReader("그냥 텍스트\n1,2,3\n"))
	if err == nil {
		t.Error("expected error for CSV without a header row")
	}
}

func TestSplitCSVLine_Quotes(t *testing.T) {
	fields := splitCSVLine(`1,"10,000","said ""hi""",plain`)
	want := []string{"1", "10,000", `said "hi"`, "plain"}
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field[%d] = %q, want %q", i, fields[i], want[i])
		}
	}
}

func TestCanonicalDongName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"남가좌1동", "남가좌동"},
		{"한강로", "한강로동"},
		{"성수동", "성수동"},
		{"한강로2가", "한강로2가"}, // already ends in 가
		{"서초", "서초동"},
		{` "연남동" `, "연남동"},
	}
	for _, tc := range cases {
		if got := canonicalDongName(tc.in); got != tc.want {
			t.Errorf("canonicalDongName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
