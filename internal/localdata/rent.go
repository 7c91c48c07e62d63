package localdata

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// RentSummary aggregates real-estate trade records for one dong.
type RentSummary struct {
	DongName           string   `json:"dongName"`
	SampleCount        int      `json:"sampleCount"`
	MinPrice           *float64 `json:"minPrice"`           // 만원
	MaxPrice           *float64 `json:"maxPrice"`           // 만원
	AvgPricePerM2      *float64 `json:"avgPricePerM2"`      // 만원/㎡
	AvgPricePerM2Won   *float64 `json:"avgPricePerM2Won"`   // 원/㎡
	RecentContractDate string   `json:"recentContractDate"` // "2026-03-14", empty when unknown
}

// RentClient looks up the rent/trade summary for a dong.
type RentClient interface {
	SummaryByDong(ctx context.Context, dongName string) (*RentSummary, error)
}

// RentTable is an in-memory RentClient built from a government trade-record
// CSV export. The lookup key is the canonicalized dong name.
type RentTable struct {
	byDong map[string]*RentSummary
}

var _ RentClient = (*RentTable)(nil)

// SummaryByDong returns the summary for the dong, or nil when the dong is
// not in the table.
func (t *RentTable) SummaryByDong(ctx context.Context, dongName string) (*RentSummary, error) {
	if s, ok := t.byDong[canonicalDongName(dongName)]; ok {
		return s, nil
	}
	return nil, nil
}

// Len returns the number of dongs in the table.
func (t *RentTable) Len() int {
	return len(t.byDong)
}

// LoadRentCSV reads a trade-record CSV file and aggregates it per dong.
// Government exports ship in EUC-KR, so the reader decodes from that.
func LoadRentCSV(path string) (*RentTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rent CSV: %w", err)
	}
	defer f.Close()

	table, err := parseRentCSV(transform.NewReader(f, korean.EUCKR.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("parsing rent CSV %s: %w", path, err)
	}
	slog.Info("rent CSV loaded", "path", path, "dongs", table.Len())
	return table, nil
}

// rentColIndex locates the required columns in the header row.
type rentColIndex struct {
	sigungu     int
	price       int
	area        int
	contractYm  int
	contractDay int
}

func (c *rentColIndex) maxIndex() int {
	max := c.sigungu
	for _, i := range []int{c.price, c.area, c.contractYm, c.contractDay} {
		if i > max {
			max = i
		}
	}
	return max
}

type rentAgg struct {
	count         int
	minPrice      *float64
	maxPrice      *float64
	sumPricePerM2 float64
	cntPricePerM2 int
	recentDate    time.Time
}

func parseRentCSV(r io.Reader) (*RentTable, error) {
	// The export prepends metadata lines with stray quoting, so the file is
	// scanned line by line until the real header shows up instead of being
	// handed to encoding/csv wholesale.
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	aggByDong := map[string]*rentAgg{}
	var cols *rentColIndex

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := splitCSVLine(line)

		if cols == nil {
			if isRentHeader(fields) {
				idx, err := buildRentColIndex(fields)
				if err != nil {
					return nil, err
				}
				cols = idx
			}
			continue
		}

		// Data rows start with a numeric NO column; everything else is metadata.
		if _, err := strconv.Atoi(strings.TrimSpace(fields[0])); err != nil {
			continue
		}
		if len(fields) <= cols.maxIndex() {
			continue
		}

		dong := emdBaseFromSigungu(fields[cols.sigungu])
		if dong == "" {
			continue
		}
		key := canonicalDongName(dong)

		agg, ok := aggByDong[key]
		if !ok {
			agg = &rentAgg{}
			aggByDong[key] = agg
		}
		agg.count++

		price := parseCSVNumber(fields[cols.price])
		area := parseCSVNumber(fields[cols.area])
		if price != nil {
			if agg.minPrice == nil || *price < *agg.minPrice {
				agg.minPrice = price
			}
			if agg.maxPrice == nil || *price > *agg.maxPrice {
				agg.maxPrice = price
			}
		}
		if price != nil && area != nil && *area > 0 {
			agg.sumPricePerM2 += *price / *area
			agg.cntPricePerM2++
		}

		if d, ok := parseContractDate(fields[cols.contractYm], fields[cols.contractDay]); ok && d.After(agg.recentDate) {
			agg.recentDate = d
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if cols == nil {
		return nil, fmt.Errorf("no header row found")
	}

	byDong := make(map[string]*RentSummary, len(aggByDong))
	for key, agg := range aggByDong {
		s := &RentSummary{
			DongName:    key,
			SampleCount: agg.count,
			MinPrice:    agg.minPrice,
			MaxPrice:    agg.maxPrice,
		}
		if agg.cntPricePerM2 > 0 {
			avg := agg.sumPricePerM2 / float64(agg.cntPricePerM2)
			avgWon := avg * 10000
			s.AvgPricePerM2 = &avg
			s.AvgPricePerM2Won = &avgWon
		}
		if !agg.recentDate.IsZero() {
			s.RecentContractDate = agg.recentDate.Format("2006-01-02")
		}
		byDong[key] = s
	}
	return &RentTable{byDong: byDong}, nil
}

// rentHeaderColumns are required in a header row, which also starts with "NO".
var rentHeaderColumns = []string{"시군구", "전용/연면적(㎡)", "거래금액(만원)", "계약년월", "계약일"}

func isRentHeader(fields []string) bool {
	if len(fields) < 10 || strings.TrimSpace(fields[0]) != "NO" {
		return false
	}
	for _, want := range rentHeaderColumns {
		found := false
		for _, f := range fields {
			if strings.Contains(f, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func buildRentColIndex(header []string) (*rentColIndex, error) {
	idx := func(name string) int {
		for i, h := range header {
			if strings.Contains(h, name) {
				return i
			}
		}
		return -1
	}

	c := &rentColIndex{
		sigungu:     idx("시군구"),
		area:        idx("전용/연면적"),
		price:       idx("거래금액"),
		contractYm:  idx("계약년월"),
		contractDay: idx("계약일"),
	}
	if c.sigungu < 0 || c.area < 0 || c.price < 0 || c.contractYm < 0 || c.contractDay < 0 {
		return nil, fmt.Errorf("required columns not found in header: %s", strings.Join(header, " | "))
	}
	return c, nil
}

// splitCSVLine splits one CSV line, handling quoted fields and doubled quotes.
func splitCSVLine(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				cur.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(ch)
		}
	}
	fields = append(fields, cur.String())

	for i, f := range fields {
		fields[i] = strings.TrimSpace(strings.TrimPrefix(f, "\uFEFF"))
	}
	return fields
}

func parseCSVNumber(s string) *float64 {
	trimmed := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if trimmed == "" {
		return nil
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil
	}
	return &n
}

func parseContractDate(ymRaw, dayRaw string) (time.Time, bool) {
	ym := strings.TrimSpace(ymRaw)
	day := strings.TrimSpace(dayRaw)
	if len(ym) != 6 || day == "" {
		return time.Time{}, false
	}
	if len(day) == 1 {
		day = "0" + day
	}
	d, err := time.Parse("20060102", ym+day)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

var (
	dongGaRe       = regexp.MustCompile(`^(.+동)[0-9]+가$`)
	roGaRe         = regexp.MustCompile(`^(.+로)[0-9]+가$`)
	numberedTailRe = regexp.MustCompile(`[0-9]+동$`)
)

// emdBaseFromSigungu extracts the dong part from a combined column like
// "서울특별시 용산구 한강로2가". Tokens after sido and sigungu form the emd
// name; "영등포동3가" collapses to "영등포동" and "한강로2가" to "한강로".
func emdBaseFromSigungu(field string) string {
	tokens := strings.Fields(strings.TrimSpace(field))
	if len(tokens) < 3 {
		return ""
	}
	emd := strings.Join(tokens[2:], " ")

	if m := dongGaRe.FindStringSubmatch(emd); m != nil {
		return m[1]
	}
	if m := roGaRe.FindStringSubmatch(emd); m != nil {
		return m[1]
	}
	return emd
}

// canonicalDongName normalizes a dong name into the lookup key: whitespace
// and quotes removed, numbered dongs collapsed, and a trailing 동 appended
// to road-style names so "한강로" and "한강로동" land on the same key.
func canonicalDongName(raw string) string {
	s := strings.NewReplacer("\uFEFF", "", "\"", "", " ", "", "\t", "").Replace(raw)
	s = strings.TrimSpace(s)
	s = numberedTailRe.ReplaceAllString(s, "동")
	if s == "" {
		return ""
	}
	if strings.HasSuffix(s, "동") || strings.HasSuffix(s, "가") {
		return s
	}
	return s + "동"
}
