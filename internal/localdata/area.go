package localdata

import (
	"regexp"
	"strings"
)

// manualAreaMap maps administrative dong names to the commercial-district
// keyword people actually search for. Checked before any pattern handling.
var manualAreaMap = map[string]string{
	// 성수 special cases
	"성수1가1동": "성수동",
	"성수1가2동": "성수동",
	"성수2가1동": "성수동",
	"성수2가3동": "성수동",

	// 홍대 commercial district
	"서교동": "홍대입구",
	"동교동": "홍대입구",
	"합정동": "홍대입구",
}

// KnownTrendAreas lists the distinct district keywords the manual map
// produces.
var KnownTrendAreas = func() []string {
	seen := map[string]bool{}
	var areas []string
	for _, v := range manualAreaMap {
		if !seen[v] {
			seen[v] = true
			areas = append(areas, v)
		}
	}
	return areas
}()

var numberedDongRe = regexp.MustCompile(`^(.*?)[0-9]+동$`)

// NormalizeArea converts an administrative dong name (e.g. "성수1가1동",
// "남가좌1동") into the keyword used for trend search. Manual hot-spot
// mappings win; otherwise numbered dongs collapse ("남가좌1동" → "남가좌동")
// and anything else passes through unchanged.
func NormalizeArea(adminDong string) string {
	trimmed := strings.TrimSpace(adminDong)
	if trimmed == "" {
		return ""
	}

	if mapped, ok := manualAreaMap[trimmed]; ok {
		return mapped
	}

	if m := numberedDongRe.FindStringSubmatch(trimmed); m != nil {
		return m[1] + "동"
	}

	return trimmed
}
