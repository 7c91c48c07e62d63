package report

// DistrictReport is the full business-data report for one dong, as served
// by the internal data service.
type DistrictReport struct {
	Dong       Dong             `json:"dong"`
	Summary    Summary          `json:"summary"`
	TopPubs    []TopPub         `json:"topPubs,omitempty"`
	Monthly    []MonthlyStat    `json:"monthly,omitempty"`
	Traffic    *TrafficSummary  `json:"traffic,omitempty"`
	Store      *StoreSummary    `json:"store,omitempty"`
	TAChange   *TAChangeSummary `json:"taChange,omitempty"`
	Sales      *SalesSection    `json:"sales,omitempty"`
	Facility   *FacilitySummary `json:"facility,omitempty"`
	SalesTrend []SalesTrendItem `json:"salesTrend,omitempty"`
	KakaoPubs  []KakaoPub       `json:"kakaoPubs,omitempty"`
	Risk       *Risk            `json:"risk,omitempty"`
}

type Dong struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

type Summary struct {
	PubCount  int      `json:"pubCount"`
	AvgRating *float64 `json:"avgRating"`
	Reviews   int      `json:"reviews"`
}

type TopPub struct {
	Name        string   `json:"name"`
	Rating      *float64 `json:"rating"`
	ReviewCount int      `json:"reviewCount"`
}

type MonthlyStat struct {
	Month   string `json:"month"` // "2025-06-01"
	Reviews int    `json:"reviews"`
}

type TrafficSummary struct {
	Period        string  `json:"period"`
	TotalFootfall float64 `json:"totalFootfall"`
	MaleRatio     float64 `json:"maleRatio"`
	FemaleRatio   float64 `json:"femaleRatio"`
	Age2030Ratio  float64 `json:"age20_30Ratio"`
	PeakTimeSlot  string  `json:"peakTimeSlot"`
}

type StoreSummary struct {
	DongCode            string  `json:"dongCode"`
	TotalStoreCount     int     `json:"totalStoreCount"`
	OpenStoreCount      int     `json:"openStoreCount"`
	CloseStoreCount     int     `json:"closeStoreCount"`
	FranchiseStoreCount int     `json:"franchiseStoreCount"`
	OpenRate            float64 `json:"openRate"`
	CloseRate           float64 `json:"closeRate"`
	FranchiseRatio      float64 `json:"franchiseRatio"`
}

// TAChangeSummary carries the trade-area change index (LL/LH/HL/HH).
type TAChangeSummary struct {
	Period    string `json:"period"`
	Index     string `json:"index"`
	IndexName string `json:"indexName"`
}

type SalesSection struct {
	Period       string  `json:"period"`
	TotalAmt     float64 `json:"totalAmt"`
	WeekendRatio float64 `json:"weekendRatio"` // 0..1
	PeakTimeSlot string  `json:"peakTimeSlot"` // "17-21"
}

type FacilitySummary struct {
	Period             string `json:"period"`
	ViatrFacilityCount int    `json:"viatrFacilityCount"`
	UniversityCount    int    `json:"universityCount"`
	SubwayStationCount int    `json:"subwayStationCount"`
	BusStopCount       int    `json:"busStopCount"`
	BankCount          int    `json:"bankCount"`
}

// SalesTrendItem is one quarter of pub sales with the surrounding
// demographic and facility context.
type SalesTrendItem struct {
	Period string `json:"period"`

	AlcoholTotalAmt     float64  `json:"alcoholTotalAmt"`
	AlcoholWeekendRatio float64  `json:"alcoholWeekendRatio"`
	QoQGrowth           *float64 `json:"qoqGrowth,omitempty"`

	ChangeIndex     string `json:"changeIndex,omitempty"`
	ChangeIndexName string `json:"changeIndexName,omitempty"`

	MaleRatio    *float64 `json:"maleRatio"`
	FemaleRatio  *float64 `json:"femaleRatio"`
	Age2030Ratio *float64 `json:"age20_30Ratio"`

	PeakTimeSlot string `json:"peakTimeSlot,omitempty"`

	ViatrFacilityCount int `json:"viatrFacilityCount"`
	UniversityCount    int `json:"universityCount"`
	SubwayStationCount int `json:"subwayStationCount"`
	BusStopCount       int `json:"busStopCount"`
	BankCount          int `json:"bankCount"`
}

// KakaoPub is a place example attached to the report.
type KakaoPub struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

type Risk struct {
	Level   string   `json:"level"` // "low", "medium", "high"
	Reasons []string `json:"reasons"`
}
