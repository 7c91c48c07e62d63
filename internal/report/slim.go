package report

import "math"

// SlimReport is the compacted report that goes into the model prompt:
// recent quarters plus trend aggregates instead of the full history.
type SlimReport struct {
	Dong     Dong          `json:"dong"`
	Summary  SlimSummary   `json:"summary"`
	Traffic  *SlimTraffic  `json:"traffic"`
	Store    *SlimStore    `json:"store"`
	Sales    *SlimSales    `json:"sales"`
	TAChange *SlimTAChange `json:"taChange"`
	Facility *SlimFacility `json:"facility"`

	SalesTrend SlimSalesTrend `json:"salesTrend"`

	// Place examples trimmed to name/category only.
	Pubs []SlimPub `json:"pubs"`

	Risk *Risk `json:"risk"`
}

type SlimSummary struct {
	PubCount int `json:"pubCount"`
}

type SlimTraffic struct {
	TotalFootfall float64 `json:"totalFootfall"`
	MaleRatio     float64 `json:"maleRatio"`
	FemaleRatio   float64 `json:"femaleRatio"`
	Age2030Ratio  float64 `json:"age20_30Ratio"`
	PeakTimeSlot  string  `json:"peakTimeSlot"`
}

type SlimStore struct {
	TotalStoreCount int     `json:"totalStoreCount"`
	OpenRate        float64 `json:"openRate"`
	CloseRate       float64 `json:"closeRate"`
	FranchiseRatio  float64 `json:"franchiseRatio"`
}

type SlimSales struct {
	Period       string  `json:"period"`
	TotalAmt     float64 `json:"totalAmt"`
	WeekendRatio float64 `json:"weekendRatio"`
	PeakTimeSlot string  `json:"peakTimeSlot"`
}

type SlimTAChange struct {
	Period    string `json:"period"`
	Index     string `json:"index"`
	IndexName string `json:"indexName"`
}

type SlimFacility struct {
	ViatrFacilityCount int `json:"viatrFacilityCount"`
	UniversityCount    int `json:"universityCount"`
	SubwayStationCount int `json:"subwayStationCount"`
	BusStopCount       int `json:"busStopCount"`
	BankCount          int `json:"bankCount"`
}

type SlimTrendItem struct {
	Period              string   `json:"period"`
	AlcoholTotalAmt     float64  `json:"alcoholTotalAmt"`
	AlcoholWeekendRatio float64  `json:"alcoholWeekendRatio"`
	QoQGrowth           *float64 `json:"qoqGrowth"`
	ChangeIndex         string   `json:"changeIndex,omitempty"`
	PeakTimeSlot        string   `json:"peakTimeSlot,omitempty"`
}

type SlimSalesTrend struct {
	Recent               []SlimTrendItem `json:"recent"`
	LongTermDirection    string          `json:"longTermDirection,omitempty"` // up/down/flat/mixed
	RecentNegativeStreak int             `json:"recentNegativeStreak"`
	RecentQoQAvg         *float64        `json:"recentQoqAvg"`
	RecentQoQVolatility  *float64        `json:"recentQoqVolatility"`
}

type SlimPub struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// recentQuarters caps how much of the sales trend feeds the prompt.
const recentQuarters = 8

// Slim compacts a full DistrictReport into its prompt-sized form.
func Slim(r *DistrictReport) *SlimReport {
	slim := &SlimReport{
		Dong:    r.Dong,
		Summary: SlimSummary{PubCount: r.Summary.PubCount},
		Risk:    r.Risk,
	}

	if t := r.Traffic; t != nil {
		slim.Traffic = &SlimTraffic{
			TotalFootfall: t.TotalFootfall,
			MaleRatio:     t.MaleRatio,
			FemaleRatio:   t.FemaleRatio,
			Age2030Ratio:  t.Age2030Ratio,
			PeakTimeSlot:  t.PeakTimeSlot,
		}
	}
	if s := r.Store; s != nil {
		slim.Store = &SlimStore{
			TotalStoreCount: s.TotalStoreCount,
			OpenRate:        s.OpenRate,
			CloseRate:       s.CloseRate,
			FranchiseRatio:  s.FranchiseRatio,
		}
	}
	if s := r.Sales; s != nil {
		slim.Sales = &SlimSales{
			Period:       s.Period,
			TotalAmt:     s.TotalAmt,
			WeekendRatio: s.WeekendRatio,
			PeakTimeSlot: s.PeakTimeSlot,
		}
	}
	if ta := r.TAChange; ta != nil {
		slim.TAChange = &SlimTAChange{
			Period:    ta.Period,
			Index:     validChangeIndex(ta.Index),
			IndexName: ta.IndexName,
		}
	}
	if f := r.Facility; f != nil {
		slim.Facility = &SlimFacility{
			ViatrFacilityCount: f.ViatrFacilityCount,
			UniversityCount:    f.UniversityCount,
			SubwayStationCount: f.SubwayStationCount,
			BusStopCount:       f.BusStopCount,
			BankCount:          f.BankCount,
		}
	}

	slim.SalesTrend = slimTrend(r.SalesTrend)

	for _, p := range r.KakaoPubs {
		if len(slim.Pubs) == 5 {
			break
		}
		slim.Pubs = append(slim.Pubs, SlimPub{Name: p.Name, Category: p.Category})
	}

	return slim
}

func slimTrend(trend []SalesTrendItem) SlimSalesTrend {
	recentRaw := trend
	if len(recentRaw) > recentQuarters {
		recentRaw = recentRaw[len(recentRaw)-recentQuarters:]
	}

	out := SlimSalesTrend{
		LongTermDirection: longTermDirection(trend),
	}

	var qoq []float64
	for _, t := range recentRaw {
		out.Recent = append(out.Recent, SlimTrendItem{
			Period:              t.Period,
			AlcoholTotalAmt:     t.AlcoholTotalAmt,
			AlcoholWeekendRatio: t.AlcoholWeekendRatio,
			QoQGrowth:           t.QoQGrowth,
			ChangeIndex:         validChangeIndex(t.ChangeIndex),
			PeakTimeSlot:        t.PeakTimeSlot,
		})
		if t.QoQGrowth != nil {
			qoq = append(qoq, *t.QoQGrowth)
		}
	}

	if len(qoq) > 0 {
		var sum, absSum float64
		for _, v := range qoq {
			sum += v
			absSum += math.Abs(v)
		}
		avg := sum / float64(len(qoq))
		vol := absSum / float64(len(qoq))
		out.RecentQoQAvg = &avg
		out.RecentQoQVolatility = &vol
	}

	// Count trailing quarters of negative growth; an unknown value ends the run.
	for i := len(recentRaw) - 1; i >= 0; i-- {
		g := recentRaw[i].QoQGrowth
		if g == nil || *g >= 0 {
			break
		}
		out.RecentNegativeStreak++
	}

	return out
}

// longTermDirection compares the first and last quarters of the whole
// series: more than +10% is up, below -10% is down, within ±5% is flat,
// and the in-between band is mixed.
func longTermDirection(trend []SalesTrendItem) string {
	if len(trend) < 2 {
		return ""
	}
	first := trend[0].AlcoholTotalAmt
	last := trend[len(trend)-1].AlcoholTotalAmt

	absFirst := math.Abs(first)
	if absFirst == 0 {
		absFirst = 1
	}
	ratio := (last - first) / absFirst

	switch {
	case ratio > 0.1:
		return "up"
	case ratio < -0.1:
		return "down"
	case math.Abs(ratio) <= 0.05:
		return "flat"
	default:
		return "mixed"
	}
}

func validChangeIndex(v string) string {
	switch v {
	case "LL", "LH", "HL", "HH":
		return v
	}
	return ""
}
