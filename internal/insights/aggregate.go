package insights

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/brandpulse/insights-go/internal/models"
)

const unknownAccount = "Unknown Account"

func money(v float64) string { return fmt.Sprintf("$%.2f", v) }
func ratio(v float64) string { return fmt.Sprintf("%.2f", v) }
func count(v float64) string { return strconv.Itoa(int(math.Round(v))) }

func display(m models.MetricUnit) models.MetricDisplay {
	return models.MetricDisplay{
		Spend: money(m.Spend),
		Rev:   money(m.Revenue),
		Res:   count(m.Results),
		ROAS:  ratio(m.ROAS),
		CAC:   money(m.CAC),
	}
}

func displaySixMonth(m models.MetricUnit) models.SixMonthDisplay {
	return models.SixMonthDisplay{
		Res:  count(m.Results),
		ROAS: ratio(m.ROAS),
		CAC:  money(m.CAC),
	}
}

// addSums accumulates spend/revenue/results; the derived fields are
// recomputed once per brand in finalize.
func addSums(a, b models.MetricUnit) models.MetricUnit {
	a.Spend += b.Spend
	a.Revenue += b.Revenue
	a.Results += b.Results
	return a
}

func finalize(u models.MetricUnit) models.MetricUnit {
	u.ROAS = safeDiv(u.Revenue, u.Spend)
	u.CAC = safeDiv(u.Spend, u.Results)
	return u
}

// matchesPlatform reports whether a row belongs to the selected
// platform tab. The filter is a display label like "Meta Ads"; a row
// matches when the filter contains the row's platform token,
// case-insensitively.
func matchesPlatform(row models.RawRow, filter string) bool {
	p := strings.ToLower(strings.TrimSpace(row.Platform))
	if p == "" {
		return false
	}
	return strings.Contains(strings.ToLower(filter), p)
}

type brandAccum struct {
	campaigns   []models.CampaignView
	campaignIDs []string
	last7       models.MetricUnit
	prev        models.MetricUnit
	six         models.MetricUnit
}

// Aggregate merges the three windows into the brand → campaign view
// for one platform tab. The 7-day window drives the traversal: brand
// and campaign order follow first appearance there, and campaigns that
// exist only in the 30/180-day windows are not attached anywhere. The
// six-month brand totals consequently cover exactly the campaigns the
// 7-day window surfaced; that mirrors the upstream data shape and is
// kept as-is.
func Aggregate(w models.Windows, platformFilter string) []models.BrandView {
	idx30 := Index(w.Last30)
	idx180 := Index(w.Last180)

	accums := make(map[string]*brandAccum)
	order := []string{}

	for _, row := range w.Last7 {
		if !matchesPlatform(row, platformFilter) {
			continue
		}
		brand := strings.TrimSpace(row.AccountName)
		if brand == "" {
			brand = unknownAccount
		}
		acc, ok := accums[brand]
		if !ok {
			acc = &brandAccum{}
			accums[brand] = acc
			order = append(order, brand)
		}

		m7 := Extract(row)
		m30 := idx30[row.CampaignID]
		m180 := idx180[row.CampaignID]

		label := row.CampaignName
		if label == "" {
			label = row.CampaignID
		}
		acc.campaigns = append(acc.campaigns, models.CampaignView{
			Label:      label,
			CampaignID: row.CampaignID,
			Metrics: models.CampaignMetrics{
				Last7:     display(m7),
				PrevMonth: display(m30),
				SixMonth:  displaySixMonth(m180),
			},
		})
		acc.campaignIDs = append(acc.campaignIDs, row.CampaignID)
		acc.last7 = addSums(acc.last7, m7)
		acc.prev = addSums(acc.prev, m30)
		acc.six.Results += m180.Results
	}

	out := make([]models.BrandView, 0, len(order))
	for _, brand := range order {
		acc := accums[brand]
		// The loop above never summed 180-day spend/revenue; pick them
		// up from the index for the attached campaigns only.
		for _, id := range acc.campaignIDs {
			if m, ok := idx180[id]; ok {
				acc.six.Spend += m.Spend
				acc.six.Revenue += m.Revenue
			}
		}
		out = append(out, models.BrandView{
			Brand: brand,
			Metrics: models.CampaignMetrics{
				Last7:     display(finalize(acc.last7)),
				PrevMonth: display(finalize(acc.prev)),
				SixMonth:  displaySixMonth(finalize(acc.six)),
			},
			Campaigns: acc.campaigns,
		})
	}
	return out
}
