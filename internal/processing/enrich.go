package processing

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/opsdash/devops-inbox/backend/internal/models"
)

// marketPriority is the fixed classification order. It drives both tag
// classification (first market present wins) and the final result ordering.
var marketPriority = []string{models.MarketFEC, models.MarketFBT, models.MarketCT}

// QualifyingComments filters a comment thread down to comments attributable
// to one of the allow-listed senders, matched via the literal "From: <sender>"
// marker embedded in the comment text, and returns them sorted ascending by
// creation time. The thread mixes automated and human annotations from many
// parties; only accountable senders count toward response-time measurement.
func QualifyingComments(comments []models.Comment, senders []string) []models.Comment {
	var qualifying []models.Comment
	for _, comment := range comments {
		for _, sender := range senders {
			if strings.Contains(comment.Text, "From: "+sender) {
				qualifying = append(qualifying, comment)
				break
			}
		}
	}

	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].CreatedDate.Before(qualifying[j].CreatedDate)
	})

	return qualifying
}

// ResponseTimeLabel derives the initial-response metric from an item's
// creation time and its qualifying comment sequence. The first qualifying
// comment is assumed to be the originating note, so the second one counts as
// the first real response. Fewer than two qualifying comments yield "".
//
// The branch between the hour and day rendering uses the unrounded hour
// value while the displayed number is rounded independently, so 23.6 hours
// renders as "24 hours". That is the established output contract; do not
// round before the branch.
func ResponseTimeLabel(created time.Time, qualifying []models.Comment) string {
	if len(qualifying) < 2 {
		return ""
	}

	hours := qualifying[1].CreatedDate.Sub(created).Hours()
	if hours < 24 {
		return fmt.Sprintf("%d hours", int(math.Round(hours)))
	}
	return fmt.Sprintf("%d days", int(math.Round(hours/24)))
}

// ClassifyMarket maps an item's raw semicolon-delimited tag text to a market.
// The first market present in priority order wins, regardless of tag order;
// absent or unmatched tags classify as Other.
func ClassifyMarket(rawTags string) string {
	if strings.TrimSpace(rawTags) == "" {
		return models.MarketOther
	}

	tags := make(map[string]struct{})
	for _, tag := range strings.Split(rawTags, ";") {
		tags[strings.TrimSpace(tag)] = struct{}{}
	}

	for _, market := range marketPriority {
		if _, ok := tags[market]; ok {
			return market
		}
	}

	return models.MarketOther
}

// MarketRank returns the sort rank of a market. Markets outside the priority
// list (including Other) rank last.
func MarketRank(market string) int {
	for i, m := range marketPriority {
		if m == market {
			return i
		}
	}
	return len(marketPriority)
}

// DaysOpen reports how many whole days an item has been open, rounded up.
func DaysOpen(created, now time.Time) int {
	return int(math.Ceil(now.Sub(created).Hours() / 24))
}
