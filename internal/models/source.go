package models

// FeedType identifies the ingestion connector a raw document came from.
type FeedType string

const (
	FeedLegisinfoBillEvent FeedType = "legisinfo_bill_event"
	FeedLegisinfoBillFinal FeedType = "legisinfo_bill_final"
	FeedCanadaGazetteP2    FeedType = "canada_gazette_p2"
	FeedOrdersInCouncil    FeedType = "orders_in_council"
	FeedCanadaNews         FeedType = "canada_news"
)

// SourceType classifies an evidence item by the kind of government document.
type SourceType string

const (
	SourceBillEvent         SourceType = "bill-event"
	SourceBillFinalStatus   SourceType = "bill-final-status"
	SourceGazetteRegulation SourceType = "gazette-regulation"
	SourceOrderInCouncil    SourceType = "order-in-council"
	SourceNewsRelease       SourceType = "news-release"
)

var feedSources = map[FeedType]SourceType{
	FeedLegisinfoBillEvent: SourceBillEvent,
	FeedLegisinfoBillFinal: SourceBillFinalStatus,
	FeedCanadaGazetteP2:    SourceGazetteRegulation,
	FeedOrdersInCouncil:    SourceOrderInCouncil,
	FeedCanadaNews:         SourceNewsRelease,
}

// SourceType maps the feed to the evidence source type it produces.
func (f FeedType) SourceType() (SourceType, bool) {
	st, ok := feedSources[f]
	return st, ok
}

func (f FeedType) Valid() bool {
	_, ok := feedSources[f]
	return ok
}

func (s SourceType) Valid() bool {
	for _, st := range feedSources {
		if st == s {
			return true
		}
	}
	return false
}

// Likelihood is the oracle's coarse relevance judgement.
type Likelihood string

const (
	LikelihoodLow    Likelihood = "low"
	LikelihoodMedium Likelihood = "medium"
	LikelihoodHigh   Likelihood = "high"
)

func (l Likelihood) Valid() bool {
	return l == LikelihoodLow || l == LikelihoodMedium || l == LikelihoodHigh
}

// Rank orders likelihoods; unknown values rank below low.
func (l Likelihood) Rank() int {
	switch l {
	case LikelihoodLow:
		return 1
	case LikelihoodMedium:
		return 2
	case LikelihoodHigh:
		return 3
	}
	return 0
}

// AtLeast reports whether l ranks at or above floor.
func (l Likelihood) AtLeast(floor Likelihood) bool {
	return l.Rank() >= floor.Rank()
}
