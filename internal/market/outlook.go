package market

import (
	"context"
	"math"
	"sort"

	"github.com/ajitpratap0/finadvisor/internal/portfolio"
)

// StageName identifies the market stage in status maps and metrics
const StageName = "market"

// Settings controls how a snapshot is summarized
type Settings struct {
	BullishThresholdPct float64 `mapstructure:"bullish_threshold_pct"`
	WatchThresholdPct   float64 `mapstructure:"watch_threshold_pct"`
	MaxWatch            int     `mapstructure:"max_watch"`
}

// DefaultSettings returns the stock summarization settings
func DefaultSettings() Settings {
	return Settings{
		BullishThresholdPct: 0.5,
		WatchThresholdPct:   1.0,
		MaxWatch:            5,
	}
}

// Summarize turns a snapshot into an outlook. The mean index change above
// the threshold is Bullish, below its negative is Bearish, else Neutral.
func Summarize(snap *Snapshot, settings Settings) portfolio.MarketOutlook {
	if snap == nil || len(snap.Indices) == 0 {
		return portfolio.NeutralOutlook()
	}

	sum := 0.0
	for _, idx := range snap.Indices {
		sum += idx.ChangePct
	}
	mean := sum / float64(len(snap.Indices))

	sentiment := portfolio.SentimentNeutral
	switch {
	case mean > settings.BullishThresholdPct:
		sentiment = portfolio.SentimentBullish
	case mean < -settings.BullishThresholdPct:
		sentiment = portfolio.SentimentBearish
	}

	return portfolio.MarketOutlook{
		Sentiment: sentiment,
		Watch:     watchList(snap.Sectors, settings),
	}
}

// watchList keeps sectors moving at least the watch threshold either way,
// largest moves first, ties by name.
func watchList(sectors []Move, settings Settings) []string {
	movers := make([]Move, 0, len(sectors))
	for _, s := range sectors {
		if s.Name == "" {
			continue
		}
		if math.Abs(s.ChangePct) >= settings.WatchThresholdPct {
			movers = append(movers, s)
		}
	}

	sort.SliceStable(movers, func(i, j int) bool {
		ai, aj := math.Abs(movers[i].ChangePct), math.Abs(movers[j].ChangePct)
		if ai != aj {
			return ai > aj
		}
		return movers[i].Name < movers[j].Name
	})

	if settings.MaxWatch >= 0 && len(movers) > settings.MaxWatch {
		movers = movers[:settings.MaxWatch]
	}

	watch := make([]string, len(movers))
	for i, m := range movers {
		watch[i] = m.Name
	}
	return watch
}

// snapshotFetcher is satisfied by *Client
type snapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
}

// OutlookStage is the market context stage. It implements
// stage.External[portfolio.MarketOutlook].
type OutlookStage struct {
	client   snapshotFetcher
	cache    *OutlookCache
	settings Settings
}

// NewOutlookStage creates the market stage. cache may be nil.
func NewOutlookStage(client *Client, cache *OutlookCache, settings Settings) *OutlookStage {
	return &OutlookStage{client: client, cache: cache, settings: settings}
}

// Name implements stage.External
func (s *OutlookStage) Name() string { return StageName }

// Fetch returns the cached outlook when present, otherwise fetches and
// summarizes a fresh snapshot. Cache failures are ignored.
func (s *OutlookStage) Fetch(ctx context.Context) (portfolio.MarketOutlook, error) {
	if outlook, ok := s.cache.Get(ctx); ok {
		return outlook, nil
	}

	snap, err := s.client.FetchSnapshot(ctx)
	if err != nil {
		return portfolio.MarketOutlook{}, err
	}

	outlook := Summarize(snap, s.settings)
	if s.cache != nil {
		_ = s.cache.Set(ctx, outlook)
	}
	return outlook, nil
}

// Fallback implements stage.External
func (s *OutlookStage) Fallback() portfolio.MarketOutlook {
	return portfolio.NeutralOutlook()
}
