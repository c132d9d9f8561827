package aggregate

import (
	"iter"
	"sort"
	"time"
)

// Option narrows an aggregation.
type Option func(*options)

type options struct {
	server string
}

// ServerFilter keeps only events logged by the named server. An empty name
// keeps everything.
func ServerFilter(name string) Option {
	return func(o *options) { o.server = name }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) keep(e MissionEvent) bool {
	return o.server == "" || e.ServerName() == o.server
}

// playerAccumulator holds the per-call state of ComputePlayerStats. Nothing
// survives between calls.
type playerAccumulator struct {
	set            *PlayerStatsSet
	players        *PlayerIndex
	usage          map[string]map[string]int
	usageOrder     map[string][]string
	pendingTakeoff map[string]time.Time
}

func newPlayerAccumulator(players *PlayerIndex) *playerAccumulator {
	return &playerAccumulator{
		set:            newPlayerStatsSet(),
		players:        players,
		usage:          make(map[string]map[string]int),
		usageOrder:     make(map[string][]string),
		pendingTakeoff: make(map[string]time.Time),
	}
}

func (a *playerAccumulator) getOrCreate(ucid string) *PlayerStatSummary {
	if p, ok := a.set.byUCID[ucid]; ok {
		return p
	}
	p := &PlayerStatSummary{UCID: ucid, Name: a.players.Name(ucid)}
	a.set.byUCID[ucid] = p
	a.set.order = append(a.set.order, ucid)
	a.usage[ucid] = make(map[string]int)
	return p
}

func (a *playerAccumulator) countAircraft(ucid, aircraft string) {
	counts := a.usage[ucid]
	if _, seen := counts[aircraft]; !seen {
		a.usageOrder[ucid] = append(a.usageOrder[ucid], aircraft)
	}
	counts[aircraft]++
}

// closeFlight pairs a landing, crash or ejection with the pending takeoff.
// A takeoff is consumed at most once and only by a strictly later event.
func (a *playerAccumulator) closeFlight(p *PlayerStatSummary, at time.Time) {
	took, ok := a.pendingTakeoff[p.UCID]
	if !ok || !at.After(took) {
		return
	}
	p.FlightSeconds += at.Sub(took).Seconds()
	delete(a.pendingTakeoff, p.UCID)
}

func (a *playerAccumulator) add(e MissionEvent) {
	ucid, ok := e.Player()
	if !ok {
		return
	}
	p := a.getOrCreate(ucid)

	if e.InitType != "" {
		a.countAircraft(ucid, e.InitType)
	}

	switch e.Event {
	case EventHit:
		p.Kills++
	case EventDead:
		p.Deaths++
	case EventTakeoff:
		p.Takeoffs++
		p.Sorties++
		a.pendingTakeoff[ucid] = e.Time.Time
	case EventLand:
		p.Landings++
		a.closeFlight(p, e.Time.Time)
	case EventCrash:
		p.Crashes++
		a.closeFlight(p, e.Time.Time)
	case EventEjection:
		p.Ejections++
		a.closeFlight(p, e.Time.Time)
	}
}

func (a *playerAccumulator) finish() *PlayerStatsSet {
	for _, ucid := range a.set.order {
		p := a.set.byUCID[ucid]
		p.FlightHours = FlightHours(p.FlightSeconds)
		p.AircraftUsage = sortedUsage(a.usageOrder[ucid], a.usage[ucid])
		p.MostUsedAircraft = UnknownAircraft
		if len(p.AircraftUsage) > 0 {
			p.MostUsedAircraft = p.AircraftUsage[0].Name
		}
	}
	return a.set
}

// sortedUsage orders aircraft by count descending; equal counts keep the
// order in which the aircraft was first flown.
func sortedUsage(order []string, counts map[string]int) []AircraftCount {
	out := make([]AircraftCount, 0, len(order))
	for _, name := range order {
		out = append(out, AircraftCount{Name: name, Count: counts[name]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// ComputePlayerStats folds mission events into per-player summaries. Events
// are taken in log order; they are not re-sorted by time.
func ComputePlayerStats(events iter.Seq[MissionEvent], players *PlayerIndex, opts ...Option) *PlayerStatsSet {
	o := buildOptions(opts)
	acc := newPlayerAccumulator(players)
	for e := range events {
		if !o.keep(e) {
			continue
		}
		acc.add(e)
	}
	return acc.finish()
}
