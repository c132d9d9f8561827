package aggregate

import "iter"

// ComputeServerStats builds one summary per server, ordered by first
// appearance in the log. Unattributed events (AI, init_id "-1") count towards
// missions only.
func ComputeServerStats(events iter.Seq[MissionEvent]) []ServerSummary {
	byName := make(map[string]*ServerSummary)
	players := make(map[string]map[string]struct{})
	var order []string

	getOrCreate := func(name string, e MissionEvent) *ServerSummary {
		if s, ok := byName[name]; ok {
			return s
		}
		s := &ServerSummary{Name: name, FirstEvent: e.Time, LastEvent: e.Time}
		byName[name] = s
		players[name] = make(map[string]struct{})
		order = append(order, name)
		return s
	}

	for e := range events {
		name := e.ServerName()
		s := getOrCreate(name, e)

		if e.Time.Before(s.FirstEvent.Time) {
			s.FirstEvent = e.Time
		}
		if e.Time.After(s.LastEvent.Time) {
			s.LastEvent = e.Time
		}

		if e.Event == EventMissionStart {
			s.Missions++
		}

		ucid, ok := e.Player()
		if !ok {
			continue
		}
		players[name][ucid] = struct{}{}

		switch e.Event {
		case EventHit:
			s.Kills++
		case EventDead:
			s.Deaths++
		case EventTakeoff:
			s.Takeoffs++
		case EventLand:
			s.Landings++
		case EventCrash:
			s.Crashes++
		case EventEjection:
			s.Ejections++
		}
	}

	out := make([]ServerSummary, 0, len(order))
	for _, name := range order {
		s := byName[name]
		s.Players = len(players[name])
		out = append(out, *s)
	}
	return out
}
