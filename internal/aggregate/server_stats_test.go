package aggregate

import (
	"slices"
	"testing"

	"github.com/google/uuid"
)

func onServer(e MissionEvent, server string) MissionEvent {
	e.Server = server
	return e
}

func serverLog() []MissionEvent {
	return []MissionEvent{
		onServer(ev("-1", EventMissionStart, 100, ""), "Syria"),
		onServer(ev("A", EventTakeoff, 110, "F-16C"), "Syria"),
		onServer(ev("-1", EventHit, 120, "Su-27"), "Syria"),
		onServer(ev("A", EventHit, 130, "F-16C"), "Syria"),
		onServer(ev("A", EventLand, 400, "F-16C"), "Syria"),
		ev("B", EventTakeoff, 50, "F-14B"),
		ev("B", EventEjection, 90, "F-14B"),
		onServer(ev("C", EventDead, 90, "A-10C"), "Syria"),
	}
}

func TestComputeServerStats(t *testing.T) {
	servers := ComputeServerStats(slices.Values(serverLog()))
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}

	syria := servers[0]
	if syria.Name != "Syria" {
		t.Fatalf("servers should keep first-sighting order, got %s first", syria.Name)
	}
	if syria.Missions != 1 || syria.Kills != 1 || syria.Takeoffs != 1 || syria.Landings != 1 || syria.Deaths != 1 {
		t.Fatalf("unexpected Syria counters %+v", syria)
	}
	if syria.Players != 2 {
		t.Fatalf("Syria players = %d, want 2", syria.Players)
	}
	if syria.FirstEvent.Unix() != 90 || syria.LastEvent.Unix() != 400 {
		t.Fatalf("event window = %d..%d", syria.FirstEvent.Unix(), syria.LastEvent.Unix())
	}

	def := servers[1]
	if def.Name != DefaultServer || def.Ejections != 1 || def.Players != 1 {
		t.Fatalf("unexpected default server %+v", def)
	}
}

func TestBuildSnapshot(t *testing.T) {
	id := uuid.New()
	set := BuildSnapshot(&SnapshotData{
		SnapshotID: id,
		Players: slices.Values([]PlayerRecord{
			{UCID: "A", Name: "Maverick"},
			{UCID: "B", Name: "Goose"},
		}),
		Events: slices.Values(serverLog()),
		Traps: slices.Values([]TrapRecord{
			{PlayerUCID: "B", Points: ptr(0.0), Wire: ptr(2)},
			{PlayerUCID: "Z", Grade: ptr("OK")},
		}),
	})

	if set.Snapshot.ID != id || set.Snapshot.Server != nil {
		t.Fatalf("unexpected snapshot row %+v", set.Snapshot)
	}
	if set.Snapshot.Players != 3 || set.Snapshot.Sorties != 2 {
		t.Fatalf("players = %d sorties = %d", set.Snapshot.Players, set.Snapshot.Sorties)
	}
	if len(set.Players) != 3 || set.Players[0].UCID != "A" || set.Players[0].Name != "Maverick" || set.Players[0].Rank != 1 {
		t.Fatalf("unexpected leader %+v", set.Players[0])
	}
	for _, p := range set.Players {
		if p.SnapshotID != id || p.ID == uuid.Nil {
			t.Fatalf("player row not tied to snapshot: %+v", p)
		}
	}

	// traps are only kept for players with events
	if len(set.Traps) != 1 || set.Traps[0].UCID != "B" || set.Traps[0].Score != 3.75 || set.Traps[0].Seq != 1 {
		t.Fatalf("unexpected trap rows %+v", set.Traps)
	}
	if len(set.Aircraft) != 3 {
		t.Fatalf("expected one aircraft row per player, got %+v", set.Aircraft)
	}
	if len(set.Servers) != 2 {
		t.Fatalf("expected 2 server rows, got %d", len(set.Servers))
	}
}

func TestBuildSnapshotSingleServer(t *testing.T) {
	set := BuildSnapshot(&SnapshotData{
		Server:  "Syria",
		Players: slices.Values([]PlayerRecord{}),
		Events:  slices.Values(serverLog()),
		Traps:   slices.Values([]TrapRecord{}),
	})

	if set.Snapshot.ID == uuid.Nil {
		t.Fatal("missing snapshot id should be generated")
	}
	if set.Snapshot.Server == nil || *set.Snapshot.Server != "Syria" {
		t.Fatalf("server = %v", set.Snapshot.Server)
	}
	if len(set.Servers) != 1 || set.Servers[0].Name != "Syria" {
		t.Fatalf("unexpected servers %+v", set.Servers)
	}
	for _, p := range set.Players {
		if p.UCID == "B" {
			t.Fatal("B never flew on Syria")
		}
	}
}
