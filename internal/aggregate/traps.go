package aggregate

import (
	"iter"
	"strings"
)

// gradeScores maps an LSO grade to a landing score.
var gradeScores = map[string]float64{
	"OK":       4,
	"(OK)":     3.5,
	"Fair":     3,
	"No Grade": 2,
	"C":        1.5,
	"B":        1,
	"WO":       0.5,
}

// wireBonus adjusts a landing score by the wire caught. The 3-wire is the target.
var wireBonus = map[int]float64{
	1: -0.5,
	2: -0.25,
	3: 0,
	4: -0.25,
}

// trapScore returns the base score of a record. points wins over grade;
// points 0 and 1 are the bot's pass/fail encoding (0 is a clean pass).
func trapScore(t TrapRecord) (float64, bool) {
	if t.Points != nil {
		switch *t.Points {
		case 0:
			return 4, true
		case 1:
			return 1, true
		default:
			return *t.Points, true
		}
	}
	if t.Grade != nil {
		score, ok := gradeScores[strings.TrimSpace(*t.Grade)]
		return score, ok
	}
	return 0, false
}

// trapScorer accumulates scores for one player.
type trapScorer struct {
	scores []float64
}

// add pushes the record's score, then applies its wire bonus to the most
// recently pushed score. A record without a score of its own therefore
// adjusts the previous trap.
func (s *trapScorer) add(t TrapRecord) {
	if score, ok := trapScore(t); ok {
		s.scores = append(s.scores, score)
	}
	if t.Wire == nil || len(s.scores) == 0 {
		return
	}
	if bonus, ok := wireBonus[*t.Wire]; ok {
		s.scores[len(s.scores)-1] += bonus
	}
}

func (s *trapScorer) summary() TrapSummary {
	out := TrapSummary{Traps: len(s.scores), Scores: s.scores}
	if out.Scores == nil {
		out.Scores = []float64{}
	}
	if len(s.scores) == 0 {
		return out
	}
	var sum float64
	for _, v := range s.scores {
		sum += v
	}
	out.Average = round2(sum / float64(len(s.scores)))
	return out
}

// ComputeTrapScores scores every trap of one player.
func ComputeTrapScores(traps iter.Seq[TrapRecord], ucid string) TrapSummary {
	var s trapScorer
	for t := range traps {
		if strings.TrimSpace(t.PlayerUCID) != ucid {
			continue
		}
		s.add(t)
	}
	return s.summary()
}

// ComputeAllTrapScores scores every player's traps in a single pass.
func ComputeAllTrapScores(traps iter.Seq[TrapRecord]) map[string]TrapSummary {
	scorers := make(map[string]*trapScorer)
	for t := range traps {
		ucid := strings.TrimSpace(t.PlayerUCID)
		if ucid == "" {
			continue
		}
		s, ok := scorers[ucid]
		if !ok {
			s = &trapScorer{}
			scorers[ucid] = s
		}
		s.add(t)
	}

	out := make(map[string]TrapSummary, len(scorers))
	for ucid, s := range scorers {
		out[ucid] = s.summary()
	}
	return out
}
