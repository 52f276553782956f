package queries

import (
	"sort"
	"time"

	"intellicash/contexts/member-governance/election-voting/domain/entities"
)

// rankedChoiceRoundLimit bounds the elimination loop against degenerate
// ballot sets.
const rankedChoiceRoundLimit = 100

// rankedChoiceTally runs iterative elimination rounds over first
// preferences. A ballot supports its top-ranked candidate only: once
// that candidate wins a seat or is eliminated, the ballot is exhausted
// and is NOT redistributed to the voter's next preference. That matches
// the behavior the cooperative has published results under; switching to
// full redistribution would change historical outcomes and is tracked as
// an open question in DESIGN.md.
//
// Percentages are shares of ALL counted ballots, exhausted ones
// included, so a winner decided in a late round can carry less than 50%
// even though it held a majority of that round's live ballots. The
// per-round live tallies are in Rounds for callers reconciling the two.
func rankedChoiceTally(
	election entities.Election,
	candidates []entities.Candidate,
	ballots []entities.Ballot,
	calculatedAt time.Time,
) []entities.ElectionResult {
	remaining := make(map[string]bool)
	labels := make(map[string]string)
	order := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if !candidate.IsActive {
			continue
		}
		remaining[candidate.CandidateID] = true
		labels[candidate.CandidateID] = candidateLabel(candidate)
		order = append(order, candidate.CandidateID)
	}

	topChoices := make([]string, 0, len(ballots))
	for _, ballot := range ballots {
		if top := topRankedCandidate(ballot.Rankings); top != "" {
			topChoices = append(topChoices, top)
		}
	}
	totalBallots := len(topChoices)

	maxWinners := election.MaxWinners()
	var winners []string
	lastCount := make(map[string]int, len(order))
	var rounds []entities.EliminationRound

	for round := 1; round <= rankedChoiceRoundLimit && len(remaining) > 0 && len(winners) < maxWinners; round++ {
		tallies := make(map[string]int, len(remaining))
		for id := range remaining {
			tallies[id] = 0
		}
		exhausted := 0
		for _, top := range topChoices {
			if remaining[top] {
				tallies[top]++
			} else {
				exhausted++
			}
		}
		for id, count := range tallies {
			lastCount[id] = count
		}

		entry := entities.EliminationRound{
			Round:     round,
			Tallies:   copyTallies(tallies),
			Exhausted: exhausted,
		}

		roundTotal := totalBallots - exhausted
		if roundTotal == 0 {
			rounds = append(rounds, entry)
			break
		}

		if winner, ok := majorityCandidate(tallies, roundTotal); ok {
			entry.Winners = []string{winner}
			rounds = append(rounds, entry)
			winners = append(winners, winner)
			delete(remaining, winner)
			continue
		}

		eliminated := lowestCandidates(tallies)
		entry.Eliminated = eliminated
		rounds = append(rounds, entry)
		for _, id := range eliminated {
			delete(remaining, id)
		}
	}

	winnerRank := make(map[string]int, len(winners))
	for i, id := range winners {
		winnerRank[id] = i + 1
	}

	rows := make([]entities.ElectionResult, 0, len(order))
	for _, id := range order {
		row := entities.ElectionResult{
			ElectionID:   election.ElectionID,
			CandidateID:  id,
			Label:        labels[id],
			TotalVotes:   float64(lastCount[id]),
			IsWinner:     winnerRank[id] > 0,
			Rounds:       rounds,
			CalculatedAt: calculatedAt,
		}
		if totalBallots > 0 {
			row.Percentage = row.TotalVotes / float64(totalBallots) * 100
		}
		rows = append(rows, row)
	}

	// Winners first in the order they secured a seat, the rest by final
	// tally.
	sort.SliceStable(rows, func(i, j int) bool {
		ri, iWon := winnerRank[rows[i].CandidateID]
		rj, jWon := winnerRank[rows[j].CandidateID]
		switch {
		case iWon && jWon:
			return ri < rj
		case iWon != jWon:
			return iWon
		case rows[i].TotalVotes != rows[j].TotalVotes:
			return rows[i].TotalVotes > rows[j].TotalVotes
		default:
			return rows[i].Label < rows[j].Label
		}
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// topRankedCandidate returns the candidate the ballot ranks best
// (lowest rank value), or empty for a ballot without rankings.
func topRankedCandidate(rankings map[string]int) string {
	best := ""
	bestRank := 0
	for id, rank := range rankings {
		if best == "" || rank < bestRank || (rank == bestRank && id < best) {
			best = id
			bestRank = rank
		}
	}
	return best
}

// majorityCandidate reports the candidate holding a strict majority of
// the round's live ballots, if any. Two candidates cannot both exceed
// half, so the winner is unique.
func majorityCandidate(tallies map[string]int, roundTotal int) (string, bool) {
	for id, count := range tallies {
		if count*2 > roundTotal {
			return id, true
		}
	}
	return "", false
}

// lowestCandidates returns every candidate sharing the strictly lowest
// count; ties are eliminated together.
func lowestCandidates(tallies map[string]int) []string {
	min := -1
	for _, count := range tallies {
		if min < 0 || count < min {
			min = count
		}
	}
	var lowest []string
	for id, count := range tallies {
		if count == min {
			lowest = append(lowest, id)
		}
	}
	sort.Strings(lowest)
	return lowest
}

func copyTallies(tallies map[string]int) map[string]int {
	out := make(map[string]int, len(tallies))
	for id, count := range tallies {
		out[id] = count
	}
	return out
}
