// Package electionvoting implements board-election voting inside the
// member-governance context.
//
// The module owns the full voting pipeline: security screening of each
// submission, governance policy enforcement, immutable ballot
// persistence with a storage-level one-vote-per-member guarantee, and
// result calculation for majority, ranked-choice and savings-weighted
// elections. Every security decision, policy decision and tally run is
// recorded in an append-only audit log. Business rules live in the
// application/domain layers; infrastructure stays behind ports and
// adapters.
package electionvoting
