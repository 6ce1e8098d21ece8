// Package d21voting implements D21 multi-vote elections inside the elections
// context.
//
// An authority creates an election with a fixed candidate list and a voting
// window. Voters spend an allowance of two or three votes on distinct
// candidates, and after the window closes the authority runs a single tally
// that fixes the winner and freezes the election. Rules live in the domain
// layer; storage, the event bus and HTTP sit behind ports and adapters.
package d21voting
