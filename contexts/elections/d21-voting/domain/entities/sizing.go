package entities

// Fixed record layout used by the embedded store. Identifiers are stored as a
// one byte length followed by up to MaxIdentityLen bytes; the election id is
// the record key and is not repeated in the value. A timestamp is a presence
// byte followed by Unix seconds and the nanosecond remainder.
const (
	RecordDiscriminatorLen = 8
	IdentityFieldLen       = 1 + MaxIdentityLen
	TimestampLen           = 1 + 8 + 4
	VoteCountLen           = 8
	WinnerFieldLen         = 2
	ListPrefixLen          = 4

	// CandidateRecordLen is the worst case for one candidate entry.
	CandidateRecordLen = ListPrefixLen + MaxCandidateNameLen + VoteCountLen
)

// ElectionRecordSize is the upper bound for an election holding n candidates:
// discriminator, authority, start, end, allowance, finalized flag, winner,
// candidate list, then created and updated timestamps.
func ElectionRecordSize(n int) int {
	return RecordDiscriminatorLen +
		IdentityFieldLen +
		2*TimestampLen +
		1 +
		1 +
		WinnerFieldLen +
		ListPrefixLen +
		n*CandidateRecordLen +
		2*TimestampLen
}

// BallotRecordSize is the upper bound for any ballot: discriminator, voter,
// election, votes cast, the voted-for list and the updated timestamp.
func BallotRecordSize() int {
	return RecordDiscriminatorLen +
		2*IdentityFieldLen +
		1 +
		ListPrefixLen +
		MaxVotesPerVoter +
		TimestampLen
}
