package bboltadapter

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"d21vote/contexts/elections/d21-voting/domain/entities"

	"github.com/zeebo/xxh3"
)

var (
	errCorruptRecord = errors.New("bbolt: corrupt record")

	electionDiscriminator = discriminator("record:Election")
	ballotDiscriminator   = discriminator("record:Ballot")
)

func discriminator(name string) [entities.RecordDiscriminatorLen]byte {
	sum := sha256.Sum256([]byte(name))
	var out [entities.RecordDiscriminatorLen]byte
	copy(out[:], sum[:entities.RecordDiscriminatorLen])
	return out
}

// ballotKey derives the storage address of a ballot from the (voter,
// election) pair. Both ids are length-prefixed so distinct pairs never share
// the hashed input.
func ballotKey(electionID string, voterID string) []byte {
	input := make([]byte, 0, 2+len(electionID)+len(voterID))
	input = append(input, byte(len(voterID)))
	input = append(input, voterID...)
	input = append(input, byte(len(electionID)))
	input = append(input, electionID...)
	key := xxh3.Hash128(input).Bytes()
	return key[:]
}

func encodeElection(election entities.Election) ([]byte, error) {
	if len(election.Candidates) > entities.MaxCandidates {
		return nil, fmt.Errorf("encode election %s: %d candidates", election.ElectionID, len(election.Candidates))
	}
	buf := make([]byte, 0, entities.ElectionRecordSize(len(election.Candidates)))
	buf = append(buf, electionDiscriminator[:]...)
	var err error
	if buf, err = appendIdentity(buf, election.Authority); err != nil {
		return nil, err
	}
	buf = appendTime(buf, election.StartTime)
	buf = appendTime(buf, election.EndTime)
	buf = append(buf, election.VotesPerVoter, boolByte(election.IsFinalized))
	if index, ok := election.Winner.Get(); ok {
		buf = append(buf, 1, byte(index))
	} else {
		buf = append(buf, 0, 0)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(election.Candidates)))
	for _, candidate := range election.Candidates {
		if len(candidate.Name) > entities.MaxCandidateNameLen {
			return nil, fmt.Errorf("encode election %s: candidate name of %d bytes", election.ElectionID, len(candidate.Name))
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(candidate.Name)))
		buf = append(buf, candidate.Name...)
		buf = binary.BigEndian.AppendUint64(buf, candidate.VoteCount)
	}
	buf = appendTime(buf, election.CreatedAt)
	buf = appendTime(buf, election.UpdatedAt)
	return buf, nil
}

func decodeElection(electionID string, raw []byte) (entities.Election, error) {
	d := decoder{buf: raw}
	d.expectDiscriminator(electionDiscriminator)
	election := entities.Election{ElectionID: electionID}
	election.Authority = d.identity()
	election.StartTime = d.timestamp()
	election.EndTime = d.timestamp()
	election.VotesPerVoter = d.u8()
	election.IsFinalized = d.u8() == 1
	hasWinner := d.u8() == 1
	winnerIndex := int(d.u8())
	count := int(d.u32())
	if d.err == nil && count > entities.MaxCandidates {
		d.err = errCorruptRecord
	}
	if d.err == nil {
		election.Candidates = make([]entities.Candidate, 0, count)
		for i := 0; i < count && d.err == nil; i++ {
			name := d.bytes(int(d.u32()), entities.MaxCandidateNameLen)
			election.Candidates = append(election.Candidates, entities.Candidate{
				Name:      string(name),
				VoteCount: d.u64(),
			})
		}
	}
	election.CreatedAt = d.timestamp()
	election.UpdatedAt = d.timestamp()
	if d.err != nil {
		return entities.Election{}, fmt.Errorf("decode election %s: %w", electionID, d.err)
	}
	election.Winner = entities.UnsetWinner()
	if hasWinner {
		if winnerIndex >= len(election.Candidates) {
			return entities.Election{}, fmt.Errorf("decode election %s: %w", electionID, errCorruptRecord)
		}
		election.Winner = entities.WinnerAt(winnerIndex)
	}
	return election, nil
}

func encodeBallot(ballot entities.Ballot) ([]byte, error) {
	if len(ballot.VotedFor) > entities.MaxVotesPerVoter {
		return nil, fmt.Errorf("encode ballot %s/%s: %d votes", ballot.ElectionID, ballot.VoterID, len(ballot.VotedFor))
	}
	buf := make([]byte, 0, entities.BallotRecordSize())
	buf = append(buf, ballotDiscriminator[:]...)
	var err error
	if buf, err = appendIdentity(buf, ballot.VoterID); err != nil {
		return nil, err
	}
	if buf, err = appendIdentity(buf, ballot.ElectionID); err != nil {
		return nil, err
	}
	buf = append(buf, ballot.VotesCastCount)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(ballot.VotedFor)))
	for _, index := range ballot.VotedFor {
		if index < 0 || index >= entities.MaxCandidates {
			return nil, fmt.Errorf("encode ballot %s/%s: candidate index %d", ballot.ElectionID, ballot.VoterID, index)
		}
		buf = append(buf, byte(index))
	}
	buf = appendTime(buf, ballot.UpdatedAt)
	return buf, nil
}

func decodeBallot(raw []byte) (entities.Ballot, error) {
	d := decoder{buf: raw}
	d.expectDiscriminator(ballotDiscriminator)
	ballot := entities.Ballot{}
	ballot.VoterID = d.identity()
	ballot.ElectionID = d.identity()
	ballot.VotesCastCount = d.u8()
	count := int(d.u32())
	if d.err == nil && count > entities.MaxVotesPerVoter {
		d.err = errCorruptRecord
	}
	if d.err == nil && count > 0 {
		ballot.VotedFor = make([]int, 0, count)
		for i := 0; i < count; i++ {
			ballot.VotedFor = append(ballot.VotedFor, int(d.u8()))
		}
	}
	ballot.UpdatedAt = d.timestamp()
	if d.err != nil {
		return entities.Ballot{}, fmt.Errorf("decode ballot: %w", d.err)
	}
	return ballot, nil
}

func appendIdentity(buf []byte, id string) ([]byte, error) {
	if len(id) > entities.MaxIdentityLen {
		return nil, fmt.Errorf("identity of %d bytes exceeds %d", len(id), entities.MaxIdentityLen)
	}
	buf = append(buf, byte(len(id)))
	return append(buf, id...), nil
}

// appendTime writes a presence byte, Unix seconds and the nanosecond
// remainder. Seconds cover every year time.Time can represent, and the
// presence byte keeps the zero time apart from the Unix epoch.
func appendTime(buf []byte, t time.Time) []byte {
	if t.IsZero() {
		buf = append(buf, 0)
		buf = binary.BigEndian.AppendUint64(buf, 0)
		return binary.BigEndian.AppendUint32(buf, 0)
	}
	buf = append(buf, 1)
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Unix()))
	return binary.BigEndian.AppendUint32(buf, uint32(t.Nanosecond()))
}

func boolByte(value bool) byte {
	if value {
		return 1
	}
	return 0
}

// decoder reads fields in order and latches the first error; every read
// after a failure returns a zero value.
type decoder struct {
	buf []byte
	pos int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.pos < n {
		d.err = errCorruptRecord
		return nil
	}
	out := d.buf[d.pos : d.pos+n]
	d.pos += n
	return out
}

func (d *decoder) expectDiscriminator(want [entities.RecordDiscriminatorLen]byte) {
	got := d.take(entities.RecordDiscriminatorLen)
	if d.err == nil && string(got) != string(want[:]) {
		d.err = errCorruptRecord
	}
}

func (d *decoder) u8() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) bytes(n int, limit int) []byte {
	if d.err == nil && n > limit {
		d.err = errCorruptRecord
		return nil
	}
	return d.take(n)
}

func (d *decoder) identity() string {
	n := int(d.u8())
	return string(d.bytes(n, entities.MaxIdentityLen))
}

func (d *decoder) timestamp() time.Time {
	present := d.u8()
	seconds := int64(d.u64())
	nanos := d.u32()
	if d.err != nil || present == 0 {
		return time.Time{}
	}
	if present != 1 || nanos >= uint32(time.Second) {
		d.err = errCorruptRecord
		return time.Time{}
	}
	return time.Unix(seconds, int64(nanos)).UTC()
}
