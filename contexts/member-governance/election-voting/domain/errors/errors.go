package errors

import "errors"

var (
	ErrInvalidBallotInput  = errors.New("invalid ballot input")
	ErrElectionNotFound    = errors.New("election not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrBallotNotFound      = errors.New("ballot not found")
	ErrAlreadyVoted        = errors.New("member has already voted in this election")
	ErrUnknownMechanism    = errors.New("unknown voting mechanism")
	ErrUnknownElectionType = errors.New("unknown election type")
	ErrRecomputeInProgress = errors.New("result recomputation already in progress for this election")
	ErrStoreUnavailable    = errors.New("security counter store unavailable")
)
