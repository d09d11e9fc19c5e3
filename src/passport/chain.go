package passport

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	solsha3 "github.com/miguelmota/go-solidity-sha3"

	"github.com/projectai397/sakshi-platform-sub002/src/contracts"
)

var eventTypes = []string{"bytes32", "uint32", "string", "string", "string", "uint256", "uint256"}

// EventHash links an event to its predecessor:
// sha3(abi.encode(prevHash, seq, kind, actor, notes, costCents, createdAt))
func EventHash(prev common.Hash, e Event) (common.Hash, error) {
	encoded, err := contracts.AbiEncode(eventTypes,
		[32]byte(prev), e.Seq, string(e.Kind), e.ActorID, e.Notes,
		big.NewInt(e.CostCents), big.NewInt(e.CreatedAt.Unix()))
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(solsha3.SoliditySHA3(encoded)), nil
}

// seal sets seq, prev hash and hash of the event appended after head
func seal(e Event, seq uint32, head common.Hash) (Event, error) {
	e.Seq = seq
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Second)
	e.PrevHash = head.Hex()
	h, err := EventHash(head, e)
	if err != nil {
		return Event{}, err
	}
	e.Hash = h.Hex()
	return e, nil
}

type VerifyResult struct {
	Valid bool   `json:"valid"`
	Head  string `json:"head"`
	// BrokenAt is the seq of the first inconsistent event, -1 if valid
	BrokenAt int    `json:"brokenAt"`
	Reason   string `json:"reason,omitempty"`
}

// VerifyChain recomputes every event hash from the genesis and compares
// the result with the stored links and head
func VerifyChain(p Passport) VerifyResult {
	res := VerifyResult{Head: p.HeadHash, BrokenAt: -1}
	fail := func(seq int, reason string) VerifyResult {
		res.BrokenAt, res.Reason = seq, reason
		return res
	}
	if len(p.Events) == 0 {
		return fail(0, "no events")
	}
	prev := common.Hash{}
	for k, e := range p.Events {
		if int(e.Seq) != k {
			return fail(k, "sequence gap")
		}
		if !strings.EqualFold(e.PrevHash, prev.Hex()) {
			return fail(k, "broken link")
		}
		h, err := EventHash(prev, e)
		if err != nil {
			return fail(k, err.Error())
		}
		if !strings.EqualFold(e.Hash, h.Hex()) {
			return fail(k, "hash mismatch")
		}
		prev = h
	}
	if !strings.EqualFold(p.HeadHash, prev.Hex()) {
		return fail(len(p.Events)-1, "head mismatch")
	}
	res.Valid = true
	return res
}
