package rpc

import (
	"net/http"
)

type stakingPositionParams struct {
	Owner string `json:"owner"`
	Index int    `json:"index"`
}

type stakingPositionResult struct {
	Index         int    `json:"index"`
	Amount        string `json:"amount"`
	OpenedAt      uint64 `json:"openedAt"`
	UnlocksAt     uint64 `json:"unlocksAt"`
	LastSettledAt uint64 `json:"lastSettledAt"`
	Pending       string `json:"pending"`
	Closed        bool   `json:"closed"`
}

func (s *Server) handlePosition(w http.ResponseWriter, req RPCRequest) {
	var params stakingPositionParams
	if !decodeParams(w, req, &params) {
		return
	}
	owner, ok := parseOwner(w, req, params.Owner)
	if !ok {
		return
	}

	info, err := s.engine.PositionInfo(owner, params.Index)
	if err != nil {
		writeEngineError(w, req.ID, "staking_position", err)
		return
	}
	writeResult(w, req.ID, stakingPositionResult{
		Index:         info.Index,
		Amount:        info.Amount.String(),
		OpenedAt:      info.OpenedAt,
		UnlocksAt:     info.UnlocksAt,
		LastSettledAt: info.LastSettledAt,
		Pending:       info.Pending.String(),
		Closed:        info.Closed,
	})
}

type stakingOwnerParams struct {
	Owner string `json:"owner"`
}

func (s *Server) handlePositionCount(w http.ResponseWriter, req RPCRequest) {
	var params stakingOwnerParams
	if !decodeParams(w, req, &params) {
		return
	}
	owner, ok := parseOwner(w, req, params.Owner)
	if !ok {
		return
	}
	writeResult(w, req.ID, map[string]int{"count": s.engine.PositionCount(owner)})
}

func (s *Server) handleTotalStaked(w http.ResponseWriter, req RPCRequest) {
	var params stakingOwnerParams
	if !decodeParams(w, req, &params) {
		return
	}
	owner, ok := parseOwner(w, req, params.Owner)
	if !ok {
		return
	}
	writeResult(w, req.ID, map[string]string{
		"staked": s.engine.StakedAmount(owner).String(),
		"pool":   s.engine.TotalStaked().String(),
	})
}

func (s *Server) handleTierCount(w http.ResponseWriter, req RPCRequest) {
	writeResult(w, req.ID, map[string]int{"count": s.engine.TierCount()})
}

type stakingTierResult struct {
	LockSeconds uint64 `json:"lockSeconds"`
	Multiplier  string `json:"multiplier"`
}

func (s *Server) handleTiers(w http.ResponseWriter, req RPCRequest) {
	tiers := s.engine.Tiers()
	out := make([]stakingTierResult, len(tiers))
	for i, tier := range tiers {
		out[i] = stakingTierResult{LockSeconds: tier.LockSeconds, Multiplier: tier.Multiplier.String()}
	}
	writeResult(w, req.ID, out)
}
