package rpc

import (
	"net/http"

	"stakevault/observability/metrics"
)

type stakingDepositParams struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
	Tier   int    `json:"tier"`
}

type stakingDepositResult struct {
	Index     int    `json:"index"`
	UnlocksAt uint64 `json:"unlocksAt"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, req RPCRequest) {
	var params stakingDepositParams
	if !decodeParams(w, req, &params) {
		return
	}
	owner, ok := parseOwner(w, req, params.Owner)
	if !ok {
		return
	}
	amount, ok := parseBigAmount(w, req, "amount", params.Amount)
	if !ok {
		return
	}

	index, unlocksAt, err := s.engine.Deposit(owner, amount, params.Tier)
	if err != nil {
		writeEngineError(w, req.ID, "staking_deposit", err)
		return
	}
	metrics.Staking().ObserveDeposit(s.engine.TotalStaked())
	s.afterMutation()
	writeResult(w, req.ID, stakingDepositResult{Index: index, UnlocksAt: unlocksAt})
}

type stakingWithdrawParams struct {
	Owner string `json:"owner"`
	Index int    `json:"index"`
}

type stakingWithdrawResult struct {
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req RPCRequest) {
	var params stakingWithdrawParams
	if !decodeParams(w, req, &params) {
		return
	}
	owner, ok := parseOwner(w, req, params.Owner)
	if !ok {
		return
	}

	principal, reward, err := s.engine.Withdraw(owner, params.Index)
	if err != nil {
		writeEngineError(w, req.ID, "staking_withdraw", err)
		return
	}
	metrics.Staking().ObserveWithdraw(reward, s.engine.TotalStaked())
	s.afterMutation()
	writeResult(w, req.ID, stakingWithdrawResult{Principal: principal.String(), Reward: reward.String()})
}

type stakingEmergencyWithdrawResult struct {
	Paid    string `json:"paid"`
	Penalty string `json:"penalty"`
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, req RPCRequest) {
	var params stakingWithdrawParams
	if !decodeParams(w, req, &params) {
		return
	}
	owner, ok := parseOwner(w, req, params.Owner)
	if !ok {
		return
	}

	paid, penalty, err := s.engine.EmergencyWithdraw(owner, params.Index)
	if err != nil {
		writeEngineError(w, req.ID, "staking_emergencyWithdraw", err)
		return
	}
	metrics.Staking().ObserveEarlyExit(penalty, s.engine.TotalStaked())
	s.afterMutation()
	writeResult(w, req.ID, stakingEmergencyWithdrawResult{Paid: paid.String(), Penalty: penalty.String()})
}

type stakingClaimParams struct {
	Owner string `json:"owner"`
}

type stakingClaimResult struct {
	Reward string `json:"reward"`
}

func (s *Server) handleClaim(w http.ResponseWriter, req RPCRequest) {
	var params stakingClaimParams
	if !decodeParams(w, req, &params) {
		return
	}
	owner, ok := parseOwner(w, req, params.Owner)
	if !ok {
		return
	}

	reward, err := s.engine.Claim(owner)
	if err != nil {
		writeEngineError(w, req.ID, "staking_claim", err)
		return
	}
	metrics.Staking().ObserveClaim(reward)
	s.afterMutation()
	writeResult(w, req.ID, stakingClaimResult{Reward: reward.String()})
}

type stakingSetRewardRateParams struct {
	Caller string `json:"caller"`
	Rate   string `json:"rate"`
}

func (s *Server) handleSetRewardRate(w http.ResponseWriter, req RPCRequest) {
	var params stakingSetRewardRateParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseOwner(w, req, params.Caller)
	if !ok {
		return
	}
	rate, ok := parseBigAmount(w, req, "rate", params.Rate)
	if !ok {
		return
	}

	if err := s.engine.SetRewardRate(caller, rate); err != nil {
		writeEngineError(w, req.ID, "staking_setRewardRate", err)
		return
	}
	s.afterMutation()
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type stakingSetStakingCapParams struct {
	Caller string `json:"caller"`
	Cap    string `json:"cap"`
}

func (s *Server) handleSetStakingCap(w http.ResponseWriter, req RPCRequest) {
	var params stakingSetStakingCapParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseOwner(w, req, params.Caller)
	if !ok {
		return
	}
	cap, ok := parseBigAmount(w, req, "cap", params.Cap)
	if !ok {
		return
	}

	if err := s.engine.SetStakingCap(caller, cap); err != nil {
		writeEngineError(w, req.ID, "staking_setStakingCap", err)
		return
	}
	s.afterMutation()
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type stakingAddTierParams struct {
	Caller      string `json:"caller"`
	LockSeconds uint64 `json:"lockSeconds"`
	Multiplier  string `json:"multiplier"`
}

func (s *Server) handleAddTier(w http.ResponseWriter, req RPCRequest) {
	var params stakingAddTierParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseOwner(w, req, params.Caller)
	if !ok {
		return
	}
	multiplier, ok := parseBigAmount(w, req, "multiplier", params.Multiplier)
	if !ok {
		return
	}

	if err := s.engine.AddTier(caller, params.LockSeconds, multiplier); err != nil {
		writeEngineError(w, req.ID, "staking_addTier", err)
		return
	}
	s.afterMutation()
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type stakingRecoverTokenParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleRecoverToken(w http.ResponseWriter, req RPCRequest) {
	var params stakingRecoverTokenParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseOwner(w, req, params.Caller)
	if !ok {
		return
	}
	to, ok := parseOwner(w, req, params.To)
	if !ok {
		return
	}
	amount, ok := parseBigAmount(w, req, "amount", params.Amount)
	if !ok {
		return
	}

	if err := s.engine.RecoverToken(caller, params.Token, to, amount); err != nil {
		writeEngineError(w, req.ID, "staking_recoverToken", err)
		return
	}
	s.afterMutation()
	writeResult(w, req.ID, map[string]bool{"ok": true})
}
