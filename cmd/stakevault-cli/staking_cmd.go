package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"stakevault/crypto"
)

func generateKey(args []string) {
	fs := flag.NewFlagSet("generate-key", flag.ExitOnError)
	out := fs.String("out", "", "Optional file to write the hex-encoded private key to")
	_ = fs.Parse(args)

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fatal(err)
	}
	encoded := hex.EncodeToString(key.Bytes())
	if *out != "" {
		if err := os.WriteFile(*out, []byte(encoded+"\n"), 0o600); err != nil {
			fatal(err)
		}
		fmt.Printf("key written to %s\n", *out)
	} else {
		fmt.Printf("private key: %s\n", encoded)
	}
	fmt.Printf("address: %s\n", key.PubKey().Address())
}

func depositCmd(args []string) {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	owner := fs.String("owner", "", "Depositor address")
	amount := fs.String("amount", "", "Amount to stake")
	tier := fs.Int("tier", 0, "Tier index")
	_ = fs.Parse(args)

	result, err := rpcCall("staking_deposit", map[string]interface{}{
		"owner":  *owner,
		"amount": *amount,
		"tier":   *tier,
	})
	if err != nil {
		fatal(err)
	}
	printResult(result)
}

func withdrawCmd(args []string) {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	owner := fs.String("owner", "", "Position owner address")
	index := fs.Int("index", 0, "Position index")
	_ = fs.Parse(args)

	result, err := rpcCall("staking_withdraw", map[string]interface{}{
		"owner": *owner,
		"index": *index,
	})
	if err != nil {
		fatal(err)
	}
	printResult(result)
}

func emergencyWithdrawCmd(args []string) {
	fs := flag.NewFlagSet("emergency-withdraw", flag.ExitOnError)
	owner := fs.String("owner", "", "Position owner address")
	index := fs.Int("index", 0, "Position index")
	_ = fs.Parse(args)

	result, err := rpcCall("staking_emergencyWithdraw", map[string]interface{}{
		"owner": *owner,
		"index": *index,
	})
	if err != nil {
		fatal(err)
	}
	printResult(result)
}

func claimCmd(args []string) {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	owner := fs.String("owner", "", "Position owner address")
	_ = fs.Parse(args)

	result, err := rpcCall("staking_claim", map[string]interface{}{"owner": *owner})
	if err != nil {
		fatal(err)
	}
	printResult(result)
}

func positionCmd(args []string) {
	fs := flag.NewFlagSet("position", flag.ExitOnError)
	owner := fs.String("owner", "", "Position owner address")
	index := fs.Int("index", 0, "Position index")
	_ = fs.Parse(args)

	result, err := rpcCall("staking_position", map[string]interface{}{
		"owner": *owner,
		"index": *index,
	})
	if err != nil {
		fatal(err)
	}
	printResult(result)
}

func positionsCmd(args []string) {
	fs := flag.NewFlagSet("positions", flag.ExitOnError)
	owner := fs.String("owner", "", "Position owner address")
	_ = fs.Parse(args)

	countRaw, err := rpcCall("staking_positionCount", map[string]interface{}{"owner": *owner})
	if err != nil {
		fatal(err)
	}
	var count struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(countRaw, &count); err != nil {
		fatal(err)
	}
	for i := 0; i < count.Count; i++ {
		result, err := rpcCall("staking_position", map[string]interface{}{
			"owner": *owner,
			"index": i,
		})
		if err != nil {
			fatal(err)
		}
		printResult(result)
	}
	if count.Count == 0 {
		fmt.Println("no positions")
	}
}

func tiersCmd(args []string) {
	fs := flag.NewFlagSet("tiers", flag.ExitOnError)
	_ = fs.Parse(args)

	result, err := rpcCall("staking_tiers", struct{}{})
	if err != nil {
		fatal(err)
	}
	printResult(result)
}

func setRewardRateCmd(args []string) {
	fs := flag.NewFlagSet("set-reward-rate", flag.ExitOnError)
	caller := fs.String("caller", "", "Admin address")
	rate := fs.String("rate", "", "Reward units per second")
	_ = fs.Parse(args)

	result, err := rpcCall("staking_setRewardRate", map[string]interface{}{
		"caller": *caller,
		"rate":   *rate,
	})
	if err != nil {
		fatal(err)
	}
	printResult(result)
}

func setStakingCapCmd(args []string) {
	fs := flag.NewFlagSet("set-staking-cap", flag.ExitOnError)
	caller := fs.String("caller", "", "Admin address")
	cap := fs.String("cap", "", "Pool-wide staking ceiling (0 = uncapped)")
	_ = fs.Parse(args)

	result, err := rpcCall("staking_setStakingCap", map[string]interface{}{
		"caller": *caller,
		"cap":    *cap,
	})
	if err != nil {
		fatal(err)
	}
	printResult(result)
}

func addTierCmd(args []string) {
	fs := flag.NewFlagSet("add-tier", flag.ExitOnError)
	caller := fs.String("caller", "", "Admin address")
	lockSeconds := fs.Uint64("lock-seconds", 0, "Lock duration in seconds")
	multiplier := fs.String("multiplier", "", "Fixed-point multiplier (1000000000000 = 1x)")
	_ = fs.Parse(args)

	result, err := rpcCall("staking_addTier", map[string]interface{}{
		"caller":      *caller,
		"lockSeconds": *lockSeconds,
		"multiplier":  *multiplier,
	})
	if err != nil {
		fatal(err)
	}
	printResult(result)
}

func recoverTokenCmd(args []string) {
	fs := flag.NewFlagSet("recover-token", flag.ExitOnError)
	caller := fs.String("caller", "", "Admin address")
	token := fs.String("token", "", "Token symbol to recover (the staked asset is refused)")
	to := fs.String("to", "", "Recipient address")
	amount := fs.String("amount", "", "Amount to recover")
	_ = fs.Parse(args)

	result, err := rpcCall("staking_recoverToken", map[string]interface{}{
		"caller": *caller,
		"token":  *token,
		"to":     *to,
		"amount": *amount,
	})
	if err != nil {
		fatal(err)
	}
	printResult(result)
}
