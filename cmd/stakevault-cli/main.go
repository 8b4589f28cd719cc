package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via STAKEVAULT_RPC_URL or --rpc
var rpcAuthToken = os.Getenv("STAKEVAULT_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("STAKEVAULT_RPC_URL")); url != "" {
		return url
	}
	return "http://127.0.0.1:8546"
}

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	rest := args[1:]
	switch command {
	case "generate-key":
		generateKey(rest)
	case "deposit":
		depositCmd(rest)
	case "withdraw":
		withdrawCmd(rest)
	case "emergency-withdraw":
		emergencyWithdrawCmd(rest)
	case "claim":
		claimCmd(rest)
	case "position":
		positionCmd(rest)
	case "positions":
		positionsCmd(rest)
	case "tiers":
		tiersCmd(rest)
	case "set-reward-rate":
		setRewardRateCmd(rest)
	case "set-staking-cap":
		setStakingCapCmd(rest)
	case "add-tier":
		addTierCmd(rest)
	case "recover-token":
		recoverTokenCmd(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a value")
			}
			i++
			rpcEndpoint = args[i]
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func printUsage() {
	fmt.Println(`Usage: stakevault-cli [--rpc <url>] <command> [flags]

User commands:
  generate-key                      Generate a keypair and print the address
  deposit    --owner --amount --tier
  withdraw   --owner --index
  emergency-withdraw --owner --index
  claim      --owner
  position   --owner --index
  positions  --owner
  tiers

Admin commands (require STAKEVAULT_RPC_TOKEN):
  set-reward-rate --caller --rate
  set-staking-cap --caller --cap
  add-tier        --caller --lock-seconds --multiplier
  recover-token   --caller --token --to --amount`)
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func rpcCall(method string, params interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	return decoded.Result, nil
}

func printResult(result json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return
	}
	fmt.Println(pretty.String())
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
