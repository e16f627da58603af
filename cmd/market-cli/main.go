package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"marketplaced/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("MARKET_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
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
	switch command {
	case "generate-key":
		generateKey()
	case "address":
		requireArgs(args, 2, "Please provide a key file.")
		printAddress(args[1])
	case "balance":
		requireArgs(args, 2, "Please provide an address.")
		query("market_getBalance", map[string]interface{}{"address": args[1]})
	case "register-asset":
		requireArgs(args, 3, "Please provide a creator address and a symbol.")
		mutate("market_registerAsset", map[string]interface{}{
			"creator": args[1],
			"symbol":  args[2],
		})
	case "list":
		requireArgs(args, 5, "Please provide seller, asset, price and royalty bps.")
		price := parseUint(args[3], "price")
		bps := parseUint(args[4], "royalty bps")
		mutate("market_list", map[string]interface{}{
			"seller":      args[1],
			"asset":       args[2],
			"price":       price,
			"royalty_bps": bps,
		})
	case "fund":
		requireArgs(args, 3, "Please provide buyer and listing addresses.")
		mutate("market_fundEscrow", map[string]interface{}{
			"buyer":           args[1],
			"listing_address": args[2],
		})
	case "buy":
		requireArgs(args, 5, "Please provide buyer, seller, creator and listing addresses.")
		mutate("market_buy", tradeParams(args))
	case "settle":
		requireArgs(args, 5, "Please provide buyer, seller, creator and listing addresses.")
		mutate("market_settle", tradeParams(args))
	case "cancel":
		requireArgs(args, 3, "Please provide seller and listing addresses.")
		mutate("market_cancel", map[string]interface{}{
			"seller":          args[1],
			"listing_address": args[2],
		})
	case "faucet":
		requireArgs(args, 3, "Please provide an address and an amount.")
		amount := parseUint(args[2], "amount")
		mutate("market_faucet", map[string]interface{}{
			"address": args[1],
			"amount":  amount,
		})
	case "get-listing":
		requireArgs(args, 2, "Please provide a listing address.")
		query("market_getListing", map[string]interface{}{"listing_address": args[1]})
	case "get-escrow":
		requireArgs(args, 2, "Please provide an escrow address.")
		query("market_getEscrow", map[string]interface{}{"escrow_address": args[1]})
	case "summary":
		requireArgs(args, 3, "Please provide an asset id and a seller address.")
		query("market_getListingSummary", map[string]interface{}{
			"asset":  args[1],
			"seller": args[2],
		})
	case "simulate":
		requireArgs(args, 2, "Please provide a listing address.")
		query("market_simulatePurchase", map[string]interface{}{"listing_address": args[1]})
	case "validate":
		requireArgs(args, 2, "Please provide a listing address.")
		query("market_validateListing", map[string]interface{}{"listing_address": args[1]})
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func tradeParams(args []string) map[string]interface{} {
	return map[string]interface{}{
		"buyer":           args[1],
		"seller":          args[2],
		"creator":         args[3],
		"listing_address": args[4],
	}
}

func requireArgs(args []string, n int, message string) {
	if len(args) < n {
		fmt.Println("Error: " + message)
		printUsage()
		os.Exit(1)
	}
}

func parseUint(raw, field string) uint64 {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fmt.Printf("Error: invalid %s %q.\n", field, raw)
		os.Exit(1)
	}
	return value
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}

	fileName := "wallet.key"
	if err := os.WriteFile(fileName, key.Bytes(), 0600); err != nil {
		panic(fmt.Sprintf("Failed to save key to %s: %v", fileName, err))
	}

	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your public address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file securely.")
}

func printAddress(keyFile string) {
	raw, err := os.ReadFile(keyFile)
	if err != nil {
		fmt.Printf("Error reading key file: %v\n", err)
		os.Exit(1)
	}
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		fmt.Printf("Error parsing key file: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(key.PubKey().Address().String())
}

// --- RPC helpers ---

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		Data    interface{} `json:"data"`
	} `json:"error"`
}

func query(method string, params interface{}) {
	callRPC(method, params, false)
}

func mutate(method string, params interface{}) {
	callRPC(method, params, true)
}

func callRPC(method string, params interface{}, requireAuth bool) {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	})
	if err != nil {
		fmt.Printf("Error encoding request: %v\n", err)
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		fmt.Printf("Error building request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if rpcAuthToken == "" {
			fmt.Println("Error: privileged RPC call requires MARKET_RPC_TOKEN to be set.")
			os.Exit(1)
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error calling %s: %v\n", rpcEndpoint, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error reading response: %v\n", err)
		os.Exit(1)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		fmt.Printf("Error decoding response: %v\n", err)
		os.Exit(1)
	}
	if parsed.Error != nil {
		fmt.Printf("RPC error %d: %s\n", parsed.Error.Code, parsed.Error.Message)
		if parsed.Error.Data != nil {
			fmt.Printf("  %v\n", parsed.Error.Data)
		}
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, parsed.Result, "", "  "); err != nil {
		fmt.Println(string(parsed.Result))
		return
	}
	fmt.Println(pretty.String())
}

func printUsage() {
	fmt.Println(`Usage: market-cli [--rpc <url>] <command> [args]

Key management:
  generate-key                                   Generate a wallet key file
  address <key-file>                             Print the address for a key file

Queries:
  balance <address>                              Spendable balance for an account
  get-listing <listing-address>                  Listing record snapshot
  get-escrow <escrow-address>                    Escrow record snapshot
  summary <asset-hex> <seller>                   Listing snapshot by asset and seller
  simulate <listing-address>                     Purchase cost breakdown
  validate <listing-address>                     Listing consistency report

Transactions (require MARKET_RPC_TOKEN):
  register-asset <creator> <symbol>              Mint a new asset unit
  list <seller> <asset-hex> <price> <bps>        Create a listing
  fund <buyer> <listing-address>                 Move the price into escrow
  buy <buyer> <seller> <creator> <listing>       Settle directly from the buyer balance
  settle <buyer> <seller> <creator> <listing>    Disburse a funded escrow
  cancel <seller> <listing-address>              Cancel a listing and refund escrow
  faucet <address> <amount>                      Credit an account (dev networks only)`)
}
