package service

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ledger-scanner/internal/types"
)

// SpamMode controls how aggressively suspicious symbols are rejected
type SpamMode string

const (
	// SpamModeOff disables the spam check entirely
	SpamModeOff SpamMode = "off"
	// SpamModeSoft rejects symbols scoring 3 or more
	SpamModeSoft SpamMode = "soft"
	// SpamModeHard rejects symbols scoring 1 or more
	SpamModeHard SpamMode = "hard"
)

// FilterOptions configures the spam/dust filter.
type FilterOptions struct {
	// MinUSD drops legs whose USD value is known and below this floor.
	// Zero disables the dust check.
	MinUSD float64
	Mode   SpamMode
}

// symbolWhitelist short-circuits scoring for blue-chip and stable symbols.
var symbolWhitelist = map[string]bool{
	"ETH": true, "WETH": true, "BTC": true, "WBTC": true,
	"USDC": true, "USDT": true, "DAI": true, "BUSD": true,
	"MATIC": true, "BNB": true, "ARB": true, "OP": true,
	"LINK": true, "UNI": true, "AAVE": true, "STETH": true,
}

// promoKeywords are marketing strings that legitimate tickers never carry.
var promoKeywords = []string{
	"claim", "airdrop", "reward", "bonus", "giveaway", "free",
	"visit", "www.", "http", ".com", ".io", ".net", ".xyz",
}

var hexPrefixPattern = regexp.MustCompile(`(?i)^(0x)?[0-9a-f]{8,}`)

// SpamScore computes the heuristic suspicion level of a token symbol.
// Each signal adds a fixed weight; whitelisted symbols always score zero.
func SpamScore(symbol string) int {
	trimmed := strings.TrimSpace(symbol)
	if symbolWhitelist[strings.ToUpper(trimmed)] {
		return 0
	}
	if trimmed == "" {
		return 3
	}

	score := 0
	lower := strings.ToLower(trimmed)

	for _, keyword := range promoKeywords {
		if strings.Contains(lower, keyword) {
			score += 2
		}
	}

	if hexPrefixPattern.MatchString(trimmed) {
		score += 2
	}

	if strings.Contains(trimmed, "|") {
		score += 2
	}

	if len(trimmed) > 20 {
		score++
	}

	hasNonAlnum := false
	hasNonASCII := false
	for _, r := range trimmed {
		if r > unicode.MaxASCII {
			hasNonASCII = true
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			hasNonAlnum = true
		}
	}
	if hasNonAlnum {
		score++
	}
	if hasNonASCII {
		score += 2
	}

	return score
}

// isSpamSymbol applies the mode threshold to a symbol's score.
func isSpamSymbol(symbol *string, mode SpamMode) bool {
	if mode == SpamModeOff || mode == "" {
		return false
	}
	sym := ""
	if symbol != nil {
		sym = *symbol
	}
	score := SpamScore(sym)
	if mode == SpamModeHard {
		return score >= 1
	}
	return score >= 3
}

// FilterLegs drops legs that are dust (USD value known and below the
// floor) or spam (suspicious symbol). NFTs are exempt from the spam
// check; only the dust floor applies to them. Legs with unknown USD
// value never dust-filter.
func FilterLegs(legs []*types.Leg, opts FilterOptions) []*types.Leg {
	kept := make([]*types.Leg, 0, len(legs))
	for _, leg := range legs {
		if opts.MinUSD > 0 && leg.AmountUSDAtTx != nil && *leg.AmountUSDAtTx < opts.MinUSD {
			continue
		}
		if !leg.Kind.IsNFT() && isSpamSymbol(leg.Symbol, opts.Mode) {
			continue
		}
		kept = append(kept, leg)
	}
	return kept
}
