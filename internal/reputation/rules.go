package reputation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// scoreFlags are the boolean provider flags that mark an address as abusive.
var scoreFlags = []string{"proxy", "vpn", "tor", "recent_abuse"}

// scoreRule flags anonymizers, recent abuse, or a fraud score at or above
// threshold.
func scoreRule(threshold float64) rule {
	return func(doc gjson.Result) (Verdict, error) {
		for _, flag := range scoreFlags {
			if doc.Get(flag).Type == gjson.True {
				return Abusive, nil
			}
		}
		if score := doc.Get("fraud_score"); score.Type == gjson.Number && score.Float() >= threshold {
			return Abusive, nil
		}
		return Clean, nil
	}
}

// asnAllowRule accepts only addresses announced by one of the listed
// autonomous systems.
func asnAllowRule(asns []int) rule {
	allowed := make(map[int]struct{}, len(asns))
	for _, asn := range asns {
		allowed[asn] = struct{}{}
	}

	return func(doc gjson.Result) (Verdict, error) {
		asn, ok := documentASN(doc)
		if !ok {
			return Abusive, fmt.Errorf("%w: response carries no ASN", ErrLookupFailed)
		}
		if _, ok := allowed[asn]; ok {
			return Clean, nil
		}
		return Abusive, nil
	}
}

// documentASN reads the ASN from either an "as" field ("AS7922 Comcast Cable")
// or an "asn" field (7922 or "AS7922").
func documentASN(doc gjson.Result) (int, bool) {
	for _, path := range []string{"asn", "as"} {
		v := doc.Get(path)
		switch v.Type {
		case gjson.Number:
			return int(v.Int()), true
		case gjson.String:
			if asn, ok := parseASN(v.String()); ok {
				return asn, true
			}
		}
	}
	return 0, false
}

func parseASN(s string) (int, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	token := fields[0]
	if len(token) > 2 && strings.EqualFold(token[:2], "AS") {
		token = token[2:]
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// operatorRule matches the network operator ("isp" or "org") against names.
// In allow mode a match is clean and anything else is abusive. In block mode
// a match, or a provider "hosting" flag, is abusive.
func operatorRule(names []string, block bool) rule {
	needles := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			needles = append(needles, n)
		}
	}

	return func(doc gjson.Result) (Verdict, error) {
		operators := make([]string, 0, 2)
		for _, path := range []string{"isp", "org"} {
			if v := doc.Get(path); v.Type == gjson.String && v.String() != "" {
				operators = append(operators, strings.ToLower(v.String()))
			}
		}
		if len(operators) == 0 {
			return Abusive, fmt.Errorf("%w: response carries no network operator", ErrLookupFailed)
		}

		matched := false
		for _, op := range operators {
			for _, needle := range needles {
				if strings.Contains(op, needle) {
					matched = true
				}
			}
		}

		if block {
			if matched || doc.Get("hosting").Type == gjson.True {
				return Abusive, nil
			}
			return Clean, nil
		}
		if matched {
			return Clean, nil
		}
		return Abusive, nil
	}
}
