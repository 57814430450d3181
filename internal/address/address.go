// Package address parses raw From/To/Cc header values into the address
// tuples the ingestion core tracks. It is pure and side-effect-free: no
// I/O, no logging, fully deterministic.
package address

import "strings"

// Parsed is one address extracted from a header value.
type Parsed struct {
	Address string
	Name    string
	Domain  string
}

// ParseHeader splits a raw From/To/Cc header value into its addresses.
// Commas inside double quotes or inside angle brackets do not split a
// token. Invalid tokens are dropped silently.
func ParseHeader(raw string) []Parsed {
	out := make([]Parsed, 0, 4)
	for _, tok := range splitTokens(raw) {
		if p, ok := parseToken(tok); ok {
			out = append(out, p)
		}
	}
	return out
}

// splitTokens splits on top-level commas: commas nested inside a quoted
// display name ("Doe, Jane" <jane@x.com>) or inside an angle-bracket
// address group are not split points.
func splitTokens(raw string) []string {
	var tokens []string
	var buf strings.Builder
	inQuotes := false
	angleDepth := 0

	for _, r := range raw {
		switch r {
		case '"':
			inQuotes = !inQuotes
			buf.WriteRune(r)
		case '<':
			if !inQuotes {
				angleDepth++
			}
			buf.WriteRune(r)
		case '>':
			if !inQuotes && angleDepth > 0 {
				angleDepth--
			}
			buf.WriteRune(r)
		case ',':
			if inQuotes || angleDepth > 0 {
				buf.WriteRune(r)
			} else {
				tokens = append(tokens, buf.String())
				buf.Reset()
			}
		default:
			buf.WriteRune(r)
		}
	}
	if strings.TrimSpace(buf.String()) != "" {
		tokens = append(tokens, buf.String())
	}
	return tokens
}

// parseToken extracts the address and display name from one token.
func parseToken(tok string) (Parsed, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Parsed{}, false
	}

	var rawAddr, name string
	if start := strings.LastIndex(tok, "<"); start >= 0 {
		end := strings.LastIndex(tok, ">")
		if end < start {
			return Parsed{}, false
		}
		rawAddr = strings.TrimSpace(tok[start+1 : end])
		name = strings.TrimSpace(tok[:start])
		name = strings.Trim(name, `"`)
		name = strings.TrimSpace(name)
	} else {
		rawAddr = tok
		name = ""
	}

	addr, domain, ok := validate(rawAddr)
	if !ok {
		return Parsed{}, false
	}

	return Parsed{Address: addr, Name: name, Domain: domain}, true
}

// validate checks the spec's address validity rule and lowercases the
// address and domain for the return value: exactly one "@", at least one
// character on each side, and the domain side contains at least one ".".
func validate(raw string) (addr string, domain string, ok bool) {
	raw = strings.TrimSpace(raw)
	at := strings.Count(raw, "@")
	if at != 1 {
		return "", "", false
	}
	idx := strings.IndexByte(raw, '@')
	local, dom := raw[:idx], raw[idx+1:]
	if local == "" || dom == "" {
		return "", "", false
	}
	if !strings.Contains(dom, ".") {
		return "", "", false
	}
	lower := strings.ToLower(raw)
	lowerDom := strings.ToLower(dom)
	return lower, lowerDom, true
}

// Render is the inverse of ParseHeader for a single address, used only
// by tests to exercise the round-trip property (parse(render(a)) == a).
func Render(addrs []Parsed) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name == "" {
			parts = append(parts, a.Address)
		} else {
			parts = append(parts, `"`+a.Name+`" <`+a.Address+`>`)
		}
	}
	return strings.Join(parts, ", ")
}
