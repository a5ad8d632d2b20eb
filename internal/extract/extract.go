// Package extract pulls candidate token addresses out of free-form chat text.
package extract

import (
	"regexp"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// LinkPolicy controls how explorer/aggregator links in a message are treated.
type LinkPolicy string

const (
	// LinkPrefer returns the address from a <host>/solana/<address> link when one is present.
	LinkPrefer LinkPolicy = "prefer"
	// LinkReject ignores messages that reference a blocked link host.
	LinkReject LinkPolicy = "reject"
)

// Address length bounds in base58 characters.
const (
	MinAddressLen = 32
	MaxAddressLen = 44

	// DefaultSuffixMarker is the launchpad vanity suffix accepted without decoding.
	DefaultSuffixMarker = "pump"

	pubkeyLen = 32
)

var (
	base58Run   = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]+`)
	linkPattern = regexp.MustCompile(`([A-Za-z0-9.-]+)/solana/([1-9A-HJ-NP-Za-km-z]{32,44})`)
)

// Options configures an Extractor.
type Options struct {
	LinkPolicy     LinkPolicy // Default: LinkPrefer
	BlockedHosts   []string   // Hosts that short-circuit extraction under LinkReject
	SuffixMarker   string     // Default: "pump"
	RequireOnCurve bool       // Reject decoded keys that are not valid ed25519 points
}

// Extractor finds token addresses in message text. It is safe for concurrent use.
type Extractor struct {
	policy         LinkPolicy
	blockedHosts   []string
	suffixMarker   string
	requireOnCurve bool
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	policy := opts.LinkPolicy
	if policy == "" {
		policy = LinkPrefer
	}
	marker := opts.SuffixMarker
	if marker == "" {
		marker = DefaultSuffixMarker
	}
	hosts := make([]string, 0, len(opts.BlockedHosts))
	for _, h := range opts.BlockedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return &Extractor{
		policy:         policy,
		blockedHosts:   hosts,
		suffixMarker:   marker,
		requireOnCurve: opts.RequireOnCurve,
	}
}

// Extract returns the first valid token address in text.
func (e *Extractor) Extract(text string) (string, bool) {
	all := e.ExtractAll(text)
	if len(all) == 0 {
		return "", false
	}
	return all[0], true
}

// ExtractAll returns every valid token address in text in the order Extract
// would consider them, without duplicates.
func (e *Extractor) ExtractAll(text string) []string {
	if text == "" {
		return nil
	}

	var found []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, dup := seen[s]; dup || !e.Valid(s) {
			return
		}
		seen[s] = struct{}{}
		found = append(found, s)
	}

	switch e.policy {
	case LinkReject:
		if e.referencesBlockedHost(text) {
			return nil
		}
	default:
		for _, m := range linkPattern.FindAllStringSubmatch(text, -1) {
			add(m[2])
		}
	}

	for _, run := range base58Run.FindAllString(text, -1) {
		add(run)
	}
	return found
}

// Valid reports whether s is a syntactically acceptable address.
func (e *Extractor) Valid(s string) bool {
	if len(s) < MinAddressLen || len(s) > MaxAddressLen {
		return false
	}
	decoded, err := base58.Decode(s)
	decodes := err == nil && len(decoded) == pubkeyLen

	if e.requireOnCurve {
		return decodes && isOnCurve(decoded)
	}
	if e.suffixMarker != "" && strings.HasSuffix(s, e.suffixMarker) {
		return true
	}
	return decodes
}

func (e *Extractor) referencesBlockedHost(text string) bool {
	if len(e.blockedHosts) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, h := range e.blockedHosts {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// isOnCurve checks if a 32-byte key is a valid ed25519 point.
func isOnCurve(point []byte) bool {
	if len(point) != pubkeyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
