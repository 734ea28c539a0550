package reputation

import (
	"context"
	"fmt"
	"net/netip"

	"go4.org/netipx"
)

// Exempt short-circuits addresses inside a fixed set of networks to Clean and
// delegates everything else.
type Exempt struct {
	networks *netipx.IPSet
	next     Classifier
}

// NewExempt builds an Exempt wrapper from CIDR prefixes.
func NewExempt(prefixes []string, next Classifier) (*Exempt, error) {
	var b netipx.IPSetBuilder
	for _, p := range prefixes {
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exempt network %q: %w", p, err)
		}
		b.AddPrefix(prefix.Masked())
	}

	set, err := b.IPSet()
	if err != nil {
		return nil, fmt.Errorf("failed to build exempt network set: %w", err)
	}
	return &Exempt{networks: set, next: next}, nil
}

// Contains reports whether address parses and falls inside an exempt network.
func (e *Exempt) Contains(address string) bool {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return false
	}
	return e.networks.Contains(addr.Unmap())
}

// Classify implements Classifier.
func (e *Exempt) Classify(ctx context.Context, address string) Verdict {
	if e.Contains(address) {
		return Clean
	}
	return e.next.Classify(ctx, address)
}
