package dnstraverse

import "errors"

// Fatal configuration and bootstrap errors (spec.md section 8). These abort
// a Run before any query is sent; they are distinct from the per-Referral
// FAILED state, which never aborts a traversal in progress.
var (
	ErrNoRootsUsable    = errors.New("dnstraverse: no usable root servers")
	ErrUnknownQtype     = errors.New("dnstraverse: unknown query type")
	ErrMissingDomain    = errors.New("dnstraverse: no domain name given")
	ErrAlwaysTCPNeedsTCP = errors.New("dnstraverse: always-tcp requires allow-tcp")
	ErrInvalidMaxDepth  = errors.New("dnstraverse: max depth must be positive")
)

// validate checks the invariants spec.md section 8 requires of a Config
// before a Traverser can be built from it.
func (c Config) validate() error {
	if c.AlwaysTCP && !c.AllowTCP {
		return ErrAlwaysTCPNeedsTCP
	}
	if c.MaxDepth <= 0 {
		return ErrInvalidMaxDepth
	}
	return nil
}
