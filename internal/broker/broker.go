// Package broker implements Substrate's policy broker: deterministic
// per-command Allow/AllowWithRestrictions/Deny/RequireApproval decisions
// against a layered policy, in observe or enforce mode.
package broker

import (
	"fmt"
	"sync"

	"github.com/substrate-dev/substrate/internal/approvals"
	"github.com/substrate-dev/substrate/internal/globmatch"
	"github.com/substrate-dev/substrate/internal/policy"
)

// WorldReadiness reports whether a world backend is available to the
// broker, consulted by the fail-closed world check.
type WorldReadiness interface {
	Ready() bool
}

// alwaysReady is the default WorldReadiness used when a broker is
// constructed without one (e.g. tests that never touch require_world).
type alwaysReady struct{}

func (alwaysReady) Ready() bool { return true }

// Broker holds one policy and evaluates commands against it. Broker
// handles are independent: touching one's observe/enforce flag or policy
// never affects another's, even when constructed from the same process.
type Broker struct {
	mu          sync.RWMutex
	poisoned    bool
	pol         *policy.Policy
	observeOnly bool

	approvalsMu sync.RWMutex
	approvalsPoisoned bool
	approvalCache *approvals.Cache

	world WorldReadiness
}

// Option configures a Broker at construction time.
type Option func(*Broker)

// WithWorldReadiness overrides the WorldReadiness consulted by the
// fail-closed check. Defaults to always-ready, matching hosts that never
// opted into world isolation.
func WithWorldReadiness(w WorldReadiness) Option {
	return func(b *Broker) { b.world = w }
}

// WithApprovalCache attaches a pre-built approval cache (e.g. one opened
// against a durable SQLite store) instead of the default in-memory one.
func WithApprovalCache(c *approvals.Cache) Option {
	return func(b *Broker) { b.approvalCache = c }
}

// New constructs a Broker from an already-loaded policy. observeOnly
// starts false (enforce mode) unless overridden via SetObserveOnly.
func New(pol *policy.Policy, opts ...Option) *Broker {
	b := &Broker{
		pol:           pol,
		world:         alwaysReady{},
		approvalCache: approvals.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// poisonOnPanic recovers a panic from the caller's locked section, marks
// poisoned so every future lock holder gets an actionable error instead of
// silently operating on state a panicking goroutine left half-updated, and
// re-panics so the panicking goroutine itself still crashes normally. Must
// be deferred after the corresponding Unlock/RUnlock so it runs first.
func poisonOnPanic(poisoned *bool) {
	if r := recover(); r != nil {
		*poisoned = true
		panic(r)
	}
}

// LoadPolicy parses and validates the policy at path and, on success,
// swaps it in atomically. On failure the broker's existing policy is left
// untouched.
func (b *Broker) LoadPolicy(path string) error {
	pol, err := policy.LoadFile(path)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	defer poisonOnPanic(&b.poisoned)
	if b.poisoned {
		return fmt.Errorf("failed to acquire policy write lock")
	}
	b.pol = pol
	return nil
}

// SetObserveOnly toggles observe (true) vs enforce (false) mode.
func (b *Broker) SetObserveOnly(observe bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer poisonOnPanic(&b.poisoned)
	if b.poisoned {
		return fmt.Errorf("failed to acquire policy write lock")
	}
	b.observeOnly = observe
	return nil
}

// Evaluate runs the full decision algorithm (spec §4.1) against cmdLine.
// In enforce mode it returns the real decision. In observe mode a Deny or
// RequireApproval decision is returned as Allow carrying the would-be
// decision's Reason and Restrictions for tracing; any other decision is
// returned unchanged. Callers that need both the would-be decision and
// whether it is enforced use EvaluateObserving.
func (b *Broker) Evaluate(cmdLine, cwd, agentID string) (Decision, error) {
	pol, observeOnly, err := b.snapshotForEvaluate()
	if err != nil {
		return Decision{}, err
	}

	would, err := b.evaluateEnforce(pol, cmdLine, cwd, agentID)
	if err != nil {
		return Decision{}, err
	}

	if observeOnly {
		// Observe mode never blocks: Deny and RequireApproval become Allow
		// at the action level, keeping the would-be Reason/Restrictions.
		// Other decisions are returned verbatim.
		if would.Action == ActionDeny || would.Action == ActionRequireApproval {
			return Decision{Action: ActionAllow, Reason: would.Reason, Restrictions: would.Restrictions}, nil
		}
		return would, nil
	}

	return would, nil
}

// EvaluateObserving always returns the would-be decision (never coerced)
// plus a boolean telling the caller whether enforce mode would actually
// apply it. Trace emission should use this so policy_decision always
// reflects the real evaluation even in observe mode.
func (b *Broker) EvaluateObserving(cmdLine, cwd, agentID string) (would Decision, enforced bool, err error) {
	pol, observeOnly, err := b.snapshotForEvaluate()
	if err != nil {
		return Decision{}, false, err
	}

	would, err = b.evaluateEnforce(pol, cmdLine, cwd, agentID)
	if err != nil {
		return Decision{}, false, err
	}
	return would, !observeOnly, nil
}

// snapshotForEvaluate takes the read lock just long enough to copy out the
// current policy and mode, marking the broker poisoned (rather than
// deadlocking future callers) if a panic occurs while the lock is held.
func (b *Broker) snapshotForEvaluate() (*policy.Policy, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	defer poisonOnPanic(&b.poisoned)
	if b.poisoned {
		return nil, false, fmt.Errorf("failed to acquire policy read lock")
	}
	return b.pol, b.observeOnly, nil
}

// evaluateEnforce runs the 8-step algorithm as if in enforce mode,
// regardless of the broker's actual mode; callers apply observe-mode
// coercion themselves.
func (b *Broker) evaluateEnforce(pol *policy.Policy, cmdLine, cwd, agentID string) (Decision, error) {
	// Step 1: world fail-closed.
	if pol.WorldFS.RequireWorld && !b.world.Ready() {
		return deny("world backend unavailable"), nil
	}

	// Step 2: shell operator splitting.
	if !pol.AllowShellOperators {
		segments := splitShellOperators(cmdLine)
		if len(segments) > 1 {
			var decisions []Decision
			for _, seg := range segments {
				d, err := b.evaluateSingle(pol, seg, cwd, agentID)
				if err != nil {
					return Decision{}, err
				}
				decisions = append(decisions, d)
			}
			return mostRestrictive(decisions), nil
		}
	}

	return b.evaluateSingle(pol, cmdLine, cwd, agentID)
}

// evaluateSingle runs steps 3-8 of the algorithm against a single
// (already shell-operator-free, or operator-allowed) command segment.
func (b *Broker) evaluateSingle(pol *policy.Policy, cmd, cwd, agentID string) (Decision, error) {
	// Step 3: denylist, first match wins.
	if pattern, ok := globmatch.MatchAny(pol.CmdDenied, cmd); ok {
		return deny(pattern), nil
	}

	// Step 4: approval cache.
	cache, err := b.snapshotApprovalCache()
	if err != nil {
		return Decision{}, err
	}

	var approvalStatus approvals.Status = approvals.Unknown
	if cache != nil {
		approvalStatus = cache.Check(cmd)
	}
	if approvalStatus == approvals.Denied {
		return deny("previously denied"), nil
	}
	approved := approvalStatus == approvals.Approved

	if !approved {
		// Step 5: allowlist.
		if len(pol.CmdAllowed) > 0 {
			if _, ok := globmatch.MatchAny(pol.CmdAllowed, cmd); !ok {
				return deny("not allowlisted"), nil
			}
		}
	}

	var restrictions []string

	// Step 6: isolation flag.
	if _, ok := globmatch.MatchAny(pol.CmdIsolated, cmd); ok {
		restrictions = append(restrictions, "isolate=true")
	}

	// Step 7: approval required.
	if pol.RequireApproval && !approved {
		risk := assessRiskLevel(cmd)
		return Decision{
			Action:       ActionRequireApproval,
			Restrictions: append(append([]string{}, restrictions...), "risk="+string(risk)),
		}, nil
	}

	// Step 8: allow (with any accumulated restrictions).
	return allow(restrictions...), nil
}

// snapshotApprovalCache takes the approvals read lock just long enough to
// copy out the current cache pointer, marking the broker's approvals state
// poisoned (rather than deadlocking future callers) if a panic occurs while
// the lock is held.
func (b *Broker) snapshotApprovalCache() (*approvals.Cache, error) {
	b.approvalsMu.RLock()
	defer b.approvalsMu.RUnlock()
	defer poisonOnPanic(&b.approvalsPoisoned)
	if b.approvalsPoisoned {
		return nil, fmt.Errorf("failed to acquire approvals lock")
	}
	return b.approvalCache, nil
}

// QuickCheck is a cheap pre-check that avoids the full evaluation pass when
// both cmd_denied and cmd_allowed are empty and argv contains nothing that
// would need redaction-level scrutiny; it never returns Deny — callers must
// still call Evaluate whenever QuickCheck reports it could not shortcut.
func (b *Broker) QuickCheck(argv []string, cwd string) (Decision, bool) {
	pol, _, err := b.snapshotForEvaluate()
	if err != nil || pol == nil {
		return Decision{}, false
	}
	if len(pol.CmdDenied) != 0 || len(pol.CmdAllowed) != 0 || pol.RequireApproval {
		return Decision{}, false
	}
	for _, a := range argv {
		if containsShellMetachar(a) {
			return Decision{}, false
		}
	}
	return allow(), true
}

// NetAllowed returns the current policy's net_allowed patterns, used by
// the Agent API's request_scopes endpoint to decide which requested
// network scopes can be granted without a full command evaluation.
func (b *Broker) NetAllowed() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pol.NetAllowed
}

// WorldFS returns the current policy's filesystem isolation posture, used
// by callers (the Agent API, the CLI's world subcommands) to build a
// world.Spec without each duplicating the policy lookup themselves.
func (b *Broker) WorldFS() policy.WorldFS {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pol.WorldFS
}

func containsShellMetachar(s string) bool {
	for _, r := range s {
		switch r {
		case '|', '&', ';', '<', '>':
			return true
		}
	}
	return false
}
