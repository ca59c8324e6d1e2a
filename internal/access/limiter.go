package access

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/logging"
)

type Reason string

const (
	ReasonAdminPrivilege    Reason = "AdminPrivilege"
	ReasonPremiumAccess     Reason = "PremiumAccess"
	ReasonUnlimited         Reason = "Unlimited"
	ReasonUnclassified      Reason = "Unclassified"
	ReasonFirstUse          Reason = "FirstUse"
	ReasonUsageReset        Reason = "UsageReset"
	ReasonWithinLimits      Reason = "WithinLimits"
	ReasonDailyLimitReached Reason = "DailyLimitReached"
	// ReasonUnavailable denies a limited operation when the usage record cannot be read.
	ReasonUnavailable Reason = "Unavailable"
)

// Unmetered is the Remaining value of decisions that do not spend quota.
const Unmetered = -1

// Decision is the outcome of a usage check. A denial is a value, not an error.
type Decision struct {
	Allowed   bool
	Reason    Reason
	Role      Role
	Remaining int
	// ResetAt is set for metered decisions: the moment the current window ends.
	ResetAt time.Time
}

// Chargeable reports whether the caller should record one use after the
// operation succeeds. Only metered reasons spend quota.
func (d Decision) Chargeable() bool {
	if !d.Allowed {
		return false
	}
	switch d.Reason {
	case ReasonFirstUse, ReasonUsageReset, ReasonWithinLimits:
		return true
	}
	return false
}

// Message is a short human description of the decision.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonAdminPrivilege:
		return "Staff access, no limits apply."
	case ReasonPremiumAccess:
		return "Premium access, no limits apply."
	case ReasonUnlimited, ReasonUnclassified:
		return "This command is free to use."
	case ReasonFirstUse, ReasonUsageReset, ReasonWithinLimits:
		return fmt.Sprintf("%d use(s) left in the current window.", d.Remaining)
	case ReasonDailyLimitReached:
		return "You have reached your limit for advanced commands."
	default:
		return "Usage limits could not be checked right now. Please try again later."
	}
}

type LimiterOptions struct {
	Quota  int
	Window time.Duration
	Ops    *Operations
	Now    Clock
}

// Limiter decides whether a user may run an operation. It never spends quota
// itself; callers commit a use through IncrementUsage.
type Limiter struct {
	resolver *Resolver
	store    Store
	ops      *Operations
	quota    int
	window   time.Duration
	now      Clock
	log      *zap.SugaredLogger
}

func NewLimiter(resolver *Resolver, store Store, opts LimiterOptions, log *zap.SugaredLogger) *Limiter {
	if opts.Quota <= 0 {
		opts.Quota = 5
	}
	if opts.Window <= 0 {
		opts.Window = 12 * time.Hour
	}
	if opts.Ops == nil {
		opts.Ops = DefaultOperations()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Limiter{
		resolver: resolver,
		store:    store,
		ops:      opts.Ops,
		quota:    opts.Quota,
		window:   opts.Window,
		now:      opts.Now,
		log:      logging.OrNop(log),
	}
}

func (l *Limiter) Quota() int            { return l.quota }
func (l *Limiter) Window() time.Duration { return l.window }

// Classify exposes the operation table used by CanUse.
func (l *Limiter) Classify(op string) Class { return l.ops.Classify(op) }

// CanUse evaluates the gate for userID running op inside guildID.
// Only the first-use and window-rollover paths write to the store.
func (l *Limiter) CanUse(ctx context.Context, userID, guildID, op string) Decision {
	d := l.evaluate(ctx, userID, guildID, op)
	decisionsTotal.WithLabelValues(string(d.Reason), strconv.FormatBool(d.Allowed)).Inc()
	return d
}

func (l *Limiter) evaluate(ctx context.Context, userID, guildID, op string) Decision {
	role := l.resolver.ResolveRole(ctx, userID)
	if role.Staff() {
		return Decision{Allowed: true, Reason: ReasonAdminPrivilege, Role: role, Remaining: Unmetered}
	}
	if role == RolePremium || l.resolver.ResolveGuildPremium(ctx, guildID) {
		return Decision{Allowed: true, Reason: ReasonPremiumAccess, Role: role, Remaining: Unmetered}
	}

	switch l.ops.Classify(op) {
	case ClassUnlimited:
		return Decision{Allowed: true, Reason: ReasonUnlimited, Role: role, Remaining: Unmetered}
	case ClassUnclassified:
		unclassifiedTotal.WithLabelValues(op).Inc()
		l.log.Warnw("Operation is neither limited nor unlimited, allowing", "operation", op, "user", userID)
		return Decision{Allowed: true, Reason: ReasonUnclassified, Role: role, Remaining: Unmetered}
	}

	now := l.now()
	u, err := l.store.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		if _, err := l.store.CreateUser(ctx, userID, now); err != nil {
			l.log.Warnw("Create usage record failed", "user", userID, "error", err)
		}
		return Decision{Allowed: true, Reason: ReasonFirstUse, Role: role, Remaining: l.quota, ResetAt: now.Add(l.window)}
	}
	if err != nil {
		l.log.Warnw("Read usage record failed, denying", "user", userID, "operation", op, "error", err)
		return Decision{Allowed: false, Reason: ReasonUnavailable, Role: role}
	}

	if now.Sub(u.LastResetAt) >= l.window {
		if err := l.store.ResetUsage(ctx, userID, now); err != nil {
			l.log.Warnw("Reset usage failed", "user", userID, "error", err)
		}
		return Decision{Allowed: true, Reason: ReasonUsageReset, Role: role, Remaining: l.quota, ResetAt: now.Add(l.window)}
	}

	resetAt := u.LastResetAt.Add(l.window)
	if u.DailyUsage >= l.quota {
		return Decision{Allowed: false, Reason: ReasonDailyLimitReached, Role: role, Remaining: 0, ResetAt: resetAt}
	}
	return Decision{Allowed: true, Reason: ReasonWithinLimits, Role: role, Remaining: l.quota - u.DailyUsage, ResetAt: resetAt}
}

// IncrementUsage records one spent use for userID.
func (l *Limiter) IncrementUsage(ctx context.Context, userID string) error {
	if err := l.store.IncrementUsage(ctx, userID); err != nil {
		return fmt.Errorf("increment usage for %s: %w", userID, err)
	}
	return nil
}

// ResetUsage clears the user's counter and starts a new window now.
func (l *Limiter) ResetUsage(ctx context.Context, userID string) error {
	if err := l.store.ResetUsage(ctx, userID, l.now()); err != nil {
		return fmt.Errorf("reset usage for %s: %w", userID, err)
	}
	return nil
}
