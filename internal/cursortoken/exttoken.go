package cursortoken

import "crypto/rand"

// Region selects the upstream data-center a request is routed to.
type Region uint8

const (
	RegionUnspecified Region = iota
	RegionAsia
	RegionEU
	RegionUS
)

func (r Region) String() string {
	switch r {
	case RegionAsia:
		return "asia"
	case RegionEU:
		return "eu"
	case RegionUS:
		return "us"
	default:
		return ""
	}
}

// ExtToken bundles a Token with everything else an upstream call needs.
// Primary is never nil; Secondary is only populated while a Session→Web
// upgrade is in flight (see internal/chatservice's retry policy).
type ExtToken struct {
	Primary       *Token
	Secondary     *Token
	Checksum      [32]byte
	ClientKey     [32]byte
	ConfigVersion *[16]byte
	SessionID     [16]byte
	Proxy         string
	TimeZone      string
	Region        Region
}

// Clone returns a value copy suitable for handing to a caller outside the
// pool's lock; Token pointers are shared (refcounted), not duplicated.
func (e ExtToken) Clone() ExtToken {
	out := e
	if e.ConfigVersion != nil {
		cv := *e.ConfigVersion
		out.ConfigVersion = &cv
	}
	Retain(e.Primary)
	if e.Secondary != nil {
		Retain(e.Secondary)
	}
	return out
}

// RegenerateClientKey rotates ClientKey and SessionID in place, used by
// TokenManager.UpdateClientKey for secret rotation across the whole pool.
func (e *ExtToken) RegenerateClientKey() {
	_, _ = rand.Read(e.ClientKey[:])
	_, _ = rand.Read(e.SessionID[:])
}

// UserProfile, UsageProfile, StripeProfile, SessionProfile hold the
// lazily-fetched profile set (spec.md §4.7 step 7). Only UserProfile is
// currently populated, by chatservice's background profile-refresh probe;
// the other three stay nil until a matching upstream probe is wired in.
type UserProfile struct {
	Email string
	Name  string
}

type UsageProfile struct {
	RequestsUsed  int64
	RequestsLimit int64
}

type StripeProfile struct {
	Paid         bool
	Subscription string
}

type SessionProfile struct {
	LastSeenUnix int64
}

// TokenInfo is ExtToken plus mutable pool-resident status: enable flag
// and the lazily-populated profile set. Privileged/Paid determine the
// token's QueueType membership. Failure-streak/cooldown accounting lives
// entirely in tokenhealth.Tracker, keyed by Ext.Primary.Key(), not here.
type TokenInfo struct {
	Ext ExtToken

	Enabled    bool
	Privileged bool
	Paid       bool

	User    *UserProfile
	Usage   *UsageProfile
	Stripe  *StripeProfile
	Session *SessionProfile
}
