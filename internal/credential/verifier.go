package credential

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/errs"
	"github.com/koustreak/userfed/internal/logger"
	"github.com/koustreak/userfed/internal/metrics"
)

// Validation outcome reasons, used as metric labels and log fields.
const (
	ReasonSuccess         = "success"
	ReasonInvalidPassword = "invalid_password"
	ReasonUserNotFound    = "user_not_found"
	ReasonNoPassword      = "no_password"
	ReasonUnsupported     = "unsupported_type"
	ReasonError           = "error"
)

// Acquirer hands out connections under the current configuration.
// *database.Manager implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (*database.Lease, error)
}

// Verifier implements the lookup and credential operations over the
// connections of an Acquirer. It holds no per-call state and is safe for
// concurrent use.
type Verifier struct {
	conns       Acquirer
	newIdentity IdentityFactory
	log         *logger.Logger
	metrics     metrics.Recorder
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithIdentityFactory sets how identities are built. The default is
// UserFactory("").
func WithIdentityFactory(f IdentityFactory) Option {
	return func(v *Verifier) { v.newIdentity = f }
}

// WithLogger sets the logger. The default is logger.Global().
func WithLogger(l *logger.Logger) Option {
	return func(v *Verifier) { v.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(v *Verifier) { v.metrics = r }
}

// NewVerifier returns a Verifier reading through conns.
func NewVerifier(conns Acquirer, opts ...Option) *Verifier {
	v := &Verifier{
		conns:       conns,
		newIdentity: UserFactory(""),
		log:         logger.Global(),
		metrics:     metrics.Noop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.With().Str("component", "credential_verifier").Logger()
	return v
}

// LookupByID resolves a realm-qualified id to its username and looks it up.
func (v *Verifier) LookupByID(ctx context.Context, realm, id string) (Identity, bool) {
	start := time.Now()
	username, ok := ParseExternalID(id)
	if !ok {
		v.log.DebugWith("malformed external id", map[string]any{"id": id})
		v.metrics.RecordLookup("by_id", false, time.Since(start))
		return nil, false
	}
	ident, found := v.lookup(ctx, realm, username, "by_id")
	v.metrics.RecordLookup("by_id", found, time.Since(start))
	return ident, found
}

// LookupByUsername reports whether a row with a non-NULL password exists
// for username. The password itself is not checked.
func (v *Verifier) LookupByUsername(ctx context.Context, realm, username string) (Identity, bool) {
	start := time.Now()
	ident, found := v.lookup(ctx, realm, username, "by_username")
	v.metrics.RecordLookup("by_username", found, time.Since(start))
	return ident, found
}

// LookupByEmail always reports not found; the user table has no email column.
func (v *Verifier) LookupByEmail(_ context.Context, _, _ string) (Identity, bool) {
	v.metrics.RecordLookup("by_email", false, 0)
	return nil, false
}

// SupportsCredentialKind reports whether kind is PasswordType.
func (v *Verifier) SupportsCredentialKind(kind string) bool {
	return kind == PasswordType
}

// IsConfiguredFor reports whether ident can be checked with kind. Every
// matched identity is assumed to hold a password.
func (v *Verifier) IsConfiguredFor(_ Identity, kind string) bool {
	return v.SupportsCredentialKind(kind)
}

// ValidatePassword reports whether input matches the bcrypt hash stored
// for ident. It returns false for unsupported credential kinds, a missing
// row, a NULL hash, a malformed hash and any database fault.
func (v *Verifier) ValidatePassword(ctx context.Context, ident Identity, input CredentialInput) bool {
	start := time.Now()
	reason := v.validate(ctx, ident, input)
	dur := time.Since(start)

	v.metrics.RecordValidation(reason, dur)
	fields := map[string]any{"reason": reason, "duration": dur.String()}
	if ident != nil {
		fields["username"] = ident.Username()
	}
	v.log.DebugWith("password validation", fields)
	return reason == ReasonSuccess
}

func (v *Verifier) validate(ctx context.Context, ident Identity, input CredentialInput) string {
	if !v.SupportsCredentialKind(input.Type) {
		return ReasonUnsupported
	}
	if ident == nil {
		burnComparison(input.Challenge)
		return ReasonUserNotFound
	}

	res := v.fetch(ctx, ident.Username(), "validate")
	switch res.outcome {
	case outcomeFound:
	case outcomeMissing:
		burnComparison(input.Challenge)
		return ReasonUserNotFound
	case outcomeNoHash:
		burnComparison(input.Challenge)
		return ReasonNoPassword
	default:
		burnComparison(input.Challenge)
		return ReasonError
	}

	if err := bcrypt.CompareHashAndPassword([]byte(res.hash), []byte(input.Challenge)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			v.log.WarnWith("stored password is not a valid bcrypt hash", map[string]any{
				"username": ident.Username(),
				"error":    err.Error(),
			})
		}
		return ReasonInvalidPassword
	}
	return ReasonSuccess
}

func (v *Verifier) lookup(ctx context.Context, realm, username, op string) (Identity, bool) {
	res := v.fetch(ctx, username, op)
	if res.outcome != outcomeFound {
		return nil, false
	}
	return v.newIdentity(realm, username), true
}

type outcome int

const (
	outcomeFound outcome = iota
	outcomeMissing
	outcomeNoHash
	outcomeFailed
)

type fetchResult struct {
	outcome outcome
	hash    string
}

var (
	fetchMissing = fetchResult{outcome: outcomeMissing}
	fetchNoHash  = fetchResult{outcome: outcomeNoHash}
	fetchFailed  = fetchResult{outcome: outcomeFailed}
)

// fetch reads the stored hash for username over one leased connection,
// released before returning.
func (v *Verifier) fetch(ctx context.Context, username, op string) (res fetchResult) {
	start := time.Now()
	defer func() {
		v.log.DebugWith("credential lookup", map[string]any{
			"operation": op,
			"duration":  time.Since(start).String(),
		})
	}()

	lease, err := v.conns.Acquire(ctx)
	if err != nil {
		v.logFailure(op, err)
		return fetchFailed
	}
	defer lease.Release()

	stmt := database.BuildLookup(lease.Config(), lease.Dialect(), username)
	var id any
	var name, hash *string
	err = lease.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&id, &name, &hash)
	switch {
	case errs.IsNotFound(err):
		return fetchMissing
	case err != nil:
		if errs.IsConnectionUnavailable(err) {
			v.metrics.RecordConnectionFailure(errs.KindOf(err).String())
		}
		v.logFailure(op, err)
		return fetchFailed
	case hash == nil:
		return fetchNoHash
	}
	return fetchResult{outcome: outcomeFound, hash: *hash}
}

func (v *Verifier) logFailure(op string, err error) {
	state, code := errs.Vendor(err)
	v.log.ErrorWith("credential lookup failed", err, map[string]any{
		"operation":   op,
		"sql_state":   state,
		"vendor_code": code,
	})
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// burnComparison spends one bcrypt comparison so a request for an unknown
// user takes about as long as one for a known user.
func burnComparison(challenge string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("userfed-dummy-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(challenge))
}
