package directory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Strategy names reported in Resolution.Strategy.
const (
	StrategyDirect      = "direct-lookup"
	StrategyDisjunctive = "disjunctive-search"
	StrategyEmployment  = "employment-lookup"
)

// errNoMatch signals that a strategy ran cleanly and found nothing.
var errNoMatch = errors.New("no match")

// LookupFunc runs one resolution attempt. It returns errNoMatch (or a
// RemoteRejectedError) when the token is not known to this strategy.
type LookupFunc func(ctx context.Context, token string) (CanonicalKey, error)

// Strategy is one named entry of the resolution chain.
type Strategy struct {
	Name   string
	Lookup LookupFunc
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	Key      CanonicalKey
	Strategy string
}

// Resolver maps a caller-supplied token (user ID, employee ID or email) to
// the directory's CanonicalKey. Strategies are tried in order and the first
// one that yields a key wins. Each strategy runs at most once per call and
// nothing is cached between calls.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewResolver builds a resolver with the standard three-step chain:
// direct point read, disjunctive search on the person entity, then the
// employment entity.
func NewResolver(reader Reader, cfg Config, logger *slog.Logger) *Resolver {
	cfg = cfg.WithDefaults()
	return NewResolverWithStrategies(logger,
		DirectLookup(reader, cfg),
		DisjunctiveSearch(reader, cfg, logger),
		EmploymentLookup(reader, cfg, logger),
	)
}

// NewResolverWithStrategies builds a resolver over an explicit chain.
func NewResolverWithStrategies(logger *slog.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{strategies: strategies, logger: logger}
}

// Strategies returns the strategy names in evaluation order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name
	}
	return names
}

// Resolve returns the CanonicalKey for token.
//
// A strategy that finds nothing, or that the directory rejects with a non-2xx
// status, hands over to the next one. Transport failures, ambiguity errors
// and context cancellation stop the chain immediately.
func (r *Resolver) Resolve(ctx context.Context, token string) (Resolution, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Resolution{}, &NotFoundError{Token: token}
	}

	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}

		key, err := s.Lookup(ctx, token)
		if err == nil && key != "" {
			r.logger.Debug("user resolved", "token", token, "key", key, "strategy", s.Name)
			return Resolution{Key: key, Strategy: s.Name}, nil
		}

		switch {
		case err == nil, errors.Is(err, errNoMatch):
			r.logger.Debug("resolution strategy found no match", "token", token, "strategy", s.Name)
		case errors.Is(err, ErrRemoteRejected):
			r.logger.Debug("resolution strategy rejected by directory",
				"token", token, "strategy", s.Name, "error", err)
		default:
			return Resolution{}, err
		}
	}

	return Resolution{}, &NotFoundError{Token: token}
}

// DirectLookup treats the token as a CanonicalKey and issues a point read.
func DirectLookup(reader Reader, cfg Config) Strategy {
	cfg = cfg.WithDefaults()
	userID, _ := Property(FieldUserID)
	return Strategy{
		Name: StrategyDirect,
		Lookup: func(ctx context.Context, token string) (CanonicalKey, error) {
			env, err := reader.Read(ctx, Query{
				EntitySet: cfg.PersonEntity,
				Key:       token,
				Select:    []string{userID},
			})
			if err != nil {
				return "", err
			}
			entity, ok := env.First()
			if !ok {
				return "", errNoMatch
			}
			if key := entity.String(userID); key != "" {
				return CanonicalKey(key), nil
			}
			return CanonicalKey(token), nil
		},
	}
}

// DisjunctiveSearch searches the person entity for a record whose user ID,
// employee ID or email equals the token. When several records match, the
// first one in the directory's result order wins unless cfg.RejectAmbiguous
// is set.
func DisjunctiveSearch(reader Reader, cfg Config, logger *slog.Logger) Strategy {
	cfg = cfg.WithDefaults()
	userID, _ := Property(FieldUserID)
	empID, _ := Property(FieldEmpID)
	email, _ := Property(FieldEmail)
	return Strategy{
		Name: StrategyDisjunctive,
		Lookup: func(ctx context.Context, token string) (CanonicalKey, error) {
			env, err := reader.Read(ctx, Query{
				EntitySet: cfg.PersonEntity,
				Filter:    Or(Eq(userID, token), Eq(empID, token), Eq(email, token)),
				Select:    []string{userID},
			})
			if err != nil {
				return "", err
			}
			return pickCandidate(env, userID, token, StrategyDisjunctive, cfg.RejectAmbiguous, logger)
		},
	}
}

// EmploymentLookup searches the employment entity by employee ID and
// recovers the owning user's key from the match.
func EmploymentLookup(reader Reader, cfg Config, logger *slog.Logger) Strategy {
	cfg = cfg.WithDefaults()
	userID, _ := Property(FieldUserID)
	empID, _ := Property(FieldEmpID)
	return Strategy{
		Name: StrategyEmployment,
		Lookup: func(ctx context.Context, token string) (CanonicalKey, error) {
			env, err := reader.Read(ctx, Query{
				EntitySet: cfg.EmploymentEntity,
				Filter:    Eq(empID, token),
				Select:    []string{userID},
			})
			if err != nil {
				return "", err
			}
			return pickCandidate(env, userID, token, StrategyEmployment, cfg.RejectAmbiguous, logger)
		},
	}
}

// pickCandidate returns the first non-empty key in env. Distinct extra keys
// are logged, or reported as AmbiguousMatchError when reject is set.
func pickCandidate(env *Envelope, property, token, strategy string, reject bool, logger *slog.Logger) (CanonicalKey, error) {
	var candidates []string
	seen := make(map[string]struct{})
	for _, e := range env.Results {
		key := e.String(property)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, key)
	}

	switch {
	case len(candidates) == 0:
		return "", errNoMatch
	case len(candidates) > 1 && reject:
		return "", &AmbiguousMatchError{Token: token, Strategy: strategy, Candidates: candidates}
	case len(candidates) > 1:
		if logger != nil {
			logger.Warn("multiple users matched, taking first result",
				"token", token, "strategy", strategy, "candidates", candidates)
		}
	}
	return CanonicalKey(candidates[0]), nil
}
