// Package session keeps dashboard wallet sessions in Redis and carries the resolved
// session through request contexts.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/transparencyx/chaintrace/common/errs"
)

const (
	KeyPrefix  = "chaintrace:session:"
	DefaultTTL = 24 * time.Hour
)

type Role string

const (
	RoleMainGovernment Role = "main-government"
	RoleStateHead      Role = "state-head"
	RoleDeputy         Role = "deputy"
	RoleVendor         Role = "vendor"
	RoleSupplier       Role = "supplier"
	RoleSubSupplier    Role = "sub-supplier"
	RolePublic         Role = "public"
)

var roles = map[Role]struct{}{
	RoleMainGovernment: {},
	RoleStateHead:      {},
	RoleDeputy:         {},
	RoleVendor:         {},
	RoleSupplier:       {},
	RoleSubSupplier:    {},
	RolePublic:         {},
}

// ParseRole accepts the role names the dashboard sends. Empty means public.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RolePublic, nil
	}
	r := Role(s)
	if _, ok := roles[r]; !ok {
		return "", errs.NewValidation("role", "unknown role "+s)
	}
	return r, nil
}

// Session is the signed-in dashboard user.
type Session struct {
	Token     string         `json:"token"`
	Address   common.Address `json:"address"`
	Role      Role           `json:"role"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl, now: time.Now}
}

// Create opens a session for address with role and returns it with a fresh token.
func (s *Store) Create(ctx context.Context, address common.Address, role Role) (*Session, error) {
	if _, ok := roles[role]; !ok {
		return nil, errs.NewValidation("role", "unknown role "+string(role))
	}
	if address == (common.Address{}) {
		return nil, errs.NewValidation("address", "wallet address is required")
	}

	now := s.now().UTC()
	sess := &Session{
		Token:     uuid.NewString(),
		Address:   address,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, KeyPrefix+sess.Token, payload, s.ttl).Err(); err != nil {
		return nil, errs.Wrap(errs.TypeDatabase, "redis set session", err)
	}
	log.Info("session created", "address", address, "role", role)
	return sess, nil
}

// Get resolves token. Unknown and expired tokens are unauthenticated.
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, errs.New(errs.TypeUnauthenticated, "missing session token")
	}
	payload, err := s.rdb.Get(ctx, KeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errs.New(errs.TypeUnauthenticated, "session expired or unknown")
		}
		return nil, errs.Wrap(errs.TypeDatabase, "redis get session", err)
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, errs.Wrap(errs.TypeDatabase, "decode session", err)
	}
	return &sess, nil
}

// Delete is idempotent.
func (s *Store) Delete(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, KeyPrefix+token).Err(); err != nil {
		return errs.Wrap(errs.TypeDatabase, "redis del session", err)
	}
	return nil
}

// Ping checks the redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

type ctxKey struct{}

func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session stored by WithSession, or nil.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(ctxKey{}).(*Session)
	return sess
}
