package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusInactive int64 = 1
	rotateStatusExpired  int64 = 2
	rotateStatusRotated  int64 = 3
)

// KEYS: old record, new record, new hash index, family set, user set.
// ARGV: new id, user id, family id, token hash, expires_at ms, now ms, retain ms, reason.
const rotateRecordScript = `
local active = redis.call("HGET", KEYS[1], "active")
if not active then
  return 0
end
if active ~= "1" then
  return 1
end
local exp = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
local now = tonumber(ARGV[6])
if exp <= now then
  return 2
end

redis.call("HSET", KEYS[1], "active", "0", "revoked_at", ARGV[6], "revoked_reason", ARGV[8])
redis.call("HSET", KEYS[2],
  "id", ARGV[1], "user_id", ARGV[2], "family_id", ARGV[3], "token_hash", ARGV[4],
  "expires_at", ARGV[5], "created_at", ARGV[6], "active", "1")
redis.call("PEXPIRE", KEYS[2], ARGV[7])
redis.call("SET", KEYS[3], ARGV[1], "PX", ARGV[7])
redis.call("SADD", KEYS[4], ARGV[1])
redis.call("PEXPIRE", KEYS[4], ARGV[7])
redis.call("SADD", KEYS[5], ARGV[1])
redis.call("PEXPIRE", KEYS[5], ARGV[7])
return 3
`

var rotateRecordLua = redis.NewScript(rotateRecordScript)

const deactivateRecordScript = `
if redis.call("HGET", KEYS[1], "active") == "1" then
  redis.call("HSET", KEYS[1], "active", "0", "revoked_at", ARGV[1], "revoked_reason", ARGV[2])
  return 1
end
return 0
`

// KEYS: record, hash index, family set, user set.
// ARGV: id, user id, family id, token hash, expires_at ms, now ms, retain ms.
const createRecordScript = `
if redis.call("SET", KEYS[2], ARGV[1], "NX", "PX", ARGV[7]) == false then
  return 0
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1], "user_id", ARGV[2], "family_id", ARGV[3], "token_hash", ARGV[4],
  "expires_at", ARGV[5], "created_at", ARGV[6], "active", "1")
redis.call("PEXPIRE", KEYS[1], ARGV[7])
redis.call("SADD", KEYS[3], ARGV[1])
redis.call("PEXPIRE", KEYS[3], ARGV[7])
redis.call("SADD", KEYS[4], ARGV[1])
redis.call("PEXPIRE", KEYS[4], ARGV[7])
return 1
`

var createRecordLua = redis.NewScript(createRecordScript)

var deactivateRecordLua = redis.NewScript(deactivateRecordScript)

// KEYS[1] is a family or user index set; ARGV[1] is the record key prefix.
const revokeSetScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  if redis.call("HGET", key, "active") == "1" then
    redis.call("HSET", key, "active", "0", "revoked_at", ARGV[2], "revoked_reason", ARGV[3])
    n = n + 1
  end
end
return n
`

var revokeSetLua = redis.NewScript(revokeSetScript)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Prefix namespaces every key. Defaults to "gs".
	Prefix string
	// Retention keeps records past expires_at so replays of old tokens are
	// still recognized as reuse. Defaults to one hour.
	Retention time.Duration
	Now       func() time.Time
}

// RedisStore is a Redis-backed Store. Records are hashes; token hashes,
// families and users are indexed by auxiliary keys. Rotation and revocation
// run as Lua scripts so each is atomic on the server.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore creates a RedisStore backed by the given client.
func NewRedisStore(rdb redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "gs"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RedisStore{
		redis:     rdb,
		prefix:    cfg.Prefix,
		retention: cfg.Retention,
		now:       cfg.Now,
	}
}

func (s *RedisStore) recordPrefix() string { return s.prefix + ":rec:" }

func (s *RedisStore) recordKey(id string) string { return s.recordPrefix() + id }

func (s *RedisStore) hashKey(tokenHash string) string { return s.prefix + ":hash:" + tokenHash }

func (s *RedisStore) familyKey(familyID string) string { return s.prefix + ":fam:" + familyID }

func (s *RedisStore) userKey(userID string) string { return s.prefix + ":user:" + userID }

func (s *RedisStore) retainFor(expiresAt, now time.Time) time.Duration {
	d := expiresAt.Sub(now) + s.retention
	if d < time.Second {
		d = time.Second
	}
	return d
}

// CreateRecord persists a new active record and its indexes in one Lua
// script; a token hash that is already indexed yields ErrDuplicateRecord and
// writes nothing.
//
//	Performance: 1 EVALSHA.
func (s *RedisStore) CreateRecord(ctx context.Context, rec NewRecord) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now()
	ttl := s.retainFor(rec.ExpiresAt, now)

	keys := []string{
		s.recordKey(rec.ID),
		s.hashKey(rec.TokenHash),
		s.familyKey(rec.FamilyID),
		s.userKey(rec.UserID),
	}
	created, err := createRecordLua.Run(ctx, s.redis, keys,
		rec.ID,
		rec.UserID,
		rec.FamilyID,
		rec.TokenHash,
		rec.ExpiresAt.UnixMilli(),
		now.UnixMilli(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if created == 0 {
		return Record{}, ErrDuplicateRecord
	}

	return Record{
		ID:        rec.ID,
		UserID:    rec.UserID,
		FamilyID:  rec.FamilyID,
		TokenHash: rec.TokenHash,
		ExpiresAt: time.UnixMilli(rec.ExpiresAt.UnixMilli()),
		CreatedAt: time.UnixMilli(now.UnixMilli()),
		Active:    true,
	}, nil
}

// FindAnyByHash returns the record for tokenHash whether active or not.
func (s *RedisStore) FindAnyByHash(ctx context.Context, tokenHash string) (Record, error) {
	id, err := s.redis.Get(ctx, s.hashKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.get(ctx, id)
}

// FindActiveByHash returns the record for tokenHash only when it is active and unexpired.
func (s *RedisStore) FindActiveByHash(ctx context.Context, tokenHash string) (Record, error) {
	rec, err := s.FindAnyByHash(ctx, tokenHash)
	if err != nil {
		return Record{}, err
	}
	if !rec.Usable(s.now()) {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (s *RedisStore) get(ctx context.Context, id string) (Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrRecordNotFound
	}
	return decodeRecord(fields)
}

func decodeRecord(fields map[string]string) (Record, error) {
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: corrupt expires_at", ErrStoreUnavailable)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: corrupt created_at", ErrStoreUnavailable)
	}

	rec := Record{
		ID:            fields["id"],
		UserID:        fields["user_id"],
		FamilyID:      fields["family_id"],
		TokenHash:     fields["token_hash"],
		ExpiresAt:     time.UnixMilli(expiresAt),
		CreatedAt:     time.UnixMilli(createdAt),
		Active:        fields["active"] == "1",
		RevokedReason: fields["revoked_reason"],
	}
	if v := fields["revoked_at"]; v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.RevokedAt = time.UnixMilli(ms)
		}
	}
	return rec, nil
}

// DeactivateRecord marks a record inactive. Missing or already inactive records are a no-op.
func (s *RedisStore) DeactivateRecord(ctx context.Context, id, reason string) error {
	err := deactivateRecordLua.Run(ctx, s.redis, []string{s.recordKey(id)}, s.now().UnixMilli(), reason).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeFamily deactivates every record of familyID.
func (s *RedisStore) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	return s.revokeSet(ctx, s.familyKey(familyID), reason)
}

// RevokeAllForUser deactivates every record owned by userID.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	return s.revokeSet(ctx, s.userKey(userID), reason)
}

func (s *RedisStore) revokeSet(ctx context.Context, setKey, reason string) (int, error) {
	n, err := revokeSetLua.Run(ctx, s.redis, []string{setKey}, s.recordPrefix(), s.now().UnixMilli(), reason).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// RotateRecord replaces the record oldID with next.
//
// The old record is checked, deactivated and replaced inside one Lua script,
// so of two concurrent calls for the same oldID exactly one succeeds and the
// other gets ErrRecordInactive.
//
//	Performance: 1 EVALSHA.
func (s *RedisStore) RotateRecord(ctx context.Context, oldID string, next NewRecord) (Record, error) {
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	now := s.now()
	ttl := s.retainFor(next.ExpiresAt, now)

	keys := []string{
		s.recordKey(oldID),
		s.recordKey(next.ID),
		s.hashKey(next.TokenHash),
		s.familyKey(next.FamilyID),
		s.userKey(next.UserID),
	}
	status, err := rotateRecordLua.Run(ctx, s.redis, keys,
		next.ID,
		next.UserID,
		next.FamilyID,
		next.TokenHash,
		next.ExpiresAt.UnixMilli(),
		now.UnixMilli(),
		ttl.Milliseconds(),
		ReasonRotated,
	).Int64()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return Record{
			ID:        next.ID,
			UserID:    next.UserID,
			FamilyID:  next.FamilyID,
			TokenHash: next.TokenHash,
			ExpiresAt: time.UnixMilli(next.ExpiresAt.UnixMilli()),
			CreatedAt: time.UnixMilli(now.UnixMilli()),
			Active:    true,
		}, nil
	case rotateStatusNotFound:
		return Record{}, ErrRecordNotFound
	case rotateStatusInactive:
		return Record{}, ErrRecordInactive
	case rotateStatusExpired:
		return Record{}, ErrRecordExpired
	default:
		return Record{}, fmt.Errorf("%w: unexpected rotate status %d", ErrStoreUnavailable, status)
	}
}

// ListActiveForUser returns the usable records of userID. Index entries whose
// record has been evicted are pruned.
func (s *RedisStore) ListActiveForUser(ctx context.Context, userID string) ([]Record, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return []Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := s.now()
	out := make([]Record, 0, len(ids))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		rec, err := decodeRecord(fields)
		if err != nil {
			return nil, err
		}
		if rec.Usable(now) {
			out = append(out, rec)
		}
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return out, nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
