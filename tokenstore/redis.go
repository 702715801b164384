package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	insertStatusExists        int64 = 0
	insertStatusInserted      int64 = 1
	insertStatusParentRevoked int64 = 2
)

const (
	markStatusNotFound int64 = 0
	markStatusMarked   int64 = 1
	markStatusRevoked  int64 = 2
	markStatusUsed     int64 = 3
)

// insertScript writes KEYS[1] and indexes it in KEYS[2]. KEYS[3], when
// present, is the parent record: a missing or revoked parent refuses the
// write so a successor can never outlive a device revocation.
const insertScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
if KEYS[3] then
  local revoked = redis.call("HGET", KEYS[3], "revoked")
  if not revoked or revoked == "1" then
    return 2
  end
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "user_id", ARGV[2],
  "device_id", ARGV[3],
  "secret_hash", ARGV[4],
  "created_at", ARGV[5],
  "expires_at", ARGV[6],
  "used", ARGV[7],
  "used_at", ARGV[8],
  "revoked", ARGV[9],
  "revoked_at", ARGV[10],
  "parent_hash", ARGV[11])
redis.call("SADD", KEYS[2], ARGV[4])
return 1
`

var insertLua = redis.NewScript(insertScript)

const markUsedScript = `
local state = redis.call("HMGET", KEYS[1], "used", "revoked")
if not state[1] then
  return 0
end
if state[2] == "1" then
  return 2
end
if state[1] == "1" then
  return 3
end
redis.call("HSET", KEYS[1], "used", "1", "used_at", ARGV[1])
return 1
`

var markUsedLua = redis.NewScript(markUsedScript)

// revokeDeviceScript declares only the index key. The record keys it
// touches are built from ARGV[1] and the index members, which breaks the
// declare-every-key rule; it is safe on Cluster because every record key
// carries the same {user:device} hash tag as KEYS[1] and so maps to the
// same slot.
const revokeDeviceScript = `
local members = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, hash in ipairs(members) do
  local key = ARGV[1] .. hash
  local state = redis.call("HGET", key, "revoked")
  if state and state ~= "1" then
    redis.call("HSET", key, "revoked", "1", "revoked_at", ARGV[2])
    revoked = revoked + 1
  end
end
return revoked
`

var revokeDeviceLua = redis.NewScript(revokeDeviceScript)

// RedisStore keeps each record in a hash and indexes hashes per device in a
// set. Both keys of a device share a hash tag so the scripts stay on one
// cluster slot.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. prefix sets the key namespace and
// defaults to "tg".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tg"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) deviceTag(userID, deviceID string) string {
	return "{" + userID + ":" + deviceID + "}"
}

func (s *RedisStore) recordPrefix(userID, deviceID string) string {
	return s.prefix + ":rt:" + s.deviceTag(userID, deviceID) + ":"
}

func (s *RedisStore) recordKey(userID, deviceID, secretHash string) string {
	return s.recordPrefix(userID, deviceID) + secretHash
}

func (s *RedisStore) deviceKey(userID, deviceID string) string {
	return s.prefix + ":rtd:" + s.deviceTag(userID, deviceID)
}

// Find loads a record with one HGETALL.
func (s *RedisStore) Find(ctx context.Context, userID, deviceID, secretHash string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(userID, deviceID, secretHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	rec, err := decodeRecordFields(fields)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert writes the record hash and its index entry in one script call.
func (s *RedisStore) Insert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	if err := rec.validate(); err != nil {
		return err
	}
	ensureID(rec)

	keys := []string{
		s.recordKey(rec.UserID, rec.DeviceID, rec.SecretHash),
		s.deviceKey(rec.UserID, rec.DeviceID),
	}
	args := []interface{}{
		rec.ID,
		rec.UserID,
		rec.DeviceID,
		rec.SecretHash,
		formatMillis(rec.CreatedAt),
		formatMillis(rec.ExpiresAt),
		formatBool(rec.Used),
		formatOptionalMillis(rec.UsedAt),
		formatBool(rec.Revoked),
		formatOptionalMillis(rec.RevokedAt),
		rec.ParentHash,
	}
	if rec.ParentHash != "" {
		keys = append(keys, s.recordKey(rec.UserID, rec.DeviceID, rec.ParentHash))
	}

	status, err := insertLua.Run(ctx, s.redis, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch status {
	case insertStatusInserted:
		return nil
	case insertStatusExists:
		return ErrDuplicate
	case insertStatusParentRevoked:
		return ErrParentRevoked
	default:
		return fmt.Errorf("%w: unexpected insert status %d", ErrStoreUnavailable, status)
	}
}

// MarkUsed runs the conditional flip as a Lua script.
func (s *RedisStore) MarkUsed(ctx context.Context, userID, deviceID, secretHash string, at time.Time) error {
	status, err := markUsedLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(userID, deviceID, secretHash)},
		formatMillis(at),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch status {
	case markStatusMarked:
		return nil
	case markStatusRevoked:
		return ErrRevoked
	case markStatusUsed:
		return ErrAlreadyUsed
	case markStatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: unexpected mark status %d", ErrStoreUnavailable, status)
	}
}

// RevokeDevice walks the device index inside one script.
func (s *RedisStore) RevokeDevice(ctx context.Context, userID, deviceID string, at time.Time) (int, error) {
	n, err := revokeDeviceLua.Run(
		ctx,
		s.redis,
		[]string{s.deviceKey(userID, deviceID)},
		s.recordPrefix(userID, deviceID),
		formatMillis(at),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// ListDevice reads the device index and pipelines one HGETALL per record.
func (s *RedisStore) ListDevice(ctx context.Context, userID, deviceID string) ([]Record, error) {
	hashes, err := s.redis.SMembers(ctx, s.deviceKey(userID, deviceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(hashes) == 0 {
		return []Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	for i, hash := range hashes {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(userID, deviceID, hash))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]Record, 0, len(cmds))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRecordFields(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func decodeRecordFields(fields map[string]string) (Record, error) {
	rec := Record{
		ID:         fields["id"],
		UserID:     fields["user_id"],
		DeviceID:   fields["device_id"],
		SecretHash: fields["secret_hash"],
		ParentHash: fields["parent_hash"],
		Used:       fields["used"] == "1",
		Revoked:    fields["revoked"] == "1",
	}

	var err error
	if rec.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return Record{}, err
	}
	if rec.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return Record{}, err
	}
	if rec.UsedAt, err = parseOptionalMillis(fields["used_at"]); err != nil {
		return Record{}, err
	}
	if rec.RevokedAt, err = parseOptionalMillis(fields["revoked_at"]); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func formatOptionalMillis(t *time.Time) string {
	if t == nil {
		return "0"
	}
	return formatMillis(*t)
}

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("refresh record corrupt: %w", err)
	}
	return time.UnixMilli(ms), nil
}

func parseOptionalMillis(raw string) (*time.Time, error) {
	if raw == "" || raw == "0" {
		return nil, nil
	}
	t, err := parseMillis(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
