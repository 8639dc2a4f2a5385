package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/evauthz"
)

// claimTagScript creates a user document and binds a tag to it unless the tag is
// already bound. Returns {1, id} when this call claimed the tag, {0, owner} when the
// tag was taken and {-1, ''} when the user id exists.
var claimTagScript = redis.NewScript(`
local owner = redis.call('GET', KEYS[1])
if owner then
  return {0, owner}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {-1, ''}
end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('SET', KEYS[1], ARGV[1])
return {1, ARGV[1]}
`)

// releaseTagsScript deletes each tag claim in KEYS still owned by ARGV[1].
var releaseTagsScript = redis.NewScript(`
for _, key in ipairs(KEYS) do
  if redis.call('GET', key) == ARGV[1] then
    redis.call('DEL', key)
  end
end
return 1
`)

// RedisIdentityStore keeps users as JSON documents (key: evauthz:{tenant}:user:{id})
// and tag claims as plain strings (key: evauthz:{tenant}:tag:{tag}).
type RedisIdentityStore struct {
	client *redis.Client
	prefix string
}

func NewRedisIdentityStore(client *redis.Client) *RedisIdentityStore {
	return &RedisIdentityStore{client: client, prefix: "evauthz"}
}

func (r *RedisIdentityStore) userKey(tenantID, userID string) string {
	return fmt.Sprintf("%s:%s:user:%s", r.prefix, tenantID, userID)
}

func (r *RedisIdentityStore) tagKey(tenantID, tagID string) string {
	return fmt.Sprintf("%s:%s:tag:%s", r.prefix, tenantID, tagID)
}

func (r *RedisIdentityStore) FindUserByTag(ctx context.Context, tenantID, tagID string) (*evauthz.User, error) {
	userID, err := r.client.Get(ctx, r.tagKey(tenantID, tagID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.FindUserByID(ctx, tenantID, userID)
}

func (r *RedisIdentityStore) FindUserByID(ctx context.Context, tenantID, userID string) (*evauthz.User, error) {
	raw, err := r.client.Get(ctx, r.userKey(tenantID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u evauthz.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", userID, err)
	}
	return &u, nil
}

func (r *RedisIdentityStore) CreateUserWithTag(ctx context.Context, user *evauthz.User, tagID string) (*evauthz.User, bool, error) {
	if user == nil || user.ID == "" {
		return nil, false, fmt.Errorf("create user: missing id")
	}
	doc := user.Clone()
	if !slices.Contains(doc.Tags, tagID) {
		doc.Tags = append(doc.Tags, tagID)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, false, err
	}
	keys := []string{r.tagKey(user.TenantID, tagID), r.userKey(user.TenantID, user.ID)}
	res, err := claimTagScript.Run(ctx, r.client, keys, user.ID, raw).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("claim tag: %w", err)
	}
	if len(res) != 2 {
		return nil, false, fmt.Errorf("claim tag: unexpected reply %v", res)
	}
	created, _ := res[0].(int64)
	if created < 0 {
		return nil, false, fmt.Errorf("create user %q: %w", user.ID, evauthz.ErrUserExists)
	}
	ownerID, _ := res[1].(string)
	owner, err := r.FindUserByID(ctx, user.TenantID, ownerID)
	if err != nil {
		return nil, false, err
	}
	return owner, created == 1, nil
}

func (r *RedisIdentityStore) SaveUser(ctx context.Context, user *evauthz.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("save user: missing id")
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	prev, err := r.FindUserByID(ctx, user.TenantID, user.ID)
	if err != nil {
		return err
	}
	if prev != nil {
		var stale []string
		for _, tag := range prev.Tags {
			if !slices.Contains(user.Tags, tag) {
				stale = append(stale, r.tagKey(user.TenantID, tag))
			}
		}
		if len(stale) > 0 {
			if err := releaseTagsScript.Run(ctx, r.client, stale, user.ID).Err(); err != nil {
				return fmt.Errorf("release tags: %w", err)
			}
		}
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.userKey(user.TenantID, user.ID), raw, 0)
	for _, tag := range user.Tags {
		pipe.Set(ctx, r.tagKey(user.TenantID, tag), user.ID, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}
