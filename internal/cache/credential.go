package cache

import (
	"context"
	"strings"

	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/upstream"
)

// CredentialStore 基于 Redis 哈希的代下单账号凭证存储
// 凭证由外部登录服务写入，这里只读
type CredentialStore struct {
	cache *RedisCache
	hash  string
}

// NewCredentialStore 创建凭证存储
func NewCredentialStore(cache *RedisCache) *CredentialStore {
	return &CredentialStore{cache: cache, hash: constants.CacheKeySexyteaTokenAccount}
}

// GetCredential 按 open id 读取凭证，不存在返回 nil
func (s *CredentialStore) GetCredential(ctx context.Context, proxyOpenID string) (*upstream.Credential, error) {
	openID := strings.TrimSpace(proxyOpenID)
	if s == nil || openID == "" {
		return nil, nil
	}
	var cred upstream.Credential
	hit, err := s.cache.HGetJSON(ctx, s.hash, openID, &cred)
	if err != nil || !hit {
		return nil, err
	}
	return &cred, nil
}

// PutCredential 写入凭证，供联调与测试使用
func (s *CredentialStore) PutCredential(ctx context.Context, proxyOpenID string, cred upstream.Credential) error {
	if s == nil {
		return nil
	}
	return s.cache.HSetJSON(ctx, s.hash, strings.TrimSpace(proxyOpenID), cred)
}
