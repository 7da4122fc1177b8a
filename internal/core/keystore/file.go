package keystore

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/evidence-anchor/pkg/interfaces/keystore"
)

var _ keystore.Resolver = (*FileResolver)(nil)

// FileResolver 从 JSON 文件（地址 → 公钥十六进制）解析公钥
//
// 文件按修改时间懒加载，外部更新后下一次查询生效。
type FileResolver struct {
	path string

	mu      sync.Mutex
	modTime int64
	keys    map[string]string
}

// NewFileResolver 创建文件解析器，文件可以暂不存在
func NewFileResolver(path string) *FileResolver {
	return &FileResolver{path: path}
}

// PublicKey 实现 keystore.Resolver
func (r *FileResolver) PublicKey(ctx context.Context, addr common.Address) (*ecdsa.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys, err := r.load()
	if err != nil {
		return nil, err
	}
	hexKey, ok := keys[fieldFor(addr)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, addr.Hex())
	}
	return decodeKey(addr, hexKey)
}

// Register 登记公钥并原子写回文件
func (r *FileResolver) Register(pub *ecdsa.PublicKey) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.loadLocked()
	if err != nil {
		return common.Address{}, err
	}
	next := make(map[string]string, len(keys)+1)
	for k, v := range keys {
		next[k] = v
	}
	addr := addressOf(pub)
	next[fieldFor(addr)] = EncodeKey(pub)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return common.Address{}, err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return common.Address{}, fmt.Errorf("创建公钥目录失败: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return common.Address{}, fmt.Errorf("写入公钥文件失败: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return common.Address{}, fmt.Errorf("替换公钥文件失败: %w", err)
	}
	r.keys = nil
	r.modTime = 0
	return addr, nil
}

func (r *FileResolver) load() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *FileResolver) loadLocked() (map[string]string, error) {
	info, err := os.Stat(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取公钥文件失败: %w", err)
	}
	if r.keys != nil && info.ModTime().UnixNano() == r.modTime {
		return r.keys, nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("读取公钥文件失败: %w", err)
	}
	raw := map[string]string{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("解析公钥文件 %s 失败: %w", r.path, err)
	}
	keys := make(map[string]string, len(raw))
	for k, v := range raw {
		keys[strings.ToLower(strings.TrimSpace(k))] = v
	}
	r.keys = keys
	r.modTime = info.ModTime().UnixNano()
	return keys, nil
}
