// Package envelope 实现多接收方加密信封
//
// 明文先规范化并计算内容摘要，再用随机 256 位对称密钥做 AES-256-GCM 加密；
// 对称密钥（而非明文）分别用每个接收方的 secp256k1 公钥做 ECIES 封装。
// 信封创建后不可变，追加接收方会产生新的信封值。
package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/canonical"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/clock"
	clockiface "github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/keystore"
)

const (
	// VersionLegacy 历史格式：接收方密钥为 {iv, ephemPublicKey, ciphertext, mac} 对象
	VersionLegacy uint = 1
	// VersionCurrent 当前格式：接收方密钥为 go-ethereum ECIES 密文
	VersionCurrent uint = 2

	// AlgoAES256GCM 内容加密算法标识
	AlgoAES256GCM = "AES-256-GCM"

	keySize = 32
	ivSize  = 12
	tagSize = 16
)

// 错误定义
var (
	ErrUnknownRecipient   = errors.New("信封中不存在该接收方")
	ErrDecryptionFailed   = errors.New("解密失败")
	ErrIntegrity          = errors.New("内容摘要不一致")
	ErrUnsupportedVersion = errors.New("不支持的信封版本")
	ErrNoRecipients       = errors.New("至少需要一个接收方")
	ErrInvalidPublicKey   = errors.New("无效的公钥")
	ErrMalformed          = errors.New("信封格式错误")
)

// Envelope 加密信封
type Envelope struct {
	Version       uint           `json:"version"`
	Ciphertext    []byte         `json:"ciphertext"`
	Encryption    Encryption     `json:"encryption"`
	Recipients    []RecipientKey `json:"recipients"`
	ContentDigest common.Hash    `json:"contentDigest"`
	CreatedAt     int64          `json:"createdAt"`
}

// Encryption 内容加密参数
type Encryption struct {
	AES AESParams `json:"aes"`
}

// AESParams AES-GCM 参数
type AESParams struct {
	IV   []byte `json:"iv"`
	Tag  []byte `json:"tag"`
	Algo string `json:"algo"`
}

// RecipientKey 单个接收方的封装密钥
//
// EncryptedKey 的内部格式由信封版本决定。
type RecipientKey struct {
	Address      common.Address `json:"address"`
	EncryptedKey hexutil.Bytes  `json:"encryptedKey"`
}

// Recipient 按地址查找接收方
func (e *Envelope) Recipient(addr common.Address) (RecipientKey, bool) {
	for _, r := range e.Recipients {
		if r.Address == addr {
			return r, true
		}
	}
	return RecipientKey{}, false
}

// Addresses 返回全部接收方地址
func (e *Envelope) Addresses() []common.Address {
	out := make([]common.Address, len(e.Recipients))
	for i, r := range e.Recipients {
		out[i] = r.Address
	}
	return out
}

func (e *Envelope) clone() *Envelope {
	c := *e
	c.Ciphertext = append([]byte(nil), e.Ciphertext...)
	c.Encryption.AES.IV = append([]byte(nil), e.Encryption.AES.IV...)
	c.Encryption.AES.Tag = append([]byte(nil), e.Encryption.AES.Tag...)
	c.Recipients = make([]RecipientKey, len(e.Recipients))
	for i, r := range e.Recipients {
		c.Recipients[i] = RecipientKey{Address: r.Address, EncryptedKey: append(hexutil.Bytes(nil), r.EncryptedKey...)}
	}
	return &c
}

// Service 信封加密服务
type Service struct {
	clock    clockiface.Clock
	rand     io.Reader
	resolver keystore.Resolver
	logger   log.Logger
}

// Option 服务选项
type Option func(*Service)

// WithClock 指定时间源
func WithClock(c clockiface.Clock) Option { return func(s *Service) { s.clock = c } }

// WithRand 指定随机源
func WithRand(r io.Reader) Option { return func(s *Service) { s.rand = r } }

// WithResolver 指定接收方公钥解析器
func WithResolver(r keystore.Resolver) Option { return func(s *Service) { s.resolver = r } }

// WithLogger 指定日志记录器
func WithLogger(l log.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService 创建信封服务
func NewService(opts ...Option) *Service {
	s := &Service{
		clock: clock.NewSystemClock(),
		rand:  rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seal 为一组接收方加密明文
//
// 参数：
//   - plaintext: 任意可 JSON 序列化的值，加密的是其规范化文本
//   - recipients: 接收方公钥，同一地址只封装一次
//
// 返回：当前版本的信封
func (s *Service) Seal(plaintext interface{}, recipients []*ecdsa.PublicKey) (*Envelope, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	canon, err := canonical.Canonicalize(plaintext)
	if err != nil {
		return nil, fmt.Errorf("规范化明文失败: %w", err)
	}
	digest := canonical.Keccak256([]byte(canon))

	key := make([]byte, keySize)
	if _, err := io.ReadFull(s.rand, key); err != nil {
		return nil, fmt.Errorf("生成对称密钥失败: %w", err)
	}
	defer wipe(key)

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(s.rand, iv); err != nil {
		return nil, fmt.Errorf("生成IV失败: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, iv, []byte(canon), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	wrapped, err := s.wrapKey(key, recipients, nil)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Version:    VersionCurrent,
		Ciphertext: ct,
		Encryption: Encryption{AES: AESParams{
			IV:   iv,
			Tag:  append([]byte(nil), tag...),
			Algo: AlgoAES256GCM,
		}},
		Recipients:    wrapped,
		ContentDigest: digest,
		CreatedAt:     s.clock.UnixMilli(),
	}
	if s.logger != nil {
		s.logger.Debugf("信封已封装: digest=%s recipients=%d", digest.Hex(), len(wrapped))
	}
	return env, nil
}

// SealFor 通过公钥解析器查找接收方公钥后加密
func (s *Service) SealFor(ctx context.Context, plaintext interface{}, addrs []common.Address) (*Envelope, error) {
	if s.resolver == nil {
		return nil, errors.New("未配置接收方公钥解析器")
	}
	pubs := make([]*ecdsa.PublicKey, 0, len(addrs))
	for _, addr := range addrs {
		pub, err := s.resolver.PublicKey(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("解析接收方 %s 公钥失败: %w", addr.Hex(), err)
		}
		pubs = append(pubs, pub)
	}
	return s.Seal(plaintext, pubs)
}

// Reshare 在不修改原信封的前提下，为新的接收方生成包含其密钥的新信封
//
// holder 必须是原信封的接收方；原信封必须能通过完整性校验。
func (s *Service) Reshare(env *Envelope, holder *ecdsa.PrivateKey, add []*ecdsa.PublicKey) (*Envelope, error) {
	if env == nil {
		return nil, ErrMalformed
	}
	if env.Version != VersionCurrent {
		return nil, fmt.Errorf("%w: 历史版本 %d 需要重新封装", ErrUnsupportedVersion, env.Version)
	}
	if len(add) == 0 {
		return nil, ErrNoRecipients
	}

	_, key, err := open(env, holder)
	if err != nil {
		return nil, err
	}
	defer wipe(key)

	seen := make(map[common.Address]bool, len(env.Recipients))
	for _, r := range env.Recipients {
		seen[r.Address] = true
	}
	extra, err := s.wrapKey(key, add, seen)
	if err != nil {
		return nil, err
	}

	out := env.clone()
	out.Recipients = append(out.Recipients, extra...)
	out.CreatedAt = s.clock.UnixMilli()
	return out, nil
}

func (s *Service) wrapKey(key []byte, pubs []*ecdsa.PublicKey, seen map[common.Address]bool) ([]RecipientKey, error) {
	if seen == nil {
		seen = make(map[common.Address]bool, len(pubs))
	}
	out := make([]RecipientKey, 0, len(pubs))
	for _, pub := range pubs {
		if pub == nil || pub.X == nil || pub.Y == nil {
			return nil, ErrInvalidPublicKey
		}
		addr := gethcrypto.PubkeyToAddress(*pub)
		if seen[addr] {
			continue
		}
		seen[addr] = true

		blob, err := ecies.Encrypt(s.rand, ecies.ImportECDSAPublic(pub), key, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("为接收方 %s 封装密钥失败: %w", addr.Hex(), err)
		}
		out = append(out, RecipientKey{Address: addr, EncryptedKey: blob})
	}
	return out, nil
}

// Open 用私钥打开信封，返回规范化明文
//
// 失败情况：
//   - ErrUnknownRecipient: 私钥对应地址不在接收方列表中
//   - ErrDecryptionFailed: 密钥解封失败或 GCM 认证标签不匹配
//   - ErrIntegrity: 解密成功但摘要与 contentDigest 不一致
func Open(env *Envelope, priv *ecdsa.PrivateKey) ([]byte, error) {
	plaintext, key, err := open(env, priv)
	if err != nil {
		return nil, err
	}
	wipe(key)
	return plaintext, nil
}

// OpenInto 打开信封并把 JSON 明文解码到 out
func OpenInto(env *Envelope, priv *ecdsa.PrivateKey, out interface{}) error {
	plaintext, err := Open(env, priv)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, out)
}

func open(env *Envelope, priv *ecdsa.PrivateKey) ([]byte, []byte, error) {
	if env == nil || priv == nil {
		return nil, nil, ErrMalformed
	}
	addr := gethcrypto.PubkeyToAddress(priv.PublicKey)
	rk, ok := env.Recipient(addr)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownRecipient, addr.Hex())
	}

	key, err := unwrapKey(env.Version, rk.EncryptedKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: 解封对称密钥: %v", ErrDecryptionFailed, err)
	}

	aesParams := env.Encryption.AES
	if aesParams.Algo != "" && aesParams.Algo != AlgoAES256GCM {
		wipe(key)
		return nil, nil, fmt.Errorf("%w: 不支持的算法 %s", ErrMalformed, aesParams.Algo)
	}
	if len(aesParams.IV) != ivSize || len(aesParams.Tag) != tagSize {
		wipe(key)
		return nil, nil, fmt.Errorf("%w: IV或认证标签长度错误", ErrDecryptionFailed)
	}
	gcm, err := newGCM(key)
	if err != nil {
		wipe(key)
		return nil, nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+tagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, aesParams.Tag...)
	plaintext, err := gcm.Open(nil, aesParams.IV, sealed, nil)
	if err != nil {
		wipe(key)
		return nil, nil, fmt.Errorf("%w: 认证标签校验失败", ErrDecryptionFailed)
	}

	if err := verifyDigest(env, plaintext); err != nil {
		wipe(key)
		return nil, nil, err
	}
	return plaintext, key, nil
}

func unwrapKey(version uint, encryptedKey []byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	var (
		key []byte
		err error
	)
	switch version {
	case VersionCurrent:
		key, err = ecies.ImportECDSA(priv).Decrypt(encryptedKey, nil, nil)
	case VersionLegacy:
		key, err = unwrapLegacyKey(encryptedKey, priv)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if err != nil {
		return nil, err
	}
	if len(key) != keySize {
		wipe(key)
		return nil, fmt.Errorf("对称密钥长度错误: %d", len(key))
	}
	return key, nil
}

// verifyDigest 重新计算明文摘要并与信封声明的摘要比较
//
// 历史版本允许缺失 contentDigest，此时跳过比较；历史明文也可能不是 JSON。
func verifyDigest(env *Envelope, plaintext []byte) error {
	var got common.Hash
	if env.Version == VersionCurrent {
		h, err := canonical.DigestJSON(plaintext)
		if err != nil {
			return fmt.Errorf("%w: 明文不是合法的规范化内容: %v", ErrIntegrity, err)
		}
		got = h
	} else {
		if env.ContentDigest == (common.Hash{}) {
			return nil
		}
		got = canonical.DigestBytes(plaintext)
	}
	if got != env.ContentDigest {
		return fmt.Errorf("%w: 期望 %s, 实际 %s", ErrIntegrity, env.ContentDigest.Hex(), got.Hex())
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("创建AES密码块失败: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("创建GCM模式失败: %w", err)
	}
	return gcm, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
