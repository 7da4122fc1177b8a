package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Decode 解析信封 JSON，按 version 分派到对应版本的适配函数
//
// 缺失 version 字段的文档按历史版本处理。
func Decode(data []byte) (*Envelope, error) {
	var probe struct {
		Version *uint `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	version := VersionLegacy
	if probe.Version != nil && *probe.Version != 0 {
		version = *probe.Version
	}

	switch version {
	case VersionLegacy:
		return upgradeV1(data)
	case VersionCurrent:
		return decodeV2(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

// Encode 序列化信封，只允许写出当前版本
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, ErrMalformed
	}
	if env.Version != VersionCurrent {
		return nil, fmt.Errorf("%w: 只能写出版本 %d", ErrUnsupportedVersion, VersionCurrent)
	}
	return json.Marshal(env)
}

func decodeV2(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Encryption.AES.Algo != AlgoAES256GCM {
		return nil, fmt.Errorf("%w: 不支持的算法 %q", ErrMalformed, env.Encryption.AES.Algo)
	}
	if len(env.Encryption.AES.IV) != ivSize || len(env.Encryption.AES.Tag) != tagSize {
		return nil, fmt.Errorf("%w: IV或认证标签长度错误", ErrMalformed)
	}
	return &env, nil
}

// legacyEnvelope 版本1 的线上格式
type legacyEnvelope struct {
	Ciphertext string `json:"ciphertext"`
	Encryption struct {
		AES struct {
			IV   string `json:"iv"`
			Tag  string `json:"tag"`
			Algo string `json:"algo"`
		} `json:"aes"`
	} `json:"encryption"`
	Recipients    []legacyRecipient `json:"recipients"`
	ContentDigest string            `json:"contentDigest"`
	CreatedAt     int64             `json:"createdAt"`
}

type legacyRecipient struct {
	Address      string          `json:"address"`
	EncryptedKey json.RawMessage `json:"encryptedKey"`
}

// legacyKey 版本1 的接收方密钥对象，字段均为十六进制
type legacyKey struct {
	IV             string `json:"iv"`
	EphemPublicKey string `json:"ephemPublicKey"`
	Ciphertext     string `json:"ciphertext"`
	MAC            string `json:"mac"`
}

// upgradeV1 把版本1文档转换为内存中的信封
//
// 单个接收方的密钥对象无法解析时保留为空密钥，只影响该接收方解密。
func upgradeV1(data []byte) (*Envelope, error) {
	var doc legacyEnvelope
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ct, err := base64.StdEncoding.DecodeString(doc.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext 不是 base64: %v", ErrMalformed, err)
	}
	iv, err := base64.StdEncoding.DecodeString(doc.Encryption.AES.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: iv 不是 base64: %v", ErrMalformed, err)
	}
	tag, err := base64.StdEncoding.DecodeString(doc.Encryption.AES.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: tag 不是 base64: %v", ErrMalformed, err)
	}

	env := &Envelope{
		Version:    VersionLegacy,
		Ciphertext: ct,
		Encryption: Encryption{AES: AESParams{IV: iv, Tag: tag, Algo: doc.Encryption.AES.Algo}},
		CreatedAt:  doc.CreatedAt,
	}
	if env.Encryption.AES.Algo == "" {
		env.Encryption.AES.Algo = AlgoAES256GCM
	}
	if doc.ContentDigest != "" {
		b, err := hexutil.Decode(doc.ContentDigest)
		if err != nil || len(b) != common.HashLength {
			return nil, fmt.Errorf("%w: contentDigest 格式错误", ErrMalformed)
		}
		env.ContentDigest = common.BytesToHash(b)
	}

	for _, r := range doc.Recipients {
		if !common.IsHexAddress(r.Address) {
			return nil, fmt.Errorf("%w: 接收方地址 %q 无效", ErrMalformed, r.Address)
		}
		env.Recipients = append(env.Recipients, RecipientKey{
			Address:      common.HexToAddress(r.Address),
			EncryptedKey: packLegacyKey(r.EncryptedKey),
		})
	}
	return env, nil
}

// packLegacyKey 把版本1密钥对象打包为 iv ‖ ephemPublicKey(65) ‖ mac ‖ ciphertext
//
// 对象也可能以 JSON 字符串形式出现。解析失败返回 nil。
func packLegacyKey(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		raw = json.RawMessage(asString)
	}
	var k legacyKey
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil
	}

	iv, err1 := decodeHex(k.IV)
	ephem, err2 := decodeHex(k.EphemPublicKey)
	mac, err3 := decodeHex(k.MAC)
	ct, err4 := decodeHex(k.Ciphertext)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil
	}
	ephem, err := normalizePublicKey(ephem)
	if err != nil || len(iv) != ivSize || len(mac) != tagSize {
		return nil
	}

	out := make([]byte, 0, len(iv)+len(ephem)+len(mac)+len(ct))
	out = append(out, iv...)
	out = append(out, ephem...)
	out = append(out, mac...)
	return append(out, ct...)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hexutil.Decode("0x" + s)
}
