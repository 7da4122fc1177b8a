package main

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/evidence-anchor/internal/cli/ui"
)

// readInput 读取文件内容，"-" 表示标准输入
func (e *cliEnv) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(e.stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	return data, nil
}

// writeOutput 写入文件，"-" 或空表示标准输出
func (e *cliEnv) writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := e.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return nil
}

// loadPrivateKey 读取私钥
//
// keyFile 为 "-" 时从标准输入读取第一行；为空时在终端中提示输入；否则读取文件。
func (e *cliEnv) loadPrivateKey(keyFile string) (*ecdsa.PrivateKey, error) {
	var (
		raw string
		err error
	)
	switch keyFile {
	case "-":
		raw, err = ui.ReadSecretLine(e.stdin)
	case "":
		raw, err = ui.PromptSecret("请输入私钥(hex)")
		if errors.Is(err, ui.ErrNotTerminal) {
			return nil, errors.New("未指定 --key-file 且无法交互输入私钥")
		}
	default:
		var f *os.File
		if f, err = os.Open(keyFile); err != nil {
			return nil, fmt.Errorf("打开私钥文件失败: %w", err)
		}
		defer f.Close()
		raw, err = ui.ReadSecretLine(f)
	}
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("私钥格式无效: %w", err)
	}
	return key, nil
}

// parseAddresses 解析地址列表
func parseAddresses(values []string) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("无效地址: %q", v)
		}
		addrs = append(addrs, common.HexToAddress(v))
	}
	return addrs, nil
}

// parseHash 解析 32 字节十六进制哈希
func parseHash(s string) (common.Hash, error) {
	b, err := hexBytes(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("无效哈希: %q", s)
	}
	return common.BytesToHash(b), nil
}

// hexBytes 解析十六进制，0x 前缀可省略
func hexBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
