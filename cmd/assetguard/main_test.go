package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/assetguard/pkg/auth"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/erc20"
)

const (
	usdc  = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	agent = "0x00000000000000000000000000000000000000b0"
	payee = "0x00000000000000000000000000000000000000b1"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	doc := fmt.Sprintf(`
schema_version: "1.0.0"
log_level: error
owner: "0x00000000000000000000000000000000000000a1"
wallet:
  address: "0x00000000000000000000000000000000000000c0"
targets:
  - address: %q
    family: erc20
whitelist:
  sender: [%q]
  asset: [%q]
  receiver: [%q]
store:
  driver: sqlite
  dsn: %q
events:
  audit: true
api:
  jwt_secret: cli-test-secret
`, usdc, agent, usdc, payee, filepath.Join(dir, "registry.db"))
	path := filepath.Join(dir, "assetguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func transfer(t *testing.T, to string) string {
	t.Helper()
	data, err := erc20.PackTransfer(common.HexToAddress(to), big.NewInt(5))
	require.NoError(t, err)
	return hexutil.Encode(data)
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Version(t *testing.T) {
	code, out, _ := run("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "assetguard dev")
}

func TestRun_CheckAllowed(t *testing.T) {
	cfg := writeConfig(t)
	code, out, stderr := run("check", "-c", cfg, "--sender", agent, "--target", usdc, "--data", transfer(t, payee))
	require.Equal(t, 0, code, stderr)

	var got checkOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Allowed)
	assert.Equal(t, "erc20.transfer", got.Kind)
	assert.Len(t, got.Checks, 2)
}

func TestRun_CheckDenied(t *testing.T) {
	cfg := writeConfig(t)
	stranger := "0x00000000000000000000000000000000000000dd"
	code, out, _ := run("check", "-c", cfg, "--sender", agent, "--target", usdc, "--data", transfer(t, stranger))
	assert.Equal(t, deniedExit, code)

	var got checkOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Allowed)
	assert.Equal(t, "RECEIVER_NOT_WHITELISTED", got.Code)
}

func TestRun_CheckSeedsPersist(t *testing.T) {
	cfg := writeConfig(t)
	for i := 0; i < 2; i++ {
		code, _, stderr := run("check", "-c", cfg, "--sender", agent, "--target", usdc, "--data", transfer(t, payee))
		require.Equal(t, 0, code, stderr)
	}
}

func TestRun_CheckBadFlags(t *testing.T) {
	cfg := writeConfig(t)
	code, _, stderr := run("check", "-c", cfg, "--sender", "nope", "--target", usdc, "--data", "0x")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "hex addresses")

	code, _, _ = run("check", "-c", cfg, "--sender", agent)
	assert.Equal(t, 1, code)
}

func TestRun_Token(t *testing.T) {
	cfg := writeConfig(t)
	code, out, stderr := run("token", "-c", cfg, "--address", agent, "--role", "agent")
	require.Equal(t, 0, code, stderr)

	p, err := auth.NewValidator([]byte("cli-test-secret")).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(agent), p.Address)
	assert.Equal(t, auth.RoleAgent, p.Role)

	code, _, _ = run("token", "-c", cfg, "--address", agent, "--role", "root")
	assert.Equal(t, 1, code)
}

func TestRun_MissingConfig(t *testing.T) {
	code, _, stderr := run("check", "-c", filepath.Join(t.TempDir(), "absent.yaml"),
		"--sender", agent, "--target", usdc, "--data", "0xa9059cbb")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "loading config")
}
