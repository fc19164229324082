package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminCallBackend(t *testing.T, client **Client, admin common.Address) func(ethereum.CallMsg, *big.Int) ([]byte, error) {
	return func(msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		return packOutputs(t, *client, "admin", admin), nil
	}
}

func TestAdminSenderPrefersConfiguredAddress(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend, testKeyHex)

	resolver := NewAdminResolver(client, testKeyAddress, nil)
	sender, err := resolver.AdminSender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testKeyAddress), sender)
}

func TestAdminSenderFallsBackToOnChainAdmin(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend, testKeyHex)
	backend.callFn = adminCallBackend(t, &client, common.HexToAddress(testKeyAddress))

	// Configured admin is not signable, on-chain admin is.
	resolver := NewAdminResolver(client, "0x0000000000000000000000000000000000000bad", nil)
	sender, err := resolver.AdminSender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testKeyAddress), sender)
}

func TestAdminSenderFallsBackToFirstImportedKey(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend, testKeyHex)
	backend.callFn = adminCallBackend(t, &client, common.HexToAddress("0x0000000000000000000000000000000000000bad"))

	resolver := NewAdminResolver(client, "", nil)
	sender, err := resolver.AdminSender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testKeyAddress), sender)
}

func TestAdminSenderFailsWithNoSigners(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)
	backend.callFn = adminCallBackend(t, &client, common.HexToAddress("0x0000000000000000000000000000000000000bad"))

	resolver := NewAdminResolver(client, "", nil)
	_, err := resolver.AdminSender(context.Background())

	var unavailable *SenderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "admin", unavailable.Label)
}

func TestRequireSenderNeverSubstitutes(t *testing.T) {
	client := newTestClient(t, &fakeBackend{}, testKeyHex)
	resolver := NewAdminResolver(client, testKeyAddress, nil)

	require.NoError(t, resolver.RequireSender(common.HexToAddress(testKeyAddress), "student"))

	err := resolver.RequireSender(common.HexToAddress("0x0000000000000000000000000000000000000bad"), "student")
	var unavailable *SenderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "student", unavailable.Label)
}

func TestEnsureAdminNoopWhenAlreadyAdmin(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend, testKeyHex)
	desired := common.HexToAddress(testKeyAddress)
	backend.callFn = adminCallBackend(t, &client, desired)

	resolver := NewAdminResolver(client, testKeyAddress, nil)
	result, err := resolver.EnsureAdmin(context.Background(), desired)
	require.NoError(t, err)
	assert.False(t, result.Rotated)
	assert.Equal(t, desired.Hex(), result.Current)
	assert.Empty(t, result.TxHash)
}

func TestEnsureAdminRotatesSignedByCurrentAdmin(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend, testKeyHex)
	current := common.HexToAddress(testKeyAddress)
	desired := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	backend.callFn = adminCallBackend(t, &client, current)

	var sent *types.Transaction
	backend.sendFn = func(tx *types.Transaction) error {
		sent = tx
		return nil
	}

	resolver := NewAdminResolver(client, "", nil)
	result, err := resolver.EnsureAdmin(context.Background(), desired)
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.True(t, result.Rotated)
	assert.Equal(t, current.Hex(), result.Previous)
	assert.Equal(t, desired.Hex(), result.Current)
	assert.Equal(t, sent.Hash().Hex(), result.TxHash)
}

func TestEnsureAdminFailsWhenCurrentAdminUnsignable(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend, testKeyHex)
	backend.callFn = adminCallBackend(t, &client, common.HexToAddress("0x0000000000000000000000000000000000000bad"))

	resolver := NewAdminResolver(client, "", nil)
	_, err := resolver.EnsureAdmin(context.Background(), common.HexToAddress(testKeyAddress))

	var unavailable *SenderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "current admin", unavailable.Label)
}
