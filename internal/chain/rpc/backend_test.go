package rpc

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/accounts"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/artifacts"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/chain"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/vault"
)

// MockEthClient is a mock implementation of EthClient.
type MockEthClient struct {
	mock.Mock
}

func (m *MockEthClient) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockEthClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	args := m.Called(ctx, account, blockNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Header), args.Error(1)
}

func (m *MockEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockEthClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockEthClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, call, blockNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Receipt), args.Error(1)
}

func (m *MockEthClient) Close() {
	m.Called()
}

// MockRawCaller is a mock implementation of RawCaller.
type MockRawCaller struct {
	mock.Mock
}

func (m *MockRawCaller) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	called := m.Called(ctx, method, args)
	return called.Error(0)
}

// dataError mimics the JSON-RPC error a node returns for a reverted call.
type dataError struct {
	msg  string
	data interface{}
}

func (e *dataError) Error() string          { return e.msg }
func (e *dataError) ErrorData() interface{} { return e.data }

func encodeRevert(t *testing.T, reason string) string {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

func revertErr(t *testing.T, reason string) error {
	return &dataError{msg: "execution reverted", data: encodeRevert(t, reason)}
}

var testChainID = big.NewInt(31337)

func newTestBackend(t *testing.T, client *MockEthClient, raw RawCaller, artifact *artifacts.ContractArtifact) (*Backend, *accounts.Keyring) {
	t.Helper()
	keys, err := accounts.NewKeyring(accounts.DefaultTestMnemonic, accounts.DefaultBasePath, 3, testChainID)
	require.NoError(t, err)

	client.On("ChainID", mock.Anything).Return(big.NewInt(31337), nil).Once()

	b, err := New(context.Background(), client, raw, Config{
		ChainID:        testChainID,
		Artifact:       artifact,
		Keys:           keys,
		ReceiptTimeout: time.Second,
		PollInterval:   time.Millisecond,
	})
	require.NoError(t, err)
	return b, keys
}

func testHandle(owner common.Address) *chain.Handle {
	return &chain.Handle{
		Address:    common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Owner:      owner,
		UnlockTime: time.Unix(1_700_000_000, 0),
		Value:      big.NewInt(1_000_000_000),
	}
}

func TestRevertReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   string
		wantOK bool
	}{
		{
			name:   "revert data",
			err:    &dataError{msg: "execution reverted", data: encodeRevert(t, vault.ReasonTooEarly)},
			want:   vault.ReasonTooEarly,
			wantOK: true,
		},
		{
			name:   "wrapped revert data",
			err:    errors.Join(errors.New("estimate"), revertErr(t, vault.ReasonNotOwner)),
			want:   vault.ReasonNotOwner,
			wantOK: true,
		},
		{
			name:   "reason in message only",
			err:    errors.New("VM Exception while processing transaction: execution reverted: Nothing to withdraw"),
			want:   vault.ReasonAlreadyReleased,
			wantOK: true,
		},
		{
			name:   "unrelated error",
			err:    errors.New("connection refused"),
			wantOK: false,
		},
		{
			name:   "nil",
			err:    nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := revertReason(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_ChainIDMismatch(t *testing.T) {
	client := new(MockEthClient)
	client.On("ChainID", mock.Anything).Return(big.NewInt(1), nil)

	_, err := New(context.Background(), client, nil, Config{ChainID: testChainID})
	assert.ErrorIs(t, err, ErrChainIDMismatch)
}

func TestOwnerAndUnlockTime(t *testing.T) {
	client := new(MockEthClient)
	b, keys := newTestBackend(t, client, nil, nil)
	owner := keys.Addresses()[0]
	h := testHandle(owner)

	lockABI, err := artifacts.Lock()
	require.NoError(t, err)
	ownerOut, err := lockABI.Methods[artifacts.MethodOwner].Outputs.Pack(owner)
	require.NoError(t, err)
	unlockOut, err := lockABI.Methods[artifacts.MethodUnlockTime].Outputs.Pack(big.NewInt(h.UnlockTime.Unix()))
	require.NoError(t, err)

	client.On("CallContract", mock.Anything, mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		return string(msg.Data) == string(lockABI.Methods[artifacts.MethodOwner].ID)
	}), (*big.Int)(nil)).Return(ownerOut, nil)
	client.On("CallContract", mock.Anything, mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		return string(msg.Data) == string(lockABI.Methods[artifacts.MethodUnlockTime].ID)
	}), (*big.Int)(nil)).Return(unlockOut, nil)

	gotOwner, err := b.Owner(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, owner, gotOwner)

	gotUnlock, err := b.UnlockTime(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, h.UnlockTime.Equal(gotUnlock))
}

func TestOwner_NoCode(t *testing.T) {
	client := new(MockEthClient)
	b, keys := newTestBackend(t, client, nil, nil)
	client.On("CallContract", mock.Anything, mock.Anything, mock.Anything).Return([]byte{}, nil)

	_, err := b.Owner(context.Background(), testHandle(keys.Addresses()[0]))
	assert.ErrorIs(t, err, chain.ErrUnknownContract)
}

func TestWithdraw_SimulatedRevertIsNotBroadcast(t *testing.T) {
	client := new(MockEthClient)
	b, keys := newTestBackend(t, client, nil, nil)
	owner := keys.Addresses()[0]

	client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(0), revertErr(t, vault.ReasonTooEarly))

	receipt, err := b.Withdraw(context.Background(), testHandle(owner), owner)
	require.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrTooEarly)
	require.NotNil(t, receipt)
	assert.Equal(t, chain.StatusReverted, receipt.Status)
	assert.Equal(t, vault.ReasonTooEarly, receipt.RevertReason)
	assert.Equal(t, common.Hash{}, receipt.TxHash)

	client.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestWithdraw_Success(t *testing.T) {
	client := new(MockEthClient)
	b, keys := newTestBackend(t, client, nil, nil)
	owner := keys.Addresses()[0]
	h := testHandle(owner)

	lockABI, err := artifacts.Lock()
	require.NoError(t, err)
	when := time.Unix(1_700_000_010, 0)
	wlog, err := artifacts.EncodeWithdrawalLog(lockABI, h.Address, h.Value, when)
	require.NoError(t, err)

	txHash := common.HexToHash("0xabc")
	client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(30_000), nil)
	client.On("PendingNonceAt", mock.Anything, owner).Return(uint64(1), nil)
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	client.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *types.Transaction) bool {
		return tx.Gas() == 36_000 && tx.Nonce() == 1 && *tx.To() == h.Address
	})).Return(nil)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      txHash,
		BlockNumber: big.NewInt(3),
		Logs:        []*types.Log{wlog},
	}, nil)

	receipt, err := b.Withdraw(context.Background(), h, owner)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, txHash, receipt.TxHash)
	assert.Equal(t, uint64(3), receipt.BlockNumber)
	require.Len(t, receipt.Withdrawals, 1)
	assert.Equal(t, 0, h.Value.Cmp(receipt.Withdrawals[0].Amount))
	assert.True(t, when.Equal(receipt.Withdrawals[0].When))

	client.AssertExpectations(t)
}

func TestWithdraw_MinedRevertRecoversReason(t *testing.T) {
	client := new(MockEthClient)
	b, keys := newTestBackend(t, client, nil, nil)
	owner := keys.Addresses()[0]
	other := keys.Addresses()[1]

	txHash := common.HexToHash("0xdef")
	client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(30_000), nil)
	client.On("PendingNonceAt", mock.Anything, other).Return(uint64(0), nil)
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1), nil)
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
		Status:      types.ReceiptStatusFailed,
		TxHash:      txHash,
		BlockNumber: big.NewInt(4),
	}, nil)
	client.On("CallContract", mock.Anything, mock.Anything, big.NewInt(4)).
		Return(nil, errors.New("execution reverted: You aren't the owner"))

	receipt, err := b.Withdraw(context.Background(), testHandle(owner), other)
	assert.ErrorIs(t, err, vault.ErrNotOwner)
	require.NotNil(t, receipt)
	assert.Equal(t, txHash, receipt.TxHash)
	assert.Equal(t, chain.StatusReverted, receipt.Status)
}

func TestWithdraw_UnknownSigner(t *testing.T) {
	client := new(MockEthClient)
	b, keys := newTestBackend(t, client, nil, nil)

	stranger := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	_, err := b.Withdraw(context.Background(), testHandle(keys.Addresses()[0]), stranger)
	assert.ErrorIs(t, err, accounts.ErrUnknownAccount)
}

func TestDeploy_NoArtifact(t *testing.T) {
	client := new(MockEthClient)
	b, keys := newTestBackend(t, client, nil, nil)

	_, err := b.Deploy(context.Background(), chain.DeployRequest{
		From:       keys.Addresses()[0],
		UnlockTime: time.Now().Add(time.Hour),
		Value:      big.NewInt(1),
	})
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func testArtifact(t *testing.T) *artifacts.ContractArtifact {
	t.Helper()
	a, err := artifacts.Parse([]byte(`{"contractName":"Lock","abi":` + artifacts.LockABI + `,"bytecode":"0x6080604052"}`))
	require.NoError(t, err)
	return a
}

func TestDeploy_Success(t *testing.T) {
	client := new(MockEthClient)
	b, keys := newTestBackend(t, client, nil, testArtifact(t))
	owner := keys.Addresses()[0]
	unlock := time.Unix(1_800_000_000, 0)
	contract := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	client.On("EstimateGas", mock.Anything, mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		if msg.To != nil || msg.Value.Cmp(big.NewInt(1_000_000_000)) != 0 || len(msg.Data) < 32 {
			return false
		}
		arg := new(big.Int).SetBytes(msg.Data[len(msg.Data)-32:])
		return arg.Int64() == unlock.Unix()
	})).Return(uint64(200_000), nil)
	client.On("PendingNonceAt", mock.Anything, owner).Return(uint64(0), nil)
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	client.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *types.Transaction) bool {
		return tx.To() == nil && tx.Gas() == 240_000
	})).Return(nil)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
		Status:          types.ReceiptStatusSuccessful,
		TxHash:          common.HexToHash("0x01"),
		ContractAddress: contract,
		BlockNumber:     big.NewInt(1),
	}, nil)
	client.On("HeaderByNumber", mock.Anything, big.NewInt(1)).Return(&types.Header{Time: 1_700_000_000}, nil)

	h, err := b.Deploy(context.Background(), chain.DeployRequest{
		From:       owner,
		UnlockTime: unlock.Add(750 * time.Millisecond),
		Value:      big.NewInt(1_000_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, contract, h.Address)
	assert.Equal(t, owner, h.Owner)
	assert.True(t, unlock.Equal(h.UnlockTime), "unlock time is kept in whole seconds")
	assert.Equal(t, uint64(1), h.BlockNumber)
	assert.Equal(t, int64(1_700_000_000), h.DeployedAt.Unix())
}

func TestDeploy_UnlockTimeNotInFuture(t *testing.T) {
	client := new(MockEthClient)
	b, keys := newTestBackend(t, client, nil, testArtifact(t))

	client.On("EstimateGas", mock.Anything, mock.Anything).
		Return(uint64(0), revertErr(t, vault.ReasonInvalidUnlockTime))

	_, err := b.Deploy(context.Background(), chain.DeployRequest{
		From:       keys.Addresses()[0],
		UnlockTime: time.Unix(1, 0),
		Value:      big.NewInt(1),
	})
	assert.ErrorIs(t, err, vault.ErrInvalidUnlockTime)
}

func TestIncreaseTime(t *testing.T) {
	client := new(MockEthClient)
	raw := new(MockRawCaller)
	b, _ := newTestBackend(t, client, raw, nil)

	raw.On("CallContext", mock.Anything, "evm_increaseTime", []interface{}{int64(3600)}).Return(nil)
	raw.On("CallContext", mock.Anything, "evm_mine", []interface{}(nil)).Return(nil)
	client.On("HeaderByNumber", mock.Anything, (*big.Int)(nil)).Return(&types.Header{Time: 1_700_003_600}, nil)

	now, err := b.IncreaseTime(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_003_600), now.Unix())
	raw.AssertExpectations(t)
}

func TestIncreaseTime_RejectsPartialSeconds(t *testing.T) {
	client := new(MockEthClient)
	raw := new(MockRawCaller)
	b, _ := newTestBackend(t, client, raw, nil)

	for _, d := range []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond, -time.Second} {
		_, err := b.IncreaseTime(context.Background(), d)
		assert.ErrorIs(t, err, chain.ErrInvalidTimeStep, d.String())
	}
	raw.AssertNotCalled(t, "CallContext", mock.Anything, mock.Anything, mock.Anything)
}

func TestIncreaseTime_Unsupported(t *testing.T) {
	client := new(MockEthClient)
	b, _ := newTestBackend(t, client, nil, nil)

	_, err := b.IncreaseTime(context.Background(), time.Hour)
	assert.Error(t, err)
}

func TestWaitForReceipt_PollsUntilMined(t *testing.T) {
	client := new(MockEthClient)
	b, _ := newTestBackend(t, client, nil, nil)
	txHash := common.HexToHash("0x02")

	client.On("TransactionReceipt", mock.Anything, txHash).Return(nil, ethereum.NotFound).Twice()
	client.On("TransactionReceipt", mock.Anything, txHash).Return(&types.Receipt{TxHash: txHash}, nil).Once()

	receipt, err := b.waitForReceipt(context.Background(), txHash)
	require.NoError(t, err)
	assert.Equal(t, txHash, receipt.TxHash)
	client.AssertNumberOfCalls(t, "TransactionReceipt", 3)
}

func TestWaitForReceipt_ClientError(t *testing.T) {
	client := new(MockEthClient)
	b, _ := newTestBackend(t, client, nil, nil)
	boom := errors.New("connection refused")

	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, boom)

	_, err := b.waitForReceipt(context.Background(), common.HexToHash("0x02"))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrReceiptTimeout)
}

func TestWaitForReceipt_CallerCanceled(t *testing.T) {
	client := new(MockEthClient)
	b, _ := newTestBackend(t, client, nil, nil)

	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.waitForReceipt(ctx, common.HexToHash("0x02"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForReceipt_Timeout(t *testing.T) {
	client := new(MockEthClient)
	b, _ := newTestBackend(t, client, nil, nil)
	b.cfg.ReceiptTimeout = 20 * time.Millisecond

	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)

	_, err := b.waitForReceipt(context.Background(), common.HexToHash("0x02"))
	assert.ErrorIs(t, err, ErrReceiptTimeout)
}
