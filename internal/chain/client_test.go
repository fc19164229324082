package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyHex     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testKeyAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

type fakeBackend struct {
	callFn    func(msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	nonceFn   func(account common.Address) (uint64, error)
	sendFn    func(tx *types.Transaction) error
	receiptFn func(hash common.Hash) (*types.Receipt, error)
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callFn != nil {
		return f.callFn(msg, blockNumber)
	}
	return nil, errors.New("no call handler")
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	if f.nonceFn != nil {
		return f.nonceFn(account)
	}
	return 0, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendFn != nil {
		return f.sendFn(tx)
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.receiptFn != nil {
		return f.receiptFn(hash)
	}
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(7),
		GasUsed:     52_000,
		TxHash:      hash,
	}, nil
}

type fakeDataError struct {
	msg  string
	data string
}

func (e *fakeDataError) Error() string          { return e.msg }
func (e *fakeDataError) ErrorData() interface{} { return e.data }

func encodedRevert(t *testing.T, reason string) string {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return "0x08c379a0" + hex.EncodeToString(packed)
}

func newTestClient(t *testing.T, backend Backend, keys ...string) *Client {
	t.Helper()
	wallet, err := NewWallet(keys)
	require.NoError(t, err)

	client, err := NewClient(Options{
		Backend:      backend,
		Contract:     testContract,
		Wallet:       wallet,
		ChainID:      big.NewInt(1337),
		TxTimeout:    200 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		NonceRetries: 2,
	})
	require.NoError(t, err)
	return client
}

func packOutputs(t *testing.T, c *Client, method string, values ...interface{}) []byte {
	t.Helper()
	out, err := c.abi.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return out
}

func TestCallDecodesTeacherRecord(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)
	backend.callFn = func(msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		assert.Equal(t, testContract, *msg.To)
		return packOutputs(t, client, "teachers", "T-101", "Ada Lovelace", true), nil
	}

	record, err := client.TeacherByID(context.Background(), "T-101")
	require.NoError(t, err)
	assert.Equal(t, "T-101", record.TeacherID)
	assert.Equal(t, "Ada Lovelace", record.Name)
	assert.True(t, record.Registered)
}

func TestCallDecodesUnregisteredStudent(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)
	backend.callFn = func(ethereum.CallMsg, *big.Int) ([]byte, error) {
		return packOutputs(t, client, "students", common.Address{}, "", false), nil
	}

	record, err := client.StudentByWallet(context.Background(), common.HexToAddress(testKeyAddress))
	require.NoError(t, err)
	assert.False(t, record.Registered)
}

func TestCallDecodesFeedbackLog(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)

	student := common.HexToAddress(testKeyAddress)
	entries := []feedbackTuple{
		{
			StudentWallet: student,
			FacultyId:     "T-101",
			CourseId:      big.NewInt(42),
			Ratings:       [4]uint8{5, 4, 3, 5},
			TotalScore:    big.NewInt(17),
			Id:            big.NewInt(1),
			Comments:      "great course",
			Timestamp:     big.NewInt(1_700_000_000),
		},
	}
	backend.callFn = func(ethereum.CallMsg, *big.Int) ([]byte, error) {
		return packOutputs(t, client, "getAllFeedbacks", entries), nil
	}

	decoded, err := client.AllFeedback(context.Background())
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, int64(1), decoded[0].ID)
	assert.Equal(t, student, decoded[0].StudentWallet)
	assert.Equal(t, "T-101", decoded[0].TeacherID)
	assert.Equal(t, int64(42), decoded[0].CourseID)
	assert.Equal(t, [4]uint8{5, 4, 3, 5}, decoded[0].Ratings)
	assert.Equal(t, int64(17), decoded[0].TotalScore)
	assert.Equal(t, "great course", decoded[0].Comments)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), decoded[0].Timestamp)
}

func TestCallDecodesCourseIDs(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)
	backend.callFn = func(ethereum.CallMsg, *big.Int) ([]byte, error) {
		return packOutputs(t, client, "getAllCourseIds", []*big.Int{big.NewInt(1), big.NewInt(7)}), nil
	}

	ids, err := client.CourseIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 7}, ids)
}

func TestCourseTeachersStopsOnRevert(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)

	teachers := []string{"T-101", "T-202"}
	backend.callFn = func(msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		var courseID, index *big.Int
		values, err := client.abi.Methods["courseTeacherList"].Inputs.Unpack(msg.Data[4:])
		require.NoError(t, err)
		courseID = values[0].(*big.Int)
		index = values[1].(*big.Int)
		assert.Equal(t, int64(42), courseID.Int64())
		if index.Int64() >= int64(len(teachers)) {
			return nil, &fakeDataError{msg: "execution reverted", data: "0x"}
		}
		return packOutputs(t, client, "courseTeacherList", teachers[index.Int64()]), nil
	}

	got, err := client.CourseTeachers(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, teachers, got)
}

func TestSendConfirmsAndReportsReceipt(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend, testKeyHex)

	var sent *types.Transaction
	backend.sendFn = func(tx *types.Transaction) error {
		sent = tx
		return nil
	}

	result, err := client.AddTeacher(context.Background(), common.HexToAddress(testKeyAddress), "T-101", "Ada Lovelace")
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, uint64(300_000), sent.Gas())
	assert.Equal(t, sent.Hash().Hex(), result.TxHash)
	assert.Equal(t, uint64(7), result.BlockNumber)
	assert.Equal(t, uint64(52_000), result.GasUsed)
}

func TestSendSerializesNoncesPerSender(t *testing.T) {
	var mu sync.Mutex
	var nextNonce uint64
	usedNonces := make(map[uint64]int)

	backend := &fakeBackend{}
	backend.nonceFn = func(common.Address) (uint64, error) {
		mu.Lock()
		defer mu.Unlock()
		return nextNonce, nil
	}
	backend.sendFn = func(tx *types.Transaction) error {
		mu.Lock()
		defer mu.Unlock()
		if tx.Nonce() != nextNonce {
			return errors.New("nonce too low")
		}
		usedNonces[tx.Nonce()]++
		nextNonce++
		return nil
	}

	client := newTestClient(t, backend, testKeyHex)
	sender := common.HexToAddress(testKeyAddress)

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := client.AddCourse(context.Background(), sender, int64(n), "course")
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	assert.Len(t, usedNonces, workers)
	for nonce, count := range usedNonces {
		assert.Equalf(t, 1, count, "nonce %d reused", nonce)
	}
}

func TestSendRetriesNonceConflictWithFreshNonce(t *testing.T) {
	var nonceFetches, sends int
	backend := &fakeBackend{}
	backend.nonceFn = func(common.Address) (uint64, error) {
		nonceFetches++
		return uint64(nonceFetches), nil
	}
	backend.sendFn = func(tx *types.Transaction) error {
		sends++
		if sends == 1 {
			return errors.New("nonce too low")
		}
		assert.Equal(t, uint64(2), tx.Nonce())
		return nil
	}

	client := newTestClient(t, backend, testKeyHex)
	_, err := client.AddCourse(context.Background(), common.HexToAddress(testKeyAddress), 1, "course")
	require.NoError(t, err)
	assert.Equal(t, 2, nonceFetches)
}

func TestSendNonceConflictExhaustsRetries(t *testing.T) {
	backend := &fakeBackend{}
	backend.sendFn = func(*types.Transaction) error {
		return errors.New("replacement transaction underpriced")
	}

	client := newTestClient(t, backend, testKeyHex)
	_, err := client.AddCourse(context.Background(), common.HexToAddress(testKeyAddress), 1, "course")

	var conflict *NonceConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "addCourse", conflict.Method)
	assert.Equal(t, 2, conflict.Retries)
}

func TestSendClassifiesRevertFromProvider(t *testing.T) {
	backend := &fakeBackend{}
	backend.sendFn = func(*types.Transaction) error {
		return &fakeDataError{
			msg:  "execution reverted",
			data: encodedRevert(t, "Teacher already registered"),
		}
	}

	client := newTestClient(t, backend, testKeyHex)
	_, err := client.AddTeacher(context.Background(), common.HexToAddress(testKeyAddress), "T-101", "Ada")

	revert, ok := IsRevert(err)
	require.True(t, ok)
	assert.Equal(t, "Teacher already registered", revert.Reason)
	assert.True(t, IsAlreadyRegistered(err))
}

func TestSendRecoversRevertReasonFromFailedReceipt(t *testing.T) {
	backend := &fakeBackend{}
	backend.receiptFn = func(hash common.Hash) (*types.Receipt, error) {
		return &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(9), TxHash: hash}, nil
	}
	backend.callFn = func(_ ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
		require.NotNil(t, blockNumber)
		assert.Equal(t, int64(9), blockNumber.Int64())
		return nil, &fakeDataError{msg: "execution reverted", data: encodedRevert(t, "Feedback already submitted")}
	}

	client := newTestClient(t, backend, testKeyHex)
	_, err := client.SubmitFeedback(context.Background(),
		common.HexToAddress(testKeyAddress), common.HexToAddress(testKeyAddress),
		"T-101", 42, [4]uint8{5, 5, 5, 5}, "")

	revert, ok := IsRevert(err)
	require.True(t, ok)
	assert.Equal(t, "submitFeedback", revert.Method)
	assert.Equal(t, "Feedback already submitted", revert.Reason)
}

func TestSendTimesOutWaitingForReceipt(t *testing.T) {
	backend := &fakeBackend{}
	backend.receiptFn = func(common.Hash) (*types.Receipt, error) {
		return nil, ethereum.NotFound
	}

	client := newTestClient(t, backend, testKeyHex)
	client.txTimeout = 30 * time.Millisecond

	_, err := client.AddCourse(context.Background(), common.HexToAddress(testKeyAddress), 1, "course")
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "addCourse", timeout.Method)
	assert.NotEmpty(t, timeout.TxHash)
}

func TestSendRejectsUnknownSender(t *testing.T) {
	client := newTestClient(t, &fakeBackend{})

	_, err := client.AddCourse(context.Background(), common.HexToAddress(testKeyAddress), 1, "course")

	var unavailable *SenderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, unavailable.Error(), "CHAIN_PRIVATE_KEYS")
}

type fakeNodeRPC struct {
	hash    common.Hash
	methods []string
}

func (f *fakeNodeRPC) CallContext(_ context.Context, result interface{}, method string, _ ...interface{}) error {
	f.methods = append(f.methods, method)
	if method == "eth_sendTransaction" {
		*(result.(*common.Hash)) = f.hash
		return nil
	}
	return errors.New("unexpected method " + method)
}

func TestSendDelegatesToNodeForNodeHeldAccount(t *testing.T) {
	backend := &fakeBackend{}
	node := &fakeNodeRPC{hash: common.HexToHash("0xabc123")}

	wallet, err := NewWallet(nil)
	require.NoError(t, err)
	sender := common.HexToAddress(testKeyAddress)
	wallet.SetNodeAccounts([]common.Address{sender})

	client, err := NewClient(Options{
		Backend:      backend,
		Node:         node,
		Contract:     testContract,
		Wallet:       wallet,
		ChainID:      big.NewInt(1337),
		TxTimeout:    200 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	result, err := client.AddCourse(context.Background(), sender, 1, "course")
	require.NoError(t, err)
	assert.Equal(t, node.hash.Hex(), result.TxHash)
	assert.Contains(t, node.methods, "eth_sendTransaction")
}

type recordingTxMetrics struct {
	mu       sync.Mutex
	outcomes []string
	retries  []string
}

func (r *recordingTxMetrics) ObserveChainTx(method, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, method+":"+outcome)
}

func (r *recordingTxMetrics) RecordNonceRetry(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, method)
}

func TestSendRecordsConfirmedOutcome(t *testing.T) {
	backend := &fakeBackend{}
	recorder := &recordingTxMetrics{}
	client := newTestClient(t, backend, testKeyHex).WithMetrics(recorder)

	_, err := client.AddTeacher(context.Background(), common.HexToAddress(testKeyAddress), "T-101", "Ada")
	require.NoError(t, err)

	assert.Equal(t, []string{"addTeacher:confirmed"}, recorder.outcomes)
	assert.Empty(t, recorder.retries)
}

func TestSendRecordsRevertedOutcome(t *testing.T) {
	backend := &fakeBackend{}
	backend.sendFn = func(*types.Transaction) error {
		return &fakeDataError{msg: "execution reverted", data: encodedRevert(t, "Only admin can add teachers")}
	}
	recorder := &recordingTxMetrics{}
	client := newTestClient(t, backend, testKeyHex).WithMetrics(recorder)

	_, err := client.AddTeacher(context.Background(), common.HexToAddress(testKeyAddress), "T-101", "Ada")
	require.Error(t, err)

	assert.Equal(t, []string{"addTeacher:reverted"}, recorder.outcomes)
}

func TestSendRecordsTimeoutOutcome(t *testing.T) {
	backend := &fakeBackend{}
	backend.receiptFn = func(common.Hash) (*types.Receipt, error) {
		return nil, ethereum.NotFound
	}
	recorder := &recordingTxMetrics{}
	client := newTestClient(t, backend, testKeyHex).WithMetrics(recorder)
	client.txTimeout = 30 * time.Millisecond

	_, err := client.AddCourse(context.Background(), common.HexToAddress(testKeyAddress), 1, "course")
	require.True(t, IsTimeout(err))

	assert.Equal(t, []string{"addCourse:timeout"}, recorder.outcomes)
}

func TestSendCountsNonceRetries(t *testing.T) {
	var sends int
	backend := &fakeBackend{}
	backend.sendFn = func(*types.Transaction) error {
		sends++
		if sends == 1 {
			return errors.New("nonce too low")
		}
		return nil
	}
	recorder := &recordingTxMetrics{}
	client := newTestClient(t, backend, testKeyHex).WithMetrics(recorder)

	_, err := client.AddCourse(context.Background(), common.HexToAddress(testKeyAddress), 1, "course")
	require.NoError(t, err)

	// One retry for the stale nonce, then a single confirmed observation.
	assert.Equal(t, []string{"addCourse"}, recorder.retries)
	assert.Equal(t, []string{"addCourse:confirmed"}, recorder.outcomes)
}

func TestRevertReasonScrapedFromMessage(t *testing.T) {
	backend := &fakeBackend{}
	backend.sendFn = func(*types.Transaction) error {
		return errors.New("VM Exception while processing transaction: revert Course not found")
	}

	client := newTestClient(t, backend, testKeyHex)
	_, err := client.AssignTeacher(context.Background(), common.HexToAddress(testKeyAddress), 42, "T-101")

	revert, ok := IsRevert(err)
	require.True(t, ok)
	assert.Equal(t, "Course not found", revert.Reason)
	assert.True(t, IsNotFound(err))
	assert.False(t, strings.Contains(revert.Reason, "revert"))
}
