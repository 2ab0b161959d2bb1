package flow

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"

	"liquidityDesk/internal/calldata"
	"liquidityDesk/internal/model"
	"liquidityDesk/internal/quote"
)

var (
	testOwner   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testToken0  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testToken1  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testPermit2 = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	testManager = common.HexToAddress("0x7C5f5A4bBd8fD63184577525326123B519429bDc")
	testRouter  = common.HexToAddress("0x6fF5693b99212Da76ad316178A184AB56D299b43")
)

func testPool() model.PoolKey {
	return model.PoolKey{
		Currency0:   testToken0.Hex(),
		Currency1:   testToken1.Hex(),
		Fee:         3000,
		TickSpacing: 10,
		Hooks:       common.Address{}.Hex(),
	}
}

func depositIntent() model.PositionIntent {
	return model.PositionIntent{
		Operation:   model.OperationDeposit,
		Pool:        testPool(),
		TickLower:   -200,
		TickUpper:   200,
		InputAmount: big.NewInt(1_000_000),
		InputSide:   model.SideToken0,
		SlippageBps: 50,
	}
}

func zapIntent() model.PositionIntent {
	intent := depositIntent()
	intent.IsZap = true
	intent.ZapInputToken = model.SideToken0
	intent.InputAmount = big.NewInt(1000)
	return intent
}

type fakeQuotes struct {
	mu          sync.Mutex
	deposit     model.CalculatedLiquidityData
	zap         model.ZapQuote
	requote     model.CalculatedLiquidityData
	withdrawal  model.CalculatedLiquidityData
	requoteArgs [2]*big.Int
	requoteErr  error
}

func (q *fakeQuotes) Calculate(ctx context.Context, intent model.PositionIntent) (model.CalculatedLiquidityData, error) {
	return q.deposit, nil
}

func (q *fakeQuotes) QuoteZap(ctx context.Context, intent model.PositionIntent) (model.ZapQuote, error) {
	return q.zap, nil
}

func (q *fakeQuotes) Requote(ctx context.Context, intent model.PositionIntent, held0, held1 *big.Int) (model.CalculatedLiquidityData, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requoteArgs = [2]*big.Int{held0, held1}
	if q.requoteErr != nil {
		return model.CalculatedLiquidityData{}, q.requoteErr
	}
	return q.requote, nil
}

func (q *fakeQuotes) Withdrawal(ctx context.Context, intent model.PositionIntent) (model.CalculatedLiquidityData, error) {
	return q.withdrawal, nil
}

type fakeApprovals struct {
	mu            sync.Mutex
	direct        model.ApprovalStatus
	zap           model.ZapApprovalStatus
	invalidations int
}

func (a *fakeApprovals) Resolve(ctx context.Context, owner, token0, token1 common.Address, amount0, amount1 *big.Int) (model.ApprovalStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.direct, nil
}

func (a *fakeApprovals) ResolveZap(ctx context.Context, owner, inputToken, outputToken common.Address, inputAmount *big.Int) (model.ZapApprovalStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.zap, nil
}

func (a *fakeApprovals) Invalidate() {
	a.mu.Lock()
	a.invalidations++
	a.mu.Unlock()
}

type sentTx struct {
	to   common.Address
	data []byte
}

// fakeChain signs, mines and answers balance reads.
type fakeChain struct {
	mu       sync.Mutex
	sent     []sentTx
	signed   [][]byte
	status   map[common.Hash]uint64
	balances map[common.Address]*big.Int

	rejectSendTo *common.Address
	revertTo     *common.Address
	onSend       func(to common.Address)
}

func newFakeChain() *fakeChain {
	return &fakeChain{status: map[common.Hash]uint64{}, balances: map[common.Address]*big.Int{}}
}

func (c *fakeChain) Address() common.Address { return testOwner }

func (c *fakeChain) SignTypedData(ctx context.Context, digest []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signed = append(c.signed, digest)
	return make([]byte, 65), nil
}

func (c *fakeChain) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	c.mu.Lock()
	if c.rejectSendTo != nil && *c.rejectSendTo == to {
		c.mu.Unlock()
		return common.Hash{}, errors.New("MetaMask Tx Signature: User denied transaction signature.")
	}
	c.sent = append(c.sent, sentTx{to: to, data: data})
	hash := common.BigToHash(big.NewInt(int64(len(c.sent))))
	c.status[hash] = types.ReceiptStatusSuccessful
	if c.revertTo != nil && *c.revertTo == to {
		c.status[hash] = types.ReceiptStatusFailed
	}
	onSend := c.onSend
	c.mu.Unlock()
	if onSend != nil {
		onSend(to)
	}
	return hash, nil
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.status[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: status, TxHash: hash}, nil
}

func (c *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal, ok := c.balances[*msg.To]
	if !ok {
		bal = new(big.Int)
	}
	return common.LeftPadBytes(bal.Bytes(), 32), nil
}

func (c *fakeChain) setBalance(token common.Address, amount int64) {
	c.mu.Lock()
	c.balances[token] = big.NewInt(amount)
	c.mu.Unlock()
}

func (c *fakeChain) countSentTo(to common.Address) int {
	n := 0
	for _, addr := range c.sentTo() {
		if addr == to {
			n++
		}
	}
	return n
}

func (c *fakeChain) sentTo() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]common.Address, len(c.sent))
	for i, tx := range c.sent {
		out[i] = tx.to
	}
	return out
}

type fakeBuilder struct {
	mu       sync.Mutex
	deposits []calldata.DepositRequest
	swaps    []calldata.SwapRequest
	withdraw []calldata.WithdrawRequest
}

func (b *fakeBuilder) BuildSwap(ctx context.Context, req calldata.SwapRequest) (calldata.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.swaps = append(b.swaps, req)
	return calldata.Transaction{To: testRouter, Data: []byte{0x01}}, nil
}

func (b *fakeBuilder) BuildDeposit(ctx context.Context, req calldata.DepositRequest) (calldata.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deposits = append(b.deposits, req)
	return calldata.Transaction{To: testManager, Data: []byte{0x02}}, nil
}

func (b *fakeBuilder) BuildWithdraw(ctx context.Context, req calldata.WithdrawRequest) (calldata.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.withdraw = append(b.withdraw, req)
	return calldata.Transaction{To: testManager, Data: []byte{0x03}}, nil
}

func (b *fakeBuilder) BuildCollect(ctx context.Context, req calldata.CollectRequest) (calldata.Transaction, error) {
	return calldata.Transaction{To: testManager, Data: []byte{0x04}}, nil
}

type memoryJournal struct {
	mu      sync.Mutex
	records []model.StepRecord
}

func (j *memoryJournal) Append(ctx context.Context, rec model.StepRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func (j *memoryJournal) statuses() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.records))
	for i, rec := range j.records {
		out[i] = rec.Step + ":" + string(rec.Status)
	}
	return out
}

type harness struct {
	quotes    *fakeQuotes
	approvals *fakeApprovals
	chain     *fakeChain
	builder   *fakeBuilder
	journal   *memoryJournal
	reg       *prometheus.Registry
	orch      *Orchestrator
}

func newHarness(t *testing.T, maxSettle int) *harness {
	t.Helper()
	h := &harness{
		quotes: &fakeQuotes{
			deposit: model.CalculatedLiquidityData{
				Liquidity:      big.NewInt(5_000_000),
				Amount0:        big.NewInt(1_000_000),
				Amount1:        big.NewInt(2_000_000),
				FinalTickLower: -200,
				FinalTickUpper: 200,
				InRange:        true,
			},
		},
		approvals: &fakeApprovals{},
		chain:     newFakeChain(),
		builder:   &fakeBuilder{},
		journal:   &memoryJournal{},
		reg:       prometheus.NewRegistry(),
	}
	orch, err := NewOrchestrator(Deps{
		Quotes:    h.quotes,
		Approvals: h.approvals,
		Signer:    h.chain,
		Builder:   h.builder,
		Receipts:  h.chain,
		Balances:  h.chain,
		Journal:   h.journal,
		Metrics:   NewMetrics(h.reg),
	}, Config{
		Permit2:             testPermit2,
		MaxSettleAttempts:   maxSettle,
		ReceiptPollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	h.orch = orch
	return h
}

func signatureDetails() *model.SignatureDetails {
	return &model.SignatureDetails{Name: "Permit2", ChainID: big.NewInt(8453), VerifyingContract: testPermit2.Hex()}
}

func permitBatch() *model.PermitBatch {
	return &model.PermitBatch{
		Details: []model.PermitDetails{
			{Token: testToken0.Hex(), Amount: big.NewInt(1 << 40), Expiration: 1_900_000_000, Nonce: 0},
			{Token: testToken1.Hex(), Amount: big.NewInt(1 << 40), Expiration: 1_900_000_000, Nonce: 3},
		},
		Spender:     testManager.Hex(),
		SigDeadline: big.NewInt(1_800_000_000),
	}
}

// needsToken0Approval makes token0 require an ERC20 approval until one is sent.
func (h *harness) needsToken0Approval() {
	h.approvals.direct = model.ApprovalStatus{
		NeedsToken0ERC20Approval: true,
		NeedsToken0Permit:        false,
		NeedsToken1Permit:        true,
		PermitBatchData:          permitBatch(),
		SignatureDetails:         signatureDetails(),
	}
	h.chain.onSend = func(to common.Address) {
		if to != testToken0 {
			return
		}
		h.approvals.mu.Lock()
		h.approvals.direct.NeedsToken0ERC20Approval = false
		h.approvals.direct.NeedsToken0Permit = true
		h.approvals.mu.Unlock()
	}
}

func sameSteps(got []Step, want ...Step) bool {
	if len(got) != len(want) {
		return false
	}
	set := NewStepSet(got...)
	for _, step := range want {
		if !set.Has(step) {
			return false
		}
	}
	return true
}

func TestRunDirectDeposit(t *testing.T) {
	h := newHarness(t, 0)
	h.needsToken0Approval()
	f := NewFlow(testOwner, depositIntent(), Options{})

	if err := h.orch.Run(context.Background(), f); err != nil {
		t.Fatalf("run: %v", err)
	}

	state := f.State()
	if state.CurrentStep != StepCompleted {
		t.Fatalf("expected completed, got %s", state.CurrentStep)
	}
	if !sameSteps(state.CompletedSteps, StepApproveToken0, StepSignPermit, StepExecute) {
		t.Fatalf("unexpected completed steps %v", state.CompletedSteps)
	}
	if state.Error != nil {
		t.Fatalf("unexpected flow error %v", state.Error)
	}

	sent := h.chain.sentTo()
	if len(sent) != 2 || sent[0] != testToken0 || sent[1] != testManager {
		t.Fatalf("unexpected transactions %v", sent)
	}
	if len(h.chain.signed) != 1 {
		t.Fatalf("expected one permit signature, got %d", len(h.chain.signed))
	}

	if len(h.builder.deposits) != 1 {
		t.Fatalf("expected one deposit build, got %d", len(h.builder.deposits))
	}
	req := h.builder.deposits[0]
	if req.Permit == nil || req.Permit.Batch == nil {
		t.Fatalf("expected signed batch permit on deposit")
	}
	if req.Amount0Max.Cmp(big.NewInt(1_005_000)) != 0 || req.Amount1Max.Cmp(big.NewInt(2_010_000)) != 0 {
		t.Fatalf("unexpected max amounts %s %s", req.Amount0Max, req.Amount1Max)
	}
	if req.Recipient != testOwner {
		t.Fatalf("expected owner as recipient, got %s", req.Recipient.Hex())
	}

	want := []string{"approve_token0:completed", "sign_permit:completed", "execute:completed"}
	got := h.journal.statuses()
	if len(got) != len(want) {
		t.Fatalf("unexpected journal %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("journal[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if h.approvals.invalidations == 0 {
		t.Fatalf("expected approval cache invalidation after transactions")
	}

	families, err := h.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != "lpdesk_flow_steps_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	if total != 3 {
		t.Fatalf("expected 3 step observations, got %v", total)
	}
}

func TestRejectedExecuteLeavesFlowIdle(t *testing.T) {
	h := newHarness(t, 0)
	h.needsToken0Approval()
	manager := testManager
	h.chain.rejectSendTo = &manager
	f := NewFlow(testOwner, depositIntent(), Options{})

	err := h.orch.Run(context.Background(), f)
	if !errors.Is(err, model.ErrUserRejected) {
		t.Fatalf("expected user rejection, got %v", err)
	}

	state := f.State()
	if state.CurrentStep != StepIdle {
		t.Fatalf("expected idle, got %s", state.CurrentStep)
	}
	if state.Error != nil {
		t.Fatalf("rejection must not set a flow error, got %v", state.Error)
	}
	if !sameSteps(state.CompletedSteps, StepApproveToken0, StepSignPermit) {
		t.Fatalf("completed steps changed: %v", state.CompletedSteps)
	}
	if state.IsLocked {
		t.Fatalf("flow left locked")
	}

	got := h.journal.statuses()
	if got[len(got)-1] != "execute:rejected" {
		t.Fatalf("expected rejected execute in journal, got %v", got)
	}

	// Retrying picks up at execute.
	h.chain.rejectSendTo = nil
	if err := h.orch.Run(context.Background(), f); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.State().CurrentStep != StepCompleted {
		t.Fatalf("expected completed after retry")
	}
	if len(h.chain.signed) != 1 {
		t.Fatalf("permit was signed again: %d signatures", len(h.chain.signed))
	}
}

func TestRevertedExecuteKeepsTxHash(t *testing.T) {
	h := newHarness(t, 0)
	manager := testManager
	h.chain.revertTo = &manager
	f := NewFlow(testOwner, depositIntent(), Options{})

	err := h.orch.Run(context.Background(), f)
	if !errors.Is(err, model.ErrTransactionReverted) {
		t.Fatalf("expected revert, got %v", err)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %T", err)
	}
	if stepErr.Step != StepExecute || stepErr.TxHash == (common.Hash{}) {
		t.Fatalf("unexpected step error %+v", stepErr)
	}

	state := f.State()
	if state.CurrentStep != StepIdle || state.Error == nil {
		t.Fatalf("expected idle with error, got %s %v", state.CurrentStep, state.Error)
	}
	if len(state.CompletedSteps) != 0 {
		t.Fatalf("unexpected completed steps %v", state.CompletedSteps)
	}
}

func TestApprovalThatNeverSettles(t *testing.T) {
	h := newHarness(t, 2)
	h.approvals.direct = model.ApprovalStatus{NeedsToken0ERC20Approval: true}
	f := NewFlow(testOwner, depositIntent(), Options{})
	ctx := context.Background()

	want := []Step{StepApproveToken0, StepAwaitChain, StepAwaitChain}
	for i, expected := range want {
		step, err := h.orch.Advance(ctx, f)
		if err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		if step != expected {
			t.Fatalf("advance %d: expected %s, got %s", i, expected, step)
		}
	}
	_, err := h.orch.Advance(ctx, f)
	if !errors.Is(err, model.ErrStepPreconditionMissing) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if n := len(h.chain.sentTo()); n != 1 {
		t.Fatalf("approval resent: %d transactions", n)
	}
}

func TestFlowLocking(t *testing.T) {
	h := newHarness(t, 0)
	f := NewFlow(testOwner, depositIntent(), Options{})
	if err := f.lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := h.orch.Advance(context.Background(), f); !errors.Is(err, model.ErrFlowLocked) {
		t.Fatalf("expected ErrFlowLocked, got %v", err)
	}
	if err := h.orch.Reset(f); !errors.Is(err, model.ErrFlowLocked) {
		t.Fatalf("expected ErrFlowLocked on reset, got %v", err)
	}
	if err := h.orch.UpdateIntent(f, zapIntent()); !errors.Is(err, model.ErrFlowLocked) {
		t.Fatalf("expected ErrFlowLocked on update, got %v", err)
	}
	if err := h.orch.Cancel(f); !errors.Is(err, model.ErrFlowNotIdle) {
		t.Fatalf("expected ErrFlowNotIdle on cancel, got %v", err)
	}

	f.unlock()
	if err := h.orch.UpdateIntent(f, zapIntent()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !f.Intent().IsZap {
		t.Fatalf("intent not replaced")
	}
	if err := h.orch.Cancel(f); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func (h *harness) zapQuote(intent model.PositionIntent, impact float64) {
	h.quotes.zap = model.ZapQuote{
		InputSide:          model.SideToken0,
		SwapAmount:         big.NewInt(500),
		ExpectedSwapOutput: big.NewInt(490),
		MinimumSwapOutput:  big.NewInt(487),
		PriceImpact:        impact,
		Fingerprint:        quote.Fingerprint(intent),
	}
	h.quotes.requote = model.CalculatedLiquidityData{
		Liquidity:      big.NewInt(10),
		Amount0:        big.NewInt(500),
		Amount1:        big.NewInt(480),
		FinalTickLower: -200,
		FinalTickUpper: 200,
		InRange:        true,
	}
}

func TestZapHighImpactBlocksSwap(t *testing.T) {
	h := newHarness(t, 0)
	intent := zapIntent()
	h.zapQuote(intent, 7.5)
	f := NewFlow(testOwner, intent, Options{})

	err := h.orch.Run(context.Background(), f)
	if !errors.Is(err, model.ErrHighPriceImpact) {
		t.Fatalf("expected high impact error, got %v", err)
	}
	if n := len(h.chain.sentTo()); n != 0 {
		t.Fatalf("expected no transactions, got %d", n)
	}

	// Acknowledged impact proceeds.
	h2 := newHarness(t, 0)
	h2.zapQuote(intent, 7.5)
	h2.chain.balances[testToken0] = big.NewInt(1000)
	h2.chain.onSend = func(to common.Address) {
		if to != testRouter {
			return
		}
		h2.chain.mu.Lock()
		h2.chain.balances[testToken0] = big.NewInt(500)
		h2.chain.balances[testToken1] = big.NewInt(480)
		h2.chain.mu.Unlock()
	}
	f2 := NewFlow(testOwner, intent, Options{AcknowledgeHighImpact: true})
	if err := h2.orch.Run(context.Background(), f2); err != nil {
		t.Fatalf("acknowledged run: %v", err)
	}
}

func TestZapSwapRequotesFromHeldBalances(t *testing.T) {
	h := newHarness(t, 0)
	intent := zapIntent()
	h.zapQuote(intent, 0.5)
	h.approvals.zap = model.ZapApprovalStatus{
		NeedsBatchPermit: true,
		PermitBatchData:  permitBatch(),
		SignatureDetails: signatureDetails(),
	}
	h.chain.balances[testToken0] = big.NewInt(1000)
	h.chain.onSend = func(to common.Address) {
		if to != testRouter {
			return
		}
		// Receipt carries no logs, so the balance difference is used.
		h.chain.mu.Lock()
		h.chain.balances[testToken0] = big.NewInt(500)
		h.chain.balances[testToken1] = big.NewInt(478)
		h.chain.mu.Unlock()
	}
	f := NewFlow(testOwner, intent, Options{})

	if err := h.orch.Run(context.Background(), f); err != nil {
		t.Fatalf("run: %v", err)
	}
	state := f.State()
	if !sameSteps(state.CompletedSteps, StepSwap, StepSignBatchPermit, StepExecute) {
		t.Fatalf("unexpected completed steps %v", state.CompletedSteps)
	}
	if state.SwapResult == nil || state.SwapResult.Source != model.SwapSourceBalanceDiff {
		t.Fatalf("expected balance-diff swap result, got %+v", state.SwapResult)
	}
	if state.SwapResult.AmountOut.Cmp(big.NewInt(478)) != 0 {
		t.Fatalf("unexpected swap output %s", state.SwapResult.AmountOut)
	}

	held0, held1 := h.quotes.requoteArgs[0], h.quotes.requoteArgs[1]
	if held0.Cmp(big.NewInt(500)) != 0 || held1.Cmp(big.NewInt(478)) != 0 {
		t.Fatalf("requote got held %s/%s", held0, held1)
	}

	if len(h.builder.swaps) != 1 || h.builder.swaps[0].MinAmountOut.Cmp(big.NewInt(487)) != 0 {
		t.Fatalf("unexpected swap request %+v", h.builder.swaps)
	}
	dep := h.builder.deposits[0]
	// Slippage headroom is capped by what the owner holds.
	if dep.Amount0Max.Cmp(big.NewInt(500)) != 0 || dep.Amount1Max.Cmp(big.NewInt(478)) != 0 {
		t.Fatalf("unexpected deposit maxima %s/%s", dep.Amount0Max, dep.Amount1Max)
	}
	if dep.Permit == nil || dep.Permit.Batch == nil {
		t.Fatalf("expected batch permit on zap deposit")
	}
}

func TestZapStaleQuoteFails(t *testing.T) {
	h := newHarness(t, 0)
	intent := zapIntent()
	h.zapQuote(intent, 0.5)
	h.quotes.zap.Fingerprint = "0xdead"
	f := NewFlow(testOwner, intent, Options{})

	err := h.orch.Run(context.Background(), f)
	if !errors.Is(err, model.ErrQuoteStale) {
		t.Fatalf("expected stale quote, got %v", err)
	}
}

func TestWithdrawUsesSlippageMinimums(t *testing.T) {
	h := newHarness(t, 0)
	h.quotes.withdrawal = model.CalculatedLiquidityData{
		Liquidity: big.NewInt(1000),
		Amount0:   big.NewInt(10_000),
		Amount1:   big.NewInt(20_000),
	}
	intent := depositIntent()
	intent.Operation = model.OperationWithdraw
	intent.TokenID = big.NewInt(42)
	intent.LiquidityDelta = big.NewInt(1000)
	f := NewFlow(testOwner, intent, Options{})

	if err := h.orch.Run(context.Background(), f); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.builder.withdraw) != 1 {
		t.Fatalf("expected one withdraw build")
	}
	req := h.builder.withdraw[0]
	if req.Amount0Min.Cmp(big.NewInt(9_950)) != 0 || req.Amount1Min.Cmp(big.NewInt(19_900)) != 0 {
		t.Fatalf("unexpected minimums %s/%s", req.Amount0Min, req.Amount1Min)
	}
	if req.TokenID.Int64() != 42 {
		t.Fatalf("unexpected token id %s", req.TokenID)
	}
}

func TestWithdrawWithoutTokenID(t *testing.T) {
	h := newHarness(t, 0)
	intent := depositIntent()
	intent.Operation = model.OperationWithdraw
	f := NewFlow(testOwner, intent, Options{})

	err := h.orch.Run(context.Background(), f)
	if !errors.Is(err, model.ErrStepPreconditionMissing) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}

func TestZapSwapIsNotResentWhenReconcileFails(t *testing.T) {
	h := newHarness(t, 0)
	intent := zapIntent()
	h.zapQuote(intent, 0.5)
	// The receipt has no logs and the node still reports the old balances.
	h.chain.setBalance(testToken0, 1000)
	f := NewFlow(testOwner, intent, Options{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := h.orch.Run(ctx, f)
		var stepErr *StepError
		if !errors.As(err, &stepErr) || stepErr.Step != StepSwap || stepErr.TxHash == (common.Hash{}) {
			t.Fatalf("run %d: expected swap failure carrying the tx hash, got %v", i, err)
		}
		if !sameSteps(f.State().CompletedSteps, StepSwap) {
			t.Fatalf("run %d: swap must stay completed, got %v", i, f.State().CompletedSteps)
		}
	}
	if n := h.chain.countSentTo(testRouter); n != 1 {
		t.Fatalf("expected one swap transaction, got %d", n)
	}

	// Balances catch up; the flow finishes without swapping again.
	h.chain.setBalance(testToken0, 500)
	h.chain.setBalance(testToken1, 478)
	if err := h.orch.Run(ctx, f); err != nil {
		t.Fatalf("run after balances settle: %v", err)
	}
	state := f.State()
	if state.CurrentStep != StepCompleted || state.Error != nil {
		t.Fatalf("expected completed without error, got %s %v", state.CurrentStep, state.Error)
	}
	if n := h.chain.countSentTo(testRouter); n != 1 {
		t.Fatalf("swap resent: %d swap transactions", n)
	}
	if len(h.builder.swaps) != 1 {
		t.Fatalf("swap rebuilt: %d builds", len(h.builder.swaps))
	}
	if state.SwapResult == nil || state.SwapResult.AmountOut.Cmp(big.NewInt(478)) != 0 {
		t.Fatalf("unexpected swap result %+v", state.SwapResult)
	}
}

func TestZapSwapIsNotResentWhenRequoteFails(t *testing.T) {
	h := newHarness(t, 0)
	intent := zapIntent()
	h.zapQuote(intent, 0.5)
	h.quotes.requoteErr = model.ErrQuoteStale
	h.chain.setBalance(testToken0, 1000)
	h.chain.onSend = func(to common.Address) {
		if to != testRouter {
			return
		}
		h.chain.setBalance(testToken0, 500)
		h.chain.setBalance(testToken1, 478)
	}
	f := NewFlow(testOwner, intent, Options{})
	ctx := context.Background()

	err := h.orch.Run(ctx, f)
	if !errors.Is(err, model.ErrQuoteStale) {
		t.Fatalf("expected stale requote, got %v", err)
	}
	if !sameSteps(f.State().CompletedSteps, StepSwap) {
		t.Fatalf("swap must stay completed, got %v", f.State().CompletedSteps)
	}
	if len(h.builder.deposits) != 0 {
		t.Fatalf("deposit built without a requote")
	}

	h.quotes.mu.Lock()
	h.quotes.requoteErr = nil
	h.quotes.mu.Unlock()
	if err := h.orch.Run(ctx, f); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := h.chain.countSentTo(testRouter); n != 1 {
		t.Fatalf("swap resent: %d swap transactions", n)
	}
	held0, held1 := h.quotes.requoteArgs[0], h.quotes.requoteArgs[1]
	if held0.Cmp(big.NewInt(500)) != 0 || held1.Cmp(big.NewInt(478)) != 0 {
		t.Fatalf("requote got held %s/%s", held0, held1)
	}
	if f.State().CurrentStep != StepCompleted {
		t.Fatalf("expected completed, got %s", f.State().CurrentStep)
	}
}

func TestDepositRefusesInputTheRangeCannotHold(t *testing.T) {
	h := newHarness(t, 0)
	h.needsToken0Approval()
	tick := int32(300)
	h.quotes.deposit = model.CalculatedLiquidityData{
		Liquidity:       big.NewInt(50_001_666),
		Amount0:         big.NewInt(1_000_000),
		Amount1:         new(big.Int),
		FinalTickLower:  -200,
		FinalTickUpper:  200,
		CurrentPoolTick: &tick,
		InputNotHeld:    true,
	}
	f := NewFlow(testOwner, depositIntent(), Options{})

	err := h.orch.Run(context.Background(), f)
	if !errors.Is(err, model.ErrCalculationFailed) {
		t.Fatalf("expected calculation failure, got %v", err)
	}
	if n := len(h.chain.sentTo()); n != 0 {
		t.Fatalf("expected no transactions, got %d", n)
	}
	if len(h.builder.deposits) != 0 {
		t.Fatalf("deposit built for an undepositable quote")
	}
}

func TestCancelWhileAwaitingChain(t *testing.T) {
	h := newHarness(t, 5)
	h.approvals.direct = model.ApprovalStatus{NeedsToken0ERC20Approval: true}
	f := NewFlow(testOwner, depositIntent(), Options{})
	ctx := context.Background()

	for _, want := range []Step{StepApproveToken0, StepAwaitChain} {
		step, err := h.orch.Advance(ctx, f)
		if err != nil || step != want {
			t.Fatalf("advance: got %s %v, want %s", step, err, want)
		}
	}
	if err := h.orch.Cancel(f); err != nil {
		t.Fatalf("cancel while awaiting chain: %v", err)
	}
	state := f.State()
	if state.CurrentStep != StepIdle || len(state.CompletedSteps) != 0 {
		t.Fatalf("expected reset flow, got %s %v", state.CurrentStep, state.CompletedSteps)
	}
}

func TestWithSlippage(t *testing.T) {
	if got := WithSlippage(big.NewInt(10_000), 50, true); got.Int64() != 10_050 {
		t.Fatalf("widened: %s", got)
	}
	if got := WithSlippage(big.NewInt(10_000), 50, false); got.Int64() != 9_950 {
		t.Fatalf("narrowed: %s", got)
	}
	if got := WithSlippage(nil, 50, true); got.Sign() != 0 {
		t.Fatalf("nil amount should be zero")
	}
}
