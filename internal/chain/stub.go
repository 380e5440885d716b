package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ---------------------------------------------------------------------------
// Stub Client (for testing and dry runs)
// ---------------------------------------------------------------------------

// StubClient is an in-memory Client. Deployment outcomes are scripted with
// QueueDeployErrors; reads come from the registered maps.
type StubClient struct {
	mu sync.Mutex

	salt      [32]byte
	predicted common.Address
	saltErr   error

	deployErrs  []error
	mintAddress *common.Address
	blockNumber uint64

	supplies    map[common.Address]*big.Int
	balances    map[[2]common.Address]*big.Int
	allowances  map[[3]common.Address]*big.Int
	pools       map[common.Address]common.Address
	eventPools  map[common.Address]common.Address
	staking     map[common.Address]StakingData
	totalUnits  map[common.Address]*big.Int
	members     map[[2]common.Address]*MemberStats
	connections map[[2]common.Address]bool

	saltCalls   int
	deployCalls int
	deploys     []DeployRequest
	healthErr   error
}

// Compile-time interface check.
var _ Client = (*StubClient)(nil)

// NewStubClient creates a stub that predicts predicted for every symbol.
func NewStubClient(predicted common.Address) *StubClient {
	return &StubClient{
		salt:        [32]byte{0x5a},
		predicted:   predicted,
		blockNumber: 1000,
		supplies:    make(map[common.Address]*big.Int),
		balances:    make(map[[2]common.Address]*big.Int),
		allowances:  make(map[[3]common.Address]*big.Int),
		pools:       make(map[common.Address]common.Address),
		eventPools:  make(map[common.Address]common.Address),
		staking:     make(map[common.Address]StakingData),
		totalUnits:  make(map[common.Address]*big.Int),
		members:     make(map[[2]common.Address]*MemberStats),
		connections: make(map[[2]common.Address]bool),
	}
}

// QueueDeployErrors scripts the next DeployToken results in order. A nil
// entry is a success; calls beyond the queue succeed.
func (s *StubClient) QueueDeployErrors(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployErrs = append(s.deployErrs, errs...)
}

// SetSaltError makes GenerateSalt fail with err.
func (s *StubClient) SetSaltError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saltErr = err
}

// SetMintAddress makes successful receipts report addr as the minted token.
func (s *StubClient) SetMintAddress(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mintAddress = &addr
}

func (s *StubClient) SetTotalSupply(token common.Address, v *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supplies[token] = v
}

func (s *StubClient) SetBalance(token, holder common.Address, v *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[[2]common.Address{token, holder}] = v
}

func (s *StubClient) SetAllowance(token, owner, spender common.Address, v *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowances[[3]common.Address{token, owner, spender}] = v
}

func (s *StubClient) SetPool(token, pool common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[token] = pool
}

func (s *StubClient) SetEventPool(token, pool common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventPools[token] = pool
}

func (s *StubClient) SetStakingData(token common.Address, d StakingData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staking[token] = d
}

func (s *StubClient) SetPoolTotalUnits(pool common.Address, v *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalUnits[pool] = v
}

func (s *StubClient) SetMemberStats(pool, member common.Address, m *MemberStats, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]common.Address{pool, member}
	s.members[key] = m
	s.connections[key] = connected
}

func (s *StubClient) SetHealthError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthErr = err
}

// SaltCalls returns how many times GenerateSalt was called.
func (s *StubClient) SaltCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saltCalls
}

// DeployCalls returns how many submissions were attempted.
func (s *StubClient) DeployCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deployCalls
}

// Deploys returns the requests of every submission attempt.
func (s *StubClient) Deploys() []DeployRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeployRequest, len(s.deploys))
	copy(out, s.deploys)
	return out
}

func (s *StubClient) GenerateSalt(_ context.Context, _ string, _, _, _ common.Address) ([32]byte, common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saltCalls++
	if s.saltErr != nil {
		return [32]byte{}, common.Address{}, s.saltErr
	}
	return s.salt, s.predicted, nil
}

func (s *StubClient) DeployToken(ctx context.Context, _ *Signer, req DeployRequest, _ GasOptions) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployCalls++
	s.deploys = append(s.deploys, req)

	if len(s.deployErrs) > 0 {
		err := s.deployErrs[0]
		s.deployErrs = s.deployErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	s.blockNumber++
	minted := s.predicted
	if s.mintAddress != nil {
		minted = *s.mintAddress
	}
	return &Receipt{
		TxHash:       fmt.Sprintf("0x%064x", s.blockNumber),
		BlockNumber:  s.blockNumber,
		TokenAddress: minted,
	}, nil
}

func (s *StubClient) GetPool(_ context.Context, tokenA, _ common.Address, _ uint32) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pools[tokenA], nil
}

func (s *StubClient) PoolFromEvents(_ context.Context, token common.Address, _ uint64) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventPools[token], nil
}

func (s *StubClient) StakingData(_ context.Context, token common.Address, _ uint64) (StakingData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staking[token], nil
}

func (s *StubClient) TotalSupply(_ context.Context, token common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return orZero(s.supplies[token]), nil
}

func (s *StubClient) BalanceOf(_ context.Context, token, holder common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return orZero(s.balances[[2]common.Address{token, holder}]), nil
}

func (s *StubClient) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return orZero(s.allowances[[3]common.Address{token, owner, spender}]), nil
}

func (s *StubClient) PoolTotalUnits(_ context.Context, pool common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return orZero(s.totalUnits[pool]), nil
}

func (s *StubClient) MemberStats(_ context.Context, pool, member common.Address) (*MemberStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[[2]common.Address{pool, member}]; ok {
		cp := *m
		return &cp, nil
	}
	return &MemberStats{Units: new(big.Int), FlowRate: new(big.Int), Claimable: new(big.Int), Received: new(big.Int)}, nil
}

func (s *StubClient) IsMemberConnected(_ context.Context, pool, member common.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections[[2]common.Address{pool, member}], nil
}

func (s *StubClient) Health(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthErr
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
