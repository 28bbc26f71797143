package provider

import (
	"context"
	"fmt"
	"sync"
)

// StubClient is an in-memory provider used when no API key is configured and
// throughout tests. Triples without a fixture return an empty squad, which
// the seeder records as no_data.
type StubClient struct {
	mu        sync.RWMutex
	squads    map[string][]Player
	transfers map[int][]TransferEntry

	// SquadErr and TransfersErr, when set, are returned by every call.
	SquadErr     error
	TransfersErr error
}

// NewStubClient creates an empty stub.
func NewStubClient() *StubClient {
	return &StubClient{
		squads:    make(map[string][]Player),
		transfers: make(map[int][]TransferEntry),
	}
}

func tripleKey(teamID, leagueID, season int) string {
	return fmt.Sprintf("%d:%d:%d", teamID, leagueID, season)
}

// SetSquad installs a squad fixture for a triple.
func (s *StubClient) SetSquad(teamID, leagueID, season int, players []Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.squads[tripleKey(teamID, leagueID, season)] = players
}

// SetTransfers installs a journey fixture for a player.
func (s *StubClient) SetTransfers(playerID int, entries []TransferEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[playerID] = entries
}

// Squad returns the fixture for the triple, or an empty slice.
func (s *StubClient) Squad(ctx context.Context, teamID, leagueID, season int) ([]Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.SquadErr != nil {
		return nil, s.SquadErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.squads[tripleKey(teamID, leagueID, season)], nil
}

// Transfers returns the fixture for the player, or an empty slice.
func (s *StubClient) Transfers(ctx context.Context, playerID int) ([]TransferEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.TransfersErr != nil {
		return nil, s.TransfersErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transfers[playerID], nil
}

// Mode reports stub.
func (s *StubClient) Mode() Mode { return ModeStub }

// KeyConfigured reports false; the stub needs no credential.
func (s *StubClient) KeyConfigured() bool { return false }
