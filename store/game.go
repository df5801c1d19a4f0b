package store

// Game is a tic-tac-toe match state machine (spec.md §3, C8). Created by
// TICTACTOE_INVITE (sent or received), destroyed on TICTACTOE_RESULT.
//
// Grounded on original_source/utils/game_utils.py (win/draw detection)
// and original_source/core/peer.py (create_game/apply_move).
type Game struct {
	GameID         string
	Board          [9]string // "" = empty, else "X" or "O"
	TurnCounter    int
	MySymbol       string
	OpponentSymbol string
	OpponentUserID string
	MyTurn         bool
	Token          string
}

// winLines enumerates the eight 3-in-a-row combinations.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// CreateGame creates and stores a new game (spec.md §4.5 TICTACTOE_INVITE).
// isInitiator selects X and sets MyTurn true for the side that invited.
func (s *Store) CreateGame(gameID, opponentUserID string, isInitiator bool, tok string) *Game {
	s.mu.Lock()
	defer s.mu.Unlock()

	mySymbol, oppSymbol := "O", "X"
	if isInitiator {
		mySymbol, oppSymbol = "X", "O"
	}

	g := &Game{
		GameID:         gameID,
		TurnCounter:    1,
		MySymbol:       mySymbol,
		OpponentSymbol: oppSymbol,
		OpponentUserID: opponentUserID,
		MyTurn:         isInitiator,
		Token:          tok,
	}
	s.games[gameID] = g
	return g
}

// Game returns the live game for gameID, or nil.
func (s *Store) Game(gameID string) *Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games[gameID]
}

// HasGame reports whether gameID is known.
func (s *Store) HasGame(gameID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.games[gameID]
	return ok
}

// ApplyMove writes symbol at position for gameID and advances turn state.
// The caller (dispatch) is responsible for the validation sequence in
// spec.md §4.5 (known game, matching TURN, empty+in-range position,
// matching SYMBOL) before calling this. isSelf marks whether the local
// player made this move (vs. the opponent, via a received MOVE frame).
func (s *Store) ApplyMove(gameID string, position int, symbol string, isSelf bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[gameID]
	if !ok {
		return false
	}
	if position < 0 || position >= len(g.Board) || g.Board[position] != "" {
		return false
	}

	g.Board[position] = symbol
	g.TurnCounter++
	g.MyTurn = !isSelf
	return true
}

// CheckResult reports the terminal state of gameID's board: "WIN" with
// the winning line, "DRAW", or "" if the game continues.
func (s *Store) CheckResult(gameID string) (result string, line [3]int, symbol string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return "", [3]int{}, ""
	}
	return checkResult(g.Board)
}

func checkResult(board [9]string) (result string, line [3]int, symbol string) {
	for _, l := range winLines {
		a, b, c := l[0], l[1], l[2]
		if board[a] != "" && board[a] == board[b] && board[b] == board[c] {
			return "WIN", l, board[a]
		}
	}
	for _, cell := range board {
		if cell == "" {
			return "", [3]int{}, ""
		}
	}
	return "DRAW", [3]int{}, ""
}

// RemoveGame deletes gameID, e.g. on TICTACTOE_RESULT (spec.md §4.5).
func (s *Store) RemoveGame(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, gameID)
}
