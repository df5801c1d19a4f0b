package store

import "testing"

func TestCreateGameInitiatorVsRecipient(t *testing.T) {
	s := New()
	g := s.CreateGame("g1", "bob@10.0.0.2", true, "tok")
	if g.MySymbol != "X" || g.OpponentSymbol != "O" || !g.MyTurn {
		t.Fatalf("initiator game = %+v", g)
	}

	s2 := New()
	g2 := s2.CreateGame("g1", "alice@10.0.0.1", false, "tok")
	if g2.MySymbol != "O" || g2.OpponentSymbol != "X" || g2.MyTurn {
		t.Fatalf("recipient game = %+v", g2)
	}
}

func TestApplyMoveAdvancesTurnAndBoardInvariant(t *testing.T) {
	s := New()
	s.CreateGame("g1", "bob@10.0.0.2", true, "tok")

	if !s.ApplyMove("g1", 0, "X", true) {
		t.Fatal("first move should succeed")
	}
	g := s.Game("g1")
	if g.TurnCounter != 2 || g.Board[0] != "X" || g.MyTurn {
		t.Fatalf("game after move = %+v", g)
	}
	// non-empty cells == turnCounter - 1 (spec invariant 5)
	nonEmpty := 0
	for _, c := range g.Board {
		if c != "" {
			nonEmpty++
		}
	}
	if nonEmpty != g.TurnCounter-1 {
		t.Fatalf("invariant 5 violated: nonEmpty=%d turnCounter=%d", nonEmpty, g.TurnCounter)
	}
}

func TestApplyMoveRejectsOccupiedOrOutOfRange(t *testing.T) {
	s := New()
	s.CreateGame("g1", "bob@10.0.0.2", true, "tok")
	s.ApplyMove("g1", 4, "X", true)

	if s.ApplyMove("g1", 4, "O", false) {
		t.Fatal("move onto occupied cell should fail")
	}
	if s.ApplyMove("g1", 9, "O", false) {
		t.Fatal("move out of range should fail")
	}
	if s.ApplyMove("g1", -1, "O", false) {
		t.Fatal("negative position should fail")
	}
}

func TestCheckResultWin(t *testing.T) {
	s := New()
	s.CreateGame("g1", "bob@10.0.0.2", true, "tok")
	for i, pos := range []int{0, 3, 1, 4, 2} {
		symbol := "X"
		if i%2 == 1 {
			symbol = "O"
		}
		s.ApplyMove("g1", pos, symbol, i%2 == 0)
	}
	result, line, symbol := s.CheckResult("g1")
	if result != "WIN" || symbol != "X" || line != [3]int{0, 1, 2} {
		t.Fatalf("result=%s line=%v symbol=%s, want WIN/[0 1 2]/X", result, line, symbol)
	}
}

func TestCheckResultDraw(t *testing.T) {
	s := New()
	s.CreateGame("g1", "bob@10.0.0.2", true, "tok")
	// X O X / X O O / O X X -> no 3-in-a-row, board full
	symbols := []string{"X", "O", "X", "X", "O", "O", "O", "X", "X"}
	for i, sym := range symbols {
		s.ApplyMove("g1", i, sym, true)
	}
	result, _, _ := s.CheckResult("g1")
	if result != "DRAW" {
		t.Fatalf("result = %s, want DRAW", result)
	}
}

func TestCheckResultContinues(t *testing.T) {
	s := New()
	s.CreateGame("g1", "bob@10.0.0.2", true, "tok")
	s.ApplyMove("g1", 0, "X", true)
	result, _, _ := s.CheckResult("g1")
	if result != "" {
		t.Fatalf("result = %s, want empty (game continues)", result)
	}
}
