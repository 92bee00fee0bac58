// Terminal quiz player: joins a game over the WebSocket transport, prints
// questions as they arrive and submits answers typed on stdin.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"quiz-live/internal/models"
	"quiz-live/internal/transport"
)

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:8080", "server base URL")
		gameCode  = flag.String("code", "", "game code to join")
		name      = flag.String("name", "anonymous", "display name")
	)
	flag.Parse()

	if *gameCode == "" {
		fmt.Fprintln(os.Stderr, "usage: client -code ABC123 [-name alice] [-server ws://host:port]")
		os.Exit(2)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	playerID := uuid.NewString()
	client := transport.NewClient(fmt.Sprintf("%s/ws/%s", *serverURL, *gameCode))
	defer client.Close()

	var timeLeft atomic.Int64

	client.On(transport.EventNewQuestion, func(data json.RawMessage) {
		var p transport.NewQuestionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		timeLeft.Store(int64(p.TimeLimit))
		fmt.Printf("\nQuestion %d/%d: %s\n", p.Index+1, p.Total, p.Question.Text)
		for _, letter := range []string{"A", "B", "C", "D"} {
			fmt.Printf("  %s. %s\n", letter, p.Question.Answers[letter])
		}
		fmt.Print("> ")
	})

	client.On(transport.EventTimerTick, func(data json.RawMessage) {
		var p transport.TimerTickPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		timeLeft.Store(int64(p.SecondsLeft))
	})

	client.On(transport.EventQuestionEnded, func(data json.RawMessage) {
		var p transport.QuestionEndedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		fmt.Printf("\nCorrect answer: %s\n", p.Correct)
		printLeaderboard(p.Leaderboard, playerID)
	})

	client.On(transport.EventGameEnded, func(data json.RawMessage) {
		var p transport.GameEndedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		fmt.Println("\nGame over!")
		printLeaderboard(p.Leaderboard, playerID)
		os.Exit(0)
	})

	client.On(transport.EventError, func(data json.RawMessage) {
		var p transport.ErrorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		fmt.Printf("\nserver: %s\n", p.Message)
	})

	client.On(transport.EventFallback, func(json.RawMessage) {
		fmt.Fprintln(os.Stderr, "connection lost for good, giving up")
		os.Exit(1)
	})

	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	if !client.Send(transport.CmdJoinGame, transport.JoinGamePayload{
		GameCode:   *gameCode,
		PlayerName: *name,
		PlayerID:   playerID,
	}) {
		fmt.Fprintln(os.Stderr, "join failed: not connected")
		os.Exit(1)
	}
	fmt.Printf("Joined game %s as %s. Type A-D to answer.\n", *gameCode, *name)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		answer := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if answer == "" {
			continue
		}
		if answer == "Q" {
			client.Send(transport.CmdLeaveGame, transport.LeaveGamePayload{
				GameCode: *gameCode,
				PlayerID: playerID,
			})
			return
		}

		ok := client.Send(transport.CmdSubmitAnswer, transport.SubmitAnswerPayload{
			GameCode:      *gameCode,
			PlayerID:      playerID,
			Answer:        answer,
			TimeRemaining: float64(timeLeft.Load()),
		})
		if !ok {
			fmt.Println("not connected, answer not sent")
		}
	}
}

func printLeaderboard(entries []models.LeaderboardEntry, self string) {
	fmt.Println("Leaderboard:")
	for _, e := range entries {
		marker := " "
		if e.PlayerID == self {
			marker = "*"
		}
		fmt.Printf(" %s %d. %-20s %d\n", marker, e.Rank, e.Name, e.Score)
	}
}
