// Package main provides the user CLI entry point for testing.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("tunedeck-cli", "tunedeck user client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()

	// play command
	playCmd   = app.Command("play", "Queue a track or playlist link")
	playChat  = playCmd.Arg("chat", "Chat ID").Required().String()
	playQuery = playCmd.Arg("query", "Search query or playlist link").Required().Strings()
	playName  = playCmd.Flag("name", "Requester display name").Default("cli").String()

	// skip command
	skipCmd  = app.Command("skip", "Skip the current track")
	skipChat = skipCmd.Arg("chat", "Chat ID").Required().String()

	// pause command
	pauseCmd  = app.Command("pause", "Pause playback")
	pauseChat = pauseCmd.Arg("chat", "Chat ID").Required().String()

	// resume command
	resumeCmd  = app.Command("resume", "Resume playback")
	resumeChat = resumeCmd.Arg("chat", "Chat ID").Required().String()

	// clear command
	clearCmd  = app.Command("clear", "Clear the queue")
	clearChat = clearCmd.Arg("chat", "Chat ID").Required().String()

	// stop command
	stopCmd  = app.Command("stop", "Stop playback and tear the session down")
	stopChat = stopCmd.Arg("chat", "Chat ID").Required().String()

	// queue command
	queueCmd   = app.Command("queue", "Show the queue")
	queueChat  = queueCmd.Arg("chat", "Chat ID").Required().String()
	queueLimit = queueCmd.Flag("limit", "Max entries to show").Default("0").Int()

	// now command
	nowCmd  = app.Command("now", "Show the current track")
	nowChat = nowCmd.Arg("chat", "Chat ID").Required().String()

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Subscribe to playback events")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	ctx := context.Background()

	switch command {
	case playCmd.FullCommand():
		play(ctx, *playChat, strings.Join(*playQuery, " "), *playName)
	case skipCmd.FullCommand():
		simpleCommand(ctx, *skipChat, "skip")
	case pauseCmd.FullCommand():
		simpleCommand(ctx, *pauseChat, "pause")
	case resumeCmd.FullCommand():
		simpleCommand(ctx, *resumeChat, "resume")
	case clearCmd.FullCommand():
		simpleCommand(ctx, *clearChat, "clear")
	case stopCmd.FullCommand():
		simpleCommand(ctx, *stopChat, "stop")
	case queueCmd.FullCommand():
		showQueue(ctx, *queueChat, *queueLimit)
	case nowCmd.FullCommand():
		showNowPlaying(ctx, *nowChat)
	case subscribeCmd.FullCommand():
		subscribe(ctx)
	}
}

func fatal(format string, args ...any) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}

func post(ctx context.Context, path string, body any) map[string]any {
	payload, err := json.Marshal(body)
	if err != nil {
		fatal("%v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *server+path, bytes.NewReader(payload))
	if err != nil {
		fatal("%v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req)
}

func get(ctx context.Context, path string) map[string]any {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *server+path, nil)
	if err != nil {
		fatal("%v", err)
	}
	return doJSON(req)
}

func doJSON(req *http.Request) map[string]any {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal("%v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal("%v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		fatal("unexpected response: %s", data)
	}
	if resp.StatusCode != http.StatusOK {
		fatal("%s (HTTP %d)", body["error"], resp.StatusCode)
	}
	return body
}

func play(ctx context.Context, chat, query, name string) {
	body := post(ctx, "/v1/chats/"+chat+"/play", map[string]string{
		"query":          query,
		"requester_id":   name,
		"requester_name": name,
	})

	if pl, ok := body["playlist_name"].(string); ok && pl != "" {
		fmt.Printf("Queued %v tracks from playlist %q", body["queued"], pl)
	} else {
		fmt.Printf("Queued %q", query)
	}
	fmt.Printf(" (queue length: %v)\n", body["queue_len"])
}

func simpleCommand(ctx context.Context, chat, command string) {
	body := post(ctx, "/v1/chats/"+chat+"/"+command, map[string]string{})
	switch command {
	case "skip":
		if skipped, ok := body["skipped"].(map[string]any); ok {
			fmt.Printf("Skipped: %v\n", skipped["title"])
		}
	case "clear", "stop":
		fmt.Printf("Removed %v tracks\n", body["removed"])
	default:
		fmt.Printf("State: %v\n", body["state"])
	}
}

func showQueue(ctx context.Context, chat string, limit int) {
	body := get(ctx, fmt.Sprintf("/v1/chats/%s/queue?limit=%d", chat, limit))

	fmt.Printf("State: %v  (total: %v)\n", body["state"], body["total"])
	if now, ok := body["now_playing"].(map[string]any); ok {
		fmt.Printf("Now playing: %v\n", now["title"])
	}
	entries, _ := body["entries"].([]any)
	for i, e := range entries {
		entry := e.(map[string]any)
		fmt.Printf("%2d. %v\n", i+1, entry["title"])
	}
}

func showNowPlaying(ctx context.Context, chat string) {
	body := get(ctx, "/v1/chats/"+chat+"/now")
	track := body["track"].(map[string]any)
	fmt.Printf("[%v] %v\n", body["state"], track["title"])
	if url, ok := track["url"].(string); ok && url != "" {
		fmt.Println(url)
	}
}

func subscribe(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		cancel()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *server+"/v1/events", nil)
	if err != nil {
		fatal("%v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal("%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fatal("subscribe failed (HTTP %d)", resp.StatusCode)
	}

	fmt.Println("Subscribed to playback events. Press Ctrl+C to exit.")

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}
		printEvent(event)
	}
}

func printEvent(event map[string]any) {
	fmt.Printf("[%v] %v chat=%v state=%v", event["seq"], event["type"], event["chat_id"], event["state"])
	if track, ok := event["track"].(map[string]any); ok {
		fmt.Printf(" track=%q", track["title"])
	}
	if errMsg, ok := event["error"].(string); ok && errMsg != "" {
		fmt.Printf(" error=%q", errMsg)
	}
	fmt.Println()
}
