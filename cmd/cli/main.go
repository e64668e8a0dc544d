package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"animehub/internal/logging"
)

const defaultBaseURL = "http://localhost:8080"

var log = logging.With("cli")

type tokenData struct {
	Token string `json:"token"`
}

type authResponse struct {
	Token string `json:"token"`
}

// client bundles what every subcommand needs to reach the API.
type client struct {
	http      *http.Client
	baseURL   string
	tokenPath string
}

func main() {
	global := flag.NewFlagSet("animehub", flag.ExitOnError)
	baseURL := global.String("api", defaultBaseURL, "API base URL")
	tokenPath := global.String("token", defaultTokenPath(), "token file path")
	if err := global.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("parse flags")
	}
	logging.Init(logging.Config{Level: "info", Format: "console"})
	log = logging.With("cli")

	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := args[0]
	sub := ""
	rest := []string{}
	if len(args) > 1 {
		sub = args[1]
		rest = args[2:]
	}

	c := &client{
		http:      &http.Client{Timeout: 60 * time.Second},
		baseURL:   strings.TrimRight(*baseURL, "/"),
		tokenPath: *tokenPath,
	}

	switch cmd {
	case "auth":
		c.handleAuth(ctx, sub, rest)
	case "anime":
		c.handleAnime(ctx, sub, rest)
	case "track":
		c.handleTrack(ctx, sub, rest)
	case "ai":
		c.handleAI(ctx, sub, rest)
	case "stats":
		c.handleStats(ctx, sub, rest)
	default:
		printUsage()
		os.Exit(1)
	}
}

func (c *client) handleAuth(ctx context.Context, sub string, args []string) {
	switch sub {
	case "login":
		fs := flag.NewFlagSet("auth login", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)

		if *email == "" || *password == "" {
			log.Fatal().Msg("email and password are required")
		}

		payload := map[string]string{"email": *email, "password": *password}
		var resp authResponse
		if err := c.do(ctx, http.MethodPost, "/auth/login", "", payload, &resp); err != nil {
			log.Fatal().Err(err).Msg("login failed")
		}
		if err := saveToken(c.tokenPath, resp.Token); err != nil {
			log.Fatal().Err(err).Msg("save token")
		}
		fmt.Println("logged in")
	case "register":
		fs := flag.NewFlagSet("auth register", flag.ExitOnError)
		username := fs.String("username", "", "username")
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)

		if *username == "" || *email == "" || *password == "" {
			log.Fatal().Msg("username, email and password are required")
		}

		payload := map[string]string{"username": *username, "email": *email, "password": *password}
		var resp authResponse
		if err := c.do(ctx, http.MethodPost, "/auth/register", "", payload, &resp); err != nil {
			log.Fatal().Err(err).Msg("register failed")
		}
		if err := saveToken(c.tokenPath, resp.Token); err != nil {
			log.Fatal().Err(err).Msg("save token")
		}
		fmt.Println("registered and logged in")
	case "logout":
		if token, err := readToken(c.tokenPath); err == nil && token != "" {
			_ = c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
		}
		if err := clearToken(c.tokenPath); err != nil {
			log.Fatal().Err(err).Msg("logout failed")
		}
		fmt.Println("logged out")
	default:
		log.Fatal().Msg("usage: animehub auth <login|register|logout>")
	}
}

func (c *client) handleAnime(ctx context.Context, sub string, args []string) {
	switch sub {
	case "search":
		fs := flag.NewFlagSet("anime search", flag.ExitOnError)
		query := fs.String("q", "", "title keyword")
		genres := fs.String("genres", "", "comma-separated genres")
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "offset")
		_ = fs.Parse(args)

		qv := url.Values{}
		if *query != "" {
			qv.Set("q", *query)
		}
		if *genres != "" {
			qv.Set("genres", *genres)
		}
		qv.Set("limit", strconv.Itoa(*limit))
		qv.Set("offset", strconv.Itoa(*offset))
		c.printGet(ctx, "/animes?"+qv.Encode(), "")
	case "show":
		fs := flag.NewFlagSet("anime show", flag.ExitOnError)
		id := fs.Int64("id", 0, "anime id")
		_ = fs.Parse(args)
		if *id <= 0 {
			log.Fatal().Msg("anime id is required")
		}
		c.printGet(ctx, "/animes/"+strconv.FormatInt(*id, 10), "")
	case "import":
		fs := flag.NewFlagSet("anime import", flag.ExitOnError)
		malID := fs.Int64("mal-id", 0, "MyAnimeList id")
		_ = fs.Parse(args)
		if *malID <= 0 {
			log.Fatal().Msg("mal-id is required")
		}
		c.printPost(ctx, "/admin/import-anime?mal_id="+strconv.FormatInt(*malID, 10), mustToken(c.tokenPath))
	default:
		log.Fatal().Msg("usage: animehub anime <search|show|import>")
	}
}

func (c *client) handleTrack(ctx context.Context, sub string, args []string) {
	token := mustToken(c.tokenPath)
	switch sub {
	case "add":
		fs := flag.NewFlagSet("track add", flag.ExitOnError)
		animeID := fs.Int64("anime-id", 0, "anime id")
		status := fs.String("status", "planned", "status")
		episodes := fs.Int("episodes", 0, "episodes watched")
		score := fs.Int("score", -1, "score 0-10, negative for none")
		_ = fs.Parse(args)
		if *animeID <= 0 {
			log.Fatal().Msg("anime-id is required")
		}

		payload := map[string]any{
			"anime_id":         *animeID,
			"status":           *status,
			"episodes_watched": *episodes,
		}
		if *score >= 0 {
			payload["score"] = *score
		}
		var resp map[string]any
		if err := c.do(ctx, http.MethodPost, "/user-animes", token, payload, &resp); err != nil {
			log.Fatal().Err(err).Msg("add failed")
		}
		printJSON(resp)
	case "update":
		fs := flag.NewFlagSet("track update", flag.ExitOnError)
		id := fs.Int64("id", 0, "tracking entry id")
		status := fs.String("status", "", "new status")
		episodes := fs.Int("episodes", -1, "episodes watched")
		inc := fs.Int("inc", 0, "episodes to add")
		score := fs.Int("score", -1, "score 0-10")
		_ = fs.Parse(args)
		if *id <= 0 {
			log.Fatal().Msg("id is required")
		}

		payload := map[string]any{}
		if *status != "" {
			payload["status"] = *status
		}
		if *episodes >= 0 {
			payload["episodes_watched"] = *episodes
		}
		if *inc != 0 {
			payload["episodes_increment"] = *inc
		}
		if *score >= 0 {
			payload["score"] = *score
		}
		var resp map[string]any
		if err := c.do(ctx, http.MethodPatch, "/user-animes/"+strconv.FormatInt(*id, 10), token, payload, &resp); err != nil {
			log.Fatal().Err(err).Msg("update failed")
		}
		printJSON(resp)
	case "remove":
		fs := flag.NewFlagSet("track remove", flag.ExitOnError)
		id := fs.Int64("id", 0, "tracking entry id")
		_ = fs.Parse(args)
		if *id <= 0 {
			log.Fatal().Msg("id is required")
		}
		var resp map[string]any
		if err := c.do(ctx, http.MethodDelete, "/user-animes/"+strconv.FormatInt(*id, 10), token, nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("remove failed")
		}
		printJSON(resp)
	case "list":
		fs := flag.NewFlagSet("track list", flag.ExitOnError)
		status := fs.String("status", "", "status filter")
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "offset")
		_ = fs.Parse(args)

		qv := url.Values{}
		if *status != "" {
			qv.Set("status", *status)
		}
		qv.Set("limit", strconv.Itoa(*limit))
		qv.Set("offset", strconv.Itoa(*offset))
		c.printGet(ctx, "/user-animes?"+qv.Encode(), token)
	default:
		log.Fatal().Msg("usage: animehub track <add|update|remove|list>")
	}
}

func (c *client) handleAI(ctx context.Context, sub string, args []string) {
	token := mustToken(c.tokenPath)
	fs := flag.NewFlagSet("ai "+sub, flag.ExitOnError)
	limit := fs.Int("limit", 0, "result limit, 0 for the server default")
	_ = fs.Parse(args)

	qv := url.Values{}
	if *limit > 0 {
		qv.Set("limit", strconv.Itoa(*limit))
	}
	suffix := ""
	if len(qv) > 0 {
		suffix = "?" + qv.Encode()
	}

	switch sub {
	case "recommend":
		c.printGet(ctx, "/ai/recommendations"+suffix, token)
	case "news":
		c.printGet(ctx, "/ai/news"+suffix, token)
	case "auto-status":
		c.printPost(ctx, "/ai/auto-status", token)
	case "refresh":
		c.printPost(ctx, "/ai/refresh-catalog"+suffix, token)
	default:
		log.Fatal().Msg("usage: animehub ai <recommend|news|auto-status|refresh>")
	}
}

func (c *client) handleStats(ctx context.Context, sub string, _ []string) {
	token := mustToken(c.tokenPath)
	switch sub {
	case "", "me":
		c.printGet(ctx, "/stats/me", token)
	case "global":
		c.printGet(ctx, "/stats/global", token)
	default:
		log.Fatal().Msg("usage: animehub stats <me|global>")
	}
}

func (c *client) printGet(ctx context.Context, path, token string) {
	var resp any
	if err := c.do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("request failed")
	}
	printJSON(resp)
}

// printPost sends an authenticated POST without a body.
func (c *client) printPost(ctx context.Context, path, token string) {
	var resp any
	if err := c.do(ctx, http.MethodPost, path, token, nil, &resp); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("request failed")
	}
	printJSON(resp)
}

func (c *client) do(ctx context.Context, method, path, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s failed (%d): %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("json")
	}
	fmt.Println(string(b))
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.animehub-token.json"
	}
	return filepath.Join(home, ".animehub", "token.json")
}

func saveToken(path, token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return "", err
	}
	return strings.TrimSpace(td.Token), nil
}

func mustToken(path string) string {
	token, err := readToken(path)
	if err != nil {
		log.Fatal().Err(err).Msg("token not found, please login")
	}
	if token == "" {
		log.Fatal().Msg("token empty, please login")
	}
	return token
}

func clearToken(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func printUsage() {
	fmt.Println("animehub [-api URL] [-token PATH] <command> [subcommand] [flags]")
	fmt.Println("commands:")
	fmt.Println("  auth login|register|logout")
	fmt.Println("  anime search|show|import")
	fmt.Println("  track add|update|remove|list")
	fmt.Println("  ai recommend|news|auto-status|refresh")
	fmt.Println("  stats me|global")
}
