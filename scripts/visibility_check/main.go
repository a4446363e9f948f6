package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// target pairs a user with an item whose visibility should agree between the
// explain endpoint and the user's feed.
type target struct {
	UserID   int64  `json:"user_id"`
	ItemID   int64  `json:"item_id"`
	Kind     string `json:"kind"`
	Critical bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target    target
	Explained bool
	InFeed    bool
	Pages     int
	Reasons   []string
	Error     error
	Duration  time.Duration
}

type client struct {
	http  *http.Client
	base  string
	token string
}

func main() {
	var (
		base        string
		token       string
		targetsPath string
		maxPages    int
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&token, "token", os.Getenv("VISIBILITY_CHECK_TOKEN"), "Admin bearer token")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "visibility_check", "targets.json"), "Path to JSON targets file")
	flag.IntVar(&maxPages, "max-pages", 20, "Maximum feed pages to scan per target")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	c := &client{http: &http.Client{Timeout: timeout}, base: strings.TrimRight(base, "/"), token: token}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)
	for _, t := range targets {
		comp := compareTarget(c, t, maxPages)
		if comp.Error != nil || comp.Explained != comp.InFeed {
			if t.Critical || comp.Error != nil {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func compareTarget(c *client, tgt target, maxPages int) (comp comparison) {
	comp.Target = tgt
	start := time.Now()
	defer func() { comp.Duration = time.Since(start) }()

	explanation, err := c.explain(tgt.UserID, tgt.ItemID)
	if err != nil {
		comp.Error = fmt.Errorf("explain: %w", err)
		return comp
	}
	comp.Explained = explanation.Decision.Visible
	for _, code := range explanation.Decision.Codes() {
		comp.Reasons = append(comp.Reasons, string(code))
	}

	kind := tgt.Kind
	if kind == "" {
		kind = string(explanation.Kind)
	}
	cursor := ""
	for comp.Pages < maxPages {
		items, next, err := c.feedPage(tgt.UserID, kind, cursor)
		comp.Pages++
		if err != nil {
			comp.Error = fmt.Errorf("feed page %d: %w", comp.Pages, err)
			return comp
		}
		for _, item := range items {
			if item.ID == tgt.ItemID {
				comp.InFeed = true
				return comp
			}
		}
		if next == "" {
			return comp
		}
		cursor = next
	}
	return comp
}

type envelope struct {
	Data       json.RawMessage    `json:"data"`
	Error      *json.RawMessage   `json:"error"`
	Pagination *models.Pagination `json:"pagination"`
}

func (c *client) explain(userID, itemID int64) (*models.Explanation, error) {
	q := url.Values{}
	q.Set("user_id", fmt.Sprint(userID))
	q.Set("item_id", fmt.Sprint(itemID))
	env, err := c.get("/admin/explain", q)
	if err != nil {
		return nil, err
	}
	var out models.Explanation
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("decode explanation: %w", err)
	}
	return &out, nil
}

func (c *client) feedPage(userID int64, kind, cursor string) ([]models.FeedItem, string, error) {
	q := url.Values{}
	q.Set("kind", kind)
	q.Set("limit", "100")
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	env, err := c.get(fmt.Sprintf("/admin/users/%d/feed", userID), q)
	if err != nil {
		return nil, "", err
	}
	var items []models.FeedItem
	if err := json.Unmarshal(env.Data, &items); err != nil {
		return nil, "", fmt.Errorf("decode feed: %w", err)
	}
	next := ""
	if env.Pagination != nil {
		next = env.Pagination.NextCursor
	}
	return items, next, nil
}

func (c *client) get(path string, query url.Values) (*envelope, error) {
	if c.http == nil {
		return nil, errors.New("nil client")
	}
	req, err := http.NewRequest(http.MethodGet, c.base+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || env.Error != nil {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &env, nil
}

func printReport(results []comparison) {
	fmt.Println("Visibility Check Report")
	fmt.Println("=======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if res.Explained != res.InFeed {
			status = "DIFF"
		}
		fmt.Printf("[%s] user %d item %d (%s)\n", status, res.Target.UserID, res.Target.ItemID, res.Duration)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		fmt.Printf("  Explain visible: %t | In feed: %t | Pages: %d | Critical: %t\n", res.Explained, res.InFeed, res.Pages, res.Target.Critical)
		fmt.Printf("  Reasons: %s\n", strings.Join(res.Reasons, ", "))
	}
}
