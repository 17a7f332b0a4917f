// interviewctl is a thin CLI over the admin/control surface. Exit
// codes: 0 success, 2 validation, 3 auth, 4 not-found, 5 conflict,
// 1 internal.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	exitOK         = 0
	exitInternal   = 1
	exitValidation = 2
	exitAuth       = 3
	exitNotFound   = 4
	exitConflict   = 5
)

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitValidation
	}

	c := &client{
		baseURL: strings.TrimRight(envOr("INTERVIEWD_URL", "http://localhost:8080"), "/"),
		token:   os.Getenv("ADMIN_BEARER_TOKEN"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	switch args[0] {
	case "create-slot":
		return c.createSlot(args[1:])
	case "search-slots":
		return c.searchSlots(args[1:])
	case "book":
		return c.book(args[1:])
	case "cancel-booking":
		return c.cancelBooking(args[1:])
	case "create-interview":
		return c.createInterview(args[1:])
	case "issue-token":
		return c.issueToken(args[1:])
	case "get-evaluation":
		return c.getEvaluation(args[1:])
	default:
		usage()
		return exitValidation
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: interviewctl <command> [flags]

commands:
  create-slot       -company -job -date -start [-end] -capacity -ai-type [-difficulty] [-language]
  search-slots      -company -ai-type -from -to
  book              -slot -interview [-notes]
  cancel-booking    -booking
  create-interview  -candidate -job
  issue-token       -interview
  get-evaluation    -interview

environment: INTERVIEWD_URL (default http://localhost:8080), ADMIN_BEARER_TOKEN`)
}

func (c *client) createSlot(args []string) int {
	fs := flag.NewFlagSet("create-slot", flag.ContinueOnError)
	company := fs.String("company", "", "company name")
	job := fs.String("job", "", "job title")
	date := fs.String("date", "", "slot date (YYYY-MM-DD, IST)")
	start := fs.String("start", "", "start time (HH:MM, IST)")
	end := fs.String("end", "", "end time (HH:MM, IST)")
	capacity := fs.Int("capacity", 1, "parallel candidate capacity")
	aiType := fs.String("ai-type", "Technical", "interview type")
	difficulty := fs.String("difficulty", "", "difficulty")
	language := fs.String("language", "", "spoken language")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if *company == "" || *date == "" || *start == "" {
		fmt.Fprintln(os.Stderr, "create-slot: -company, -date, and -start are required")
		return exitValidation
	}
	return c.post("/slots", map[string]any{
		"company": *company, "job": *job, "date": *date, "start": *start, "end": *end,
		"capacity": *capacity, "ai_type": *aiType, "difficulty": *difficulty, "language": *language,
	})
}

func (c *client) searchSlots(args []string) int {
	fs := flag.NewFlagSet("search-slots", flag.ContinueOnError)
	company := fs.String("company", "", "company name")
	aiType := fs.String("ai-type", "Technical", "interview type")
	from := fs.String("from", "", "range start (YYYY-MM-DD)")
	to := fs.String("to", "", "range end (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	q := url.Values{}
	q.Set("company", *company)
	q.Set("ai_type", *aiType)
	q.Set("from", *from)
	q.Set("to", *to)
	return c.get("/slots?" + q.Encode())
}

func (c *client) book(args []string) int {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	slot := fs.String("slot", "", "slot id")
	interview := fs.String("interview", "", "interview id")
	notes := fs.String("notes", "", "booking notes")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if *slot == "" || *interview == "" {
		fmt.Fprintln(os.Stderr, "book: -slot and -interview are required")
		return exitValidation
	}
	return c.post("/slots/"+*slot+"/book", map[string]any{"interview_id": *interview, "notes": *notes})
}

func (c *client) cancelBooking(args []string) int {
	fs := flag.NewFlagSet("cancel-booking", flag.ContinueOnError)
	booking := fs.String("booking", "", "booking id")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if *booking == "" {
		fmt.Fprintln(os.Stderr, "cancel-booking: -booking is required")
		return exitValidation
	}
	return c.post("/bookings/"+*booking+"/cancel", map[string]any{})
}

func (c *client) createInterview(args []string) int {
	fs := flag.NewFlagSet("create-interview", flag.ContinueOnError)
	candidate := fs.String("candidate", "", "candidate id")
	job := fs.String("job", "", "job id")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if *candidate == "" || *job == "" {
		fmt.Fprintln(os.Stderr, "create-interview: -candidate and -job are required")
		return exitValidation
	}
	return c.post("/interviews", map[string]any{"candidate_id": *candidate, "job_id": *job})
}

func (c *client) issueToken(args []string) int {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	interview := fs.String("interview", "", "interview id")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if *interview == "" {
		fmt.Fprintln(os.Stderr, "issue-token: -interview is required")
		return exitValidation
	}
	return c.post("/interviews/"+*interview+"/access-token", map[string]any{})
}

func (c *client) getEvaluation(args []string) int {
	fs := flag.NewFlagSet("get-evaluation", flag.ContinueOnError)
	interview := fs.String("interview", "", "interview id")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if *interview == "" {
		fmt.Fprintln(os.Stderr, "get-evaluation: -interview is required")
		return exitValidation
	}
	return c.get("/interviews/" + *interview + "/evaluation")
}

func (c *client) post(path string, body map[string]any) int {
	raw, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode request:", err)
		return exitInternal
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		fmt.Fprintln(os.Stderr, "build request:", err)
		return exitInternal
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) get(path string) int {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build request:", err)
		return exitInternal
	}
	return c.do(req)
}

func (c *client) do(req *http.Request) int {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request failed:", err)
		return exitInternal
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	printBody(body)
	return exitCodeFor(resp.StatusCode)
}

func printBody(body []byte) {
	var pretty bytes.Buffer
	if json.Indent(&pretty, bytes.TrimSpace(body), "", "  ") == nil {
		fmt.Println(pretty.String())
		return
	}
	fmt.Println(string(body))
}

func exitCodeFor(status int) int {
	switch {
	case status >= 200 && status < 300:
		return exitOK
	case status == http.StatusBadRequest:
		return exitValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return exitAuth
	case status == http.StatusNotFound:
		return exitNotFound
	case status == http.StatusConflict:
		return exitConflict
	default:
		return exitInternal
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
