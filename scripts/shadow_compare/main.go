// Command shadow_compare replays generation requests against two engine
// deployments and reports response differences. Used when rolling out
// engine or optimizer changes: the candidate must answer like the
// baseline on every critical target before it takes traffic.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Method   string          `json:"method"`
	Path     string          `json:"path"`
	Body     json.RawMessage `json:"body,omitempty"`
	Critical bool            `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target            target
	BaselineStatus    int
	CandidateStatus   int
	StatusMatch       bool
	BodyMatch         bool
	Error             error
	DurationCandidate time.Duration
	DurationBaseline  time.Duration
}

// Volatile response fields that legitimately differ between two runs of
// the same deployment. They are stripped before bodies are compared.
var volatileKeys = map[string]bool{
	"id":           true,
	"schedule_id":  true,
	"created_at":   true,
	"at":           true,
	"queued":       true,
	"finished":     true,
	"duration_ms":  true,
	"memory_bytes": true,
	"generated_at": true,
	"expires_at":   true,
	"token":        true,
	"url":          true,
}

func main() {
	var (
		candidateBase string
		baselineBase  string
		targetsPath   string
		timeout       time.Duration
	)

	flag.StringVar(&candidateBase, "candidate-base", "http://localhost:8080", "candidate engine base URL")
	flag.StringVar(&baselineBase, "baseline-base", "http://localhost:8081", "baseline engine base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)

	for _, t := range targets {
		comp := compareTarget(client, candidateBase, baselineBase, t)
		if comp.Error != nil {
			if t.Critical {
				breaking++
			}
		} else {
			if !comp.StatusMatch || !comp.BodyMatch {
				if t.Critical {
					breaking++
				} else {
					optionalDiff++
				}
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

func compareTarget(client *http.Client, candidateBase, baselineBase string, tgt target) comparison {
	comp := comparison{Target: tgt}
	candidateResp, candidateDur, candidateErr := performRequest(client, candidateBase, tgt)
	baselineResp, baselineDur, baselineErr := performRequest(client, baselineBase, tgt)
	comp.DurationCandidate = candidateDur
	comp.DurationBaseline = baselineDur

	if candidateErr != nil {
		comp.Error = fmt.Errorf("candidate request failed: %w", candidateErr)
		return comp
	}
	if baselineErr != nil {
		comp.Error = fmt.Errorf("baseline request failed: %w", baselineErr)
		return comp
	}

	comp.CandidateStatus = candidateResp.StatusCode
	comp.BaselineStatus = baselineResp.StatusCode
	comp.StatusMatch = comp.CandidateStatus == comp.BaselineStatus

	defer candidateResp.Body.Close()
	defer baselineResp.Body.Close()

	candidateBody, err := io.ReadAll(candidateResp.Body)
	if err != nil {
		comp.Error = fmt.Errorf("read candidate body: %w", err)
		return comp
	}
	baselineBody, err := io.ReadAll(baselineResp.Body)
	if err != nil {
		comp.Error = fmt.Errorf("read baseline body: %w", err)
		return comp
	}

	comp.BodyMatch = bodiesEqual(candidateBody, baselineBody)

	return comp
}

func performRequest(client *http.Client, base string, tgt target) (*http.Response, time.Duration, error) {
	if client == nil {
		return nil, 0, errors.New("nil client")
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimRight(base, "/") + path

	var body io.Reader
	if len(tgt.Body) > 0 {
		body = bytes.NewReader(tgt.Body)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp, time.Since(start), nil
}

func bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k := range val {
			if volatileKeys[k] {
				delete(val, k)
			}
		}
		for k, v2 := range val {
			normalize(&v2)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printReport(results []comparison) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		fmt.Printf("  Candidate Status: %d (%s)\n", res.CandidateStatus, res.DurationCandidate)
		fmt.Printf("  Baseline Status: %d (%s)\n", res.BaselineStatus, res.DurationBaseline)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
		}
	}
}
